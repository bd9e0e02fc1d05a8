package budget

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-budget/internal/shared"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, time.Second, 200*time.Millisecond), mr
}

func TestRedisLockerExclusive(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()

	release, err := locker.Acquire(ctx, "k")
	require.NoError(t, err)
	require.True(t, mr.Exists("k"))

	_, err = locker.Acquire(ctx, "k")
	require.ErrorIs(t, err, ErrLockTimeout)

	require.NoError(t, release(ctx))
	require.False(t, mr.Exists("k"))

	again, err := locker.Acquire(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRedisLockerReleaseKeepsForeignToken(t *testing.T) {
	locker, mr := newRedisLocker(t)
	ctx := context.Background()
	release, err := locker.Acquire(ctx, "k")
	require.NoError(t, err)

	// the lock expired and someone else took it
	mr.FastForward(2 * time.Second)
	require.NoError(t, mr.Set("k", "other"))
	require.ErrorIs(t, release(ctx), ErrLockLost)
	got, err := mr.Get("k")
	require.NoError(t, err)
	require.Equal(t, "other", got)
}

type memoryApprovals struct {
	mu   sync.Mutex
	logs map[string]shared.ApprovalLog
}

func (m *memoryApprovals) Record(_ context.Context, log shared.ApprovalLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logs == nil {
		m.logs = make(map[string]shared.ApprovalLog)
	}
	m.logs[log.Module+"|"+log.RefID+"|"+log.Subject+"|"+log.Actor+"|"+string(log.Action)] = log
	return nil
}

type memoryKeys struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (m *memoryKeys) CheckAndInsert(_ context.Context, key, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys == nil {
		m.keys = make(map[string]bool)
	}
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memoryKeys) Release(_ context.Context, key, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func invoice(number string, amount string, actor shared.Actor) Document {
	return Document{
		Type:           DocPurchaseInvoice,
		Number:         number,
		IdempotencyKey: "submit:" + number,
		Actor:          actor,
		Lines:          []ExpenseContext{{Scope: branchY, Account: expenseAccount, PostingDate: ymd(2024, time.March, 10), Amount: dec(amount)}},
	}
}

func TestGateBlocksStopWithoutCommitting(t *testing.T) {
	f := newFixture()
	f.store.add(annualStopBudget("B-1"), Line{Account: expenseAccount, Amount: dec("10000")})
	f.spend("6000", "JV-1", ymd(2024, time.February, 1))
	locker, mr := newRedisLocker(t)
	keys := &memoryKeys{}
	gate := NewGate(f.engine("5000"), locker, WithKeyStore(keys))

	committed := false
	_, err := gate.Submit(context.Background(), invoice("PINV-9", "0", shared.Actor{User: "dave"}), func(context.Context) error {
		committed = true
		return nil
	})
	require.True(t, IsBudgetExceeded(err))
	require.False(t, committed)
	require.Empty(t, mr.Keys(), "locks are released")
	require.False(t, keys.keys["submit:PINV-9"], "idempotency key is released on failure")
}

func TestGateRecordsOverrideOnce(t *testing.T) {
	f := newFixture()
	f.store.add(annualStopBudget("B-1"), Line{Account: expenseAccount, Amount: dec("10000")})
	f.store.subjects["B-1"] = []Subject{{Type: SubjectUser, ID: "alice"}}
	f.spend("6000", "JV-1", ymd(2024, time.February, 1))
	locker, _ := newRedisLocker(t)
	approvals := &memoryApprovals{}
	keys := &memoryKeys{}
	gate := NewGate(f.engine("5000"), locker, WithOverrideRecorder(approvals), WithKeyStore(keys))

	doc := invoice("PINV-10", "0", shared.Actor{User: "alice"})
	d, err := gate.Submit(context.Background(), doc, func(context.Context) error { return nil })
	require.NoError(t, err)
	require.Equal(t, OutcomePass, d.Action)
	require.Len(t, approvals.logs, 1)

	_, err = gate.Submit(context.Background(), doc, func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrDuplicateSubmission)
	require.Len(t, approvals.logs, 1)
}

func TestGateRetriesSerializationConflicts(t *testing.T) {
	f := newFixture()
	f.store.add(annualStopBudget("B-1"), Line{Account: expenseAccount, Amount: dec("10000")})
	locker, _ := newRedisLocker(t)
	gate := NewGate(f.engine("0"), locker, WithRetries(2))

	attempts := 0
	_, err := gate.Submit(context.Background(), invoice("PINV-11", "100", shared.Actor{}), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return &pgconn.PgError{Code: "40001"}
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, attempts)

	attempts = 0
	_, err = gate.Submit(context.Background(), invoice("PINV-12", "100", shared.Actor{}), func(context.Context) error {
		attempts++
		return &pgconn.PgError{Code: "40001"}
	})
	require.Error(t, err)
	require.True(t, shared.IsSerializationFailure(err))
	require.Equal(t, 3, attempts)

	attempts = 0
	_, err = gate.Submit(context.Background(), invoice("PINV-13", "100", shared.Actor{}), func(context.Context) error {
		attempts++
		return errors.New("disk full")
	})
	require.Error(t, err)
	require.Equal(t, 1, attempts)
}

func TestGateSerialisesConcurrentSubmissions(t *testing.T) {
	f := newFixture()
	f.store.add(annualStopBudget("B-1"), Line{Account: expenseAccount, Amount: dec("10000")})
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	gate := NewGate(f.engine("0"), NewRedisLocker(client, 5*time.Second, 5*time.Second))

	commit := func(number string) func(context.Context) error {
		return func(context.Context) error {
			f.spend("6000", number, ymd(2024, time.March, 10))
			return nil
		}
	}
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, number := range []string{"PINV-20", "PINV-21"} {
		wg.Add(1)
		go func(i int, number string) {
			defer wg.Done()
			_, errs[i] = gate.Submit(context.Background(), invoice(number, "6000", shared.Actor{}), commit(number))
		}(i, number)
	}
	wg.Wait()

	exceeded := 0
	for _, err := range errs {
		if IsBudgetExceeded(err) {
			exceeded++
		} else {
			require.NoError(t, err)
		}
	}
	require.Equal(t, 1, exceeded, "exactly one of two 6000 invoices fits a 10000 budget")
}

func TestDocumentMergesLines(t *testing.T) {
	doc := Document{
		Type:   DocJournalEntry,
		Number: "JV-7",
		Lines: []ExpenseContext{
			{Scope: branchY, Account: expenseAccount, Amount: dec("100"), PostingDate: ymd(2024, 3, 1)},
			{Scope: branchY, Account: expenseAccount, Amount: dec("50"), PostingDate: ymd(2024, 3, 9)},
			{Scope: branchY, Account: "Travel", Amount: dec("10"), PostingDate: ymd(2024, 3, 1)},
		},
	}
	lines := doc.expenses()
	require.Len(t, lines, 2)
	require.Equal(t, "150", lines[0].Amount.String())
	require.Equal(t, ymd(2024, 3, 9), lines[0].PostingDate)
	require.Equal(t, DocJournalEntry, lines[1].DocumentType)
	require.Equal(t, "JV-7", lines[1].DocumentNo)
}
