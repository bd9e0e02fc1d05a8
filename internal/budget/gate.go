package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/odyssey-erp/odyssey-budget/internal/shared"
)

// ErrDuplicateSubmission is returned when a document key was already committed.
var ErrDuplicateSubmission = errors.New("budget: document already submitted")

// ApprovalModule tags idempotency keys and override logs written by the gate.
const ApprovalModule = "budget"

// Document is a set of expense lines submitted together.
type Document struct {
	Type           DocumentType
	Number         string
	IdempotencyKey string
	Actor          shared.Actor
	Lines          []ExpenseContext
}

// OverrideRecorder persists relaxed Stop checks.
type OverrideRecorder interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// KeyStore deduplicates submissions.
type KeyStore interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Release(ctx context.Context, key, module string) error
}

// Gate validates documents under scope locks and commits them.
type Gate struct {
	engine    *Engine
	locker    Locker
	approvals OverrideRecorder
	keys      KeyStore
	retries   int
	logger    *slog.Logger
}

// GateOption customises a Gate.
type GateOption func(*Gate)

// WithOverrideRecorder logs relaxed checks.
func WithOverrideRecorder(r OverrideRecorder) GateOption {
	return func(g *Gate) { g.approvals = r }
}

// WithKeyStore deduplicates submissions by idempotency key.
func WithKeyStore(k KeyStore) GateOption {
	return func(g *Gate) { g.keys = k }
}

// WithRetries bounds commit retries after serialization conflicts.
func WithRetries(n int) GateOption {
	return func(g *Gate) {
		if n >= 0 {
			g.retries = n
		}
	}
}

// WithGateLogger sets the gate logger.
func WithGateLogger(logger *slog.Logger) GateOption {
	return func(g *Gate) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGate wires a Gate.
func NewGate(engine *Engine, locker Locker, opts ...GateOption) *Gate {
	g := &Gate{engine: engine, locker: locker, retries: 3, logger: slog.Default()}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Submit validates every line of doc and runs commit while the budget scopes
// the document touches are locked. An un-overridden Stop aborts with a
// *BudgetExceededError and commit is never called.
func (g *Gate) Submit(ctx context.Context, doc Document, commit func(context.Context) error) (Decision, error) {
	if g == nil || g.engine == nil || g.locker == nil {
		return Decision{}, errors.New("budget gate not initialised")
	}
	if commit == nil {
		return Decision{}, errors.New("budget: commit function required")
	}
	lines := doc.expenses()
	keys, err := g.engine.scopeKeys(ctx, lines)
	if err != nil {
		return Decision{}, err
	}
	if doc.IdempotencyKey != "" && g.keys != nil {
		if err := g.keys.CheckAndInsert(ctx, doc.IdempotencyKey, ApprovalModule); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return Decision{}, fmt.Errorf("%w: %s", ErrDuplicateSubmission, doc.Number)
			}
			return Decision{}, err
		}
	}
	decision, err := g.submitLocked(ctx, doc, lines, keys, commit)
	if err != nil && doc.IdempotencyKey != "" && g.keys != nil {
		if delErr := g.keys.Release(context.WithoutCancel(ctx), doc.IdempotencyKey, ApprovalModule); delErr != nil {
			g.logger.Warn("release idempotency key", slog.String("document", doc.Number), slog.Any("error", delErr))
		}
	}
	return decision, err
}

func (g *Gate) submitLocked(ctx context.Context, doc Document, lines []ExpenseContext, keys []string, commit func(context.Context) error) (Decision, error) {
	releases := make([]func(context.Context) error, 0, len(keys))
	defer func() {
		for i := len(releases) - 1; i >= 0; i-- {
			if err := releases[i](context.WithoutCancel(ctx)); err != nil {
				g.logger.Warn("release budget lock", slog.Any("error", err))
			}
		}
	}()
	for _, key := range keys {
		release, err := g.locker.Acquire(ctx, shared.BudgetLockKey(key))
		if err != nil {
			return Decision{}, err
		}
		releases = append(releases, release)
	}

	for attempt := 0; ; attempt++ {
		decision, err := g.validate(ctx, lines)
		if err != nil {
			return Decision{}, err
		}
		if decision.Action == OutcomeStop {
			return decision, &BudgetExceededError{Decision: decision}
		}
		err = commit(ctx)
		if err == nil {
			g.recordOverrides(ctx, doc, decision)
			return decision, nil
		}
		if !shared.IsSerializationFailure(err) || attempt >= g.retries {
			return decision, fmt.Errorf("commit %s: %w", doc.Number, err)
		}
		g.engine.metrics.retried()
		g.logger.Info("retrying budget commit after serialization conflict",
			slog.String("document", doc.Number), slog.Int("attempt", attempt+1))
	}
}

func (g *Gate) validate(ctx context.Context, lines []ExpenseContext) (Decision, error) {
	var merged Decision
	for _, ec := range lines {
		d, err := g.engine.ValidateExpense(ctx, ec)
		if err != nil {
			return Decision{}, err
		}
		for _, c := range d.Breakdown {
			merged.add(c)
		}
	}
	merged.finish()
	return merged, nil
}

func (g *Gate) recordOverrides(ctx context.Context, doc Document, d Decision) {
	if g.approvals == nil {
		return
	}
	for _, c := range d.Breakdown {
		var action shared.ApprovalAction
		switch c.Override {
		case OverrideAllowedSubject:
			action = shared.ApprovalOverride
		case OverrideExceptionApprover:
			action = shared.ApprovalEscalate
		default:
			continue
		}
		subject := c.Account
		if subject == "" {
			subject = c.ItemCode
		}
		err := g.approvals.Record(ctx, shared.ApprovalLog{
			Module:  ApprovalModule,
			RefID:   doc.Number,
			Subject: c.BudgetID + ":" + string(c.Kind) + ":" + subject,
			Actor:   doc.Actor.User,
			Action:  action,
			Note:    c.Message,
		})
		if err != nil {
			g.logger.Warn("record budget override", slog.String("document", doc.Number), slog.Any("error", err))
		}
	}
}

// expenses stamps document fields onto each line and merges lines hitting
// the same scope, account and item so pending amounts are counted once.
func (doc Document) expenses() []ExpenseContext {
	type key struct {
		scope   Scope
		account string
		item    string
		asset   bool
		fy      string
	}
	index := make(map[key]int)
	out := make([]ExpenseContext, 0, len(doc.Lines))
	for _, ec := range doc.Lines {
		if doc.Type != "" {
			ec.DocumentType = doc.Type
		}
		if doc.Number != "" {
			ec.DocumentNo = doc.Number
		}
		if !doc.Actor.IsZero() {
			ec.Actor = doc.Actor
		}
		k := key{ec.Scope, ec.Account, ec.ItemCode, ec.IsFixedAsset, ec.FiscalYear}
		if i, ok := index[k]; ok {
			out[i].Amount = out[i].Amount.Add(ec.Amount)
			if ec.PostingDate.After(out[i].PostingDate) {
				out[i].PostingDate = ec.PostingDate
			}
			continue
		}
		index[k] = len(out)
		out = append(out, ec)
	}
	return out
}

// scopeKeys returns the sorted scope keys of every active budget the lines
// can be evaluated against.
func (e *Engine) scopeKeys(ctx context.Context, lines []ExpenseContext) ([]string, error) {
	seen := make(map[string]struct{})
	for _, ec := range lines {
		if ec.Account == "" && ec.ItemCode == "" {
			continue
		}
		fy, err := e.fiscalYear(ctx, ec)
		if err != nil {
			return nil, err
		}
		for _, q := range []ScopeQuery{
			{FiscalYear: fy.Name, Scope: ec.Scope, Account: ec.Account},
			{FiscalYear: fy.Name, Scope: ec.Scope, ItemCode: ec.ItemCode},
		} {
			if q.Account == "" && q.ItemCode == "" {
				continue
			}
			budgets, err := e.store.FindActiveBudgets(ctx, q)
			if err != nil {
				return nil, err
			}
			for _, b := range budgets {
				seen[b.Scope.Key(b.FiscalYear)] = struct{}{}
			}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
