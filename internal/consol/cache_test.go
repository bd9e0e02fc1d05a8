package consol

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type countingBuilder struct {
	calls int
	value int64
}

func (c *countingBuilder) Build(_ context.Context, kind Kind, f Filters) (Report, error) {
	c.calls++
	return Report{
		Kind:    kind,
		Filters: f,
		Rows: []Row{{Key: "Cash", Label: "Cash", Kind: RowAccount, Values: map[string]decimal.Decimal{
			TotalColumn: decimal.NewFromInt(c.value),
		}}},
	}, nil
}

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute), mr
}

func TestCachedBuilderReadThroughAndBump(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	inner := &countingBuilder{value: 10}
	cached := NewCachedBuilder(inner, cache)
	f := Filters{Company: "Alpha", FiscalYear: "2024"}

	first, err := cached.Build(ctx, KindBalanceSheet, f)
	require.NoError(t, err)
	second, err := cached.Build(ctx, KindBalanceSheet, f)
	require.NoError(t, err)
	require.Equal(t, 1, inner.calls)
	require.True(t, first.Rows[0].Value(TotalColumn).Equal(second.Rows[0].Value(TotalColumn)))
	require.True(t, mr.Exists("consol:report:balance_sheet:"+f.CacheKey()+":1"))

	ver, err := cached.Bump(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, ver)

	inner.value = 20
	third, err := cached.Build(ctx, KindBalanceSheet, f)
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
	require.Equal(t, "20", third.Rows[0].Value(TotalColumn).String())
}

func TestCachedBuilderWarmOverwrites(t *testing.T) {
	ctx := context.Background()
	cache, _ := newTestCache(t)
	inner := &countingBuilder{value: 1}
	cached := NewCachedBuilder(inner, cache)
	f := Filters{Company: "Alpha", FiscalYear: "2024"}

	_, err := cached.Build(ctx, KindTrialBalance, f)
	require.NoError(t, err)
	inner.value = 5
	_, err = cached.Warm(ctx, KindTrialBalance, f)
	require.NoError(t, err)
	got, err := cached.Build(ctx, KindTrialBalance, f)
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
	require.Equal(t, "5", got.Rows[0].Value(TotalColumn).String())
}

func TestCacheVersionInitialisesAndSurvivesTTL(t *testing.T) {
	ctx := context.Background()
	cache, mr := newTestCache(t)
	ver, err := cache.Version(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, ver)

	require.NoError(t, cache.Set(ctx, "k", map[string]int{"a": 1}))
	mr.FastForward(2 * time.Minute)
	var dest map[string]int
	ok, err := cache.Get(ctx, "k", &dest)
	require.NoError(t, err)
	require.False(t, ok)

	ver, err = cache.Version(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, ver)
}

func TestNilCacheIsPassThrough(t *testing.T) {
	inner := &countingBuilder{value: 3}
	cached := NewCachedBuilder(inner, nil)
	f := Filters{Company: "Alpha", FiscalYear: "2024"}
	_, err := cached.Build(context.Background(), KindCashFlow, f)
	require.NoError(t, err)
	_, err = cached.Build(context.Background(), KindCashFlow, f)
	require.NoError(t, err)
	require.Equal(t, 2, inner.calls)
}
