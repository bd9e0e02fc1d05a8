package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-budget/internal/budget"
	"github.com/odyssey-erp/odyssey-budget/internal/consol"
	jobmetrics "github.com/odyssey-erp/odyssey-budget/internal/jobs"
	"github.com/odyssey-erp/odyssey-budget/internal/masterdata/companies"
)

type fakeWarmer struct {
	warmed []string
	bumped int
	fail   map[string]error
}

func (f *fakeWarmer) Warm(_ context.Context, kind consol.Kind, filters consol.Filters) (consol.Report, error) {
	key := fmt.Sprintf("%s/%s/%s", filters.Company, filters.FiscalYear, kind)
	if err := f.fail[filters.Company]; err != nil {
		return consol.Report{}, err
	}
	f.warmed = append(f.warmed, key)
	return consol.Report{Kind: kind, Filters: filters}, nil
}

func (f *fakeWarmer) Bump(context.Context) (int64, error) {
	f.bumped++
	return int64(f.bumped + 1), nil
}

type fakeGroups []companies.Company

func (f fakeGroups) Roots(context.Context) ([]companies.Company, error) { return f, nil }

type fakeCalendar map[string]string

func (f fakeCalendar) YearFor(_ context.Context, company string, _ time.Time) (periods.FiscalYear, error) {
	name, ok := f[company]
	if !ok {
		return periods.FiscalYear{}, fmt.Errorf("lookup %s: %w", company, periods.ErrFiscalYearNotFound)
	}
	return periods.FiscalYear{Name: name}, nil
}

func newJob(w *fakeWarmer) *ConsolidateRefreshJob {
	groups := fakeGroups{{Name: "Holding"}, {Name: "Solo"}, {Name: "Dormant"}}
	calendar := fakeCalendar{"Holding": "2024", "Solo": "2024"}
	return NewConsolidateRefreshJob(w, groups, calendar, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
}

func TestConsolidateRefreshWarmsActiveYear(t *testing.T) {
	w := &fakeWarmer{}
	job := newJob(w)
	task, err := NewConsolidateRefreshTask(ConsolidateRefreshPayload{Kinds: []string{"bs", "pl"}, Bump: true})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 1, w.bumped)
	require.Equal(t, []string{
		"Holding/2024/balance_sheet",
		"Holding/2024/profit_and_loss",
		"Solo/2024/balance_sheet",
		"Solo/2024/profit_and_loss",
	}, w.warmed)
}

func TestConsolidateRefreshExplicitScope(t *testing.T) {
	w := &fakeWarmer{}
	job := newJob(w)
	require.NoError(t, job.Run(context.Background(), "Beta", "2023", []consol.Kind{consol.KindTrialBalance}, false))
	require.Equal(t, []string{"Beta/2023/trial_balance"}, w.warmed)
	require.Zero(t, w.bumped)
}

func TestConsolidateRefreshSkipsConfigurationErrors(t *testing.T) {
	w := &fakeWarmer{fail: map[string]error{"Holding": &budget.ConfigurationError{Reason: "no fiscal year"}}}
	job := newJob(w)
	require.NoError(t, job.Run(context.Background(), scopeAll, scopeActive, []consol.Kind{consol.KindCashFlow}, false))
	require.Equal(t, []string{"Solo/2024/cash_flow"}, w.warmed)
}

func TestConsolidateRefreshStopsOnFailure(t *testing.T) {
	boom := errors.New("ledger unavailable")
	w := &fakeWarmer{fail: map[string]error{"Holding": boom}}
	job := newJob(w)
	err := job.Run(context.Background(), scopeAll, scopeActive, consol.Kinds, false)
	require.ErrorIs(t, err, boom)
}

func TestConsolidateRefreshRejectsBadPayload(t *testing.T) {
	job := newJob(&fakeWarmer{})
	task, err := NewConsolidateRefreshTask(ConsolidateRefreshPayload{Kinds: []string{"nope"}})
	require.NoError(t, err)
	require.Error(t, job.Handle(context.Background(), task))

	var payload ConsolidateRefreshPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, scopeAll, payload.Company)
	require.Equal(t, scopeActive, payload.FiscalYear)
}

type fakeCleaner struct{ got time.Duration }

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.got = olderThan
	return 3, nil
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	cleaner := &fakeCleaner{}
	job := &IdempotencyCleanupJob{Keys: cleaner, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}
	task, err := NewIdempotencyCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, defaultKeyRetention, cleaner.got)

	task, err = NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, cleaner.got)
}
