package budget

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-budget/internal/accounting/periods"
)

type fakeStore struct {
	mu       sync.Mutex
	budgets  []Budget
	lines    map[string][]Line
	dists    map[string][]MonthPercentage
	subjects map[string][]Subject
	approver map[string]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		lines:    make(map[string][]Line),
		dists:    make(map[string][]MonthPercentage),
		subjects: make(map[string][]Subject),
		approver: make(map[string]string),
	}
}

func (f *fakeStore) add(b Budget, lines ...Line) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b.DocStatus == 0 {
		b.DocStatus = ledger.DocStatusSubmitted
	}
	f.budgets = append(f.budgets, b)
	for i := range lines {
		lines[i].BudgetID = b.ID
	}
	f.lines[b.ID] = lines
}

func (f *fakeStore) HasActiveScheme(_ context.Context, company, fy string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.budgets {
		if b.Active() && b.Scope.Company == company && b.FiscalYear == fy {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) FindActiveBudgets(_ context.Context, q ScopeQuery) ([]Budget, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Budget
	for _, b := range f.budgets {
		if !q.Matches(b) {
			continue
		}
		if q.Account != "" || q.ItemCode != "" {
			found := false
			for _, l := range f.lines[b.ID] {
				if (q.Account != "" && l.Account == q.Account) || (q.ItemCode != "" && l.ItemCode == q.ItemCode) {
					found = true
				}
			}
			if !found {
				continue
			}
		}
		out = append(out, b)
	}
	return out, nil
}

func (f *fakeStore) ListBudgetLines(_ context.Context, id string) ([]Line, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Line(nil), f.lines[id]...), nil
}

func (f *fakeStore) ListMonthlyDistribution(_ context.Context, id string) ([]MonthPercentage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.dists[id]
	if !ok {
		return nil, ErrDistributionNotFound
	}
	return d, nil
}

func (f *fakeStore) ListAllowedSubjects(_ context.Context, id string) ([]Subject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subjects[id], nil
}

func (f *fakeStore) ExceptionApproverRole(_ context.Context, company string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.approver[company], nil
}

type fakeLedger struct {
	mu       sync.Mutex
	accounts []ledger.Account
	entries  []ledger.Entry
}

func (f *fakeLedger) post(e ledger.Entry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e.DocStatus == 0 {
		e.DocStatus = ledger.DocStatusSubmitted
	}
	f.entries = append(f.entries, e)
}

func (f *fakeLedger) ListAccounts(_ context.Context, filter ledger.CompanyFilter) ([]ledger.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledger.Account
	for _, a := range f.accounts {
		for _, c := range filter.Companies {
			if a.Company == c {
				out = append(out, a)
			}
		}
	}
	return out, nil
}

func (f *fakeLedger) SumEntries(_ context.Context, account string, window ledger.DateRange, filter ledger.Filter) (ledger.Totals, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var t ledger.Totals
	match := filter.Between(window)
	for _, e := range f.entries {
		if e.Account == account && match.Match(e) {
			t = t.Add(e)
		}
	}
	return t, nil
}

func (f *fakeLedger) ListEntries(_ context.Context, filter ledger.Filter) ([]ledger.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ledger.Entry
	for _, e := range f.entries {
		if filter.Match(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

type fakeCommitments struct {
	requested decimal.Decimal
	ordered   decimal.Decimal
}

func (f fakeCommitments) RequestedAmount(context.Context, CommitmentQuery) (decimal.Decimal, error) {
	return f.requested, nil
}

func (f fakeCommitments) OrderedAmount(context.Context, CommitmentQuery) (decimal.Decimal, error) {
	return f.ordered, nil
}

type fakeItems map[string]decimal.Decimal

func (f fakeItems) ItemSpend(_ context.Context, q ItemQuery) (decimal.Decimal, error) {
	return f[q.ItemCode], nil
}

// scopedCommitments records the queries it answers.
type scopedCommitments struct {
	seen []CommitmentQuery
}

func (f *scopedCommitments) RequestedAmount(_ context.Context, q CommitmentQuery) (decimal.Decimal, error) {
	f.seen = append(f.seen, q)
	return decimal.Zero, nil
}

func (f *scopedCommitments) OrderedAmount(_ context.Context, q CommitmentQuery) (decimal.Decimal, error) {
	f.seen = append(f.seen, q)
	return decimal.Zero, nil
}

type scopedItems struct {
	spent decimal.Decimal
	seen  []ItemQuery
}

func (f *scopedItems) ItemSpend(_ context.Context, q ItemQuery) (decimal.Decimal, error) {
	f.seen = append(f.seen, q)
	return f.spent, nil
}

type fakeCalendar struct {
	years []periods.FiscalYear
}

func (f fakeCalendar) YearFor(_ context.Context, _ string, date time.Time) (periods.FiscalYear, error) {
	for _, fy := range f.years {
		if fy.Contains(date) {
			return fy, nil
		}
	}
	return periods.FiscalYear{}, periods.ErrFiscalYearNotFound
}

func (f fakeCalendar) Year(_ context.Context, name string) (periods.FiscalYear, error) {
	for _, fy := range f.years {
		if fy.Name == name {
			return fy, nil
		}
	}
	return periods.FiscalYear{}, periods.ErrFiscalYearNotFound
}

func fy2024() periods.FiscalYear {
	return periods.FiscalYear{Name: "FY2024", Start: ymd(2024, time.January, 1), End: ymd(2024, time.December, 31)}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
