package budget

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-budget/internal/accounting/periods"
)

// Query asks for the allocation of one account or item.
type Query struct {
	Scope          Scope
	FiscalYear     string
	PostingDate    time.Time
	Account        string
	ItemCode       string
	From           time.Time
	To             time.Time
	ExcludeVoucher string
}

// Allocation is the resolved budget of a query.
type Allocation struct {
	BudgetID   string          `json:"budget_id,omitempty"`
	FiscalYear string          `json:"fiscal_year"`
	Found      bool            `json:"found"`
	Annual     decimal.Decimal `json:"annual"`
	Allocated  decimal.Decimal `json:"allocated"`
	Used       decimal.Decimal `json:"used"`
	Remaining  decimal.Decimal `json:"remaining"`
	Shares     Amounts         `json:"shares"`
}

// Resolver locates budgets and measures consumption against them.
type Resolver struct {
	store    Store
	ledger   ledger.Store
	items    ItemUsageSource
	calendar Calendar
}

// NewResolver wires a resolver.
func NewResolver(store Store, ledgerStore ledger.Store, items ItemUsageSource, calendar Calendar) *Resolver {
	return &Resolver{store: store, ledger: ledgerStore, items: items, calendar: calendar}
}

// Resolve returns the allocated and used amounts for q, matching budgets the
// way the enforcement engine does. A scope without a budget resolves to a zero
// allocation; more than one covering budget is a configuration error.
func (r *Resolver) Resolve(ctx context.Context, q Query) (Allocation, error) {
	if r == nil || r.store == nil || r.calendar == nil {
		return Allocation{}, fmt.Errorf("budget resolver not initialised")
	}
	if q.Scope.Company == "" {
		return Allocation{}, fmt.Errorf("budget: company is required")
	}
	if (q.Account == "") == (q.ItemCode == "") {
		return Allocation{}, fmt.Errorf("budget: exactly one of account or item code is required")
	}
	fy, err := r.fiscalYear(ctx, q.Scope.Company, q.FiscalYear, q.PostingDate)
	if err != nil {
		return Allocation{}, err
	}
	from, to := q.From, q.To
	if from.IsZero() {
		from = fy.Start
	}
	if to.IsZero() {
		to = fy.End
	}
	if to.Before(from) {
		return Allocation{}, fmt.Errorf("budget: window end %s before start %s", to.Format(time.DateOnly), from.Format(time.DateOnly))
	}

	budgets, err := r.store.FindActiveBudgets(ctx, ScopeQuery{FiscalYear: fy.Name, Scope: q.Scope, Account: q.Account, ItemCode: q.ItemCode})
	if err != nil {
		return Allocation{}, err
	}
	out := Allocation{FiscalYear: fy.Name}
	switch len(budgets) {
	case 0:
		return out, nil
	case 1:
	default:
		ids := make([]string, len(budgets))
		for i, b := range budgets {
			ids[i] = b.ID
		}
		sort.Strings(ids)
		return Allocation{}, configError("%d active budgets %v cover scope %s", len(budgets), ids, q.Scope.Key(fy.Name))
	}
	b := budgets[0]
	line, ok, err := findLine(ctx, r.store, b.ID, q.Account, q.ItemCode)
	if err != nil || !ok {
		return out, err
	}
	dist, err := loadDistribution(ctx, r.store, b)
	if err != nil {
		return Allocation{}, err
	}
	out.BudgetID = b.ID
	out.Found = true
	out.Annual = line.Amount

	if line.IsItem() {
		usedFrom, usedTo := from, to
		if len(dist) == 0 {
			out.Shares = Amounts{Opening: line.Amount, ForPeriod: line.Amount, YearToDate: line.Amount}
			usedFrom, usedTo = fy.Start, fy.End
		} else {
			out.Shares = Fractions(dist, fy, from, to).Apply(line.Amount)
		}
		if r.items == nil {
			return Allocation{}, fmt.Errorf("budget: item usage source not configured")
		}
		used, err := r.items.ItemSpend(ctx, ItemQuery{Scope: b.Scope, ItemCode: q.ItemCode, From: usedFrom, To: usedTo, ExcludeDocument: q.ExcludeVoucher})
		if err != nil {
			return Allocation{}, err
		}
		out.Used = used
	} else {
		out.Shares = Fractions(dist, fy, from, to).Apply(line.Amount)
		used, err := r.spent(ctx, b.Scope, q.Account, from, to, q.ExcludeVoucher)
		if err != nil {
			return Allocation{}, err
		}
		out.Used = used
	}
	out.Allocated = out.Shares.ForPeriod
	out.Remaining = out.Allocated.Sub(out.Used)
	return out, nil
}

// AccountBudget is one apportioned account line of a branch.
type AccountBudget struct {
	Account string          `json:"account"`
	Annual  decimal.Decimal `json:"annual"`
	Shares  Amounts         `json:"shares"`
}

// ItemBudget reports a fixed-asset item budget against its spend.
type ItemBudget struct {
	ItemCode        string          `json:"item_code"`
	TotalBudget     decimal.Decimal `json:"total_budget"`
	Used            decimal.Decimal `json:"used"`
	RemainingBudget decimal.Decimal `json:"remaining_budget"`
}

// BranchBudget lists the budgets of one company branch.
type BranchBudget struct {
	Accounts []AccountBudget `json:"accounts"`
	Items    []ItemBudget    `json:"items"`
}

// BranchQuery selects the budgets of one branch.
type BranchQuery struct {
	Scope      Scope
	FiscalYear string
	From       time.Time
	To         time.Time
}

// BranchBudgets apportions every account line of the branch over the window
// and reports item budgets with their fiscal-year spend. Budgets set on a cost
// center, project or department of the branch are included.
func (r *Resolver) BranchBudgets(ctx context.Context, q BranchQuery) (BranchBudget, error) {
	if r == nil || r.store == nil || r.calendar == nil {
		return BranchBudget{}, fmt.Errorf("budget resolver not initialised")
	}
	if q.Scope.Company == "" || q.Scope.Branch == "" {
		return BranchBudget{}, fmt.Errorf("budget: company and branch are required")
	}
	fy, err := r.fiscalYear(ctx, q.Scope.Company, q.FiscalYear, q.To)
	if err != nil {
		return BranchBudget{}, err
	}
	from, to := q.From, q.To
	if from.IsZero() {
		from = fy.Start
	}
	if to.IsZero() {
		to = fy.End
	}
	within := Scope{Company: q.Scope.Company, Branch: q.Scope.Branch}
	budgets, err := r.store.FindActiveBudgets(ctx, ScopeQuery{FiscalYear: fy.Name, Scope: within, Match: MatchWithin})
	if err != nil {
		return BranchBudget{}, err
	}
	accounts := make(map[string]AccountBudget)
	items := make(map[string]ItemBudget)
	for _, b := range budgets {
		lines, err := r.store.ListBudgetLines(ctx, b.ID)
		if err != nil {
			return BranchBudget{}, err
		}
		dist, err := loadDistribution(ctx, r.store, b)
		if err != nil {
			return BranchBudget{}, err
		}
		shares := Fractions(dist, fy, from, to)
		for _, line := range lines {
			if line.IsItem() {
				ib := items[line.ItemCode]
				ib.ItemCode = line.ItemCode
				ib.TotalBudget = ib.TotalBudget.Add(line.Amount)
				items[line.ItemCode] = ib
				continue
			}
			ab := accounts[line.Account]
			ab.Account = line.Account
			ab.Annual = ab.Annual.Add(line.Amount)
			ab.Shares = ab.Shares.Add(shares.Apply(line.Amount))
			accounts[line.Account] = ab
		}
	}

	out := BranchBudget{Accounts: make([]AccountBudget, 0, len(accounts)), Items: make([]ItemBudget, 0, len(items))}
	for _, ab := range accounts {
		out.Accounts = append(out.Accounts, ab)
	}
	sort.Slice(out.Accounts, func(i, j int) bool { return out.Accounts[i].Account < out.Accounts[j].Account })
	for _, ib := range items {
		if r.items != nil {
			used, err := r.items.ItemSpend(ctx, ItemQuery{Scope: Scope{Company: q.Scope.Company, Branch: q.Scope.Branch}, ItemCode: ib.ItemCode, From: fy.Start, To: fy.End})
			if err != nil {
				return BranchBudget{}, err
			}
			ib.Used = used
		}
		ib.RemainingBudget = ib.TotalBudget.Sub(ib.Used)
		out.Items = append(out.Items, ib)
	}
	sort.Slice(out.Items, func(i, j int) bool { return out.Items[i].ItemCode < out.Items[j].ItemCode })
	return out, nil
}

func (r *Resolver) fiscalYear(ctx context.Context, company, name string, date time.Time) (periods.FiscalYear, error) {
	var (
		fy  periods.FiscalYear
		err error
	)
	if name != "" {
		fy, err = r.calendar.Year(ctx, name)
	} else {
		fy, err = r.calendar.YearFor(ctx, company, date)
	}
	if err != nil {
		if errors.Is(err, periods.ErrFiscalYearNotFound) {
			return periods.FiscalYear{}, &ConfigurationError{Reason: "no fiscal year for " + company, Err: err}
		}
		return periods.FiscalYear{}, err
	}
	return fy, nil
}

// spent sums the net debit booked to account inside the window.
func (r *Resolver) spent(ctx context.Context, scope Scope, account string, from, to time.Time, excludeVoucher string) (decimal.Decimal, error) {
	if r.ledger == nil {
		return decimal.Zero, fmt.Errorf("budget: ledger store not configured")
	}
	filter := scope.Filter()
	if excludeVoucher != "" {
		filter = filter.Where(ledger.FieldVoucherNo, ledger.OpNotEq, excludeVoucher)
	}
	totals, err := r.ledger.SumEntries(ctx, account, ledger.DateRange{From: from, To: to}, filter)
	if err != nil {
		return decimal.Zero, err
	}
	return totals.Net(), nil
}
