package budget

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/periods"
)

// ScopeMatch says how a budget's scope is compared with a query scope.
type ScopeMatch int

const (
	// MatchCovering selects budgets whose scope covers the query scope;
	// dimensions left empty on the budget act as wildcards.
	MatchCovering ScopeMatch = iota
	// MatchExact requires every dimension to be equal.
	MatchExact
	// MatchWithin selects budgets that fall inside the query scope, so a
	// company and branch query also returns cost center or project budgets.
	MatchWithin
)

// ScopeQuery selects active budgets.
type ScopeQuery struct {
	FiscalYear string
	Scope      Scope
	Account    string
	ItemCode   string
	Match      ScopeMatch
}

// Matches applies the query semantics to an in-memory budget.
func (q ScopeQuery) Matches(b Budget) bool {
	if !b.Active() || b.FiscalYear != q.FiscalYear {
		return false
	}
	switch q.Match {
	case MatchExact:
		return b.Scope == q.Scope
	case MatchWithin:
		return q.Scope.Covers(b.Scope)
	}
	return b.Scope.Covers(q.Scope)
}

// Store is the budget master data surface.
type Store interface {
	HasActiveScheme(ctx context.Context, company, fiscalYear string) (bool, error)
	// FindActiveBudgets returns submitted budgets matching q that carry a line
	// for q.Account or q.ItemCode when either is set.
	FindActiveBudgets(ctx context.Context, q ScopeQuery) ([]Budget, error)
	ListBudgetLines(ctx context.Context, budgetID string) ([]Line, error)
	ListMonthlyDistribution(ctx context.Context, distributionID string) ([]MonthPercentage, error)
	ListAllowedSubjects(ctx context.Context, budgetID string) ([]Subject, error)
	ExceptionApproverRole(ctx context.Context, company string) (string, error)
}

// CommitmentQuery scopes open requisition and order totals.
type CommitmentQuery struct {
	Scope           Scope
	Account         string
	From            time.Time
	To              time.Time
	ExcludeDocument string
}

// CommitmentSource reports amounts committed but not yet booked.
type CommitmentSource interface {
	RequestedAmount(ctx context.Context, q CommitmentQuery) (decimal.Decimal, error)
	OrderedAmount(ctx context.Context, q CommitmentQuery) (decimal.Decimal, error)
}

// ItemQuery scopes fixed-asset item spend.
type ItemQuery struct {
	Scope           Scope
	ItemCode        string
	From            time.Time
	To              time.Time
	ExcludeDocument string
}

// ItemUsageSource sums submitted, non-cancelled purchase invoice item amounts.
type ItemUsageSource interface {
	ItemSpend(ctx context.Context, q ItemQuery) (decimal.Decimal, error)
}

// Calendar resolves fiscal years.
type Calendar interface {
	YearFor(ctx context.Context, company string, date time.Time) (periods.FiscalYear, error)
	Year(ctx context.Context, name string) (periods.FiscalYear, error)
}
