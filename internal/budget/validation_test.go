package budget

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/ledger"
)

type branchSet map[string]bool

func (b branchSet) BelongsTo(_ context.Context, _ string, branch string) (bool, error) {
	return b[branch], nil
}

func TestDefinitionValidator(t *testing.T) {
	f := newFixture()
	f.ledger.accounts = []ledger.Account{
		{Name: expenseAccount, Company: "CompanyX"},
		{Name: "5000 - Expenses - X", Company: "CompanyX", IsGroup: true},
		{Name: "Foreign", Company: "CompanyQ"},
	}
	v := NewDefinitionValidator(f.store, f.ledger, branchSet{"BranchY": true})
	ctx := context.Background()

	ok := Definition{Budget: annualStopBudget("B-NEW"), Lines: []Line{{Account: expenseAccount, Amount: dec("10")}, {ItemCode: "LAPTOP", Amount: dec("5")}}}
	require.NoError(t, v.Validate(ctx, ok))

	bad := Definition{
		Budget: Budget{ID: "B-BAD", FiscalYear: "FY2024", Scope: Scope{Company: "CompanyX", Branch: "Nowhere"}},
		Lines: []Line{
			{Account: expenseAccount, Amount: dec("10")},
			{Account: expenseAccount, Amount: dec("10")},
			{Account: "Foreign", Amount: dec("1")},
			{Account: "5000 - Expenses - X", Amount: dec("1")},
			{Amount: dec("1")},
		},
		Distribution: evenDistribution()[:6],
	}
	err := v.Validate(ctx, bad)
	require.Error(t, err)
	require.True(t, IsConfiguration(err))
	for _, want := range []string{"repeated", "does not belong to company CompanyX", "group account", "exactly one of", "branch Nowhere", "sums to"} {
		require.Contains(t, err.Error(), want)
	}

	require.ErrorContains(t, v.Validate(ctx, Definition{Budget: annualStopBudget("B-EMPTY")}), "at least one")

	f.store.add(annualStopBudget("B-1"), Line{Account: expenseAccount, Amount: dec("1")})
	require.ErrorContains(t, v.Validate(ctx, ok), "another budget B-1")
	existing := ok
	existing.Budget.ID = "B-1"
	require.NoError(t, v.Validate(ctx, existing))
}
