package budget

import (
	"context"
	"errors"
	"fmt"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/ledger"
)

// Definition is a budget with its lines, presented for submission.
type Definition struct {
	Budget       Budget
	Lines        []Line
	Distribution []MonthPercentage
}

// BranchChecker reports branch ownership.
type BranchChecker interface {
	BelongsTo(ctx context.Context, company, branch string) (bool, error)
}

// DefinitionValidator checks budgets before they become active.
type DefinitionValidator struct {
	store    Store
	ledger   ledger.Store
	branches BranchChecker
}

// NewDefinitionValidator wires a validator. A nil branch checker skips the
// branch ownership check.
func NewDefinitionValidator(store Store, ledgerStore ledger.Store, branches BranchChecker) *DefinitionValidator {
	return &DefinitionValidator{store: store, ledger: ledgerStore, branches: branches}
}

// Validate returns every problem found in def joined into one error. Each
// problem is a *ConfigurationError.
func (v *DefinitionValidator) Validate(ctx context.Context, def Definition) error {
	if v == nil || v.store == nil || v.ledger == nil {
		return errors.New("budget definition validator not initialised")
	}
	b := def.Budget
	if b.Scope.Company == "" {
		return configError("budget company is required")
	}
	if b.FiscalYear == "" {
		return configError("budget fiscal year is required")
	}

	var problems []error
	problems = append(problems, checkLines(def.Lines)...)
	if err := ValidateDistribution(def.Distribution); err != nil {
		problems = append(problems, err)
	}

	accounts, err := v.ledger.ListAccounts(ctx, ledger.CompanyFilter{Companies: []string{b.Scope.Company}})
	if err != nil {
		return fmt.Errorf("load accounts of %s: %w", b.Scope.Company, err)
	}
	chart := make(map[string]ledger.Account, len(accounts))
	for _, a := range accounts {
		chart[a.Name] = a
	}
	for _, l := range def.Lines {
		if l.Account == "" {
			continue
		}
		acc, ok := chart[l.Account]
		switch {
		case !ok:
			problems = append(problems, configError("account %s does not belong to company %s", l.Account, b.Scope.Company))
		case acc.IsGroup:
			problems = append(problems, configError("budget cannot be assigned against group account %s", l.Account))
		}
	}

	if b.Scope.Branch != "" && v.branches != nil {
		ok, err := v.branches.BelongsTo(ctx, b.Scope.Company, b.Scope.Branch)
		if err != nil {
			return fmt.Errorf("check branch %s: %w", b.Scope.Branch, err)
		}
		if !ok {
			problems = append(problems, configError("branch %s does not belong to company %s", b.Scope.Branch, b.Scope.Company))
		}
	}

	others, err := v.store.FindActiveBudgets(ctx, ScopeQuery{FiscalYear: b.FiscalYear, Scope: b.Scope, Match: MatchExact})
	if err != nil {
		return err
	}
	for _, other := range others {
		if other.ID == b.ID {
			continue
		}
		problems = append(problems, configError("another budget %s already exists for %s", other.ID, b.Scope.Key(b.FiscalYear)))
	}
	return errors.Join(problems...)
}

func checkLines(lines []Line) []error {
	if len(lines) == 0 {
		return []error{configError("budget needs at least one account or item line")}
	}
	var problems []error
	accounts := make(map[string]bool, len(lines))
	items := make(map[string]bool)
	for i, l := range lines {
		row := i + 1
		if (l.Account == "") == (l.ItemCode == "") {
			problems = append(problems, configError("row %d must set exactly one of account or item", row))
			continue
		}
		if l.Amount.IsNegative() {
			problems = append(problems, configError("row %d has a negative budget amount", row))
		}
		if l.Account != "" {
			if accounts[l.Account] {
				problems = append(problems, configError("account %s is repeated at row %d", l.Account, row))
			}
			accounts[l.Account] = true
			continue
		}
		if items[l.ItemCode] {
			problems = append(problems, configError("item %s is repeated at row %d", l.ItemCode, row))
		}
		items[l.ItemCode] = true
	}
	return problems
}
