package consol

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-budget/internal/accounting/reports"
)

// Kind selects the statement produced by the builder.
type Kind string

const (
	KindBalanceSheet  Kind = "balance_sheet"
	KindProfitAndLoss Kind = "profit_and_loss"
	KindCashFlow      Kind = "cash_flow"
	KindTrialBalance  Kind = "trial_balance"
)

// Kinds lists every supported statement.
var Kinds = []Kind{KindBalanceSheet, KindProfitAndLoss, KindCashFlow, KindTrialBalance}

// ParseKind accepts the canonical names and a few short aliases.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "balance_sheet", "bs", "balance sheet":
		return KindBalanceSheet, nil
	case "profit_and_loss", "pl", "profit and loss", "profit and loss statement":
		return KindProfitAndLoss, nil
	case "cash_flow", "cf", "cash flow":
		return KindCashFlow, nil
	case "trial_balance", "tb", "trial balance":
		return KindTrialBalance, nil
	}
	return "", fmt.Errorf("consol: unknown report %q", raw)
}

func (k Kind) rootTypes() []ledger.RootType {
	switch k {
	case KindBalanceSheet:
		return reports.BalanceSheetRoots()
	case KindProfitAndLoss:
		return reports.ProfitAndLossRoots()
	}
	return ledger.RootTypes
}

// ErrInvalidFilters wraps filter validation failures.
var ErrInvalidFilters = errors.New("consol: invalid filters")

// Filters scopes one consolidated report.
type Filters struct {
	Company                   string    `json:"company" validate:"required"`
	FiscalYear                string    `json:"fiscal_year"`
	From                      time.Time `json:"from"`
	To                        time.Time `json:"to"`
	Branches                  []string  `json:"branches,omitempty"`
	CostCenter                string    `json:"cost_center,omitempty"`
	Project                   string    `json:"project,omitempty"`
	Department                string    `json:"department,omitempty"`
	PresentationCurrency      string    `json:"presentation_currency,omitempty"`
	ShowZeroValues            bool      `json:"show_zero_values"`
	AccumulatedInGroupCompany bool      `json:"accumulated_in_group_company"`
}

// Validate checks the filter combination.
func (f Filters) Validate() error {
	if strings.TrimSpace(f.Company) == "" {
		return fmt.Errorf("%w: company is required", ErrInvalidFilters)
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.From.After(f.To) {
		return fmt.Errorf("%w: from %s after to %s", ErrInvalidFilters, f.From.Format(time.DateOnly), f.To.Format(time.DateOnly))
	}
	if f.FiscalYear == "" && f.To.IsZero() {
		return fmt.Errorf("%w: fiscal year or end date is required", ErrInvalidFilters)
	}
	return nil
}

// CacheKey renders the filters as a stable cache key fragment.
func (f Filters) CacheKey() string {
	branches := append([]string(nil), f.Branches...)
	sort.Strings(branches)
	date := func(t time.Time) string {
		if t.IsZero() {
			return "-"
		}
		return t.Format(time.DateOnly)
	}
	return strings.Join([]string{
		f.Company, f.FiscalYear, date(f.From), date(f.To),
		strings.Join(branches, ","), f.CostCenter, f.Project, f.Department,
		strings.ToUpper(f.PresentationCurrency),
		fmt.Sprintf("%t", f.ShowZeroValues), fmt.Sprintf("%t", f.AccumulatedInGroupCompany),
	}, ":")
}

// ColumnKind distinguishes figure columns.
type ColumnKind string

const (
	ColumnActual    ColumnKind = "actual"
	ColumnEstimated ColumnKind = "estimated"
	ColumnUtilized  ColumnKind = "utilized"
	ColumnTotal     ColumnKind = "total"
	ColumnFigure    ColumnKind = "figure"
)

// TotalColumn is the key of the consolidated total column.
const TotalColumn = "total"

// Trial balance column keys.
const (
	ColOpeningDebit     = "opening_debit"
	ColOpeningCredit    = "opening_credit"
	ColDebit            = "debit"
	ColCredit           = "credit"
	ColClosingDebit     = "closing_debit"
	ColClosingCredit    = "closing_credit"
	ColBudgetOpening    = "opening_allocated_budget_amount"
	ColBudgetForPeriod  = "budget_allocated_budget_amount"
	ColBudgetYearToDate = "till_date_allocated_budget_amount"
	ColItemTotal        = "total_budget"
	ColItemUsed         = "used_budget"
	ColItemRemaining    = "remaining_budget"
)

// Column describes one figure column.
type Column struct {
	Key      string     `json:"key"`
	Label    string     `json:"label"`
	Kind     ColumnKind `json:"kind"`
	Company  string     `json:"company,omitempty"`
	Branch   string     `json:"branch,omitempty"`
	Currency string     `json:"currency,omitempty"`
}

// BranchColumn names the actual column of a company branch.
func BranchColumn(company, branch string) string {
	return branch + "_" + company
}

// RowKind distinguishes account rows from synthesized ones.
type RowKind string

const (
	RowAccount RowKind = "account"
	RowHeader  RowKind = "header"
	RowTotal   RowKind = "total"
	RowBlank   RowKind = "blank"
	RowItem    RowKind = "item"
)

// Row is one line of the consolidated report.
type Row struct {
	Key         string                     `json:"key"`
	Label       string                     `json:"label"`
	ParentKey   string                     `json:"parent_key,omitempty"`
	Indent      int                        `json:"indent"`
	RootType    ledger.RootType            `json:"root_type,omitempty"`
	AccountType string                     `json:"account_type,omitempty"`
	Kind        RowKind                    `json:"kind"`
	Placeholder bool                       `json:"placeholder,omitempty"`
	Values      map[string]decimal.Decimal `json:"values,omitempty"`
}

// Value returns the figure of column key, zero when absent.
func (r Row) Value(key string) decimal.Decimal {
	return r.Values[key]
}

func (r *Row) add(key string, v decimal.Decimal) {
	if r.Values == nil {
		r.Values = make(map[string]decimal.Decimal)
	}
	r.Values[key] = r.Values[key].Add(v)
}

// SummaryItem is one headline figure.
type SummaryItem struct {
	Label string          `json:"label"`
	Value decimal.Decimal `json:"value"`
}

// Report is a consolidated statement.
type Report struct {
	Kind        Kind          `json:"kind"`
	Filters     Filters       `json:"filters"`
	FiscalYear  string        `json:"fiscal_year"`
	From        time.Time     `json:"from"`
	To          time.Time     `json:"to"`
	Currency    string        `json:"currency,omitempty"`
	Columns     []Column      `json:"columns"`
	Rows        []Row         `json:"rows"`
	Summary     []SummaryItem `json:"summary"`
	Warnings    []string      `json:"warnings,omitempty"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// Find returns the first row with label.
func (r Report) Find(label string) (Row, bool) {
	for _, row := range r.Rows {
		if row.Label == label {
			return row, true
		}
	}
	return Row{}, false
}
