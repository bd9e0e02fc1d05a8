package consol

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/reports"
)

// LabelTotal closes the trial balance account rows.
const LabelTotal = reports.LabelTotal

var trialBalanceColumns = []Column{
	{Key: ColBudgetOpening, Label: "Budget- Opening", Kind: ColumnEstimated},
	{Key: ColOpeningDebit, Label: "Opening (Dr)", Kind: ColumnFigure},
	{Key: ColOpeningCredit, Label: "Opening (Cr)", Kind: ColumnFigure},
	{Key: ColDebit, Label: "Debit", Kind: ColumnFigure},
	{Key: ColBudgetForPeriod, Label: "Budget- For Period", Kind: ColumnEstimated},
	{Key: ColCredit, Label: "Credit", Kind: ColumnFigure},
	{Key: ColClosingDebit, Label: "Closing (Dr)", Kind: ColumnFigure},
	{Key: ColClosingCredit, Label: "Closing (Cr)", Kind: ColumnFigure},
	{Key: ColBudgetYearToDate, Label: "Budget- Year to Date", Kind: ColumnEstimated},
	{Key: ColItemTotal, Label: "Total Budget", Kind: ColumnEstimated},
	{Key: ColItemUsed, Label: "Used Budget", Kind: ColumnFigure},
	{Key: ColItemRemaining, Label: "Remaining Budget", Kind: ColumnEstimated},
}

// trialBalance sums the six ledger figures of every logical account across
// pairs next to its apportioned budget, then lists item budgets.
func trialBalance(report *Report, bk *book) {
	report.Columns = make([]Column, len(trialBalanceColumns))
	for i, c := range trialBalanceColumns {
		c.Currency = report.Currency
		report.Columns[i] = c
	}
	rows := make([]Row, 0, len(bk.order)+len(bk.items)+3)
	for _, ln := range bk.order {
		rows = append(rows, Row{
			Key:         ln.key,
			Label:       ln.key,
			ParentKey:   ln.parent,
			Indent:      ln.indent,
			RootType:    ln.root,
			AccountType: ln.accountType,
			Kind:        RowAccount,
			Placeholder: ln.placeholder,
			Values:      trialBalanceValues(ln),
		})
	}
	total := sumTopLevel(LabelTotal, rows)
	rows = append(rows, total)

	codes := make([]string, 0, len(bk.items))
	for code := range bk.items {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	if len(codes) > 0 {
		rows = append(rows, blankRow())
	}
	for _, code := range codes {
		ib := bk.items[code]
		rows = append(rows, Row{
			Key:   "item:" + code,
			Label: code,
			Kind:  RowItem,
			Values: map[string]decimal.Decimal{
				ColItemTotal:     ib.TotalBudget,
				ColItemUsed:      ib.Used,
				ColItemRemaining: ib.RemainingBudget,
			},
		})
	}
	report.Rows = rows
	report.Summary = []SummaryItem{
		{Label: "Total Debit", Value: total.Value(ColDebit)},
		{Label: "Total Credit", Value: total.Value(ColCredit)},
		{Label: "Budget Year to Date", Value: total.Value(ColBudgetYearToDate)},
	}
}

func trialBalanceValues(ln *line) map[string]decimal.Decimal {
	v := ln.values
	b := ln.budget
	return map[string]decimal.Decimal{
		ColOpeningDebit:     v.OpeningDebit,
		ColOpeningCredit:    v.OpeningCredit,
		ColDebit:            v.Debit,
		ColCredit:           v.Credit,
		ColClosingDebit:     v.ClosingDebit,
		ColClosingCredit:    v.ClosingCredit,
		ColBudgetOpening:    b.Opening,
		ColBudgetForPeriod:  b.ForPeriod,
		ColBudgetYearToDate: b.YearToDate,
	}
}
