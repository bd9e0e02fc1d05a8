package consol

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/aggregate"
	"github.com/odyssey-erp/odyssey-budget/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-budget/internal/accounting/reports"
)

// Balance sheet synthetic row labels.
const (
	LabelProvisional = reports.LabelProvisional
	LabelTotalCredit = reports.LabelTotalCredit
)

func closingBalance(r aggregate.Row) decimal.Decimal {
	return r.Balance
}

// balanceSheet emits Asset, Liability and Equity sections of closing balances
// followed by the provisional profit or loss that balances them.
func balanceSheet(report *Report, bk *book) {
	report.Columns = pairColumns(bk.pairs, report.Currency, false)
	totals := make(map[ledger.RootType]Row, 3)
	for _, root := range KindBalanceSheet.rootTypes() {
		rows, total, ok := statementSection(bk, root, closingBalance)
		if !ok {
			continue
		}
		report.Rows = append(report.Rows, rows...)
		totals[root] = total
	}

	provisional := Row{Key: LabelProvisional, Label: LabelProvisional, Kind: RowTotal, Values: make(map[string]decimal.Decimal)}
	credit := Row{Key: LabelTotalCredit, Label: LabelTotalCredit, Kind: RowTotal, Values: make(map[string]decimal.Decimal)}
	nonZero := false
	for _, col := range report.Columns {
		asset := totals[ledger.RootAsset].Value(col.Key)
		liabEquity := totals[ledger.RootLiability].Value(col.Key).Add(totals[ledger.RootEquity].Value(col.Key))
		diff := asset.Sub(liabEquity)
		provisional.Values[col.Key] = diff
		credit.Values[col.Key] = liabEquity.Add(diff)
		if !aggregate.IsZero(diff) {
			nonZero = true
		}
	}
	if nonZero {
		report.Rows = append(report.Rows, provisional, credit)
	}
	report.Summary = []SummaryItem{
		{Label: "Total Asset", Value: totals[ledger.RootAsset].Value(TotalColumn)},
		{Label: "Total Liability", Value: totals[ledger.RootLiability].Value(TotalColumn)},
		{Label: "Total Equity", Value: totals[ledger.RootEquity].Value(TotalColumn)},
		{Label: "Provisional Profit / Loss", Value: provisional.Value(TotalColumn)},
	}
}

// statementSection renders one root type: account rows, the section total
// summing top-level rows and a blank separator. ok is false when the section
// has no rows.
func statementSection(bk *book, root ledger.RootType, figure func(aggregate.Row) decimal.Decimal) ([]Row, Row, bool) {
	lines := bk.section(root)
	if len(lines) == 0 {
		return nil, Row{}, false
	}
	rows := make([]Row, 0, len(lines)+2)
	for _, ln := range lines {
		rows = append(rows, bk.accountRow(ln, figure))
	}
	total := sumTopLevel(reports.SectionTotalLabel(root), rows)
	total.RootType = root
	rows = append(rows, total, blankRow())
	return rows, total, true
}

// pairColumns lists one column per pair, budget columns when requested, and the total.
func pairColumns(pairs []pair, currency string, withBudget bool) []Column {
	cols := make([]Column, 0, len(pairs)*3+1)
	for _, p := range pairs {
		name := p.Branch
		if name == "" {
			name = p.Company
		}
		cols = append(cols, Column{Key: p.column(), Label: p.label(), Kind: ColumnActual, Company: p.Company, Branch: p.Branch, Currency: p.Currency})
		if withBudget {
			cols = append(cols,
				Column{Key: p.column() + "_estimated", Label: "Estimated " + p.label(), Kind: ColumnEstimated, Company: p.Company, Branch: p.Branch, Currency: p.Currency},
				Column{Key: p.column() + "_utilized", Label: "Utilized " + name + " (%)", Kind: ColumnUtilized, Company: p.Company, Branch: p.Branch},
			)
		}
	}
	label := "Total"
	if currency != "" {
		label += " - (" + currency + ")"
	}
	return append(cols, Column{Key: TotalColumn, Label: label, Kind: ColumnTotal, Currency: currency})
}
