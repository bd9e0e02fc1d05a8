package consol

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/aggregate"
	"github.com/odyssey-erp/odyssey-budget/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-budget/internal/accounting/reports"
)

// LabelNetProfit is the profit and loss closing row.
const LabelNetProfit = reports.LabelNetProfit

func periodMovement(r aggregate.Row) decimal.Decimal {
	return r.Movement
}

// profitAndLoss emits Income and Expense sections of period movements, with
// estimated and utilized budget columns per pair, then the net profit.
func profitAndLoss(report *Report, bk *book) {
	report.Columns = pairColumns(bk.pairs, report.Currency, true)
	totals := make(map[ledger.RootType]Row, 2)
	for _, root := range KindProfitAndLoss.rootTypes() {
		lines := bk.section(root)
		if len(lines) == 0 {
			continue
		}
		rows := make([]Row, 0, len(lines)+2)
		for _, ln := range lines {
			row := bk.accountRow(ln, periodMovement)
			for _, p := range bk.pairs {
				estimated := ln.budgets[p.column()].ForPeriod
				row.Values[p.column()+"_estimated"] = estimated
				row.Values[p.column()+"_utilized"] = reports.Utilization(row.Values[p.column()], estimated)
			}
			rows = append(rows, row)
		}
		total := sumTopLevel(reports.SectionTotalLabel(root), rows)
		total.RootType = root
		for _, p := range bk.pairs {
			total.Values[p.column()+"_utilized"] = reports.Utilization(total.Value(p.column()), total.Value(p.column()+"_estimated"))
		}
		report.Rows = append(report.Rows, rows...)
		report.Rows = append(report.Rows, total, blankRow())
		totals[root] = total
	}

	net := netProfit(bk.pairs, totals[ledger.RootIncome], totals[ledger.RootExpense])
	if len(totals) > 0 {
		report.Rows = append(report.Rows, net)
	}
	report.Summary = []SummaryItem{
		{Label: "Total Income", Value: totals[ledger.RootIncome].Value(TotalColumn)},
		{Label: "Total Expense", Value: totals[ledger.RootExpense].Value(TotalColumn)},
		{Label: "Net Profit", Value: net.Value(TotalColumn)},
	}
}

// netProfit subtracts the expense total from the income total per column.
func netProfit(pairs []pair, income, expense Row) Row {
	net := Row{Key: LabelNetProfit, Label: LabelNetProfit, Kind: RowTotal, Values: make(map[string]decimal.Decimal, len(pairs)+1)}
	for _, p := range pairs {
		net.Values[p.column()] = income.Value(p.column()).Sub(expense.Value(p.column()))
	}
	net.Values[TotalColumn] = income.Value(TotalColumn).Sub(expense.Value(TotalColumn))
	return net
}
