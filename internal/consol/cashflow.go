package consol

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/ledger"
	"github.com/odyssey-erp/odyssey-budget/internal/accounting/reports"
)

// LabelNetChangeInCash closes the cash flow statement.
const LabelNetChangeInCash = reports.LabelNetChangeInCash

// cashFlow starts operations from the period's net profit and adds the
// credit-minus-debit movement of each classified account type.
func cashFlow(report *Report, bk *book) {
	report.Columns = pairColumns(bk.pairs, report.Currency, false)
	income, _, _ := statementSection(bk, ledger.RootIncome, periodMovement)
	expense, _, _ := statementSection(bk, ledger.RootExpense, periodMovement)
	net := netProfit(bk.pairs, sumTopLevel("", income), sumTopLevel("", expense))

	sections := reports.CashFlowSections()
	var all []Row
	summary := make([]SummaryItem, 0, len(sections)+1)
	for i, sec := range sections {
		report.Rows = append(report.Rows, Row{Key: sec.Header, Label: sec.Header, Kind: RowHeader})
		var data []Row
		if i == 0 {
			profit := net
			profit.Kind = RowAccount
			profit.ParentKey = sec.Header
			profit.Indent = 1
			data = append(data, profit)
		}
		for _, acc := range sec.Lines {
			row := Row{Key: acc.Label, Label: acc.Label, ParentKey: sec.Header, Indent: 1, AccountType: acc.AccountType, Kind: RowAccount, Values: bk.accountTypeMovement(acc.AccountType)}
			data = append(data, row)
		}
		footer := sumChildren(sec.Footer, data)
		report.Rows = append(report.Rows, data...)
		report.Rows = append(report.Rows, footer, blankRow())
		summary = append(summary, SummaryItem{Label: sec.Footer, Value: footer.Value(TotalColumn)})
		all = append(all, data...)
	}
	change := sumChildren(LabelNetChangeInCash, all)
	report.Rows = append(report.Rows, change, blankRow())
	report.Summary = append(summary, SummaryItem{Label: LabelNetChangeInCash, Value: change.Value(TotalColumn)})
}

// accountTypeMovement sums the cash movement of the ledger accounts of one
// type per pair.
func (bk *book) accountTypeMovement(accountType string) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(bk.pairs)+1)
	total := decimal.Zero
	for _, p := range bk.pairs {
		col := p.column()
		sum := decimal.Zero
		for _, ln := range bk.lines {
			if ln.group || ln.accountType != accountType {
				continue
			}
			r := ln.actual[col]
			sum = sum.Add(reports.CashMovement(accountType, r.Debit, r.Credit))
		}
		out[col] = sum
		total = total.Add(sum)
	}
	out[TotalColumn] = total
	return out
}

// sumChildren adds every row that hangs under a section header.
func sumChildren(label string, rows []Row) Row {
	total := Row{Key: label, Label: label, Kind: RowTotal, Values: make(map[string]decimal.Decimal)}
	for _, r := range rows {
		if r.ParentKey == "" {
			continue
		}
		for k, v := range r.Values {
			total.add(k, v)
		}
	}
	return total
}
