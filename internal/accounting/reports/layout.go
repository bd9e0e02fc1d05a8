// Package reports describes the layout of the financial statements: which
// roots each statement shows, how section totals are labelled and how the
// cash flow statement classifies account types.
package reports

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/ledger"
)

// Synthetic row labels.
const (
	LabelProvisional     = "Provisional Profit / Loss (Credit)"
	LabelTotalCredit     = "Total (Credit)"
	LabelNetProfit       = "Profit for the year"
	LabelNetChangeInCash = "Net Change in Cash"
	LabelTotal           = "Total"
)

// AccountTypeDepreciation is added back to operating cash flow.
const AccountTypeDepreciation = "Depreciation"

var hundred = decimal.NewFromInt(100)

// BalanceSheetRoots are the sections of the balance sheet in display order.
func BalanceSheetRoots() []ledger.RootType {
	return []ledger.RootType{ledger.RootAsset, ledger.RootLiability, ledger.RootEquity}
}

// ProfitAndLossRoots are the sections of the profit and loss statement.
func ProfitAndLossRoots() []ledger.RootType {
	return []ledger.RootType{ledger.RootIncome, ledger.RootExpense}
}

// BalanceMustBe names the side a root's balance is presented on.
func BalanceMustBe(root ledger.RootType) string {
	if root.CreditNormal() {
		return "Credit"
	}
	return "Debit"
}

// SectionTotalLabel labels the total row closing a root section, for
// example "Total Asset (Debit)".
func SectionTotalLabel(root ledger.RootType) string {
	return "Total " + string(root) + " (" + BalanceMustBe(root) + ")"
}

// Utilization is actual over estimated in percent rounded to two places,
// zero without an estimate.
func Utilization(actual, estimated decimal.Decimal) decimal.Decimal {
	if estimated.IsZero() {
		return decimal.Zero
	}
	return actual.Mul(hundred).DivRound(estimated, 2)
}

// CashFlowLine is one classified account type inside a cash flow section.
type CashFlowLine struct {
	AccountType string
	Label       string
}

// CashFlowSection is a header, its lines and the footer that sums them.
type CashFlowSection struct {
	Header string
	Footer string
	Lines  []CashFlowLine
}

// CashFlowSections maps account types onto the indirect-method sections.
// Operations additionally opens with the period's net profit.
func CashFlowSections() []CashFlowSection {
	return []CashFlowSection{
		{
			Header: "Cash Flow from Operations",
			Footer: "Net Cash from Operations",
			Lines: []CashFlowLine{
				{AccountType: AccountTypeDepreciation, Label: "Depreciation"},
				{AccountType: "Receivable", Label: "Net Change in Accounts Receivable"},
				{AccountType: "Payable", Label: "Net Change in Accounts Payable"},
				{AccountType: "Stock", Label: "Net Change in Inventory"},
			},
		},
		{
			Header: "Cash Flow from Investing",
			Footer: "Net Cash from Investing",
			Lines:  []CashFlowLine{{AccountType: "Fixed Asset", Label: "Net Change in Fixed Asset"}},
		},
		{
			Header: "Cash Flow from Financing",
			Footer: "Net Cash from Financing",
			Lines:  []CashFlowLine{{AccountType: "Equity", Label: "Net Change in Equity"}},
		},
	}
}

// CashMovement is the cash effect of an account type's movement: credit
// minus debit, with depreciation added back.
func CashMovement(accountType string, debit, credit decimal.Decimal) decimal.Decimal {
	m := credit.Sub(debit)
	if accountType == AccountTypeDepreciation {
		return m.Neg()
	}
	return m
}
