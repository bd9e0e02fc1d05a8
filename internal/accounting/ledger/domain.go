package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RootType classifies an account into one of the five statement roots.
type RootType string

const (
	RootAsset     RootType = "Asset"
	RootLiability RootType = "Liability"
	RootEquity    RootType = "Equity"
	RootIncome    RootType = "Income"
	RootExpense   RootType = "Expense"
)

// RootTypes lists every root in statement order.
var RootTypes = []RootType{RootAsset, RootLiability, RootEquity, RootIncome, RootExpense}

// CreditNormal reports whether balances of the root are presented credit-positive.
func (r RootType) CreditNormal() bool {
	switch r {
	case RootLiability, RootEquity, RootIncome:
		return true
	}
	return false
}

// Valid reports whether r is a known root type.
func (r RootType) Valid() bool {
	for _, rt := range RootTypes {
		if rt == r {
			return true
		}
	}
	return false
}

// ParseRootType normalises free-form input into a RootType.
func ParseRootType(raw string) (RootType, error) {
	for _, rt := range RootTypes {
		if strings.EqualFold(string(rt), strings.TrimSpace(raw)) {
			return rt, nil
		}
	}
	return "", fmt.Errorf("ledger: unknown root type %q", raw)
}

// Account is one chart-of-accounts node of a single company.
type Account struct {
	Name          string
	AccountName   string
	AccountNumber string
	ParentAccount string
	Company       string
	RootType      RootType
	AccountType   string
	IsGroup       bool
	Currency      string
}

// LogicalKey identifies the account across companies.
func (a Account) LogicalKey() string {
	return LogicalKey(a.AccountNumber, a.AccountName)
}

// LogicalKey joins number and name the way account labels are rendered.
func LogicalKey(number, name string) string {
	number = strings.TrimSpace(number)
	name = strings.TrimSpace(name)
	if number == "" {
		return name
	}
	return number + " - " + name
}

// DocStatusSubmitted marks an entry as posted.
const DocStatusSubmitted = 1

// Entry is a single posted debit/credit line.
type Entry struct {
	ID          string
	Account     string
	Company     string
	Branch      string
	CostCenter  string
	Project     string
	Department  string
	ItemCode    string
	PostingDate time.Time
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	FiscalYear  string
	VoucherType string
	VoucherNo   string
	IsCancelled bool
	DocStatus   int
	Currency    string
}

// Qualifies reports whether the entry participates in any aggregate.
func (e Entry) Qualifies() bool {
	return e.DocStatus == DocStatusSubmitted && !e.IsCancelled
}

// VoucherPeriodClosing is the voucher type of year-end closing entries.
const VoucherPeriodClosing = "Period Closing Voucher"

// DateRange is an inclusive window. A zero From means unbounded.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the window.
func (r DateRange) Contains(t time.Time) bool {
	if !r.From.IsZero() && t.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && t.After(r.To) {
		return false
	}
	return true
}

// Totals carries debit and credit sums.
type Totals struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// Net returns debit minus credit.
func (t Totals) Net() decimal.Decimal {
	return t.Debit.Sub(t.Credit)
}

// Add accumulates an entry into the totals.
func (t Totals) Add(e Entry) Totals {
	return Totals{Debit: t.Debit.Add(e.Debit), Credit: t.Credit.Add(e.Credit)}
}
