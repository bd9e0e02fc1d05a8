package budget

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Formatter renders budget messages.
type Formatter struct {
	printer *message.Printer
}

// NewFormatter builds a formatter for tag.
func NewFormatter(tag language.Tag) *Formatter {
	return &Formatter{printer: message.NewPrinter(tag)}
}

// Money formats an amount with thousands grouping and two decimals, prefixed
// by currency when set.
func (f *Formatter) Money(amount decimal.Decimal, currency string) string {
	v, _ := amount.Round(2).Float64()
	if currency == "" {
		return f.printer.Sprintf("%.2f", v)
	}
	return f.printer.Sprintf("%s %.2f", currency, v)
}

func (f *Formatter) exceeded(c Check, againstLabel, against, currency string) string {
	tense := "will be"
	if c.Actual.GreaterThan(c.BudgetAmount) {
		tense = "is already"
	}
	subject := c.Account
	label := "Account"
	if c.Kind == CheckItem {
		subject = c.ItemCode
		label = "Item"
	}
	msg := f.printer.Sprintf("%s Budget for %s %s against %s %s is %s. It %s exceed by %s",
		string(c.Kind), label, subject, againstLabel, against,
		f.Money(c.BudgetAmount, currency), tense, f.Money(c.Diff, currency))
	return msg + f.printer.Sprintf(" (actual %s, requested %s, ordered %s, this document %s)",
		f.Money(c.Actual, currency), f.Money(c.Requested, currency), f.Money(c.Ordered, currency), f.Money(c.Pending, currency))
}
