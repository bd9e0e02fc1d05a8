// Package fx converts ledger amounts into a presentation currency.
package fx

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the average and closing rate of a currency pair for one month.
type Quote struct {
	Average decimal.Decimal `json:"average"`
	Closing decimal.Decimal `json:"closing"`
}

// Rate returns the rate for method.
func (q Quote) Rate(method Method) decimal.Decimal {
	if method == MethodAverage {
		return q.Average
	}
	return q.Closing
}

// Pair builds the lookup key of a conversion from one currency into another.
func Pair(from, to string) string {
	return normalise(from) + normalise(to)
}

func normalise(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// MissingRateError reports a conversion without a usable quote.
type MissingRateError struct {
	Pair   string
	Method Method
	AsOf   time.Time
}

func (e *MissingRateError) Error() string {
	if e.AsOf.IsZero() {
		return fmt.Sprintf("fx: no %s rate for %s", strings.ToLower(string(e.Method)), e.Pair)
	}
	return fmt.Sprintf("fx: no %s rate for %s as of %s", strings.ToLower(string(e.Method)), e.Pair, e.AsOf.Format("2006-01"))
}

// Converter multiplies amounts by quotes loaded for a single period.
type Converter struct {
	policy Policy
	quotes map[string]Quote
	method Method
}

// NewConverter constructs a converter over quotes keyed by Pair. Convert uses
// the balance sheet method until narrowed with ProfitLoss.
func NewConverter(policy Policy, quotes map[string]Quote) *Converter {
	normalised := make(map[string]Quote, len(quotes))
	for pair, q := range quotes {
		normalised[normalise(pair)] = q
	}
	return &Converter{policy: policy, quotes: normalised, method: policy.balanceSheet()}
}

// ProfitLoss returns a converter applying the P&L method.
func (c *Converter) ProfitLoss() *Converter {
	return c.with(c.policy.profitLoss())
}

// BalanceSheet returns a converter applying the balance sheet method.
func (c *Converter) BalanceSheet() *Converter {
	return c.with(c.policy.balanceSheet())
}

func (c *Converter) with(method Method) *Converter {
	cp := *c
	cp.method = method
	return &cp
}

// Convert turns amount in from into to. Same-currency conversions are the
// identity; a missing direct quote falls back to the inverse pair.
func (c *Converter) Convert(amount decimal.Decimal, from, to string, asOf time.Time) (decimal.Decimal, error) {
	from, to = normalise(from), normalise(to)
	if from == "" || to == "" || from == to {
		return amount, nil
	}
	rate, err := c.rate(from, to)
	if err != nil {
		if mre, ok := err.(*MissingRateError); ok {
			mre.AsOf = asOf
		}
		return decimal.Zero, err
	}
	return amount.Mul(rate), nil
}

func (c *Converter) rate(from, to string) (decimal.Decimal, error) {
	if c != nil {
		if q, ok := c.quotes[from+to]; ok && q.Rate(c.method).IsPositive() {
			return q.Rate(c.method), nil
		}
		if q, ok := c.quotes[to+from]; ok && q.Rate(c.method).IsPositive() {
			return decimal.NewFromInt(1).DivRound(q.Rate(c.method), 12), nil
		}
	}
	method := MethodClosing
	if c != nil {
		method = c.method
	}
	return decimal.Zero, &MissingRateError{Pair: from + to, Method: method}
}

// Line is an amount booked in a local currency together with its previous
// group-currency translation.
type Line struct {
	AccountCode   string
	LocalCurrency string
	LocalAmount   decimal.Decimal
	GroupAmount   decimal.Decimal
}

// ConvertProfitLoss translates lines at the P&L rate and returns the
// translation difference against the previous group amounts.
func (c *Converter) ConvertProfitLoss(input []Line) ([]Line, decimal.Decimal, error) {
	return c.ProfitLoss().translate(input)
}

// ConvertBalanceSheet translates lines at the balance sheet rate.
func (c *Converter) ConvertBalanceSheet(input []Line) ([]Line, decimal.Decimal, error) {
	return c.BalanceSheet().translate(input)
}

func (c *Converter) translate(input []Line) ([]Line, decimal.Decimal, error) {
	out := make([]Line, len(input))
	delta := decimal.Zero
	for i, line := range input {
		converted, err := c.Convert(line.LocalAmount, line.LocalCurrency, c.policy.ReportingCurrency, time.Time{})
		if err != nil {
			return nil, decimal.Zero, err
		}
		delta = delta.Add(converted.Sub(line.GroupAmount))
		line.GroupAmount = converted
		out[i] = line
	}
	return out, delta, nil
}
