package budget

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/periods"
)

var (
	hundred           = decimal.NewFromInt(100)
	distributionSlack = decimal.RequireFromString("0.01")
)

// Apportionment holds the opening, for-period and year-to-date shares of an
// annual budget, expressed as percentages.
type Apportionment struct {
	Opening    decimal.Decimal `json:"opening"`
	ForPeriod  decimal.Decimal `json:"for_period"`
	YearToDate decimal.Decimal `json:"year_to_date"`
}

// Amounts are an Apportionment applied to a budget amount.
type Amounts struct {
	Opening    decimal.Decimal `json:"opening"`
	ForPeriod  decimal.Decimal `json:"for_period"`
	YearToDate decimal.Decimal `json:"year_to_date"`
}

// Add sums two Amounts.
func (a Amounts) Add(o Amounts) Amounts {
	return Amounts{
		Opening:    a.Opening.Add(o.Opening),
		ForPeriod:  a.ForPeriod.Add(o.ForPeriod),
		YearToDate: a.YearToDate.Add(o.YearToDate),
	}
}

// Apply scales amount by each share.
func (a Apportionment) Apply(amount decimal.Decimal) Amounts {
	return Amounts{
		Opening:    amount.Mul(a.Opening).Div(hundred),
		ForPeriod:  amount.Mul(a.ForPeriod).Div(hundred),
		YearToDate: amount.Mul(a.YearToDate).Div(hundred),
	}
}

// Apportion returns the share, in percent, of the annual budget attributable
// to the fiscal months touched by [from, to]. A budget without distribution
// is attributed in full to any window.
func Apportion(dist []MonthPercentage, fy periods.FiscalYear, from, to time.Time) decimal.Decimal {
	if len(dist) == 0 {
		return hundred
	}
	if to.Before(from) {
		return decimal.Zero
	}
	byMonth := make(map[time.Month]decimal.Decimal, len(dist))
	for _, row := range dist {
		byMonth[row.Month] = byMonth[row.Month].Add(row.Percentage)
	}
	first := periods.MonthStart(from)
	last := periods.MonthStart(to)
	total := decimal.Zero
	for _, m := range fy.Months() {
		if m.Before(first) || m.After(last) {
			continue
		}
		total = total.Add(byMonth[m.Month()])
	}
	return total
}

// Fractions splits the fiscal year around [periodStart, periodEnd].
func Fractions(dist []MonthPercentage, fy periods.FiscalYear, periodStart, periodEnd time.Time) Apportionment {
	if len(dist) == 0 {
		return Apportionment{Opening: hundred, ForPeriod: hundred, YearToDate: hundred}
	}
	opening := decimal.Zero
	if periods.MonthStart(periodStart).After(periods.MonthStart(fy.Start)) {
		opening = Apportion(dist, fy, fy.Start, periods.MonthStart(periodStart).AddDate(0, 0, -1))
	}
	return Apportionment{
		Opening:    opening,
		ForPeriod:  Apportion(dist, fy, periodStart, periodEnd),
		YearToDate: Apportion(dist, fy, fy.Start, periodEnd),
	}
}

// ValidateDistribution checks a monthly distribution sums to 100 across
// distinct months.
func ValidateDistribution(dist []MonthPercentage) error {
	if len(dist) == 0 {
		return nil
	}
	if len(dist) > 12 {
		return configError("monthly distribution has %d rows, expected at most 12", len(dist))
	}
	seen := make(map[time.Month]bool, len(dist))
	total := decimal.Zero
	for _, row := range dist {
		if row.Month < time.January || row.Month > time.December {
			return configError("monthly distribution has invalid month %d", int(row.Month))
		}
		if seen[row.Month] {
			return configError("monthly distribution repeats %s", row.Month)
		}
		if row.Percentage.IsNegative() {
			return configError("monthly distribution has negative share for %s", row.Month)
		}
		seen[row.Month] = true
		total = total.Add(row.Percentage)
	}
	if total.Sub(hundred).Abs().GreaterThan(distributionSlack) {
		return configError("monthly distribution sums to %s, expected 100", total.String())
	}
	return nil
}
