package budget

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-budget/internal/accounting/periods"
)

func evenDistribution() []MonthPercentage {
	out := make([]MonthPercentage, 0, 12)
	for m := time.January; m <= time.December; m++ {
		pct := decimal.RequireFromString("8.33")
		if m == time.December {
			pct = decimal.RequireFromString("8.37")
		}
		out = append(out, MonthPercentage{Month: m, Percentage: pct})
	}
	return out
}

func fiscal(startYear int, startMonth time.Month) periods.FiscalYear {
	start := time.Date(startYear, startMonth, 1, 0, 0, 0, 0, time.UTC)
	return periods.FiscalYear{Name: "FY", Start: start, End: start.AddDate(1, 0, -1)}
}

func ymd(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestApportionEmptyDistributionIsFull(t *testing.T) {
	fy := fiscal(2024, time.January)
	require.True(t, Apportion(nil, fy, ymd(2024, 3, 1), ymd(2024, 3, 31)).Equal(hundred))
	fr := Fractions(nil, fy, ymd(2024, 3, 1), ymd(2024, 5, 31))
	require.True(t, fr.Opening.Equal(hundred))
	require.True(t, fr.ForPeriod.Equal(hundred))
	require.True(t, fr.YearToDate.Equal(hundred))
}

func TestApportionScenarioC(t *testing.T) {
	fy := fiscal(2024, time.January)
	dist := evenDistribution()
	for m := time.January; m <= time.March; m++ {
		dist[m-1].Percentage = decimal.NewFromInt(10)
	}
	fr := Fractions(dist, fy, ymd(2024, 3, 1), ymd(2024, 3, 31))
	amounts := fr.Apply(decimal.NewFromInt(12000))
	require.Equal(t, "2400", amounts.Opening.String())
	require.Equal(t, "1200", amounts.ForPeriod.String())
	require.Equal(t, "3600", amounts.YearToDate.String())
}

func TestApportionPartitionsYearToDate(t *testing.T) {
	dist := evenDistribution()
	for _, fy := range []periods.FiscalYear{fiscal(2024, time.January), fiscal(2024, time.April)} {
		months := fy.Months()
		for i := range months {
			for j := i; j < len(months); j++ {
				start := months[i]
				end := periods.MonthEnd(months[j])
				fr := Fractions(dist, fy, start, end)
				require.True(t, fr.Opening.Add(fr.ForPeriod).Equal(fr.YearToDate), "fy %s window %s..%s", fy.Start, start, end)
				require.True(t, fr.YearToDate.LessThanOrEqual(hundred))
			}
		}
	}
}

func TestApportionWrapsCalendarYear(t *testing.T) {
	fy := fiscal(2024, time.April)
	dist := evenDistribution()
	// January 2025 is the tenth fiscal month.
	fr := Fractions(dist, fy, ymd(2025, 1, 1), ymd(2025, 1, 31))
	require.Equal(t, "8.33", fr.ForPeriod.String())
	require.Equal(t, "75.01", fr.Opening.String())
	require.True(t, Apportion(dist, fy, ymd(2023, 1, 1), ymd(2023, 12, 31)).IsZero())
	require.Equal(t, "0", Fractions(dist, fy, fy.Start, ymd(2024, 4, 30)).Opening.String())
}

func TestValidateDistribution(t *testing.T) {
	require.NoError(t, ValidateDistribution(evenDistribution()))
	require.NoError(t, ValidateDistribution(nil))

	short := evenDistribution()[:11]
	err := ValidateDistribution(short)
	require.Error(t, err)
	require.True(t, IsConfiguration(err))

	dup := evenDistribution()
	dup[1].Month = time.January
	require.Error(t, ValidateDistribution(dup))
}
