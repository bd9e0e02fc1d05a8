package periods

import (
	"errors"
	"time"
)

// ErrFiscalYearNotFound is returned when no fiscal year covers a date.
var ErrFiscalYearNotFound = errors.New("periods: fiscal year not found")

// FiscalYear is a named accounting year. Companies empty means the year is shared.
type FiscalYear struct {
	Name      string
	Start     time.Time
	End       time.Time
	Companies []string
}

// Contains reports whether t falls inside the year.
func (fy FiscalYear) Contains(t time.Time) bool {
	return !t.Before(fy.Start) && !t.After(fy.End)
}

// Months returns the first day of each fiscal month in fiscal order.
func (fy FiscalYear) Months() []time.Time {
	start := MonthStart(fy.Start)
	var out []time.Time
	for m := start; !m.After(fy.End); m = m.AddDate(0, 1, 0) {
		out = append(out, m)
	}
	return out
}

// AppliesTo reports whether the year may be used by company.
func (fy FiscalYear) AppliesTo(company string) bool {
	if len(fy.Companies) == 0 {
		return true
	}
	for _, c := range fy.Companies {
		if c == company {
			return true
		}
	}
	return false
}

// MonthStart truncates t to the first day of its month.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// MonthEnd returns the last day of t's month.
func MonthEnd(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, -1)
}
