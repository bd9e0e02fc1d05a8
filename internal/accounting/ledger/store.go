package ledger

import (
	"context"
	"errors"
)

// ErrAccountNotFound is returned when an account lookup misses.
var ErrAccountNotFound = errors.New("ledger: account not found")

// CompanyFilter scopes chart-of-accounts reads.
type CompanyFilter struct {
	Companies []string
	RootTypes []RootType
}

// Store is the read side of the general ledger.
type Store interface {
	ListAccounts(ctx context.Context, filter CompanyFilter) ([]Account, error)
	SumEntries(ctx context.Context, account string, window DateRange, filter Filter) (Totals, error)
	ListEntries(ctx context.Context, filter Filter) ([]Entry, error)
}
