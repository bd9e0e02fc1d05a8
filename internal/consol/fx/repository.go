package fx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// RateInput is a single FX quote to be stored.
type RateInput struct {
	AsOf    time.Time
	Pair    string
	Average decimal.Decimal
	Closing decimal.Decimal
}

// Repository reads and writes monthly quotes in fx_rates.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the quote repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// QuoteForPeriod fetches the quote of pair for the month of asOf.
func (r *Repository) QuoteForPeriod(ctx context.Context, asOf time.Time, pair string) (Quote, bool, error) {
	if r == nil || r.pool == nil {
		return Quote{}, false, fmt.Errorf("fx repo not initialised")
	}
	pair = normalise(pair)
	if pair == "" {
		return Quote{}, false, fmt.Errorf("fx pair required")
	}
	if asOf.IsZero() {
		return Quote{}, false, fmt.Errorf("as of date required")
	}
	const query = `SELECT average_rate, closing_rate FROM fx_rates WHERE as_of_date = $1 AND pair = $2 LIMIT 1`
	var q Quote
	if err := r.pool.QueryRow(ctx, query, monthOf(asOf), pair).Scan(&q.Average, &q.Closing); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Quote{}, false, nil
		}
		return Quote{}, false, err
	}
	return q, true, nil
}

// UpsertRates persists quotes, replacing existing rows of the same month and pair.
func (r *Repository) UpsertRates(ctx context.Context, rows []RateInput) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("fx repo not initialised")
	}
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	const query = `
INSERT INTO fx_rates (as_of_date, pair, average_rate, closing_rate)
VALUES ($1, $2, $3, $4)
ON CONFLICT (as_of_date, pair)
DO UPDATE SET average_rate = EXCLUDED.average_rate, closing_rate = EXCLUDED.closing_rate`
	for _, row := range rows {
		pair := normalise(row.Pair)
		if pair == "" {
			return fmt.Errorf("fx pair required")
		}
		if row.AsOf.IsZero() {
			return fmt.Errorf("as of date required for pair %s", pair)
		}
		if !row.Average.IsPositive() || !row.Closing.IsPositive() {
			return fmt.Errorf("fx rates must be positive for %s %s", pair, row.AsOf.Format("2006-01"))
		}
		batch.Queue(query, monthOf(row.AsOf), pair, row.Average, row.Closing)
	}
	results := r.pool.SendBatch(ctx, batch)
	for range rows {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}

// Load builds a converter from the quotes available for the month of asOf.
// Currencies equal to the reporting currency need no quote; pairs without a
// quote surface as MissingRateError when converted.
func Load(ctx context.Context, provider QuoteProvider, policy Policy, asOf time.Time, currencies []string) (*Converter, error) {
	if provider == nil {
		return nil, fmt.Errorf("fx: quote provider required")
	}
	reporting := normalise(policy.ReportingCurrency)
	quotes := make(map[string]Quote, len(currencies))
	for _, cur := range currencies {
		cur = normalise(cur)
		if cur == "" || cur == reporting {
			continue
		}
		for _, pair := range []string{cur + reporting, reporting + cur} {
			if _, done := quotes[pair]; done {
				continue
			}
			q, ok, err := provider.QuoteForPeriod(ctx, asOf, pair)
			if err != nil {
				return nil, fmt.Errorf("fx: load %s: %w", pair, err)
			}
			if ok {
				quotes[pair] = q
				break
			}
		}
	}
	return NewConverter(policy, quotes), nil
}

func monthOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
