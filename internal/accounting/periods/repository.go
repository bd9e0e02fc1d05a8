package periods

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository loads fiscal years.
type Repository interface {
	FindByDate(ctx context.Context, company string, date time.Time) (FiscalYear, error)
	FindByName(ctx context.Context, name string) (FiscalYear, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository builds the PostgreSQL fiscal year repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const fiscalYearColumns = `fy.name, fy.year_start_date, fy.year_end_date,
       COALESCE(ARRAY(SELECT company FROM fiscal_year_companies c WHERE c.fiscal_year = fy.name ORDER BY company), '{}')`

// FindByDate returns the enabled fiscal year covering date for company.
func (r *repository) FindByDate(ctx context.Context, company string, date time.Time) (FiscalYear, error) {
	row := r.db.QueryRow(ctx, `SELECT `+fiscalYearColumns+`
FROM fiscal_years fy
WHERE fy.disabled = FALSE AND $2 BETWEEN fy.year_start_date AND fy.year_end_date
  AND (NOT EXISTS (SELECT 1 FROM fiscal_year_companies c WHERE c.fiscal_year = fy.name)
       OR EXISTS (SELECT 1 FROM fiscal_year_companies c WHERE c.fiscal_year = fy.name AND c.company = $1))
ORDER BY fy.year_start_date DESC LIMIT 1`, company, date)
	return scanFiscalYear(row)
}

// FindByName returns a fiscal year by its name.
func (r *repository) FindByName(ctx context.Context, name string) (FiscalYear, error) {
	row := r.db.QueryRow(ctx, `SELECT `+fiscalYearColumns+` FROM fiscal_years fy WHERE fy.name = $1`, name)
	return scanFiscalYear(row)
}

func scanFiscalYear(row pgx.Row) (FiscalYear, error) {
	var fy FiscalYear
	if err := row.Scan(&fy.Name, &fy.Start, &fy.End, &fy.Companies); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FiscalYear{}, ErrFiscalYearNotFound
		}
		return FiscalYear{}, fmt.Errorf("periods: scan fiscal year: %w", err)
	}
	return fy, nil
}
