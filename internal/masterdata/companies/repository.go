package companies

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads and maintains the company tree.
type Repository interface {
	Get(ctx context.Context, name string) (Company, error)
	List(ctx context.Context) ([]Company, error)
	Within(ctx context.Context, lft, rgt int) ([]Company, error)
	SaveIntervals(ctx context.Context, companies []Company) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const companyColumns = `id, name, COALESCE(parent_company, ''), lft, rgt, is_group, default_currency, COALESCE(exception_budget_approver_role, '')`

func scanCompany(row pgx.CollectableRow) (Company, error) {
	var c Company
	err := row.Scan(&c.ID, &c.Name, &c.ParentCompany, &c.Lft, &c.Rgt, &c.IsGroup, &c.DefaultCurrency, &c.ExceptionApproverRole)
	return c, err
}

func (r *repository) Get(ctx context.Context, name string) (Company, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+companyColumns+` FROM companies WHERE name = $1`, name)
	if err != nil {
		return Company{}, err
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCompany)
	if errors.Is(err, pgx.ErrNoRows) {
		return Company{}, ErrCompanyNotFound
	}
	return c, err
}

func (r *repository) List(ctx context.Context) ([]Company, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+companyColumns+` FROM companies ORDER BY lft, name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanCompany)
}

func (r *repository) Within(ctx context.Context, lft, rgt int) ([]Company, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+companyColumns+` FROM companies WHERE lft >= $1 AND rgt <= $2 ORDER BY lft`, lft, rgt)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanCompany)
}

func (r *repository) SaveIntervals(ctx context.Context, companies []Company) error {
	batch := &pgx.Batch{}
	for _, c := range companies {
		batch.Queue(`UPDATE companies SET lft = $1, rgt = $2 WHERE name = $3`, c.Lft, c.Rgt, c.Name)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}
