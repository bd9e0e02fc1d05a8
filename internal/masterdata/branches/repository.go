package branches

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository lists the branches of a company.
type Repository interface {
	ListByCompany(ctx context.Context, company string) ([]Branch, error)
}

const listByCompanySQL = `SELECT id, name, company FROM branches
WHERE company = $1
ORDER BY name, id`

// PGRepository reads branches from postgres.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the pgx backed repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// ListByCompany implements Repository.
func (r *PGRepository) ListByCompany(ctx context.Context, company string) ([]Branch, error) {
	rows, err := r.pool.Query(ctx, listByCompanySQL, company)
	if err != nil {
		return nil, fmt.Errorf("branches: list %s: %w", company, err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[Branch])
}
