package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Beginner starts transactions; *pgxpool.Pool satisfies it.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

var repeatableRead = pgx.TxOptions{IsoLevel: pgx.RepeatableRead}

// WithTx runs fn inside a repeatable read transaction and commits when fn
// succeeds. Errors keep their pgconn cause so SQLSTATE 40001 stays visible.
func WithTx(ctx context.Context, conn Beginner, fn func(pgx.Tx) error) (err error) {
	tx, err := conn.BeginTx(ctx, repeatableRead)
	if err != nil {
		return fmt.Errorf("platform/db: begin: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			err = errors.Join(err, fmt.Errorf("platform/db: rollback: %w", rbErr))
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit: %w", err)
	}
	return nil
}
