package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeTx struct {
	pgx.Tx
	commitErr  error
	committed  bool
	rolledBack bool
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return f.commitErr
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolledBack = true
	return nil
}

type fakeConn struct {
	tx   *fakeTx
	opts pgx.TxOptions
}

func (c *fakeConn) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	c.opts = opts
	return c.tx, nil
}

func TestWithTxCommits(t *testing.T) {
	conn := &fakeConn{tx: &fakeTx{}}
	if err := WithTx(context.Background(), conn, func(pgx.Tx) error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conn.opts.IsoLevel != pgx.RepeatableRead {
		t.Fatalf("expected repeatable read, got %q", conn.opts.IsoLevel)
	}
	if !conn.tx.committed || conn.tx.rolledBack {
		t.Fatalf("expected commit only, got %+v", conn.tx)
	}
}

func TestWithTxRollsBackAndKeepsCause(t *testing.T) {
	conn := &fakeConn{tx: &fakeTx{}}
	conflict := &pgconn.PgError{Code: "40001"}
	err := WithTx(context.Background(), conn, func(pgx.Tx) error { return conflict })
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "40001" {
		t.Fatalf("expected serialization failure, got %v", err)
	}
	if conn.tx.committed || !conn.tx.rolledBack {
		t.Fatalf("expected rollback only, got %+v", conn.tx)
	}

	conn = &fakeConn{tx: &fakeTx{commitErr: conflict}}
	err = WithTx(context.Background(), conn, func(pgx.Tx) error { return nil })
	if !errors.As(err, &pgErr) || !conn.tx.rolledBack {
		t.Fatalf("commit failure should roll back and wrap, got %v", err)
	}
}
