package persistence

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the query surface shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txBeginner interface {
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

type txKey struct{}

// TxRunner executes a unit of work inside a single database transaction.
// Stores called with the context handed to fn join that transaction.
type TxRunner struct {
	pool txBeginner
}

// NewTxRunner builds a TxRunner over the shared pool.
func NewTxRunner(pool *pgxpool.Pool) *TxRunner {
	if pool == nil {
		panic("TxRunner requires pool")
	}
	return &TxRunner{pool: pool}
}

// WithinTx runs fn in a transaction and commits when fn returns nil.
// A context that already carries a transaction gets a savepoint instead: a
// failing nested fn rolls back to it and leaves the outer transaction usable,
// while a successful one commits or rolls back with the outermost.
func (r *TxRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	var (
		tx  pgx.Tx
		err error
	)
	if outer, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		tx, err = outer.Begin(ctx)
		if err != nil {
			return fmt.Errorf("savepoint: %w", err)
		}
	} else {
		tx, err = r.pool.BeginTx(ctx, pgx.TxOptions{})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// InTx reports whether ctx carries an open transaction.
func InTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(pgx.Tx)
	return ok
}

// conn returns the transaction on ctx, or db when there is none.
func conn(ctx context.Context, db DBTX) DBTX {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return db
}
