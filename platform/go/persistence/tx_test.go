package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

// fakeTx satisfies pgx.Tx and records how the transaction ended.
type fakeTx struct {
	committed  bool
	rolledBack bool
	stmts      []string
	savepoints []*fakeTx
}

func (f *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) {
	sp := &fakeTx{}
	f.savepoints = append(f.savepoints, sp)
	return sp, nil
}
func (f *fakeTx) Commit(ctx context.Context) error {
	f.committed = true
	return nil
}
func (f *fakeTx) Rollback(ctx context.Context) error {
	if !f.committed {
		f.rolledBack = true
	}
	return nil
}
func (f *fakeTx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	return 0, errors.New("not implemented")
}
func (f *fakeTx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults { return nil }
func (f *fakeTx) LargeObjects() pgx.LargeObjects                         { return pgx.LargeObjects{} }
func (f *fakeTx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	return &pgconn.StatementDescription{}, errors.New("not implemented")
}
func (f *fakeTx) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}
func (f *fakeTx) QueryRow(context.Context, string, ...any) pgx.Row { return nil }
func (f *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.stmts = append(f.stmts, sql)
	return pgconn.CommandTag{}, nil
}
func (f *fakeTx) Conn() *pgx.Conn { return nil }

// fakePool hands out one preconstructed transaction and counts BeginTx calls.
type fakePool struct {
	tx    *fakeTx
	begun int
}

func (p *fakePool) BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error) {
	p.begun++
	return p.tx, nil
}

func TestWithinTxCommitsOnSuccess(t *testing.T) {
	t.Parallel()

	ftx := &fakeTx{}
	runner := &TxRunner{pool: &fakePool{tx: ftx}}

	err := runner.WithinTx(context.Background(), func(ctx context.Context) error {
		require.True(t, InTx(ctx))
		_, execErr := conn(ctx, nil).Exec(ctx, "SELECT 1")
		return execErr
	})
	require.NoError(t, err)
	require.True(t, ftx.committed)
	require.False(t, ftx.rolledBack)
	require.Equal(t, []string{"SELECT 1"}, ftx.stmts)
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	ftx := &fakeTx{}
	runner := &TxRunner{pool: &fakePool{tx: ftx}}
	boom := errors.New("boom")

	err := runner.WithinTx(context.Background(), func(ctx context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
	require.False(t, ftx.committed)
	require.True(t, ftx.rolledBack)
}

func TestWithinTxNestsAsSavepoint(t *testing.T) {
	t.Parallel()

	ftx := &fakeTx{}
	pool := &fakePool{tx: ftx}
	runner := &TxRunner{pool: pool}

	err := runner.WithinTx(context.Background(), func(ctx context.Context) error {
		return runner.WithinTx(ctx, func(inner context.Context) error {
			require.True(t, InTx(inner))
			return nil
		})
	})
	require.NoError(t, err)
	require.Equal(t, 1, pool.begun)
	require.True(t, ftx.committed)
	require.Len(t, ftx.savepoints, 1)
	require.True(t, ftx.savepoints[0].committed)
}

func TestWithinTxNestedFailureKeepsOuterUsable(t *testing.T) {
	t.Parallel()

	ftx := &fakeTx{}
	runner := &TxRunner{pool: &fakePool{tx: ftx}}
	boom := errors.New("duplicate slug")

	err := runner.WithinTx(context.Background(), func(ctx context.Context) error {
		nestedErr := runner.WithinTx(ctx, func(context.Context) error { return boom })
		require.ErrorIs(t, nestedErr, boom)
		return runner.WithinTx(ctx, func(context.Context) error { return nil })
	})
	require.NoError(t, err)
	require.True(t, ftx.committed)
	require.Len(t, ftx.savepoints, 2)
	require.True(t, ftx.savepoints[0].rolledBack)
	require.True(t, ftx.savepoints[1].committed)
}

func TestConnFallsBackToPoolOutsideTx(t *testing.T) {
	t.Parallel()

	ftx := &fakeTx{}
	require.False(t, InTx(context.Background()))
	require.Same(t, DBTX(ftx), conn(context.Background(), ftx))
}
