package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/kislikjeka/moneyguard/internal/shared/errors"
	"github.com/kislikjeka/moneyguard/internal/shared/txn"
)

// PostgreSQL error codes the repositories react to
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
)

type ctxKey string

const txContextKey ctxKey = "pg_tx"

// TxManager implements txn.Manager with pgx transactions carried in the context
type TxManager struct {
	pool *pgxpool.Pool
}

// NewTxManager creates a transaction manager
func NewTxManager(pool *pgxpool.Pool) *TxManager {
	return &TxManager{pool: pool}
}

var _ txn.Manager = (*TxManager)(nil)

// Do runs fn in a transaction. A context that already carries one joins it, inside a
// savepoint when opts.Savepoint is set.
func (m *TxManager) Do(ctx context.Context, opts txn.Options, fn func(ctx context.Context) error) (err error) {
	if outer := txFromContext(ctx); outer != nil {
		if !opts.Savepoint {
			return fn(ctx)
		}
		return savepoint(ctx, outer, fn)
	}

	tx, err := m.pool.BeginTx(ctx, txOptions(opts))
	if err != nil {
		return mapTxError(fmt.Errorf("failed to begin transaction: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("failed to rollback transaction: %w", rbErr))
			}
		}
	}()

	if err = fn(context.WithValue(ctx, txContextKey, tx)); err != nil {
		return mapTxError(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return mapTxError(fmt.Errorf("failed to commit transaction: %w", err))
	}
	return nil
}

// savepoint runs fn in a pgx nested transaction. A failure rolls back to the savepoint and
// leaves the outer transaction usable.
func savepoint(ctx context.Context, outer pgx.Tx, fn func(ctx context.Context) error) (err error) {
	sp, err := outer.Begin(ctx)
	if err != nil {
		return mapTxError(fmt.Errorf("failed to create savepoint: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = sp.Rollback(context.WithoutCancel(ctx))
			panic(p)
		}
		if err != nil {
			if rbErr := sp.Rollback(context.WithoutCancel(ctx)); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("failed to rollback to savepoint: %w", rbErr))
			}
		}
	}()

	if err = fn(context.WithValue(ctx, txContextKey, sp)); err != nil {
		return mapTxError(err)
	}
	if err = sp.Commit(ctx); err != nil {
		return mapTxError(fmt.Errorf("failed to release savepoint: %w", err))
	}
	return nil
}

func txOptions(opts txn.Options) pgx.TxOptions {
	o := pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite}
	switch opts.Isolation {
	case txn.RepeatableRead:
		o.IsoLevel = pgx.RepeatableRead
	case txn.Serializable:
		o.IsoLevel = pgx.Serializable
	}
	if opts.ReadOnly {
		o.AccessMode = pgx.ReadOnly
	}
	return o
}

// mapTxError turns contention failures into RetryLater so callers can tell them from
// business errors
func mapTxError(err error) error {
	if apperrors.IsAppError(err) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return apperrors.RetryLater("database contention, retry the request", err)
		}
	}
	return err
}

func txFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// querier is what repositories need from either a pool or a transaction
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

var (
	_ querier = (pgx.Tx)(nil)
	_ querier = (*pgxpool.Pool)(nil)
)

// getQueryer returns the transaction in ctx, or the pool outside one
func getQueryer(ctx context.Context, pool *pgxpool.Pool) querier {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
