package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ctxKey is the context key type for storing database transactions.
type ctxKey string

const txContextKey ctxKey = "keelbooks_tx"

// queryer is the subset of pgx shared by pgxpool.Pool and pgx.Tx.
// Repository methods resolve one via getQueryer so the same code runs
// inside or outside a transaction.
type queryer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txFromContext retrieves the transaction from context if one exists.
func txFromContext(ctx context.Context) pgx.Tx {
	if tx, ok := ctx.Value(txContextKey).(pgx.Tx); ok {
		return tx
	}
	return nil
}

// getQueryer returns the context's transaction if present, otherwise the
// pool. All repositories share one context key, so a transaction begun
// through any repository is joined by every repository: a posting flow
// can lock a document, append credit entries and write journal rows
// atomically.
func getQueryer(ctx context.Context, pool *pgxpool.Pool) queryer {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// beginTx starts a transaction and stores it in the returned context.
// Nested begins are rejected: composition happens by passing the
// transactional context down, not by stacking transactions.
func beginTx(ctx context.Context, pool *pgxpool.Pool) (context.Context, error) {
	if tx := txFromContext(ctx); tx != nil {
		return ctx, fmt.Errorf("transaction already in progress")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return ctx, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return context.WithValue(ctx, txContextKey, tx), nil
}

// commitTx commits the context's transaction.
func commitTx(ctx context.Context) error {
	tx := txFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// rollbackTx rolls back the context's transaction. Rolling back a
// transaction that already committed is a no-op.
func rollbackTx(ctx context.Context) error {
	tx := txFromContext(ctx)
	if tx == nil {
		return fmt.Errorf("no transaction in context")
	}
	if err := tx.Rollback(ctx); err != nil {
		if err == pgx.ErrTxClosed {
			return nil
		}
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}
