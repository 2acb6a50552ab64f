// Package postgres provides the shared transaction-propagation plumbing
// used by the outbox repository (C2) and the bulk-loading strategy (C9).
// Both need the same guarantee: execute within whatever transaction the
// caller already opened, never open their own.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Querier is satisfied by both *sql.DB and *sql.Tx, so repository code can
// be written once and run against either.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// TxFromContext extracts a transaction from context, if one was attached
// by ContextWithTx.
func TxFromContext(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// ContextWithTx returns a context carrying tx, so that Querier(ctx) below
// picks it up instead of falling back to the bare connection pool.
func ContextWithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TxManager opens and propagates transactions via context. It holds no
// domain state; the outbox worker takes one to wrap each batch, while
// the outbox repository and the bulk-loading strategy take the caller's
// Querier or *sql.Tx directly.
type TxManager struct {
	db *sql.DB
}

// NewTxManager wraps db.
func NewTxManager(db *sql.DB) *TxManager {
	return &TxManager{db: db}
}

// DB returns the underlying pool, for callers that need driver-specific
// escape hatches (e.g. pq.CopyIn requires a *sql.Tx directly).
func (m *TxManager) DB() *sql.DB {
	return m.db
}

// Querier returns the transaction attached to ctx, or the bare pool if
// none is attached.
func (m *TxManager) Querier(ctx context.Context) Querier {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return m.db
}

// BeginTx starts a new transaction and returns a context carrying it.
func (m *TxManager) BeginTx(ctx context.Context) (context.Context, *sql.Tx, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return ctx, nil, fmt.Errorf("begin transaction: %w", err)
	}
	return ContextWithTx(ctx, tx), tx, nil
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic. Used by the outbox worker to wrap one batch
// (claim, translate, apply, mark processed) in a single commit.
func (m *TxManager) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) (err error) {
	txCtx, tx, err := m.BeginTx(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(txCtx, tx); err != nil {
		return err
	}

	return tx.Commit()
}

// --- Null-type conversion helpers ---
// Outbox rows carry nullable processed_at, dead_lettered_at and last_error columns;
// staging rows carry nullable start_graphid/end_graphid until resolution.

// NullTimeToPtr converts sql.NullTime to *time.Time.
func NullTimeToPtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		return &nt.Time
	}
	return nil
}

// PtrToNullTime converts *time.Time to sql.NullTime.
func PtrToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// NullStringToPtr converts sql.NullString to *string.
func NullStringToPtr(ns sql.NullString) *string {
	if ns.Valid {
		return &ns.String
	}
	return nil
}

// PtrToNullString converts *string to sql.NullString.
func PtrToNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// NullInt64ToPtr converts sql.NullInt64 to *int64.
func NullInt64ToPtr(ni sql.NullInt64) *int64 {
	if ni.Valid {
		return &ni.Int64
	}
	return nil
}

// PtrToNullInt64 converts *int64 to sql.NullInt64.
func PtrToNullInt64(i *int64) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *i, Valid: true}
}
