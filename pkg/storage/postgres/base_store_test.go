package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestContextWithTxRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin: %v", err)
	}

	ctx := ContextWithTx(context.Background(), tx)
	if got := TxFromContext(ctx); got != tx {
		t.Fatalf("expected tx round-trip, got %v", got)
	}
	if got := TxFromContext(context.Background()); got != nil {
		t.Fatalf("expected nil tx for bare context, got %v", got)
	}
}

func TestTxManagerWithTxCommitsOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE outbox").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	m := NewTxManager(db)
	err = m.WithTx(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		_, execErr := m.Querier(ctx).ExecContext(ctx, "UPDATE outbox SET processed_at = $1", time.Now())
		return execErr
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTxManagerWithTxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	m := NewTxManager(db)
	wantErr := context.Canceled
	err = m.WithTx(context.Background(), func(ctx context.Context, tx *sql.Tx) error {
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected propagated error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNullTimePtrRoundTrip(t *testing.T) {
	if NullTimeToPtr(PtrToNullTime(nil)) != nil {
		t.Fatalf("expected nil round-trip")
	}
	now := time.Now()
	got := NullTimeToPtr(PtrToNullTime(&now))
	if got == nil || !got.Equal(now) {
		t.Fatalf("expected %v, got %v", now, got)
	}
}
