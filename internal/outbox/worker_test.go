package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/openshift-hyperfleet/kartograph/internal/policy"
	"github.com/openshift-hyperfleet/kartograph/internal/policy/policytest"
	"github.com/openshift-hyperfleet/kartograph/pkg/logger"
	"github.com/openshift-hyperfleet/kartograph/pkg/storage/postgres"
)

type fakeTranslator struct {
	ops map[string][]policy.Operation
	err error
}

func (f *fakeTranslator) SupportedEventTypes() map[string]struct{} {
	return map[string]struct{}{"GroupCreated": {}, "Boom": {}}
}

func (f *fakeTranslator) Translate(eventType string, payload map[string]any) ([]policy.Operation, error) {
	if f.err != nil && eventType == "Boom" {
		return nil, f.err
	}
	return f.ops[eventType], nil
}

func newTestLogger() *logger.Logger {
	return logger.New(logger.LoggingConfig{Level: "error", Format: "text", Output: "stdout"})
}

func TestRunBatchMarksProcessedOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	tx := postgres.NewTxManager(db)
	tr := &fakeTranslator{ops: map[string][]policy.Operation{
		"GroupCreated": {policy.Write(policy.Relation{Type: "group", ID: "G1"}, "tenant", policy.Subject{Relation: policy.Relation{Type: "tenant", ID: "T1"}})},
	}}
	eng := policytest.New()
	w := NewWorker(WorkerConfig{BatchSize: 10, MaxRetries: 3}, tx, tr, eng, newTestLogger())

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "aggregate_type", "aggregate_id", "event_type", "payload", "created_at", "retry_count"}).
		AddRow("e1", "group", "G1", "GroupCreated", []byte(`{"group_id":"G1","tenant_id":"T1"}`), now, 0)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, aggregate_type").WithArgs(10).WillReturnRows(rows)
	mock.ExpectExec("UPDATE outbox_events SET processed_at").WithArgs("e1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := w.runBatch(context.Background()); err != nil {
		t.Fatalf("runBatch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}

	tuples, _ := eng.ReadRelationships(context.Background(), policy.RelationshipFilter{ResourceType: "group"})
	if len(tuples) != 1 {
		t.Fatalf("expected the write to reach the engine, got %+v", tuples)
	}
}

func TestRunBatchMarksFailedOnTranslateError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	tx := postgres.NewTxManager(db)
	tr := &fakeTranslator{err: errors.New("boom")}
	eng := policytest.New()
	w := NewWorker(WorkerConfig{BatchSize: 10, MaxRetries: 3}, tx, tr, eng, newTestLogger())

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "aggregate_type", "aggregate_id", "event_type", "payload", "created_at", "retry_count"}).
		AddRow("e2", "group", "G1", "Boom", []byte(`{}`), now, 0)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, aggregate_type").WithArgs(10).WillReturnRows(rows)
	mock.ExpectExec("UPDATE outbox_events SET retry_count").WithArgs("e2", "boom").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	if err := w.runBatch(context.Background()); err != nil {
		t.Fatalf("runBatch: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestWorkerStopWaitsForRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()
	mock.MatchExpectationsInOrder(false)

	tx := postgres.NewTxManager(db)
	tr := &fakeTranslator{}
	eng := policytest.New()
	w := NewWorker(WorkerConfig{BatchSize: 10, MaxRetries: 3}, tx, tr, eng, newTestLogger())

	// No sources registered: the initial notify() drains one empty batch,
	// then Run blocks on wake until Stop cancels it.
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, aggregate_type").WillReturnRows(sqlmock.NewRows(
		[]string{"id", "aggregate_type", "aggregate_id", "event_type", "payload", "created_at", "retry_count"}))
	mock.ExpectCommit()

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	w.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}
