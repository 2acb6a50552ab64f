package graph

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestCheckForDuplicateIDsReturnsTypedError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM").WillReturnRows(
		sqlmock.NewRows([]string{"id"}).AddRow("person:1"))

	m := NewStagingManager()
	err = m.CheckForDuplicateIDs(context.Background(), db, "_staging_nodes_x", "node")
	if err == nil {
		t.Fatalf("expected duplicate id error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCheckForDuplicateIDsPassesWhenNoneFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("SELECT id FROM").WillReturnRows(sqlmock.NewRows([]string{"id"}))

	m := NewStagingManager()
	if err := m.CheckForDuplicateIDs(context.Background(), db, "_staging_nodes_x", "node"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCheckForOrphanedEdgesReportsMissingNodes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "start_id", "end_id", "start_graphid", "end_graphid"}).
		AddRow("knows:1", "person:1", "person:missing", "0:1", nil)
	mock.ExpectQuery("SELECT s.id, s.start_id, s.end_id").WillReturnRows(rows)

	m := NewStagingManager()
	err = m.CheckForOrphanedEdges(context.Background(), db, "_staging_edges_x")
	if err == nil {
		t.Fatalf("expected orphaned edge error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPropertiesWithIDInjectsIDAndGraphID(t *testing.T) {
	props := propertiesWithID(map[string]any{"name": "Alice"}, "person:1", "kartograph")
	if props["id"] != "person:1" || props["graph_id"] != "kartograph" || props["name"] != "Alice" {
		t.Fatalf("unexpected properties: %+v", props)
	}
}
