package graph

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestCreateLabelIndexesSkipsExisting(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	// Node label: 3 existence checks, all report "already exists" so no
	// CREATE INDEX statements should run.
	for i := 0; i < 3; i++ {
		mock.ExpectQuery("SELECT EXISTS").WillReturnRows(
			sqlmock.NewRows([]string{"exists"}).AddRow(true))
	}

	if err := CreateLabelIndexes(context.Background(), db, "kartograph", "person", EntityNode); err != nil {
		t.Fatalf("create indexes: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreateLabelIndexesCreatesMissingEdgeIndexes(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	// Edge label: 5 checks, all missing, so 5 CREATE INDEX statements run.
	for i := 0; i < 5; i++ {
		mock.ExpectQuery("SELECT EXISTS").WillReturnRows(
			sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectExec("CREATE INDEX").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	if err := CreateLabelIndexes(context.Background(), db, "kartograph", "knows", EntityEdge); err != nil {
		t.Fatalf("create indexes: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
