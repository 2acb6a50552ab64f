package graph

import (
	"strings"
	"testing"
)

func TestStableHashIsDeterministicAndNonNegative(t *testing.T) {
	a := StableHash("kartograph", "person")
	b := StableHash("kartograph", "person")
	if a != b {
		t.Fatalf("expected stable hash to be deterministic, got %d and %d", a, b)
	}
	if a < 0 {
		t.Fatalf("expected a non-negative lock key, got %d", a)
	}
	if c := StableHash("kartograph", "company"); c == a {
		t.Fatalf("expected different labels to hash differently")
	}
}

func TestInsertNewLabelSQLNodeShape(t *testing.T) {
	q := insertNewLabelSQL("kartograph", "person", "stg_person_1", "person_id_seq", EntityNode)
	for _, want := range []string{
		`INSERT INTO "kartograph"."person"`,
		`ag_catalog._graphid($1, nextval('"kartograph"."person_id_seq"'))`,
		`FROM "stg_person_1" AS s`,
		`WHERE s.label = $2`,
	} {
		if !strings.Contains(q, want) {
			t.Fatalf("expected query to contain %q, got:\n%s", want, q)
		}
	}
}

func TestInsertNewLabelSQLEdgeShapeRequiresResolvedEndpoints(t *testing.T) {
	q := insertNewLabelSQL("kartograph", "knows", "stg_knows_1", "knows_id_seq", EntityEdge)
	for _, want := range []string{
		`INSERT INTO "kartograph"."knows" (id, start_id, end_id, properties)`,
		`s.start_graphid IS NOT NULL AND s.end_graphid IS NOT NULL`,
	} {
		if !strings.Contains(q, want) {
			t.Fatalf("expected query to contain %q, got:\n%s", want, q)
		}
	}
}

func TestInsertExistingLabelSQLHasNotExistsGuard(t *testing.T) {
	q := insertExistingLabelSQL("kartograph", "person", "stg_person_1", "person_id_seq", EntityNode)
	if !strings.Contains(q, "NOT EXISTS") {
		t.Fatalf("expected an existing-label insert to guard against duplicate logical ids:\n%s", q)
	}
	if !strings.Contains(q, `agtype_object_field_text_agtype(t.properties, '"id"'::ag_catalog.agtype) = s.id`) {
		t.Fatalf("expected the same id-extraction predicate used by the update pass:\n%s", q)
	}
}

func TestUpdateExistingSQLMatchesOnExtractedID(t *testing.T) {
	q := updateExistingSQL("kartograph", "person", "stg_person_1")
	if !strings.Contains(q, "SET properties = (s.properties::text)::ag_catalog.agtype") {
		t.Fatalf("expected a full property replacement from staging:\n%s", q)
	}
	if !strings.Contains(q, "WHERE s.label = $1") {
		t.Fatalf("expected the update to be scoped to this label's staging rows:\n%s", q)
	}
}

func TestQualifiedQuotesBothParts(t *testing.T) {
	if got, want := qualified("kartograph", "person"), `"kartograph"."person"`; got != want {
		t.Fatalf("qualified() = %q, want %q", got, want)
	}
}
