package policytest

import (
	"context"
	"testing"

	"github.com/openshift-hyperfleet/kartograph/internal/policy"
)

func TestWriteRelationshipIsTouchIdempotent(t *testing.T) {
	e := New()
	ctx := context.Background()
	tup := policy.Tuple{
		Resource: policy.Relation{Type: "group", ID: "G"},
		Relation: "tenant",
		Subject:  policy.Subject{Relation: policy.Relation{Type: "tenant", ID: "T"}},
	}

	if err := e.WriteRelationship(ctx, tup); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := e.WriteRelationship(ctx, tup); err != nil {
		t.Fatalf("re-write should be a no-op TOUCH, got error: %v", err)
	}
	if got := len(e.Snapshot()); got != 1 {
		t.Fatalf("expected exactly one tuple after TOUCH, got %d", got)
	}
}

func TestDeleteRelationshipsByFilterRequiresNarrowingField(t *testing.T) {
	e := New()
	ctx := context.Background()
	err := e.DeleteRelationshipsByFilter(ctx, policy.RelationshipFilter{ResourceType: "tenant"})
	if err == nil {
		t.Fatalf("expected error for a filter with no narrowing field")
	}
}

func TestDeleteRelationshipsByFilterDeletesMatching(t *testing.T) {
	e := New()
	ctx := context.Background()
	root := policy.Tuple{
		Resource: policy.Relation{Type: "tenant", ID: "T"},
		Relation: "root_workspace",
		Subject:  policy.Subject{Relation: policy.Relation{Type: "workspace", ID: "W"}},
	}
	other := policy.Tuple{
		Resource: policy.Relation{Type: "tenant", ID: "T2"},
		Relation: "root_workspace",
		Subject:  policy.Subject{Relation: policy.Relation{Type: "workspace", ID: "W2"}},
	}
	if err := e.WriteRelationships(ctx, []policy.Tuple{root, other}); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := e.DeleteRelationshipsByFilter(ctx, policy.RelationshipFilter{
		ResourceType: "tenant",
		ResourceID:   "T",
		Relation:     "root_workspace",
	}); err != nil {
		t.Fatalf("delete by filter: %v", err)
	}

	snap := e.Snapshot()
	if len(snap) != 1 || snap[0].Resource.ID != "T2" {
		t.Fatalf("expected only T2's tuple to remain, got %+v", snap)
	}
}

func TestCheckPermissionReflectsWrittenTuple(t *testing.T) {
	e := New()
	ctx := context.Background()
	resource := policy.Relation{Type: "api_key", ID: "K"}
	subject := policy.Relation{Type: "user", ID: "U"}

	ok, err := e.CheckPermission(ctx, resource, "owner", subject)
	if err != nil || ok {
		t.Fatalf("expected false before write, got %v %v", ok, err)
	}

	if err := e.WriteRelationship(ctx, policy.Tuple{
		Resource: resource, Relation: "owner", Subject: policy.Subject{Relation: subject},
	}); err != nil {
		t.Fatalf("write: %v", err)
	}

	ok, err = e.CheckPermission(ctx, resource, "owner", subject)
	if err != nil || !ok {
		t.Fatalf("expected true after write, got %v %v", ok, err)
	}
}
