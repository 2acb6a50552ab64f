package events

import (
	"errors"
	"testing"

	"github.com/openshift-hyperfleet/kartograph/internal/kartoerr"
	"github.com/openshift-hyperfleet/kartograph/internal/policy"
)

func TestIAMEventTranslatorSupportsAllEventTypes(t *testing.T) {
	tr := NewIAMEventTranslator()
	supported := tr.SupportedEventTypes()
	for _, want := range []string{
		"GroupCreated", "GroupDeleted", "MemberAdded", "MemberRemoved",
		"MemberRoleChanged", "APIKeyCreated", "APIKeyRevoked", "APIKeyDeleted",
		"WorkspaceCreated", "WorkspaceDeleted",
		"WorkspaceMemberAdded", "WorkspaceMemberRemoved", "WorkspaceMemberRoleChanged",
		"TenantMemberAdded", "TenantMemberRemoved", "TenantDeleted",
	} {
		if _, ok := supported[want]; !ok {
			t.Fatalf("expected %s to be supported", want)
		}
	}
}

func TestGroupCreatedWritesTenantRelationship(t *testing.T) {
	tr := NewIAMEventTranslator()
	ops, err := tr.Translate("GroupCreated", Payload{
		"group_id":  "G1",
		"tenant_id": "T1",
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("expected 1 op, got %d", len(ops))
	}
	op := ops[0]
	if op.Kind != policy.OpWrite {
		t.Fatalf("expected write op")
	}
	if op.Tuple.Resource.String() != "group:G1" || op.Tuple.Subject.String() != "tenant:T1" || op.Tuple.Relation != "tenant" {
		t.Fatalf("unexpected tuple: %+v", op.Tuple)
	}
}

func TestGroupDeletedWithMembersDeletesTenantThenMembers(t *testing.T) {
	tr := NewIAMEventTranslator()
	ops, err := tr.Translate("GroupDeleted", Payload{
		"group_id":  "G1",
		"tenant_id": "T1",
		"members": []any{
			map[string]any{"user_id": "user1", "role": "admin"},
			map[string]any{"user_id": "user2", "role": "member"},
		},
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("expected 3 ops, got %d", len(ops))
	}
	for _, op := range ops {
		if op.Kind != policy.OpDelete {
			t.Fatalf("expected all delete ops, got %+v", op)
		}
	}
	if ops[0].Tuple.Relation != "tenant" {
		t.Fatalf("expected tenant relationship deleted first, got %+v", ops[0])
	}
	roles := map[string]bool{ops[1].Tuple.Relation: true, ops[2].Tuple.Relation: true}
	if !roles["admin"] || !roles["member"] {
		t.Fatalf("expected admin and member deletes, got %+v", ops[1:])
	}
}

func TestMemberAddedWritesRoleRelationship(t *testing.T) {
	tr := NewIAMEventTranslator()
	ops, err := tr.Translate("MemberAdded", Payload{
		"group_id": "G1",
		"user_id":  "U1",
		"role":     "admin",
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(ops) != 1 || ops[0].Kind != policy.OpWrite || ops[0].Tuple.Relation != "admin" {
		t.Fatalf("unexpected ops: %+v", ops)
	}
}

func TestMemberRoleChangedDeletesOldThenWritesNew(t *testing.T) {
	tr := NewIAMEventTranslator()
	ops, err := tr.Translate("MemberRoleChanged", Payload{
		"group_id": "G1",
		"user_id":  "U1",
		"old_role": "member",
		"new_role": "admin",
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 ops, got %d", len(ops))
	}
	if ops[0].Kind != policy.OpDelete || ops[0].Tuple.Relation != "member" {
		t.Fatalf("expected delete-member first, got %+v", ops[0])
	}
	if ops[1].Kind != policy.OpWrite || ops[1].Tuple.Relation != "admin" {
		t.Fatalf("expected write-admin second, got %+v", ops[1])
	}
}

func TestAPIKeyCreatedWritesOwnerThenTenant(t *testing.T) {
	tr := NewIAMEventTranslator()
	ops, err := tr.Translate("APIKeyCreated", Payload{
		"api_key_id": "K1",
		"user_id":    "U1",
		"tenant_id":  "T1",
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(ops) != 2 || ops[0].Tuple.Relation != "owner" || ops[1].Tuple.Relation != "tenant" {
		t.Fatalf("unexpected ops: %+v", ops)
	}
}

func TestAPIKeyRevokedProducesNoOperations(t *testing.T) {
	tr := NewIAMEventTranslator()
	ops, err := tr.Translate("APIKeyRevoked", Payload{"api_key_id": "K1", "user_id": "U1"})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(ops) != 0 {
		t.Fatalf("expected no ops for APIKeyRevoked, got %+v", ops)
	}
}

func TestAPIKeyDeletedDeletesOwnerAndTenant(t *testing.T) {
	tr := NewIAMEventTranslator()
	ops, err := tr.Translate("APIKeyDeleted", Payload{
		"api_key_id": "K1",
		"user_id":    "U1",
		"tenant_id":  "T1",
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(ops) != 2 || ops[0].Kind != policy.OpDelete || ops[1].Kind != policy.OpDelete {
		t.Fatalf("unexpected ops: %+v", ops)
	}
	if ops[0].Tuple.Relation != "owner" || ops[1].Tuple.Relation != "tenant" {
		t.Fatalf("unexpected relations: %+v", ops)
	}
}

func TestWorkspaceCreatedRootVariant(t *testing.T) {
	tr := NewIAMEventTranslator()
	ops, err := tr.Translate("WorkspaceCreated", Payload{
		"workspace_id": "W1",
		"tenant_id":    "T1",
		"is_root":      true,
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 ops, got %d", len(ops))
	}
	if ops[0].Tuple.Relation != "tenant" || ops[0].Tuple.Resource.String() != "workspace:W1" {
		t.Fatalf("unexpected first op: %+v", ops[0])
	}
	if ops[1].Tuple.Relation != "root_workspace" || ops[1].Tuple.Resource.String() != "tenant:T1" {
		t.Fatalf("unexpected second op: %+v", ops[1])
	}
}

func TestWorkspaceCreatedChildVariant(t *testing.T) {
	tr := NewIAMEventTranslator()
	ops, err := tr.Translate("WorkspaceCreated", Payload{
		"workspace_id":        "W2",
		"tenant_id":           "T1",
		"is_root":             false,
		"parent_workspace_id": "W1",
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(ops) != 2 || ops[1].Tuple.Relation != "parent" || ops[1].Tuple.Subject.String() != "workspace:W1" {
		t.Fatalf("unexpected ops: %+v", ops)
	}
}

func TestWorkspaceMemberAddedGroupUsesMemberIndirection(t *testing.T) {
	tr := NewIAMEventTranslator()
	ops, err := tr.Translate("WorkspaceMemberAdded", Payload{
		"workspace_id": "W1",
		"member_id":    "G1",
		"member_type":  "group",
		"role":         "admin",
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("expected 1 op, got %d", len(ops))
	}
	if got := ops[0].Tuple.Subject.String(); got != "group:G1#member" {
		t.Fatalf("expected group#member indirection, got %s", got)
	}
}

func TestTenantMemberRemovedDeletesBothRoles(t *testing.T) {
	tr := NewIAMEventTranslator()
	ops, err := tr.Translate("TenantMemberRemoved", Payload{
		"tenant_id": "T1",
		"user_id":   "U1",
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(ops) != 2 {
		t.Fatalf("expected 2 ops, got %d", len(ops))
	}
	roles := map[string]bool{ops[0].Tuple.Relation: true, ops[1].Tuple.Relation: true}
	if !roles["admin"] || !roles["member"] {
		t.Fatalf("expected admin and member deletes, got %+v", ops)
	}
}

// TestTenantDeletedScenario pins spec §8 scenario S3: tenant deletion
// with two members emits the root_workspace filter delete first, then
// each member's delete, in order.
func TestTenantDeletedScenario(t *testing.T) {
	tr := NewIAMEventTranslator()
	ops, err := tr.Translate("TenantDeleted", Payload{
		"tenant_id": "T",
		"members": []any{
			map[string]any{"user_id": "A", "role": "admin"},
			map[string]any{"user_id": "M", "role": "member"},
		},
	})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(ops) != 3 {
		t.Fatalf("expected 3 ops, got %d", len(ops))
	}
	if ops[0].Kind != policy.OpDeleteByFilter ||
		ops[0].Filter.ResourceType != "tenant" || ops[0].Filter.ResourceID != "T" || ops[0].Filter.Relation != "root_workspace" {
		t.Fatalf("expected root_workspace filter delete first, got %+v", ops[0])
	}
	if ops[1].Tuple.Subject.String() != "user:A" || ops[1].Tuple.Relation != "admin" {
		t.Fatalf("unexpected second op: %+v", ops[1])
	}
	if ops[2].Tuple.Subject.String() != "user:M" || ops[2].Tuple.Relation != "member" {
		t.Fatalf("unexpected third op: %+v", ops[2])
	}
}

func TestTranslateUnknownEventTypeFails(t *testing.T) {
	tr := NewIAMEventTranslator()
	_, err := tr.Translate("SomethingElse", Payload{})
	if err == nil {
		t.Fatalf("expected error for unknown event type")
	}
}

func TestTranslateMissingFieldFailsWithSchemaMismatch(t *testing.T) {
	tr := NewIAMEventTranslator()
	_, err := tr.Translate("GroupCreated", Payload{"group_id": "G1"})
	if err == nil {
		t.Fatalf("expected error for missing tenant_id")
	}
	if !errors.Is(err, kartoerr.ErrPayloadSchemaMismatch) {
		t.Fatalf("expected a payload schema mismatch, got %v", err)
	}
}

func TestCompositeTranslatorDispatchesByEventType(t *testing.T) {
	ct := NewCompositeTranslator()
	ct.Register(NewIAMEventTranslator())

	ops, err := ct.Translate("GroupCreated", Payload{"group_id": "G1", "tenant_id": "T1"})
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if len(ops) != 1 {
		t.Fatalf("expected 1 op, got %d", len(ops))
	}

	if _, err := ct.Translate("NeverRegistered", Payload{}); err == nil {
		t.Fatalf("expected error for unregistered event type")
	}
}
