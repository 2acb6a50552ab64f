package events

import (
	"testing"
	"time"
)

func TestGroupCreatedRoundTrips(t *testing.T) {
	r := NewIAMEventRegistry()
	occurredAt := time.Date(2026, 1, 8, 12, 0, 0, 0, time.UTC)
	original := GroupCreated{
		baseEvent: baseEvent{aggregateID: "G1", occurredAt: occurredAt},
		GroupID:   "G1", TenantID: "T1",
	}

	payload, err := r.Serialize(original)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	restored, err := r.Deserialize("GroupCreated", payload)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}

	got, ok := restored.(GroupCreated)
	if !ok {
		t.Fatalf("expected GroupCreated, got %T", restored)
	}
	if got != original {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, original)
	}
}

func TestGroupDeletedRoundTripsWithMembers(t *testing.T) {
	r := NewIAMEventRegistry()
	occurredAt := time.Date(2026, 1, 8, 12, 0, 0, 0, time.UTC)
	original := GroupDeleted{
		baseEvent: baseEvent{aggregateID: "G1", occurredAt: occurredAt},
		GroupID:   "G1", TenantID: "T1",
		Members: []GroupMember{{UserID: "user1", Role: "admin"}, {UserID: "user2", Role: "member"}},
	}

	payload, err := r.Serialize(original)
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	restored, err := r.Deserialize("GroupDeleted", payload)
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	got := restored.(GroupDeleted)
	if got.GroupID != original.GroupID || got.TenantID != original.TenantID {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, original)
	}
	if len(got.Members) != 2 || got.Members[0] != original.Members[0] || got.Members[1] != original.Members[1] {
		t.Fatalf("members mismatch: %+v vs %+v", got.Members, original.Members)
	}
}

func TestDeserializeUnknownEventTypeFails(t *testing.T) {
	r := NewIAMEventRegistry()
	_, err := r.Deserialize("NotRegistered", Payload{})
	if err == nil {
		t.Fatalf("expected error for unregistered event type")
	}
}

func TestDeserializeMissingRequiredFieldFails(t *testing.T) {
	r := NewIAMEventRegistry()
	_, err := r.Deserialize("GroupCreated", Payload{"group_id": "G1"})
	if err == nil {
		t.Fatalf("expected error for missing tenant_id/occurred_at")
	}
}

func TestSerializeUnknownEventTypeFails(t *testing.T) {
	r := NewRegistry()
	_, err := r.Serialize(GroupCreated{GroupID: "G1"})
	if err == nil {
		t.Fatalf("expected error serializing an event with no registered codec")
	}
}
