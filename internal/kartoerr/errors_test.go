package kartoerr

import (
	"errors"
	"strings"
	"testing"
)

func TestUnknownEventKindErrorIsSentinel(t *testing.T) {
	err := &UnknownEventKindError{EventType: "GroupRenamed"}
	if !errors.Is(err, ErrUnknownEventKind) {
		t.Fatalf("expected errors.Is match against ErrUnknownEventKind")
	}
	if errors.Is(err, ErrPayloadSchemaMismatch) {
		t.Fatalf("did not expect match against a different sentinel")
	}
}

func TestOrphanedEdgeRefErrorMessageTruncates(t *testing.T) {
	err := &OrphanedEdgeRefError{
		MissingIDs:   []string{"person:1", "person:2"},
		TotalMissing: 5,
	}
	msg := err.Error()
	if !errors.Is(err, ErrOrphanedEdgeRef) {
		t.Fatalf("expected errors.Is match")
	}
	if want := "and 3 more"; !strings.Contains(msg, want) {
		t.Fatalf("expected message to mention %q, got %q", want, msg)
	}
}

func TestPolicyEngineErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("unavailable")
	err := &PolicyEngineError{Operation: "write_relationship", Cause: cause}
	if !errors.Is(err, ErrPolicyEngine) {
		t.Fatalf("expected errors.Is match against ErrPolicyEngine")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to reach the wrapped cause")
	}
}

func TestDatabaseErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("deadlock detected")
	err := &DatabaseError{Operation: "claim batch", Cause: cause}
	if !errors.Is(err, ErrDatabase) {
		t.Fatalf("expected errors.Is match against ErrDatabase")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to reach the wrapped cause")
	}
}
