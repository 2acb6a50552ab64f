// Package kartoerr defines the error kinds raised across Core A and Core
// B (spec §7). Each kind has a sentinel for errors.Is comparisons and a
// typed struct carrying the detail operators need, wrapping the
// underlying cause where one exists.
package kartoerr

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels. Callers compare with errors.Is; the concrete *Error types
// below carry the detail.
var (
	ErrUnknownEventKind      = errors.New("kartoerr: unknown event kind")
	ErrPayloadSchemaMismatch = errors.New("kartoerr: payload schema mismatch")
	ErrInvalidLabelName      = errors.New("kartoerr: invalid label name")
	ErrDuplicateLogicalID    = errors.New("kartoerr: duplicate logical id")
	ErrOrphanedEdgeRef       = errors.New("kartoerr: orphaned edge reference")
	ErrPolicyEngine          = errors.New("kartoerr: policy engine call failed")
	ErrDatabase              = errors.New("kartoerr: database operation failed")
)

// UnknownEventKindError is raised by the serializer or composite
// translator when event_type has no registered handler.
type UnknownEventKindError struct {
	EventType string
}

func (e *UnknownEventKindError) Error() string {
	return fmt.Sprintf("kartoerr: unknown event kind %q", e.EventType)
}

func (e *UnknownEventKindError) Unwrap() error { return ErrUnknownEventKind }

// PayloadSchemaMismatchError is raised by the serializer when a required
// field is missing or has the wrong shape.
type PayloadSchemaMismatchError struct {
	EventType string
	Field     string
	Reason    string
}

func (e *PayloadSchemaMismatchError) Error() string {
	return fmt.Sprintf("kartoerr: payload for %q: field %q: %s", e.EventType, e.Field, e.Reason)
}

func (e *PayloadSchemaMismatchError) Unwrap() error { return ErrPayloadSchemaMismatch }

// InvalidLabelNameError is raised by the bulk-load strategy before any
// SQL runs, when a label does not match ^[A-Za-z_][A-Za-z0-9_]{0,62}$.
type InvalidLabelNameError struct {
	Label string
}

func (e *InvalidLabelNameError) Error() string {
	return fmt.Sprintf("kartoerr: invalid label name %q", e.Label)
}

func (e *InvalidLabelNameError) Unwrap() error { return ErrInvalidLabelName }

// DuplicateLogicalIDError is raised by the staging manager when the same
// logical id appears more than once within one entity kind's batch.
type DuplicateLogicalIDError struct {
	Kind string // "node" or "edge"
	IDs  []string
}

func (e *DuplicateLogicalIDError) Error() string {
	return fmt.Sprintf("kartoerr: duplicate %s logical ids: %s", e.Kind, strings.Join(e.IDs, ", "))
}

func (e *DuplicateLogicalIDError) Unwrap() error { return ErrDuplicateLogicalID }

// OrphanedEdgeRefError is raised by the staging manager when an edge's
// start_id or end_id does not resolve to any staged or existing node.
// MissingIDs is capped to the first 10 per spec; TotalMissing carries the
// true count when truncated.
type OrphanedEdgeRefError struct {
	MissingIDs   []string
	TotalMissing int
}

func (e *OrphanedEdgeRefError) Error() string {
	suffix := ""
	if e.TotalMissing > len(e.MissingIDs) {
		suffix = fmt.Sprintf(" (and %d more)", e.TotalMissing-len(e.MissingIDs))
	}
	return fmt.Sprintf("kartoerr: orphaned edge references to missing nodes: %s%s",
		strings.Join(e.MissingIDs, ", "), suffix)
}

func (e *OrphanedEdgeRefError) Unwrap() error { return ErrOrphanedEdgeRef }

// PolicyEngineError wraps a failed relationship-tuple call. Cause is the
// underlying transport/gRPC error.
type PolicyEngineError struct {
	Operation string // e.g. "write_relationship", "delete_relationships_by_filter"
	Cause     error
}

func (e *PolicyEngineError) Error() string {
	return fmt.Sprintf("kartoerr: policy engine %s: %v", e.Operation, e.Cause)
}

func (e *PolicyEngineError) Unwrap() error { return e.Cause }

// Is reports ErrPolicyEngine as well as the wrapped cause, so callers can
// match either the generic kind or the specific driver error.
func (e *PolicyEngineError) Is(target error) bool { return target == ErrPolicyEngine }

// DatabaseError wraps a failed SQL operation along the outbox or
// bulk-loading path.
type DatabaseError struct {
	Operation string // e.g. "claim batch", "copy staging rows", "advisory lock"
	Cause     error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("kartoerr: database %s: %v", e.Operation, e.Cause)
}

func (e *DatabaseError) Unwrap() error { return e.Cause }

func (e *DatabaseError) Is(target error) bool { return target == ErrDatabase }
