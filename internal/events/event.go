// Package events implements C1 (event serializer), C3 (event translator)
// and C4 (composite translator). Domain events are encoded as a
// structured, JSON-shaped Payload for outbox storage (C1); the
// translator then maps a raw (event_type, payload) pair straight to
// policy-engine operations (C3/C4), without reconstructing a typed event
// — translators are pure functions over the wire payload, matching the
// contract in spec §4.3.
package events

import (
	"time"

	"github.com/openshift-hyperfleet/kartograph/internal/kartoerr"
)

// Payload is the JSON-shaped structure persisted in the outbox row and
// handed to translators.
type Payload map[string]any

// Event is a typed domain event. Concrete IAM event types implement this
// so producers can append them without hand-building a Payload.
type Event interface {
	EventType() string
	AggregateID() string
	OccurredAt() time.Time
}

// Codec serializes and deserializes one event type.
type Codec struct {
	Serialize   func(e Event) (Payload, error)
	Deserialize func(p Payload) (Event, error)
}

// Registry is the C1 event serializer: a set of event classes keyed by
// event_type, each with a round-tripping Codec.
type Registry struct {
	codecs map[string]Codec
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{codecs: make(map[string]Codec)}
}

// Register adds a Codec for eventType. Re-registering the same type
// overwrites the previous entry.
func (r *Registry) Register(eventType string, c Codec) {
	r.codecs[eventType] = c
}

// Serialize converts a typed event to its Payload, using the Codec
// registered for e.EventType().
func (r *Registry) Serialize(e Event) (Payload, error) {
	c, ok := r.codecs[e.EventType()]
	if !ok {
		return nil, &kartoerr.UnknownEventKindError{EventType: e.EventType()}
	}
	return c.Serialize(e)
}

// Deserialize reconstructs a typed event from a stored Payload.
func (r *Registry) Deserialize(eventType string, p Payload) (Event, error) {
	c, ok := r.codecs[eventType]
	if !ok {
		return nil, &kartoerr.UnknownEventKindError{EventType: eventType}
	}
	return c.Deserialize(p)
}

// Supported reports whether eventType has a registered codec.
func (r *Registry) Supported(eventType string) bool {
	_, ok := r.codecs[eventType]
	return ok
}

// --- Payload field helpers ---
// Shared by every Codec.Deserialize implementation so a missing or
// mistyped field always fails the same way: PayloadSchemaMismatch.

func requireString(p Payload, eventType, field string) (string, error) {
	v, ok := p[field]
	if !ok || v == nil {
		return "", &kartoerr.PayloadSchemaMismatchError{EventType: eventType, Field: field, Reason: "missing"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &kartoerr.PayloadSchemaMismatchError{EventType: eventType, Field: field, Reason: "not a string"}
	}
	return s, nil
}

func optionalString(p Payload, field string) string {
	if v, ok := p[field]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func requireTime(p Payload, eventType, field string) (time.Time, error) {
	s, err := requireString(p, eventType, field)
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, &kartoerr.PayloadSchemaMismatchError{EventType: eventType, Field: field, Reason: "not RFC3339: " + err.Error()}
	}
	return t, nil
}
