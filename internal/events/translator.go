package events

import (
	"github.com/openshift-hyperfleet/kartograph/internal/kartoerr"
	"github.com/openshift-hyperfleet/kartograph/internal/policy"
)

// Translator is C3: a pure mapping from one domain event's wire payload
// to an ordered list of relationship-tuple operations. Implementations
// must not read external state, including the policy engine, during
// translation.
type Translator interface {
	SupportedEventTypes() map[string]struct{}
	Translate(eventType string, payload Payload) ([]policy.Operation, error)
}

// CompositeTranslator is C4: a registry of translators keyed by event
// type. Exactly one translator owns each event type; dispatch fails fast
// with UnknownEventKind otherwise.
type CompositeTranslator struct {
	byEventType map[string]Translator
}

// NewCompositeTranslator builds an empty composite translator.
func NewCompositeTranslator() *CompositeTranslator {
	return &CompositeTranslator{byEventType: make(map[string]Translator)}
}

// Register adds t for every event type it declares supporting. A later
// registration for the same event type overwrites the earlier one —
// callers are expected to register each bounded context's translator
// exactly once at startup.
func (c *CompositeTranslator) Register(t Translator) {
	for eventType := range t.SupportedEventTypes() {
		c.byEventType[eventType] = t
	}
}

// Translate dispatches to the sole registered translator for eventType.
func (c *CompositeTranslator) Translate(eventType string, payload Payload) ([]policy.Operation, error) {
	t, ok := c.byEventType[eventType]
	if !ok {
		return nil, &kartoerr.UnknownEventKindError{EventType: eventType}
	}
	return t.Translate(eventType, payload)
}
