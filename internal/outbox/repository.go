package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/openshift-hyperfleet/kartograph/pkg/storage/postgres"
)

// Repository appends events to the outbox table. Append never opens its
// own transaction: it executes through the Querier the caller passes in,
// so when that Querier is the caller's *sql.Tx the append is only durable
// as part of the caller's own write transaction. The after-insert trigger (see
// internal/platform/migrations) handles push notification; Repository
// has no knowledge of pgnotify.
type Repository struct{}

// NewRepository returns a Repository. It holds no state: every call
// uses the Querier passed to it, so a single Repository value can be
// shared across goroutines.
func NewRepository() *Repository {
	return &Repository{}
}

// Append inserts a new outbox row for the given aggregate and event. The
// caller is responsible for having opened a transaction
// (postgres.TxManager.BeginTx or WithTx) and passing it as q, and for
// committing that transaction once the aggregate's own writes succeed —
// this is what makes the outbox transactional with the write it
// describes.
func (r *Repository) Append(ctx context.Context, q postgres.Querier, aggregateType, aggregateID, eventType string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("outbox: marshal payload: %w", err)
	}

	// A UUIDv7 sorts lexicographically by creation time, so the claim
	// query's ORDER BY id observes rows in insert order — required for the
	// per-aggregate ordering guarantee a random v4 UUID can't provide.
	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("outbox: generate event id: %w", err)
	}

	const stmt = `
		INSERT INTO outbox_events (id, aggregate_type, aggregate_id, event_type, payload)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := q.ExecContext(ctx, stmt, id.String(), aggregateType, aggregateID, eventType, body); err != nil {
		return fmt.Errorf("outbox: append event: %w", err)
	}
	return nil
}
