package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/openshift-hyperfleet/kartograph/pkg/storage/postgres"
)

// Entry is one claimed outbox row.
type Entry struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	RetryCount    int
}

// Claimer claims and resolves batches of outbox rows using SKIP LOCKED so
// multiple worker processes can run against the same table without
// stepping on each other's batches.
type Claimer struct {
	maxRetries int
}

// NewClaimer returns a Claimer. maxRetries is the number of failed
// attempts allowed before a row is dead-lettered instead of retried.
func NewClaimer(maxRetries int) *Claimer {
	return &Claimer{maxRetries: maxRetries}
}

// Claim locks up to batchSize unprocessed, non-dead-lettered rows and
// returns them in id order, the same order writer transactions produced
// them in. Rows locked by another worker's in-flight batch are skipped,
// not waited on.
func (c *Claimer) Claim(ctx context.Context, q postgres.Querier, batchSize int) ([]Entry, error) {
	const stmt = `
		SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at, retry_count
		FROM outbox_events
		WHERE processed_at IS NULL AND dead_lettered_at IS NULL
		ORDER BY id
		FOR UPDATE SKIP LOCKED
		LIMIT $1
	`
	rows, err := q.QueryContext(ctx, stmt, batchSize)
	if err != nil {
		return nil, fmt.Errorf("outbox: claim batch: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var raw []byte
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &raw, &e.CreatedAt, &e.RetryCount); err != nil {
			return nil, fmt.Errorf("outbox: scan claimed row: %w", err)
		}
		if err := json.Unmarshal(raw, &e.Payload); err != nil {
			return nil, fmt.Errorf("outbox: unmarshal payload for %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox: iterate claimed rows: %w", err)
	}
	return entries, nil
}

// MarkProcessed sets processed_at on a successfully applied row.
func (c *Claimer) MarkProcessed(ctx context.Context, q postgres.Querier, id string) error {
	const stmt = `UPDATE outbox_events SET processed_at = now() WHERE id = $1`
	if _, err := q.ExecContext(ctx, stmt, id); err != nil {
		return fmt.Errorf("outbox: mark processed %s: %w", id, err)
	}
	return nil
}

// MarkFailed increments retry_count and records the error. If the row has
// now exceeded maxRetries it is dead-lettered instead of left for retry.
func (c *Claimer) MarkFailed(ctx context.Context, q postgres.Querier, id string, retryCount int, cause error) error {
	if retryCount+1 > c.maxRetries {
		const stmt = `
			UPDATE outbox_events
			SET retry_count = retry_count + 1, last_error = $2, dead_lettered_at = now()
			WHERE id = $1
		`
		if _, err := q.ExecContext(ctx, stmt, id, cause.Error()); err != nil {
			return fmt.Errorf("outbox: dead-letter %s: %w", id, err)
		}
		return nil
	}

	const stmt = `
		UPDATE outbox_events
		SET retry_count = retry_count + 1, last_error = $2
		WHERE id = $1
	`
	if _, err := q.ExecContext(ctx, stmt, id, cause.Error()); err != nil {
		return fmt.Errorf("outbox: mark failed %s: %w", id, err)
	}
	return nil
}

// IsDeadLettered reports whether the row at id is currently dead-lettered.
// Used by tests and operational tooling; the worker itself never needs
// to query this since MarkFailed's own transaction already knows.
func IsDeadLettered(ctx context.Context, q postgres.Querier, id string) (bool, error) {
	const stmt = `SELECT dead_lettered_at IS NOT NULL FROM outbox_events WHERE id = $1`
	var dead bool
	err := q.QueryRowContext(ctx, stmt, id).Scan(&dead)
	if err == sql.ErrNoRows {
		return false, fmt.Errorf("outbox: row %s not found", id)
	}
	if err != nil {
		return false, fmt.Errorf("outbox: check dead-lettered %s: %w", id, err)
	}
	return dead, nil
}
