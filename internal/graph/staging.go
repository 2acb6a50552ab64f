package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/lib/pq"

	"github.com/openshift-hyperfleet/kartograph/internal/kartoerr"
	"github.com/openshift-hyperfleet/kartograph/pkg/storage/postgres"
)

func marshalProperties(props map[string]any) ([]byte, error) {
	body, err := json.Marshal(props)
	if err != nil {
		return nil, fmt.Errorf("graph: marshal properties: %w", err)
	}
	return body, nil
}

// StagingManager owns the temp tables a batch copies rows through before
// they are upserted into label tables. Every staging table is
// ON COMMIT DROP, so nothing survives past the enclosing transaction.
type StagingManager struct{}

// NewStagingManager returns a StagingManager. It holds no state.
func NewStagingManager() *StagingManager {
	return &StagingManager{}
}

// CreateNodeStagingTable creates a session-scoped temp table for staging
// node creates.
func (m *StagingManager) CreateNodeStagingTable(ctx context.Context, tx *sql.Tx, sessionID string) (string, error) {
	table := "_staging_nodes_" + sessionID
	stmt := fmt.Sprintf(`
		CREATE TEMP TABLE %s (
			id TEXT NOT NULL,
			label TEXT NOT NULL,
			properties JSONB NOT NULL
		) ON COMMIT DROP
	`, quoteIdent(table))
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return "", fmt.Errorf("graph: create node staging table: %w", err)
	}
	return table, nil
}

// CreateEdgeStagingTable creates a session-scoped temp table for staging
// edge creates, with start_graphid/end_graphid columns populated later
// by ResolveEdgeGraphIDs.
func (m *StagingManager) CreateEdgeStagingTable(ctx context.Context, tx *sql.Tx, sessionID string) (string, error) {
	table := "_staging_edges_" + sessionID
	stmt := fmt.Sprintf(`
		CREATE TEMP TABLE %s (
			id TEXT NOT NULL,
			label TEXT NOT NULL,
			start_id TEXT NOT NULL,
			end_id TEXT NOT NULL,
			start_graphid ag_catalog.graphid,
			end_graphid ag_catalog.graphid,
			properties JSONB NOT NULL
		) ON COMMIT DROP
	`, quoteIdent(table))
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return "", fmt.Errorf("graph: create edge staging table: %w", err)
	}
	return table, nil
}

// CopyNodesToStaging streams node-create operations into the staging
// table via the COPY protocol. lib/pq's CopyIn statement performs the
// wire-format encoding itself, so no manual escaping is needed here.
func (m *StagingManager) CopyNodesToStaging(ctx context.Context, tx *sql.Tx, table string, ops []Operation, graphName string) (int, error) {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, "id", "label", "properties"))
	if err != nil {
		return 0, fmt.Errorf("graph: prepare node copy: %w", err)
	}
	defer stmt.Close()

	for _, op := range ops {
		props := propertiesWithID(op.SetProperties, op.ID, graphName)
		body, err := marshalProperties(props)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, op.ID, op.Label, string(body)); err != nil {
			return 0, fmt.Errorf("graph: copy node row %s: %w", op.ID, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return 0, fmt.Errorf("graph: flush node copy: %w", err)
	}
	return len(ops), nil
}

// CopyEdgesToStaging streams edge-create operations into the staging
// table.
func (m *StagingManager) CopyEdgesToStaging(ctx context.Context, tx *sql.Tx, table string, ops []Operation, graphName string) (int, error) {
	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, "id", "label", "start_id", "end_id", "properties"))
	if err != nil {
		return 0, fmt.Errorf("graph: prepare edge copy: %w", err)
	}
	defer stmt.Close()

	for _, op := range ops {
		props := propertiesWithID(op.SetProperties, op.ID, graphName)
		body, err := marshalProperties(props)
		if err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, op.ID, op.Label, op.StartID, op.EndID, string(body)); err != nil {
			return 0, fmt.Errorf("graph: copy edge row %s: %w", op.ID, err)
		}
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		return 0, fmt.Errorf("graph: flush edge copy: %w", err)
	}
	return len(ops), nil
}

func propertiesWithID(set map[string]any, id, graphName string) map[string]any {
	props := make(map[string]any, len(set)+2)
	for k, v := range set {
		props[k] = v
	}
	props["id"] = id
	props["graph_id"] = graphName
	return props
}

// FetchDistinctLabels returns the distinct label values present in a
// staging table.
func (m *StagingManager) FetchDistinctLabels(ctx context.Context, q postgres.Querier, table string) ([]string, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf(`SELECT DISTINCT label FROM %s`, quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("graph: fetch distinct labels: %w", err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, fmt.Errorf("graph: scan distinct label: %w", err)
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

// CreateLabelIndex indexes a staging table's label column so
// per-label filtering during upsert doesn't sequential-scan the batch.
func (m *StagingManager) CreateLabelIndex(ctx context.Context, q postgres.Querier, table string) error {
	stmt := fmt.Sprintf(`CREATE INDEX %s ON %s (label)`, quoteIdent(table+"_label_idx"), quoteIdent(table))
	if _, err := q.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("graph: create staging label index: %w", err)
	}
	return nil
}

// CreateEdgeResolutionIndexes indexes an edge staging table's start_id
// and end_id columns ahead of graphid resolution.
func (m *StagingManager) CreateEdgeResolutionIndexes(ctx context.Context, q postgres.Querier, table string) error {
	for _, col := range []string{"start_id", "end_id"} {
		stmt := fmt.Sprintf(`CREATE INDEX %s ON %s (%s)`, quoteIdent(table+"_"+col+"_idx"), quoteIdent(table), quoteIdent(col))
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("graph: create edge resolution index on %s: %w", col, err)
		}
	}
	return nil
}

// CreateGraphIDLookupTable builds a flat (logical_id -> graphid) temp
// table from every existing node, used instead of joining directly
// against the inherited vertex parent table during edge resolution.
func (m *StagingManager) CreateGraphIDLookupTable(ctx context.Context, q postgres.Querier, graphName, sessionID string) (string, int, error) {
	lookupTable := "_graphid_lookup_" + sessionID
	createStmt := fmt.Sprintf(`
		CREATE TEMP TABLE %s ON COMMIT DROP AS
		SELECT
			ag_catalog.agtype_object_field_text_agtype(properties, '"id"'::ag_catalog.agtype) AS logical_id,
			id AS graphid
		FROM %s
	`, quoteIdent(lookupTable), qualified(graphName, "_ag_label_vertex"))
	if _, err := q.ExecContext(ctx, createStmt); err != nil {
		return "", 0, fmt.Errorf("graph: create graphid lookup table: %w", err)
	}

	var count int
	if err := q.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, quoteIdent(lookupTable))).Scan(&count); err != nil {
		return "", 0, fmt.Errorf("graph: count graphid lookup rows: %w", err)
	}

	indexStmt := fmt.Sprintf(`CREATE INDEX %s ON %s (logical_id)`, quoteIdent(lookupTable+"_logical_id_idx"), quoteIdent(lookupTable))
	if _, err := q.ExecContext(ctx, indexStmt); err != nil {
		return "", 0, fmt.Errorf("graph: index graphid lookup table: %w", err)
	}

	return lookupTable, count, nil
}

// ResolveEdgeGraphIDs fills in start_graphid/end_graphid on an edge
// staging table by joining against the lookup table. Two separate
// UPDATEs avoid a cartesian product from joining on both columns at
// once. Edges whose endpoints aren't found are left with NULL graphids
// for CheckForOrphanedEdges to catch.
func (m *StagingManager) ResolveEdgeGraphIDs(ctx context.Context, q postgres.Querier, table, lookupTable string) error {
	startStmt := fmt.Sprintf(`
		UPDATE %s AS s
		SET start_graphid = lk.graphid
		FROM %s AS lk
		WHERE lk.logical_id = s.start_id
	`, quoteIdent(table), quoteIdent(lookupTable))
	if _, err := q.ExecContext(ctx, startStmt); err != nil {
		return fmt.Errorf("graph: resolve start_graphid: %w", err)
	}

	endStmt := fmt.Sprintf(`
		UPDATE %s AS s
		SET end_graphid = lk.graphid
		FROM %s AS lk
		WHERE lk.logical_id = s.end_id
	`, quoteIdent(table), quoteIdent(lookupTable))
	if _, err := q.ExecContext(ctx, endStmt); err != nil {
		return fmt.Errorf("graph: resolve end_graphid: %w", err)
	}
	return nil
}

// CheckForOrphanedEdges fails the batch if any edge references a node id
// that didn't resolve to a graphid.
func (m *StagingManager) CheckForOrphanedEdges(ctx context.Context, q postgres.Querier, table string) error {
	stmt := fmt.Sprintf(`
		SELECT s.id, s.start_id, s.end_id, s.start_graphid, s.end_graphid
		FROM %s AS s
		WHERE s.start_graphid IS NULL OR s.end_graphid IS NULL
	`, quoteIdent(table))
	rows, err := q.QueryContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("graph: check orphaned edges: %w", err)
	}
	defer rows.Close()

	missing := make(map[string]struct{})
	var total int
	for rows.Next() {
		var id, startID, endID string
		var startGID, endGID sql.NullString
		if err := rows.Scan(&id, &startID, &endID, &startGID, &endGID); err != nil {
			return fmt.Errorf("graph: scan orphan candidate: %w", err)
		}
		total++
		if !startGID.Valid {
			missing[startID] = struct{}{}
		}
		if !endGID.Valid {
			missing[endID] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if total == 0 {
		return nil
	}

	ids := make([]string, 0, len(missing))
	for id := range missing {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	capped := ids
	if len(capped) > 10 {
		capped = capped[:10]
	}
	return &kartoerr.OrphanedEdgeRefError{MissingIDs: capped, TotalMissing: len(ids)}
}

// CheckForDuplicateIDs fails the batch if the same logical id appears
// more than once in a staging table.
func (m *StagingManager) CheckForDuplicateIDs(ctx context.Context, q postgres.Querier, table, entityKind string) error {
	stmt := fmt.Sprintf(`
		SELECT id FROM %s GROUP BY id HAVING COUNT(*) > 1
	`, quoteIdent(table))
	rows, err := q.QueryContext(ctx, stmt)
	if err != nil {
		return fmt.Errorf("graph: check duplicate ids: %w", err)
	}
	defer rows.Close()

	var dupes []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("graph: scan duplicate id: %w", err)
		}
		dupes = append(dupes, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(dupes) == 0 {
		return nil
	}
	return &kartoerr.DuplicateLogicalIDError{Kind: entityKind, IDs: dupes}
}
