// Package graph implements the Apache AGE bulk-loading pipeline (C7-C10):
// a staging-table COPY loader, the ag_catalog query builder, the batch
// strategy that sequences label creation/upsert/delete/update, and the
// fixed per-label index set. Every identifier that varies (graph name,
// label, staging table) is passed through the driver's identifier
// quoter; only typed values are bound as parameters.
package graph

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/openshift-hyperfleet/kartograph/pkg/storage/postgres"
)

// EntityType distinguishes node (vertex) labels from edge labels; AGE
// stores each in its own parent table and extension function pair.
type EntityType int

const (
	EntityNode EntityType = iota
	EntityEdge
)

// LabelInfo is the (label_id, sequence name) pair AGE assigns a label,
// needed to mint new graph ids via ag_catalog._graphid.
type LabelInfo struct {
	LabelID int64
	SeqName string
}

// quoteIdent quotes a single SQL identifier for safe interpolation. Used
// only for identifiers that name database objects (schemas, tables); all
// data values remain bound parameters.
func quoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

// qualified quotes and joins a schema-qualified identifier, e.g.
// qualified("kartograph", "person") -> `"kartograph"."person"`.
func qualified(schema, name string) string {
	return quoteIdent(schema) + "." + quoteIdent(name)
}

// StableHash computes the advisory-lock key for a (graph, label) pair:
// the low 63 bits of SHA-256(graph + ":" + label), so the same key is
// produced across processes and Go/Python runtimes alike.
func StableHash(graphName, label string) int64 {
	sum := sha256.Sum256([]byte(graphName + ":" + label))
	hexPrefix := hex.EncodeToString(sum[:])[:16]
	v, _ := strconv.ParseUint(hexPrefix, 16, 64)
	return int64(v & 0x7FFFFFFFFFFFFFFF)
}

// labelInfoRow is the db-tagged shape GetLabelInfo scans via sqlx, since
// the read path benefits from named-struct scanning more than the
// write-heavy COPY/upsert paths do.
type labelInfoRow struct {
	LabelID int64  `db:"id"`
	SeqName string `db:"seq_name"`
}

// GetLabelInfo looks up the label_id and sequence name AGE assigned a
// label within a graph. Returns (nil, nil) if the label does not exist
// yet.
func GetLabelInfo(ctx context.Context, q postgres.Querier, graphName, label string) (*LabelInfo, error) {
	const stmt = `
		SELECT l.id, l.seq_name
		FROM ag_catalog.ag_label l
		JOIN ag_catalog.ag_graph g ON l.graph = g.graphid
		WHERE g.name = $1 AND l.name = $2
	`
	rows, err := q.QueryContext(ctx, stmt, graphName, label)
	if err != nil {
		return nil, fmt.Errorf("graph: get label info for %s.%s: %w", graphName, label, err)
	}
	defer rows.Close()

	var scanned []labelInfoRow
	if err := sqlx.StructScan(rows, &scanned); err != nil {
		return nil, fmt.Errorf("graph: scan label info for %s.%s: %w", graphName, label, err)
	}
	if len(scanned) == 0 {
		return nil, nil
	}
	return &LabelInfo{LabelID: scanned[0].LabelID, SeqName: scanned[0].SeqName}, nil
}

type existingLabelRow struct {
	Name string `db:"name"`
}

// GetExistingLabels returns the set of non-system label names already
// defined in a graph.
func GetExistingLabels(ctx context.Context, q postgres.Querier, graphName string) (map[string]struct{}, error) {
	const stmt = `
		SELECT l.name
		FROM ag_catalog.ag_label l
		JOIN ag_catalog.ag_graph g ON l.graph = g.graphid
		WHERE g.name = $1
		AND l.name NOT LIKE '\_ag\_label%' ESCAPE '\'
	`
	rows, err := q.QueryContext(ctx, stmt, graphName)
	if err != nil {
		return nil, fmt.Errorf("graph: get existing labels for %s: %w", graphName, err)
	}
	defer rows.Close()

	var scanned []existingLabelRow
	if err := sqlx.StructScan(rows, &scanned); err != nil {
		return nil, fmt.Errorf("graph: scan existing labels for %s: %w", graphName, err)
	}

	labels := make(map[string]struct{}, len(scanned))
	for _, r := range scanned {
		labels[r.Name] = struct{}{}
	}
	return labels, nil
}

// AcquireAdvisoryLock takes a transaction-scoped advisory lock keyed by
// StableHash(graphName, label). Must be called within the transaction
// that will go on to create or upsert the label; the lock is released
// automatically at commit or rollback.
func AcquireAdvisoryLock(ctx context.Context, q postgres.Querier, graphName, label string) error {
	_, err := q.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, StableHash(graphName, label))
	if err != nil {
		return fmt.Errorf("graph: acquire advisory lock for %s.%s: %w", graphName, label, err)
	}
	return nil
}

// CreateLabel registers a new vertex or edge label with the graph
// extension's catalog.
func CreateLabel(ctx context.Context, q postgres.Querier, graphName, label string, et EntityType) error {
	fn := "ag_catalog.create_vlabel"
	if et == EntityEdge {
		fn = "ag_catalog.create_elabel"
	}
	if _, err := q.ExecContext(ctx, fmt.Sprintf(`SELECT %s($1, $2)`, fn), graphName, label); err != nil {
		return fmt.Errorf("graph: create label %s.%s: %w", graphName, label, err)
	}
	return nil
}

// UpsertResult reports how many staging rows were matched by the update
// pass and how many were newly inserted.
type UpsertResult struct {
	Updated  int64
	Inserted int64
}

// ExecuteLabelUpsert applies the create-operation staging rows for one
// label: a plain INSERT for a brand-new (empty) label, or an
// UPDATE-then-INSERT-WHERE-NOT-EXISTS pair for a label that may already
// hold rows.
func ExecuteLabelUpsert(ctx context.Context, q postgres.Querier, graphName, label string, labelID int64, seqName, stagingTable string, et EntityType, isNewLabel bool) (UpsertResult, error) {
	if isNewLabel {
		res, err := q.ExecContext(ctx, insertNewLabelSQL(graphName, label, stagingTable, seqName, et), labelID, label)
		if err != nil {
			return UpsertResult{}, fmt.Errorf("graph: insert new label %s.%s: %w", graphName, label, err)
		}
		n, _ := res.RowsAffected()
		return UpsertResult{Inserted: n}, nil
	}

	updateRes, err := q.ExecContext(ctx, updateExistingSQL(graphName, label, stagingTable), label)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("graph: update existing rows for %s.%s: %w", graphName, label, err)
	}
	updated, _ := updateRes.RowsAffected()

	insertRes, err := q.ExecContext(ctx, insertExistingLabelSQL(graphName, label, stagingTable, seqName, et), labelID, label)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("graph: insert new rows for existing label %s.%s: %w", graphName, label, err)
	}
	inserted, _ := insertRes.RowsAffected()

	return UpsertResult{Updated: updated, Inserted: inserted}, nil
}

func updateExistingSQL(graphName, label, stagingTable string) string {
	return fmt.Sprintf(`
		UPDATE %s AS t
		SET properties = (s.properties::text)::ag_catalog.agtype
		FROM %s AS s
		WHERE s.label = $1
		AND ag_catalog.agtype_object_field_text_agtype(t.properties, '"id"'::ag_catalog.agtype) = s.id
	`, qualified(graphName, label), quoteIdent(stagingTable))
}

func insertNewLabelSQL(graphName, label, stagingTable, seqName string, et EntityType) string {
	seqLiteral := fmt.Sprintf("%s.%s", quoteIdent(graphName), quoteIdent(seqName))
	if et == EntityNode {
		return fmt.Sprintf(`
			INSERT INTO %s (id, properties)
			SELECT ag_catalog._graphid($1, nextval('%s')), (s.properties::text)::ag_catalog.agtype
			FROM %s AS s
			WHERE s.label = $2
		`, qualified(graphName, label), seqLiteral, quoteIdent(stagingTable))
	}
	return fmt.Sprintf(`
		INSERT INTO %s (id, start_id, end_id, properties)
		SELECT ag_catalog._graphid($1, nextval('%s')), s.start_graphid, s.end_graphid, (s.properties::text)::ag_catalog.agtype
		FROM %s AS s
		WHERE s.label = $2
		AND s.start_graphid IS NOT NULL AND s.end_graphid IS NOT NULL
	`, qualified(graphName, label), seqLiteral, quoteIdent(stagingTable))
}

func insertExistingLabelSQL(graphName, label, stagingTable, seqName string, et EntityType) string {
	seqLiteral := fmt.Sprintf("%s.%s", quoteIdent(graphName), quoteIdent(seqName))
	target := qualified(graphName, label)
	if et == EntityNode {
		return fmt.Sprintf(`
			INSERT INTO %s (id, properties)
			SELECT ag_catalog._graphid($1, nextval('%s')), (s.properties::text)::ag_catalog.agtype
			FROM %s AS s
			WHERE s.label = $2
			AND NOT EXISTS (
				SELECT 1 FROM %s AS t
				WHERE ag_catalog.agtype_object_field_text_agtype(t.properties, '"id"'::ag_catalog.agtype) = s.id
			)
		`, target, seqLiteral, quoteIdent(stagingTable), target)
	}
	return fmt.Sprintf(`
		INSERT INTO %s (id, start_id, end_id, properties)
		SELECT ag_catalog._graphid($1, nextval('%s')), s.start_graphid, s.end_graphid, (s.properties::text)::ag_catalog.agtype
		FROM %s AS s
		WHERE s.label = $2
		AND s.start_graphid IS NOT NULL AND s.end_graphid IS NOT NULL
		AND NOT EXISTS (
			SELECT 1 FROM %s AS e
			WHERE ag_catalog.agtype_object_field_text_agtype(e.properties, '"id"'::ag_catalog.agtype) = s.id
		)
	`, target, seqLiteral, quoteIdent(stagingTable), target)
}

// DeleteNodesWithDetach deletes the connected edges of the given logical
// node ids, then the nodes themselves, directly against AGE's parent
// tables (table inheritance means every label's rows are reachable
// through the parent). Returns the number of nodes deleted.
func DeleteNodesWithDetach(ctx context.Context, q postgres.Querier, graphName string, ids []string) (int64, error) {
	edgeTable := qualified(graphName, "_ag_label_edge")
	vertexTable := qualified(graphName, "_ag_label_vertex")

	deleteEdgesStmt := fmt.Sprintf(`
		DELETE FROM %s
		WHERE start_id IN (
			SELECT id FROM %s
			WHERE ag_catalog.agtype_object_field_text_agtype(properties, '"id"'::ag_catalog.agtype) = ANY($1)
		) OR end_id IN (
			SELECT id FROM %s
			WHERE ag_catalog.agtype_object_field_text_agtype(properties, '"id"'::ag_catalog.agtype) = ANY($1)
		)
	`, edgeTable, vertexTable, vertexTable)
	if _, err := q.ExecContext(ctx, deleteEdgesStmt, pq.Array(ids)); err != nil {
		return 0, fmt.Errorf("graph: delete incident edges: %w", err)
	}

	deleteNodesStmt := fmt.Sprintf(`
		DELETE FROM %s
		WHERE ag_catalog.agtype_object_field_text_agtype(properties, '"id"'::ag_catalog.agtype) = ANY($1)
	`, vertexTable)
	res, err := q.ExecContext(ctx, deleteNodesStmt, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("graph: delete nodes: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// DeleteEdges deletes edges by logical id against the parent edge table.
func DeleteEdges(ctx context.Context, q postgres.Querier, graphName string, ids []string) (int64, error) {
	stmt := fmt.Sprintf(`
		DELETE FROM %s
		WHERE ag_catalog.agtype_object_field_text_agtype(properties, '"id"'::ag_catalog.agtype) = ANY($1)
	`, qualified(graphName, "_ag_label_edge"))
	res, err := q.ExecContext(ctx, stmt, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("graph: delete edges: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// FindEntityTable locates the label table an entity actually lives in, by
// querying tableoid::regclass against the parent table. Returns "" if no
// row matches.
func FindEntityTable(ctx context.Context, q postgres.Querier, graphName, entityID string, et EntityType) (string, error) {
	parent := "_ag_label_vertex"
	if et == EntityEdge {
		parent = "_ag_label_edge"
	}
	stmt := fmt.Sprintf(`
		SELECT tableoid::regclass
		FROM %s
		WHERE ag_catalog.agtype_object_field_text_agtype(properties, '"id"'::ag_catalog.agtype) = $1
	`, qualified(graphName, parent))

	var table string
	err := q.QueryRowContext(ctx, stmt, entityID).Scan(&table)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("graph: find entity table for %s: %w", entityID, err)
	}
	return table, nil
}

// UpdateProperties merges setProperties into an entity's existing
// properties object. tableName must come from FindEntityTable's
// regclass-qualified result, which is already safe to interpolate since
// it originates from the database's own catalog, not user input.
func UpdateProperties(ctx context.Context, q postgres.Querier, tableName, entityID string, setProperties map[string]any) error {
	body, err := json.Marshal(setProperties)
	if err != nil {
		return fmt.Errorf("graph: marshal set_properties: %w", err)
	}
	stmt := fmt.Sprintf(`
		UPDATE %s AS t
		SET properties = ((t.properties::text)::jsonb || $1::jsonb)::text::ag_catalog.agtype
		WHERE ag_catalog.agtype_object_field_text_agtype(t.properties, '"id"'::ag_catalog.agtype) = $2
	`, tableName)
	if _, err := q.ExecContext(ctx, stmt, body, entityID); err != nil {
		return fmt.Errorf("graph: update properties for %s: %w", entityID, err)
	}
	return nil
}

// RemoveProperties deletes the named keys from an entity's properties
// object.
func RemoveProperties(ctx context.Context, q postgres.Querier, tableName, entityID string, propertyNames []string) error {
	stmt := fmt.Sprintf(`
		UPDATE %s AS t
		SET properties = ((t.properties::text)::jsonb - $1::text[])::text::ag_catalog.agtype
		WHERE ag_catalog.agtype_object_field_text_agtype(t.properties, '"id"'::ag_catalog.agtype) = $2
	`, tableName)
	if _, err := q.ExecContext(ctx, stmt, pq.Array(propertyNames), entityID); err != nil {
		return fmt.Errorf("graph: remove properties for %s: %w", entityID, err)
	}
	return nil
}

// CountResolvedEdges counts staging rows whose start_graphid has already
// been resolved. The bulk-loading strategy logs this count as a debug
// probe before running its separate orphan check.
func CountResolvedEdges(ctx context.Context, q postgres.Querier, stagingTable string) (int64, error) {
	stmt := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE start_graphid IS NOT NULL`, quoteIdent(stagingTable))
	var n int64
	if err := q.QueryRowContext(ctx, stmt).Scan(&n); err != nil {
		return 0, fmt.Errorf("graph: count resolved edges: %w", err)
	}
	return n, nil
}
