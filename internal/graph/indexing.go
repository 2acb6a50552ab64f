package graph

import (
	"context"
	"fmt"

	"github.com/openshift-hyperfleet/kartograph/pkg/storage/postgres"
)

// idIndexSuffix etc name the fixed index set every label gets (spec
// §4.10). Index names are derived from the label so CreateLabelIndexes
// can check the catalog for an existing index before creating one,
// making it safe to call on a label that was only partially indexed by
// a prior failed batch.
const (
	idIndexSuffix         = "_id_idx"
	propertiesIndexSuffix = "_properties_idx"
	logicalIDIndexSuffix  = "_properties_id_idx"
	startIDIndexSuffix    = "_start_id_idx"
	endIDIndexSuffix      = "_end_id_idx"
)

// CreateLabelIndexes creates the fixed index set for a newly created
// label, skipping any index that already exists. Must run inside the
// same transaction that created the label, before any staging upsert
// targets it.
func CreateLabelIndexes(ctx context.Context, q postgres.Querier, graphName, label string, et EntityType) error {
	indexes := []struct {
		suffix string
		ddl    string
	}{
		{idIndexSuffix, fmt.Sprintf(`CREATE INDEX %s ON %s USING btree (id)`, quoteIdent(label+idIndexSuffix), qualified(graphName, label))},
		{propertiesIndexSuffix, fmt.Sprintf(`CREATE INDEX %s ON %s USING gin (properties)`, quoteIdent(label+propertiesIndexSuffix), qualified(graphName, label))},
		{logicalIDIndexSuffix, fmt.Sprintf(
			`CREATE INDEX %s ON %s USING btree (ag_catalog.agtype_object_field_text_agtype(properties, '"id"'::ag_catalog.agtype))`,
			quoteIdent(label+logicalIDIndexSuffix), qualified(graphName, label),
		)},
	}
	if et == EntityEdge {
		indexes = append(indexes,
			struct {
				suffix string
				ddl    string
			}{startIDIndexSuffix, fmt.Sprintf(`CREATE INDEX %s ON %s USING btree (start_id)`, quoteIdent(label+startIDIndexSuffix), qualified(graphName, label))},
			struct {
				suffix string
				ddl    string
			}{endIDIndexSuffix, fmt.Sprintf(`CREATE INDEX %s ON %s USING btree (end_id)`, quoteIdent(label+endIDIndexSuffix), qualified(graphName, label))},
		)
	}

	for _, idx := range indexes {
		exists, err := indexExists(ctx, q, graphName, label+idx.suffix)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := q.ExecContext(ctx, idx.ddl); err != nil {
			return fmt.Errorf("graph: create index %s%s: %w", label, idx.suffix, err)
		}
	}
	return nil
}

func indexExists(ctx context.Context, q postgres.Querier, schema, indexName string) (bool, error) {
	const stmt = `
		SELECT EXISTS (
			SELECT 1 FROM pg_indexes WHERE schemaname = $1 AND indexname = $2
		)
	`
	var exists bool
	if err := q.QueryRowContext(ctx, stmt, schema, indexName).Scan(&exists); err != nil {
		return false, fmt.Errorf("graph: check index existence for %s: %w", indexName, err)
	}
	return exists, nil
}
