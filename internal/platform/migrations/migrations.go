// Package migrations applies the fixed schema: the graph extension
// bootstrap (ag_catalog setup, the kartograph graph) and the outbox
// table. Every file is idempotent (CREATE ... IF NOT EXISTS throughout)
// and applied in filename order, so Apply is safe to call on every
// process start.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
)

//go:embed *.sql
var files embed.FS

// Apply executes every embedded .sql file, in filename order, each in
// its own statement. Bootstrap SQL is idempotent (CREATE ... IF NOT
// EXISTS throughout) so Apply is safe to call on every process start.
func Apply(ctx context.Context, db *sql.DB) error {
	entries, err := files.ReadDir(".")
	if err != nil {
		return fmt.Errorf("migrations: read embedded dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		contents, err := files.ReadFile(name)
		if err != nil {
			return fmt.Errorf("migrations: read %s: %w", name, err)
		}
		if _, err := db.ExecContext(ctx, string(contents)); err != nil {
			return fmt.Errorf("migrations: apply %s: %w", name, err)
		}
	}
	return nil
}
