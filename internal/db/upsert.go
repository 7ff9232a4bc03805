package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertSpec describes a bulk upsert into Table keyed by ConflictKeys.
type UpsertSpec struct {
	Table        string
	Columns      []string
	ConflictKeys []string
	// UpdateCols defaults to every non-key column.
	UpdateCols []string
}

func (s UpsertSpec) updateCols() []string {
	if s.UpdateCols != nil {
		return s.UpdateCols
	}
	keys := make(map[string]bool, len(s.ConflictKeys))
	for _, k := range s.ConflictKeys {
		keys[k] = true
	}
	var out []string
	for _, c := range s.Columns {
		if !keys[c] {
			out = append(out, c)
		}
	}
	return out
}

// statement renders the INSERT ... SELECT ... ON CONFLICT that moves rows
// from the staging table into the target.
func (s UpsertSpec) statement(staging string) string {
	cols := quoteAll(s.Columns)
	set := make([]string, 0, len(s.Columns))
	for _, c := range s.updateCols() {
		q := pgx.Identifier{c}.Sanitize()
		set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
	}
	action := "DO NOTHING"
	if len(set) > 0 {
		action = "DO UPDATE SET " + strings.Join(set, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		identifier(s.Table).Sanitize(), cols, cols,
		pgx.Identifier{staging}.Sanitize(), quoteAll(s.ConflictKeys), action)
}

// BulkUpsert COPYs rows into a transaction-scoped staging table shaped like
// the target, then merges them with INSERT ... ON CONFLICT. Re-running with
// the same keys overwrites instead of duplicating.
func BulkUpsert(ctx context.Context, pool Pool, spec UpsertSpec, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(spec.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns")
	}
	if len(spec.ConflictKeys) == 0 {
		return 0, eris.New("db: upsert: no conflict keys")
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	staging := "_stage_" + strings.ReplaceAll(spec.Table, ".", "_")
	create := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{staging}.Sanitize(), identifier(spec.Table).Sanitize())
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: stage %s", spec.Table)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{staging}, spec.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: copy %s", spec.Table)
	}
	tag, err := tx.Exec(ctx, spec.statement(staging))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge %s", spec.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit")
	}
	return tag.RowsAffected(), nil
}

// identifier splits an optionally schema-qualified name.
func identifier(table string) pgx.Identifier {
	return pgx.Identifier(strings.SplitN(table, ".", 2))
}

func quoteAll(cols []string) string {
	q := make([]string, len(cols))
	for i, c := range cols {
		q[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(q, ", ")
}
