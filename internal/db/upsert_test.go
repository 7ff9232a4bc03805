package db

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var amenitySpec = UpsertSpec{
	Table:        "amenities",
	Columns:      []string{"category", "id", "fields", "geom"},
	ConflictKeys: []string{"category", "id"},
}

func TestUpsertSpec_Statement(t *testing.T) {
	got := amenitySpec.statement("_stage_amenities")
	assert.Equal(t,
		`INSERT INTO "amenities" ("category", "id", "fields", "geom") SELECT "category", "id", "fields", "geom" FROM "_stage_amenities" ON CONFLICT ("category", "id") DO UPDATE SET "fields" = EXCLUDED."fields", "geom" = EXCLUDED."geom"`,
		got)

	keysOnly := UpsertSpec{Table: "seen", Columns: []string{"id"}, ConflictKeys: []string{"id"}}
	assert.Contains(t, keysOnly.statement("s"), "ON CONFLICT (\"id\") DO NOTHING")
}

func TestBulkUpsert_Validation(t *testing.T) {
	n, err := BulkUpsert(context.Background(), nil, amenitySpec, nil)
	assert.NoError(t, err)
	assert.Zero(t, n)

	_, err = BulkUpsert(context.Background(), nil, UpsertSpec{Table: "t", ConflictKeys: []string{"id"}}, [][]any{{1}})
	assert.ErrorContains(t, err, "no columns")

	_, err = BulkUpsert(context.Background(), nil, UpsertSpec{Table: "t", Columns: []string{"id"}}, [][]any{{1}})
	assert.ErrorContains(t, err, "no conflict keys")
}

func TestBulkUpsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TEMP TABLE "_stage_amenities" (LIKE "amenities" INCLUDING DEFAULTS) ON COMMIT DROP`)).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_amenities"}, amenitySpec.Columns).WillReturnResult(2)
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "amenities"`)).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, amenitySpec, [][]any{
		{"parks", "p1", []byte(`{}`), []byte(`{}`)},
		{"parks", "p2", []byte(`{}`), []byte(`{}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestBulkUpsert_CopyFails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_stage_amenities"}, amenitySpec.Columns).WillReturnError(errors.New("bad row"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, amenitySpec, [][]any{{"parks", "p1", nil, nil}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db: upsert: copy amenities")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentifier(t *testing.T) {
	assert.Equal(t, `"permits"`, identifier("permits").Sanitize())
	assert.Equal(t, `"civic"."permits"`, identifier("civic.permits").Sanitize())
}
