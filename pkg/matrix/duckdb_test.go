package matrix

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuckDBWriteTableStoresMissingAsNull(t *testing.T) {
	ctx := context.Background()
	sink, err := OpenDuckDB(filepath.Join(t.TempDir(), "out", "features.duckdb"))
	require.NoError(t, err)
	defer sink.Close()

	first := table(t, []string{"lab_a", `odd"name`}, map[string][]float64{
		"c1": {1.5, nan},
		"c2": {math.Inf(1), 4},
	}, "c1", "c2")
	require.NoError(t, sink.WriteTable(ctx, "feature_matrix", first))

	rows, err := sink.db.QueryContext(ctx, `SELECT "case_id", "lab_a", "odd""name" FROM "feature_matrix" ORDER BY "case_id"`)
	require.NoError(t, err)
	type stored struct {
		id   string
		a, b sql.NullFloat64
	}
	var got []stored
	for rows.Next() {
		var s stored
		require.NoError(t, rows.Scan(&s.id, &s.a, &s.b))
		got = append(got, s)
	}
	require.NoError(t, rows.Err())
	require.NoError(t, rows.Close())

	require.Len(t, got, 2)
	assert.Equal(t, "c1", got[0].id)
	assert.Equal(t, sql.NullFloat64{Float64: 1.5, Valid: true}, got[0].a)
	assert.False(t, got[0].b.Valid)
	assert.False(t, got[1].a.Valid)
	assert.Equal(t, sql.NullFloat64{Float64: 4, Valid: true}, got[1].b)

	// rewriting replaces the table, including its columns
	second := table(t, []string{"vital_b"}, map[string][]float64{"c9": {7}}, "c9")
	require.NoError(t, sink.WriteTable(ctx, "feature_matrix", second))

	var count int
	require.NoError(t, sink.db.QueryRowContext(ctx, `SELECT count(*) FROM "feature_matrix"`).Scan(&count))
	assert.Equal(t, 1, count)
	var v float64
	require.NoError(t, sink.db.QueryRowContext(ctx, `SELECT "vital_b" FROM "feature_matrix" WHERE "case_id" = ?`, "c9").Scan(&v))
	assert.Equal(t, 7.0, v)
}
