package matrix

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nan = math.NaN()

func table(t *testing.T, columns []string, rows map[string][]float64, order ...string) *Table {
	t.Helper()
	tb := NewTable(columns)
	for _, id := range order {
		require.NoError(t, tb.Append(id, rows[id]))
	}
	return tb
}

func TestCSVRoundTripKeepsMissingValues(t *testing.T) {
	tb := table(t, []string{"lab_creatinine_max", "vital_heart_rate_mean"}, map[string][]float64{
		"c1": {7, nan},
		"c2": {1.5, 80},
	}, "c1", "c2")

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, tb))
	assert.Equal(t, "case_id,lab_creatinine_max,vital_heart_rate_mean\nc1,7,\nc2,1.5,80\n", buf.String())

	back, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, tb.Columns, back.Columns)
	assert.Equal(t, []string{"c1", "c2"}, back.IDs())
	assert.True(t, math.IsNaN(back.Rows[0].Values[1]))
	assert.Equal(t, 80.0, back.Rows[1].Values[1])
}

func TestReadCSVRequiresIDColumn(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("id,a\nx,1\n"))
	require.Error(t, err)
	_, err = ReadCSV(strings.NewReader(""))
	require.Error(t, err)
	_, err = ReadCSV(strings.NewReader("case_id,a\nx,abc\n"))
	require.Error(t, err)
}

func TestAssembleJoinsBlocksInFirstBlockOrder(t *testing.T) {
	labs := table(t, []string{"lab_a"}, map[string][]float64{"c2": {2}, "c1": {1}}, "c2", "c1")
	vitals := table(t, []string{"vital_b", "vital_c"}, map[string][]float64{"c1": {10, 11}}, "c1")

	out, err := Assemble([]*Table{labs, vitals})
	require.NoError(t, err)
	assert.Equal(t, []string{"lab_a", "vital_b", "vital_c"}, out.Columns)
	assert.Equal(t, []string{"c2", "c1"}, out.IDs())
	assert.Equal(t, 2.0, out.Rows[0].Values[0])
	assert.True(t, math.IsNaN(out.Rows[0].Values[1]))
	assert.Equal(t, []float64{1, 10, 11}, out.Rows[1].Values)
}

func TestAssembleRejectsDuplicateColumns(t *testing.T) {
	a := table(t, []string{"x"}, map[string][]float64{"c": {1}}, "c")
	b := table(t, []string{"x"}, map[string][]float64{"c": {2}}, "c")
	_, err := Assemble([]*Table{a, b})
	require.Error(t, err)

	_, err = Assemble(nil)
	require.Error(t, err)
}

func TestMatchColumnsFillsAndDrops(t *testing.T) {
	tb := table(t, []string{"a", "b", "extra"}, map[string][]float64{"c": {1, 2, 3}}, "c")
	out, missing := MatchColumns(tb, []string{"b", "z", "a"})
	assert.Equal(t, 1, missing)
	assert.Equal(t, []string{"b", "z", "a"}, out.Columns)
	assert.Equal(t, 2.0, out.Rows[0].Values[0])
	assert.True(t, math.IsNaN(out.Rows[0].Values[1]))
	assert.Equal(t, 1.0, out.Rows[0].Values[2])
}

func TestCleanColumnsDropsUninformative(t *testing.T) {
	tb := table(t, []string{"empty", "single", "constant", "useful"}, map[string][]float64{
		"c1": {nan, 4, 1, 1},
		"c2": {nan, nan, 1, 2},
		"c3": {nan, nan, 1, nan},
	}, "c1", "c2", "c3")
	assert.Equal(t, []int{3}, CleanColumns(tb))
}

func TestMedianImputerFitTransform(t *testing.T) {
	train := table(t, []string{"constant", "a", "b"}, map[string][]float64{
		"c1": {1, 1, 10},
		"c2": {1, 3, nan},
		"c3": {1, nan, 20},
		"c4": {1, 5, 30},
	}, "c1", "c2", "c3", "c4")

	im, err := FitMedianImputer(train)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, im.Columns)
	assert.Equal(t, []float64{3, 20}, im.Medians)

	path := filepath.Join(t.TempDir(), "imputer.json")
	require.NoError(t, im.Save(path))
	loaded, err := LoadMedianImputer(path)
	require.NoError(t, err)

	eval := table(t, []string{"b", "other"}, map[string][]float64{"e1": {nan, 9}}, "e1")
	out, err := loaded.Transform(eval)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Columns)
	assert.Equal(t, []float64{3, 20}, out.Rows[0].Values)
}

func TestFitMedianImputerNeedsInformativeColumns(t *testing.T) {
	tb := table(t, []string{"a"}, map[string][]float64{"c1": {1}, "c2": {1}}, "c1", "c2")
	_, err := FitMedianImputer(tb)
	require.Error(t, err)
}

func TestMedian(t *testing.T) {
	assert.True(t, math.IsNaN(Median(nil)))
	assert.Equal(t, 2.0, Median([]float64{3, 1, 2}))
	assert.Equal(t, 2.5, Median([]float64{4, 1, 3, 2}))
}

func TestAssignFoldsRoundRobinPerTarget(t *testing.T) {
	targets, err := ReadTargets(strings.NewReader("case_id,mortality,aki\nc1,1,0\nc2,1,1\nc3,0,1\nc4,1,1\n"))
	require.NoError(t, err)

	folds, err := AssignFolds([]string{"c4", "c3", "c2", "c1", "c9"}, targets, 2)
	require.NoError(t, err)
	require.Len(t, folds, 6)

	full := folds[0]
	assert.Equal(t, FullFold, full.Fold)
	assert.Equal(t, "mortality", full.TargetName)
	assert.Equal(t, []int{0, 2, 3}, full.FeatureRows)
	assert.Equal(t, []int{3, 1, 0}, full.TargetRows)
	assert.Equal(t, []string{"c4", "c2", "c1"}, full.CaseIDs)

	assert.Equal(t, []string{"c4", "c1"}, folds[1].CaseIDs)
	assert.Equal(t, []string{"c2"}, folds[2].CaseIDs)

	assert.Equal(t, "aki", folds[3].TargetName)
	assert.Equal(t, []string{"c4", "c3", "c2"}, folds[3].CaseIDs)
	assert.Equal(t, []string{"c4", "c2"}, folds[4].CaseIDs)
	assert.Equal(t, []string{"c3"}, folds[5].CaseIDs)

	_, err = AssignFolds(nil, targets, 1)
	require.Error(t, err)
}

func TestWriteFolds(t *testing.T) {
	folds := []Fold{{TargetIndex: 0, TargetName: "mortality", Fold: FullFold, FeatureRows: []int{0, 2}, CaseIDs: []string{"a", "b"}}}

	var rows bytes.Buffer
	require.NoError(t, WriteFolds(&rows, "train", folds, FeatureRowColumn))
	assert.Equal(t, "#matrix_name\ttarget_id\ttarget_name\tfold_type\trow_indices\ntrain\t0\tmortality\tfull\t0\t2\n", rows.String())

	var ids bytes.Buffer
	require.NoError(t, WriteFolds(&ids, "train", folds, CaseIDColumn))
	assert.Contains(t, ids.String(), "train\t0\tmortality\tfull\ta\tb\n")
}

func TestDuckDBStatements(t *testing.T) {
	assert.Equal(t,
		`CREATE TABLE "feature_matrix" ("case_id" VARCHAR PRIMARY KEY, "lab_a" DOUBLE, "odd""name" DOUBLE)`,
		CreateTableSQL("feature_matrix", []string{"lab_a", `odd"name`}))
	assert.Equal(t, `INSERT INTO "m" VALUES (?, ?, ?)`, InsertSQL("m", 2))
}

func TestListRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "case_order_rows.txt")
	require.NoError(t, SaveList(path, []string{"c1", "c2"}))
	items, err := LoadList(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, items)
}
