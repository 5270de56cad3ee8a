package cli

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/patientpy/pkg/common/config"
	"github.com/synaptica-ai/patientpy/pkg/common/models"
	"github.com/synaptica-ai/patientpy/pkg/matrix"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestAssembleJoinsBlocksAndAdditionalFiles(t *testing.T) {
	dir := t.TempDir()
	params = &config.Params{FeatureDir: dir}
	writeFile(t, filepath.Join(dir, "lab_features.csv"), "case_id,lab_creatinine_max\nc1,7\nc2,\n")
	writeFile(t, filepath.Join(dir, "vital_features.csv"), "case_id,vital_heart_rate_mean\nc2,80\nc1,90\n")
	scores := filepath.Join(dir, "scores.csv")
	writeFile(t, scores, "case_id,sofa\nc1,3\nc2,5\n")

	m, missing, err := assemble([]models.Domain{models.DomainLab, models.DomainVital}, []string{scores}, nil)
	require.NoError(t, err)
	assert.Zero(t, missing)
	assert.Equal(t, []string{"lab_creatinine_max", "vital_heart_rate_mean", "sofa_scores"}, m.Columns)
	assert.Equal(t, []string{"c1", "c2"}, m.IDs())
	assert.Equal(t, []float64{7, 90, 3}, m.Rows[0].Values)
	assert.True(t, math.IsNaN(m.Rows[1].Values[0]))

	matched, missing, err := assemble([]models.Domain{models.DomainLab}, nil, []string{"vital_heart_rate_mean", "lab_creatinine_max"})
	require.NoError(t, err)
	assert.Equal(t, 1, missing)
	assert.Equal(t, []string{"vital_heart_rate_mean", "lab_creatinine_max"}, matched.Columns)

	_, _, err = assemble([]models.Domain{models.DomainMicro}, nil, nil)
	require.Error(t, err)
}

func TestCleanFitsOnTrainAndAppliesToEval(t *testing.T) {
	dir := t.TempDir()
	train := filepath.Join(dir, "train.csv")
	eval := filepath.Join(dir, "test.csv")
	writeFile(t, train, "case_id,a,constant\nc1,1,4\nc2,,4\nc3,3,4\n")
	writeFile(t, eval, "case_id,a\ne1,\n")
	imputer := filepath.Join(dir, "train_imputer.json")

	written, err := clean(train, []string{eval}, imputer)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "train_clean.csv"), filepath.Join(dir, "test_clean.csv")}, written)

	cleaned, err := matrix.LoadCSV(written[0])
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, cleaned.Columns)
	assert.Equal(t, 2.0, cleaned.Rows[1].Values[0])

	evalClean, err := matrix.LoadCSV(written[1])
	require.NoError(t, err)
	assert.Equal(t, 2.0, evalClean.Rows[0].Values[0])

	again, err := clean("", []string{eval}, imputer)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "test_clean.csv")}, again)
}

func TestWriteFoldsProducesThreeSampleFiles(t *testing.T) {
	dir := t.TempDir()
	order := filepath.Join(dir, "case_order_rows.txt")
	targets := filepath.Join(dir, "targets.csv")
	writeFile(t, order, "c1\nc2\nc3\n")
	writeFile(t, targets, "case_id,mortality\nc3,1\nc1,1\nc2,0\n")

	files, err := writeFolds(order, targets, "train", 2, filepath.Join(dir, "out", "train"))
	require.NoError(t, err)
	require.Len(t, files, 3)

	content, err := os.ReadFile(files[2])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "train\t0\tmortality\tfull\tc1\tc3", lines[1])
	assert.Equal(t, "train\t0\tmortality\t0\tc1", lines[2])
	assert.Equal(t, "train\t0\tmortality\t1\tc3", lines[3])
}

func TestOutputName(t *testing.T) {
	assert.Equal(t, "out/train_clean.csv", outputName("out/train.csv", "_clean.csv"))
	assert.Equal(t, "a", firstNonEmpty("", "a", "b"))
}
