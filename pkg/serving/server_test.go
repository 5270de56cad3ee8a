package serving

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/patientpy/pkg/common/models"
	"github.com/synaptica-ai/patientpy/pkg/runs"
	"github.com/synaptica-ai/patientpy/pkg/storage"
)

type stubLookup map[string]models.FeatureVector

func (s stubLookup) Get(ctx context.Context, caseID string) (models.FeatureVector, error) {
	if caseID == "broken" {
		return models.FeatureVector{}, errors.New("redis down")
	}
	v, ok := s[caseID]
	if !ok {
		return models.FeatureVector{}, fmt.Errorf("%s: %w", caseID, storage.ErrFeaturesNotFound)
	}
	return v, nil
}

type stubRuns struct {
	stage string
	limit int
}

func (s *stubRuns) List(ctx context.Context, stage string, limit int) ([]runs.RunModel, error) {
	s.stage, s.limit = stage, limit
	return []runs.RunModel{{Stage: stage, Status: runs.StatusCompleted}}, nil
}

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestFeatureEndpoint(t *testing.T) {
	lookup := stubLookup{"case-1": {
		CaseID:  "case-1",
		Columns: []string{"lab_creatinine_max", "lab_potassium_max"},
		Values:  []float64{7, math.NaN()},
	}}
	router := NewServer(lookup, nil).Router()

	rec := serve(t, router, "/api/v1/features/case-1")
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.FeatureVector
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 7.0, got.Values[0])
	assert.True(t, math.IsNaN(got.Values[1]))

	assert.Equal(t, http.StatusNotFound, serve(t, router, "/api/v1/features/other").Code)
	assert.Equal(t, http.StatusInternalServerError, serve(t, router, "/api/v1/features/broken").Code)
	assert.Equal(t, http.StatusNotFound, serve(t, router, "/api/v1/runs").Code)
}

func TestHealthAndMetrics(t *testing.T) {
	router := NewServer(stubLookup{}, nil).Router()
	rec := serve(t, router, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	serve(t, router, "/api/v1/features/missing")
	metricsRec := serve(t, router, "/metrics")
	assert.Equal(t, http.StatusOK, metricsRec.Code)
	assert.Contains(t, metricsRec.Body.String(), "patientpy_serving_feature_lookups_total")
}

func TestRunsEndpoint(t *testing.T) {
	lister := &stubRuns{}
	router := NewServer(stubLookup{}, lister).Router()

	rec := serve(t, router, "/api/v1/runs?stage=cache&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cache", lister.stage)
	assert.Equal(t, 5, lister.limit)
	assert.Contains(t, rec.Body.String(), `"status":"completed"`)

	assert.Equal(t, http.StatusBadRequest, serve(t, router, "/api/v1/runs?limit=x").Code)
}
