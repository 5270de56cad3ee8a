package serving

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/synaptica-ai/patientpy/pkg/common/logger"
	"github.com/synaptica-ai/patientpy/pkg/common/models"
	"github.com/synaptica-ai/patientpy/pkg/observability/metrics"
	"github.com/synaptica-ai/patientpy/pkg/runs"
	"github.com/synaptica-ai/patientpy/pkg/storage"
)

// FeatureLookup returns the materialized vector of a case.
type FeatureLookup interface {
	Get(ctx context.Context, caseID string) (models.FeatureVector, error)
}

// RunLister lists ledger entries.
type RunLister interface {
	List(ctx context.Context, stage string, limit int) ([]runs.RunModel, error)
}

type Server struct {
	features FeatureLookup
	runs     RunLister
}

func NewServer(features FeatureLookup, runs RunLister) *Server {
	return &Server{features: features, runs: runs}
}

func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheck).Methods("GET")
	router.Handle("/metrics", metrics.Handler()).Methods("GET")
	router.HandleFunc("/api/v1/features/{caseID}", s.handleFeatures).Methods("GET")
	if s.runs != nil {
		router.HandleFunc("/api/v1/runs", s.handleRuns).Methods("GET")
	}
	return router
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	caseID := mux.Vars(r)["caseID"]

	vector, err := s.features.Get(r.Context(), caseID)
	if errors.Is(err, storage.ErrFeaturesNotFound) {
		metrics.FeatureLookups.WithLabelValues("miss").Inc()
		http.Error(w, "Features not found", http.StatusNotFound)
		return
	}
	if err != nil {
		metrics.FeatureLookups.WithLabelValues("error").Inc()
		logger.Log.WithError(err).WithField("case_id", caseID).Error("Failed to get features")
		http.Error(w, "Failed to get features", http.StatusInternalServerError)
		return
	}
	metrics.FeatureLookups.WithLabelValues("hit").Inc()

	logger.Log.WithFields(map[string]interface{}{
		"case_id":    caseID,
		"features":   len(vector.Columns),
		"latency_ms": time.Since(start).Milliseconds(),
	}).Debug("Features served")

	writeJSON(w, vector)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	list, err := s.runs.List(r.Context(), r.URL.Query().Get("stage"), limit)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to list runs")
		http.Error(w, "Failed to list runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, list)
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log.WithError(err).Warn("Failed to encode response")
	}
}
