package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	AdmissionsProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patientpy",
		Subsystem: "cacher",
		Name:      "admission_domains_total",
		Help:      "Admission/domain pairs processed by the cacher, by outcome.",
	}, []string{"domain", "status"})

	EventsCached = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patientpy",
		Subsystem: "cacher",
		Name:      "events_cached_total",
		Help:      "Normalized events written to the cache.",
	}, []string{"domain"})

	EventsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patientpy",
		Subsystem: "cacher",
		Name:      "events_skipped_total",
		Help:      "Source rows dropped during normalization, by reason.",
	}, []string{"domain", "reason"})

	CasesBuilt = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patientpy",
		Subsystem: "features",
		Name:      "cases_total",
		Help:      "Labeled cases processed by the feature builder, by outcome.",
	}, []string{"status"})

	StageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "patientpy",
		Name:      "stage_duration_seconds",
		Help:      "Wall time of pipeline stages.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 14),
	}, []string{"stage"})

	FeatureLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "patientpy",
		Subsystem: "serving",
		Name:      "feature_lookups_total",
		Help:      "Online feature vector lookups, by outcome.",
	}, []string{"status"})
)

func init() {
	Registry.MustRegister(
		AdmissionsProcessed,
		EventsCached,
		EventsSkipped,
		CasesBuilt,
		StageDuration,
		FeatureLookups,
	)
}

// Handler serves the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
