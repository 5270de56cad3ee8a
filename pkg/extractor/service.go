package extractor

import (
	"context"
	"fmt"
	"strings"

	"github.com/synaptica-ai/patientpy/pkg/cache"
	"github.com/synaptica-ai/patientpy/pkg/common/logger"
	"github.com/synaptica-ai/patientpy/pkg/common/models"
	"github.com/synaptica-ai/patientpy/pkg/observability/metrics"
	"github.com/synaptica-ai/patientpy/pkg/runs"
	"github.com/synaptica-ai/patientpy/pkg/source"
)

// Failure is an admission/domain pair that could not be cached.
type Failure struct {
	AdmissionID string `json:"admission_id"`
	Domain      string `json:"domain"`
	Error       string `json:"error"`
}

// Summary counts the outcome of one cacher run.
type Summary struct {
	Admissions int            `json:"admissions"`
	Written    int            `json:"written"`
	Failed     int            `json:"failed"`
	Events     int            `json:"events"`
	Skipped    map[string]int `json:"skipped"`
	Failures   []Failure      `json:"failures,omitempty"`
}

func (s Summary) stats() map[string]interface{} {
	skipped := make(map[string]interface{}, len(s.Skipped))
	for k, v := range s.Skipped {
		skipped[k] = v
	}
	return map[string]interface{}{
		"admissions": s.Admissions,
		"written":    s.Written,
		"failed":     s.Failed,
		"events":     s.Events,
		"skipped":    skipped,
	}
}

type Service struct {
	source     source.Source
	store      *cache.Store
	normalizer *Normalizer
	domains    []models.Domain
	tracker    *runs.Tracker
}

type Option func(*Service)

func WithTracker(t *runs.Tracker) Option {
	return func(s *Service) {
		s.tracker = t
	}
}

func WithDomains(domains []models.Domain) Option {
	return func(s *Service) {
		if len(domains) > 0 {
			s.domains = domains
		}
	}
}

func NewService(src source.Source, store *cache.Store, normalizer *Normalizer, opts ...Option) *Service {
	svc := &Service{
		source:     src,
		store:      store,
		normalizer: normalizer,
		domains:    append([]models.Domain(nil), models.AllDomains...),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

// Run caches every admission of the cohort, one domain at a time. Problems with a
// single admission are logged and counted; only a failed cohort query or a
// cancelled context stops the run.
func (s *Service) Run(ctx context.Context, filter source.CohortFilter) (Summary, error) {
	run := s.tracker.Begin(ctx, runs.StageCache, map[string]interface{}{
		"domains":       domainNames(s.domains),
		"admission_ids": len(filter.AdmissionIDs),
		"limit":         filter.Limit,
		"cache_dir":     s.store.Root(),
	})

	summary := Summary{Skipped: map[string]int{}}
	cohort, err := s.source.Cohort(ctx, filter)
	if err != nil {
		run.Fail(ctx, err)
		return summary, err
	}
	logger.Log.WithField("admissions", len(cohort)).Info("Cohort loaded")

	for _, adm := range cohort {
		if err := ctx.Err(); err != nil {
			run.Fail(ctx, err)
			return summary, err
		}
		summary.Admissions++
		if err := validateAdmission(adm); err != nil {
			for _, domain := range s.domains {
				s.recordFailure(&summary, adm, domain, err)
			}
			continue
		}
		for _, domain := range s.domains {
			n, err := s.cacheDomain(ctx, adm, domain, summary.Skipped)
			if err != nil {
				s.recordFailure(&summary, adm, domain, err)
				continue
			}
			summary.Written++
			summary.Events += n
			metrics.AdmissionsProcessed.WithLabelValues(string(domain), "written").Inc()
		}
	}

	logger.Log.WithFields(map[string]interface{}{
		"admissions": summary.Admissions,
		"written":    summary.Written,
		"failed":     summary.Failed,
		"events":     summary.Events,
	}).Info("Cache run finished")
	run.Complete(ctx, summary.stats())
	return summary, nil
}

func (s *Service) cacheDomain(ctx context.Context, adm models.Admission, domain models.Domain, skipped map[string]int) (int, error) {
	raws, err := s.source.Events(ctx, adm, domain)
	if err != nil {
		return 0, err
	}
	events, skips := s.normalizer.Normalize(adm, domain, raws)
	for _, sk := range skips {
		skipped[sk.Reason]++
		metrics.EventsSkipped.WithLabelValues(string(domain), sk.Reason).Inc()
		logger.Log.WithFields(map[string]interface{}{
			"admission_id": adm.AdmissionID,
			"domain":       domain,
			"source_code":  sk.SourceCode,
			"reason":       sk.Reason,
		}).Debug("Source row skipped")
	}

	path, err := s.store.Write(models.CachedRecord{Admission: adm, Domain: domain, Events: events})
	if err != nil {
		return 0, fmt.Errorf("write cache: %w", err)
	}
	metrics.EventsCached.WithLabelValues(string(domain)).Add(float64(len(events)))
	logger.Log.WithFields(map[string]interface{}{
		"admission_id": adm.AdmissionID,
		"domain":       domain,
		"events":       len(events),
		"skipped":      len(skips),
		"path":         path,
	}).Debug("Cached record written")
	return len(events), nil
}

func (s *Service) recordFailure(summary *Summary, adm models.Admission, domain models.Domain, err error) {
	summary.Failed++
	summary.Failures = append(summary.Failures, Failure{
		AdmissionID: adm.AdmissionID,
		Domain:      string(domain),
		Error:       err.Error(),
	})
	metrics.AdmissionsProcessed.WithLabelValues(string(domain), "failed").Inc()
	logger.Log.WithError(err).WithFields(map[string]interface{}{
		"admission_id": adm.AdmissionID,
		"domain":       domain,
	}).Warn("Failed to cache admission domain")
}

func validateAdmission(adm models.Admission) error {
	if strings.TrimSpace(adm.AdmissionID) == "" {
		return fmt.Errorf("admission without id")
	}
	if adm.AdmitTime.IsZero() || adm.DischargeTime.IsZero() {
		return fmt.Errorf("admission %s: missing admit or discharge time", adm.AdmissionID)
	}
	if adm.DischargeTime.Before(adm.AdmitTime) {
		return fmt.Errorf("admission %s: discharge precedes admit", adm.AdmissionID)
	}
	return nil
}

func domainNames(domains []models.Domain) []interface{} {
	out := make([]interface{}, 0, len(domains))
	for _, d := range domains {
		out = append(out, string(d))
	}
	return out
}
