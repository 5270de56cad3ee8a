package features

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/synaptica-ai/patientpy/pkg/cache"
	"github.com/synaptica-ai/patientpy/pkg/common/logger"
	"github.com/synaptica-ai/patientpy/pkg/common/models"
	"github.com/synaptica-ai/patientpy/pkg/matrix"
	"github.com/synaptica-ai/patientpy/pkg/observability/metrics"
	"github.com/synaptica-ai/patientpy/pkg/runs"
	"github.com/synaptica-ai/patientpy/pkg/terminology"
)

// OnlineStore receives each finished feature vector; storage.FeatureStore
// implements it.
type OnlineStore interface {
	Materialize(ctx context.Context, vector models.FeatureVector) error
}

type Builder struct {
	store   *cache.Store
	catalog terminology.Catalog
	online  OnlineStore
	tracker *runs.Tracker
}

type Option func(*Builder)

func WithOnlineStore(o OnlineStore) Option {
	return func(b *Builder) {
		b.online = o
	}
}

func WithTracker(t *runs.Tracker) Option {
	return func(b *Builder) {
		b.tracker = t
	}
}

func NewBuilder(store *cache.Store, cat terminology.Catalog, opts ...Option) *Builder {
	b := &Builder{store: store, catalog: cat}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Result holds one feature block per requested domain with rows in case order.
type Result struct {
	Domains []models.Domain
	Blocks  map[models.Domain]*matrix.Table
	Cases   []models.LabeledCase
	Vectors []models.FeatureVector
}

// Build computes the feature rows of every case. A case with no cached data still
// yields a row of missing values; only a cancelled context stops the run.
func (b *Builder) Build(ctx context.Context, cases []models.LabeledCase, domains []models.Domain) (*Result, error) {
	if len(domains) == 0 {
		domains = models.AllDomains
	}
	run := b.tracker.Begin(ctx, runs.StageFeatures, map[string]interface{}{
		"cases":     len(cases),
		"domains":   len(domains),
		"cache_dir": b.store.Root(),
	})

	res := &Result{
		Domains: append([]models.Domain(nil), domains...),
		Blocks:  make(map[models.Domain]*matrix.Table, len(domains)),
		Cases:   cases,
	}
	for _, d := range domains {
		res.Blocks[d] = matrix.NewTable(Columns(b.catalog, d))
	}

	empty, materialized := 0, 0
	for _, c := range cases {
		if err := ctx.Err(); err != nil {
			run.Fail(ctx, err)
			return nil, err
		}
		vector := models.FeatureVector{CaseID: c.CaseID, AdmissionID: c.AdmissionID, Label: c.Label}
		found := 0
		for _, d := range domains {
			values, ok := b.caseDomain(c, d)
			if ok {
				found++
			}
			if err := res.Blocks[d].Append(c.CaseID, values); err != nil {
				run.Fail(ctx, err)
				return nil, err
			}
			vector.Columns = append(vector.Columns, res.Blocks[d].Columns...)
			vector.Values = append(vector.Values, values...)
		}
		status := "built"
		if found == 0 {
			status = "no_data"
			empty++
			logger.Log.WithField("case_id", c.CaseID).Warn("No cached records for case")
		}
		metrics.CasesBuilt.WithLabelValues(status).Inc()
		res.Vectors = append(res.Vectors, vector)

		if b.online != nil {
			if err := b.online.Materialize(ctx, vector); err != nil {
				logger.Log.WithError(err).WithField("case_id", c.CaseID).Warn("Failed to materialize feature vector")
			} else {
				materialized++
			}
		}
	}

	logger.Log.WithFields(map[string]interface{}{
		"cases":        len(cases),
		"no_data":      empty,
		"materialized": materialized,
	}).Info("Feature build finished")
	run.Complete(ctx, map[string]interface{}{
		"cases":        len(cases),
		"no_data":      empty,
		"materialized": materialized,
	})
	return res, nil
}

// caseDomain reports false when the domain record is absent or unreadable.
func (b *Builder) caseDomain(c models.LabeledCase, domain models.Domain) ([]float64, bool) {
	record, err := b.store.Read(domain, c.AdmissionID)
	present := err == nil
	if err != nil && !errors.Is(err, cache.ErrRecordNotFound) {
		logger.Log.WithError(err).WithFields(map[string]interface{}{
			"case_id": c.CaseID,
			"domain":  domain,
		}).Warn("Unreadable cached record treated as missing")
	}

	byCode := make(map[string][]models.Event)
	if present {
		for _, ev := range record.Events {
			if ev.Time.After(c.WindowEnd) {
				continue
			}
			byCode[ev.Code] = append(byCode[ev.Code], ev)
		}
	}

	var values []float64
	for _, concept := range b.catalog.Concepts(domain) {
		events := byCode[concept.Code]
		sort.SliceStable(events, func(i, j int) bool { return events[i].Time.Before(events[j].Time) })
		values = append(values, Aggregate(domain, concept.Type, events, c.WindowEnd, present)...)
	}
	if values == nil {
		values = []float64{}
	}
	return values, present
}

// BlockPath is where a domain's feature block is written.
func BlockPath(dir string, domain models.Domain) string {
	return filepath.Join(dir, string(domain)+"_features.csv")
}

// Write stores every block, the labels and the case order under dir.
func (r *Result) Write(dir string) ([]string, error) {
	var paths []string
	for _, d := range r.Domains {
		path := BlockPath(dir, d)
		if err := matrix.SaveCSV(path, r.Blocks[d]); err != nil {
			return paths, fmt.Errorf("write %s block: %w", d, err)
		}
		paths = append(paths, path)
	}

	order := make([]string, len(r.Cases))
	for i, c := range r.Cases {
		order[i] = c.CaseID
	}
	orderPath := filepath.Join(dir, "case_order_rows.txt")
	if err := matrix.SaveList(orderPath, order); err != nil {
		return paths, err
	}
	labelPath := filepath.Join(dir, "labels.csv")
	if err := writeLabels(labelPath, r.Cases); err != nil {
		return paths, err
	}
	return append(paths, orderPath, labelPath), nil
}

func writeLabels(path string, cases []models.LabeledCase) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	w.Write([]string{"case_id", "admission_id", "label", "window_end"})
	for _, c := range cases {
		w.Write([]string{c.CaseID, c.AdmissionID, c.Label, c.WindowEnd.Format(time.RFC3339)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
