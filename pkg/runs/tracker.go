package runs

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/synaptica-ai/patientpy/pkg/common/logger"
	"github.com/synaptica-ai/patientpy/pkg/observability/metrics"
)

// Publisher announces finished runs; kafka.Producer satisfies it.
type Publisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

// Tracker records stage runs in the ledger and announces them. Both sinks are
// optional and a nil *Tracker only measures durations.
type Tracker struct {
	repo      *Repository
	publisher Publisher
}

func NewTracker(repo *Repository, publisher Publisher) *Tracker {
	return &Tracker{repo: repo, publisher: publisher}
}

type Run struct {
	ID      uuid.UUID
	Stage   string
	started time.Time
	tracker *Tracker
}

func (t *Tracker) Begin(ctx context.Context, stage string, params map[string]interface{}) *Run {
	run := &Run{ID: uuid.New(), Stage: stage, started: time.Now().UTC(), tracker: t}
	if t == nil || t.repo == nil {
		return run
	}
	model := &RunModel{
		ID:        run.ID,
		Stage:     stage,
		Status:    StatusRunning,
		Params:    params,
		StartedAt: run.started,
	}
	if err := t.repo.Create(ctx, model); err != nil {
		logger.Log.WithError(err).WithField("stage", stage).Warn("failed to record run start")
	}
	return run
}

func (r *Run) Complete(ctx context.Context, stats map[string]interface{}) {
	r.finish(ctx, StatusCompleted, stats, "")
}

func (r *Run) Fail(ctx context.Context, err error) {
	r.finish(ctx, StatusFailed, nil, err.Error())
}

func (r *Run) finish(ctx context.Context, status string, stats map[string]interface{}, errMsg string) {
	elapsed := time.Since(r.started)
	metrics.StageDuration.WithLabelValues(r.Stage).Observe(elapsed.Seconds())

	t := r.tracker
	if t == nil {
		return
	}
	if t.repo != nil {
		if err := t.repo.UpdateStatus(ctx, r.ID, status, stats, errMsg); err != nil {
			logger.Log.WithError(err).WithField("run_id", r.ID).Warn("failed to record run status")
		}
	}
	if t.publisher != nil {
		payload := map[string]interface{}{
			"run_id":           r.ID.String(),
			"stage":            r.Stage,
			"status":           status,
			"stats":            stats,
			"error":            errMsg,
			"duration_seconds": elapsed.Seconds(),
		}
		if err := t.publisher.PublishEvent(ctx, "pipeline.run", "patientpy", payload); err != nil {
			logger.Log.WithError(err).WithField("run_id", r.ID).Warn("failed to publish run event")
		}
	}
}
