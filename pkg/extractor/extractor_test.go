package extractor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synaptica-ai/patientpy/pkg/cache"
	"github.com/synaptica-ai/patientpy/pkg/common/models"
	"github.com/synaptica-ai/patientpy/pkg/source"
	"github.com/synaptica-ai/patientpy/pkg/terminology"
)

var t0 = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func hours(h int) time.Time {
	return t0.Add(time.Duration(h) * time.Hour)
}

type memorySource struct {
	admissions []models.Admission
	events     map[string]map[models.Domain][]models.RawEvent
	fail       map[string]error
}

func (m *memorySource) Cohort(ctx context.Context, filter source.CohortFilter) ([]models.Admission, error) {
	return m.admissions, nil
}

func (m *memorySource) Events(ctx context.Context, adm models.Admission, domain models.Domain) ([]models.RawEvent, error) {
	if err, ok := m.fail[adm.AdmissionID+"/"+string(domain)]; ok {
		return nil, err
	}
	return m.events[adm.AdmissionID][domain], nil
}

func num(v float64) *float64 { return &v }

func newFixture() *memorySource {
	return &memorySource{
		admissions: []models.Admission{
			{AdmissionID: "P1", PatientID: "p1", AdmitTime: hours(0), DischargeTime: hours(5)},
			{AdmissionID: "P2", PatientID: "p2", AdmitTime: hours(0), DischargeTime: hours(10)},
			{AdmissionID: "BAD", PatientID: "p3", AdmitTime: hours(4), DischargeTime: hours(1)},
		},
		events: map[string]map[models.Domain][]models.RawEvent{
			"P1": {
				models.DomainLab: {
					{SourceCode: "50912", ChartTime: hours(3), Value: "7"},
					{SourceCode: "50912", ChartTime: hours(1), NumValue: num(5)},
					{SourceCode: "50912", ChartTime: hours(6), Value: "9"},
					{SourceCode: "99999", ChartTime: hours(2), Value: "1"},
					{SourceCode: "50971", ChartTime: hours(2), Value: "n/a"},
				},
				models.DomainMicro: {
					{SourceCode: "Blood Culture", ChartTime: hours(2), Value: "Positive"},
					{SourceCode: "Blood Culture", ChartTime: hours(3), Value: "pending"},
				},
			},
			"P2": {
				models.DomainLab: {{SourceCode: "50912", ChartTime: hours(2), Value: "1.0"}},
			},
		},
		fail: map[string]error{"P2/" + string(models.DomainVital): errors.New("connection reset")},
	}
}

func TestNormalizeAppliesMappingsAndWindow(t *testing.T) {
	src := newFixture()
	n := NewNormalizer(terminology.DefaultCatalog())
	adm := src.admissions[0]

	events, skips := n.Normalize(adm, models.DomainLab, src.events["P1"][models.DomainLab])
	require.Len(t, events, 2)
	assert.Equal(t, "creatinine", events[0].Code)
	assert.Equal(t, 5.0, events[0].Value)
	assert.Equal(t, 7.0, events[1].Value)
	for _, ev := range events {
		assert.True(t, adm.Contains(ev.Time))
	}

	reasons := map[string]int{}
	for _, s := range skips {
		reasons[s.Reason]++
	}
	assert.Equal(t, map[string]int{
		ReasonOutsideWindow:    1,
		ReasonUnmappedCode:     1,
		ReasonUnparseableValue: 1,
	}, reasons)

	micro, skips := n.Normalize(adm, models.DomainMicro, src.events["P1"][models.DomainMicro])
	require.Len(t, micro, 1)
	assert.Equal(t, 1.0, micro[0].Value)
	require.Len(t, skips, 1)
	assert.Equal(t, ReasonUnmappedDiscrete, skips[0].Reason)
}

func TestUntimedRowNeverReachesCache(t *testing.T) {
	src := &memorySource{
		admissions: []models.Admission{{AdmissionID: "P1", AdmitTime: hours(0), DischargeTime: hours(5)}},
		events: map[string]map[models.Domain][]models.RawEvent{
			"P1": {models.DomainLab: {
				{SourceCode: "50912", Value: "9"},
				{SourceCode: "50912", ChartTime: hours(2), Value: "5"},
			}},
		},
	}
	store := cache.NewStore(t.TempDir())
	svc := NewService(src, store, NewNormalizer(terminology.DefaultCatalog()), WithDomains([]models.Domain{models.DomainLab}))

	summary, err := svc.Run(context.Background(), source.CohortFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped[ReasonOutsideWindow])

	rec, err := store.Read(models.DomainLab, "P1")
	require.NoError(t, err)
	require.Len(t, rec.Events, 1)
	assert.Equal(t, 5.0, rec.Events[0].Value)
	assert.True(t, rec.Events[0].Time.Equal(hours(2)))
}

func TestAdmissionWithoutDischargeFailsAlone(t *testing.T) {
	src := &memorySource{
		admissions: []models.Admission{
			{AdmissionID: "OPEN", AdmitTime: hours(0)},
			{AdmissionID: "P1", AdmitTime: hours(0), DischargeTime: hours(5)},
		},
		events: map[string]map[models.Domain][]models.RawEvent{},
	}
	store := cache.NewStore(t.TempDir())
	svc := NewService(src, store, NewNormalizer(terminology.DefaultCatalog()), WithDomains([]models.Domain{models.DomainLab}))

	summary, err := svc.Run(context.Background(), source.CohortFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Written)
	_, err = store.Read(models.DomainLab, "OPEN")
	require.ErrorIs(t, err, cache.ErrRecordNotFound)
}

func TestNormalizeRejectsDomainMismatch(t *testing.T) {
	n := NewNormalizer(terminology.DefaultCatalog())
	adm := models.Admission{AdmissionID: "x", AdmitTime: hours(0), DischargeTime: hours(5)}
	events, skips := n.Normalize(adm, models.DomainVital, []models.RawEvent{{SourceCode: "50912", ChartTime: hours(1), Value: "1"}})
	assert.Empty(t, events)
	require.Len(t, skips, 1)
	assert.Equal(t, ReasonDomainMismatch, skips[0].Reason)
}

func TestRunContinuesPastFailures(t *testing.T) {
	store := cache.NewStore(t.TempDir())
	svc := NewService(newFixture(), store, NewNormalizer(terminology.DefaultCatalog()),
		WithDomains([]models.Domain{models.DomainVital, models.DomainLab}))

	summary, err := svc.Run(context.Background(), source.CohortFilter{})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Admissions)
	assert.Equal(t, 3, summary.Written)
	assert.Equal(t, 3, summary.Failed)
	assert.Equal(t, 3, summary.Events)

	rec, err := store.Read(models.DomainLab, "P1")
	require.NoError(t, err)
	for _, ev := range rec.Events {
		assert.True(t, rec.Admission.Contains(ev.Time))
	}

	_, err = store.Read(models.DomainVital, "P2")
	require.ErrorIs(t, err, cache.ErrRecordNotFound)
	_, err = store.Read(models.DomainLab, "P2")
	require.NoError(t, err)
	_, err = store.Read(models.DomainLab, "BAD")
	require.ErrorIs(t, err, cache.ErrRecordNotFound)
}

func TestRerunProducesIdenticalFiles(t *testing.T) {
	dir := t.TempDir()
	store := cache.NewStore(dir)
	svc := NewService(newFixture(), store, NewNormalizer(terminology.DefaultCatalog()))

	_, err := svc.Run(context.Background(), source.CohortFilter{})
	require.NoError(t, err)
	first := snapshot(t, dir)
	require.NotEmpty(t, first)

	_, err = svc.Run(context.Background(), source.CohortFilter{})
	require.NoError(t, err)
	assert.Equal(t, first, snapshot(t, dir))
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := NewService(newFixture(), cache.NewStore(t.TempDir()), NewNormalizer(terminology.DefaultCatalog()))
	_, err := svc.Run(ctx, source.CohortFilter{})
	require.ErrorIs(t, err, context.Canceled)
}

func snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		out[rel] = string(content)
		return nil
	})
	require.NoError(t, err)
	return out
}
