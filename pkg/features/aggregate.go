package features

import (
	"math"
	"time"

	"github.com/synaptica-ai/patientpy/pkg/common/models"
	"github.com/synaptica-ai/patientpy/pkg/terminology"
)

var (
	intervalStats = []string{"count", "min", "max", "mean", "std", "last", "last_age_h", "slope"}
	discreteStats = []string{"count", "any", "frac", "last"}
	binaryStats   = []string{"present", "count", "last_age_h"}
	demoStats     = []string{"value"}
)

// Stats lists the aggregates computed for a concept, in column order.
func Stats(domain models.Domain, vt models.ValueType) []string {
	if domain == models.DomainDemographics {
		return demoStats
	}
	switch vt {
	case models.ValueDiscrete:
		return discreteStats
	case models.ValueBinary:
		return binaryStats
	default:
		return intervalStats
	}
}

func ColumnName(domain models.Domain, code, stat string) string {
	return string(domain) + "_" + code + "_" + stat
}

// Columns is the fixed feature schema of a domain: every catalog concept times
// its aggregates.
func Columns(cat terminology.Catalog, domain models.Domain) []string {
	var out []string
	for _, concept := range cat.Concepts(domain) {
		for _, stat := range Stats(domain, concept.Type) {
			out = append(out, ColumnName(domain, concept.Code, stat))
		}
	}
	return out
}

// Aggregate computes the statistics of one concept. events must hold only that
// concept's events inside the observation window, ordered by time. With
// recordPresent false the domain had no cached record and every statistic is NaN.
func Aggregate(domain models.Domain, vt models.ValueType, events []models.Event, windowEnd time.Time, recordPresent bool) []float64 {
	stats := Stats(domain, vt)
	out := make([]float64, len(stats))
	for i, stat := range stats {
		out[i] = statistic(stat, events, windowEnd, recordPresent)
	}
	return out
}

func statistic(stat string, events []models.Event, windowEnd time.Time, recordPresent bool) float64 {
	if !recordPresent {
		return math.NaN()
	}
	n := len(events)
	switch stat {
	case "count":
		return float64(n)
	case "present", "any":
		for _, ev := range events {
			if ev.Value != 0 {
				return 1
			}
		}
		return 0
	}
	if n == 0 {
		return math.NaN()
	}

	last := events[n-1]
	switch stat {
	case "min":
		m := events[0].Value
		for _, ev := range events[1:] {
			m = math.Min(m, ev.Value)
		}
		return m
	case "max":
		m := events[0].Value
		for _, ev := range events[1:] {
			m = math.Max(m, ev.Value)
		}
		return m
	case "mean", "frac":
		return mean(events)
	case "std":
		mu := mean(events)
		var ss float64
		for _, ev := range events {
			d := ev.Value - mu
			ss += d * d
		}
		return math.Sqrt(ss / float64(n))
	case "last", "value":
		return last.Value
	case "last_age_h":
		return windowEnd.Sub(last.Time).Hours()
	case "slope":
		return slope(events, windowEnd)
	}
	return math.NaN()
}

func mean(events []models.Event) float64 {
	var sum float64
	for _, ev := range events {
		sum += ev.Value
	}
	return sum / float64(len(events))
}

// slope is the least-squares slope of value against time in hours, NaN when all
// events share one timestamp.
func slope(events []models.Event, ref time.Time) float64 {
	n := float64(len(events))
	var sx, sy float64
	xs := make([]float64, len(events))
	for i, ev := range events {
		xs[i] = ev.Time.Sub(ref).Hours()
		sx += xs[i]
		sy += ev.Value
	}
	mx, my := sx/n, sy/n
	var sxx, sxy float64
	for i, ev := range events {
		dx := xs[i] - mx
		sxx += dx * dx
		sxy += dx * (ev.Value - my)
	}
	if sxx == 0 {
		return math.NaN()
	}
	return sxy / sxx
}
