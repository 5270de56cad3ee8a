package extractor

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/synaptica-ai/patientpy/pkg/common/models"
	"github.com/synaptica-ai/patientpy/pkg/terminology"
)

// Skip reasons for source rows that do not become events.
const (
	ReasonUnmappedCode     = "unmapped_code"
	ReasonDomainMismatch   = "domain_mismatch"
	ReasonUnparseableValue = "unparseable_value"
	ReasonUnmappedDiscrete = "unmapped_discrete_value"
	ReasonOutsideWindow    = "outside_admission_window"
)

// Skip describes a source row dropped during normalization.
type Skip struct {
	SourceCode string
	Value      string
	Reason     string
}

// Normalizer maps raw source rows onto canonical events.
type Normalizer struct {
	catalog terminology.Catalog
}

func NewNormalizer(cat terminology.Catalog) *Normalizer {
	return &Normalizer{catalog: cat}
}

// Normalize applies the code mapping and the discrete-to-boolean mapping and keeps
// only events inside the admission window. The result is sorted by code, time and
// value so that identical input always yields identical output.
func (n *Normalizer) Normalize(adm models.Admission, domain models.Domain, raws []models.RawEvent) ([]models.Event, []Skip) {
	events := make([]models.Event, 0, len(raws))
	var skips []Skip
	for _, raw := range raws {
		concept, ok := n.catalog.Lookup(raw.SourceCode)
		if !ok {
			skips = append(skips, Skip{SourceCode: raw.SourceCode, Value: raw.Value, Reason: ReasonUnmappedCode})
			continue
		}
		if concept.Domain != domain {
			skips = append(skips, Skip{SourceCode: raw.SourceCode, Value: raw.Value, Reason: ReasonDomainMismatch})
			continue
		}
		ts := raw.ChartTime.UTC()
		if !adm.Contains(ts) {
			skips = append(skips, Skip{SourceCode: raw.SourceCode, Value: raw.Value, Reason: ReasonOutsideWindow})
			continue
		}
		value, reason := parseValue(concept, raw)
		if reason != "" {
			skips = append(skips, Skip{SourceCode: raw.SourceCode, Value: raw.Value, Reason: reason})
			continue
		}
		events = append(events, models.Event{
			Code:  concept.Code,
			Time:  ts,
			Value: value,
			Type:  concept.Type,
		})
	}

	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		return a.Value < b.Value
	})
	return events, skips
}

func parseValue(concept terminology.Concept, raw models.RawEvent) (float64, string) {
	switch concept.Type {
	case models.ValueBinary:
		return 1, ""
	case models.ValueDiscrete:
		flag, ok := concept.MapDiscrete(raw.Value)
		if !ok {
			return 0, ReasonUnmappedDiscrete
		}
		if flag {
			return 1, ""
		}
		return 0, ""
	default:
		if raw.NumValue != nil {
			if !finite(*raw.NumValue) {
				return 0, ReasonUnparseableValue
			}
			return *raw.NumValue, ""
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw.Value), 64)
		if err != nil || !finite(v) {
			return 0, ReasonUnparseableValue
		}
		return v, ""
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
