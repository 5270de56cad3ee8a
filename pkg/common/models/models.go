package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Domain names one clinical source table.
type Domain string

const (
	DomainVital        Domain = "vital"
	DomainLab          Domain = "lab"
	DomainMed          Domain = "med"
	DomainProcedure    Domain = "procedure"
	DomainMicro        Domain = "micro"
	DomainIO           Domain = "io"
	DomainDemographics Domain = "demo"
)

// AllDomains is the default extraction order.
var AllDomains = []Domain{
	DomainDemographics,
	DomainVital,
	DomainLab,
	DomainMed,
	DomainProcedure,
	DomainMicro,
	DomainIO,
}

func ParseDomain(s string) (Domain, error) {
	d := Domain(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllDomains {
		if d == known {
			return d, nil
		}
	}
	return "", fmt.Errorf("unknown domain %q", s)
}

func ParseDomains(values []string) ([]Domain, error) {
	if len(values) == 0 {
		return append([]Domain(nil), AllDomains...), nil
	}
	out := make([]Domain, 0, len(values))
	for _, v := range values {
		d, err := ParseDomain(v)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// ValueType describes how a raw value is interpreted.
type ValueType string

const (
	ValueInterval ValueType = "interval" // numeric measurement
	ValueDiscrete ValueType = "discrete" // categorical, mapped to a boolean
	ValueBinary   ValueType = "binary"   // presence only
)

func (v ValueType) Valid() bool {
	switch v {
	case ValueInterval, ValueDiscrete, ValueBinary:
		return true
	}
	return false
}

// Admission is one ICU stay of a patient.
type Admission struct {
	AdmissionID   string    `json:"admission_id"`
	PatientID     string    `json:"patient_id"`
	AdmitTime     time.Time `json:"admit_time"`
	DischargeTime time.Time `json:"discharge_time"`
}

// Contains reports whether t falls inside the admission window, bounds included.
func (a Admission) Contains(t time.Time) bool {
	return !t.Before(a.AdmitTime) && !t.After(a.DischargeTime)
}

// RawEvent is a source row before code mapping.
type RawEvent struct {
	AdmissionID string
	SourceCode  string
	ChartTime   time.Time
	Value       string
	NumValue    *float64
}

// Event is a normalized clinical event.
type Event struct {
	Code  string    `json:"code"`
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
	Type  ValueType `json:"type"`
}

// CachedRecord is the serialized per-admission, per-domain bundle.
type CachedRecord struct {
	Admission Admission `json:"admission"`
	Domain    Domain    `json:"domain"`
	Events    []Event   `json:"events"`
}

// LabeledCase drives feature construction for one admission.
type LabeledCase struct {
	CaseID      string    `json:"case_id"`
	AdmissionID string    `json:"admission_id"`
	Label       string    `json:"label"`
	WindowEnd   time.Time `json:"window_end"`
}

// FeatureVector is one row of the feature matrix. NaN marks missing data.
type FeatureVector struct {
	CaseID      string
	AdmissionID string
	Label       string
	Columns     []string
	Values      []float64
}

type featureVectorJSON struct {
	CaseID      string     `json:"case_id"`
	AdmissionID string     `json:"admission_id"`
	Label       string     `json:"label"`
	Columns     []string   `json:"columns"`
	Values      []*float64 `json:"values"`
}

// MarshalJSON writes missing values as null since JSON has no NaN.
func (v FeatureVector) MarshalJSON() ([]byte, error) {
	out := featureVectorJSON{
		CaseID:      v.CaseID,
		AdmissionID: v.AdmissionID,
		Label:       v.Label,
		Columns:     v.Columns,
		Values:      make([]*float64, len(v.Values)),
	}
	for i, val := range v.Values {
		if math.IsNaN(val) || math.IsInf(val, 0) {
			continue
		}
		x := val
		out.Values[i] = &x
	}
	return json.Marshal(out)
}

func (v *FeatureVector) UnmarshalJSON(data []byte) error {
	var in featureVectorJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if len(in.Columns) != len(in.Values) {
		return fmt.Errorf("feature vector %s: %d columns but %d values", in.CaseID, len(in.Columns), len(in.Values))
	}
	v.CaseID = in.CaseID
	v.AdmissionID = in.AdmissionID
	v.Label = in.Label
	v.Columns = in.Columns
	v.Values = make([]float64, len(in.Values))
	for i, p := range in.Values {
		if p == nil {
			v.Values[i] = math.NaN()
			continue
		}
		v.Values[i] = *p
	}
	return nil
}

// Value returns the named feature and whether the column exists.
func (v FeatureVector) Value(column string) (float64, bool) {
	for i, c := range v.Columns {
		if c == column {
			return v.Values[i], true
		}
	}
	return math.NaN(), false
}

// Event Bus models
type PipelineEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Source    string                 `json:"source"`
	Data      map[string]interface{} `json:"data"`
	Timestamp time.Time              `json:"timestamp"`
}
