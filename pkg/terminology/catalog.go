package terminology

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/synaptica-ai/patientpy/pkg/common/models"
	"gopkg.in/yaml.v3"
)

// Concept is the canonical event a source code maps to.
type Concept struct {
	Code     string           `yaml:"code" json:"code"`
	Display  string           `yaml:"display" json:"display"`
	Domain   models.Domain    `yaml:"domain" json:"domain"`
	Type     models.ValueType `yaml:"type" json:"type"`
	Discrete map[string]bool  `yaml:"discrete,omitempty" json:"discrete,omitempty"`
}

// Catalog maps source-system codes to canonical concepts. Several source codes
// may share one canonical code.
type Catalog struct {
	Entries map[string]Concept `yaml:"concepts" json:"concepts"`
}

func Load(path string) (Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Catalog{}, err
	}
	var cat Catalog
	if err := yaml.Unmarshal(content, &cat); err != nil {
		return Catalog{}, err
	}
	if len(cat.Entries) == 0 {
		return Catalog{}, fmt.Errorf("terminology catalog empty")
	}
	cat = cat.normalized()
	if err := cat.Validate(); err != nil {
		return Catalog{}, err
	}
	return cat, nil
}

func (c Catalog) normalized() Catalog {
	out := Catalog{Entries: make(map[string]Concept, len(c.Entries))}
	for src, concept := range c.Entries {
		concept.Code = strings.ToLower(strings.TrimSpace(concept.Code))
		if concept.Type == "" {
			concept.Type = models.ValueInterval
		}
		if len(concept.Discrete) > 0 {
			discrete := make(map[string]bool, len(concept.Discrete))
			for k, v := range concept.Discrete {
				discrete[normalizeText(k)] = v
			}
			concept.Discrete = discrete
		}
		out.Entries[normalizeText(src)] = concept
	}
	return out
}

// Validate checks that every concept is complete and that source codes sharing a
// canonical code agree on its domain and value type.
func (c Catalog) Validate() error {
	seen := make(map[string]Concept)
	for src, concept := range c.Entries {
		if concept.Code == "" {
			return fmt.Errorf("source code %q: canonical code missing", src)
		}
		if _, err := models.ParseDomain(string(concept.Domain)); err != nil {
			return fmt.Errorf("source code %q: %w", src, err)
		}
		if !concept.Type.Valid() {
			return fmt.Errorf("source code %q: unknown value type %q", src, concept.Type)
		}
		if concept.Type == models.ValueDiscrete && len(concept.Discrete) == 0 {
			return fmt.Errorf("source code %q: discrete concept without discrete mapping", src)
		}
		key := string(concept.Domain) + "/" + concept.Code
		if prev, ok := seen[key]; ok && prev.Type != concept.Type {
			return fmt.Errorf("canonical code %s mapped with conflicting types %s and %s", key, prev.Type, concept.Type)
		}
		seen[key] = concept
	}
	return nil
}

func (c Catalog) Lookup(sourceCode string) (Concept, bool) {
	if c.Entries == nil {
		return Concept{}, false
	}
	concept, ok := c.Entries[normalizeText(sourceCode)]
	return concept, ok
}

// Concepts returns the distinct canonical concepts of a domain ordered by code.
// The order defines the feature column order.
func (c Catalog) Concepts(domain models.Domain) []Concept {
	byCode := make(map[string]Concept)
	for _, concept := range c.Entries {
		if concept.Domain != domain {
			continue
		}
		if _, ok := byCode[concept.Code]; !ok {
			byCode[concept.Code] = concept
		}
	}
	out := make([]Concept, 0, len(byCode))
	for _, concept := range byCode {
		out = append(out, concept)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// MapDiscrete converts a categorical value to its boolean meaning.
func (c Concept) MapDiscrete(text string) (bool, bool) {
	flag, ok := c.Discrete[normalizeText(text)]
	return flag, ok
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func DefaultCatalog() Catalog {
	positive := map[string]bool{"positive": true, "pos": true, "negative": false, "neg": false}
	return Catalog{Entries: map[string]Concept{
		"220045": {Code: "heart_rate", Display: "Heart Rate", Domain: models.DomainVital, Type: models.ValueInterval},
		"211":    {Code: "heart_rate", Display: "Heart Rate", Domain: models.DomainVital, Type: models.ValueInterval},
		"220179": {Code: "sbp", Display: "Systolic Blood Pressure", Domain: models.DomainVital, Type: models.ValueInterval},
		"50912":  {Code: "creatinine", Display: "Creatinine", Domain: models.DomainLab, Type: models.ValueInterval},
		"50971":  {Code: "potassium", Display: "Potassium", Domain: models.DomainLab, Type: models.ValueInterval},
		"vanco":  {Code: "vancomycin", Display: "Vancomycin", Domain: models.DomainMed, Type: models.ValueBinary},
		"225792": {Code: "ventilation", Display: "Invasive Ventilation", Domain: models.DomainProcedure, Type: models.ValueBinary},
		"blood culture": {
			Code: "blood_culture", Display: "Blood Culture", Domain: models.DomainMicro, Type: models.ValueDiscrete, Discrete: positive,
		},
		"urine":  {Code: "urine_out", Display: "Urine Output", Domain: models.DomainIO, Type: models.ValueInterval},
		"age":    {Code: "age", Display: "Age", Domain: models.DomainDemographics, Type: models.ValueInterval},
		"weight": {Code: "weight", Display: "Admission Weight", Domain: models.DomainDemographics, Type: models.ValueInterval},
		"gender": {
			Code: "male", Display: "Male", Domain: models.DomainDemographics, Type: models.ValueDiscrete,
			Discrete: map[string]bool{"m": true, "male": true, "f": false, "female": false},
		},
	}}
}
