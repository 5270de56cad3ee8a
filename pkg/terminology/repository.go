package terminology

import (
	"context"
	"fmt"

	"github.com/synaptica-ai/patientpy/pkg/common/models"
	"gorm.io/gorm"
)

// CodeMappingModel is one row of the code-mapping table.
type CodeMappingModel struct {
	SourceCode    string `gorm:"primaryKey;column:source_code"`
	CanonicalCode string `gorm:"column:canonical_code"`
	Display       string `gorm:"column:display"`
	Domain        string `gorm:"column:domain"`
	ValueType     string `gorm:"column:value_type"`
}

func (CodeMappingModel) TableName() string {
	return "code_mappings"
}

// DiscreteMappingModel is one row of the discrete-to-boolean table.
type DiscreteMappingModel struct {
	CanonicalCode string `gorm:"primaryKey;column:canonical_code"`
	DiscreteValue string `gorm:"primaryKey;column:discrete_value"`
	Flag          bool   `gorm:"column:flag"`
}

func (DiscreteMappingModel) TableName() string {
	return "discrete_mappings"
}

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) AutoMigrate() error {
	return r.db.AutoMigrate(&CodeMappingModel{}, &DiscreteMappingModel{})
}

// LoadCatalog builds a catalog from the mapping tables.
func (r *Repository) LoadCatalog(ctx context.Context) (Catalog, error) {
	var codes []CodeMappingModel
	if err := r.db.WithContext(ctx).Order("source_code").Find(&codes).Error; err != nil {
		return Catalog{}, fmt.Errorf("load code mappings: %w", err)
	}
	var discrete []DiscreteMappingModel
	if err := r.db.WithContext(ctx).Order("canonical_code, discrete_value").Find(&discrete).Error; err != nil {
		return Catalog{}, fmt.Errorf("load discrete mappings: %w", err)
	}

	flags := make(map[string]map[string]bool)
	for _, d := range discrete {
		code := normalizeText(d.CanonicalCode)
		if flags[code] == nil {
			flags[code] = make(map[string]bool)
		}
		flags[code][d.DiscreteValue] = d.Flag
	}

	cat := Catalog{Entries: make(map[string]Concept, len(codes))}
	for _, row := range codes {
		concept := Concept{
			Code:    row.CanonicalCode,
			Display: row.Display,
			Domain:  models.Domain(normalizeText(row.Domain)),
			Type:    models.ValueType(normalizeText(row.ValueType)),
		}
		if m, ok := flags[normalizeText(row.CanonicalCode)]; ok {
			concept.Discrete = m
		}
		cat.Entries[row.SourceCode] = concept
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
