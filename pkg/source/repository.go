package source

import (
	"context"
	"fmt"
	"time"

	"github.com/synaptica-ai/patientpy/pkg/common/models"
	"gorm.io/gorm"
)

type AdmissionModel struct {
	AdmissionID string    `gorm:"primaryKey;column:admission_id"`
	PatientID   string    `gorm:"column:patient_id;index"`
	ICUInTime   time.Time `gorm:"column:icu_intime"`
	ICUOutTime  time.Time `gorm:"column:icu_outtime"`
}

func (AdmissionModel) TableName() string {
	return "admissions"
}

// EventModel is the shared row shape of every <domain>_events table.
type EventModel struct {
	ID          uint      `gorm:"primaryKey;column:id"`
	AdmissionID string    `gorm:"column:admission_id;index"`
	ItemCode    string    `gorm:"column:item_code"`
	ChartTime   time.Time `gorm:"column:chart_time"`
	Value       string    `gorm:"column:value"`
	ValueNum    *float64  `gorm:"column:value_num"`
}

type DemographicModel struct {
	ID          uint     `gorm:"primaryKey;column:id"`
	AdmissionID string   `gorm:"column:admission_id;index"`
	Attribute   string   `gorm:"column:attribute"`
	Value       string   `gorm:"column:value"`
	ValueNum    *float64 `gorm:"column:value_num"`
}

func (DemographicModel) TableName() string {
	return "demographics"
}

// GormSource reads the clinical tables through gorm, so it serves any dialect
// gorm has a driver for.
type GormSource struct {
	db *gorm.DB
}

func NewGormSource(db *gorm.DB) *GormSource {
	return &GormSource{db: db}
}

// AutoMigrate creates the source tables. Used for local sqlite sources and tests.
func (s *GormSource) AutoMigrate() error {
	if err := s.db.AutoMigrate(&AdmissionModel{}, &DemographicModel{}); err != nil {
		return err
	}
	for _, d := range models.AllDomains {
		if d == models.DomainDemographics {
			continue
		}
		table, _ := EventTable(d)
		if err := s.db.Table(table).AutoMigrate(&EventModel{}); err != nil {
			return fmt.Errorf("migrate %s: %w", table, err)
		}
	}
	return nil
}

func (s *GormSource) Cohort(ctx context.Context, filter CohortFilter) ([]models.Admission, error) {
	var rows []AdmissionModel
	tx := s.db.WithContext(ctx).Order("admission_id")
	if len(filter.AdmissionIDs) > 0 {
		tx = tx.Where("admission_id IN ?", filter.AdmissionIDs)
	}
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("cohort query: %w", err)
	}
	out := make([]models.Admission, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.Admission{
			AdmissionID:   r.AdmissionID,
			PatientID:     r.PatientID,
			AdmitTime:     r.ICUInTime.UTC(),
			DischargeTime: r.ICUOutTime.UTC(),
		})
	}
	return out, nil
}

func (s *GormSource) Events(ctx context.Context, adm models.Admission, domain models.Domain) ([]models.RawEvent, error) {
	if domain == models.DomainDemographics {
		return s.demographics(ctx, adm)
	}
	table, err := EventTable(domain)
	if err != nil {
		return nil, err
	}
	var rows []EventModel
	if err := s.db.WithContext(ctx).Table(table).
		Where("admission_id = ?", adm.AdmissionID).
		Order("chart_time, id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s for %s: %w", table, adm.AdmissionID, err)
	}
	out := make([]models.RawEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.RawEvent{
			AdmissionID: r.AdmissionID,
			SourceCode:  r.ItemCode,
			ChartTime:   r.ChartTime.UTC(),
			Value:       r.Value,
			NumValue:    r.ValueNum,
		})
	}
	return out, nil
}

// demographics are static; they are stamped with the admit time.
func (s *GormSource) demographics(ctx context.Context, adm models.Admission) ([]models.RawEvent, error) {
	var rows []DemographicModel
	if err := s.db.WithContext(ctx).
		Where("admission_id = ?", adm.AdmissionID).
		Order("attribute, id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query demographics for %s: %w", adm.AdmissionID, err)
	}
	out := make([]models.RawEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.RawEvent{
			AdmissionID: r.AdmissionID,
			SourceCode:  r.Attribute,
			ChartTime:   adm.AdmitTime,
			Value:       r.Value,
			NumValue:    r.ValueNum,
		})
	}
	return out, nil
}
