package source

import (
	"context"
	"fmt"

	"github.com/synaptica-ai/patientpy/pkg/common/models"
)

// Source is the storage-agnostic read side of the clinical database.
type Source interface {
	Cohort(ctx context.Context, filter CohortFilter) ([]models.Admission, error)
	Events(ctx context.Context, adm models.Admission, domain models.Domain) ([]models.RawEvent, error)
}

// CohortFilter restricts the cohort query. Zero value selects every admission.
type CohortFilter struct {
	AdmissionIDs []string
	Limit        int
}

// EventTable returns the source table holding events of a domain.
func EventTable(domain models.Domain) (string, error) {
	switch domain {
	case models.DomainVital, models.DomainLab, models.DomainMed, models.DomainProcedure,
		models.DomainMicro, models.DomainIO:
		return string(domain) + "_events", nil
	case models.DomainDemographics:
		return "demographics", nil
	default:
		return "", fmt.Errorf("no source table for domain %q", domain)
	}
}
