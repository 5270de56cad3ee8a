package source

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/synaptica-ai/patientpy/pkg/common/models"
	"google.golang.org/api/iterator"
)

// BigQuerySource reads the same table layout as GormSource from a BigQuery dataset.
type BigQuerySource struct {
	client  *bigquery.Client
	project string
	dataset string
}

func NewBigQuerySource(ctx context.Context, project, dataset string) (*BigQuerySource, error) {
	if project == "" || dataset == "" {
		return nil, fmt.Errorf("bigquery project and dataset are required")
	}
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("connecting to BigQuery: %w", err)
	}
	return &BigQuerySource{client: client, project: project, dataset: dataset}, nil
}

func (s *BigQuerySource) Close() error {
	return s.client.Close()
}

type bqAdmission struct {
	AdmissionID string                 `bigquery:"admission_id"`
	PatientID   string                 `bigquery:"patient_id"`
	ICUInTime   bigquery.NullTimestamp `bigquery:"icu_intime"`
	ICUOutTime  bigquery.NullTimestamp `bigquery:"icu_outtime"`
}

// toAdmission maps NULL stay bounds to zero times; the extractor rejects such
// an admission on its own instead of failing the cohort query.
func (row bqAdmission) toAdmission() models.Admission {
	return models.Admission{
		AdmissionID:   row.AdmissionID,
		PatientID:     row.PatientID,
		AdmitTime:     nullTime(row.ICUInTime),
		DischargeTime: nullTime(row.ICUOutTime),
	}
}

func nullTime(ts bigquery.NullTimestamp) time.Time {
	if !ts.Valid {
		return time.Time{}
	}
	return ts.Timestamp.UTC()
}

type bqEvent struct {
	AdmissionID string                 `bigquery:"admission_id"`
	ItemCode    string                 `bigquery:"item_code"`
	ChartTime   bigquery.NullTimestamp `bigquery:"chart_time"`
	Value       bigquery.NullString    `bigquery:"value"`
	ValueNum    bigquery.NullFloat64   `bigquery:"value_num"`
}

// toRawEvent keeps a NULL chart time as zero so the normalizer drops the row as
// outside the admission. Demographics carry no time and take the admit time.
func (row bqEvent) toRawEvent(adm models.Admission, domain models.Domain) models.RawEvent {
	ev := models.RawEvent{
		AdmissionID: row.AdmissionID,
		SourceCode:  row.ItemCode,
		ChartTime:   nullTime(row.ChartTime),
		Value:       row.Value.StringVal,
	}
	if domain == models.DomainDemographics && ev.ChartTime.IsZero() {
		ev.ChartTime = adm.AdmitTime
	}
	if row.ValueNum.Valid {
		v := row.ValueNum.Float64
		ev.NumValue = &v
	}
	return ev
}

func (s *BigQuerySource) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.project, s.dataset, name)
}

// CohortSQL builds the cohort query text; parameters are bound separately.
func CohortSQL(table string, filter CohortFilter) string {
	sql := "SELECT admission_id, patient_id, icu_intime, icu_outtime FROM " + table
	if len(filter.AdmissionIDs) > 0 {
		sql += " WHERE admission_id IN UNNEST(@ids)"
	}
	sql += " ORDER BY admission_id"
	if filter.Limit > 0 {
		sql += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	return sql
}

// EventsSQL builds the per-admission event query for a domain table.
func EventsSQL(table string, domain models.Domain) string {
	if domain == models.DomainDemographics {
		return "SELECT admission_id, attribute AS item_code, CAST(NULL AS TIMESTAMP) AS chart_time, value, value_num FROM " +
			table + " WHERE admission_id = @admission_id ORDER BY attribute"
	}
	return "SELECT admission_id, item_code, chart_time, value, value_num FROM " +
		table + " WHERE admission_id = @admission_id ORDER BY chart_time"
}

func (s *BigQuerySource) Cohort(ctx context.Context, filter CohortFilter) ([]models.Admission, error) {
	q := s.client.Query(CohortSQL(s.table("admissions"), filter))
	if len(filter.AdmissionIDs) > 0 {
		q.Parameters = []bigquery.QueryParameter{{Name: "ids", Value: filter.AdmissionIDs}}
	}
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("cohort query: %w", err)
	}
	var out []models.Admission
	for {
		var row bqAdmission
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("cohort row: %w", err)
		}
		out = append(out, row.toAdmission())
	}
	return out, nil
}

func (s *BigQuerySource) Events(ctx context.Context, adm models.Admission, domain models.Domain) ([]models.RawEvent, error) {
	name, err := EventTable(domain)
	if err != nil {
		return nil, err
	}
	q := s.client.Query(EventsSQL(s.table(name), domain))
	q.Parameters = []bigquery.QueryParameter{{Name: "admission_id", Value: adm.AdmissionID}}
	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("query %s for %s: %w", name, adm.AdmissionID, err)
	}
	var out []models.RawEvent
	for {
		var row bqEvent
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s row: %w", name, err)
		}
		out = append(out, row.toRawEvent(adm, domain))
	}
	return out, nil
}
