package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Abhinavsb985/Smart-Traffic-Control/metrics"
	"github.com/Abhinavsb985/Smart-Traffic-Control/models"
)

// coordinateScale matches the DECIMAL(10,8)/DECIMAL(11,8) columns.
const coordinateScale = 8

// ReportStore persists reports in a table store and reads them back.
type ReportStore struct {
	tables TableStore
	table  string
}

// NewReportStore creates a report store over the given table.
func NewReportStore(tables TableStore, table string) *ReportStore {
	return &ReportStore{tables: tables, table: table}
}

// Create inserts a draft and returns the stored report with its assigned id
// and creation time. The description is trimmed before it is written.
func (s *ReportStore) Create(ctx context.Context, draft models.ReportDraft) (*models.Report, error) {
	description := strings.TrimSpace(draft.Description)
	if description == "" {
		return nil, &StoreError{Op: "create", Err: ErrEmptyDescription}
	}

	record := models.Record{
		"description": description,
		"location":    draft.Location.String(),
		"latitude":    decimal.NewFromFloat(draft.Location.Latitude).Round(coordinateScale),
		"longitude":   decimal.NewFromFloat(draft.Location.Longitude).Round(coordinateScale),
		"user_email":  draft.SubmittedBy,
	}
	if draft.ImageURL != "" {
		record["image_url"] = draft.ImageURL
	} else {
		record["image_url"] = nil
	}

	start := time.Now()
	stored, err := s.tables.Insert(ctx, s.table, record)
	metrics.StageDurationSeconds.WithLabelValues("persist").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, &StoreError{Op: "create", Err: err}
	}

	report, err := reportFromRecord(stored)
	if err != nil {
		return nil, &StoreError{Op: "create", Err: err}
	}
	return &report, nil
}

// ListAll returns every report, most recent first. Reports created at the
// same instant are ordered by id, descending.
func (s *ReportStore) ListAll(ctx context.Context) ([]models.Report, error) {
	records, err := s.tables.Select(ctx, s.table, "created_at", models.Descending)
	if err != nil {
		return nil, &StoreError{Op: "list", Err: err}
	}

	reports := make([]models.Report, 0, len(records))
	for _, rec := range records {
		report, err := reportFromRecord(rec)
		if err != nil {
			return nil, &StoreError{Op: "list", Err: err}
		}
		reports = append(reports, report)
	}
	sortReports(reports)
	return reports, nil
}

// Count returns the number of stored reports.
func (s *ReportStore) Count(ctx context.Context) (int, error) {
	n, err := s.tables.Count(ctx, s.table)
	if err != nil {
		return 0, &StoreError{Op: "count", Err: err}
	}
	return n, nil
}

func sortReports(reports []models.Report) {
	sort.SliceStable(reports, func(i, j int) bool {
		if !reports[i].CreatedAt.Equal(reports[j].CreatedAt) {
			return reports[i].CreatedAt.After(reports[j].CreatedAt)
		}
		return reports[i].ID > reports[j].ID
	})
}

func reportFromRecord(rec models.Record) (models.Report, error) {
	var r models.Report
	var err error

	if r.ID = toString(rec["id"]); r.ID == "" {
		return r, errors.New("record has no id")
	}
	r.Description = toString(rec["description"])
	r.ImageURL = toString(rec["image_url"])
	r.Location = toString(rec["location"])
	r.UserEmail = toString(rec["user_email"])

	if r.Latitude, err = toFloat(rec["latitude"]); err != nil {
		return r, fmt.Errorf("report %s latitude: %w", r.ID, err)
	}
	if r.Longitude, err = toFloat(rec["longitude"]); err != nil {
		return r, fmt.Errorf("report %s longitude: %w", r.ID, err)
	}
	if r.CreatedAt, err = toTime(rec["created_at"]); err != nil {
		return r, fmt.Errorf("report %s created_at: %w", r.ID, err)
	}
	return r, nil
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case int:
		return float64(t), nil
	case decimal.Decimal:
		return t.InexactFloat64(), nil
	case string:
		d, err := decimal.NewFromString(t)
		if err != nil {
			return 0, err
		}
		return d.InexactFloat64(), nil
	case []byte:
		return toFloat(string(t))
	default:
		return 0, fmt.Errorf("unsupported numeric value %T", v)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
}

func toTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case []byte:
		return toTime(string(t))
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("unrecognised timestamp %q", t)
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp value %T", v)
	}
}
