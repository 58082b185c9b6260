package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"infra-insight/internal/models"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a report id is unknown to a store.
var ErrNotFound = errors.New("report not found")

// TimestampLayout renders UTC timestamps with microseconds and a Z suffix.
const TimestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// New assembles a report from an analysis result and its recommendations.
func New(result models.AnalysisResult, recs []models.Recommendation, now time.Time) *models.Report {
	if recs == nil {
		recs = []models.Recommendation{}
	}
	anomalies := result.Anomalies
	if anomalies == nil {
		anomalies = []models.Anomaly{}
	}
	return &models.Report{
		ID:                   uuid.NewString(),
		Timestamp:            now.UTC().Format(TimestampLayout),
		Insights:             result.Insights,
		Anomalies:            anomalies,
		Recommendations:      recs,
		ServiceStatusSummary: result.ServiceStatusSummary,
	}
}

// Validate checks a report against the output schema and returns every
// failed check.
func Validate(r *models.Report) error {
	var errs []error

	if !strings.HasSuffix(r.Timestamp, "Z") || !strings.Contains(r.Timestamp, "T") {
		errs = append(errs, fmt.Errorf("timestamp_format: %q is not a UTC ISO-8601 timestamp", r.Timestamp))
	}

	in := r.Insights
	if in.AverageLatencyMs < 0 || in.MaxCPUUsage < 0 || in.MaxMemoryUsage < 0 || in.ErrorRate < 0 || in.UptimeSeconds < 0 {
		errs = append(errs, errors.New("insights_complete: insight values must be non-negative"))
	}

	for _, a := range r.Anomalies {
		if !a.Severity.Valid() {
			errs = append(errs, fmt.Errorf("anomalies_valid: %s has severity %q", a.Metric, a.Severity))
		}
	}

	for i, rec := range r.Recommendations {
		if rec.ID == "" || rec.Action == "" {
			errs = append(errs, fmt.Errorf("recommendations_valid: recommendation %d lacks id or action", i))
		}
	}

	s := r.ServiceStatusSummary
	if s.Online == nil || s.Degraded == nil || s.Offline == nil {
		errs = append(errs, errors.New("service_status_valid: status lists must be present"))
	}

	return errors.Join(errs...)
}

// ReadFile loads a report written by FileWriter.
func ReadFile(path string) (*models.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var r models.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", path, err)
	}
	return &r, nil
}
