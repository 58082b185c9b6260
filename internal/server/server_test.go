package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"infra-insight/internal/analytics"
	"infra-insight/internal/models"
	"infra-insight/internal/pipeline"
	"infra-insight/internal/report"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryStore struct {
	reports []*models.Report
}

func (m *memoryStore) AnomalyHistory(_ context.Context, metric string, limit int) ([]report.AnomalyRecord, error) {
	out := []report.AnomalyRecord{}
	for _, r := range m.reports {
		for _, a := range r.Anomalies {
			if a.Metric == metric && len(out) < limit {
				out = append(out, report.AnomalyRecord{ReportID: r.ID, Timestamp: r.Timestamp, Anomaly: a})
			}
		}
	}
	return out, nil
}

func (m *memoryStore) Save(_ context.Context, r *models.Report) error {
	m.reports = append([]*models.Report{r}, m.reports...)
	return nil
}

func (m *memoryStore) Get(_ context.Context, id string) (*models.Report, error) {
	for _, r := range m.reports {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, report.ErrNotFound
}

func (m *memoryStore) List(_ context.Context, limit int) ([]*models.Report, error) {
	if limit > len(m.reports) {
		limit = len(m.reports)
	}
	return m.reports[:limit], nil
}

type brokenCache struct{}

func (brokenCache) GetReport(context.Context, string) (*models.Report, error) {
	return nil, errors.New("connection refused")
}

func (brokenCache) GetRecentReports(context.Context, int64) ([]*models.Report, error) {
	return nil, errors.New("connection refused")
}

const snapshotBody = `[{
	"timestamp": "2023-10-01T12:00:00Z", "cpu_usage": 95, "memory_usage": 60, "latency_ms": 100,
	"disk_usage": 50, "network_in_kbps": 1000, "network_out_kbps": 800, "io_wait": 3,
	"thread_count": 100, "active_connections": 30, "error_rate": 0.01, "uptime_seconds": 10000,
	"temperature_celsius": 60, "power_consumption_watts": 200,
	"service_status": {"database": "online", "cache": "degraded"}
}]`

func newTestServer(t *testing.T, cache ReportCache) (*httptest.Server, *memoryStore) {
	t.Helper()
	store := &memoryStore{}
	p := pipeline.New(analytics.NewAnalyzer(analytics.DefaultThresholds(), nil), nil, zap.NewNop(), store)
	srv := httptest.NewServer(NewServer(p, store, cache, zap.NewNop()).Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	resp := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestAnalyze(t *testing.T) {
	srv, store := newTestServer(t, nil)

	resp := post(t, srv.URL+"/analyze", snapshotBody)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rep models.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
	require.Len(t, rep.Anomalies, 1)
	assert.Equal(t, "cpu_usage", rep.Anomalies[0].Metric)
	assert.Equal(t, []string{"cache"}, rep.ServiceStatusSummary.Degraded)
	assert.Empty(t, rep.Recommendations)
	require.Len(t, store.reports, 1)
	assert.Equal(t, rep.ID, store.reports[0].ID)
}

func TestAnalyzeErrors(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty", `[]`, http.StatusUnprocessableEntity},
		{"malformed", `{"not": "a list"}`, http.StatusBadRequest},
		{"missing field", `[{"timestamp": "2023-10-01T12:00:00Z", "cpu_usage": 40}]`, http.StatusBadRequest},
		{"invalid snapshot", strings.Replace(snapshotBody, `"cpu_usage": 95`, `"cpu_usage": 140`, 1), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := post(t, srv.URL+"/analyze", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestReportsFallBackToStore(t *testing.T) {
	srv, store := newTestServer(t, brokenCache{})

	first := report.New(models.AnalysisResult{}, nil, time.Now())
	second := report.New(models.AnalysisResult{}, nil, time.Now())
	require.NoError(t, store.Save(context.Background(), first))
	require.NoError(t, store.Save(context.Background(), second))

	resp := get(t, srv.URL+"/reports/latest")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var latest models.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&latest))
	assert.Equal(t, second.ID, latest.ID)

	resp = get(t, srv.URL+"/reports/"+first.ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, srv.URL+"/reports?limit=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []models.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list, 2)
}

func TestReportsNotFound(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/reports/latest").StatusCode)
	assert.Equal(t, http.StatusNotFound, get(t, srv.URL+"/reports/nope").StatusCode)
	assert.Equal(t, http.StatusBadRequest, get(t, srv.URL+"/reports?limit=zero").StatusCode)
}

func TestAnomalyHistory(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	var ids []string
	for i := 0; i < 2; i++ {
		resp := post(t, srv.URL+"/analyze", snapshotBody)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var rep models.Report
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&rep))
		ids = append(ids, rep.ID)
	}

	resp := get(t, srv.URL+"/anomalies?metric=cpu_usage&limit=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var history []map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	require.Len(t, history, 2)
	assert.Equal(t, ids[1], history[0]["report_id"])
	assert.Equal(t, "cpu_usage", history[0]["metric"])
	assert.Equal(t, 95.0, history[0]["value"])
	assert.Equal(t, "high", history[0]["severity"])

	resp = get(t, srv.URL+"/anomalies?metric=memory_usage")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	assert.Empty(t, history)
}

func TestAnomalyHistoryBadRequest(t *testing.T) {
	srv, _ := newTestServer(t, nil)

	assert.Equal(t, http.StatusBadRequest, get(t, srv.URL+"/anomalies").StatusCode)
	assert.Equal(t, http.StatusBadRequest, get(t, srv.URL+"/anomalies?metric=gpu").StatusCode)
	assert.Equal(t, http.StatusBadRequest, get(t, srv.URL+"/anomalies?metric=cpu_usage&limit=-1").StatusCode)
}

func TestPrometheusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil)
	post(t, srv.URL+"/analyze", snapshotBody)

	resp := get(t, srv.URL+"/metrics/prometheus")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	buf := new(strings.Builder)
	_, err := io.Copy(buf, resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "anomalies_detected_total")
	assert.Contains(t, buf.String(), "http_requests_total")
}
