package metrics

import (
	"infra-insight/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	SnapshotsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snapshots_processed_total",
		Help: "Total number of snapshots analyzed",
	})

	AnomaliesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anomalies_detected_total",
		Help: "Total number of anomalies detected",
	}, []string{"metric", "severity"})

	ReportsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reports_generated_total",
		Help: "Total number of reports emitted",
	})

	RecommendationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recommendation_failures_total",
		Help: "Total number of failed recommendation requests",
	})

	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "analysis_duration_seconds",
		Help:    "Duration of one pipeline run, recommendations included",
		Buckets: prometheus.DefBuckets,
	})

	ServicesByState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "services_by_state",
		Help: "Number of services per resolved state in the latest report",
	}, []string{"state"})
)

// ObserveReport records the counters derived from an emitted report.
func ObserveReport(r *models.Report, snapshots int) {
	SnapshotsProcessed.Add(float64(snapshots))
	ReportsGenerated.Inc()
	for _, a := range r.Anomalies {
		AnomaliesDetected.WithLabelValues(a.Metric, string(a.Severity)).Inc()
	}
	s := r.ServiceStatusSummary
	ServicesByState.WithLabelValues(string(models.StateOnline)).Set(float64(len(s.Online)))
	ServicesByState.WithLabelValues(string(models.StateDegraded)).Set(float64(len(s.Degraded)))
	ServicesByState.WithLabelValues(string(models.StateOffline)).Set(float64(len(s.Offline)))
}
