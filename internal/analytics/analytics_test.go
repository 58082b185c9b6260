package analytics

import (
	"testing"

	"infra-insight/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// healthy returns a snapshot below every threshold, adjusted by fn.
func healthy(fn func(*models.Snapshot)) models.Snapshot {
	s := models.Snapshot{
		Timestamp:             "2023-10-01T12:00:00Z",
		CPUUsage:              60,
		MemoryUsage:           60,
		LatencyMs:             100,
		DiskUsage:             50,
		NetworkInKbps:         1000,
		NetworkOutKbps:        800,
		IOWait:                3,
		ThreadCount:           100,
		ActiveConnections:     30,
		ErrorRate:             0.01,
		UptimeSeconds:         10000,
		TemperatureCelsius:    60,
		PowerConsumptionWatts: 200,
		ServiceStatus: map[string]models.ServiceState{
			"database":    models.StateOnline,
			"api_gateway": models.StateOnline,
			"cache":       models.StateOnline,
		},
	}
	if fn != nil {
		fn(&s)
	}
	return s
}

func TestAggregate(t *testing.T) {
	snaps := []models.Snapshot{
		healthy(func(s *models.Snapshot) { s.LatencyMs = 100; s.CPUUsage = 50.123; s.ErrorRate = 0.01 }),
		healthy(func(s *models.Snapshot) { s.LatencyMs = 200; s.CPUUsage = 91.456; s.MemoryUsage = 77.777; s.ErrorRate = 0.02; s.UptimeSeconds = 99999 }),
		healthy(func(s *models.Snapshot) { s.LatencyMs = 150.5; s.CPUUsage = 70; s.ErrorRate = 0.02; s.UptimeSeconds = 11800 }),
	}

	insight, err := Aggregate(snaps)
	require.NoError(t, err)

	assert.Equal(t, 150.17, insight.AverageLatencyMs)
	assert.Equal(t, 91.46, insight.MaxCPUUsage)
	assert.Equal(t, 77.78, insight.MaxMemoryUsage)
	assert.Equal(t, 0.0167, insight.ErrorRate)
	assert.Equal(t, int64(11800), insight.UptimeSeconds, "uptime comes from the last snapshot, not the max")
}

func TestAggregateAverageWithinBounds(t *testing.T) {
	latencies := []float64{12.5, 300.25, 87.1, 87.1, 250}
	snaps := make([]models.Snapshot, 0, len(latencies))
	for _, l := range latencies {
		l := l
		snaps = append(snaps, healthy(func(s *models.Snapshot) { s.LatencyMs = l }))
	}

	insight, err := Aggregate(snaps)
	require.NoError(t, err)
	assert.Equal(t, 147.39, insight.AverageLatencyMs)
	assert.GreaterOrEqual(t, insight.AverageLatencyMs, 12.5)
	assert.LessOrEqual(t, insight.AverageLatencyMs, 300.25)
}

func TestAggregateSingleSnapshot(t *testing.T) {
	s := healthy(func(s *models.Snapshot) { s.LatencyMs = 123.456; s.ErrorRate = 0.03333 })

	insight, err := Aggregate([]models.Snapshot{s})
	require.NoError(t, err)
	assert.Equal(t, 123.46, insight.AverageLatencyMs)
	assert.Equal(t, 0.0333, insight.ErrorRate)
	assert.Equal(t, s.UptimeSeconds, insight.UptimeSeconds)
}

func TestAggregateEmpty(t *testing.T) {
	_, err := Aggregate(nil)
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestRoundHalfEven(t *testing.T) {
	assert.Equal(t, 0.12, round(0.125, 2))
	assert.Equal(t, 2.67, round(2.675, 2))
	assert.Equal(t, 1.0, round(0.99999, 2))
	assert.Equal(t, 0.0501, round(0.05005001, 4))
}

func TestDetectSingleHighCPU(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	got := d.Detect([]models.Snapshot{healthy(func(s *models.Snapshot) { s.CPUUsage = 95 })})

	require.Len(t, got, 1)
	assert.Equal(t, "cpu_usage", got[0].Metric)
	assert.Equal(t, models.SeverityHigh, got[0].Severity)
	assert.Equal(t, 95.0, got[0].Value)
	assert.Equal(t, 85.0, got[0].Threshold)
	assert.Contains(t, got[0].Description, "95")
	assert.Contains(t, got[0].Description, "2023-10-01T12:00:00Z")
}

func TestDetectAllMetrics(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	got := d.Detect([]models.Snapshot{healthy(func(s *models.Snapshot) {
		s.CPUUsage = 90
		s.MemoryUsage = 85
		s.LatencyMs = 300
		s.IOWait = 12
		s.ErrorRate = 0.08
		s.TemperatureCelsius = 80
	})})

	require.Len(t, got, 6)
	severities := map[string]models.Severity{}
	for _, a := range got {
		severities[a.Metric] = a.Severity
		assert.Contains(t, a.Description, formatValue(a.Value))
	}
	assert.Equal(t, map[string]models.Severity{
		"cpu_usage":           models.SeverityHigh,
		"memory_usage":        models.SeverityHigh,
		"latency_ms":          models.SeverityHigh,
		"error_rate":          models.SeverityHigh,
		"temperature_celsius": models.SeverityHigh,
		"io_wait":             models.SeverityMedium,
	}, severities)
}

func TestDetectNoAnomalies(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	got := d.Detect([]models.Snapshot{healthy(nil), healthy(nil)})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestDetectKeepsWorstPerMetric(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	got := d.Detect([]models.Snapshot{
		healthy(func(s *models.Snapshot) { s.MemoryUsage = 82 }),
		healthy(func(s *models.Snapshot) { s.MemoryUsage = 95 }),
		healthy(func(s *models.Snapshot) { s.MemoryUsage = 88 }),
	})

	require.Len(t, got, 1)
	assert.Equal(t, 95.0, got[0].Value)
}

func TestDetectMediumNeverDisplacesHigh(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	got := d.Detect([]models.Snapshot{
		healthy(func(s *models.Snapshot) { s.CPUUsage = 90 }),
		healthy(func(s *models.Snapshot) { s.CPUUsage = 80 }),
	})

	require.Len(t, got, 1)
	assert.Equal(t, models.SeverityHigh, got[0].Severity)
	assert.Equal(t, 90.0, got[0].Value)
}

func TestDetectHighReplacesMedium(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	got := d.Detect([]models.Snapshot{
		healthy(func(s *models.Snapshot) { s.CPUUsage = 80 }),
		healthy(func(s *models.Snapshot) { s.CPUUsage = 88 }),
	})

	require.Len(t, got, 1)
	assert.Equal(t, models.SeverityHigh, got[0].Severity)
	assert.Equal(t, 88.0, got[0].Value)
	assert.Equal(t, 85.0, got[0].Threshold)
}

func TestDetectFirstMediumWins(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	got := d.Detect([]models.Snapshot{
		healthy(func(s *models.Snapshot) { s.CPUUsage = 76 }),
		healthy(func(s *models.Snapshot) { s.CPUUsage = 84 }),
	})

	require.Len(t, got, 1)
	assert.Equal(t, models.SeverityMedium, got[0].Severity)
	assert.Equal(t, 76.0, got[0].Value)
	assert.Equal(t, 75.0, got[0].Threshold)
}

func TestDetectOrderIsFirstDetection(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	got := d.Detect([]models.Snapshot{
		healthy(func(s *models.Snapshot) { s.LatencyMs = 300 }),
		healthy(func(s *models.Snapshot) { s.CPUUsage = 90 }),
		healthy(func(s *models.Snapshot) { s.LatencyMs = 400 }),
	})

	require.Len(t, got, 2)
	assert.Equal(t, "latency_ms", got[0].Metric)
	assert.Equal(t, 400.0, got[0].Value)
	assert.Equal(t, "cpu_usage", got[1].Metric)
}

func TestDetectThresholdIsExclusive(t *testing.T) {
	d := NewDetector(DefaultThresholds())
	got := d.Detect([]models.Snapshot{healthy(func(s *models.Snapshot) {
		s.CPUUsage = 75
		s.MemoryUsage = 80
		s.IOWait = 10
		s.ErrorRate = 0.05
	})})
	assert.Empty(t, got)
}

func TestDetectCustomThresholds(t *testing.T) {
	thresholds, err := NewThresholds(
		Rule{Metric: MetricLatency, High: 50, HighSeverity: models.SeverityHigh, Medium: 20, MediumSeverity: models.SeverityLow},
	)
	require.NoError(t, err)

	d := NewDetector(thresholds)
	got := d.Detect([]models.Snapshot{
		healthy(func(s *models.Snapshot) { s.LatencyMs = 30; s.CPUUsage = 99 }),
	})

	require.Len(t, got, 1, "metrics without a rule are not evaluated")
	assert.Equal(t, "latency_ms", got[0].Metric)
	assert.Equal(t, models.SeverityLow, got[0].Severity)
}

func TestNewThresholdsRejectsBadRules(t *testing.T) {
	tests := []struct {
		name string
		rule Rule
	}{
		{"unknown metric", Rule{Metric: "disk_usage", High: 90, HighSeverity: models.SeverityHigh}},
		{"bad severity", Rule{Metric: MetricCPU, High: 90, HighSeverity: "critical"}},
		{"medium above high", Rule{Metric: MetricCPU, High: 80, Medium: 90, HighSeverity: models.SeverityHigh}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewThresholds(tt.rule)
			assert.Error(t, err)
		})
	}
}

func TestThresholdsWith(t *testing.T) {
	base := DefaultThresholds()
	updated, err := base.With(Rule{Metric: MetricIOWait, High: 20, HighSeverity: models.SeverityHigh})
	require.NoError(t, err)

	r, ok := updated.Rule(MetricIOWait)
	require.True(t, ok)
	assert.Equal(t, 20.0, r.High)
	assert.Len(t, updated.Rules(), len(Metrics))

	orig, _ := base.Rule(MetricIOWait)
	assert.Equal(t, 10.0, orig.High, "With must not modify the receiver")
}

func TestResolveServiceStatus(t *testing.T) {
	a := healthy(func(s *models.Snapshot) {
		s.ServiceStatus = map[string]models.ServiceState{
			"database":    models.StateOnline,
			"api_gateway": models.StateDegraded,
			"cache":       models.StateOnline,
		}
	})
	b := healthy(func(s *models.Snapshot) {
		s.ServiceStatus = map[string]models.ServiceState{
			"database":    models.StateOffline,
			"api_gateway": models.StateOnline,
			"cache":       models.StateDegraded,
		}
	})

	got := ResolveServiceStatus([]models.Snapshot{a, b})
	assert.Equal(t, []string{}, got.Online)
	assert.Equal(t, []string{"api_gateway", "cache"}, got.Degraded)
	assert.Equal(t, []string{"database"}, got.Offline)
}

func TestResolveServiceStatusEachServiceOnce(t *testing.T) {
	snaps := []models.Snapshot{
		healthy(func(s *models.Snapshot) {
			s.ServiceStatus = map[string]models.ServiceState{"web": models.StateOnline, "queue": models.StateOnline, "auth": models.StateDegraded}
		}),
		healthy(func(s *models.Snapshot) {
			s.ServiceStatus = map[string]models.ServiceState{"web": models.StateOnline, "search": models.StateOffline}
		}),
	}

	got := ResolveServiceStatus(snaps)
	assert.Equal(t, []string{"queue", "web"}, got.Online)
	assert.Equal(t, []string{"auth"}, got.Degraded)
	assert.Equal(t, []string{"search"}, got.Offline)

	seen := map[string]int{}
	for _, list := range [][]string{got.Online, got.Degraded, got.Offline} {
		for _, name := range list {
			seen[name]++
		}
	}
	for name, n := range seen {
		assert.Equal(t, 1, n, name)
	}
}

func TestAnalyzer(t *testing.T) {
	a := NewAnalyzer(DefaultThresholds(), zap.NewNop())
	snaps := []models.Snapshot{
		healthy(func(s *models.Snapshot) { s.CPUUsage = 95; s.UptimeSeconds = 10000 }),
		healthy(func(s *models.Snapshot) { s.IOWait = 15; s.UptimeSeconds = 11800 }),
	}

	first, err := a.Analyze(snaps)
	require.NoError(t, err)
	assert.Len(t, first.Anomalies, 2)
	assert.Equal(t, int64(11800), first.Insights.UptimeSeconds)
	assert.Equal(t, []string{"api_gateway", "cache", "database"}, first.ServiceStatusSummary.Online)

	second, err := a.Analyze(snaps)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestAnalyzerEmptyInput(t *testing.T) {
	a := NewAnalyzer(DefaultThresholds(), nil)
	_, err := a.Analyze([]models.Snapshot{})
	assert.ErrorIs(t, err, ErrEmptyInput)
}
