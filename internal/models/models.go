package models

// ServiceState is the health a snapshot reports for one named service.
type ServiceState string

const (
	StateOnline   ServiceState = "online"
	StateDegraded ServiceState = "degraded"
	StateOffline  ServiceState = "offline"
)

// Rank orders states online < degraded < offline. Unknown states rank below online.
func (s ServiceState) Rank() int {
	switch s {
	case StateOnline:
		return 1
	case StateDegraded:
		return 2
	case StateOffline:
		return 3
	}
	return 0
}

func (s ServiceState) Valid() bool {
	return s.Rank() > 0
}

// Snapshot is one monitoring sample.
type Snapshot struct {
	Timestamp             string                  `json:"timestamp" yaml:"timestamp"`
	CPUUsage              float64                 `json:"cpu_usage" yaml:"cpu_usage"`
	MemoryUsage           float64                 `json:"memory_usage" yaml:"memory_usage"`
	LatencyMs             float64                 `json:"latency_ms" yaml:"latency_ms"`
	DiskUsage             float64                 `json:"disk_usage" yaml:"disk_usage"`
	NetworkInKbps         float64                 `json:"network_in_kbps" yaml:"network_in_kbps"`
	NetworkOutKbps        float64                 `json:"network_out_kbps" yaml:"network_out_kbps"`
	IOWait                float64                 `json:"io_wait" yaml:"io_wait"`
	ThreadCount           int64                   `json:"thread_count" yaml:"thread_count"`
	ActiveConnections     int64                   `json:"active_connections" yaml:"active_connections"`
	ErrorRate             float64                 `json:"error_rate" yaml:"error_rate"`
	UptimeSeconds         int64                   `json:"uptime_seconds" yaml:"uptime_seconds"`
	TemperatureCelsius    float64                 `json:"temperature_celsius" yaml:"temperature_celsius"`
	PowerConsumptionWatts float64                 `json:"power_consumption_watts" yaml:"power_consumption_watts"`
	ServiceStatus         map[string]ServiceState `json:"service_status" yaml:"service_status"`
}

type Insight struct {
	AverageLatencyMs float64 `json:"average_latency_ms"`
	MaxCPUUsage      float64 `json:"max_cpu_usage"`
	MaxMemoryUsage   float64 `json:"max_memory_usage"`
	ErrorRate        float64 `json:"error_rate"`
	UptimeSeconds    int64   `json:"uptime_seconds"`
}

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return true
	}
	return false
}

type Anomaly struct {
	Metric      string   `json:"metric"`
	Value       float64  `json:"value"`
	Threshold   float64  `json:"threshold"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

type ServiceStatusSummary struct {
	Online   []string `json:"online"`
	Degraded []string `json:"degraded"`
	Offline  []string `json:"offline"`
}

// AnalysisResult is everything the analysis engine derives from one snapshot sequence.
type AnalysisResult struct {
	Insights             Insight              `json:"insights"`
	Anomalies            []Anomaly            `json:"anomalies"`
	ServiceStatusSummary ServiceStatusSummary `json:"service_status_summary"`
}

type Recommendation struct {
	ID              string                 `json:"id"`
	Action          string                 `json:"action"`
	Target          string                 `json:"target"`
	Parameters      map[string]interface{} `json:"parameters"`
	BenefitEstimate string                 `json:"benefit_estimate"`
}

// Report is the persisted output of one pipeline run.
type Report struct {
	ID                   string               `json:"id"`
	Timestamp            string               `json:"timestamp"`
	Insights             Insight              `json:"insights"`
	Anomalies            []Anomaly            `json:"anomalies"`
	Recommendations      []Recommendation     `json:"recommendations"`
	ServiceStatusSummary ServiceStatusSummary `json:"service_status_summary"`
}
