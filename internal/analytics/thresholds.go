package analytics

import (
	"fmt"

	"infra-insight/internal/models"
)

// Metric identifies one of the gauges the detector evaluates.
type Metric string

const (
	MetricCPU         Metric = "cpu_usage"
	MetricMemory      Metric = "memory_usage"
	MetricLatency     Metric = "latency_ms"
	MetricErrorRate   Metric = "error_rate"
	MetricTemperature Metric = "temperature_celsius"
	MetricIOWait      Metric = "io_wait"
)

// Metrics lists every detectable metric in evaluation order.
var Metrics = []Metric{
	MetricCPU,
	MetricMemory,
	MetricLatency,
	MetricErrorRate,
	MetricTemperature,
	MetricIOWait,
}

// ParseMetric returns the Metric named s.
func ParseMetric(s string) (Metric, error) {
	for _, m := range Metrics {
		if string(m) == s {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown metric %q", s)
}

// Value reads the metric's gauge from a snapshot.
func (m Metric) Value(s models.Snapshot) float64 {
	switch m {
	case MetricCPU:
		return s.CPUUsage
	case MetricMemory:
		return s.MemoryUsage
	case MetricLatency:
		return s.LatencyMs
	case MetricErrorRate:
		return s.ErrorRate
	case MetricTemperature:
		return s.TemperatureCelsius
	case MetricIOWait:
		return s.IOWait
	}
	return 0
}

// Rule is the cutoff configuration of one metric. A zero Medium disables the
// medium tier.
type Rule struct {
	Metric         Metric
	High           float64
	HighSeverity   models.Severity
	Medium         float64
	MediumSeverity models.Severity
}

func (r Rule) hasMedium() bool {
	return r.Medium > 0
}

// Thresholds is an immutable rule table keyed by metric.
type Thresholds struct {
	rules map[Metric]Rule
}

// DefaultThresholds returns the SLA threshold table.
//
// io_wait fires only above its high cutoff but is labelled medium.
func DefaultThresholds() Thresholds {
	t, _ := NewThresholds(
		Rule{Metric: MetricCPU, High: 85, HighSeverity: models.SeverityHigh, Medium: 75, MediumSeverity: models.SeverityMedium},
		Rule{Metric: MetricMemory, High: 80, HighSeverity: models.SeverityHigh},
		Rule{Metric: MetricLatency, High: 250, HighSeverity: models.SeverityHigh},
		Rule{Metric: MetricErrorRate, High: 0.05, HighSeverity: models.SeverityHigh},
		Rule{Metric: MetricTemperature, High: 75, HighSeverity: models.SeverityHigh},
		Rule{Metric: MetricIOWait, High: 10, HighSeverity: models.SeverityMedium},
	)
	return t
}

// NewThresholds builds a table from rules. Metrics without a rule are not
// evaluated.
func NewThresholds(rules ...Rule) (Thresholds, error) {
	t := Thresholds{rules: make(map[Metric]Rule, len(rules))}
	for _, r := range rules {
		if _, err := ParseMetric(string(r.Metric)); err != nil {
			return Thresholds{}, err
		}
		if !r.HighSeverity.Valid() {
			return Thresholds{}, fmt.Errorf("%s: invalid severity %q", r.Metric, r.HighSeverity)
		}
		if r.hasMedium() {
			if r.Medium >= r.High {
				return Thresholds{}, fmt.Errorf("%s: medium cutoff %v must be below high cutoff %v", r.Metric, r.Medium, r.High)
			}
			if r.MediumSeverity == "" {
				r.MediumSeverity = models.SeverityMedium
			}
			if !r.MediumSeverity.Valid() {
				return Thresholds{}, fmt.Errorf("%s: invalid severity %q", r.Metric, r.MediumSeverity)
			}
		}
		t.rules[r.Metric] = r
	}
	return t, nil
}

// With returns a copy of t with r replacing the rule for r.Metric.
func (t Thresholds) With(r Rule) (Thresholds, error) {
	rules := make([]Rule, 0, len(t.rules)+1)
	for _, m := range Metrics {
		if existing, ok := t.rules[m]; ok && m != r.Metric {
			rules = append(rules, existing)
		}
	}
	return NewThresholds(append(rules, r)...)
}

// Rule returns the rule configured for m.
func (t Thresholds) Rule(m Metric) (Rule, bool) {
	r, ok := t.rules[m]
	return r, ok
}

// Rules returns the configured rules in evaluation order.
func (t Thresholds) Rules() []Rule {
	out := make([]Rule, 0, len(t.rules))
	for _, m := range Metrics {
		if r, ok := t.rules[m]; ok {
			out = append(out, r)
		}
	}
	return out
}
