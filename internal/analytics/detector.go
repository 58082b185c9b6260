package analytics

import (
	"fmt"
	"strconv"

	"infra-insight/internal/models"
)

// Detector flags threshold breaches and keeps the worst one per metric.
type Detector struct {
	rules []Rule
}

func NewDetector(thresholds Thresholds) *Detector {
	return &Detector{rules: thresholds.Rules()}
}

// Detect scans snapshots in order. Anomalies are returned in the order their
// metric was first flagged.
func (d *Detector) Detect(snapshots []models.Snapshot) []models.Anomaly {
	anomalies := make([]models.Anomaly, 0, len(d.rules))
	slots := make(map[Metric]int, len(d.rules))

	for _, s := range snapshots {
		for _, rule := range d.rules {
			value := rule.Metric.Value(s)
			idx, seen := slots[rule.Metric]

			switch {
			case value > rule.High:
				if seen && value <= anomalies[idx].Value {
					continue
				}
				a := models.Anomaly{
					Metric:      string(rule.Metric),
					Value:       value,
					Threshold:   rule.High,
					Severity:    rule.HighSeverity,
					Description: describeHigh(rule.Metric, value, s.Timestamp),
				}
				if seen {
					anomalies[idx] = a
				} else {
					slots[rule.Metric] = len(anomalies)
					anomalies = append(anomalies, a)
				}
			case rule.hasMedium() && value > rule.Medium:
				// A medium breach never displaces an existing record.
				if seen {
					continue
				}
				slots[rule.Metric] = len(anomalies)
				anomalies = append(anomalies, models.Anomaly{
					Metric:      string(rule.Metric),
					Value:       value,
					Threshold:   rule.Medium,
					Severity:    rule.MediumSeverity,
					Description: describeMedium(rule.Metric, value),
				})
			}
		}
	}
	return anomalies
}

func describeHigh(m Metric, value float64, ts string) string {
	v := formatValue(value)
	switch m {
	case MetricCPU:
		return fmt.Sprintf("CPU usage reached %s%% at %s", v, ts)
	case MetricMemory:
		return fmt.Sprintf("Memory usage critical at %s%%", v)
	case MetricLatency:
		return fmt.Sprintf("Latency spike to %sms", v)
	case MetricErrorRate:
		return fmt.Sprintf("Error rate critical at %s (%s%%)", v, formatValue(round(value*100, 4)))
	case MetricTemperature:
		return fmt.Sprintf("Server temperature at %sC", v)
	case MetricIOWait:
		return fmt.Sprintf("IO wait time elevated at %s%%", v)
	}
	return fmt.Sprintf("%s at %s", m, v)
}

func describeMedium(m Metric, value float64) string {
	v := formatValue(value)
	switch m {
	case MetricCPU:
		return fmt.Sprintf("CPU usage elevated at %s%%", v)
	case MetricErrorRate:
		return fmt.Sprintf("Error rate elevated at %s", v)
	}
	return fmt.Sprintf("%s elevated at %s", m, v)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
