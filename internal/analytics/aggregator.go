package analytics

import (
	"errors"
	"strconv"

	"infra-insight/internal/models"
)

// ErrEmptyInput is returned when there are no snapshots to aggregate.
var ErrEmptyInput = errors.New("analytics: empty snapshot sequence")

// Aggregate reduces a snapshot sequence into an Insight.
func Aggregate(snapshots []models.Snapshot) (models.Insight, error) {
	if len(snapshots) == 0 {
		return models.Insight{}, ErrEmptyInput
	}

	var latency, errRate sum
	maxCPU := snapshots[0].CPUUsage
	maxMemory := snapshots[0].MemoryUsage

	for _, s := range snapshots {
		latency.add(s.LatencyMs)
		errRate.add(s.ErrorRate)
		if s.CPUUsage > maxCPU {
			maxCPU = s.CPUUsage
		}
		if s.MemoryUsage > maxMemory {
			maxMemory = s.MemoryUsage
		}
	}

	n := float64(len(snapshots))
	return models.Insight{
		AverageLatencyMs: round(latency.value()/n, 2),
		MaxCPUUsage:      round(maxCPU, 2),
		MaxMemoryUsage:   round(maxMemory, 2),
		ErrorRate:        round(errRate.value()/n, 4),
		UptimeSeconds:    snapshots[len(snapshots)-1].UptimeSeconds,
	}, nil
}

// sum is a Neumaier compensated accumulator.
type sum struct {
	total, comp float64
}

func (s *sum) add(v float64) {
	t := s.total + v
	if abs(s.total) >= abs(v) {
		s.comp += (s.total - t) + v
	} else {
		s.comp += (v - t) + s.total
	}
	s.total = t
}

func (s *sum) value() float64 {
	return s.total + s.comp
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// round rounds half-to-even on the exact binary value of v.
func round(v float64, digits int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', digits, 64), 64)
	if err != nil {
		return v
	}
	return r
}
