package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"infra-insight/internal/models"

	"gopkg.in/yaml.v3"
)

// ErrInvalidSnapshot wraps every validation failure.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath infers the snapshot file format from its extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported snapshot file %q", path)
}

// LoadFile reads and validates a snapshot file.
func LoadFile(path string) ([]models.Snapshot, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshots: %w", err)
	}
	defer f.Close()

	snapshots, err := Decode(f, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := Validate(snapshots); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snapshots, nil
}

// requiredFields are the keys every snapshot record must carry.
var requiredFields = []string{
	"timestamp",
	"cpu_usage",
	"memory_usage",
	"latency_ms",
	"disk_usage",
	"network_in_kbps",
	"network_out_kbps",
	"io_wait",
	"thread_count",
	"active_connections",
	"error_rate",
	"uptime_seconds",
	"temperature_celsius",
	"power_consumption_watts",
	"service_status",
}

// Decode parses a list of snapshots. Records missing a required field are
// rejected with ErrInvalidSnapshot; keys it does not know are ignored. Value
// ranges are left to Validate.
func Decode(r io.Reader, format Format) ([]models.Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read snapshots: %w", err)
	}

	var snapshots []models.Snapshot
	switch format {
	case FormatJSON:
		var records []map[string]json.RawMessage
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decode json snapshots: %w", err)
		}
		for i, rec := range records {
			for _, field := range requiredFields {
				if raw, ok := rec[field]; !ok || string(raw) == "null" {
					return nil, missingField(i, field)
				}
			}
		}
		if err := json.Unmarshal(data, &snapshots); err != nil {
			return nil, fmt.Errorf("decode json snapshots: %w", err)
		}
	case FormatYAML:
		var records []map[string]interface{}
		if err := yaml.Unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("decode yaml snapshots: %w", err)
		}
		for i, rec := range records {
			for _, field := range requiredFields {
				if v, ok := rec[field]; !ok || v == nil {
					return nil, missingField(i, field)
				}
			}
		}
		if err := yaml.Unmarshal(data, &snapshots); err != nil {
			return nil, fmt.Errorf("decode yaml snapshots: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
	if snapshots == nil {
		snapshots = []models.Snapshot{}
	}
	return snapshots, nil
}

func missingField(index int, field string) error {
	return fmt.Errorf("%w: snapshot %d: missing field %s", ErrInvalidSnapshot, index, field)
}

// timestampLayouts are the ISO 8601 forms accepted for snapshot timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

func parseTimestamp(ts string) bool {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, ts); err == nil {
			return true
		}
	}
	return false
}

// Validate checks every snapshot's shape. An empty list is valid.
func Validate(snapshots []models.Snapshot) error {
	for i, s := range snapshots {
		if err := validateOne(s); err != nil {
			return fmt.Errorf("%w: snapshot %d: %v", ErrInvalidSnapshot, i, err)
		}
	}
	return nil
}

func validateOne(s models.Snapshot) error {
	if s.Timestamp == "" {
		return errors.New("timestamp is required")
	}
	if !parseTimestamp(s.Timestamp) {
		return fmt.Errorf("timestamp %q is not ISO 8601", s.Timestamp)
	}

	percents := []struct {
		name  string
		value float64
	}{
		{"cpu_usage", s.CPUUsage},
		{"memory_usage", s.MemoryUsage},
		{"disk_usage", s.DiskUsage},
		{"io_wait", s.IOWait},
	}
	for _, p := range percents {
		if p.value < 0 || p.value > 100 {
			return fmt.Errorf("%s %v out of range [0,100]", p.name, p.value)
		}
	}
	if s.ErrorRate < 0 || s.ErrorRate > 1 {
		return fmt.Errorf("error_rate %v out of range [0,1]", s.ErrorRate)
	}

	nonNegative := []struct {
		name  string
		value float64
	}{
		{"latency_ms", s.LatencyMs},
		{"network_in_kbps", s.NetworkInKbps},
		{"network_out_kbps", s.NetworkOutKbps},
		{"power_consumption_watts", s.PowerConsumptionWatts},
		{"thread_count", float64(s.ThreadCount)},
		{"active_connections", float64(s.ActiveConnections)},
		{"uptime_seconds", float64(s.UptimeSeconds)},
	}
	for _, n := range nonNegative {
		if n.value < 0 {
			return fmt.Errorf("%s must not be negative", n.name)
		}
	}

	for name, state := range s.ServiceStatus {
		if name == "" {
			return errors.New("service name must not be empty")
		}
		if !state.Valid() {
			return fmt.Errorf("service %s has unknown status %q", name, state)
		}
	}
	return nil
}
