package analytics

import (
	"sort"

	"infra-insight/internal/models"
)

// ResolveServiceStatus places every service in exactly one bucket, chosen by
// the worst state it was ever reported in.
func ResolveServiceStatus(snapshots []models.Snapshot) models.ServiceStatusSummary {
	worst := make(map[string]models.ServiceState)
	for _, s := range snapshots {
		for name, state := range s.ServiceStatus {
			if cur, ok := worst[name]; !ok || state.Rank() > cur.Rank() {
				worst[name] = state
			}
		}
	}

	summary := models.ServiceStatusSummary{
		Online:   []string{},
		Degraded: []string{},
		Offline:  []string{},
	}
	for name, state := range worst {
		switch state {
		case models.StateOffline:
			summary.Offline = append(summary.Offline, name)
		case models.StateDegraded:
			summary.Degraded = append(summary.Degraded, name)
		default:
			summary.Online = append(summary.Online, name)
		}
	}
	sort.Strings(summary.Online)
	sort.Strings(summary.Degraded)
	sort.Strings(summary.Offline)
	return summary
}
