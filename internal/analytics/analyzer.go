package analytics

import (
	"infra-insight/internal/models"

	"go.uber.org/zap"
)

// Analyzer runs the aggregator, detector and status resolver over one
// snapshot sequence. It holds no per-run state and is safe for concurrent use.
type Analyzer struct {
	detector *Detector
	log      *zap.Logger
}

func NewAnalyzer(thresholds Thresholds, log *zap.Logger) *Analyzer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Analyzer{
		detector: NewDetector(thresholds),
		log:      log,
	}
}

// Analyze fails only with ErrEmptyInput.
func (a *Analyzer) Analyze(snapshots []models.Snapshot) (models.AnalysisResult, error) {
	insights, err := Aggregate(snapshots)
	if err != nil {
		return models.AnalysisResult{}, err
	}

	result := models.AnalysisResult{
		Insights:             insights,
		Anomalies:            a.detector.Detect(snapshots),
		ServiceStatusSummary: ResolveServiceStatus(snapshots),
	}

	a.log.Info("analysis complete",
		zap.Int("snapshots", len(snapshots)),
		zap.Int("anomalies", len(result.Anomalies)),
		zap.Int("services_offline", len(result.ServiceStatusSummary.Offline)),
		zap.Int("services_degraded", len(result.ServiceStatusSummary.Degraded)),
	)
	return result, nil
}
