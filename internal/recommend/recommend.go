// Package recommend turns an analysis result into optimization
// recommendations. The analysis engine never depends on it; the pipeline
// hands it the anomalies and insights as a textual context payload.
package recommend

import (
	"context"
	"fmt"
	"strings"

	"infra-insight/internal/models"
)

// Generator produces zero or more recommendations for an analysis result.
type Generator interface {
	Generate(ctx context.Context, result models.AnalysisResult) ([]models.Recommendation, error)
}

// NoopGenerator is used when no generation backend is configured.
type NoopGenerator struct{}

func (NoopGenerator) Generate(context.Context, models.AnalysisResult) ([]models.Recommendation, error) {
	return []models.Recommendation{}, nil
}

const systemPrompt = `You are an infrastructure optimization expert.
Generate 3-5 precise technical recommendations based on detected anomalies.
Each recommendation must be actionable, specific, and estimate business impact.

Respond ONLY with valid JSON (no markdown, no code blocks):
[
  {
    "id": "rec-001",
    "action": "specific technical action",
    "target": "affected component",
    "parameters": {"key": "value"},
    "benefit_estimate": "quantified business benefit"
  }
]`

// BuildPrompt renders the context payload sent to the generator.
func BuildPrompt(result models.AnalysisResult) string {
	var anomalies strings.Builder
	for _, a := range result.Anomalies {
		fmt.Fprintf(&anomalies, "- %s: %v (threshold: %v, severity: %s)\n", a.Metric, a.Value, a.Threshold, a.Severity)
	}
	summary := strings.TrimSuffix(anomalies.String(), "\n")
	if summary == "" {
		summary = "No critical anomalies"
	}

	in := result.Insights
	var b strings.Builder
	b.WriteString("Infrastructure analysis summary:\n\n")
	b.WriteString("Anomalies detected:\n")
	b.WriteString(summary)
	b.WriteString("\n\nKey metrics:\n")
	fmt.Fprintf(&b, "- Average latency: %vms\n", in.AverageLatencyMs)
	fmt.Fprintf(&b, "- Max CPU: %v%%\n", in.MaxCPUUsage)
	fmt.Fprintf(&b, "- Max memory: %v%%\n", in.MaxMemoryUsage)
	fmt.Fprintf(&b, "- Error rate: %v%%\n", in.ErrorRate*100)

	s := result.ServiceStatusSummary
	if len(s.Offline)+len(s.Degraded) > 0 {
		b.WriteString("\nService health:\n")
		if len(s.Offline) > 0 {
			fmt.Fprintf(&b, "- Offline: %s\n", strings.Join(s.Offline, ", "))
		}
		if len(s.Degraded) > 0 {
			fmt.Fprintf(&b, "- Degraded: %s\n", strings.Join(s.Degraded, ", "))
		}
	}
	b.WriteString("\nGenerate optimization recommendations in JSON format.")
	return b.String()
}
