// Package pipeline runs one analysis pass end to end: validate the
// snapshots, analyze them, ask for recommendations, assemble the report and
// hand it to every configured sink.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"infra-insight/internal/analytics"
	"infra-insight/internal/ingest"
	"infra-insight/internal/metrics"
	"infra-insight/internal/models"
	"infra-insight/internal/recommend"
	"infra-insight/internal/report"

	"go.uber.org/zap"
)

// Sink persists an emitted report.
type Sink interface {
	Save(ctx context.Context, r *models.Report) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, r *models.Report) error

func (f SinkFunc) Save(ctx context.Context, r *models.Report) error {
	return f(ctx, r)
}

type Pipeline struct {
	analyzer  *analytics.Analyzer
	generator recommend.Generator
	sinks     []Sink
	log       *zap.Logger
	now       func() time.Time
}

func New(analyzer *analytics.Analyzer, generator recommend.Generator, log *zap.Logger, sinks ...Sink) *Pipeline {
	if generator == nil {
		generator = recommend.NoopGenerator{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		analyzer:  analyzer,
		generator: generator,
		sinks:     sinks,
		log:       log,
		now:       time.Now,
	}
}

// Run analyzes snapshots and emits the report. It returns
// ingest.ErrInvalidSnapshot or analytics.ErrEmptyInput (wrapped or as is)
// for bad input. A failing generator only costs the recommendations.
func (p *Pipeline) Run(ctx context.Context, snapshots []models.Snapshot) (*models.Report, error) {
	start := time.Now()
	defer func() { metrics.AnalysisDuration.Observe(time.Since(start).Seconds()) }()

	if err := ingest.Validate(snapshots); err != nil {
		return nil, err
	}

	result, err := p.analyzer.Analyze(snapshots)
	if err != nil {
		return nil, err
	}

	recs, err := p.generator.Generate(ctx, result)
	if err != nil {
		metrics.RecommendationFailures.Inc()
		p.log.Warn("recommendation generation failed", zap.Error(err))
		recs = nil
	}

	rep := report.New(result, recs, p.now())
	if err := report.Validate(rep); err != nil {
		return nil, fmt.Errorf("report failed validation: %w", err)
	}

	for _, sink := range p.sinks {
		if err := sink.Save(ctx, rep); err != nil {
			return nil, fmt.Errorf("emit report %s: %w", rep.ID, err)
		}
	}

	metrics.ObserveReport(rep, len(snapshots))
	p.log.Info("report emitted",
		zap.String("report_id", rep.ID),
		zap.Int("anomalies", len(rep.Anomalies)),
		zap.Int("recommendations", len(rep.Recommendations)),
		zap.Duration("took", time.Since(start)),
	)
	return rep, nil
}

// RunFile loads snapshots from path and runs the pipeline over them.
func (p *Pipeline) RunFile(ctx context.Context, path string) (*models.Report, error) {
	p.log.Info("starting data ingestion", zap.String("path", path))
	snapshots, err := ingest.LoadFile(path)
	if err != nil {
		return nil, err
	}
	p.log.Info("ingestion complete", zap.Int("snapshots", len(snapshots)))
	return p.Run(ctx, snapshots)
}
