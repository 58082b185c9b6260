package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"infra-insight/internal/analytics"
	"infra-insight/internal/cache"
	"infra-insight/internal/config"
	"infra-insight/internal/logger"
	"infra-insight/internal/pipeline"
	"infra-insight/internal/recommend"
	"infra-insight/internal/report"
	"infra-insight/internal/server"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "", "path to a yaml config file (default ./configs/config.yaml)")
	once := flag.Bool("once", false, "analyze the input file, write the report and exit")
	input := flag.String("input", "", "snapshot file for -once (overrides input.path)")
	validatePath := flag.String("validate", "", "validate a written report file and exit")
	flag.Parse()

	if *validatePath != "" {
		os.Exit(validateReport(*validatePath))
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Flush(log)

	if *input != "" {
		cfg.Input.Path = *input
	}
	if err := run(cfg, log, *once); err != nil {
		log.Error("infra-insight failed", zap.Error(err))
		logger.Flush(log)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger, once bool) error {
	ctx := context.Background()

	thresholds, err := cfg.AnalyticsThresholds()
	if err != nil {
		return err
	}
	analyzer := analytics.NewAnalyzer(thresholds, log.Named("analytics"))
	generator := newGenerator(cfg, log)

	var sinks []pipeline.Sink
	var store *report.SQLiteStore
	if cfg.Database.Path != "" {
		store, err = report.NewSQLiteStore(cfg.Database.Path, log.Named("store"))
		if err != nil {
			return fmt.Errorf("failed to open report store: %w", err)
		}
		defer store.Close()
		sinks = append(sinks, store)
	}

	var redisClient *cache.RedisClient
	if cfg.Redis.Addr != "" {
		redisClient, err = cache.NewRedisClient(ctx, cache.Options{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			TTL:         cfg.Redis.TTL,
			RecentLimit: cfg.Redis.RecentLimit,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer redisClient.Close()
		sinks = append(sinks, pipeline.SinkFunc(redisClient.StoreReport))
	}

	if once {
		if cfg.Output.Path != "" {
			sinks = append(sinks, report.NewFileWriter(cfg.Output.Path, log.Named("report")))
		}
		p := pipeline.New(analyzer, generator, log.Named("pipeline"), sinks...)
		rep, err := p.RunFile(ctx, cfg.Input.Path)
		if errors.Is(err, analytics.ErrEmptyInput) {
			return fmt.Errorf("%s contains no snapshots: %w", cfg.Input.Path, err)
		}
		if err != nil {
			return err
		}
		fmt.Printf("Detected %d anomalies\n", len(rep.Anomalies))
		fmt.Printf("Generated %d recommendations\n", len(rep.Recommendations))
		if cfg.Output.Path != "" {
			fmt.Printf("Output saved to: %s\n", cfg.Output.Path)
		}
		return nil
	}

	p := pipeline.New(analyzer, generator, log.Named("pipeline"), sinks...)

	// Typed nils must not reach the server's interfaces.
	var reportStore server.ReportStore
	if store != nil {
		reportStore = store
	}
	var reportCache server.ReportCache
	if redisClient != nil {
		reportCache = redisClient
	}
	srv := server.NewServer(p, reportStore, reportCache, log.Named("server"))
	return srv.Run(":"+cfg.Server.Port, cfg.Server.ShutdownTimeout)
}

func newGenerator(cfg *config.Config, log *zap.Logger) recommend.Generator {
	if cfg.OpenAI.APIKey == "" {
		log.Warn("OPENAI_API_KEY not set, reports will carry no recommendations")
		return recommend.NoopGenerator{}
	}
	g, err := recommend.NewOpenAIGenerator(recommend.OpenAIOptions{
		APIKey:      cfg.OpenAI.APIKey,
		Model:       cfg.OpenAI.Model,
		BaseURL:     cfg.OpenAI.BaseURL,
		Temperature: cfg.OpenAI.Temperature,
		Timeout:     cfg.OpenAI.Timeout,
	}, log.Named("recommend"))
	if err != nil {
		log.Warn("recommendations disabled", zap.Error(err))
		return recommend.NoopGenerator{}
	}
	return g
}

func validateReport(path string) int {
	r, err := report.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		return 1
	}
	if err := report.Validate(r); err != nil {
		fmt.Fprintf(os.Stderr, "%s is not compliant:\n%v\n", path, err)
		return 1
	}
	fmt.Printf("%s is compliant\n", path)
	fmt.Printf("  - Anomalies detected: %d\n", len(r.Anomalies))
	fmt.Printf("  - Recommendations generated: %d\n", len(r.Recommendations))
	fmt.Printf("  - Services online: %d\n", len(r.ServiceStatusSummary.Online))
	fmt.Printf("  - Services degraded: %d\n", len(r.ServiceStatusSummary.Degraded))
	fmt.Printf("  - Services offline: %d\n", len(r.ServiceStatusSummary.Offline))
	return 0
}
