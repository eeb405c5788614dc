package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/okian/physiopulse/internal/adapters/extractor"
	"github.com/okian/physiopulse/internal/adapters/media"
	"github.com/okian/physiopulse/internal/adapters/repository"
	"github.com/okian/physiopulse/internal/app/pipeline"
	"github.com/okian/physiopulse/internal/config"
	"github.com/okian/physiopulse/internal/domain/scoring"
	"github.com/okian/physiopulse/pkg/logger"
	"github.com/okian/physiopulse/pkg/metrics"
)

// configureMetrics applies the configured metric name prefix. It must run
// before anything records a metric.
func configureMetrics(cfg *config.Config) {
	metrics.Configure(metrics.WithNamespace(cfg.MetricsNamespace), metrics.WithSubsystem(cfg.MetricsSubsystem))
}

// openStore builds the analysis store named by cfg.Store.
func openStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, error) {
	opts := []repository.Option{repository.WithLogger(log)}
	switch cfg.Store {
	case config.StoreMemory:
		return repository.NewMemoryStore(), nil
	case config.StoreSQLite:
		return repository.OpenSQLite(ctx, cfg.SQLitePath, opts...)
	case config.StorePostgres:
		return repository.OpenPostgres(ctx, cfg.PostgresDSN, opts...)
	case config.StoreRedis:
		return repository.OpenRedis(ctx, cfg.RedisAddr, opts...)
	default:
		return nil, fmt.Errorf("%w: unknown store %q", config.ErrInvalidConfig, cfg.Store)
	}
}

func newProber(cfg *config.Config) media.Prober {
	if !cfg.ProbeVideo {
		return nil
	}
	return media.FFprobe{Binary: cfg.FFprobeBinary}
}

func newExtractor(cfg *config.Config) extractor.Extractor {
	if cfg.Extractor == config.ExtractorCommand {
		return extractor.Command{Binary: cfg.ExtractorCommand, Args: cfg.ExtractorArgs}
	}
	opts := []extractor.FixtureOption{
		extractor.WithFPS(cfg.FixtureFPS),
		extractor.WithFrames(cfg.FixtureFrames),
	}
	if p := newProber(cfg); p != nil {
		opts = append(opts, extractor.WithProber(p))
	}
	return extractor.NewFixture(opts...)
}

func newValidator(cfg *config.Config) *media.Validator {
	opts := []media.Option{
		media.WithFormats(cfg.SupportedFormats),
		media.WithMaxSizeMB(cfg.MaxVideoSizeMB),
	}
	if p := newProber(cfg); p != nil {
		opts = append(opts, media.WithProber(p))
	}
	return media.NewValidator(opts...)
}

// newPipelineFactory returns a constructor handing every worker its own
// pipeline and pose engine.
func newPipelineFactory(cfg *config.Config) func(worker int) *pipeline.Pipeline {
	return func(worker int) *pipeline.Pipeline {
		log := logger.Named("pipeline").With(logger.String("worker", strconv.Itoa(worker)))
		scorer := scoring.NewScorer(
			scoring.WithTierScores(cfg.PerfectScore, cfg.GoodScore, cfg.NeedsImprovementScore),
			scoring.WithVisibilityConfidence(cfg.VisibilityConfidence),
			scoring.WithMinVisibility(cfg.MinVisibility),
			scoring.WithLogger(log),
		)
		return pipeline.New(
			pipeline.WithExtractor(newExtractor(cfg)),
			pipeline.WithScorer(scorer),
			pipeline.WithValidator(newValidator(cfg)),
			pipeline.WithFrameSkip(cfg.FrameSkip),
			pipeline.WithOutputDir(cfg.OutputDir),
			pipeline.WithLogger(log),
		)
	}
}
