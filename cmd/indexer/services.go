package main

import (
	"context"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/filter"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/pipeline"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/report"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/runstore"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/resilience"
)

// pipelineOptions translates the indexer config into a run template.
func pipelineOptions(cfg config.IndexerConfig) (pipeline.Options, error) {
	ordering, err := pipeline.ParseOrdering(cfg.Ordering)
	if err != nil {
		return pipeline.Options{}, err
	}
	return pipeline.Options{
		Roots:          cfg.Roots,
		Workers:        cfg.Workers,
		Crawlers:       cfg.Crawlers,
		Ordering:       ordering,
		FollowSymlinks: cfg.FollowSymlinks,
		Filter: filter.New(filter.Options{
			Exclude:     cfg.Filter.Exclude,
			Include:     cfg.Filter.Include,
			SkipHidden:  cfg.Filter.SkipHidden,
			MaxFileSize: cfg.Filter.MaxFileSize,
		}),
		Tokenizer: tokenizer.Whitespace{MaxTokenSize: cfg.MaxTokenSize},
	}, nil
}

// services are the optional backing systems shared by run and serve. Each
// is nil when its config section is empty or it could not be reached.
type services struct {
	db        *postgres.Client
	runs      *runstore.Store
	errors    *report.KafkaSink
	completed *kafka.Producer
	closers   []func()
}

// openServices connects what cfg enables. Unreachable dependencies are
// logged and skipped; the indexer works without any of them. m may be nil.
func openServices(ctx context.Context, cfg *config.Config, m *metrics.Metrics) *services {
	s := &services{}
	if cfg.Postgres.Enabled() {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, run ledger disabled", "error", err)
		} else {
			s.db = db
			s.closers = append(s.closers, func() { _ = db.Close() })
		}
	}
	s.runs = runstore.New(s.db)
	if err := s.runs.EnsureSchema(ctx); err != nil {
		slog.Warn("run ledger schema setup failed, run ledger disabled", "error", err)
		s.runs = runstore.New(nil)
	}

	if cfg.Kafka.Enabled() {
		errProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexErrors)
		breaker := resilience.NewCircuitBreaker("kafka-errors", resilience.CircuitBreakerConfig{
			OnStateChange: breakerGauge(m),
		})
		sinkCtx, stopSink := context.WithCancel(context.WithoutCancel(ctx))
		s.errors = report.NewKafkaSink(errProducer, breaker, cfg.Kafka.ErrorBuffer)
		s.errors.Start(sinkCtx)

		s.completed = kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexComplete)
		s.closers = append(s.closers,
			func() {
				s.errors.Close()
				stopSink()
				_ = errProducer.Close()
			},
			func() { _ = s.completed.Close() },
		)
		slog.Info("kafka reporting enabled",
			"errors_topic", cfg.Kafka.Topics.IndexErrors,
			"complete_topic", cfg.Kafka.Topics.IndexComplete,
		)
	}
	return s
}

// publisher returns the run-complete publisher as an interface, nil when
// Kafka is off.
func (s *services) publisher() kafka.Publisher {
	if s.completed == nil {
		return nil
	}
	return s.completed
}

func (s *services) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func breakerGauge(m *metrics.Metrics) func(name string, from, to resilience.State) {
	if m == nil {
		return nil
	}
	return func(name string, _, to resilience.State) {
		m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	}
}
