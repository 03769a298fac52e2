package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/pipeline"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/report"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup/cache"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup/handler"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup/router"
	apperrors "github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/redis"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve [roots...]",
		Short: "Index the roots and serve lookups over HTTP",
		Long: `Build the index in the background, then answer lookups against the
latest complete generation. Rebuilds are started by POST
/api/v1/index/rebuild or, when Kafka is configured, by index-request
events.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				a.cfg.Indexer.Roots = args
			}
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	opts, err := pipelineOptions(cfg.Indexer)
	if err != nil {
		return err
	}
	if len(opts.Roots) == 0 {
		return fmt.Errorf("%w: pass roots as arguments or set indexer.roots", apperrors.ErrNoRoots)
	}
	slog.Info("starting file indexer", "port", cfg.Server.Port, "roots", opts.Roots)

	m := metrics.New()
	if cfg.Metrics.Enabled {
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		defer stopMetrics()
		go func() {
			if err := metrics.Serve(metricsCtx, fmt.Sprintf(":%d", cfg.Metrics.Port), prometheus.DefaultGatherer); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	svc := openServices(ctx, cfg, m)
	defer svc.close()

	var redisClient *pkgredis.Client
	var store cache.Store
	if cfg.Redis.Enabled() {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, shared lookup cache disabled", "error", err)
		} else {
			defer redisClient.Close()
			store = redisClient
			slog.Info("shared lookup cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	queryCache, err := cache.New(cfg.Lookup.LocalCacheSize, store, cfg.Redis.CacheTTL, m)
	if err != nil {
		return err
	}

	current := &lookup.Current{}
	rb := consumer.NewRebuilder(consumer.RebuilderOptions{
		Pipeline:  opts,
		Current:   current,
		Cache:     queryCache,
		Runs:      svc.runs,
		Completed: svc.publisher(),
		Errors:    svc.errors,
		Metrics:   pipeline.NewMetricsObserver(m),
		Reporter:  report.NewLogSink(slog.Default()),
		Timeout:   cfg.Indexer.RunTimeout,
	})
	defer rb.Close()
	if _, err := rb.Trigger(ctx, nil); err != nil {
		return fmt.Errorf("starting initial build: %w", err)
	}

	if cfg.Kafka.Enabled() {
		requests := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexRequests, consumer.HandleRequest(rb))
		go func() {
			if err := consumer.New(requests).Start(ctx); err != nil {
				slog.Error("index request consumer error", "error", err)
			}
		}()
		slog.Info("consuming index requests",
			"topic", cfg.Kafka.Topics.IndexRequests,
			"group", cfg.Kafka.ConsumerGroup,
		)
	}

	checker := health.NewChecker()
	checker.Register("index", health.ReadyCheck(current.Ready, func() string {
		gen := current.Load()
		return fmt.Sprintf("generation %s, %d files", gen.RunID, gen.Index.FileCount())
	}))
	if redisClient != nil {
		checker.Register("redis", health.PingCheck(redisClient.Ping, true))
	}
	if svc.db != nil {
		checker.Register("postgres", health.PingCheck(svc.db.Ping, true))
	}

	h := handler.New(handler.Options{
		Current:      current,
		Cache:        queryCache,
		Rebuilder:    rb,
		Runs:         svc.runs,
		Metrics:      m,
		DefaultLimit: cfg.Lookup.DefaultLimit,
		MaxResults:   cfg.Lookup.MaxResults,
	})
	limiter := router.NewLimiter(cfg.Server)
	if limiter != nil {
		go pruneLoop(ctx, limiter.Prune)
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router.New(h, checker, limiter, m, cfg.Server),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("lookup API listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serving lookup API: %w", err)
	}
	slog.Info("file indexer stopped")
	return nil
}

func pruneLoop(ctx context.Context, prune func() int) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := prune(); n > 0 {
				slog.Debug("rate limiter buckets pruned", "count", n)
			}
		}
	}
}
