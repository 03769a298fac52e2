package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/events"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/pipeline"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/report"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup/cache"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/runstore"
	apperrors "github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/logger"
)

// RebuilderOptions wires a Rebuilder. Only Current is required.
type RebuilderOptions struct {
	// Pipeline is the template for every run. Its Roots are used when a
	// rebuild names none; RunID, Reporter and Observer are per run.
	Pipeline pipeline.Options
	Current  *lookup.Current
	Cache    *cache.QueryCache
	Runs     *runstore.Store
	// Completed receives an IndexCompleteEvent after every run.
	Completed kafka.Publisher
	Errors    *report.KafkaSink
	Metrics   *pipeline.MetricsObserver
	Reporter  report.Sink
	// Timeout bounds each run; the partial index of a timed-out run is
	// treated like any interrupted run.
	Timeout time.Duration
}

// Rebuilder runs fresh pipelines and installs their indexes as the current
// lookup generation. At most one rebuild runs at a time.
type Rebuilder struct {
	opts    RebuilderOptions
	running atomic.Bool
	bg      sync.WaitGroup
	cancel  context.CancelFunc
	ctx     context.Context
	logger  *slog.Logger
}

func NewRebuilder(opts RebuilderOptions) *Rebuilder {
	ctx, cancel := context.WithCancel(context.Background())
	return &Rebuilder{
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		logger: slog.Default().With("component", "rebuilder"),
	}
}

// Running reports whether a rebuild is in progress.
func (r *Rebuilder) Running() bool {
	return r.running.Load()
}

// Rebuild indexes roots (or the configured roots when empty) and blocks
// until the run finishes. It fails with ErrRebuildInProgress if another
// rebuild holds the slot.
func (r *Rebuilder) Rebuild(ctx context.Context, roots []string) (*pipeline.Result, error) {
	if !r.running.CompareAndSwap(false, true) {
		return nil, apperrors.ErrRebuildInProgress
	}
	defer r.running.Store(false)
	return r.rebuild(ctx, uuid.NewString(), roots)
}

// Trigger starts a rebuild in the background and returns its run id. The
// run keeps ctx's values but not its cancellation, and stops on Close.
func (r *Rebuilder) Trigger(ctx context.Context, roots []string) (string, error) {
	if !r.running.CompareAndSwap(false, true) {
		return "", apperrors.ErrRebuildInProgress
	}
	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(r.ctx, cancel)
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		defer r.running.Store(false)
		defer stop()
		defer cancel()
		if _, err := r.rebuild(runCtx, runID, roots); err != nil {
			logger.FromContext(runCtx).Error("background rebuild failed", "run_id", runID, "error", err)
		}
	}()
	return runID, nil
}

// Close cancels a background rebuild and waits for it to return.
func (r *Rebuilder) Close() {
	r.cancel()
	r.bg.Wait()
}

func (r *Rebuilder) rebuild(ctx context.Context, runID string, roots []string) (*pipeline.Result, error) {
	opts := r.opts.Pipeline
	opts.RunID = runID
	if len(roots) > 0 {
		opts.Roots = roots
	}

	var sinks []report.Sink
	var observers []pipeline.Observer
	if opts.Reporter != nil {
		sinks = append(sinks, opts.Reporter)
	}
	if r.opts.Reporter != nil {
		sinks = append(sinks, r.opts.Reporter)
	}
	if opts.Observer != nil {
		observers = append(observers, opts.Observer)
	}
	if r.opts.Metrics != nil {
		sinks = append(sinks, r.opts.Metrics)
		observers = append(observers, r.opts.Metrics)
	}
	if r.opts.Errors != nil {
		sinks = append(sinks, r.opts.Errors.ForRun(runID))
	}
	opts.Reporter = report.Multi(sinks...)
	opts.Observer = pipeline.Observers(observers...)

	coord, err := pipeline.New(opts)
	if err != nil {
		return nil, fmt.Errorf("preparing rebuild: %w", err)
	}

	log := logger.FromContext(ctx).With("run_id", runID)
	startedAt := time.Now()
	if err := r.opts.Runs.Start(ctx, runID, opts.Roots, startedAt); err != nil {
		log.Error("failed to record run start", "error", err)
	}

	runCtx := ctx
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}
	res, err := coord.Run(runCtx)
	if err != nil {
		r.finish(ctx, runID, runstore.Summary{Err: err}, log)
		return nil, fmt.Errorf("running rebuild %s: %w", runID, err)
	}

	r.install(ctx, res, log)
	if r.opts.Metrics != nil {
		r.opts.Metrics.RunFinished(res)
	}
	stats := res.Index.Stats()
	failures := res.Work.Failed + res.Crawl.Errors
	r.finish(ctx, runID, runstore.Summary{
		Files:       stats.Files,
		Terms:       stats.Terms,
		Occurrences: stats.Occurrences,
		Failures:    failures,
		Interrupted: res.Interrupted,
	}, log)
	r.announce(ctx, res, failures, log)
	return res, nil
}

// install swaps in the new generation. A partial index only replaces an
// empty slot, never a complete one.
func (r *Rebuilder) install(ctx context.Context, res *pipeline.Result, log *slog.Logger) {
	if r.opts.Current == nil {
		return
	}
	if res.Interrupted && r.opts.Current.Ready() {
		log.Warn("interrupted rebuild discarded, keeping previous generation")
		return
	}
	old := r.opts.Current.Swap(&lookup.Generation{
		RunID:       res.RunID,
		Roots:       res.Roots,
		Index:       res.Index,
		BuiltAt:     time.Now(),
		Interrupted: res.Interrupted,
	})
	log.Info("generation installed", "interrupted", res.Interrupted)
	if old == nil || r.opts.Cache == nil {
		return
	}
	if err := r.opts.Cache.Forget(ctx, old.RunID); err != nil {
		log.Warn("failed to drop cached results of previous generation", "generation", old.RunID, "error", err)
	}
}

func (r *Rebuilder) finish(ctx context.Context, runID string, sum runstore.Summary, log *slog.Logger) {
	if err := r.opts.Runs.Finish(context.WithoutCancel(ctx), runID, sum); err != nil {
		log.Error("failed to record run finish", "error", err)
	}
}

func (r *Rebuilder) announce(ctx context.Context, res *pipeline.Result, failures int64, log *slog.Logger) {
	if r.opts.Completed == nil {
		return
	}
	stats := res.Index.Stats()
	event := events.IndexCompleteEvent{
		RunID:       res.RunID,
		Roots:       res.Roots,
		Files:       stats.Files,
		Terms:       stats.Terms,
		Occurrences: stats.Occurrences,
		Failures:    failures,
		Interrupted: res.Interrupted,
		DurationMs:  res.Duration.Milliseconds(),
		CompletedAt: time.Now().UTC(),
	}
	if err := r.opts.Completed.Publish(context.WithoutCancel(ctx), kafka.Event{Key: res.RunID, Value: event}); err != nil {
		log.Error("failed to publish index complete event", "error", err)
	}
}
