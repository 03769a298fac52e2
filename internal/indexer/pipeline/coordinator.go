// Package pipeline coordinates one indexing run: a bounded pool of crawlers
// feeds a shared queue, a pool of workers drains it into a shared index, and
// the queue is closed exactly once after every crawler has returned. Workers
// exit when the closed queue is empty, so termination needs no polling.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/crawler"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/filter"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/queue"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/report"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/worker"
	apperrors "github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/tracing"
)

// Options configures a run. Only Roots is required.
type Options struct {
	// RunID identifies the run in logs, spans and events. Generated when
	// empty.
	RunID string
	Roots []string
	// Filter decides which entries are crawled; nil accepts everything.
	Filter filter.Func
	// Workers defaults to runtime.NumCPU().
	Workers int
	// Crawlers bounds how many roots are walked at once. Defaults to
	// runtime.NumCPU().
	Crawlers       int
	Ordering       Ordering
	FollowSymlinks bool
	Tokenizer      tokenizer.Tokenizer
	Reporter       report.Sink
	Observer       Observer
}

// Result is what a run produced. Index is complete unless Interrupted is
// set, in which case it holds whatever was merged before cancellation.
type Result struct {
	RunID       string
	Roots       []string
	Index       *index.InvertedIndex
	Crawl       crawler.Stats
	Work        worker.Stats
	Interrupted bool
	StartedAt   time.Time
	Duration    time.Duration
}

// Coordinator runs the pipeline once.
type Coordinator struct {
	opts    Options
	queue   *queue.Queue[string]
	index   *index.InvertedIndex
	workers *worker.Pool
	state   atomic.Int32
	started atomic.Bool
	logger  *slog.Logger
}

// New validates opts and prepares a run. Errors wrap apperrors.ErrNoRoots,
// apperrors.ErrInvalidInput or apperrors.ErrPipelineStart.
func New(opts Options) (*Coordinator, error) {
	if len(opts.Roots) == 0 {
		return nil, apperrors.ErrNoRoots
	}
	for i, root := range opts.Roots {
		if root == "" {
			return nil, fmt.Errorf("%w: root %d is empty", apperrors.ErrInvalidInput, i)
		}
	}
	if opts.Workers < 0 || opts.Crawlers < 0 {
		return nil, fmt.Errorf("%w: workers=%d crawlers=%d", apperrors.ErrInvalidInput, opts.Workers, opts.Crawlers)
	}
	if opts.Ordering != OrderingConcurrent && opts.Ordering != OrderingProducersFirst {
		return nil, fmt.Errorf("%w: ordering %d", apperrors.ErrInvalidInput, opts.Ordering)
	}
	if opts.Crawlers == 0 {
		opts.Crawlers = runtime.NumCPU()
	}
	if opts.Filter == nil {
		opts.Filter = filter.AcceptAll
	}
	if opts.Reporter == nil {
		opts.Reporter = report.Discard
	}
	if opts.Observer == nil {
		opts.Observer = NopObserver{}
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}

	c := &Coordinator{
		opts:   opts,
		queue:  queue.New[string](),
		index:  index.New(),
		logger: slog.Default().With("component", "pipeline", "run_id", opts.RunID),
	}
	workers, err := worker.New(c.queue, c.index, worker.Config{
		Size:      opts.Workers,
		Tokenizer: opts.Tokenizer,
		Reporter:  opts.Reporter,
		OnDequeue: opts.Observer.FileDequeued,
		OnIndexed: opts.Observer.FileIndexed,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrPipelineStart, err)
	}
	c.workers = workers
	return c, nil
}

// RunID returns the id of the run.
func (c *Coordinator) RunID() string { return c.opts.RunID }

// State returns the current phase.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// Run crawls every root and indexes every discovered file, returning once
// all workers have exited. Cancelling ctx stops crawlers from descending and
// workers from dequeuing; Run then returns the partial index with
// Result.Interrupted set and a nil error. Per-item failures go to the
// reporter. A Coordinator can run only once.
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	if !c.started.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("%w: coordinator already ran", apperrors.ErrPipelineStart)
	}
	ctx = logger.WithRunID(ctx, c.opts.RunID)
	ctx, span := tracing.Start(ctx, "pipeline.run", c.opts.RunID)
	defer span.End()
	span.SetAttr("roots", len(c.opts.Roots))
	span.SetAttr("workers", c.workers.Size())
	span.SetAttr("ordering", c.opts.Ordering.String())

	res := &Result{
		RunID:     c.opts.RunID,
		Roots:     append([]string(nil), c.opts.Roots...),
		Index:     c.index,
		StartedAt: time.Now(),
	}
	c.logger.Info("run started",
		"roots", len(c.opts.Roots),
		"workers", c.workers.Size(),
		"crawlers", c.opts.Crawlers,
		"ordering", c.opts.Ordering.String(),
	)
	c.transition(StateCrawling)

	type workOutcome struct {
		stats worker.Stats
		err   error
	}
	workDone := make(chan workOutcome, 1)
	startWorkers := func() {
		go func() {
			stats, err := c.workers.Run(ctx)
			workDone <- workOutcome{stats, err}
		}()
	}

	// Workers only exit once the queue is closed, whatever path Run takes.
	defer c.queue.Close()
	if c.opts.Ordering == OrderingConcurrent {
		startWorkers()
	}
	res.Crawl = c.crawl(ctx)
	// Every crawler has returned, so no Push can follow.
	c.queue.Close()
	c.transition(StateDraining)
	if c.opts.Ordering == OrderingProducersFirst {
		startWorkers()
	}

	_, drain := tracing.StartChildSpan(ctx, "drain")
	drain.SetAttr("queued", c.queue.Len())
	outcome := <-workDone
	drain.End()
	res.Work = outcome.stats
	if outcome.err != nil && !errors.Is(outcome.err, ctx.Err()) {
		c.logger.Error("worker pool stopped unexpectedly", "error", outcome.err)
	}

	res.Interrupted = ctx.Err() != nil
	res.Duration = time.Since(res.StartedAt)
	c.transition(StateDone)

	stats := c.index.Stats()
	span.SetAttr("files", stats.Files)
	span.SetAttr("terms", stats.Terms)
	span.SetAttr("interrupted", res.Interrupted)
	c.logger.Info("run finished",
		"files", stats.Files,
		"terms", stats.Terms,
		"failed", res.Work.Failed,
		"crawl_errors", res.Crawl.Errors,
		"interrupted", res.Interrupted,
		"duration", res.Duration,
	)
	return res, nil
}

// crawl walks every root on a bounded pool and returns the summed stats once
// all crawlers have returned.
func (c *Coordinator) crawl(ctx context.Context) crawler.Stats {
	ctx, span := tracing.StartChildSpan(ctx, "crawl")
	defer span.End()

	var dirs, files, rejected, errs atomic.Int64
	p := pool.New().WithMaxGoroutines(c.opts.Crawlers).WithContext(ctx)
	for _, root := range c.opts.Roots {
		cr := crawler.New(root, c.opts.Filter, c.queue, c.opts.Reporter, crawler.Options{
			FollowSymlinks: c.opts.FollowSymlinks,
			OnDiscover:     c.opts.Observer.FileDiscovered,
		})
		p.Go(func(ctx context.Context) error {
			var (
				stats crawler.Stats
				err   error
			)
			var pc panics.Catcher
			pc.Try(func() { stats, err = cr.Crawl(ctx) })
			if r := pc.Recovered(); r != nil {
				c.opts.Reporter.Report(&apperrors.ItemError{
					Kind: apperrors.ErrInternal,
					Path: cr.Root(),
					Err:  r.AsError(),
				})
				stats.Errors++
				err = fmt.Errorf("crawler panicked: %w", r.AsError())
			}
			dirs.Add(stats.Directories)
			files.Add(stats.Files)
			rejected.Add(stats.Rejected)
			errs.Add(stats.Errors)
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("crawling %s: %w", cr.Root(), err)
			}
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		c.logger.Error("crawler stopped unexpectedly", "error", err)
	}

	total := crawler.Stats{
		Directories: dirs.Load(),
		Files:       files.Load(),
		Rejected:    rejected.Load(),
		Errors:      errs.Load(),
	}
	span.SetAttr("files", total.Files)
	span.SetAttr("directories", total.Directories)
	return total
}

func (c *Coordinator) transition(to State) {
	from := State(c.state.Swap(int32(to)))
	if from == to {
		return
	}
	c.logger.Debug("state changed", "from", from.String(), "to", to.String())
	c.opts.Observer.StateChanged(from, to)
}
