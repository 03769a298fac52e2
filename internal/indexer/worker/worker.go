// Package worker implements the pool that drains the file queue, tokenizes
// each file and merges its tokens into the shared index.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"sync/atomic"

	"github.com/sourcegraph/conc/panics"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/queue"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/report"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/errors"
)

// Source hands out work items. Pop returns queue.ErrClosed once no more
// items will ever arrive.
type Source interface {
	Pop(ctx context.Context) (string, error)
}

// Index receives the distinct tokens of each successfully read file.
type Index interface {
	AddFile(path string, tokens []string) error
}

// Config tunes a Pool. Zero values take defaults.
type Config struct {
	// Size is the number of workers; defaults to runtime.NumCPU().
	Size      int
	Tokenizer tokenizer.Tokenizer
	Reporter  report.Sink
	// OnDequeue is called as soon as a worker takes a path off the source.
	OnDequeue func(path string)
	// OnIndexed is called after a file's tokens have been merged.
	OnIndexed func(path string, tokens int)
}

// Stats summarises a Run.
type Stats struct {
	Dequeued    int64 `json:"dequeued"`
	Indexed     int64 `json:"indexed"`
	Failed      int64 `json:"failed"`
	Interrupted int64 `json:"interrupted"`
	Tokens      int64 `json:"tokens"`
	Bytes       int64 `json:"bytes"`
}

// Pool is a fixed set of workers sharing one Source and one Index.
type Pool struct {
	source Source
	index  Index
	cfg    Config
	logger *slog.Logger

	dequeued    atomic.Int64
	indexed     atomic.Int64
	failed      atomic.Int64
	interrupted atomic.Int64
	tokens      atomic.Int64
	bytes       atomic.Int64
}

// New validates cfg and returns a Pool.
func New(source Source, idx Index, cfg Config) (*Pool, error) {
	if source == nil || idx == nil {
		return nil, fmt.Errorf("%w: worker pool needs a source and an index", apperrors.ErrPipelineStart)
	}
	if cfg.Size < 0 {
		return nil, fmt.Errorf("%w: worker pool size %d", apperrors.ErrInvalidInput, cfg.Size)
	}
	if cfg.Size == 0 {
		cfg.Size = runtime.NumCPU()
	}
	if cfg.Tokenizer == nil {
		cfg.Tokenizer = tokenizer.Whitespace{}
	}
	if cfg.Reporter == nil {
		cfg.Reporter = report.Discard
	}
	return &Pool{
		source: source,
		index:  idx,
		cfg:    cfg,
		logger: slog.Default().With("component", "index-worker"),
	}, nil
}

// Size returns the number of workers Run starts.
func (p *Pool) Size() int { return p.cfg.Size }

// Run starts the workers and blocks until every one of them has exited.
// Workers exit when the source reports it is closed and empty, or when ctx
// is cancelled, in which case Run returns ctx.Err(). A failure on one file
// never stops a worker.
func (p *Pool) Run(ctx context.Context) (Stats, error) {
	var g errgroup.Group
	for id := 0; id < p.cfg.Size; id++ {
		w := &worker{pool: p, id: id, scratch: make(map[string]struct{})}
		g.Go(func() error { return w.loop(ctx) })
	}
	err := g.Wait()
	stats := p.Stats()
	p.logger.Debug("workers finished",
		"workers", p.cfg.Size,
		"indexed", stats.Indexed,
		"failed", stats.Failed,
		"interrupted", stats.Interrupted,
	)
	return stats, err
}

// Stats returns the counters so far. It may be called while Run is active.
func (p *Pool) Stats() Stats {
	return Stats{
		Dequeued:    p.dequeued.Load(),
		Indexed:     p.indexed.Load(),
		Failed:      p.failed.Load(),
		Interrupted: p.interrupted.Load(),
		Tokens:      p.tokens.Load(),
		Bytes:       p.bytes.Load(),
	}
}

type worker struct {
	pool    *Pool
	id      int
	scratch map[string]struct{}
	tokens  []string
}

func (w *worker) loop(ctx context.Context) error {
	p := w.pool
	for {
		path, err := p.source.Pop(ctx)
		if errors.Is(err, queue.ErrClosed) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("worker %d: %w", w.id, err)
		}
		p.dequeued.Add(1)
		if p.cfg.OnDequeue != nil {
			p.cfg.OnDequeue(path)
		}
		w.process(ctx, path)
	}
}

// process indexes one file. Any panic is contained to the file.
func (w *worker) process(ctx context.Context, path string) {
	p := w.pool
	var pc panics.Catcher
	pc.Try(func() { w.indexFile(ctx, path) })
	if r := pc.Recovered(); r != nil {
		p.failed.Add(1)
		p.logger.Error("panic while indexing", "worker_id", w.id, "path", path, "panic", r.Value)
		p.cfg.Reporter.Report(apperrors.FileRead(path, fmt.Errorf("panic: %v", r.Value)))
	}
}

// indexFile reads the whole file into the worker's scratch set and merges it
// only if the read completes, so a file is either fully indexed or absent.
func (w *worker) indexFile(ctx context.Context, path string) {
	p := w.pool
	clear(w.scratch)

	f, err := os.Open(path)
	if err != nil {
		w.fail(path, err)
		return
	}
	defer f.Close()

	r := &ctxReader{ctx: ctx, r: f}
	err = p.cfg.Tokenizer.Tokens(r, func(token string) error {
		w.scratch[token] = struct{}{}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			p.interrupted.Add(1)
			p.cfg.Reporter.Report(apperrors.Interrupted(path, err))
			return
		}
		w.fail(path, err)
		return
	}

	w.tokens = w.tokens[:0]
	for token := range w.scratch {
		w.tokens = append(w.tokens, token)
	}
	if err := p.index.AddFile(path, w.tokens); err != nil {
		p.failed.Add(1)
		p.logger.Error("failed to merge tokens", "worker_id", w.id, "path", path, "error", err)
		p.cfg.Reporter.Report(&apperrors.ItemError{Kind: apperrors.ErrInternal, Path: path, Err: err})
		return
	}
	p.indexed.Add(1)
	p.tokens.Add(int64(len(w.tokens)))
	p.bytes.Add(r.n)
	if p.cfg.OnIndexed != nil {
		p.cfg.OnIndexed(path, len(w.tokens))
	}
}

func (w *worker) fail(path string, err error) {
	w.pool.failed.Add(1)
	w.pool.logger.Debug("file skipped", "worker_id", w.id, "path", path, "error", err)
	w.pool.cfg.Reporter.Report(apperrors.FileRead(path, err))
}

// ctxReader fails reads once ctx is done, so a large file stops being read
// promptly on cancellation.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
	n   int64
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
