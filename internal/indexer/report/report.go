// Package report provides sinks for the per-item failures raised while
// crawling and indexing. Failures are never fatal to a run; they are handed to
// a Sink for the caller to log, count or forward.
package report

import (
	"log/slog"
	"sync"

	apperrors "github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/errors"
)

// Sink receives item failures. Implementations must be safe for concurrent
// use by every crawler and worker of a run.
type Sink interface {
	Report(err *apperrors.ItemError)
}

// Func adapts a function to a Sink.
type Func func(err *apperrors.ItemError)

func (f Func) Report(err *apperrors.ItemError) { f(err) }

// Discard drops every failure.
var Discard Sink = Func(func(*apperrors.ItemError) {})

// Collector keeps every failure in memory.
type Collector struct {
	mu       sync.Mutex
	failures []*apperrors.ItemError
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Report(err *apperrors.ItemError) {
	c.mu.Lock()
	c.failures = append(c.failures, err)
	c.mu.Unlock()
}

// Failures returns a copy of the failures reported so far.
func (c *Collector) Failures() []*apperrors.ItemError {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*apperrors.ItemError, len(c.failures))
	copy(out, c.failures)
	return out
}

// Len returns the number of failures reported so far.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.failures)
}

// CountByKind groups the reported failures by apperrors.KindLabel.
func (c *Collector) CountByKind() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	counts := make(map[string]int)
	for _, f := range c.failures {
		counts[apperrors.KindLabel(f)]++
	}
	return counts
}

// LogSink writes each failure as a structured warning.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink returns a LogSink writing to logger, or to the default logger
// when logger is nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default().With("component", "item-errors")
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Report(err *apperrors.ItemError) {
	s.logger.Warn("item skipped",
		"kind", apperrors.KindLabel(err),
		"path", err.Path,
		"error", err.Err,
	)
}

// Multi fans every failure out to each non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	live := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return Func(func(err *apperrors.ItemError) {
		for _, s := range live {
			s.Report(err)
		}
	})
}
