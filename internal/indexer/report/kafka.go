package report

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/events"
	apperrors "github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/resilience"
)

// KafkaSink forwards failures to a Kafka topic. Report never blocks: events
// are buffered and published by a background goroutine, and are dropped with
// a warning when the buffer is full or the breaker is open.
type KafkaSink struct {
	publisher kafka.Publisher
	breaker   *resilience.CircuitBreaker
	eventCh   chan events.ItemErrorEvent
	logger    *slog.Logger
	done      chan struct{}
	now       func() time.Time

	mu     sync.RWMutex
	closed bool

	published atomic.Int64
	dropped   atomic.Int64
}

// NewKafkaSink creates a sink publishing through publisher. The breaker may
// be nil.
func NewKafkaSink(publisher kafka.Publisher, breaker *resilience.CircuitBreaker, bufferSize int) *KafkaSink {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	return &KafkaSink{
		publisher: publisher,
		breaker:   breaker,
		eventCh:   make(chan events.ItemErrorEvent, bufferSize),
		logger:    slog.Default().With("component", "kafka-error-sink"),
		done:      make(chan struct{}),
		now:       time.Now,
	}
}

// Start launches the publishing goroutine. When ctx is cancelled the buffered
// events are flushed and the goroutine exits.
func (s *KafkaSink) Start(ctx context.Context) {
	go func() {
		defer close(s.done)
		for {
			select {
			case event, ok := <-s.eventCh:
				if !ok {
					return
				}
				s.publish(ctx, event)
			case <-ctx.Done():
				s.drainRemaining()
				return
			}
		}
	}()
	s.logger.Info("error sink started", "buffer_size", cap(s.eventCh))
}

// Report implements Sink.
func (s *KafkaSink) Report(err *apperrors.ItemError) {
	s.enqueue("", err)
}

// ForRun returns a Sink that tags every event with runID.
func (s *KafkaSink) ForRun(runID string) Sink {
	return Func(func(err *apperrors.ItemError) { s.enqueue(runID, err) })
}

func (s *KafkaSink) enqueue(runID string, err *apperrors.ItemError) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	event := events.ItemErrorEvent{
		RunID:      runID,
		Kind:       apperrors.KindLabel(err),
		Path:       err.Path,
		Error:      err.Error(),
		ReportedAt: s.now(),
	}
	select {
	case s.eventCh <- event:
	default:
		s.dropped.Add(1)
		s.logger.Warn("item error event dropped (buffer full)", "path", err.Path)
	}
}

// Close stops accepting events and waits for the buffered ones to be
// published. Start must have been called.
func (s *KafkaSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.eventCh)
	s.mu.Unlock()
	<-s.done
	s.logger.Info("error sink closed",
		"published", s.published.Load(),
		"dropped", s.dropped.Load(),
	)
}

// Published returns the number of events written to Kafka.
func (s *KafkaSink) Published() int64 { return s.published.Load() }

// Dropped returns the number of events discarded.
func (s *KafkaSink) Dropped() int64 { return s.dropped.Load() }

func (s *KafkaSink) publish(ctx context.Context, event events.ItemErrorEvent) {
	send := func() error {
		return s.publisher.Publish(ctx, kafka.Event{Key: event.Path, Value: event})
	}
	var err error
	if s.breaker != nil {
		err = s.breaker.Execute(send)
	} else {
		err = send()
	}
	if err != nil {
		s.dropped.Add(1)
		s.logger.Error("failed to publish item error event", "path", event.Path, "error", err)
		return
	}
	s.published.Add(1)
}

func (s *KafkaSink) drainRemaining() {
	for {
		select {
		case event, ok := <-s.eventCh:
			if !ok {
				return
			}
			s.publish(context.Background(), event)
		default:
			return
		}
	}
}
