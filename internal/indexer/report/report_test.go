package report

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/events"
	apperrors "github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/resilience"
)

func TestCollector_Concurrent(t *testing.T) {
	c := NewCollector()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				c.Report(apperrors.FileRead("/f", fs.ErrNotExist))
			} else {
				c.Report(apperrors.FilesystemAccess("/d", fs.ErrPermission))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, c.Len())
	assert.Equal(t, map[string]int{"file_read": 10, "filesystem_access": 10}, c.CountByKind())

	got := c.Failures()
	got[0] = nil
	assert.NotNil(t, c.Failures()[0], "Failures must return a copy")
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, nil)))
	sink.Report(apperrors.FileRead("/tmp/gone.txt", fs.ErrNotExist))
	out := buf.String()
	assert.Contains(t, out, "item skipped")
	assert.Contains(t, out, "kind=file_read")
	assert.Contains(t, out, "path=/tmp/gone.txt")
}

func TestMulti_SkipsNil(t *testing.T) {
	a, b := NewCollector(), NewCollector()
	sink := Multi(a, nil, b, Discard)
	sink.Report(apperrors.FileRead("/x", nil))
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, 1, b.Len())
}

type fakePublisher struct {
	mu     sync.Mutex
	events []kafka.Event
	err    error
	block  chan struct{}
}

func (p *fakePublisher) Publish(_ context.Context, event kafka.Event) error {
	if p.block != nil {
		<-p.block
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) PublishBatch(ctx context.Context, events []kafka.Event) error {
	for _, e := range events {
		if err := p.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (p *fakePublisher) published() []kafka.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]kafka.Event(nil), p.events...)
}

func TestKafkaSink_PublishesAndDrainsOnClose(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewKafkaSink(pub, nil, 16)
	sink.Start(context.Background())

	sink.ForRun("run-7").Report(apperrors.FileRead("/a", fs.ErrNotExist))
	sink.Report(apperrors.FilesystemAccess("/b", fs.ErrPermission))
	sink.Close()

	got := pub.published()
	require.Len(t, got, 2)
	first := got[0].Value.(events.ItemErrorEvent)
	assert.Equal(t, "/a", got[0].Key)
	assert.Equal(t, "run-7", first.RunID)
	assert.Equal(t, "file_read", first.Kind)
	assert.Equal(t, "filesystem_access", got[1].Value.(events.ItemErrorEvent).Kind)
	assert.Equal(t, int64(2), sink.Published())

	// reports after close are dropped without panicking
	sink.Report(apperrors.FileRead("/late", nil))
	assert.Equal(t, int64(1), sink.Dropped())
	sink.Close()
}

func TestKafkaSink_DropsWhenBufferFull(t *testing.T) {
	pub := &fakePublisher{block: make(chan struct{})}
	sink := NewKafkaSink(pub, nil, 1)
	sink.Start(context.Background())

	for i := 0; i < 10; i++ {
		sink.Report(apperrors.FileRead("/f", nil))
	}
	// at most one in flight plus one buffered
	assert.GreaterOrEqual(t, sink.Dropped(), int64(8))

	close(pub.block)
	sink.Close()
	assert.Equal(t, int64(10), sink.Published()+sink.Dropped())
}

func TestKafkaSink_BreakerStopsPublishing(t *testing.T) {
	pub := &fakePublisher{err: errors.New("no brokers")}
	breaker := resilience.NewCircuitBreaker("test", resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	})
	sink := NewKafkaSink(pub, breaker, 16)
	sink.Start(context.Background())
	for i := 0; i < 5; i++ {
		sink.Report(apperrors.FileRead("/f", nil))
	}
	sink.Close()

	assert.Equal(t, resilience.StateOpen, breaker.Current())
	assert.Equal(t, int64(5), sink.Dropped())
	assert.Zero(t, sink.Published())
}

func TestKafkaSink_FlushesOnContextCancel(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewKafkaSink(pub, nil, 16)
	ctx, cancel := context.WithCancel(context.Background())
	sink.Start(ctx)
	sink.Report(apperrors.FileRead("/f", nil))
	cancel()
	sink.Close()
	assert.Equal(t, int64(1), sink.Published())
}
