package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[string]()
	for _, s := range []string{"a", "b", "c"} {
		require.NoError(t, q.Push(s))
	}
	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.True(t, q.IsEmpty())
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := New[int]()
	got := make(chan int, 1)
	go func() {
		v, err := q.Pop(context.Background())
		if err == nil {
			got <- v
		}
	}()

	select {
	case <-got:
		t.Fatal("Pop returned before any item was pushed")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, q.Push(42))
	select {
	case v := <-got:
		assert.Equal(t, 42, v)
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestQueue_CloseDrainsThenReportsClosed(t *testing.T) {
	q := New[int]()
	require.NoError(t, q.Push(1))
	require.NoError(t, q.Push(2))
	q.Close()

	ctx := context.Background()
	v, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, v)
	v, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	_, err = q.Pop(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, q.Push(3), ErrClosed)
}

func TestQueue_CloseWakesAllBlockedConsumers(t *testing.T) {
	q := New[int]()
	const consumers = 16
	var wg sync.WaitGroup
	var closedCount atomic.Int32
	for i := 0; i < consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := q.Pop(context.Background()); errors.Is(err, ErrClosed) {
				closedCount.Add(1)
			}
		}()
	}

	time.Sleep(10 * time.Millisecond)
	q.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("blocked consumers were not released by Close")
	}
	assert.Equal(t, int32(consumers), closedCount.Load())
}

func TestQueue_CloseIsIdempotent(t *testing.T) {
	q := New[int]()
	q.Close()
	q.Close()
	assert.True(t, q.Closed())
}

func TestQueue_PopHonoursCancellation(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Pop(ctx)
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not observe cancellation")
	}
}

func TestQueue_TryPop(t *testing.T) {
	q := New[string]()
	_, ok := q.TryPop()
	assert.False(t, ok)

	require.NoError(t, q.Push("x"))
	v, ok := q.TryPop()
	assert.True(t, ok)
	assert.Equal(t, "x", v)
}

func TestQueue_CompactionPreservesOrder(t *testing.T) {
	q := New[int]()
	ctx := context.Background()
	next := 0
	for i := 0; i < 5000; i++ {
		require.NoError(t, q.Push(i))
		if i%3 == 0 {
			v, err := q.Pop(ctx)
			require.NoError(t, err)
			require.Equal(t, next, v)
			next++
		}
	}
	q.Close()
	for {
		v, err := q.Pop(ctx)
		if errors.Is(err, ErrClosed) {
			break
		}
		require.NoError(t, err)
		require.Equal(t, next, v)
		next++
	}
	assert.Equal(t, 5000, next)
}

// Every pushed item is delivered to exactly one consumer, and every consumer
// terminates, regardless of producer/consumer counts.
func TestQueue_ExactlyOnceUnderContention(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for round := 0; round < 50; round++ {
		producers := 1 + rng.Intn(8)
		consumers := 1 + rng.Intn(8)
		perProducer := 1 + rng.Intn(200)

		t.Run(fmt.Sprintf("p%d_c%d_n%d", producers, consumers, perProducer), func(t *testing.T) {
			q := New[int]()
			var seen sync.Map
			var delivered atomic.Int64

			var cwg sync.WaitGroup
			for c := 0; c < consumers; c++ {
				cwg.Add(1)
				go func() {
					defer cwg.Done()
					for {
						v, err := q.Pop(context.Background())
						if errors.Is(err, ErrClosed) {
							return
						}
						if _, dup := seen.LoadOrStore(v, struct{}{}); dup {
							t.Errorf("item %d delivered twice", v)
						}
						delivered.Add(1)
					}
				}()
			}

			var pwg sync.WaitGroup
			for p := 0; p < producers; p++ {
				pwg.Add(1)
				go func(p int) {
					defer pwg.Done()
					for i := 0; i < perProducer; i++ {
						_ = q.Push(p*perProducer + i)
					}
				}(p)
			}
			pwg.Wait()
			q.Close()

			done := make(chan struct{})
			go func() {
				cwg.Wait()
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("consumers hung after close")
			}
			assert.Equal(t, int64(producers*perProducer), delivered.Load())
		})
	}
}

func BenchmarkQueue_PushPop(b *testing.B) {
	q := New[int]()
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = q.Push(i)
		_, _ = q.Pop(ctx)
	}
}
