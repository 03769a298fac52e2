package lookup

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/index"
)

func TestCurrent_Swap(t *testing.T) {
	var c Current
	assert.False(t, c.Ready())
	assert.Nil(t, c.Load())

	first := &Generation{RunID: "1", Index: index.New()}
	assert.Nil(t, c.Swap(first))
	assert.True(t, c.Ready())

	second := &Generation{RunID: "2", Index: index.New()}
	assert.Same(t, first, c.Swap(second))
	assert.Same(t, second, c.Load())
}

func TestCurrent_ConcurrentReaders(t *testing.T) {
	var c Current
	c.Swap(&Generation{RunID: "0", Index: index.New()})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				assert.NotNil(t, c.Load().Index)
			}
		}()
	}
	for i := 0; i < 100; i++ {
		c.Swap(&Generation{Index: index.New()})
	}
	wg.Wait()
}
