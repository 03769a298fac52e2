// Package lookup serves queries against the most recently built index.
// Rebuilds publish a new Generation; readers always see a complete one.
package lookup

import (
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/index"
)

// Generation is one finished index and where it came from.
type Generation struct {
	RunID       string
	Roots       []string
	Index       *index.InvertedIndex
	BuiltAt     time.Time
	Interrupted bool
}

// Current holds the generation that queries run against.
type Current struct {
	gen atomic.Pointer[Generation]
}

// Load returns the current generation, or nil before the first build.
func (c *Current) Load() *Generation {
	return c.gen.Load()
}

// Swap installs gen and returns the one it replaced.
func (c *Current) Swap(gen *Generation) *Generation {
	return c.gen.Swap(gen)
}

// Ready reports whether a generation has been installed.
func (c *Current) Ready() bool {
	return c.gen.Load() != nil
}
