package index

import (
	"fmt"
	"math"
	"sync"
)

// registry assigns each file path a dense uint32 id so that per-token file
// sets can be stored as bitmaps.
type registry struct {
	mu    sync.RWMutex
	ids   map[string]uint32
	paths []string
}

func newRegistry() *registry {
	return &registry{ids: make(map[string]uint32)}
}

// id returns the id for path, assigning the next one on first use.
func (r *registry) id(path string) (uint32, error) {
	r.mu.RLock()
	id, ok := r.ids[path]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.ids[path]; ok {
		return id, nil
	}
	if uint64(len(r.paths)) >= math.MaxUint32 {
		return 0, fmt.Errorf("file registry full (%d paths)", len(r.paths))
	}
	id = uint32(len(r.paths))
	r.ids[path] = id
	r.paths = append(r.paths, path)
	return id, nil
}

func (r *registry) lookup(path string) (uint32, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.ids[path]
	return id, ok
}

// resolve maps ids to paths under a single read lock.
func (r *registry) resolve(ids []uint32) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = r.paths[id]
	}
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.paths)
}
