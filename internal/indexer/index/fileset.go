package index

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring"
)

// FileSet is the thread-safe set of files containing one token. Sets only
// grow during a run.
type FileSet struct {
	mu  sync.RWMutex
	bm  *roaring.Bitmap
	reg *registry
}

func newFileSet(reg *registry) *FileSet {
	return &FileSet{bm: roaring.New(), reg: reg}
}

// add inserts id and reports whether it was newly added.
func (s *FileSet) add(id uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bm.CheckedAdd(id)
}

// Contains reports whether path is in the set.
func (s *FileSet) Contains(path string) bool {
	id, ok := s.reg.lookup(path)
	if !ok {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bm.Contains(id)
}

// Len returns the number of files currently in the set.
func (s *FileSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int(s.bm.GetCardinality())
}

// Paths returns a sorted snapshot of the file paths in the set.
func (s *FileSet) Paths() []string {
	s.mu.RLock()
	ids := s.bm.ToArray()
	s.mu.RUnlock()
	paths := s.reg.resolve(ids)
	sort.Strings(paths)
	return paths
}

// Bitmap returns a copy of the underlying file-id bitmap. Ids can be turned
// back into paths with InvertedIndex.Paths.
func (s *FileSet) Bitmap() *roaring.Bitmap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bm.Clone()
}
