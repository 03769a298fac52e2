// Package index implements the concurrent inverted index built by an
// indexing run: a mapping from token to the set of files containing it.
//
// Tokens are spread over a fixed number of shards, each guarded by its own
// RWMutex, so writers on different tokens rarely contend. The first writer of
// a token creates its FileSet under the shard's write lock after re-checking
// for a concurrent creation, so exactly one set ever exists per token.
package index

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring"
	"github.com/cespare/xxhash/v2"
)

const numShards = 64

type shard struct {
	mu    sync.RWMutex
	terms map[string]*FileSet
}

// InvertedIndex maps tokens to FileSets. It is safe for concurrent use.
type InvertedIndex struct {
	shards      [numShards]shard
	files       *registry
	terms       atomic.Int64
	occurrences atomic.Int64
}

// New returns an empty index.
func New() *InvertedIndex {
	idx := &InvertedIndex{files: newRegistry()}
	for i := range idx.shards {
		idx.shards[i].terms = make(map[string]*FileSet)
	}
	return idx
}

// AddOccurrence records that file contains token. Adding the same pair twice
// has no further effect.
func (idx *InvertedIndex) AddOccurrence(token, file string) error {
	id, err := idx.files.id(file)
	if err != nil {
		return fmt.Errorf("registering %s: %w", file, err)
	}
	idx.addID(token, id)
	return nil
}

// AddFile records every token in tokens as occurring in file. It is
// equivalent to calling AddOccurrence for each token but registers the file
// once.
func (idx *InvertedIndex) AddFile(file string, tokens []string) error {
	id, err := idx.files.id(file)
	if err != nil {
		return fmt.Errorf("registering %s: %w", file, err)
	}
	for _, token := range tokens {
		idx.addID(token, id)
	}
	return nil
}

func (idx *InvertedIndex) addID(token string, id uint32) {
	if idx.setFor(token).add(id) {
		idx.occurrences.Add(1)
	}
}

// setFor returns the token's FileSet, creating it if absent.
func (idx *InvertedIndex) setFor(token string) *FileSet {
	sh := idx.shardFor(token)

	sh.mu.RLock()
	set, ok := sh.terms[token]
	sh.mu.RUnlock()
	if ok {
		return set
	}

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if set, ok := sh.terms[token]; ok {
		return set
	}
	set = newFileSet(idx.files)
	sh.terms[token] = set
	idx.terms.Add(1)
	return set
}

// FilesFor returns the live set of files for token. For an unseen token it
// returns an empty set that is not attached to the index.
func (idx *InvertedIndex) FilesFor(token string) *FileSet {
	sh := idx.shardFor(token)
	sh.mu.RLock()
	set, ok := sh.terms[token]
	sh.mu.RUnlock()
	if ok {
		return set
	}
	return newFileSet(idx.files)
}

// Has reports whether token has been seen.
func (idx *InvertedIndex) Has(token string) bool {
	sh := idx.shardFor(token)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	_, ok := sh.terms[token]
	return ok
}

// Paths resolves a bitmap of file ids, as returned by FileSet.Bitmap, to a
// sorted slice of paths.
func (idx *InvertedIndex) Paths(bm *roaring.Bitmap) []string {
	if bm == nil || bm.IsEmpty() {
		return []string{}
	}
	paths := idx.files.resolve(bm.ToArray())
	sort.Strings(paths)
	return paths
}

// AllFiles returns a bitmap of every file id in the index, including files
// that produced no tokens.
func (idx *InvertedIndex) AllFiles() *roaring.Bitmap {
	bm := roaring.New()
	bm.AddRange(0, uint64(idx.files.len()))
	return bm
}

// Snapshot returns every token with its sorted file list, ordered by token.
func (idx *InvertedIndex) Snapshot() []TermEntry {
	entries := make([]TermEntry, 0, idx.TermCount())
	for i := range idx.shards {
		sh := &idx.shards[i]
		sh.mu.RLock()
		for term, set := range sh.terms {
			entries = append(entries, TermEntry{Term: term, set: set})
		}
		sh.mu.RUnlock()
	}
	for i := range entries {
		entries[i].Files = entries[i].set.Paths()
		entries[i].set = nil
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// Map returns a plain token → sorted paths copy of the index.
func (idx *InvertedIndex) Map() map[string][]string {
	snapshot := idx.Snapshot()
	out := make(map[string][]string, len(snapshot))
	for _, e := range snapshot {
		out[e.Term] = e.Files
	}
	return out
}

// Stats returns the index's current counters.
func (idx *InvertedIndex) Stats() Stats {
	return Stats{
		Terms:       idx.terms.Load(),
		Files:       int64(idx.files.len()),
		Occurrences: idx.occurrences.Load(),
	}
}

// TermCount returns the number of distinct tokens.
func (idx *InvertedIndex) TermCount() int {
	return int(idx.terms.Load())
}

// FileCount returns the number of distinct files added to the index.
func (idx *InvertedIndex) FileCount() int {
	return idx.files.len()
}

func (idx *InvertedIndex) shardFor(token string) *shard {
	return &idx.shards[xxhash.Sum64String(token)%numShards]
}
