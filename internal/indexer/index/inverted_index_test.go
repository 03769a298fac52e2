package index

import (
	"fmt"
	"sync"
	"testing"

	"github.com/RoaringBitmap/roaring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvertedIndex_AddOccurrence(t *testing.T) {
	idx := New()
	require.NoError(t, idx.AddOccurrence("the", "a.txt"))
	require.NoError(t, idx.AddOccurrence("cat", "a.txt"))
	require.NoError(t, idx.AddOccurrence("the", "b.txt"))

	assert.Equal(t, []string{"a.txt", "b.txt"}, idx.FilesFor("the").Paths())
	assert.Equal(t, []string{"a.txt"}, idx.FilesFor("cat").Paths())
	assert.True(t, idx.FilesFor("the").Contains("b.txt"))
	assert.False(t, idx.FilesFor("cat").Contains("b.txt"))
	assert.Equal(t, 2, idx.TermCount())
	assert.Equal(t, 2, idx.FileCount())
}

func TestInvertedIndex_RepeatedOccurrenceIsNotDuplicated(t *testing.T) {
	idx := New()
	for i := 0; i < 10; i++ {
		require.NoError(t, idx.AddOccurrence("echo", "a.txt"))
	}
	assert.Equal(t, 1, idx.FilesFor("echo").Len())
	assert.Equal(t, int64(1), idx.Stats().Occurrences)
}

func TestInvertedIndex_TokensAreExact(t *testing.T) {
	idx := New()
	require.NoError(t, idx.AddFile("a.txt", []string{"Cat", "cat", "cat."}))

	assert.Equal(t, 3, idx.TermCount())
	assert.Equal(t, 1, idx.FilesFor("Cat").Len())
	assert.Equal(t, 0, idx.FilesFor("CAT").Len())
}

func TestInvertedIndex_FilesForUnseenTokenIsEmpty(t *testing.T) {
	idx := New()
	set := idx.FilesFor("missing")

	require.NotNil(t, set)
	assert.Equal(t, 0, set.Len())
	assert.Empty(t, set.Paths())
	assert.False(t, idx.Has("missing"))
	assert.Equal(t, 0, idx.TermCount(), "lookups must not create tokens")
}

func TestInvertedIndex_FilesForIsLive(t *testing.T) {
	idx := New()
	require.NoError(t, idx.AddOccurrence("grow", "a.txt"))
	set := idx.FilesFor("grow")
	require.NoError(t, idx.AddOccurrence("grow", "b.txt"))

	assert.Equal(t, 2, set.Len())
}

// Concurrent first insertion of the same token must leave exactly one set
// holding every writer's file.
func TestInvertedIndex_ConcurrentFirstInsertion(t *testing.T) {
	for round := 0; round < 20; round++ {
		idx := New()
		const writers = 32
		start := make(chan struct{})
		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				<-start
				_ = idx.AddOccurrence("race", fmt.Sprintf("file-%02d", w))
			}(w)
		}
		close(start)
		wg.Wait()

		assert.Equal(t, 1, idx.TermCount())
		assert.Equal(t, writers, idx.FilesFor("race").Len())
	}
}

func TestInvertedIndex_ConcurrentWritersAcrossTokens(t *testing.T) {
	idx := New()
	const files, tokens = 50, 200
	var wg sync.WaitGroup
	for f := 0; f < files; f++ {
		wg.Add(1)
		go func(f int) {
			defer wg.Done()
			words := make([]string, tokens)
			for i := range words {
				words[i] = fmt.Sprintf("tok-%d", i)
			}
			_ = idx.AddFile(fmt.Sprintf("file-%d", f), words)
		}(f)
	}
	wg.Wait()

	assert.Equal(t, tokens, idx.TermCount())
	assert.Equal(t, files, idx.FileCount())
	for i := 0; i < tokens; i++ {
		require.Equal(t, files, idx.FilesFor(fmt.Sprintf("tok-%d", i)).Len())
	}
	assert.Equal(t, int64(files*tokens), idx.Stats().Occurrences)
}

func TestInvertedIndex_SnapshotAndMap(t *testing.T) {
	idx := New()
	require.NoError(t, idx.AddFile("b.txt", []string{"the", "dog"}))
	require.NoError(t, idx.AddFile("a.txt", []string{"the", "cat"}))

	snapshot := idx.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "cat", snapshot[0].Term)
	assert.Equal(t, "dog", snapshot[1].Term)
	assert.Equal(t, "the", snapshot[2].Term)
	assert.Equal(t, []string{"a.txt", "b.txt"}, snapshot[2].Files)

	assert.Equal(t, map[string][]string{
		"cat": {"a.txt"},
		"dog": {"b.txt"},
		"the": {"a.txt", "b.txt"},
	}, idx.Map())
}

func TestInvertedIndex_BitmapRoundTrip(t *testing.T) {
	idx := New()
	require.NoError(t, idx.AddFile("a.txt", []string{"x", "y"}))
	require.NoError(t, idx.AddFile("b.txt", []string{"x"}))

	both := roaring.And(idx.FilesFor("x").Bitmap(), idx.FilesFor("y").Bitmap())
	assert.Equal(t, []string{"a.txt"}, idx.Paths(both))
	assert.Equal(t, []string{}, idx.Paths(nil))

	// Bitmap returns a copy.
	bm := idx.FilesFor("x").Bitmap()
	bm.Clear()
	assert.Equal(t, 2, idx.FilesFor("x").Len())
}

func TestInvertedIndex_AllFilesIncludesEmptyFiles(t *testing.T) {
	idx := New()
	require.NoError(t, idx.AddFile("a.txt", []string{"x"}))
	require.NoError(t, idx.AddFile("empty.txt", nil))

	assert.Equal(t, []string{"a.txt", "empty.txt"}, idx.Paths(idx.AllFiles()))
	assert.True(t, New().AllFiles().IsEmpty())
}

func BenchmarkInvertedIndex_AddFile(b *testing.B) {
	idx := New()
	words := []string{"this", "is", "a", "benchmark", "document", "with", "several", "terms"}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = idx.AddFile(fmt.Sprintf("doc-%d", i), words)
	}
}

func BenchmarkInvertedIndex_AddOccurrenceParallel(b *testing.B) {
	idx := New()
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_ = idx.AddOccurrence(fmt.Sprintf("tok-%d", i%512), fmt.Sprintf("doc-%d", i%4096))
			i++
		}
	})
}
