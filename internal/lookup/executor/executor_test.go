package executor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup/parser"
)

func sampleIndex(t *testing.T) *index.InvertedIndex {
	t.Helper()
	idx := index.New()
	require.NoError(t, idx.AddFile("a.txt", []string{"the", "cat"}))
	require.NoError(t, idx.AddFile("b.txt", []string{"the", "dog"}))
	require.NoError(t, idx.AddFile("c.txt", []string{"cat", "dog"}))
	require.NoError(t, idx.AddFile("empty.txt", nil))
	return idx
}

func TestExecute(t *testing.T) {
	idx := sampleIndex(t)
	tests := []struct {
		query string
		files []string
	}{
		{"cat", []string{"a.txt", "c.txt"}},
		{"cat dog", []string{"c.txt"}},
		{"cat AND the", []string{"a.txt"}},
		{"cat OR dog", []string{"a.txt", "b.txt", "c.txt"}},
		{"the NOT cat", []string{"b.txt"}},
		{"NOT the", []string{"c.txt", "empty.txt"}},
		{"bird", []string{}},
		{"cat bird", []string{}},
		{"Cat", []string{}},
		{"", []string{}},
	}
	exec := New()
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res, err := exec.Execute(context.Background(), idx, parser.Parse(tt.query), 0)
			require.NoError(t, err)
			assert.Equal(t, tt.files, res.Files)
			assert.Equal(t, len(tt.files), res.TotalHits)
		})
	}
}

func TestExecute_LimitAndTermStats(t *testing.T) {
	res, err := New().Execute(context.Background(), sampleIndex(t), parser.Parse("cat OR dog"), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, res.Files)
	assert.Equal(t, 3, res.TotalHits)
	assert.Equal(t, map[string]int{"cat": 2, "dog": 2}, res.TermStats)
}

func TestExecute_DoesNotMutateIndex(t *testing.T) {
	idx := sampleIndex(t)
	_, err := New().Execute(context.Background(), idx, parser.Parse("cat NOT dog"), 0)
	require.NoError(t, err)
	assert.Equal(t, 2, idx.FilesFor("cat").Len())
}

func TestExecute_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Execute(ctx, sampleIndex(t), parser.Parse("cat"), 0)
	assert.ErrorIs(t, err, context.Canceled)
}
