// Package executor evaluates a parsed lookup plan against an inverted index
// using bitmap algebra over the terms' file sets.
package executor

import (
	"context"
	"log/slog"

	"github.com/RoaringBitmap/roaring"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup/parser"
)

// Result is the answer to one lookup. Files is sorted and holds at most the
// requested number of paths; TotalHits counts every match.
type Result struct {
	Query      string         `json:"query"`
	Generation string         `json:"generation"`
	TotalHits  int            `json:"total_hits"`
	Files      []string       `json:"files"`
	TermStats  map[string]int `json:"term_stats"`
}

type Executor struct {
	logger *slog.Logger
}

func New() *Executor {
	return &Executor{
		logger: slog.Default().With("component", "lookup-executor"),
	}
}

// Execute runs plan on idx. AND intersects the terms' sets, OR unions them,
// and excluded terms are subtracted. A plan with only excluded terms starts
// from every indexed file.
func (e *Executor) Execute(ctx context.Context, idx *index.InvertedIndex, plan *parser.Plan, limit int) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := &Result{
		Query:     plan.RawQuery,
		Files:     []string{},
		TermStats: make(map[string]int),
	}
	if plan.Empty() {
		return result, nil
	}

	var candidates *roaring.Bitmap
	if len(plan.Terms) == 0 {
		candidates = idx.AllFiles()
	} else {
		sets := make([]*roaring.Bitmap, 0, len(plan.Terms))
		for _, term := range plan.Terms {
			bm := idx.FilesFor(term).Bitmap()
			result.TermStats[term] = int(bm.GetCardinality())
			sets = append(sets, bm)
		}
		switch plan.Type {
		case parser.QueryOR:
			candidates = roaring.FastOr(sets...)
		default:
			candidates = roaring.FastAnd(sets...)
		}
	}
	for _, term := range plan.ExcludeTerms {
		candidates.AndNot(idx.FilesFor(term).Bitmap())
	}

	result.TotalHits = int(candidates.GetCardinality())
	files := idx.Paths(candidates)
	if limit > 0 && len(files) > limit {
		files = files[:limit]
	}
	result.Files = files
	e.logger.Debug("lookup executed",
		"query", plan.RawQuery,
		"type", plan.Type.String(),
		"total_hits", result.TotalHits,
		"returned", len(files),
	)
	return result, nil
}
