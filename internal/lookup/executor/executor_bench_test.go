package executor

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup/parser"
)

// benchIndex holds 10 000 files; token tN appears in every file whose
// number is divisible by N.
func benchIndex(b *testing.B) *index.InvertedIndex {
	b.Helper()
	idx := index.New()
	for i := 0; i < 10000; i++ {
		tokens := []string{"common"}
		for _, n := range []int{2, 3, 5, 7, 11} {
			if i%n == 0 {
				tokens = append(tokens, fmt.Sprintf("t%d", n))
			}
		}
		if err := idx.AddFile(fmt.Sprintf("file-%05d.txt", i), tokens); err != nil {
			b.Fatal(err)
		}
	}
	return idx
}

func BenchmarkExecute(b *testing.B) {
	idx := benchIndex(b)
	exec := New()
	for _, q := range []string{"t7", "t2 t3", "t2 OR t3 OR t5", "common NOT t2", "NOT t11"} {
		plan := parser.Parse(q)
		b.Run(q, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := exec.Execute(context.Background(), idx, plan, 20); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkExecuteParallel(b *testing.B) {
	idx := benchIndex(b)
	exec := New()
	plan := parser.Parse("t2 t3")
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := exec.Execute(context.Background(), idx, plan, 20); err != nil {
				b.Error(err)
				return
			}
		}
	})
}
