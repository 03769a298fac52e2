package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/pipeline"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/report"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup/executor"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/lookup/parser"
	apperrors "github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/tracing"
)

type runFlags struct {
	lookups  []string
	workers  int
	crawlers int
	ordering string
	limit    int
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run [roots...]",
		Short: "Index the given roots once and print a summary",
		Long: `Crawl every root concurrently, index each regular file's
whitespace-separated tokens and print a summary. Roots default to
indexer.roots from the config. Per-file failures are reported and
skipped; the command fails only when the run cannot start.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), cmd.OutOrStdout(), args, f)
		},
	}
	cmd.Flags().StringArrayVar(&f.lookups, "lookup", nil, "query the finished index (repeatable)")
	cmd.Flags().IntVar(&f.workers, "workers", 0, "number of index workers (default from config)")
	cmd.Flags().IntVar(&f.crawlers, "crawlers", 0, "number of concurrent crawlers (default from config)")
	cmd.Flags().StringVar(&f.ordering, "ordering", "", "concurrent or producers-first (default from config)")
	cmd.Flags().IntVar(&f.limit, "limit", 20, "maximum paths printed per lookup, 0 for all")
	return cmd
}

func (a *app) run(ctx context.Context, out io.Writer, roots []string, f runFlags) error {
	cfg := a.cfg
	if len(roots) > 0 {
		cfg.Indexer.Roots = roots
	}
	if f.workers > 0 {
		cfg.Indexer.Workers = f.workers
	}
	if f.crawlers > 0 {
		cfg.Indexer.Crawlers = f.crawlers
	}
	if f.ordering != "" {
		cfg.Indexer.Ordering = f.ordering
	}
	opts, err := pipelineOptions(cfg.Indexer)
	if err != nil {
		return err
	}
	if len(opts.Roots) == 0 {
		return fmt.Errorf("%w: pass roots as arguments or set indexer.roots", apperrors.ErrNoRoots)
	}

	svc := openServices(ctx, cfg, nil)
	defer svc.close()

	collector := report.NewCollector()
	rb := consumer.NewRebuilder(consumer.RebuilderOptions{
		Pipeline:  opts,
		Runs:      svc.runs,
		Completed: svc.publisher(),
		Errors:    svc.errors,
		Reporter:  report.Multi(collector, report.NewLogSink(slog.Default())),
	})
	defer rb.Close()

	var root *tracing.Span
	if cfg.Tracing.Enabled {
		ctx, root = tracing.StartSpan(ctx, "indexer.run", "")
	}

	var (
		res    *pipeline.Result
		runErr error
	)
	done := make(chan struct{})
	err = resilience.WithTimeout(ctx, cfg.Indexer.RunTimeout, "index run", func(ctx context.Context) error {
		defer close(done)
		res, runErr = rb.Rebuild(ctx, nil)
		return runErr
	})
	if err != nil {
		// WithTimeout returns without waiting for the run. Its context is
		// already cancelled, so the pipeline stops shortly; wait for it so
		// nothing publishes after the services close.
		<-done
	}
	if root != nil {
		root.End()
		root.Log(slog.Default())
	}
	switch {
	case errors.Is(err, apperrors.ErrTimeout):
		fmt.Fprintf(out, "run abandoned after %s\n", cfg.Indexer.RunTimeout)
		return nil
	case err != nil && ctx.Err() != nil:
		// Interrupted by the caller: report the partial index as the
		// untimed path does.
		if runErr != nil {
			return runErr
		}
	case err != nil:
		return err
	}

	printSummary(out, res, collector)
	// Lookups still answer from a partial index after an interrupt.
	lookupCtx := context.WithoutCancel(ctx)
	for _, q := range f.lookups {
		if err := printLookup(lookupCtx, out, res, q, f.limit); err != nil {
			return err
		}
	}
	return nil
}

func printSummary(out io.Writer, res *pipeline.Result, collector *report.Collector) {
	stats := res.Index.Stats()
	outcome := "completed"
	if res.Interrupted {
		outcome = "interrupted"
	}
	fmt.Fprintf(out, "run %s %s in %s\n", res.RunID, outcome, res.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  roots:  %d\n", len(res.Roots))
	fmt.Fprintf(out, "  files:  %s indexed, %s failed, %s read\n",
		humanize.Comma(stats.Files),
		humanize.Comma(res.Work.Failed),
		humanize.Bytes(uint64(res.Work.Bytes)),
	)
	fmt.Fprintf(out, "  terms:  %s distinct, %s occurrences\n",
		humanize.Comma(stats.Terms),
		humanize.Comma(stats.Occurrences),
	)
	fmt.Fprintf(out, "  crawl:  %s directories, %s rejected, %s errors\n",
		humanize.Comma(res.Crawl.Directories),
		humanize.Comma(res.Crawl.Rejected),
		humanize.Comma(res.Crawl.Errors),
	)
	byKind := collector.CountByKind()
	kinds := make([]string, 0, len(byKind))
	for kind := range byKind {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Fprintf(out, "  %s: %d\n", kind, byKind[kind])
	}
}

func printLookup(ctx context.Context, out io.Writer, res *pipeline.Result, query string, limit int) error {
	result, err := executor.New().Execute(ctx, res.Index, parser.Parse(query), limit)
	if err != nil {
		return fmt.Errorf("lookup %q: %w", query, err)
	}
	fmt.Fprintf(out, "lookup %q: %s files\n", query, humanize.Comma(int64(result.TotalHits)))
	for _, path := range result.Files {
		fmt.Fprintf(out, "  %s\n", path)
	}
	if len(result.Files) < result.TotalHits {
		fmt.Fprintf(out, "  ... %d more\n", result.TotalHits-len(result.Files))
	}
	return nil
}
