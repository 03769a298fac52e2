// Package crawler walks a single root and hands every accepted regular file
// to a sink. A crawler owns its traversal state; only the sink and the error
// reporter are shared with the rest of a run.
package crawler

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sourcegraph/conc/panics"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/filter"
	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/report"
	apperrors "github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/pkg/errors"
)

// Sink receives discovered file paths. The pipeline passes its queue.
type Sink interface {
	Push(path string) error
}

// Options tunes a Crawler.
type Options struct {
	// FollowSymlinks descends into symlinked directories and emits symlinked
	// files. Cycles are walked once.
	FollowSymlinks bool
	// OnDiscover, if set, is called with each accepted file path before it
	// is pushed.
	OnDiscover func(path string)
}

// Stats counts what a single crawl saw.
type Stats struct {
	Directories int64 `json:"directories"`
	Files       int64 `json:"files"`
	Rejected    int64 `json:"rejected"`
	Errors      int64 `json:"errors"`
}

// Crawler walks one root. It is not safe for concurrent use; run one
// Crawler per root.
type Crawler struct {
	root     string
	accept   filter.Func
	sink     Sink
	reporter report.Sink
	opts     Options
	logger   *slog.Logger
}

// New binds a crawler to root. A nil accept accepts everything and a nil
// reporter discards failures.
func New(root string, accept filter.Func, sink Sink, reporter report.Sink, opts Options) *Crawler {
	if accept == nil {
		accept = filter.AcceptAll
	}
	if reporter == nil {
		reporter = report.Discard
	}
	return &Crawler{
		root:     root,
		accept:   accept,
		sink:     sink,
		reporter: reporter,
		opts:     opts,
		logger:   slog.Default().With("component", "crawler", "root", root),
	}
}

// Root returns the path the crawler is bound to.
func (c *Crawler) Root() string { return c.root }

// walk holds the state of one Crawl call.
type walk struct {
	*Crawler
	stats   Stats
	visited map[string]struct{}
	emitted map[string]struct{}
	stack   []string
}

// Crawl walks the root depth-first, applying the filter to every entry below
// it. Rejected directories are not descended. Each accepted regular file is
// pushed once. Unreadable entries are reported as filesystem access errors
// and skipped. When ctx is cancelled Crawl stops descending and returns
// ctx.Err() with the stats gathered so far. The only other error is a
// rejected push.
func (c *Crawler) Crawl(ctx context.Context) (Stats, error) {
	w := &walk{
		Crawler: c,
		visited: make(map[string]struct{}),
		emitted: make(map[string]struct{}),
	}
	if err := ctx.Err(); err != nil {
		return w.stats, err
	}
	if err := w.start(); err != nil {
		return w.stats, err
	}
	for len(w.stack) > 0 {
		if err := ctx.Err(); err != nil {
			c.logger.Debug("crawl interrupted", "pending_dirs", len(w.stack))
			return w.stats, err
		}
		dir := w.stack[len(w.stack)-1]
		w.stack = w.stack[:len(w.stack)-1]
		if err := w.visit(dir); err != nil {
			return w.stats, err
		}
	}
	c.logger.Debug("crawl finished",
		"directories", w.stats.Directories,
		"files", w.stats.Files,
		"rejected", w.stats.Rejected,
		"errors", w.stats.Errors,
	)
	return w.stats, nil
}

// start classifies the root. The root itself is always followed; a root that
// is a regular file goes through the filter like any other file.
func (w *walk) start() error {
	info, err := os.Stat(w.root)
	if err != nil {
		w.fail(w.root, err)
		return nil
	}
	switch {
	case info.IsDir():
		w.stack = append(w.stack, w.root)
	case info.Mode().IsRegular():
		e := filter.Entry{Path: w.root, Rel: filepath.ToSlash(filepath.Base(w.root)), Info: info}
		if !w.admit(e) {
			w.stats.Rejected++
			return nil
		}
		return w.emit(w.root)
	}
	return nil
}

func (w *walk) visit(dir string) error {
	canonical, err := filepath.EvalSymlinks(dir)
	if err != nil {
		w.fail(dir, err)
		return nil
	}
	if _, seen := w.visited[canonical]; seen {
		return nil
	}
	w.visited[canonical] = struct{}{}
	w.stats.Directories++

	entries, err := os.ReadDir(dir)
	if err != nil {
		// ReadDir may still return the entries it read before failing.
		w.fail(dir, err)
	}
	var subdirs []string
	for _, d := range entries {
		path := filepath.Join(dir, d.Name())
		info, ok := w.resolve(path, d)
		if !ok {
			continue
		}
		e := filter.Entry{Path: path, Rel: w.rel(path), IsDir: info.IsDir(), Info: info}
		switch {
		case info.IsDir():
			if !w.admit(e) {
				w.stats.Rejected++
				continue
			}
			subdirs = append(subdirs, path)
		case info.Mode().IsRegular():
			if !w.admit(e) {
				w.stats.Rejected++
				continue
			}
			if err := w.emit(path); err != nil {
				return err
			}
		}
	}
	// ReadDir sorts by name; push in reverse so the walk stays lexical.
	for i := len(subdirs) - 1; i >= 0; i-- {
		w.stack = append(w.stack, subdirs[i])
	}
	return nil
}

// resolve returns the info used to classify an entry, following symlinks
// when enabled. It reports false when the entry is skipped.
func (w *walk) resolve(path string, d fs.DirEntry) (fs.FileInfo, bool) {
	if d.Type()&fs.ModeSymlink != 0 {
		if !w.opts.FollowSymlinks {
			return nil, false
		}
		info, err := os.Stat(path)
		if err != nil {
			w.fail(path, err)
			return nil, false
		}
		return info, true
	}
	info, err := d.Info()
	if err != nil {
		w.fail(path, err)
		return nil, false
	}
	return info, true
}

func (w *walk) emit(path string) error {
	if _, dup := w.emitted[path]; dup {
		return nil
	}
	w.emitted[path] = struct{}{}
	if w.opts.OnDiscover != nil {
		var pc panics.Catcher
		pc.Try(func() { w.opts.OnDiscover(path) })
		if r := pc.Recovered(); r != nil {
			w.logger.Error("discovery hook panicked", "path", path, "panic", r.Value)
		}
	}
	if err := w.sink.Push(path); err != nil {
		return fmt.Errorf("pushing %s: %w", path, err)
	}
	w.stats.Files++
	return nil
}

// admit applies the filter. A panicking filter rejects the entry and is
// reported against it; the rest of the walk continues.
func (w *walk) admit(e filter.Entry) (ok bool) {
	var pc panics.Catcher
	pc.Try(func() { ok = w.accept(e) })
	if r := pc.Recovered(); r != nil {
		w.stats.Errors++
		w.logger.Error("filter panicked", "path", e.Path, "panic", r.Value)
		w.reporter.Report(&apperrors.ItemError{
			Kind: apperrors.ErrInternal,
			Path: e.Path,
			Err:  fmt.Errorf("filter panic: %v", r.Value),
		})
		return false
	}
	return ok
}

func (w *walk) fail(path string, err error) {
	w.stats.Errors++
	w.reporter.Report(apperrors.FilesystemAccess(path, err))
}

func (w *walk) rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
