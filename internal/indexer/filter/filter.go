// Package filter supplies acceptance predicates for the crawler. A predicate
// decides, for each directory entry, whether it is descended into (for
// directories) or emitted for indexing (for files).
package filter

import (
	"io/fs"
	"path"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// Entry is a directory entry presented to a Func.
type Entry struct {
	// Path is the entry's path as discovered, joined onto the crawl root.
	Path string
	// Rel is the slash-separated path relative to the crawl root. For a root
	// that is itself a file, Rel is the file's base name.
	Rel string
	// IsDir reports whether the entry (after resolving symlinks) is a
	// directory.
	IsDir bool
	// Info is the entry's resolved file info. It may be nil if the caller
	// could not stat the entry.
	Info fs.FileInfo
}

// Func reports whether an entry is accepted.
type Func func(e Entry) bool

// AcceptAll accepts every entry.
func AcceptAll(Entry) bool { return true }

// Options configures New.
type Options struct {
	// Exclude holds gitignore-style patterns. Matching directories are not
	// descended and matching files are not emitted.
	Exclude []string
	// Include holds gitignore-style patterns applied to files only. When
	// non-empty, a file must match at least one of them.
	Include []string
	// SkipHidden rejects entries whose base name starts with a dot.
	SkipHidden bool
	// MaxFileSize rejects files larger than this many bytes. Zero disables
	// the limit.
	MaxFileSize int64
}

// New builds a Func from opts. With zero Options it accepts everything.
func New(opts Options) Func {
	exclude := compile(opts.Exclude)
	include := compile(opts.Include)

	return func(e Entry) bool {
		rel := strings.TrimPrefix(e.Rel, "./")
		if opts.SkipHidden && isHidden(rel) {
			return false
		}
		if exclude != nil {
			candidate := rel
			if e.IsDir {
				candidate += "/"
			}
			if exclude.MatchesPath(candidate) {
				return false
			}
		}
		if e.IsDir {
			return true
		}
		if opts.MaxFileSize > 0 && e.Info != nil && e.Info.Size() > opts.MaxFileSize {
			return false
		}
		if include != nil && !include.MatchesPath(rel) {
			return false
		}
		return true
	}
}

// All accepts an entry only if every fn accepts it.
func All(fns ...Func) Func {
	return func(e Entry) bool {
		for _, fn := range fns {
			if fn != nil && !fn(e) {
				return false
			}
		}
		return true
	}
}

func compile(patterns []string) *ignore.GitIgnore {
	lines := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p != "" {
			lines = append(lines, p)
		}
	}
	if len(lines) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(lines...)
}

func isHidden(rel string) bool {
	base := path.Base(rel)
	return len(base) > 1 && strings.HasPrefix(base, ".") && base != ".."
}
