// Package tokenizer splits file content into index tokens. Tokens are the
// maximal runs of non-whitespace characters; they are kept exactly as they
// appear, with no case folding, stemming or punctuation stripping.
package tokenizer

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxTokenSize bounds the length of a single token in bytes. A longer
// whitespace-free run is indexed by its first DefaultMaxTokenSize bytes
// (cut at a rune boundary) and the rest of the run is dropped.
const DefaultMaxTokenSize = 1 << 20

// Tokenizer streams the tokens of r to fn. Tokenization stops at the first
// error returned by fn or by the reader.
type Tokenizer interface {
	Tokens(r io.Reader, fn func(token string) error) error
}

// Whitespace splits on Unicode white space.
type Whitespace struct {
	// MaxTokenSize overrides DefaultMaxTokenSize when positive.
	MaxTokenSize int
}

// Tokens implements Tokenizer.
func (w Whitespace) Tokens(r io.Reader, fn func(token string) error) error {
	maxSize := w.MaxTokenSize
	if maxSize <= 0 {
		maxSize = DefaultMaxTokenSize
	}
	scanner := bufio.NewScanner(r)
	// The scanner's limit is the larger of maxSize and the initial capacity.
	scanner.Buffer(make([]byte, 0, min(64*1024, maxSize)), maxSize)
	scanner.Split(splitWords(maxSize))
	for scanner.Scan() {
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scanning tokens: %w", err)
	}
	return nil
}

// splitWords is bufio.ScanWords with a cap: a run that fills maxSize bytes
// without whitespace is emitted truncated instead of failing the scan with
// bufio.ErrTooLong.
func splitWords(maxSize int) bufio.SplitFunc {
	skipping := false
	return func(data []byte, atEOF bool) (int, []byte, error) {
		start := 0
		if skipping {
			i := indexSpace(data)
			if i < 0 {
				// Still inside the truncated run.
				return len(data), nil, nil
			}
			skipping = false
			start = i
		}
		for start < len(data) {
			r, width := utf8.DecodeRune(data[start:])
			if !unicode.IsSpace(r) {
				break
			}
			start += width
		}
		if i := indexSpace(data[start:]); i >= 0 {
			_, width := utf8.DecodeRune(data[start+i:])
			return start + i + width, data[start : start+i], nil
		}
		if atEOF && len(data) > start {
			return len(data), data[start:], nil
		}
		if len(data)-start >= maxSize {
			end := start
			for end < len(data) && utf8.FullRune(data[end:]) {
				_, width := utf8.DecodeRune(data[end:])
				if end+width-start > maxSize {
					break
				}
				end += width
			}
			if end == start {
				end++
			}
			skipping = true
			return end, data[start:end], nil
		}
		return start, nil, nil
	}
}

func indexSpace(data []byte) int {
	for i := 0; i < len(data); {
		r, width := utf8.DecodeRune(data[i:])
		if unicode.IsSpace(r) {
			return i
		}
		i += width
	}
	return -1
}

// Tokenize splits text into whitespace-delimited tokens.
func Tokenize(text string) []string {
	return strings.Fields(text)
}
