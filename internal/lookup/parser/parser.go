// Package parser turns a lookup query into a Plan. Terms are exact index
// tokens; the upper-case words AND, OR and NOT are operators.
package parser

import (
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/concurrent-file-indexer/internal/indexer/tokenizer"
)

type QueryType int

const (
	QueryAND QueryType = iota
	QueryOR
)

func (t QueryType) String() string {
	if t == QueryOR {
		return "OR"
	}
	return "AND"
}

// Plan is a parsed query. The last AND or OR in the query decides Type.
type Plan struct {
	Terms        []string
	Type         QueryType
	ExcludeTerms []string
	RawQuery     string
}

// Empty reports whether the plan selects nothing.
func (p *Plan) Empty() bool {
	return len(p.Terms) == 0 && len(p.ExcludeTerms) == 0
}

// Key is a canonical form of the plan: two queries with the same Key
// always have the same result on the same index.
func (p *Plan) Key() string {
	terms := dedupeSorted(p.Terms)
	excludes := dedupeSorted(p.ExcludeTerms)
	parts := []string{p.Type.String(), strings.Join(terms, "\x00")}
	if len(excludes) > 0 {
		parts = append(parts, "NOT:"+strings.Join(excludes, "\x00"))
	}
	return strings.Join(parts, "|")
}

// Parse splits query on white space. A NOT applies to the next term only; a
// trailing NOT is ignored.
func Parse(query string) *Plan {
	plan := &Plan{
		Terms:        make([]string, 0),
		ExcludeTerms: make([]string, 0),
		Type:         QueryAND,
		RawQuery:     query,
	}
	excludeNext := false
	for _, word := range tokenizer.Tokenize(query) {
		switch word {
		case "AND":
			plan.Type = QueryAND
			continue
		case "OR":
			plan.Type = QueryOR
			continue
		case "NOT":
			excludeNext = true
			continue
		}
		if excludeNext {
			plan.ExcludeTerms = append(plan.ExcludeTerms, word)
			excludeNext = false
		} else {
			plan.Terms = append(plan.Terms, word)
		}
	}
	return plan
}

func dedupeSorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	n := 0
	for i, s := range out {
		if i == 0 || s != out[n-1] {
			out[n] = s
			n++
		}
	}
	return out[:n]
}
