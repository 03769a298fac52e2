package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		query    string
		terms    []string
		excludes []string
		typ      QueryType
	}{
		{"cat", []string{"cat"}, []string{}, QueryAND},
		{"cat dog", []string{"cat", "dog"}, []string{}, QueryAND},
		{"cat OR dog", []string{"cat", "dog"}, []string{}, QueryOR},
		{"cat NOT dog", []string{"cat"}, []string{"dog"}, QueryAND},
		{"Cat and dog", []string{"Cat", "and", "dog"}, []string{}, QueryAND},
		{"cat NOT", []string{"cat"}, []string{}, QueryAND},
		{"NOT cat", []string{}, []string{"cat"}, QueryAND},
		{"   ", []string{}, []string{}, QueryAND},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			p := Parse(tt.query)
			assert.Equal(t, tt.terms, p.Terms)
			assert.Equal(t, tt.excludes, p.ExcludeTerms)
			assert.Equal(t, tt.typ, p.Type)
			assert.Equal(t, tt.query, p.RawQuery)
		})
	}
}

func TestPlan_Empty(t *testing.T) {
	assert.True(t, Parse("").Empty())
	assert.True(t, Parse("AND OR").Empty())
	assert.False(t, Parse("NOT x").Empty())
}

func TestPlan_KeyIsCanonical(t *testing.T) {
	assert.Equal(t, Parse("dog cat").Key(), Parse("cat  dog cat").Key())
	assert.Equal(t, Parse("a NOT b NOT c").Key(), Parse("NOT c a NOT b").Key())
	assert.NotEqual(t, Parse("cat dog").Key(), Parse("cat OR dog").Key())
	assert.NotEqual(t, Parse("cat").Key(), Parse("Cat").Key())
	assert.NotEqual(t, Parse("a b").Key(), Parse("a NOT b").Key())
}
