// Package search provides the deterministic re-ranking step applied after
// the vector index over-fetches candidates. It is small and dependency-free:
//
//   - No logging in the library (callers decide how/what to log)
//   - Functional options (Option pattern)
//   - Unicode-aware tokenization with optional stop-word removal
//   - Deterministic scoring and sorting (stable order for ties)
//
// Lexical overlap uses Jaccard similarity between the query token set and
// each candidate's token set: |Q ∩ C| / |Q ∪ C|. The final rank blends it
// with the vector score: (1-w)*score + w*lexical.
package search

import (
	"regexp"
	"sort"
	"strings"
)

// Candidate is one vector-index hit to be re-ranked.
type Candidate struct {
	ID    string
	Text  string
	Score float64 // cosine similarity from the index
}

// Ranked is a candidate with its lexical overlap and blended rank.
type Ranked struct {
	Candidate
	Lexical float64
	Rank    float64
}

// DefaultLexicalWeight is the share of the blended rank taken by lexical overlap.
const DefaultLexicalWeight = 0.2

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	weight    float64
	stopwords map[string]struct{}
}

func defaultConfig() config {
	return config{weight: DefaultLexicalWeight}
}

// WithLexicalWeight sets w in [0,1]; other values are ignored.
func WithLexicalWeight(w float64) Option {
	return func(c *config) {
		if w >= 0 && w <= 1 {
			c.weight = w
		}
	}
}

func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

// Reranker is immutable after construction and safe for concurrent use.
type Reranker struct {
	cfg config
}

// NewReranker builds a Reranker.
func NewReranker(opts ...Option) *Reranker {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &Reranker{cfg: cfg}
}

// Rerank orders cands by blended rank (desc), then vector score (desc),
// then ID (asc), and truncates to k. k <= 0 keeps every candidate.
func (r *Reranker) Rerank(query string, cands []Candidate, k int) []Ranked {
	if len(cands) == 0 {
		return nil
	}
	q := tokenize(query, r.cfg.stopwords)
	out := make([]Ranked, len(cands))
	for i, c := range cands {
		lex := jaccard(q, tokenize(c.Text, r.cfg.stopwords))
		out[i] = Ranked{
			Candidate: c,
			Lexical:   lex,
			Rank:      (1-r.cfg.weight)*c.Score + r.cfg.weight*lex,
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Rank != out[b].Rank {
			return out[a].Rank > out[b].Rank
		}
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].ID < out[b].ID
	})
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out
}

// ----------------------------------------------------------------------------
// Helpers

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*|\p{N}+`)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	s = strings.ToLower(s)
	words := wordRE.FindAllString(s, -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	over := overlap(a, b)
	if over == 0 {
		return 0
	}
	return float64(over) / float64(len(a)+len(b)-over)
}

func overlap(a, b map[string]struct{}) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := 0
	if len(a) > len(b) {
		a, b = b, a
	}
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}
