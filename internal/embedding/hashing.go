package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"
)

// Hashing is a deterministic, offline bag-of-words embedder using the
// hashing trick over lower-cased tokens and character trigrams. It needs no
// network and is the default for development and tests.
type Hashing struct {
	dim int
}

// NewHashing returns a Hashing embedder of the given dimension.
func NewHashing(dim int) *Hashing {
	if dim <= 0 {
		dim = 256
	}
	return &Hashing{dim: dim}
}

// Dimension implements Embedder.
func (h *Hashing) Dimension() int { return h.dim }

// Name implements Embedder.
func (h *Hashing) Name() string { return "hashing" }

// EmbedQuery implements Embedder.
func (h *Hashing) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return h.embed(text), nil
}

// EmbedDocuments implements Embedder.
func (h *Hashing) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(t)
	}
	return out, nil
}

func (h *Hashing) embed(text string) []float32 {
	v := make([]float32, h.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h.add(v, w, 1)
		rs := []rune("#" + w + "#")
		for i := 0; i+3 <= len(rs); i++ {
			h.add(v, string(rs[i:i+3]), 0.5)
		}
	}
	Normalize(v)
	return v
}

// add hashes feature into a bucket with a hash-derived sign.
func (h *Hashing) add(v []float32, feature string, weight float32) {
	f := fnv.New64a()
	_, _ = f.Write([]byte(feature))
	sum := f.Sum64()
	idx := int(sum % uint64(h.dim))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	v[idx] += weight
}
