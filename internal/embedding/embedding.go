// Package embedding turns text into vectors. Every backend returns
// L2-normalised vectors so the index can rank by dot product.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Embedder embeds batches of documents and single queries.
type Embedder interface {
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	Dimension() int
	Name() string
}

// ErrDimension is returned when a backend yields a vector of the wrong size.
var ErrDimension = errors.New("embedding dimension mismatch")

// Normalize scales v to unit length in place. A zero vector is left as is.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

func checkDim(vecs [][]float32, dim int) error {
	for i, v := range vecs {
		if len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimension, i, len(v), dim)
		}
	}
	return nil
}
