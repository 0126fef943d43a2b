package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process backend ranking by cosine similarity. Vectors
// are expected to be unit length, so the dot product is the cosine.
type Memory struct {
	mu   sync.RWMutex
	dim  int
	recs map[string]Record
}

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{recs: map[string]Record{}}
}

// Init implements Backend.
func (m *Memory) Init(_ context.Context, dim int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dim = dim
	if m.recs == nil {
		m.recs = map[string]Record{}
	}
	return nil
}

// Upsert implements Backend.
func (m *Memory) Upsert(_ context.Context, recs []Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range recs {
		if m.dim > 0 && len(r.Vector) != m.dim {
			return fmt.Errorf("vector %s has %d dimensions, want %d", r.ID, len(r.Vector), m.dim)
		}
	}
	for _, r := range recs {
		v := make([]float32, len(r.Vector))
		copy(v, r.Vector)
		r.Vector = v
		m.recs[r.ID] = r
	}
	return nil
}

// Query implements Backend.
func (m *Memory) Query(_ context.Context, vec []float32, k int, f Filter) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Match, 0, len(m.recs))
	for _, r := range m.recs {
		if !f.Matches(r.Meta) {
			continue
		}
		out = append(out, Match{Record: r, Score: dot(vec, r.Vector)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if k > 0 && k < len(out) {
		out = out[:k]
	}
	return out, nil
}

// Delete implements Backend.
func (m *Memory) Delete(_ context.Context, f Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, r := range m.recs {
		if f.Matches(r.Meta) {
			delete(m.recs, id)
			n++
		}
	}
	return n, nil
}

// Count implements Backend.
func (m *Memory) Count(_ context.Context, f Filter) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, r := range m.recs {
		if f.Matches(r.Meta) {
			n++
		}
	}
	return n, nil
}

// Drop implements Backend.
func (m *Memory) Drop(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = map[string]Record{}
	return nil
}

// Close implements Backend.
func (m *Memory) Close() error { return nil }

func dot(a, b []float32) float64 {
	n := min(len(a), len(b))
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
