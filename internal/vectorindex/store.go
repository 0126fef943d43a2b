// Package vectorindex stores chunk embeddings tagged with their owner and
// source location and answers user-scoped similarity queries. A Store is
// created once per process and handed to every component that needs it.
package vectorindex

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tbourn/go-rag-backend/internal/domain"
	"github.com/tbourn/go-rag-backend/internal/embedding"
	"github.com/tbourn/go-rag-backend/internal/search"
)

const (
	DefaultBatchSize       = 5000
	DefaultTopK            = 4
	DefaultFetchMultiplier = 2
)

// Option configures a Store.
type Option func(*Store)

// WithBatchSize bounds the number of chunks embedded and stored per batch.
func WithBatchSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithEmbedTimeout bounds every call to the embedding backend.
func WithEmbedTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.embedTimeout = d
		}
	}
}

// WithReranker replaces the default re-ranker.
func WithReranker(r *search.Reranker) Option {
	return func(s *Store) {
		if r != nil {
			s.reranker = r
		}
	}
}

// Store is the index handle. Reads and writes run concurrently; Reset and
// Maintain are exclusive and callers arriving while they run get
// domain.ErrUnavailable.
type Store struct {
	backend      Backend
	embedder     embedding.Embedder
	reranker     *search.Reranker
	batchSize    int
	embedTimeout time.Duration

	mu          sync.RWMutex
	maintenance atomic.Bool
}

// New builds a Store. Call Open before use.
func New(backend Backend, emb embedding.Embedder, opts ...Option) *Store {
	s := &Store{
		backend:      backend,
		embedder:     emb,
		reranker:     search.NewReranker(),
		batchSize:    DefaultBatchSize,
		embedTimeout: 30 * time.Second,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Open prepares the backend for vectors of the embedder's dimension.
func (s *Store) Open(ctx context.Context) error {
	if err := s.backend.Init(ctx, s.embedder.Dimension()); err != nil {
		return fmt.Errorf("%w: open index: %w", domain.ErrIndexing, err)
	}
	return nil
}

// BatchSize returns the configured batch size.
func (s *Store) BatchSize() int { return s.batchSize }

// heldKey marks a context that already holds the shared side of s.mu.
type heldKey struct{ s *Store }

// acquire takes the shared side of the lifecycle lock, unless ctx came from
// Hold on the same store.
func (s *Store) acquire(ctx context.Context) (func(), error) {
	if ctx.Value(heldKey{s}) != nil {
		return func() {}, nil
	}
	if s.maintenance.Load() {
		return nil, fmt.Errorf("%w: index is being reset", domain.ErrUnavailable)
	}
	s.mu.RLock()
	if s.maintenance.Load() {
		s.mu.RUnlock()
		return nil, fmt.Errorf("%w: index is being reset", domain.ErrUnavailable)
	}
	return s.mu.RUnlock, nil
}

// Hold keeps maintenance out until release is called. Store calls made with
// the returned context reuse the hold instead of locking again, so work that
// spans the index and another store cannot be split by Maintain.
func (s *Store) Hold(ctx context.Context) (context.Context, func(), error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return ctx, nil, err
	}
	return context.WithValue(ctx, heldKey{s}, true), release, nil
}

// AddChunks embeds and stores chunks tagged with documentID and userID. Work
// is split into batches; the result lists the batches that were stored even
// when a later batch fails.
func (s *Store) AddChunks(ctx context.Context, documentID, userID string, chunks []ChunkInput) (AddResult, error) {
	recs := make([]Record, len(chunks))
	for i, c := range chunks {
		if strings.TrimSpace(c.ID) == "" {
			return AddResult{}, fmt.Errorf("%w: chunk %d has no id", domain.ErrValidation, i)
		}
		meta, err := NewMetadata(documentID, userID, c.PageNumber, c.BBox)
		if err != nil {
			return AddResult{}, err
		}
		recs[i] = Record{ID: c.ID, Text: c.Text, Meta: meta}
	}

	res := AddResult{TotalBatches: (len(recs) + s.batchSize - 1) / s.batchSize}
	if len(recs) == 0 {
		return res, nil
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return res, err
	}
	defer release()

	for b := 0; b < res.TotalBatches; b++ {
		lo := b * s.batchSize
		hi := min(lo+s.batchSize, len(recs))
		batch := recs[lo:hi]

		texts := make([]string, len(batch))
		for i, r := range batch {
			texts[i] = r.Text
		}
		vecs, err := s.embed(ctx, texts)
		if err != nil {
			return res, fmt.Errorf("batch %d of %d: %w", b+1, res.TotalBatches, err)
		}
		for i := range batch {
			batch[i].Vector = vecs[i]
		}
		if err := s.backend.Upsert(ctx, batch); err != nil {
			return res, fmt.Errorf("%w: batch %d of %d: %w", domain.ErrIndexing, b+1, res.TotalBatches, err)
		}
		res.Committed = append(res.Committed, b)
	}
	return res, nil
}

func (s *Store) embed(ctx context.Context, texts []string) ([][]float32, error) {
	ectx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()

	vecs, err := s.embedder.EmbedDocuments(ectx, texts)
	if err != nil {
		return nil, embedErr(ectx, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d texts", domain.ErrIndexing, len(vecs), len(texts))
	}
	return vecs, nil
}

func embedErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: embedding: %w", domain.ErrTimeout, domain.ErrIndexing, err)
	}
	return fmt.Errorf("%w: embedding: %w", domain.ErrIndexing, err)
}

// Search returns the k nearest chunks owned by userID. The backend is asked
// for k*fetchMultiplier candidates which are re-ranked and truncated to k.
func (s *Store) Search(ctx context.Context, query, userID string, k, fetchMultiplier int) ([]Hit, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", domain.ErrValidation)
	}
	if k <= 0 {
		k = DefaultTopK
	}
	if fetchMultiplier < 1 {
		fetchMultiplier = 1
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	ectx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	vec, err := s.embedder.EmbedQuery(ectx, query)
	if err != nil {
		err = embedErr(ectx, err)
	}
	cancel()
	if err != nil {
		return nil, err
	}

	matches, err := s.backend.Query(ctx, vec, k*fetchMultiplier, Filter{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("%w: query: %w", domain.ErrIndexing, err)
	}

	byID := make(map[string]Match, len(matches))
	cands := make([]search.Candidate, 0, len(matches))
	for _, m := range matches {
		if m.Meta.UserID != userID {
			continue
		}
		byID[m.ID] = m
		cands = append(cands, search.Candidate{ID: m.ID, Text: m.Text, Score: m.Score})
	}

	ranked := s.reranker.Rerank(query, cands, k)
	hits := make([]Hit, len(ranked))
	for i, r := range ranked {
		m := byID[r.ID]
		hits[i] = Hit{ID: r.ID, Text: r.Text, Score: r.Score, Lexical: r.Lexical, Metadata: m.Meta}
	}
	return hits, nil
}

// DeleteWhere removes every vector tagged with both documentID and userID.
func (s *Store) DeleteWhere(ctx context.Context, documentID, userID string) (int64, error) {
	if strings.TrimSpace(documentID) == "" || strings.TrimSpace(userID) == "" {
		return 0, fmt.Errorf("%w: delete requires both document id and user id", domain.ErrValidation)
	}
	release, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	n, err := s.backend.Delete(ctx, Filter{DocumentID: documentID, UserID: userID})
	if err != nil {
		return 0, fmt.Errorf("%w: delete vectors: %w", domain.ErrIndexing, err)
	}
	return n, nil
}

// Count returns the number of vectors matching f.
func (s *Store) Count(ctx context.Context, f Filter) (int64, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()
	return s.backend.Count(ctx, f)
}

// Reset drops and re-creates the backing index. In-flight calls finish
// first; calls arriving meanwhile fail with domain.ErrUnavailable.
func (s *Store) Reset(ctx context.Context) error {
	return s.Maintain(ctx, nil)
}

// Maintain resets the index and then runs fn, all under the exclusive lock.
// Errors from fn are returned as is; index errors wrap domain.ErrIndexing.
func (s *Store) Maintain(ctx context.Context, fn func(context.Context) error) error {
	if !s.maintenance.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: reset already running", domain.ErrUnavailable)
	}
	defer s.maintenance.Store(false)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Drop(ctx); err != nil {
		return fmt.Errorf("%w: drop index: %w", domain.ErrIndexing, err)
	}
	if err := s.backend.Init(ctx, s.embedder.Dimension()); err != nil {
		return fmt.Errorf("%w: re-create index: %w", domain.ErrIndexing, err)
	}
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// Close releases the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Close()
}
