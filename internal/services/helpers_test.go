package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-rag-backend/internal/chunker"
	"github.com/tbourn/go-rag-backend/internal/embedding"
	"github.com/tbourn/go-rag-backend/internal/llm"
	"github.com/tbourn/go-rag-backend/internal/repo"
	"github.com/tbourn/go-rag-backend/internal/vectorindex"
)

// ---------- test helpers ----------

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		// one connection keeps the shared in-memory database alive and serialises writers
		sqlDB.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string) string {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), db, email, "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u.ID
}

func newIndex(t *testing.T) *vectorindex.Store {
	t.Helper()
	s := vectorindex.New(vectorindex.NewMemory(), embedding.NewHashing(0))
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("open index: %v", err)
	}
	return s
}

// words returns exactly n characters of space separated filler words.
func words(n int) string {
	vocab := []string{"alpha", "bravo", "delta", "echo", "golf", "hotel", "india", "kilo"}
	var b strings.Builder
	for i := 0; b.Len() < n; i++ {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(vocab[i%len(vocab)])
	}
	return b.String()[:n]
}

type fixture struct {
	db     *gorm.DB
	index  *vectorindex.Store
	ingest *IngestionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newSvcDB(t)
	idx := newIndex(t)
	return &fixture{
		db:    db,
		index: idx,
		ingest: &IngestionService{
			DB:             db,
			Chunker:        chunker.New(),
			Index:          idx,
			MaxUploadBytes: 1 << 20,
		},
	}
}

func (f *fixture) upload(t *testing.T, userID, name, text string) *UploadResult {
	t.Helper()
	res, err := f.ingest.Upload(context.Background(), userID, name, []byte(text))
	if err != nil {
		t.Fatalf("Upload(%s): %v", name, err)
	}
	return res
}

func countRows(t *testing.T, db *gorm.DB, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if where != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// ---------- fakes ----------

// recordingGen records requests and answers with reply (or err).
type recordingGen struct {
	mu    sync.Mutex
	reqs  []llm.Request
	reply string
	err   error
	block bool // wait for ctx to expire
}

func (g *recordingGen) Generate(ctx context.Context, req llm.Request) (string, error) {
	g.mu.Lock()
	g.reqs = append(g.reqs, req)
	g.mu.Unlock()
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return g.reply, g.err
}

func (g *recordingGen) Name() string { return "recording" }

func (g *recordingGen) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.reqs)
}

func (g *recordingGen) last() llm.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.reqs[len(g.reqs)-1]
}

func registryWith(g llm.Generator) *llm.Registry {
	r := llm.NewRegistry("gpt-4o-mini")
	for _, name := range []string{"gpt-4o", "gpt-4o-mini", "llama3.1", "llama3.2"} {
		r.Register(name, g)
	}
	return r
}

// indexStub forwards to a real store unless an error is injected.
type indexStub struct {
	*vectorindex.Store
	addErr    error
	deleteErr error
	extraHits []vectorindex.Hit
	// duringMaintain runs inside the maintenance window, before fn.
	duringMaintain func()
}

func (s *indexStub) Maintain(ctx context.Context, fn func(context.Context) error) error {
	return s.Store.Maintain(ctx, func(ctx context.Context) error {
		if s.duringMaintain != nil {
			s.duringMaintain()
		}
		return fn(ctx)
	})
}

func (s *indexStub) AddChunks(ctx context.Context, documentID, userID string, chunks []vectorindex.ChunkInput) (vectorindex.AddResult, error) {
	if s.addErr != nil {
		return vectorindex.AddResult{TotalBatches: 1}, s.addErr
	}
	return s.Store.AddChunks(ctx, documentID, userID, chunks)
}

func (s *indexStub) DeleteWhere(ctx context.Context, documentID, userID string) (int64, error) {
	if s.deleteErr != nil {
		return 0, s.deleteErr
	}
	return s.Store.DeleteWhere(ctx, documentID, userID)
}

func (s *indexStub) Search(ctx context.Context, query, userID string, k, mult int) ([]vectorindex.Hit, error) {
	hits, err := s.Store.Search(ctx, query, userID, k, mult)
	return append(hits, s.extraHits...), err
}

// failingBackend rejects every upsert.
type failingBackend struct {
	*vectorindex.Memory
}

func (failingBackend) Upsert(context.Context, []vectorindex.Record) error {
	return fmt.Errorf("upstream embedding store rejected the batch")
}
