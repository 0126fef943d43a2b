// Package app assembles the application from configuration: the SQLite
// metadata store, the vector index, the model registry and the services on
// top of them. The HTTP server and the command line share it.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/tbourn/go-rag-backend/internal/chunker"
	"github.com/tbourn/go-rag-backend/internal/config"
	"github.com/tbourn/go-rag-backend/internal/domain"
	"github.com/tbourn/go-rag-backend/internal/embedding"
	"github.com/tbourn/go-rag-backend/internal/llm"
	"github.com/tbourn/go-rag-backend/internal/repo"
	"github.com/tbourn/go-rag-backend/internal/search"
	"github.com/tbourn/go-rag-backend/internal/services"
	"github.com/tbourn/go-rag-backend/internal/vectorindex"
)

// compensationTimeout bounds upload rollbacks.
const compensationTimeout = 30 * time.Second

// App holds the wired services.
type App struct {
	Config config.Config
	DB     *gorm.DB
	Index  *vectorindex.Store
	Models *llm.Registry

	Auth       *services.AuthService
	Ingestion  *services.IngestionService
	Documents  *services.DocumentService
	Highlights *services.HighlightService
	Answers    *services.AnswerService
	Sessions   *services.SessionService
	Admin      *services.AdminService
}

// Open connects every store named by cfg, migrates the schema and wires the
// services. Close releases what Open acquired.
func Open(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", cfg.DBPath, err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		closeDB(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}

	emb, err := embedding.FromConfig(cfg.Embedding, cfg.LLM)
	if err != nil {
		closeDB(db)
		return nil, err
	}
	backend, err := openBackend(ctx, cfg.Index)
	if err != nil {
		closeDB(db)
		return nil, err
	}
	index := vectorindex.New(backend, emb,
		vectorindex.WithBatchSize(cfg.Index.BatchSize),
		vectorindex.WithEmbedTimeout(cfg.Timeouts.Embed),
		vectorindex.WithReranker(search.NewReranker(
			search.WithLexicalWeight(cfg.Index.LexicalWeight),
			search.WithStopwords(cfg.Index.Stopwords),
		)),
	)
	if err := index.Open(ctx); err != nil {
		_ = index.Close()
		closeDB(db)
		return nil, err
	}

	models, err := llm.FromConfig(cfg.LLM)
	if err != nil {
		_ = index.Close()
		closeDB(db)
		return nil, err
	}

	a, err := New(cfg, db, index, models)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	log.Info().
		Str("db", cfg.DBPath).
		Str("index", cfg.Index.Backend).
		Str("embedder", emb.Name()).
		Strs("models", models.Names()).
		Msg("application ready")
	return a, nil
}

func openBackend(ctx context.Context, cfg config.IndexConfig) (vectorindex.Backend, error) {
	switch cfg.Backend {
	case "memory", "":
		return vectorindex.NewMemory(), nil
	case "pgvector":
		return vectorindex.NewPGVector(ctx, cfg.PGVectorDSN, cfg.PGVectorTable)
	default:
		return nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
	}
}

// New wires the services over already opened stores. The returned App is
// usable even when err is non-nil so the caller can Close it.
func New(cfg config.Config, db *gorm.DB, index *vectorindex.Store, models *llm.Registry) (*App, error) {
	a := &App{Config: cfg, DB: db, Index: index, Models: models}

	chunks := chunker.New(
		chunker.WithChunkSize(cfg.Ingest.ChunkSize),
		chunker.WithOverlap(cfg.Ingest.ChunkOverlap),
		chunker.WithOCR(chunker.ExecRunner{}, cfg.Ingest.OCRCommand, cfg.Ingest.OCRLanguages),
	)
	a.Ingestion = &services.IngestionService{
		DB:                  db,
		Chunker:             chunks,
		Index:               index,
		MaxUploadBytes:      cfg.Ingest.MaxUploadBytes,
		ParseTimeout:        cfg.Timeouts.Parse,
		Mode:                cfg.Ingest.Mode,
		GenerateTimeout:     cfg.Timeouts.Generate,
		CompensationTimeout: compensationTimeout,
	}
	if cfg.Ingest.Mode == services.IngestModeSummarize {
		_, gen, err := models.Resolve("")
		if err != nil {
			return a, fmt.Errorf("summarize mode needs the default model: %w", err)
		}
		a.Ingestion.Summarizer = gen
	}

	a.Auth = services.NewAuthService(db, cfg.Auth.TokenTTL, cfg.Auth.BcryptCost)
	a.Documents = &services.DocumentService{DB: db}
	a.Highlights = &services.HighlightService{DB: db}
	a.Sessions = services.NewSessionService(db, sessionRepoShim{})
	a.Answers = &services.AnswerService{
		DB:               db,
		Index:            index,
		Models:           models,
		SystemPrompt:     cfg.LLM.SystemPrompt,
		HistoryTurns:     cfg.LLM.HistoryTurns,
		TopK:             cfg.Index.TopK,
		FetchMultiplier:  cfg.Index.FetchMultiplier,
		GenerateTimeout:  cfg.Timeouts.Generate,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		MaxQuestionRunes: cfg.LLM.MaxQuestionRunes,
		Contextualize:    true,
		TitleLocale:      language.English,
		TitleMaxLen:      60,
	}
	a.Admin = &services.AdminService{DB: db, Index: index, IsAdmin: cfg.Auth.IsAdmin}
	return a, nil
}

// Rehydrate re-embeds every stored chunk into an empty index. The in-memory
// backend starts empty on each boot while SQLite keeps the chunks; a
// persistent backend that already holds vectors is left alone.
func (a *App) Rehydrate(ctx context.Context) (int, error) {
	n, err := a.Index.Count(ctx, vectorindex.Filter{})
	if err != nil || n > 0 {
		return 0, err
	}
	docs, err := repo.ListDocumentRefs(ctx, a.DB)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, d := range docs {
		rows, err := repo.ListChunks(ctx, a.DB, d.ID)
		if err != nil {
			return total, err
		}
		in := make([]vectorindex.ChunkInput, len(rows))
		for i, c := range rows {
			in[i] = vectorindex.ChunkInput{
				ID:         c.ID,
				Text:       c.Text,
				PageNumber: c.PageNumber,
				BBox:       domain.Rect{X1: c.X1, Y1: c.Y1, X2: c.X2, Y2: c.Y2, Width: c.Width, Height: c.Height},
			}
		}
		if _, err := a.Index.AddChunks(ctx, d.ID, d.UserID, in); err != nil {
			return total, fmt.Errorf("rehydrate %s: %w", d.Filename, err)
		}
		total += len(rows)
	}
	if total > 0 {
		log.Info().Int("documents", len(docs)).Int("chunks", total).Msg("index rehydrated")
	}
	return total, nil
}

// Close releases the index and the database.
func (a *App) Close() error {
	var errs []error
	if a.Index != nil {
		errs = append(errs, a.Index.Close())
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
