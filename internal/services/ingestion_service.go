// Package services – IngestionService
//
// Upload moves a file through Received → Parsed → Recorded → Indexed →
// Committed. The document row is written before the vectors so every vector
// can be tagged with its document id; if indexing fails the row is removed
// again (compensation). Delete runs the other way round: vectors first, then
// the relational rows, because a row pointing at nothing is harmless while a
// vector pointing at nothing silently pollutes retrieval.
package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-rag-backend/internal/chunker"
	"github.com/tbourn/go-rag-backend/internal/domain"
	"github.com/tbourn/go-rag-backend/internal/llm"
	"github.com/tbourn/go-rag-backend/internal/repo"
	"github.com/tbourn/go-rag-backend/internal/vectorindex"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Ingestion modes.
const (
	IngestModeDirect    = "direct"
	IngestModeSummarize = "summarize"
)

// DocumentChunker is the chunking engine contract used by ingestion.
type DocumentChunker interface {
	Chunk(ctx context.Context, data []byte, declaredType string) ([]chunker.Fragment, error)
	Extract(ctx context.Context, data []byte, t chunker.Type) ([]chunker.Segment, error)
	Split(segs []chunker.Segment) []chunker.Fragment
}

// VectorIndex is the index contract used by ingestion, answering and admin.
type VectorIndex interface {
	AddChunks(ctx context.Context, documentID, userID string, chunks []vectorindex.ChunkInput) (vectorindex.AddResult, error)
	Search(ctx context.Context, query, userID string, k, fetchMultiplier int) ([]vectorindex.Hit, error)
	DeleteWhere(ctx context.Context, documentID, userID string) (int64, error)
	Hold(ctx context.Context) (context.Context, func(), error)
	Maintain(ctx context.Context, fn func(context.Context) error) error
}

// UploadResult is returned once a document is committed.
type UploadResult struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	ChunkCount int    `json:"chunk_count"`
}

// IngestionService orchestrates uploads and deletions across the metadata
// store and the vector index.
type IngestionService struct {
	DB      *gorm.DB
	Chunker DocumentChunker
	Index   VectorIndex

	MaxUploadBytes int64
	ParseTimeout   time.Duration

	// Mode is IngestModeDirect (default) or IngestModeSummarize. The latter
	// replaces each page's text by a Summarizer summary before splitting.
	Mode            string
	Summarizer      llm.Generator
	GenerateTimeout time.Duration

	// CompensationTimeout bounds the rollback, which runs even when the
	// request context is already cancelled.
	CompensationTimeout time.Duration
}

// Upload ingests one file for userID.
//
// Errors:
//   - ErrUnsupportedFileType: extension not on the allow-list.
//   - ErrFileTooLarge: data exceeds MaxUploadBytes.
//   - domain.ErrExtraction / ErrEmptyDocument / ErrUnsupportedFormat from parsing.
//   - domain.ErrIndexing (possibly with ErrTimeout) after a successful rollback.
//   - domain.ErrConsistency joined with the indexing error when the rollback failed.
func (s *IngestionService) Upload(ctx context.Context, userID, filename string, data []byte) (res *UploadResult, err error) {
	tr := otel.Tracer("services/IngestionService")
	ctx, span := tr.Start(ctx, "Upload",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("file.name", filename),
			attribute.Int("file.size", len(data)),
		),
	)
	defer span.End()

	start := time.Now()
	outcome := "rejected"
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		documentsIngested.WithLabelValues(outcome).Inc()
		ingestDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	// Received
	if strings.TrimSpace(userID) == "" {
		return nil, ErrMissingUser
	}
	filename = filepath.Base(strings.TrimSpace(filename))
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	t, ok := chunker.NormalizeType(ext)
	if !ok || filename == "." || filename == "/" {
		return nil, fmt.Errorf("%w: %q (accepted: %s)", ErrUnsupportedFileType, filename, strings.Join(chunker.Supported(), ", "))
	}
	if s.MaxUploadBytes > 0 && int64(len(data)) > s.MaxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrFileTooLarge, len(data), s.MaxUploadBytes)
	}

	// Parsed
	frags, err := s.parse(ctx, data, t)
	if err != nil {
		return nil, err
	}

	// Recorded and indexed under one hold so an admin clear cannot land
	// between the two stores.
	ctx, release, err := s.Index.Hold(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	rows := make([]repo.NewChunk, len(frags))
	for i, f := range frags {
		rows[i] = repo.NewChunk{PageNumber: f.Page, Text: f.Text, BBox: f.BBox}
	}
	doc, chunks, err := repo.CreateDocument(ctx, s.DB, repo.NewDocument{
		UserID:      userID,
		Filename:    filename,
		ContentType: string(t),
		Content:     data,
	}, rows)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("document.id", doc.ID), attribute.Int("chunk.count", len(chunks)))

	// Indexed
	inputs := make([]vectorindex.ChunkInput, len(chunks))
	for i, c := range chunks {
		inputs[i] = vectorindex.ChunkInput{
			ID:         c.ID,
			Text:       c.Text,
			PageNumber: c.PageNumber,
			BBox:       domain.Rect{X1: c.X1, Y1: c.Y1, X2: c.X2, Y2: c.Y2, Width: c.Width, Height: c.Height},
		}
	}
	added, err := s.Index.AddChunks(ctx, doc.ID, userID, inputs)
	if err != nil {
		outcome = "rolled_back"
		loggerFrom(ctx).Warn().Err(err).
			Str("document_id", doc.ID).
			Int("batches_total", added.TotalBatches).
			Ints("batches_committed", added.Committed).
			Msg("indexing failed, rolling back upload")
		if cerr := s.compensate(ctx, doc.ID, userID); cerr != nil {
			return nil, errors.Join(err, cerr)
		}
		return nil, err
	}

	// Committed
	outcome = "committed"
	chunksIndexed.Add(float64(len(chunks)))
	loggerFrom(ctx).Info().
		Str("document_id", doc.ID).
		Str("filename", filename).
		Int("chunks", len(chunks)).
		Msg("document ingested")
	return &UploadResult{DocumentID: doc.ID, Filename: filename, ChunkCount: len(chunks)}, nil
}

// parse runs the chunking engine under the parse timeout.
func (s *IngestionService) parse(ctx context.Context, data []byte, t chunker.Type) ([]chunker.Fragment, error) {
	pctx, cancel := withTimeout(ctx, s.ParseTimeout)
	defer cancel()

	if s.Mode != IngestModeSummarize {
		return s.Chunker.Chunk(pctx, data, string(t))
	}

	segs, err := s.Chunker.Extract(pctx, data, t)
	if err != nil {
		return nil, err
	}
	segs, err = s.summarize(ctx, segs)
	if err != nil {
		return nil, err
	}
	frags := s.Chunker.Split(segs)
	if len(frags) == 0 {
		return nil, domain.ErrEmptyDocument
	}
	return frags, nil
}

// summarize replaces every page by one summary segment.
func (s *IngestionService) summarize(ctx context.Context, segs []chunker.Segment) ([]chunker.Segment, error) {
	if s.Summarizer == nil {
		return nil, fmt.Errorf("%w: summarize mode needs a summarizer model", domain.ErrGeneration)
	}
	pages := map[int][]string{}
	for _, sg := range segs {
		pages[sg.Page] = append(pages[sg.Page], sg.Text)
	}
	order := make([]int, 0, len(pages))
	for p := range pages {
		order = append(order, p)
	}
	sort.Ints(order)

	out := make([]chunker.Segment, 0, len(order))
	for _, p := range order {
		gctx, cancel := withTimeout(ctx, s.GenerateTimeout)
		sum, err := s.Summarizer.Generate(gctx, llm.Request{
			System: llm.SummarizePrompt,
			Prompt: strings.Join(pages[p], "\n"),
		})
		cancel()
		if err != nil {
			return nil, generationErr(gctx, err)
		}
		if sum = strings.TrimSpace(sum); sum != "" {
			out = append(out, chunker.Segment{Text: sum, Page: p})
		}
	}
	return out, nil
}

// compensate removes whatever the failed upload left behind. A failure here
// breaks the two-store invariant and is reported as a consistency error.
func (s *IngestionService) compensate(ctx context.Context, documentID, userID string) error {
	cctx, cancel := withTimeout(context.WithoutCancel(ctx), s.CompensationTimeout)
	defer cancel()

	if _, err := s.Index.DeleteWhere(cctx, documentID, userID); err != nil {
		return s.inconsistent(ctx, documentID, userID, "delete_vectors", err)
	}
	if err := repo.DeleteDocumentByID(cctx, s.DB, documentID); err != nil {
		return s.inconsistent(ctx, documentID, userID, "delete_document", err)
	}
	return nil
}

func (s *IngestionService) inconsistent(ctx context.Context, documentID, userID, stage string, err error) error {
	consistencyErrors.WithLabelValues(stage).Inc()
	loggerFrom(ctx).Error().Err(err).
		Str("document_id", documentID).
		Str("user_id", userID).
		Str("stage", stage).
		Msg("compensation failed: metadata store and vector index disagree")
	return fmt.Errorf("%w: %s for document %s: %w", domain.ErrConsistency, stage, documentID, err)
}

// Delete removes a document owned by userID: vectors first, then rows. If
// the vector deletion fails nothing relational is touched.
func (s *IngestionService) Delete(ctx context.Context, userID, documentID string) error {
	tr := otel.Tracer("services/IngestionService")
	ctx, span := tr.Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("document.id", documentID),
		),
	)
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return ErrMissingUser
	}
	if _, err := repo.GetDocument(ctx, s.DB, documentID, userID); err != nil {
		return notFound(err, ErrDocumentNotFound)
	}
	n, err := s.Index.DeleteWhere(ctx, documentID, userID)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if err := repo.DeleteDocument(ctx, s.DB, documentID, userID); err != nil {
		return notFound(err, ErrDocumentNotFound)
	}
	loggerFrom(ctx).Info().Str("document_id", documentID).Int64("vectors", n).Msg("document deleted")
	return nil
}

// withTimeout applies d when positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// generationErr classifies a model failure.
func generationErr(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w: %w", domain.ErrTimeout, domain.ErrGeneration, err)
	}
	return fmt.Errorf("%w: %w", domain.ErrGeneration, err)
}
