package services

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-rag-backend/internal/domain"
	"github.com/tbourn/go-rag-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DocumentService serves read access to a user's documents and the
// highlights placed on them. Uploads and deletions live in IngestionService.
type DocumentService struct {
	DB *gorm.DB
}

// ListPage returns a page of the user's documents, newest first, without
// their bytes.
func (s *DocumentService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Document, int64, error) {
	tr := otel.Tracer("services/DocumentService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	page, pageSize = normalizePage(page, pageSize)
	total, err := repo.CountDocuments(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Document{}, 0, nil
	}
	items, err := repo.ListDocumentsPage(ctx, s.DB, userID, (page-1)*pageSize, pageSize)
	return items, total, err
}

// Stats returns the document count and latest update for ETag computation.
func (s *DocumentService) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.DocumentsStats(ctx, s.DB, userID)
}

// Get returns a document with its bytes.
func (s *DocumentService) Get(ctx context.Context, userID, documentID string) (*domain.Document, error) {
	d, err := repo.GetDocument(ctx, s.DB, documentID, userID)
	if err != nil {
		return nil, notFound(err, ErrDocumentNotFound)
	}
	return d, nil
}

// Highlights returns every highlight placed on a document.
func (s *DocumentService) Highlights(ctx context.Context, userID, documentID string) ([]domain.Highlight, error) {
	tr := otel.Tracer("services/DocumentService")
	ctx, span := tr.Start(ctx, "Highlights",
		trace.WithAttributes(attribute.String("document.id", documentID)),
	)
	defer span.End()

	if _, err := s.Get(ctx, userID, documentID); err != nil {
		return nil, err
	}
	hs, err := repo.ListHighlightsByDocument(ctx, s.DB, documentID, userID)
	if err != nil {
		return nil, err
	}
	if hs == nil {
		hs = []domain.Highlight{}
	}
	return hs, nil
}

// HighlightsByIDs returns the document and those of the given highlights
// that lie on it. Ids of other documents or other users are ignored.
func (s *DocumentService) HighlightsByIDs(ctx context.Context, userID, documentID string, ids []string) (*domain.Document, []domain.Highlight, error) {
	doc, err := s.Get(ctx, userID, documentID)
	if err != nil {
		return nil, nil, err
	}
	hs, err := repo.ListHighlightsByIDs(ctx, s.DB, userID, ids)
	if err != nil {
		return nil, nil, err
	}
	out := make([]domain.Highlight, 0, len(hs))
	for _, h := range hs {
		if h.DocumentID == documentID {
			out = append(out, h)
		}
	}
	return doc, out, nil
}
