// Package repo – documents and chunks.
//
// CreateDocument records a document together with its chunks in a single
// transaction (the "Recorded" ingestion state). DeleteDocument is the
// all-or-nothing teardown of the relational side: ownership check, chunks,
// highlights, document row.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

// NewDocument carries what the ingestion service knows before insert.
type NewDocument struct {
	UserID      string
	Filename    string
	ContentType string
	Content     []byte
}

// NewChunk is one fragment to persist with its document.
type NewChunk struct {
	PageNumber int
	Text       string
	BBox       domain.Rect
}

// CreateDocument inserts the document row and its chunk rows atomically and
// returns both with their assigned ids.
func CreateDocument(ctx context.Context, db *gorm.DB, in NewDocument, chunks []NewChunk) (*domain.Document, []domain.Chunk, error) {
	now := time.Now().UTC()
	doc := &domain.Document{
		ID:          uuid.NewString(),
		UserID:      in.UserID,
		Filename:    in.Filename,
		ContentType: in.ContentType,
		SizeBytes:   int64(len(in.Content)),
		Content:     in.Content,
		ChunkCount:  len(chunks),
		UploadedAt:  now,
		UpdatedAt:   now,
	}
	rows := make([]domain.Chunk, len(chunks))
	for i, c := range chunks {
		rows[i] = domain.Chunk{
			ID:         uuid.NewString(),
			DocumentID: doc.ID,
			Seq:        i,
			PageNumber: c.PageNumber,
			Text:       c.Text,
			X1:         c.BBox.X1,
			Y1:         c.BBox.Y1,
			X2:         c.BBox.X2,
			Y2:         c.BBox.Y2,
			Width:      c.BBox.Width,
			Height:     c.BBox.Height,
			CreatedAt:  now,
		}
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(doc).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, 500).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return doc, rows, nil
}

// GetDocument fetches a document owned by userID (including its bytes).
// Missing and foreign documents both yield ErrNotFound.
func GetDocument(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Document, error) {
	var d domain.Document
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ExistingDocuments returns the subset of ids that still exist for userID,
// keyed by id, without loading document bytes.
func ExistingDocuments(ctx context.Context, db *gorm.DB, userID string, ids []string) (map[string]domain.Document, error) {
	out := make(map[string]domain.Document, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var docs []domain.Document
	err := db.WithContext(ctx).
		Select("id", "user_id", "filename", "content_type", "chunk_count", "uploaded_at").
		Where("user_id = ? AND id IN ?", userID, ids).
		Find(&docs).Error
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		out[d.ID] = d
	}
	return out, nil
}

// CountDocuments returns the number of documents owned by userID.
func CountDocuments(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Document{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListDocumentsPage returns a page of userID's documents, newest first,
// without their bytes.
func ListDocumentsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Document, error) {
	var out []domain.Document
	err := db.WithContext(ctx).
		Omit("content").
		Where("user_id = ?", userID).
		Order("uploaded_at desc, id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// DeleteDocument removes a document owned by userID together with its chunks
// and highlights in one transaction. It returns ErrNotFound when the document
// is missing or owned by someone else; nothing is deleted in that case.
func DeleteDocument(ctx context.Context, db *gorm.DB, id, userID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&domain.Document{}).
			Where("id = ? AND user_id = ?", id, userID).
			Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
		if err := tx.Where("document_id = ?", id).Delete(&domain.Highlight{}).Error; err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", id).Delete(&domain.Chunk{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ? AND user_id = ?", id, userID).Delete(&domain.Document{}).Error
	})
}

// DeleteDocumentByID removes a document row regardless of owner. It is the
// compensating action of a failed upload and relies on cascades for chunks.
func DeleteDocumentByID(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Document{}).Error
}

// ListChunks returns a document's chunks in sequence order.
func ListChunks(ctx context.Context, db *gorm.DB, documentID string) ([]domain.Chunk, error) {
	var out []domain.Chunk
	err := db.WithContext(ctx).
		Where("document_id = ?", documentID).
		Order("seq asc").
		Find(&out).Error
	return out, err
}

// CountChunks returns the number of chunk rows for a document.
func CountChunks(ctx context.Context, db *gorm.DB, documentID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Chunk{}).Where("document_id = ?", documentID).Count(&n).Error
	return n, err
}

// ListDocumentRefs returns id and owner of every document, oldest first,
// without loading contents. It drives the index rebuild at startup.
func ListDocumentRefs(ctx context.Context, db *gorm.DB) ([]domain.Document, error) {
	var out []domain.Document
	err := db.WithContext(ctx).
		Select("id", "user_id", "filename").
		Order("uploaded_at asc").
		Find(&out).Error
	return out, err
}
