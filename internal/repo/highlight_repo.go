package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

// CreateHighlights inserts the citations of one answer.
func CreateHighlights(ctx context.Context, db *gorm.DB, hs []domain.Highlight) error {
	if len(hs) == 0 {
		return nil
	}
	return db.WithContext(ctx).Create(&hs).Error
}

// ListHighlightsByDocument returns highlights on a document owned by userID,
// ordered by page then creation.
func ListHighlightsByDocument(ctx context.Context, db *gorm.DB, documentID, userID string) ([]domain.Highlight, error) {
	var out []domain.Highlight
	err := db.WithContext(ctx).
		Joins("JOIN documents ON documents.id = highlights.document_id").
		Where("highlights.document_id = ? AND documents.user_id = ?", documentID, userID).
		Order("highlights.page_number ASC, highlights.created_at ASC, highlights.id ASC").
		Find(&out).Error
	return out, err
}

// ListHighlightsByIDs returns the highlights among ids that belong to
// sessions owned by userID. Unknown ids are skipped.
func ListHighlightsByIDs(ctx context.Context, db *gorm.DB, userID string, ids []string) ([]domain.Highlight, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []domain.Highlight
	err := db.WithContext(ctx).
		Joins("JOIN chat_sessions ON chat_sessions.id = highlights.session_id").
		Where("chat_sessions.user_id = ? AND highlights.id IN ?", userID, ids).
		Order("highlights.created_at ASC, highlights.id ASC").
		Find(&out).Error
	return out, err
}

// ListHighlightsByMessages groups the surviving highlights of the given
// messages by message id.
func ListHighlightsByMessages(ctx context.Context, db *gorm.DB, messageIDs []string) (map[string][]domain.Highlight, error) {
	out := make(map[string][]domain.Highlight, len(messageIDs))
	if len(messageIDs) == 0 {
		return out, nil
	}
	var rows []domain.Highlight
	err := db.WithContext(ctx).
		Where("message_id IN ?", messageIDs).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, h := range rows {
		out[h.MessageID] = append(out[h.MessageID], h)
	}
	return out, nil
}

// UpdateHighlightAnnotation sets comment and emoji on a highlight whose
// session belongs to userID. No matching row yields ErrNotFound.
func UpdateHighlightAnnotation(ctx context.Context, db *gorm.DB, id, userID, comment, emoji string) (*domain.Highlight, error) {
	var h domain.Highlight
	err := db.WithContext(ctx).
		Joins("JOIN chat_sessions ON chat_sessions.id = highlights.session_id").
		Where("highlights.id = ? AND chat_sessions.user_id = ?", id, userID).
		First(&h).Error
	if err != nil {
		return nil, err
	}
	h.Comment = comment
	h.Emoji = emoji
	h.UpdatedAt = time.Now().UTC()
	err = db.WithContext(ctx).
		Model(&domain.Highlight{}).
		Where("id = ?", id).
		Updates(map[string]any{"comment": comment, "emoji": emoji, "updated_at": h.UpdatedAt}).Error
	if err != nil {
		return nil, err
	}
	return &h, nil
}
