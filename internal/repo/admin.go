package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

// ClearAllExceptUsers deletes every document, chunk, session, message, highlight and
// idempotency record in one transaction. Users and their tokens survive.
func ClearAllExceptUsers(ctx context.Context, db *gorm.DB) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range []any{
			&domain.Highlight{},
			&domain.Idempotency{},
			&domain.ChatMessage{},
			&domain.ChatSession{},
			&domain.Chunk{},
			&domain.Document{},
		} {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
