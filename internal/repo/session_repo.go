// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the ChatSession
// model.
//
// Session ids are client-chosen tokens and the primary key, so two concurrent
// first turns for the same id converge on one row: GetOrCreateSession inserts
// with ON CONFLICT DO NOTHING and reads the row back.
//
// Error semantics:
//   - Missing sessions and sessions owned by another user both surface as
//     ErrNotFound.
//   - Other DB errors are propagated unchanged.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

// GetOrCreateSession returns the session id owned by userID, creating it with
// model and name when absent. If the id already belongs to a different user,
// ErrNotFound is returned. created reports whether this call inserted the row.
func GetOrCreateSession(ctx context.Context, db *gorm.DB, id, userID, model, name string) (s *domain.ChatSession, created bool, err error) {
	now := time.Now().UTC()
	row := &domain.ChatSession{
		ID:          id,
		UserID:      userID,
		ModelName:   model,
		DisplayName: name,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(row)
	if res.Error != nil {
		return nil, false, res.Error
	}
	s, err = GetSession(ctx, db, id, userID)
	if err != nil {
		return nil, false, err
	}
	return s, res.RowsAffected == 1, nil
}

// GetSession fetches a session by id and owner.
func GetSession(ctx context.Context, db *gorm.DB, id, userID string) (*domain.ChatSession, error) {
	var s domain.ChatSession
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SessionTaken reports whether a session with id exists for any user.
func SessionTaken(ctx context.Context, db *gorm.DB, id string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", id).
		Count(&n).Error
	return n > 0, err
}

// CountSessions returns the number of sessions owned by userID.
func CountSessions(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListSessionsPage returns a page of userID's sessions, most recently active
// first.
func ListSessionsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.ChatSession, error) {
	var out []domain.ChatSession
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at desc, id asc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateSessionName renames a session owned by userID. No matching row
// yields ErrNotFound.
func UpdateSessionName(ctx context.Context, db *gorm.DB, id, userID, name string) error {
	res := db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ? AND user_id = ?", id, userID).
		Updates(map[string]any{"display_name": name, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TouchSession bumps updated_at so the session sorts as recently active.
func TouchSession(ctx context.Context, db *gorm.DB, id string, at time.Time) error {
	return db.WithContext(ctx).
		Model(&domain.ChatSession{}).
		Where("id = ?", id).
		Update("updated_at", at).Error
}

// DeleteSession removes a session owned by userID with its messages and
// highlights in one transaction.
func DeleteSession(ctx context.Context, db *gorm.DB, id, userID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&domain.ChatSession{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("session_id = ?", id).Delete(&domain.Highlight{}).Error; err != nil {
			return err
		}
		if err := tx.Where("session_id = ?", id).Delete(&domain.ChatMessage{}).Error; err != nil {
			return err
		}
		return tx.Where("session_id = ?", id).Delete(&domain.Idempotency{}).Error
	})
}
