// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

// latest returns the row count of q and the greatest value of column.
// It orders and limits instead of MAX() because SQLite returns MAX of a
// DATETIME column as TEXT.
func latest(q *gorm.DB, column string) (count int64, max *time.Time, err error) {
	if err = q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}
	var row struct {
		At time.Time
	}
	if err = q.Session(&gorm.Session{}).Select(column + " AS at").Order(column + " DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.At, nil
}

// SessionsStats returns the number of userID's sessions and their latest
// updated_at, or nil when there are none.
func SessionsStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error) {
	return latest(db.WithContext(ctx).Model(&domain.ChatSession{}).Where("user_id = ?", userID), "updated_at")
}

// MessagesStats returns the number of messages in a session and the latest
// created_at (messages are never updated).
func MessagesStats(ctx context.Context, db *gorm.DB, sessionID string) (int64, *time.Time, error) {
	return latest(db.WithContext(ctx).Model(&domain.ChatMessage{}).Where("session_id = ?", sessionID), "created_at")
}

// DocumentsStats returns the number of userID's documents and the latest
// updated_at.
func DocumentsStats(ctx context.Context, db *gorm.DB, userID string) (int64, *time.Time, error) {
	return latest(db.WithContext(ctx).Model(&domain.Document{}).Where("user_id = ?", userID), "updated_at")
}
