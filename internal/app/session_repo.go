package app

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-rag-backend/internal/domain"
	"github.com/tbourn/go-rag-backend/internal/repo"
)

// sessionRepoShim adapts the repository free functions to the
// services.SessionRepo interface expected by the SessionService.
type sessionRepoShim struct{}

// GetSession proxies repo.GetSession.
func (sessionRepoShim) GetSession(ctx context.Context, db *gorm.DB, id, userID string) (*domain.ChatSession, error) {
	return repo.GetSession(ctx, db, id, userID)
}

// UpdateSessionName proxies repo.UpdateSessionName.
func (sessionRepoShim) UpdateSessionName(ctx context.Context, db *gorm.DB, id, userID, name string) error {
	return repo.UpdateSessionName(ctx, db, id, userID, name)
}

// CountSessions proxies repo.CountSessions (pagination support).
func (sessionRepoShim) CountSessions(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	return repo.CountSessions(ctx, db, userID)
}

// ListSessionsPage proxies repo.ListSessionsPage (pagination support).
func (sessionRepoShim) ListSessionsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.ChatSession, error) {
	return repo.ListSessionsPage(ctx, db, userID, offset, limit)
}

// DeleteSession proxies repo.DeleteSession.
func (sessionRepoShim) DeleteSession(ctx context.Context, db *gorm.DB, id, userID string) error {
	return repo.DeleteSession(ctx, db, id, userID)
}
