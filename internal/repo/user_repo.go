package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

// CreateUser inserts a new user. A taken email yields ErrDuplicate.
func CreateUser(ctx context.Context, db *gorm.DB, email, passwordHash string) (*domain.User, error) {
	now := time.Now().UTC()
	u := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return u, nil
}

// GetUser fetches a user by id.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail fetches a user by (normalized) email.
func GetUserByEmail(ctx context.Context, db *gorm.DB, email string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdatePasswordHash replaces the stored hash. It returns ErrNotFound when no
// user has that email.
func UpdatePasswordHash(ctx context.Context, db *gorm.DB, email, hash string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("email = ?", email).
		Updates(map[string]any{"password_hash": hash, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateToken issues an opaque bearer token for userID valid for ttl.
func CreateToken(ctx context.Context, db *gorm.DB, userID string, ttl time.Duration) (*domain.AuthToken, error) {
	now := time.Now().UTC()
	tok := &domain.AuthToken{
		Token:     uuid.NewString(),
		UserID:    userID,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := db.WithContext(ctx).Create(tok).Error; err != nil {
		return nil, err
	}
	return tok, nil
}

// GetValidToken returns a non-expired token or ErrNotFound.
func GetValidToken(ctx context.Context, db *gorm.DB, token string, now time.Time) (*domain.AuthToken, error) {
	var tok domain.AuthToken
	err := db.WithContext(ctx).
		Where("token = ? AND expires_at > ?", token, now).
		First(&tok).Error
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// DeleteUserTokens revokes every token of userID (used on password reset).
func DeleteUserTokens(ctx context.Context, db *gorm.DB, userID string) error {
	return db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.AuthToken{}).Error
}

// PurgeExpiredTokens removes tokens that expired before now.
func PurgeExpiredTokens(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	res := db.WithContext(ctx).Where("expires_at <= ?", now).Delete(&domain.AuthToken{})
	return res.RowsAffected, res.Error
}
