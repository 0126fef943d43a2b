package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tbourn/go-rag-backend/internal/domain"
	"github.com/tbourn/go-rag-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	minPasswordRunes = 8
	maxPasswordBytes = 72 // bcrypt input limit
)

// AuthService manages accounts and opaque bearer tokens.
type AuthService struct {
	DB         *gorm.DB
	TokenTTL   time.Duration
	BcryptCost int

	// dummyHash is compared against when the email is unknown so that both
	// failure paths cost one bcrypt comparison.
	dummyHash []byte
}

// NewAuthService constructs an AuthService.
func NewAuthService(db *gorm.DB, ttl time.Duration, cost int) *AuthService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), cost)
	return &AuthService{DB: db, TokenTTL: ttl, BcryptCost: cost, dummyHash: dummy}
}

// Register creates an account. Emails are compared case-insensitively.
func (s *AuthService) Register(ctx context.Context, email, password string) (*domain.User, error) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "Register")
	defer span.End()

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	hash, err := s.hash(password)
	if err != nil {
		return nil, err
	}
	u, err := repo.CreateUser(ctx, s.DB, email, hash)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return u, nil
}

// Login verifies the credentials and issues a bearer token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.AuthToken, error) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "Login")
	defer span.End()

	u, err := s.verify(ctx, email, password)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return repo.CreateToken(ctx, s.DB, u.ID, s.TokenTTL)
}

// Authenticate resolves a bearer token to its user id.
func (s *AuthService) Authenticate(ctx context.Context, token string) (string, error) {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "Authenticate", trace.WithSpanKind(trace.SpanKindInternal))
	defer span.End()

	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: missing bearer token", domain.ErrUnauthorized)
	}
	t, err := repo.GetValidToken(ctx, s.DB, token, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return "", fmt.Errorf("%w: invalid or expired token", domain.ErrUnauthorized)
	}
	if err != nil {
		return "", err
	}
	return t.UserID, nil
}

// ResetPassword replaces the password after checking the current one and
// revokes every token of the account.
func (s *AuthService) ResetPassword(ctx context.Context, email, currentPassword, newPassword string) error {
	tr := otel.Tracer("services/AuthService")
	ctx, span := tr.Start(ctx, "ResetPassword")
	defer span.End()

	u, err := s.verify(ctx, email, currentPassword)
	if err != nil {
		return err
	}
	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.UpdatePasswordHash(ctx, tx, u.Email, hash); err != nil {
			return err
		}
		return repo.DeleteUserTokens(ctx, tx, u.ID)
	})
}

// Logout revokes every token of userID.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return repo.DeleteUserTokens(ctx, s.DB, userID)
}

func (s *AuthService) verify(ctx context.Context, email, password string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := repo.GetUserByEmail(ctx, s.DB, email)
	if errors.Is(err, repo.ErrNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

func (s *AuthService) hash(password string) (string, error) {
	if utf8.RuneCountInString(password) < minPasswordRunes {
		return "", fmt.Errorf("%w: password must have at least %d characters", domain.ErrValidation, minPasswordRunes)
	}
	if len(password) > maxPasswordBytes {
		return "", fmt.Errorf("%w: password must not exceed %d bytes", domain.ErrValidation, maxPasswordBytes)
	}
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.BcryptCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: invalid email address", domain.ErrValidation)
	}
	return email, nil
}
