package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-rag-backend/internal/domain"
	"github.com/tbourn/go-rag-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// AdminService runs operator-level maintenance.
type AdminService struct {
	DB      *gorm.DB
	Index   VectorIndex
	IsAdmin func(userID string) bool
}

// ClearAll wipes every document, chunk, session, message, highlight and
// vector while keeping user accounts. Both stores are cleared inside one
// index maintenance window, so no upload can land between them. A
// relational failure after the index reset is reported as a consistency
// error.
func (s *AdminService) ClearAll(ctx context.Context, callerID string) error {
	tr := otel.Tracer("services/AdminService")
	ctx, span := tr.Start(ctx, "ClearAll",
		trace.WithAttributes(attribute.String("user.id", callerID)),
	)
	defer span.End()

	if s.IsAdmin == nil || !s.IsAdmin(callerID) {
		return ErrNotAdmin
	}
	var relErr error
	err := s.Index.Maintain(ctx, func(ctx context.Context) error {
		relErr = repo.ClearAllExceptUsers(ctx, s.DB)
		return relErr
	})
	if relErr != nil {
		consistencyErrors.WithLabelValues("clear_all").Inc()
		loggerFrom(ctx).Error().Err(relErr).
			Str("user_id", callerID).
			Str("stage", "clear_all").
			Msg("vector index was reset but relational tables were not cleared")
		return errors.Join(fmt.Errorf("%w: relational clear failed after index reset", domain.ErrConsistency), relErr)
	}
	if err != nil {
		return err
	}
	loggerFrom(ctx).Warn().Str("user_id", callerID).Msg("all data cleared")
	return nil
}

// PurgeExpired deletes expired tokens and idempotency records.
func (s *AdminService) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	tokens, err := repo.PurgeExpiredTokens(ctx, s.DB, now)
	if err != nil {
		return 0, err
	}
	idem, err := repo.PurgeExpiredIdempotency(ctx, s.DB, now)
	return tokens + idem, err
}
