// Package services – HighlightService
//
// This file implements the HighlightService, which lets users annotate the
// highlights created for their answers. It enforces ownership (through the
// session that produced the highlight) and input limits.
package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-rag-backend/internal/domain"
	"github.com/tbourn/go-rag-backend/internal/repo"
)

const (
	maxCommentRunes = 2000
	maxEmojiBytes   = 16
)

// HighlightService implements the use-cases around highlight annotations.
type HighlightService struct {
	// DB is the database handle used for all highlight operations.
	DB *gorm.DB
}

// Annotate sets the comment and emoji of highlightID on behalf of userID.
//
// Semantics and validation:
//   - comment is trimmed and capped at 2000 runes; emoji at 16 bytes.
//   - The highlight must belong to a session owned by userID; otherwise
//     ErrHighlightNotFound (foreign highlights look exactly like missing ones).
//
// The lookup and the update run in one transaction.
func (s *HighlightService) Annotate(ctx context.Context, userID, highlightID, comment, emoji string) (*domain.Highlight, error) {
	comment = strings.TrimSpace(comment)
	emoji = strings.TrimSpace(emoji)
	if utf8.RuneCountInString(comment) > maxCommentRunes {
		return nil, fmt.Errorf("%w: comment exceeds %d characters", domain.ErrValidation, maxCommentRunes)
	}
	if len(emoji) > maxEmojiBytes {
		return nil, fmt.Errorf("%w: emoji exceeds %d bytes", domain.ErrValidation, maxEmojiBytes)
	}

	var out *domain.Highlight
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		h, err := repo.UpdateHighlightAnnotation(ctx, tx, highlightID, userID, comment, emoji)
		if err != nil {
			return notFound(err, ErrHighlightNotFound)
		}
		out = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
