// Package services holds the application use-cases: ingestion, answering,
// sessions, documents, highlights, accounts and administration.
//
// Service errors wrap the domain error kinds so handlers can map them with
// domain.KindOf while callers can still match the specific sentinel.
package services

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-rag-backend/internal/domain"
	"github.com/tbourn/go-rag-backend/internal/repo"
)

var (
	// ErrSessionNotFound indicates that the session does not exist or is
	// owned by another user.
	ErrSessionNotFound = fmt.Errorf("%w: session not found", domain.ErrNotFound)

	// ErrDocumentNotFound indicates that the document does not exist or is
	// owned by another user.
	ErrDocumentNotFound = fmt.Errorf("%w: document not found", domain.ErrNotFound)

	// ErrHighlightNotFound indicates that the highlight does not exist or
	// belongs to another user's session.
	ErrHighlightNotFound = fmt.Errorf("%w: highlight not found", domain.ErrNotFound)

	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = fmt.Errorf("%w: question is empty", domain.ErrValidation)

	// ErrTooLong is returned when a question exceeds the configured limit.
	ErrTooLong = fmt.Errorf("%w: question too long", domain.ErrValidation)

	// ErrMissingUser is returned when no user id reached the service.
	ErrMissingUser = fmt.Errorf("%w: user id is required", domain.ErrValidation)

	// ErrUnsupportedFileType is returned when the upload's extension is not
	// on the allow-list.
	ErrUnsupportedFileType = fmt.Errorf("%w: file type is not accepted", domain.ErrUnsupportedFormat)

	// ErrFileTooLarge is returned when an upload exceeds the size limit.
	ErrFileTooLarge = fmt.Errorf("%w: file too large", domain.ErrValidation)

	// ErrInvalidCredentials is returned for any failed login.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", domain.ErrUnauthorized)

	// ErrEmailTaken is returned when registering an email twice.
	ErrEmailTaken = fmt.Errorf("%w: email already registered", domain.ErrConflict)

	// ErrNotAdmin is returned when a non-admin calls an admin operation.
	ErrNotAdmin = fmt.Errorf("%w: administrator privileges required", domain.ErrAuthorization)
)

// notFound maps the repository not-found sentinel to target and passes
// every other error through.
func notFound(err, target error) error {
	if errors.Is(err, repo.ErrNotFound) {
		return target
	}
	return err
}
