// Package handlers defines the HTTP error codes of the public API and the
// mapping from domain error kinds to status codes.
//
// Every error response carries one stable code. Domain failures use the kind
// returned by domain.KindOf; the remaining codes cover transport problems the
// services never see.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "unsupported_format",
//	  "message": "unsupported format: file type is not accepted"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeNotFound         = domain.KindNotFound
	ErrCodeInternal         = domain.KindInternal
	ErrCodeTooLarge         = "payload_too_large"
	ErrCodeMethodNotAllowed = "method_not_allowed"
)

// kindStatus maps domain error kinds to HTTP status codes.
var kindStatus = map[string]int{
	domain.KindValidation:        http.StatusBadRequest,
	domain.KindNotFound:          http.StatusNotFound,
	domain.KindUnauthorized:      http.StatusUnauthorized,
	domain.KindConflict:          http.StatusConflict,
	domain.KindUnsupportedFormat: http.StatusUnsupportedMediaType,
	domain.KindExtraction:        http.StatusUnprocessableEntity,
	domain.KindEmptyDocument:     http.StatusUnprocessableEntity,
	domain.KindIndexing:          http.StatusBadGateway,
	domain.KindGeneration:        http.StatusBadGateway,
	domain.KindTimeout:           http.StatusGatewayTimeout,
	domain.KindUnavailable:       http.StatusServiceUnavailable,
	domain.KindConsistency:       http.StatusInternalServerError,
	domain.KindInternal:          http.StatusInternalServerError,
}

// serverMessages replaces err.Error() for 5xx kinds so internals never reach
// the client.
var serverMessages = map[string]string{
	domain.KindIndexing:    "the vector index failed",
	domain.KindGeneration:  "the language model failed to answer",
	domain.KindTimeout:     "the operation timed out",
	domain.KindUnavailable: "the service is temporarily unavailable, retry shortly",
	domain.KindConsistency: "stores may be inconsistent; the incident was logged",
	domain.KindInternal:    "internal server error",
}

// classify returns status, code and client message for err.
func classify(err error) (int, string, string) {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "request body too large"
	}
	kind := domain.KindOf(err)
	status, ok := kindStatus[kind]
	if !ok {
		status, kind = http.StatusInternalServerError, domain.KindInternal
	}
	if msg, ok := serverMessages[kind]; ok {
		return status, kind, msg
	}
	return status, kind, err.Error()
}
