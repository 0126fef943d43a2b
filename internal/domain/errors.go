package domain

import "errors"

// Error kinds shared by every layer. Lower layers wrap them with
// fmt.Errorf("%w: ...", domain.ErrX) and the HTTP layer maps them to status
// codes through KindOf.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrAuthorization     = errors.New("forbidden")
	ErrConflict          = errors.New("conflict")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrExtraction        = errors.New("extraction failure")
	ErrEmptyDocument     = errors.New("document contains no extractable text")
	ErrIndexing          = errors.New("indexing failure")
	ErrGeneration        = errors.New("generation failure")
	ErrConsistency       = errors.New("consistency error")
	ErrTimeout           = errors.New("timeout")
	ErrUnavailable       = errors.New("temporarily unavailable")
)

// Stable kind identifiers returned to clients.
const (
	KindValidation        = "validation_error"
	KindNotFound          = "not_found"
	KindUnauthorized      = "unauthorized"
	KindUnsupportedFormat = "unsupported_format"
	KindExtraction        = "extraction_failure"
	KindEmptyDocument     = "empty_document"
	KindIndexing          = "indexing_failure"
	KindGeneration        = "generation_failure"
	KindConsistency       = "consistency_error"
	KindTimeout           = "timeout"
	KindUnavailable       = "unavailable"
	KindConflict          = "conflict"
	KindInternal          = "internal_error"
)

// kindOrder is checked top to bottom; the first match wins. Timeout comes
// first so callers can tell "try again" from "this input is bad". Ownership
// mismatches are reported exactly like missing resources.
var kindOrder = []struct {
	err  error
	kind string
}{
	{ErrTimeout, KindTimeout},
	{ErrUnavailable, KindUnavailable},
	{ErrConsistency, KindConsistency},
	{ErrUnsupportedFormat, KindUnsupportedFormat},
	{ErrEmptyDocument, KindEmptyDocument},
	{ErrExtraction, KindExtraction},
	{ErrIndexing, KindIndexing},
	{ErrGeneration, KindGeneration},
	{ErrAuthorization, KindNotFound},
	{ErrNotFound, KindNotFound},
	{ErrUnauthorized, KindUnauthorized},
	{ErrConflict, KindConflict},
	{ErrValidation, KindValidation},
}

// KindOf returns the stable error kind for err, or KindInternal when err does
// not wrap any known kind.
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kindOrder {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
