package vectorindex

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

// Metadata is the fixed tag set stored with every vector.
type Metadata struct {
	DocumentID string
	UserID     string
	PageNumber int
	BBox       domain.Rect
}

// NewMetadata validates and builds a Metadata value. A page number of zero
// defaults to 1.
func NewMetadata(documentID, userID string, page int, bbox domain.Rect) (Metadata, error) {
	if strings.TrimSpace(documentID) == "" {
		return Metadata{}, fmt.Errorf("%w: document id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(userID) == "" {
		return Metadata{}, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if page == 0 {
		page = 1
	}
	if page < 0 {
		return Metadata{}, fmt.Errorf("%w: page number %d is negative", domain.ErrValidation, page)
	}
	for _, f := range []float64{bbox.X1, bbox.Y1, bbox.X2, bbox.Y2, bbox.Width, bbox.Height} {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Metadata{}, fmt.Errorf("%w: bounding box is not finite", domain.ErrValidation)
		}
	}
	return Metadata{DocumentID: documentID, UserID: userID, PageNumber: page, BBox: bbox}, nil
}

// Record is one stored vector.
type Record struct {
	ID     string
	Text   string
	Vector []float32
	Meta   Metadata
}

// Match is a backend query result. Score is the cosine similarity.
type Match struct {
	Record
	Score float64
}

// Filter restricts an operation to vectors matching every non-empty field.
type Filter struct {
	DocumentID string
	UserID     string
}

// Matches reports whether m satisfies every set predicate.
func (f Filter) Matches(m Metadata) bool {
	if f.DocumentID != "" && m.DocumentID != f.DocumentID {
		return false
	}
	if f.UserID != "" && m.UserID != f.UserID {
		return false
	}
	return true
}

// Backend is a vector storage engine. Implementations must apply every
// predicate of a Filter together (logical AND).
type Backend interface {
	Init(ctx context.Context, dim int) error
	Upsert(ctx context.Context, recs []Record) error
	Query(ctx context.Context, vec []float32, k int, f Filter) ([]Match, error)
	Delete(ctx context.Context, f Filter) (int64, error)
	Count(ctx context.Context, f Filter) (int64, error)
	Drop(ctx context.Context) error
	Close() error
}

// ChunkInput is one chunk handed to AddChunks. ID becomes the vector id.
type ChunkInput struct {
	ID         string
	Text       string
	PageNumber int
	BBox       domain.Rect
}

// AddResult reports batch progress of AddChunks, including on failure.
type AddResult struct {
	TotalBatches int
	Committed    []int // zero-based indexes of batches that were stored
}

// Hit is one search result.
type Hit struct {
	ID       string
	Text     string
	Score    float64 // cosine similarity
	Lexical  float64 // query/text token overlap
	Metadata Metadata
}
