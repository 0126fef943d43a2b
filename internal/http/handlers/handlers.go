// Package handlers exposes the REST endpoints of the assistant. Handlers are
// transport-thin: they bind and validate input, call the application
// services through the interfaces below and translate results (and error
// kinds) into HTTP responses.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-rag-backend/internal/domain"
	"github.com/tbourn/go-rag-backend/internal/http/middleware"
	"github.com/tbourn/go-rag-backend/internal/services"
	"github.com/tbourn/go-rag-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// AuthService manages accounts and bearer tokens.
type AuthService interface {
	Register(ctx context.Context, email, password string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (*domain.AuthToken, error)
	ResetPassword(ctx context.Context, email, currentPassword, newPassword string) error
	Logout(ctx context.Context, userID string) error
}

// IngestionService turns uploads into indexed documents and removes them.
type IngestionService interface {
	Upload(ctx context.Context, userID, filename string, data []byte) (*services.UploadResult, error)
	Delete(ctx context.Context, userID, documentID string) error
}

// DocumentService reads documents and their highlights.
type DocumentService interface {
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Document, int64, error)
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
	Get(ctx context.Context, userID, documentID string) (*domain.Document, error)
	Highlights(ctx context.Context, userID, documentID string) ([]domain.Highlight, error)
	HighlightsByIDs(ctx context.Context, userID, documentID string, ids []string) (*domain.Document, []domain.Highlight, error)
}

// HighlightService edits highlight annotations.
type HighlightService interface {
	Annotate(ctx context.Context, userID, highlightID, comment, emoji string) (*domain.Highlight, error)
}

// AnswerService answers questions against the user's documents.
type AnswerService interface {
	Answer(ctx context.Context, in services.AskInput) (*services.AnswerResult, error)
}

// SessionService lists and manages chat sessions.
type SessionService interface {
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]services.SessionView, int64, error)
	MessagesPage(ctx context.Context, userID, sessionID string, page, pageSize int) ([]services.MessageView, int64, error)
	Rename(ctx context.Context, userID, sessionID, name string) error
	Delete(ctx context.Context, userID, sessionID string) error
	Stats(ctx context.Context, userID string) (int64, *time.Time, error)
}

// AdminService runs maintenance operations.
type AdminService interface {
	ClearAll(ctx context.Context, callerID string) error
}

//
// Handler wiring
//

// Deps lists the services the handlers depend on.
type Deps struct {
	Auth       AuthService
	Ingestion  IngestionService
	Documents  DocumentService
	Highlights HighlightService
	Answers    AnswerService
	Sessions   SessionService
	Admin      AdminService
}

// Handlers groups every HTTP endpoint of the API.
type Handlers struct {
	auth       AuthService
	ingest     IngestionService
	docs       DocumentService
	highlights HighlightService
	answers    AnswerService
	sessions   SessionService
	admin      AdminService
}

// New constructs Handlers bound to d.
func New(d Deps) *Handlers {
	return &Handlers{
		auth:       d.Auth,
		ingest:     d.Ingestion,
		docs:       d.Documents,
		highlights: d.Highlights,
		answers:    d.Answers,
		sessions:   d.Sessions,
		admin:      d.Admin,
	}
}

//
// Shared DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func pagination(page, pageSize int, total int64) Pagination {
	pages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: pages,
		HasNext:    page < pages,
	}
}

//
// Helpers
//

func clampPagination(c *gin.Context) (page, pageSize int) {
	return utils.ClampPage(c.Query("page"), c.Query("page_size"))
}

// notModified sets a weak ETag derived from a collection's size and latest
// change and reports whether If-None-Match already matches it (after writing
// the 304). Stats failures skip the ETag.
func notModified(c *gin.Context, scope string, stats func(context.Context, string) (int64, *time.Time, error)) bool {
	uid := middleware.UserID(c)
	count, maxTS, err := stats(c.Request.Context(), uid)
	if err != nil {
		return false
	}
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%s:%d:%d"`, scope, uid, count, ts)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}
