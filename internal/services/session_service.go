// Package services – SessionService
//
// This file implements the SessionService, which manages chat sessions after
// they were opened by the answering engine: listing them with their turns and
// citations, renaming and deleting. Titles are normalized and clipped here;
// automatic titling happens in AnswerService on the first question.
//
// A cited document that was deleted later is reported per message under
// UnavailableDocuments; the stored answer text is never touched.
package services

import (
	"context"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/tbourn/go-rag-backend/internal/domain"
	"github.com/tbourn/go-rag-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SessionRepo defines the repository contract required by SessionService.
type SessionRepo interface {
	// GetSession fetches a session by ID ensuring it belongs to the user.
	GetSession(ctx context.Context, db *gorm.DB, id, userID string) (*domain.ChatSession, error)

	// UpdateSessionName renames a session (only if it belongs to the user).
	UpdateSessionName(ctx context.Context, db *gorm.DB, id, userID, name string) error

	// CountSessions returns the total number of sessions for pagination.
	CountSessions(ctx context.Context, db *gorm.DB, userID string) (int64, error)

	// ListSessionsPage returns a page of sessions belonging to the user.
	ListSessionsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.ChatSession, error)

	// DeleteSession removes a session with its messages and highlights.
	DeleteSession(ctx context.Context, db *gorm.DB, id, userID string) error
}

// MessageView is one turn with its citations.
type MessageView struct {
	ID        string              `json:"id"`
	Question  string              `json:"question"`
	Answer    string              `json:"answer"`
	Model     string              `json:"model"`
	CreatedAt time.Time           `json:"created_at"`
	Documents map[string][]string `json:"documents"` // document id → highlight ids
	// UnavailableDocuments lists cited documents that have since been deleted.
	UnavailableDocuments []domain.CitedDocument `json:"unavailable_documents"`
}

// SessionView is a session with its turns in chronological order.
type SessionView struct {
	domain.ChatSession
	Messages []MessageView `json:"messages"`
}

// SessionService provides session-level operations.
type SessionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the session repository used by this service.
	Repo SessionRepo

	// TitleMaxLen caps stored names by rune length.
	TitleMaxLen int
}

// NewSessionService constructs a SessionService with sane defaults.
func NewSessionService(db *gorm.DB, r SessionRepo) *SessionService {
	return &SessionService{DB: db, Repo: r, TitleMaxLen: 60}
}

// ListPage returns a page of the user's sessions with nested messages.
// It applies defaults for invalid page/pageSize and returns total count.
func (s *SessionService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]SessionView, int64, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	page, pageSize = normalizePage(page, pageSize)
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountSessions(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []SessionView{}, 0, nil
	}

	items, err := s.Repo.ListSessionsPage(ctx, s.DB, userID, offset, pageSize)
	if err != nil {
		return nil, 0, err
	}
	out := make([]SessionView, len(items))
	for i, sess := range items {
		msgs, err := repo.ListMessages(ctx, s.DB, sess.ID, 0)
		if err != nil {
			return nil, 0, err
		}
		views, err := s.messageViews(ctx, userID, msgs)
		if err != nil {
			return nil, 0, err
		}
		out[i] = SessionView{ChatSession: sess, Messages: views}
	}
	return out, total, nil
}

// MessagesPage returns a page of one session's turns with citations.
func (s *SessionService) MessagesPage(ctx context.Context, userID, sessionID string, page, pageSize int) ([]MessageView, int64, error) {
	tr := otel.Tracer("services/SessionService")
	ctx, span := tr.Start(ctx, "MessagesPage",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	page, pageSize = normalizePage(page, pageSize)
	offset := (page - 1) * pageSize

	// Ensure the session exists and belongs to the user
	if _, err := s.Repo.GetSession(ctx, s.DB, sessionID, userID); err != nil {
		return nil, 0, notFound(err, ErrSessionNotFound)
	}

	total, err := repo.CountMessages(ctx, s.DB, sessionID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []MessageView{}, 0, nil
	}
	msgs, err := repo.ListMessagesPage(ctx, s.DB, sessionID, offset, pageSize)
	if err != nil {
		return nil, 0, err
	}
	views, err := s.messageViews(ctx, userID, msgs)
	return views, total, err
}

// messageViews attaches the surviving highlights and the unavailable
// documents to each message.
func (s *SessionService) messageViews(ctx context.Context, userID string, msgs []domain.ChatMessage) ([]MessageView, error) {
	if len(msgs) == 0 {
		return []MessageView{}, nil
	}
	ids := make([]string, len(msgs))
	var cited []string
	for i, m := range msgs {
		ids[i] = m.ID
		for _, c := range m.CitedDocuments {
			cited = append(cited, c.DocumentID)
		}
	}
	byMsg, err := repo.ListHighlightsByMessages(ctx, s.DB, ids)
	if err != nil {
		return nil, err
	}
	live, err := repo.ExistingDocuments(ctx, s.DB, userID, cited)
	if err != nil {
		return nil, err
	}

	out := make([]MessageView, len(msgs))
	for i, m := range msgs {
		v := MessageView{
			ID:                   m.ID,
			Question:             m.Question,
			Answer:               m.Answer,
			Model:                m.ModelName,
			CreatedAt:            m.CreatedAt,
			Documents:            citationMap(byMsg[m.ID]),
			UnavailableDocuments: []domain.CitedDocument{},
		}
		for _, c := range m.CitedDocuments {
			if _, ok := live[c.DocumentID]; !ok {
				v.UnavailableDocuments = append(v.UnavailableDocuments, c)
			}
		}
		out[i] = v
	}
	return out, nil
}

// Rename updates a session's display name, ensuring the session exists and
// belongs to the given user. Falls back to "Untitled" if name is blank.
func (s *SessionService) Rename(ctx context.Context, userID, sessionID, name string) error {
	name = normalizeTitle(name)
	if name == "" {
		name = defaultTitleUntitled
	}
	if _, err := s.Repo.GetSession(ctx, s.DB, sessionID, userID); err != nil {
		return notFound(err, ErrSessionNotFound)
	}
	return notFound(s.Repo.UpdateSessionName(ctx, s.DB, sessionID, userID, s.clip(name)), ErrSessionNotFound)
}

// Delete removes a session with its messages and highlights.
func (s *SessionService) Delete(ctx context.Context, userID, sessionID string) error {
	return notFound(s.Repo.DeleteSession(ctx, s.DB, sessionID, userID), ErrSessionNotFound)
}

// Stats returns the session count and latest update for ETag computation.
func (s *SessionService) Stats(ctx context.Context, userID string) (int64, *time.Time, error) {
	return repo.SessionsStats(ctx, s.DB, userID)
}

// clip truncates a session name to the configured maximum rune length.
func (s *SessionService) clip(title string) string {
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return string([]rune(title)[:s.TitleMaxLen])
	}
	return title
}

// normalizePage applies the default page (1) and page size (20).
func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	return page, pageSize
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
