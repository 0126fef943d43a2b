// Package services – AnswerService
//
// AnswerService runs one retrieval-augmented turn: resolve the session, load
// recent history, retrieve the user's own chunks, generate, then persist the
// message and its highlights in one transaction. A failed generation
// persists nothing; a cited document that vanished meanwhile only loses its
// citation.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// session and user identifiers.
package services

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-rag-backend/internal/config"
	"github.com/tbourn/go-rag-backend/internal/domain"
	"github.com/tbourn/go-rag-backend/internal/llm"
	"github.com/tbourn/go-rag-backend/internal/repo"
	"github.com/tbourn/go-rag-backend/internal/vectorindex"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultHighlightEmoji marks highlights created by the answering engine.
const DefaultHighlightEmoji = "💡"

// ModelResolver maps a model name to its generator.
type ModelResolver interface {
	Resolve(name string) (string, llm.Generator, error)
}

// AskInput is one question.
type AskInput struct {
	UserID      string
	SessionID   string // empty starts a new session
	Question    string
	Model       string // empty selects the default model
	SessionName string // used when the session is created
	// IdempotencyKey replays the stored answer for a retried request.
	IdempotencyKey string
}

// AnswerResult is the outcome of one question.
type AnswerResult struct {
	SessionID   string              `json:"session_id"`
	SessionName string              `json:"name"`
	MessageID   string              `json:"message_id"`
	Answer      string              `json:"answer"`
	Model       string              `json:"model"`
	Documents   map[string][]string `json:"documents"` // document id → highlight ids
	Highlights  []domain.Highlight  `json:"highlights"`
	Replayed    bool                `json:"replayed"`
}

// AnswerService coordinates retrieval, generation and persistence.
type AnswerService struct {
	DB     *gorm.DB
	Index  VectorIndex
	Models ModelResolver

	SystemPrompt    string
	HistoryTurns    int
	TopK            int
	FetchMultiplier int
	GenerateTimeout time.Duration
	IdempotencyTTL  time.Duration

	// Optional guards
	MaxQuestionRunes int

	// Contextualize rewrites follow-up questions into standalone ones
	// before retrieval.
	Contextualize bool

	// Title generation config
	TitleLocale language.Tag
	TitleMaxLen int
}

// Answer answers in.Question for in.UserID.
//
// Errors:
//   - ErrEmptyQuestion / ErrTooLong / ErrMissingUser / unknown model: domain.ErrValidation.
//   - ErrSessionNotFound: the session id belongs to another user.
//   - domain.ErrIndexing / ErrUnavailable: retrieval failed.
//   - domain.ErrGeneration (with ErrTimeout on deadline): the model failed.
func (s *AnswerService) Answer(ctx context.Context, in AskInput) (res *AnswerResult, err error) {
	tr := otel.Tracer("services/AnswerService")
	ctx, span := tr.Start(ctx, "Answer",
		trace.WithAttributes(
			attribute.String("session.id", in.SessionID),
			attribute.String("user.id", in.UserID),
			attribute.String("model", in.Model),
		),
	)
	defer span.End()

	outcome := "rejected"
	model := strings.ToLower(strings.TrimSpace(in.Model))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		label := model
		if !config.IsSupportedModel(label) {
			label = "unknown"
		}
		answers.WithLabelValues(label, outcome).Inc()
	}()

	// Normalize & validate
	if strings.TrimSpace(in.UserID) == "" {
		return nil, ErrMissingUser
	}
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	if s.MaxQuestionRunes > 0 && utf8.RuneCountInString(question) > s.MaxQuestionRunes {
		return nil, ErrTooLong
	}
	model, gen, err := s.Models.Resolve(model)
	if err != nil {
		return nil, err
	}
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	// Replay a completed request
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
		if rec, gerr := repo.GetIdempotency(ctx, s.DB, in.UserID, sessionID, key, time.Now().UTC()); gerr == nil {
			if out, rerr := s.replay(ctx, in.UserID, sessionID, rec.MessageID); rerr == nil {
				outcome = "replayed"
				return out, nil
			}
		}
	}

	// 1) Session; a new one is only written together with its first message
	sess, err := s.session(ctx, sessionID, in.UserID, model, in.SessionName)
	if err != nil {
		return nil, err
	}

	// 2) History
	prior, err := repo.ListRecentMessages(ctx, s.DB, sessionID, s.HistoryTurns)
	if err != nil {
		return nil, err
	}
	history := make([]llm.Turn, len(prior))
	for i, m := range prior {
		history[i] = llm.Turn{Question: m.Question, Answer: m.Answer}
	}

	// 3) Retrieval, strictly scoped to the caller
	query := s.standalone(ctx, gen, history, question)
	hits, err := s.Index.Search(ctx, query, in.UserID, s.TopK, s.FetchMultiplier)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("retrieval.hits", len(hits)))

	// 4) Generation
	passages := make([]string, len(hits))
	for i, h := range hits {
		passages[i] = h.Text
	}
	gctx, cancel := withTimeout(ctx, s.GenerateTimeout)
	answer, err := gen.Generate(gctx, llm.Request{
		System:  s.SystemPrompt,
		History: history,
		Prompt:  llm.BuildPrompt(question, passages),
	})
	if err == nil && strings.TrimSpace(answer) == "" {
		err = llm.ErrEmptyCompletion
	}
	if err != nil {
		err = generationErr(gctx, err)
		cancel()
		outcome = "generation_failed"
		return nil, err
	}
	cancel()
	answer = strings.TrimSpace(answer)

	// 5) + 6) Citations and persistence
	msg, hs, err := s.persist(ctx, sess, in.UserID, question, answer, model, hits)
	if err != nil {
		return nil, err
	}

	if key := strings.TrimSpace(in.IdempotencyKey); key != "" && s.IdempotencyTTL > 0 {
		if _, ierr := repo.CreateIdempotency(ctx, s.DB, in.UserID, sessionID, key, msg.ID, http.StatusCreated, s.IdempotencyTTL); ierr != nil && !errors.Is(ierr, repo.ErrDuplicate) {
			loggerFrom(ctx).Warn().Err(ierr).Str("session_id", sessionID).Msg("idempotency record not stored")
		}
	}

	outcome = "answered"
	return &AnswerResult{
		SessionID:   sessionID,
		SessionName: sess.DisplayName,
		MessageID:   msg.ID,
		Answer:      answer,
		Model:       model,
		Documents:   citationMap(hs),
		Highlights:  hs,
	}, nil
}

// session loads sessionID for userID or, when the id is free, returns an
// unsaved session for persist to create.
func (s *AnswerService) session(ctx context.Context, sessionID, userID, model, name string) (*domain.ChatSession, error) {
	sess, err := repo.GetSession(ctx, s.DB, sessionID, userID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	taken, err := repo.SessionTaken(ctx, s.DB, sessionID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrSessionNotFound
	}
	name = normalizeTitle(name)
	if name == "" {
		name = defaultTitleNew
	}
	return &domain.ChatSession{ID: sessionID, UserID: userID, ModelName: model, DisplayName: s.clipTitle(name)}, nil
}

// standalone rewrites a follow-up question for retrieval. Any failure falls
// back to the question as asked.
func (s *AnswerService) standalone(ctx context.Context, gen llm.Generator, history []llm.Turn, question string) string {
	if !s.Contextualize || len(history) == 0 {
		return question
	}
	gctx, cancel := withTimeout(ctx, s.GenerateTimeout)
	defer cancel()
	q, err := gen.Generate(gctx, llm.Request{System: llm.ContextualizePrompt, History: history, Prompt: question})
	if err != nil || strings.TrimSpace(q) == "" {
		loggerFrom(ctx).Warn().Err(err).Msg("question rewrite failed, retrieving with the original question")
		return question
	}
	return strings.TrimSpace(q)
}

// persist writes the session (when new), the message, its highlights and
// the session bookkeeping in one transaction. Hits whose document no longer
// exists are dropped; if a document disappears between the check and the
// insert, the check is rerun once.
func (s *AnswerService) persist(ctx context.Context, sess *domain.ChatSession, userID, question, answer, model string, hits []vectorindex.Hit) (*domain.ChatMessage, []domain.Highlight, error) {
	var (
		msg *domain.ChatMessage
		hs  []domain.Highlight
		err error
	)
	for attempt := 0; attempt < 2; attempt++ {
		var docs map[string]domain.Document
		docs, err = repo.ExistingDocuments(ctx, s.DB, userID, citedDocumentIDs(hits))
		if err != nil {
			return nil, nil, err
		}
		kept := make([]vectorindex.Hit, 0, len(hits))
		for _, h := range hits {
			if _, ok := docs[h.Metadata.DocumentID]; !ok {
				loggerFrom(ctx).Warn().
					Str("session_id", sess.ID).
					Str("document_id", h.Metadata.DocumentID).
					Str("chunk_id", h.ID).
					Msg("cited document no longer exists, dropping citation")
				continue
			}
			kept = append(kept, h)
		}

		cur := *sess
		err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if cur.CreatedAt.IsZero() {
				created, _, err := repo.GetOrCreateSession(ctx, tx, cur.ID, userID, cur.ModelName, cur.DisplayName)
				if err != nil {
					return notFound(err, ErrSessionNotFound)
				}
				cur = *created
			}
			m, err := repo.CreateMessage(ctx, tx, cur.ID, question, answer, model, citedSnapshot(kept, docs))
			if err != nil {
				return err
			}
			rows := buildHighlights(cur.ID, m.ID, kept, docs)
			if err := repo.CreateHighlights(ctx, tx, rows); err != nil {
				return err
			}
			if err := repo.TouchSession(ctx, tx, cur.ID, m.CreatedAt); err != nil {
				return err
			}
			// Auto-title if placeholder
			if shouldAutoTitle(cur.DisplayName) {
				if gen := s.generateTitleFromPrompt(question); gen != "" {
					gen = s.clipTitle(gen)
					if uerr := tx.Model(&domain.ChatSession{}).Where("id = ?", cur.ID).Update("display_name", gen).Error; uerr == nil {
						cur.DisplayName = gen
					}
				}
			}
			msg, hs = m, rows
			return nil
		})
		if err == nil {
			*sess = cur
			break
		}
		if !isForeignKeyViolation(err) {
			break
		}
	}
	if err != nil {
		return nil, nil, err
	}
	return msg, hs, nil
}

// replay rebuilds the result of an earlier request from stored rows.
func (s *AnswerService) replay(ctx context.Context, userID, sessionID, messageID string) (*AnswerResult, error) {
	sess, err := repo.GetSession(ctx, s.DB, sessionID, userID)
	if err != nil {
		return nil, err
	}
	msg, err := repo.GetMessage(ctx, s.DB, messageID)
	if err != nil {
		return nil, err
	}
	byMsg, err := repo.ListHighlightsByMessages(ctx, s.DB, []string{messageID})
	if err != nil {
		return nil, err
	}
	hs := byMsg[messageID]
	return &AnswerResult{
		SessionID:   sess.ID,
		SessionName: sess.DisplayName,
		MessageID:   msg.ID,
		Answer:      msg.Answer,
		Model:       msg.ModelName,
		Documents:   citationMap(hs),
		Highlights:  hs,
		Replayed:    true,
	}, nil
}

func citedDocumentIDs(hits []vectorindex.Hit) []string {
	seen := map[string]struct{}{}
	var ids []string
	for _, h := range hits {
		id := h.Metadata.DocumentID
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func citedSnapshot(hits []vectorindex.Hit, docs map[string]domain.Document) []domain.CitedDocument {
	var out []domain.CitedDocument
	for _, id := range citedDocumentIDs(hits) {
		out = append(out, domain.CitedDocument{DocumentID: id, Filename: docs[id].Filename})
	}
	return out
}

func buildHighlights(sessionID, messageID string, hits []vectorindex.Hit, docs map[string]domain.Document) []domain.Highlight {
	now := time.Now().UTC()
	out := make([]domain.Highlight, 0, len(hits))
	for _, h := range hits {
		box := h.Metadata.BBox
		out = append(out, domain.Highlight{
			ID:         uuid.NewString(),
			SessionID:  sessionID,
			MessageID:  messageID,
			DocumentID: h.Metadata.DocumentID,
			ChunkID:    h.ID,
			Content:    strings.TrimSpace(h.Text),
			Position: datatypes.NewJSONType(domain.Position{
				BoundingRect: box,
				Rects:        []domain.Rect{box},
				PageNumber:   h.Metadata.PageNumber,
			}),
			PageNumber: h.Metadata.PageNumber,
			Comment:    domain.DefaultHighlightComment,
			Emoji:      DefaultHighlightEmoji,
			Filename:   docs[h.Metadata.DocumentID].Filename,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}
	return out
}

// citationMap groups highlight ids by document id.
func citationMap(hs []domain.Highlight) map[string][]string {
	out := make(map[string][]string)
	for _, h := range hs {
		out[h.DocumentID] = append(out[h.DocumentID], h.ID)
	}
	return out
}

func isForeignKeyViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "foreign key constraint") || strings.Contains(msg, "violates foreign key")
}

// --- Title generation helpers ---

const (
	// default titles we consider “placeholder” and eligible for auto-generation
	defaultTitleNew      = "New chat"
	defaultTitleUntitled = "Untitled"
)

// shouldAutoTitle reports whether the current title is a placeholder.
func shouldAutoTitle(current string) bool {
	t := strings.TrimSpace(strings.ToLower(current))
	return t == "" || t == strings.ToLower(defaultTitleNew) || t == strings.ToLower(defaultTitleUntitled)
}

// generateTitleFromPrompt derives a concise title from the question.
func (s *AnswerService) generateTitleFromPrompt(prompt string) string {
	toks := titleWordRE.FindAllString(strings.ToLower(strings.TrimSpace(prompt)), -1)
	if len(toks) == 0 {
		return ""
	}

	titleCaser := cases.Title(s.titleLocaleOrDefault())
	out := make([]string, 0, 8)
	for _, w := range toks {
		if _, skip := titleStopWords[w]; skip {
			continue
		}
		out = append(out, titleCaser.String(w))
		if len(out) >= 8 {
			break
		}
	}
	return strings.Join(out, " ")
}

// clipTitle truncates a title to the configured maximum rune length.
func (s *AnswerService) clipTitle(title string) string {
	max := s.TitleMaxLen
	if max <= 0 {
		max = 60
	}
	if utf8.RuneCountInString(title) > max {
		return string([]rune(title)[:max])
	}
	return title
}

func (s *AnswerService) titleLocaleOrDefault() language.Tag {
	if s.TitleLocale == language.Und {
		return language.English
	}
	return s.TitleLocale
}

// Extract Unicode letters with optional trailing numbers (e.g., "q3").
var titleWordRE = regexp.MustCompile(`[\p{L}]+[\p{N}]*`)

// Minimal English stop-words set for compact titles.
var titleStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {}, "to": {}, "in": {},
	"is": {}, "are": {}, "for": {}, "on": {}, "with": {}, "by": {}, "from": {},
	"at": {}, "as": {}, "that": {}, "this": {}, "it": {}, "be": {}, "was": {}, "were": {},
	"what": {}, "how": {}, "does": {}, "do": {}, "which": {},
}
