// Chat HTTP handler.
//
//   - POST /chat   (ask a question, optionally continuing a session)
//
// Idempotency: when the client sends an Idempotency-Key and a completed
// request with that key exists for the session, the stored answer is
// returned with `Idempotency-Replayed: true` and the model is not called.
package handlers

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-rag-backend/internal/http/middleware"
	"github.com/tbourn/go-rag-backend/internal/services"
)

// AskRequest is the JSON payload of POST /chat.
type AskRequest struct {
	// SessionID continues a session; empty starts a new one.
	SessionID string `json:"session_id" example:"c2b7e0b4-session"`
	Question  string `json:"question"   binding:"required" example:"What is the refund window for annual plans?"`
	// Model selects the language model; empty uses the default.
	Model string `json:"model" example:"gpt-4o-mini"`
	// Name is the display name of a new session.
	Name string `json:"name" example:"Billing"`
}

var (
	sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:\-]{1,64}$`)
	nlCollapseRE     = regexp.MustCompile(`\n{3,}`)
)

// sanitizeQuestion normalizes line endings, collapses runs of blank lines
// and trims the result.
func sanitizeQuestion(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = nlCollapseRE.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Ask godoc
// @ID          ask
// @Summary     Ask a question
// @Description Retrieves the most relevant chunks of the caller's documents, asks the selected model and stores the turn with its highlights.
// @Description Supports idempotency via the Idempotency-Key header (same key and session → same answer).
// @Tags        Chat
// @Security    BearerAuth
// @Accept      json
// @Produce     json
// @Param       Idempotency-Key  header  string               false  "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.AskRequest  true   "Question"
// @Success     200  {object}  services.AnswerResult
// @Header      200  {string}  Idempotency-Replayed  "true when the stored answer was replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Empty or too long question, unknown model"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Model or index failure"
// @Failure     504  {object}  handlers.ErrorResponse  "Model timed out"
// @Router      /chat [post]
func (h *Handlers) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "question required")
		return
	}
	sid := strings.TrimSpace(req.SessionID)
	if sid != "" && !sessionIDPattern.MatchString(sid) {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "session_id must be 1-64 characters of [A-Za-z0-9._:-]")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	res, err := h.answers.Answer(c.Request.Context(), services.AskInput{
		UserID:         middleware.UserID(c),
		SessionID:      sid,
		Question:       sanitizeQuestion(req.Question),
		Model:          req.Model,
		SessionName:    req.Name,
		IdempotencyKey: key,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	if res.Replayed {
		c.Header("Idempotency-Replayed", "true")
	}
	ok(c, http.StatusOK, res)
}
