// Session HTTP handlers.
//
//   - GET    /sessions                 (list with nested turns, ETag support)
//   - GET    /sessions/{id}/messages   (turns of one session, paginated)
//   - PUT    /sessions/{id}/name       (rename)
//   - DELETE /sessions/{id}            (remove with turns and highlights)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-rag-backend/internal/http/middleware"
	"github.com/tbourn/go-rag-backend/internal/services"
)

// ListSessionsResponse wraps a page of sessions.
type ListSessionsResponse struct {
	Sessions   []services.SessionView `json:"sessions"`
	Pagination Pagination             `json:"pagination"`
}

// ListMessagesResponse wraps a page of one session's turns.
type ListMessagesResponse struct {
	Messages   []services.MessageView `json:"messages"`
	Pagination Pagination             `json:"pagination"`
}

// RenameSessionRequest is the payload of PUT /sessions/{id}/name.
type RenameSessionRequest struct {
	Name string `json:"name" binding:"required,max=255" example:"Refund questions"`
}

// ListSessions godoc
// @ID          listSessions
// @Summary     List chat sessions (paginated)
// @Description Returns the caller's sessions, most recently active first, each with its turns. Supports weak ETag via If-None-Match.
// @Tags        Sessions
// @Security    BearerAuth
// @Produce     json
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListSessionsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Router      /sessions [get]
func (h *Handlers) ListSessions(c *gin.Context) {
	if notModified(c, "sessions", h.sessions.Stats) {
		return
	}
	page, pageSize := clampPagination(c)
	items, total, err := h.sessions.ListPage(c.Request.Context(), middleware.UserID(c), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListSessionsResponse{Sessions: items, Pagination: pagination(page, pageSize, total)})
}

// ListMessages godoc
// @ID          listMessages
// @Summary     List the turns of a session
// @Tags        Sessions
// @Security    BearerAuth
// @Produce     json
// @Param       id         path   string  true   "Session ID"
// @Param       page       query  int     false  "Page number"     minimum(1) default(1)
// @Param       page_size  query  int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListMessagesResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id}/messages [get]
func (h *Handlers) ListMessages(c *gin.Context) {
	page, pageSize := clampPagination(c)
	items, total, err := h.sessions.MessagesPage(c.Request.Context(), middleware.UserID(c), c.Param("id"), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{Messages: items, Pagination: pagination(page, pageSize, total)})
}

// RenameSession godoc
// @ID          renameSession
// @Summary     Rename a session
// @Tags        Sessions
// @Security    BearerAuth
// @Accept      json
// @Param       id    path  string                          true  "Session ID"
// @Param       body  body  handlers.RenameSessionRequest  true  "New name"
// @Success     204  {string}  string  "No Content"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id}/name [put]
func (h *Handlers) RenameSession(c *gin.Context) {
	var req RenameSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name required (1-255 chars)")
		return
	}
	if err := h.sessions.Rename(c.Request.Context(), middleware.UserID(c), c.Param("id"), req.Name); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// DeleteSession godoc
// @ID          deleteSession
// @Summary     Delete a session
// @Tags        Sessions
// @Security    BearerAuth
// @Param       id  path  string  true  "Session ID"
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Session not found"
// @Router      /sessions/{id} [delete]
func (h *Handlers) DeleteSession(c *gin.Context) {
	if err := h.sessions.Delete(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
