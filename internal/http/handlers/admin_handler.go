package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-rag-backend/internal/http/middleware"
)

// ClearAll godoc
// @ID          clearAll
// @Summary     Delete all data except accounts
// @Description Resets the vector index and clears documents, sessions, messages and highlights. Administrators only.
// @Tags        Admin
// @Security    BearerAuth
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Caller is not an administrator"
// @Failure     500  {object}  handlers.ErrorResponse  "Stores may be inconsistent"
// @Failure     503  {object}  handlers.ErrorResponse  "A reset is already running"
// @Router      /admin/clear [post]
func (h *Handlers) ClearAll(c *gin.Context) {
	if err := h.admin.ClearAll(c.Request.Context(), middleware.UserID(c)); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}
