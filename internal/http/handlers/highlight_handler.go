package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-rag-backend/internal/http/middleware"
)

// AnnotateHighlightRequest replaces a highlight's comment and emoji.
type AnnotateHighlightRequest struct {
	Comment string `json:"comment" example:"Key refund clause"`
	Emoji   string `json:"emoji"   example:"📌"`
}

// AnnotateHighlight godoc
// @ID          annotateHighlight
// @Summary     Annotate a highlight
// @Tags        Highlights
// @Security    BearerAuth
// @Accept      json
// @Produce     json
// @Param       id    path  string                              true  "Highlight ID"  format(uuid)
// @Param       body  body  handlers.AnnotateHighlightRequest  true  "Annotation"
// @Success     200  {object}  domain.Highlight
// @Failure     400  {object}  handlers.ErrorResponse  "Comment or emoji too long"
// @Failure     404  {object}  handlers.ErrorResponse  "Highlight not found"
// @Router      /highlights/{id} [patch]
func (h *Handlers) AnnotateHighlight(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "highlight id must be a UUID")
		return
	}
	var req AnnotateHighlightRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	hl, err := h.highlights.Annotate(c.Request.Context(), middleware.UserID(c), id, req.Comment, req.Emoji)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, hl)
}
