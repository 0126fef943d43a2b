// Document HTTP handlers.
//
//   - POST   /documents                          (multipart upload)
//   - GET    /documents                          (list, paginated, ETag support)
//   - GET    /documents/{id}/content             (raw bytes)
//   - DELETE /documents/{id}                     (remove rows and vectors)
//   - GET    /documents/{id}/highlights          (all highlights on a document)
//   - POST   /documents/{id}/highlights/lookup   (selected highlights)
package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-rag-backend/internal/domain"
	"github.com/tbourn/go-rag-backend/internal/http/middleware"
)

// ListDocumentsResponse wraps a page of documents.
type ListDocumentsResponse struct {
	Documents  []domain.Document `json:"documents"`
	Pagination Pagination        `json:"pagination"`
}

// HighlightsResponse lists highlights of one document.
type HighlightsResponse struct {
	Document   *domain.Document   `json:"document,omitempty"`
	Highlights []domain.Highlight `json:"highlights"`
}

// HighlightLookupRequest selects highlights by id.
type HighlightLookupRequest struct {
	HighlightIDs []string `json:"highlight_ids" binding:"required"`
}

// documentID validates the :id path parameter.
func documentID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "document id must be a UUID")
		return "", false
	}
	return id, true
}

// UploadDocument godoc
// @ID          uploadDocument
// @Summary     Upload a document
// @Description Extracts, chunks and indexes a file. Accepted types: pdf, docx, xlsx, pptx, png, jpg, jpeg, csv, txt, html.
// @Tags        Documents
// @Security    BearerAuth
// @Accept      multipart/form-data
// @Produce     json
// @Param       file  formData  file  true  "Document to ingest"
// @Success     201   {object}  services.UploadResult
// @Failure     400   {object}  handlers.ErrorResponse  "Missing file or file too large"
// @Failure     413   {object}  handlers.ErrorResponse  "Request body too large"
// @Failure     415   {object}  handlers.ErrorResponse  "Unsupported file type"
// @Failure     422   {object}  handlers.ErrorResponse  "No extractable text"
// @Failure     502   {object}  handlers.ErrorResponse  "Indexing failed"
// @Router      /documents [post]
func (h *Handlers) UploadDocument(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			failErr(c, err)
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart field \"file\" required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		failErr(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		failErr(c, err)
		return
	}

	res, err := h.ingest.Upload(c.Request.Context(), middleware.UserID(c), filepath.Base(fh.Filename), data)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusCreated, res)
}

// ListDocuments godoc
// @ID          listDocuments
// @Summary     List documents (paginated)
// @Description Returns a page of the caller's documents, newest first. Supports weak ETag via If-None-Match.
// @Tags        Documents
// @Security    BearerAuth
// @Produce     json
// @Param       If-None-Match  header  string  false  "Return 304 if ETag matches"
// @Param       page           query   int     false  "Page number"     minimum(1) default(1)
// @Param       page_size      query   int     false  "Items per page"  minimum(1) maximum(100) default(20)
// @Success     200  {object}  handlers.ListDocumentsResponse
// @Header      200  {string}  ETag  "Weak ETag for current result"
// @Success     304  {string}  string  "Not Modified"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /documents [get]
func (h *Handlers) ListDocuments(c *gin.Context) {
	if notModified(c, "documents", h.docs.Stats) {
		return
	}
	page, pageSize := clampPagination(c)
	items, total, err := h.docs.ListPage(c.Request.Context(), middleware.UserID(c), page, pageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, ListDocumentsResponse{Documents: items, Pagination: pagination(page, pageSize, total)})
}

// DocumentContent godoc
// @ID          documentContent
// @Summary     Download a document
// @Description Returns the stored bytes with a sniffed content type.
// @Tags        Documents
// @Security    BearerAuth
// @Produce     octet-stream
// @Param       id  path  string  true  "Document ID"  format(uuid)
// @Success     200  {file}    file
// @Failure     404  {object}  handlers.ErrorResponse  "Document not found"
// @Router      /documents/{id}/content [get]
func (h *Handlers) DocumentContent(c *gin.Context) {
	id, valid := documentID(c)
	if !valid {
		return
	}
	doc, err := h.docs.Get(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	c.Header("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": doc.Filename}))
	c.Data(http.StatusOK, mimetype.Detect(doc.Content).String(), doc.Content)
}

// DeleteDocument godoc
// @ID          deleteDocument
// @Summary     Delete a document
// @Description Removes the document, its chunks, vectors and highlights.
// @Tags        Documents
// @Security    BearerAuth
// @Param       id  path  string  true  "Document ID"  format(uuid)
// @Success     204  {string}  string  "No Content"
// @Failure     404  {object}  handlers.ErrorResponse  "Document not found"
// @Failure     502  {object}  handlers.ErrorResponse  "Vector removal failed"
// @Router      /documents/{id} [delete]
func (h *Handlers) DeleteDocument(c *gin.Context) {
	id, valid := documentID(c)
	if !valid {
		return
	}
	if err := h.ingest.Delete(c.Request.Context(), middleware.UserID(c), id); err != nil {
		failErr(c, err)
		return
	}
	noContent(c)
}

// DocumentHighlights godoc
// @ID          documentHighlights
// @Summary     List highlights of a document
// @Tags        Documents
// @Security    BearerAuth
// @Produce     json
// @Param       id  path  string  true  "Document ID"  format(uuid)
// @Success     200  {object}  handlers.HighlightsResponse
// @Failure     404  {object}  handlers.ErrorResponse  "Document not found"
// @Router      /documents/{id}/highlights [get]
func (h *Handlers) DocumentHighlights(c *gin.Context) {
	id, valid := documentID(c)
	if !valid {
		return
	}
	hs, err := h.docs.Highlights(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, HighlightsResponse{Highlights: hs})
}

// LookupHighlights godoc
// @ID          lookupHighlights
// @Summary     Fetch selected highlights of a document
// @Description Returns the document and those of the given highlights that lie on it; unknown ids are ignored.
// @Tags        Documents
// @Security    BearerAuth
// @Accept      json
// @Produce     json
// @Param       id    path  string                            true  "Document ID"  format(uuid)
// @Param       body  body  handlers.HighlightLookupRequest  true  "Highlight ids"
// @Success     200  {object}  handlers.HighlightsResponse
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Document not found"
// @Router      /documents/{id}/highlights/lookup [post]
func (h *Handlers) LookupHighlights(c *gin.Context) {
	id, valid := documentID(c)
	if !valid {
		return
	}
	var req HighlightLookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "highlight_ids required")
		return
	}
	doc, hs, err := h.docs.HighlightsByIDs(c.Request.Context(), middleware.UserID(c), id, req.HighlightIDs)
	if err != nil {
		failErr(c, err)
		return
	}
	ok(c, http.StatusOK, HighlightsResponse{Document: doc, Highlights: hs})
}
