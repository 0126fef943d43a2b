package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// BodyLimit caps request bodies at def bytes. Routes listed in perRoute
// (keyed by gin route pattern, e.g. "/api/v1/documents") get their own cap.
// Reads past the cap fail with *http.MaxBytesError.
func BodyLimit(def int64, perRoute map[string]int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := def
		if n, ok := perRoute[c.FullPath()]; ok {
			limit = n
		}
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}
