package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-rag-backend/internal/domain"
)

const (
	userIDKey = "userID"

	// HeaderUserID carries the caller id when AuthOptions.TrustUserHeader is set.
	HeaderUserID = "X-User-ID"
)

// Authenticator resolves an opaque bearer token to a user id. Failures wrap
// domain.ErrUnauthorized.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// AuthOptions configures Auth.
type AuthOptions struct {
	// TrustUserHeader accepts X-User-ID as the caller identity when no
	// Authorization header is sent. Development and tests only.
	TrustUserHeader bool
}

var (
	errNoCredentials = errors.New("no credentials")
	errBadScheme     = errors.New("unsupported authorization scheme")
)

// Auth requires an authenticated caller. On success the user id is stored in
// the gin context (see UserID) and added to the request-scoped logger; on
// failure the request ends with 401.
func Auth(a Authenticator, opts AuthOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, err := identify(c, a, opts)
		switch {
		case err == nil:
		case errors.Is(err, errNoCredentials), errors.Is(err, errBadScheme), errors.Is(err, domain.ErrUnauthorized):
			LoggerFrom(c).Debug().Err(err).Msg("authentication failed")
			c.Header("WWW-Authenticate", `Bearer realm="api"`)
			AbortJSON(c, http.StatusUnauthorized, domain.KindUnauthorized, "missing or invalid credentials")
			return
		default:
			LoggerFrom(c).Error().Err(err).Msg("token lookup failed")
			AbortJSON(c, http.StatusInternalServerError, domain.KindInternal, "internal server error")
			return
		}

		c.Set(userIDKey, uid)
		withUser(c, uid)
		c.Next()
	}
}

func identify(c *gin.Context, a Authenticator, opts AuthOptions) (string, error) {
	if h := strings.TrimSpace(c.GetHeader("Authorization")); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return "", errBadScheme
		}
		return a.Authenticate(c.Request.Context(), strings.TrimSpace(token))
	}
	if opts.TrustUserHeader {
		if uid := strings.TrimSpace(c.GetHeader(HeaderUserID)); uid != "" {
			return uid, nil
		}
	}
	return "", errNoCredentials
}

// UserID returns the authenticated caller, or "" outside Auth.
func UserID(c *gin.Context) string { return c.GetString(userIDKey) }
