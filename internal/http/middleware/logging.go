// Package middleware holds the gin middleware of the HTTP layer: request
// correlation, redacting access logs, panic recovery, authentication, body
// limits, idempotency keys, rate limiting, metrics and security headers.
//
// Recommended order (see httpapi.RegisterRoutes):
//
//	otelgin → RequestID → AccessLog → Recovery → BodyLimit → gzip → Metrics
//	→ Auth → IdempotencyValidator → RateLimiter → CORS → SecurityHeaders
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey      = "requestID"
	loggerKey         = "logger"
	requestIDHeader   = "X-Request-ID"
	maxQueryLogLength = 2048
)

// Client supplied request ids are reused only when they look like ids.
var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:\-]{1,128}$`)

// RequestID attaches (or propagates) a correlation id. It is echoed in the
// X-Request-ID response header and in every error envelope.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !requestIDPattern.MatchString(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// RequestIDFrom returns the correlation id set by RequestID.
func RequestIDFrom(c *gin.Context) string { return c.GetString(requestIDKey) }

// AccessLog attaches a request-scoped zerolog.Logger (request id, method,
// route) to the gin context and to the request context, so services logging
// through zerolog.Ctx inherit the fields, and writes one access line per
// request once the handler chain returns. Query strings and headers pass
// through a Redactor; bodies are never logged.
//
// Level: error for 5xx or gin errors, warn for 4xx, info otherwise.
func AccessLog(opts RedactOptions) gin.HandlerFunc {
	red := NewRedactor(opts)
	return func(c *gin.Context) {
		start := time.Now()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		l := log.With().
			Str("request_id", RequestIDFrom(c)).
			Str("method", c.Request.Method).
			Str("route", route).
			Logger()
		attachLogger(c, &l)

		c.Next()

		status := c.Writer.Status()
		lg := LoggerFrom(c) // Auth may have added user_id

		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0 || status >= http.StatusInternalServerError:
			ev = lg.Error()
		case status >= http.StatusBadRequest:
			ev = lg.Warn()
		default:
			ev = lg.Info()
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.
			Str("query", truncate(red.Query(c.Request.URL.RawQuery), maxQueryLogLength)).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", red.Scrub(c.Request.UserAgent())).
			Dict("headers", red.Headers(c.Request.Header)).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes_out", c.Writer.Size()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("http_request")
	}
}

// Recovery converts panics into the standard JSON 500 envelope and logs the
// stack with the request-scoped logger.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				LoggerFrom(c).Error().
					Interface("panic", rec).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")

				if !c.Writer.Written() {
					AbortJSON(c, http.StatusInternalServerError, "internal_error", "internal server error")
					return
				}
				c.AbortWithStatus(http.StatusInternalServerError)
			}
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger, or the global logger when
// AccessLog did not run.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

// withUser adds user_id to the request-scoped logger.
func withUser(c *gin.Context, userID string) {
	l := LoggerFrom(c).With().Str("user_id", userID).Logger()
	attachLogger(c, &l)
}

func attachLogger(c *gin.Context, l *zerolog.Logger) {
	c.Set(loggerKey, l)
	c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))
}

// AbortJSON ends the request with the standard error envelope
// {request_id, code, message}.
func AbortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, gin.H{
		"request_id": RequestIDFrom(c),
		"code":       code,
		"message":    msg,
	})
}

// truncate caps s at max bytes; max <= 0 disables truncation.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
