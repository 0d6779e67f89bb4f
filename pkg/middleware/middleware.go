// Package middleware carries the gin middleware shared by the HTTP surfaces.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	pkgerrors "ratefeed/pkg/errors"
)

// Logger is the subset of the service logger the middleware needs. The Ctx
// variants let access log lines carry the request's trace id.
type Logger interface {
	InfowCtx(ctx context.Context, msg string, keysAndValues ...interface{})
	ErrorwCtx(ctx context.Context, msg string, keysAndValues ...interface{})
}

const requestIDHeader = "X-Request-ID"

// RequestID ensures every request carries an id, minting one when the
// client did not send it. The id is echoed in the response header and kept
// on the gin context for handlers and the access log.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// RequestLogger writes one access log line per request, at error level for
// 5xx responses.
func RequestLogger(log Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path += "?" + raw
		}

		c.Next()

		status := c.Writer.Status()
		fields := []interface{}{
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
		}
		if id, ok := c.Get("request_id"); ok {
			fields = append(fields, "request_id", id)
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			fields = append(fields, "error", errs.String())
		}

		if status >= http.StatusInternalServerError {
			log.ErrorwCtx(c.Request.Context(), "HTTP request", fields...)
		} else {
			log.InfowCtx(c.Request.Context(), "HTTP request", fields...)
		}
	}
}

// Recovery converts a handler panic into a 500 with the standard error body.
func Recovery(log Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.ErrorwCtx(c.Request.Context(), "Panic recovered",
			"panic", recovered,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, pkgerrors.ToErrorResponse(pkgerrors.ErrInternal))
	})
}
