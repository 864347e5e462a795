package middleware

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-Id"
	CtxRequestID    = "request_id"
	maxRequestIDLen = 128
)

type requestIDKey struct{}

// RequestIDMiddleware tags every request with an id, taken from X-Request-Id
// when the client sent a sane one, and logs the request when it completes.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if rid == "" || len(rid) > maxRequestIDLen {
			rid = strings.ReplaceAll(uuid.New().String(), "-", "")
		}

		c.Set(CtxRequestID, rid)
		c.Request = c.Request.WithContext(WithRequestID(c.Request.Context(), rid))
		c.Writer.Header().Set(HeaderRequestID, rid)

		start := time.Now()
		c.Next()

		log.Printf(
			"[req] id=%s method=%s path=%s status=%d bytes=%d client=%s latency=%s",
			rid,
			c.Request.Method,
			c.Request.URL.Path,
			c.Writer.Status(),
			c.Writer.Size(),
			c.ClientIP(),
			time.Since(start),
		)
	}
}

// WithRequestID returns ctx carrying rid, for work started outside a request.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, rid)
}

// GetRequestID extracts the request ID from a standard context
func GetRequestID(ctx context.Context) string {
	if rid, ok := ctx.Value(requestIDKey{}).(string); ok {
		return rid
	}
	return ""
}
