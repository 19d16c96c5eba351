package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appctx "possync/internal/core/context"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderTraceID   = "X-Trace-ID"
)

// Trace middleware extracts or generates request and trace ids.
func Trace() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.New().String()
		}

		traceID := c.GetHeader(HeaderTraceID)
		if traceID == "" {
			traceID = uuid.New().String()
		}

		trace := &appctx.TraceContext{
			TraceID:   traceID,
			SpanID:    uuid.New().String()[:16],
			RequestID: requestID,
		}
		c.Request = c.Request.WithContext(appctx.WithTrace(c.Request.Context(), trace))

		c.Set("trace_id", traceID)
		c.Set("request_id", requestID)

		c.Header(HeaderRequestID, requestID)
		c.Header(HeaderTraceID, traceID)

		c.Next()
	}
}
