// Package middleware provides HTTP middleware components.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"possync/internal/core/apperror"
	appctx "possync/internal/core/context"
	"possync/pkg/logger"
)

// Recovery turns a panic further down the chain into a 500 response. The
// stack is logged with the request's terminal identity; the client only gets
// the request id and, once resolved, the terminal id.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	if log == nil {
		log = logger.Default()
	}
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			ctx := c.Request.Context()
			log.WithContext(ctx).Errorw("panic recovered",
				"panic", rec,
				"method", c.Request.Method,
				"route", c.FullPath(),
				"stack", string(debug.Stack()),
			)

			appErr := apperror.NewInternal(fmt.Errorf("panic: %v", rec)).
				WithDetail("request_id", c.GetString("request_id"))
			if t := appctx.GetTerminal(ctx); t != nil && t.TerminalID != "" {
				appErr = appErr.WithDetail("terminal_id", t.TerminalID)
			}

			_ = c.Error(appErr)
			c.Abort()
			if !c.Writer.Written() {
				writeError(c, appErr)
			}
		}()
		c.Next()
	}
}
