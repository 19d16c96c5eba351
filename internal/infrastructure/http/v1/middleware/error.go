package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"possync/internal/core/apperror"
	"possync/pkg/logger"
)

// ErrorHandler middleware transforms errors into consistent JSON responses.
// Hides internal errors from clients while logging full details.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		// If response already written by handler, do not override it.
		if c.Writer.Written() {
			return
		}
		writeError(c, c.Errors.Last().Err)
	}
}

func writeError(c *gin.Context, err error) {
	if appErr, ok := apperror.AsAppError(err); ok {
		if appErr.Err != nil {
			logger.Error(c.Request.Context(), "request error",
				"code", appErr.Code,
				"cause", appErr.Err,
			)
		}

		body := gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
			"details": appErr.Details,
		}
		if appErr.Retryable {
			body["retryable"] = true
		}
		c.JSON(appErr.HTTPStatus, body)
		return
	}

	logger.Error(c.Request.Context(), "unhandled error", "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"code":    apperror.CodeInternal,
		"message": "Internal server error",
		"details": map[string]any{
			"request_id": c.GetString("request_id"),
		},
	})
}
