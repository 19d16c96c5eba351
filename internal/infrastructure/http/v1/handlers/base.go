// Package handlers provides HTTP request handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"possync/internal/core/apperror"
	appctx "possync/internal/core/context"
	"possync/internal/infrastructure/http/v1/dto"
)

// BaseHandler provides common handler utilities.
type BaseHandler struct{}

// NewBaseHandler creates a new base handler.
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// BindJSON binds and validates JSON request body.
func (h *BaseHandler) BindJSON(c *gin.Context, obj any) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.Error(c, apperror.NewValidation("invalid request body").WithDetail("error", err.Error()))
		return false
	}
	return true
}

// Error registers err on the Gin context and aborts the request.
// The JSON response is produced by middleware.ErrorHandler.
func (h *BaseHandler) Error(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// Terminal returns the identity resolved by middleware.Terminal.
func (h *BaseHandler) Terminal(c *gin.Context) *appctx.TerminalContext {
	if t := appctx.GetTerminal(c.Request.Context()); t != nil {
		return t
	}
	return &appctx.TerminalContext{}
}

// OK sends 200 response with data.
func (h *BaseHandler) OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Success sends success response.
func (h *BaseHandler) Success(c *gin.Context, message string) {
	c.JSON(http.StatusOK, dto.SuccessResponse{Success: true, Message: message})
}
