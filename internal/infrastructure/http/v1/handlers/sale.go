package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"possync/internal/core/apperror"
	"possync/internal/domain/checkout"
	"possync/internal/domain/sale"
	"possync/internal/infrastructure/http/v1/dto"
)

// SaleSubmitter runs the checkout pipeline.
type SaleSubmitter interface {
	Submit(ctx context.Context, req sale.Request, opts checkout.Options) (checkout.Result, error)
}

// SaleHandler handles sale submission.
type SaleHandler struct {
	*BaseHandler
	checkout SaleSubmitter
}

// NewSaleHandler creates a new sale handler.
func NewSaleHandler(base *BaseHandler, submitter SaleSubmitter) *SaleHandler {
	return &SaleHandler{BaseHandler: base, checkout: submitter}
}

// Submit handles POST /sales
//
// 201 the sale is recorded with its invoice number.
// 202 the remote store is unreachable; the sale is queued under its invoice number.
// 409 the sale looks like a resubmission; repeat with confirmDuplicate.
func (h *SaleHandler) Submit(c *gin.Context) {
	var req dto.SubmitSaleRequest
	if !h.BindJSON(c, &req) {
		return
	}

	res, err := h.checkout.Submit(c.Request.Context(), req.ToDomain(h.Terminal(c)), checkout.Options{
		ConfirmDuplicate: req.ConfirmDuplicate,
	})

	// A queued sale is kept even when the request was cancelled meanwhile.
	if res.State == checkout.Queued {
		c.JSON(http.StatusAccepted, dto.FromCheckoutResult(res))
		return
	}
	if err != nil {
		if appErr, ok := apperror.AsAppError(err); ok && appErr.Code == apperror.CodeDuplicateSuspected && res.DuplicateOf != nil {
			err = appErr.WithDetail("matched_sale", dto.FromRecordedSale(res.DuplicateOf))
		}
		h.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.FromCheckoutResult(res))
}
