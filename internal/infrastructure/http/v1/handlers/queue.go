package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"possync/internal/core/apperror"
	"possync/internal/domain/offline"
	"possync/internal/infrastructure/http/v1/dto"
)

// OfflineQueue is the operator view of queued sales.
type OfflineQueue interface {
	Pending(ctx context.Context) ([]offline.PendingSaleRecord, error)
	Draining() bool
	Drain(ctx context.Context) (offline.DrainReport, error)
}

// QueueHandler exposes the offline queue.
type QueueHandler struct {
	*BaseHandler
	queue OfflineQueue
}

// NewQueueHandler creates a new queue handler.
func NewQueueHandler(base *BaseHandler, queue OfflineQueue) *QueueHandler {
	return &QueueHandler{BaseHandler: base, queue: queue}
}

// List handles GET /offline-queue
func (h *QueueHandler) List(c *gin.Context) {
	records, err := h.queue.Pending(c.Request.Context())
	if err != nil {
		h.Error(c, apperror.NewInternal(err))
		return
	}
	h.OK(c, dto.QueueStatusResponse{
		Draining: h.queue.Draining(),
		Pending:  lo.Map(records, func(r offline.PendingSaleRecord, _ int) dto.PendingSaleResponse { return dto.FromPendingSale(r) }),
	})
}

// Drain handles POST /offline-queue/drain. Records that failed stay queued
// and are reported alongside the counts.
func (h *QueueHandler) Drain(c *gin.Context) {
	report, err := h.queue.Drain(c.Request.Context())
	if errors.Is(err, offline.ErrDrainInProgress) {
		h.Error(c, apperror.NewConflict("offline queue drain already running"))
		return
	}

	resp := dto.DrainResponse{DrainReport: report}
	if err != nil {
		resp.Error = err.Error()
	}
	h.OK(c, resp)
}
