package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"possync/internal/domain/sequence"
	"possync/internal/infrastructure/http/v1/dto"
)

// SequenceSyncer resynchronizes the local invoice sequence with the remote store.
type SequenceSyncer interface {
	Sync(ctx context.Context, companyID string, force bool) sequence.State
}

// SequenceHandler exposes invoice sequence maintenance.
type SequenceHandler struct {
	*BaseHandler
	seq SequenceSyncer
}

// NewSequenceHandler creates a new sequence handler.
func NewSequenceHandler(base *BaseHandler, seq SequenceSyncer) *SequenceHandler {
	return &SequenceHandler{BaseHandler: base, seq: seq}
}

// Sync handles POST /sequence/sync
func (h *SequenceHandler) Sync(c *gin.Context) {
	companyID := h.Terminal(c).CompanyID
	state := h.seq.Sync(c.Request.Context(), companyID, true)
	h.OK(c, dto.SequenceStateResponse{
		CompanyID:     companyID,
		LastSequence:  state.LastSequence,
		LastUpdatedAt: state.LastUpdatedAt,
	})
}
