package dto

import (
	"time"

	"possync/internal/core/types"
	"possync/internal/domain/offline"
)

type PendingSaleResponse struct {
	InvoiceNumber string      `json:"invoiceNumber"`
	CompanyID     string      `json:"companyId"`
	StoreID       string      `json:"storeId"`
	TotalAmount   types.Money `json:"totalAmount"`
	EnqueuedAt    time.Time   `json:"enqueuedAt"`
	SaleID        string      `json:"saleId,omitempty"`
	Attempts      int         `json:"attempts"`
	LastError     string      `json:"lastError,omitempty"`
}

func FromPendingSale(r offline.PendingSaleRecord) PendingSaleResponse {
	return PendingSaleResponse{
		InvoiceNumber: r.InvoiceNumber,
		CompanyID:     r.CompanyID(),
		StoreID:       r.StoreID,
		TotalAmount:   r.TotalAmount,
		EnqueuedAt:    r.EnqueuedAt,
		SaleID:        r.SaleID,
		Attempts:      r.Attempts,
		LastError:     r.LastError,
	}
}

type QueueStatusResponse struct {
	Draining bool                  `json:"draining"`
	Pending  []PendingSaleResponse `json:"pending"`
}

type DrainResponse struct {
	offline.DrainReport
	Error string `json:"error,omitempty"`
}

type SequenceStateResponse struct {
	CompanyID     string    `json:"companyId"`
	LastSequence  int64     `json:"lastSequence"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}
