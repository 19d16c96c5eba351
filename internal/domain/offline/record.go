// Package offline keeps sales that could not reach the remote store and
// replays them once connectivity returns.
package offline

import (
	"time"

	"possync/internal/core/types"
	"possync/internal/domain/sale"
)

// PendingSaleRecord is a sale waiting to be replayed. It always carries an
// invoice number reserved and committed before it was queued.
type PendingSaleRecord struct {
	InvoiceNumber string       `json:"invoiceNumber"`
	Sequence      int64        `json:"sequence"`
	SaleRequest   sale.Request `json:"saleRequest"`
	EnqueuedAt    time.Time    `json:"enqueuedAt"`
	StoreID       string       `json:"storeId"`
	TotalAmount   types.Money  `json:"totalAmount"`

	// SaleID is set once the remote store accepted the sale but attaching the
	// invoice number failed; the next drain only retries the attachment.
	SaleID    string `json:"saleId,omitempty"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"lastError,omitempty"`
}

// CompanyID returns the company the record belongs to.
func (r PendingSaleRecord) CompanyID() string {
	return r.SaleRequest.CompanyID
}

func (r PendingSaleRecord) key() string {
	return r.SaleRequest.CompanyID + "\x00" + r.InvoiceNumber
}

// DrainReport summarizes one drain pass.
type DrainReport struct {
	Processed      int `json:"processed"`
	Submitted      int `json:"submitted"`
	AlreadyPresent int `json:"alreadyPresent"`
	Failed         int `json:"failed"`
	Remaining      int `json:"remaining"`
}
