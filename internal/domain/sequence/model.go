// Package sequence allocates company-wide invoice numbers without a central
// sequence generator.
//
// A terminal keeps a local mirror of the last sequence it knows about (Cache),
// reads the remote high-water mark (Oracle), and claims the next number by
// checking the remote store for collisions and stepping forward until it finds
// a free one (Service.Reserve). The claim only becomes durable on Commit.
package sequence

import (
	"time"
)

// State is the last known invoice sequence of one company.
type State struct {
	LastSequence  int64     `json:"lastSequence"`
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
}

// ReservedInvoice is a provisional, single-use claim on an invoice number.
// It must be passed to exactly one of Service.Commit or Service.Revert.
type ReservedInvoice struct {
	CompanyID     string
	InvoiceNumber string
	Sequence      int64
	PriorState    State
}
