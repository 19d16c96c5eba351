package sale

import (
	"context"
	"time"

	"possync/internal/core/types"
)

// Processor is the remote sale-processing procedure. It durably records the
// sale with its line items and returns an opaque sale identifier.
//
// It offers no idempotency key: replay safety comes from checking whether the
// invoice number already exists before resubmitting.
type Processor interface {
	Submit(ctx context.Context, req Request) (saleID string, err error)
}

// InvoiceAssigner writes the invoice number onto an already recorded sale.
type InvoiceAssigner interface {
	AttachInvoice(ctx context.Context, companyID, saleID, invoiceNumber string) error
}

// RecentFilter selects recorded sales for duplicate detection.
type RecentFilter struct {
	CompanyID  string
	StoreID    string
	CustomerID string // empty means any customer
	From       time.Time
	To         time.Time
}

// Query is the read side of the remote sale store.
type Query interface {
	// LatestSale returns the most recently created sale of the company, or nil if none exist.
	LatestSale(ctx context.Context, companyID string) (*RecordedSale, error)

	// InvoiceExists checks the whole company, not a single store.
	InvoiceExists(ctx context.Context, companyID, invoiceNumber string) (bool, error)

	// RecentSales returns sales created in [From, To] including their line items.
	RecentSales(ctx context.Context, f RecentFilter) ([]RecordedSale, error)
}

// StockChecker reports on-hand quantity for a product in a store.
type StockChecker interface {
	Available(ctx context.Context, storeID, productID string) (types.Quantity, error)
}

// Remote bundles every remote port; the PostgreSQL sale repository implements it.
type Remote interface {
	Processor
	InvoiceAssigner
	Query
}
