// Package saletest provides an in-memory remote sale store for tests.
package saletest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"possync/internal/core/apperror"
	"possync/internal/core/types"
	"possync/internal/domain/sale"
)

// ErrUnreachable simulates a dropped connection.
var ErrUnreachable = errors.New("dial tcp 10.0.0.5:5432: connect: connection refused")

// Remote is a shared in-memory stand-in for the remote sale store. Several
// terminals under test can point at the same instance.
//
// The hook fields inject failures; a nil hook means the call succeeds.
type Remote struct {
	mu    sync.Mutex
	sales []*sale.RecordedSale
	stock map[string]types.Quantity
	clock time.Time
	seq   int

	SubmitHook func(req sale.Request) error
	AttachHook func(saleID, invoiceNumber string) error
	ExistsHook func(invoiceNumber string) (bool, error)
	LatestErr  error
	RecentErr  error

	SubmitCalls int
	AttachCalls int
	ExistsCalls int
}

// New creates an empty remote.
func New() *Remote {
	return &Remote{
		stock: make(map[string]types.Quantity),
		clock: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}
}

// tick returns a strictly increasing creation time.
func (r *Remote) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

// Now returns the remote clock.
func (r *Remote) Now() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clock
}

// Seed stores a sale as if another terminal had recorded it.
func (r *Remote) Seed(s sale.RecordedSale) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == "" {
		r.seq++
		s.ID = fmt.Sprintf("seed-%d", r.seq)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.tick()
	}
	r.sales = append(r.sales, &s)
}

// SetStock sets on-hand quantity for a product.
func (r *Remote) SetStock(storeID, productID string, q types.Quantity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stock[storeID+"/"+productID] = q
}

// Sales returns a snapshot of every recorded sale in creation order.
func (r *Remote) Sales() []sale.RecordedSale {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]sale.RecordedSale, 0, len(r.sales))
	for _, s := range r.sales {
		out = append(out, *s)
	}
	return out
}

// InvoiceNumbers lists assigned invoice numbers in creation order.
func (r *Remote) InvoiceNumbers() []string {
	var out []string
	for _, s := range r.Sales() {
		if s.InvoiceNumber != "" {
			out = append(out, s.InvoiceNumber)
		}
	}
	return out
}

// Submit implements sale.Processor.
func (r *Remote) Submit(ctx context.Context, req sale.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.SubmitCalls++
	if r.SubmitHook != nil {
		if err := r.SubmitHook(req); err != nil {
			return "", err
		}
	}
	for _, item := range req.Items {
		key := req.StoreID + "/" + item.ProductID
		if q, ok := r.stock[key]; ok {
			if q < item.Quantity {
				return "", apperror.NewRejected("insufficient stock for product " + item.ProductID)
			}
			r.stock[key] = q - item.Quantity
		}
	}

	r.seq++
	rec := &sale.RecordedSale{
		ID:            fmt.Sprintf("sale-%d", r.seq),
		CompanyID:     req.CompanyID,
		StoreID:       req.StoreID,
		CustomerID:    req.CustomerID,
		TotalAmount:   req.Total(),
		PaymentMethod: req.PaymentMethod(),
		CreatedAt:     r.tick(),
		Items:         append([]sale.LineItem(nil), req.Items...),
	}
	r.sales = append(r.sales, rec)
	return rec.ID, nil
}

// AttachInvoice implements sale.InvoiceAssigner, enforcing company-wide uniqueness.
func (r *Remote) AttachInvoice(ctx context.Context, companyID, saleID, invoiceNumber string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.AttachCalls++
	if r.AttachHook != nil {
		if err := r.AttachHook(saleID, invoiceNumber); err != nil {
			return err
		}
	}
	var target *sale.RecordedSale
	for _, s := range r.sales {
		if s.CompanyID != companyID {
			continue
		}
		if s.InvoiceNumber == invoiceNumber && s.ID != saleID {
			return apperror.NewDuplicate("sale", "invoice_number", invoiceNumber)
		}
		if s.ID == saleID {
			target = s
		}
	}
	if target == nil {
		return apperror.NewValidation("sale not found").WithDetail("sale_id", saleID)
	}
	target.InvoiceNumber = invoiceNumber
	return nil
}

// LatestSale implements sale.Query.
func (r *Remote) LatestSale(ctx context.Context, companyID string) (*sale.RecordedSale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.LatestErr != nil {
		return nil, r.LatestErr
	}
	for i := len(r.sales) - 1; i >= 0; i-- {
		s := r.sales[i]
		if s.CompanyID == companyID && s.InvoiceNumber != "" {
			out := *s
			return &out, nil
		}
	}
	return nil, nil
}

// InvoiceExists implements sale.Query.
func (r *Remote) InvoiceExists(ctx context.Context, companyID, invoiceNumber string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ExistsCalls++
	if r.ExistsHook != nil {
		return r.ExistsHook(invoiceNumber)
	}
	for _, s := range r.sales {
		if s.CompanyID == companyID && s.InvoiceNumber == invoiceNumber {
			return true, nil
		}
	}
	return false, nil
}

// RecentSales implements sale.Query.
func (r *Remote) RecentSales(ctx context.Context, f sale.RecentFilter) ([]sale.RecordedSale, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.RecentErr != nil {
		return nil, r.RecentErr
	}
	var out []sale.RecordedSale
	for _, s := range r.sales {
		if s.CompanyID != f.CompanyID || s.StoreID != f.StoreID {
			continue
		}
		if f.CustomerID != "" && s.CustomerID != f.CustomerID {
			continue
		}
		if s.CreatedAt.Before(f.From) || s.CreatedAt.After(f.To) {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

// Available implements sale.StockChecker. Unknown products have unlimited stock.
func (r *Remote) Available(ctx context.Context, storeID, productID string) (types.Quantity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.stock[storeID+"/"+productID]
	if !ok {
		return types.UnlimitedQuantity, nil
	}
	return q, nil
}

var (
	_ sale.Remote       = (*Remote)(nil)
	_ sale.StockChecker = (*Remote)(nil)
)
