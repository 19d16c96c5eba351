package dto

import (
	"time"

	"github.com/samber/lo"

	appctx "possync/internal/core/context"
	"possync/internal/core/types"
	"possync/internal/domain/checkout"
	"possync/internal/domain/sale"
)

// --- Request DTOs ---

type SubmitSaleRequest struct {
	CustomerID       string            `json:"customerId,omitempty"`
	Items            []SaleLineRequest `json:"items" binding:"required,min=1,dive"`
	Payments         []PaymentRequest  `json:"payments" binding:"required,min=1,dive"`
	Financing        *FinancingRequest `json:"financing,omitempty"`
	Notes            string            `json:"notes,omitempty" binding:"max=500"`
	ConfirmDuplicate bool              `json:"confirmDuplicate,omitempty"`
}

type SaleLineRequest struct {
	ProductID string         `json:"productId" binding:"required"`
	Quantity  types.Quantity `json:"quantity" binding:"required"`
	UnitPrice types.Money    `json:"unitPrice"`
}

type PaymentRequest struct {
	Method string      `json:"method" binding:"required"`
	Amount types.Money `json:"amount"`
}

type FinancingRequest struct {
	Installments int         `json:"installments" binding:"required,min=1,max=120"`
	DownPayment  types.Money `json:"downPayment"`
	InterestRate types.Money `json:"interestRate"`
}

// ToDomain builds the sale payload. Company, store, terminal and cashier
// always come from the terminal context, never from the body.
func (r *SubmitSaleRequest) ToDomain(t *appctx.TerminalContext) sale.Request {
	req := sale.Request{
		CompanyID:  t.CompanyID,
		StoreID:    t.StoreID,
		TerminalID: t.TerminalID,
		CashierID:  t.CashierID,
		CustomerID: r.CustomerID,
		Notes:      r.Notes,
		Items: lo.Map(r.Items, func(l SaleLineRequest, _ int) sale.LineItem {
			return sale.LineItem{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
		}),
		Payments: lo.Map(r.Payments, func(p PaymentRequest, _ int) sale.Payment {
			return sale.Payment{Method: p.Method, Amount: p.Amount}
		}),
	}
	if r.Financing != nil {
		req.Financing = &sale.Financing{
			Installments: r.Financing.Installments,
			DownPayment:  r.Financing.DownPayment,
			InterestRate: r.Financing.InterestRate,
		}
	}
	return req
}

// --- Response DTOs ---

type SaleResponse struct {
	State         string      `json:"state"`
	InvoiceNumber string      `json:"invoiceNumber"`
	SaleID        string      `json:"saleId,omitempty"`
	Total         types.Money `json:"total"`
	Queued        bool        `json:"queued"`
	Trail         []string    `json:"trail,omitempty"`
}

func FromCheckoutResult(res checkout.Result) SaleResponse {
	return SaleResponse{
		State:         string(res.State),
		InvoiceNumber: res.InvoiceNumber,
		SaleID:        res.SaleID,
		Total:         res.Total,
		Queued:        res.State == checkout.Queued,
		Trail:         lo.Map(res.Trail, func(s checkout.State, _ int) string { return string(s) }),
	}
}

// RecordedSaleResponse is the sale a suspected duplicate matched.
type RecordedSaleResponse struct {
	ID            string      `json:"id"`
	InvoiceNumber string      `json:"invoiceNumber"`
	CustomerID    string      `json:"customerId,omitempty"`
	TotalAmount   types.Money `json:"totalAmount"`
	PaymentMethod string      `json:"paymentMethod"`
	CreatedAt     time.Time   `json:"createdAt"`
}

func FromRecordedSale(s *sale.RecordedSale) *RecordedSaleResponse {
	if s == nil {
		return nil
	}
	return &RecordedSaleResponse{
		ID:            s.ID,
		InvoiceNumber: s.InvoiceNumber,
		CustomerID:    s.CustomerID,
		TotalAmount:   s.TotalAmount,
		PaymentMethod: s.PaymentMethod,
		CreatedAt:     s.CreatedAt,
	}
}
