// Package sale holds the sale payload a terminal submits and the view of
// sales already recorded remotely, together with the ports used to reach them.
package sale

import (
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"

	"possync/internal/core/apperror"
	"possync/internal/core/types"
)

// LineItem is one cart line.
type LineItem struct {
	ProductID string         `json:"productId"`
	Quantity  types.Quantity `json:"quantity"`
	UnitPrice types.Money    `json:"unitPrice"`
}

// Subtotal returns quantity * unit price.
func (l LineItem) Subtotal() types.Money {
	return l.Quantity.Times(l.UnitPrice)
}

// Payment is one tender used to pay for the sale (split payments have several).
type Payment struct {
	Method string      `json:"method"` // e.g. cash_usd, card, transfer_ves
	Amount types.Money `json:"amount"`
}

// Financing describes installment terms when the sale is not paid in full.
type Financing struct {
	Installments int         `json:"installments"`
	DownPayment  types.Money `json:"downPayment"`
	InterestRate types.Money `json:"interestRate"`
}

// Request is the full sale payload. It is a value: once a submission attempt
// starts nothing in the pipeline modifies it.
type Request struct {
	CompanyID  string     `json:"companyId"`
	StoreID    string     `json:"storeId"`
	TerminalID string     `json:"terminalId,omitempty"`
	CashierID  string     `json:"cashierId"`
	CustomerID string     `json:"customerId,omitempty"`
	Items      []LineItem `json:"items"`
	Payments   []Payment  `json:"payments"`
	Financing  *Financing `json:"financing,omitempty"`
	Notes      string     `json:"notes,omitempty"`
}

// Total is the sum of line subtotals.
func (r Request) Total() types.Money {
	total := types.Zero()
	for _, item := range r.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// PaymentMethod is the canonical payment method string recorded on the sale.
// Split payments are joined in sorted order so that the same tenders always
// produce the same string.
func (r Request) PaymentMethod() string {
	methods := lo.Uniq(lo.Map(r.Payments, func(p Payment, _ int) string {
		return strings.TrimSpace(p.Method)
	}))
	sort.Strings(methods)
	return strings.Join(methods, "+")
}

// Validate checks the request shape. Stock availability is checked separately.
func (r Request) Validate() error {
	if r.CompanyID == "" {
		return apperror.NewValidation("company is required")
	}
	if r.StoreID == "" {
		return apperror.NewValidation("store is required")
	}
	if len(r.Items) == 0 {
		return apperror.NewValidation("cart is empty")
	}
	totals := make(map[string]types.Quantity, len(r.Items))
	for i, item := range r.Items {
		if item.ProductID == "" {
			return apperror.NewValidation("line item has no product").WithDetail("line", i+1)
		}
		if !item.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("line", i+1).
				WithDetail("product_id", item.ProductID)
		}
		total, err := totals[item.ProductID].Add(item.Quantity)
		if err != nil {
			return apperror.NewValidation("quantity out of range").
				WithDetail("line", i+1).
				WithDetail("product_id", item.ProductID)
		}
		totals[item.ProductID] = total
		if item.UnitPrice.IsNegative() {
			return apperror.NewValidation("unit price must not be negative").
				WithDetail("line", i+1).
				WithDetail("product_id", item.ProductID)
		}
	}
	if len(r.Payments) == 0 {
		return apperror.NewValidation("payment method is required")
	}
	for _, p := range r.Payments {
		if strings.TrimSpace(p.Method) == "" {
			return apperror.NewValidation("payment method is required")
		}
	}
	if r.Financing != nil && r.Financing.Installments < 1 {
		return apperror.NewValidation("financing needs at least one installment")
	}
	return nil
}

// Clone returns a deep copy so a queued request cannot alias the caller's slices.
func (r Request) Clone() Request {
	out := r
	out.Items = append([]LineItem(nil), r.Items...)
	out.Payments = append([]Payment(nil), r.Payments...)
	if r.Financing != nil {
		f := *r.Financing
		out.Financing = &f
	}
	return out
}

// RecordedSale is a sale the remote store already holds.
type RecordedSale struct {
	ID            string      `json:"id" db:"id"`
	InvoiceNumber string      `json:"invoiceNumber,omitempty" db:"invoice_number"`
	CompanyID     string      `json:"companyId" db:"company_id"`
	StoreID       string      `json:"storeId" db:"store_id"`
	CustomerID    string      `json:"customerId,omitempty" db:"customer_id"`
	TotalAmount   types.Money `json:"totalAmount" db:"total_amount"`
	PaymentMethod string      `json:"paymentMethod" db:"payment_method"`
	CreatedAt     time.Time   `json:"createdAt" db:"created_at"`
	Items         []LineItem  `json:"items,omitempty" db:"-"`
}
