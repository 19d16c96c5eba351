// Package duplicate flags a sale that looks like an accidental resubmission of
// one recorded moments earlier.
package duplicate

import (
	"context"
	"time"

	"possync/internal/core/types"
	"possync/internal/domain/sale"
	"possync/pkg/logger"
)

const (
	// DefaultWindow is how far back recorded sales are compared.
	DefaultWindow = 5 * time.Minute
)

// DefaultEpsilon absorbs rounding differences in totals and unit prices.
var DefaultEpsilon = types.MustMoney("0.01")

// Policy is the matching tolerance for one company. Zero fields fall back to the defaults.
type Policy struct {
	Window  time.Duration
	Epsilon types.Money
}

// Config holds the default policy and per-company overrides.
type Config struct {
	Default   Policy
	Overrides map[string]Policy
}

// DefaultConfig returns a 5 minute window with a 0.01 epsilon and no overrides.
func DefaultConfig() Config {
	return Config{Default: Policy{Window: DefaultWindow, Epsilon: DefaultEpsilon}}
}

// PolicyFor resolves the effective policy for companyID.
func (c Config) PolicyFor(companyID string) Policy {
	p := c.Default
	if o, ok := c.Overrides[companyID]; ok {
		if o.Window > 0 {
			p.Window = o.Window
		}
		if !o.Epsilon.IsZero() {
			p.Epsilon = o.Epsilon
		}
	}
	if p.Window <= 0 {
		p.Window = DefaultWindow
	}
	if p.Epsilon.IsZero() {
		p.Epsilon = DefaultEpsilon
	}
	return p
}

// Verdict is the result of a duplicate check.
type Verdict struct {
	IsDuplicate bool
	Match       *sale.RecordedSale
}

// Detector compares a pending sale against recently recorded ones.
type Detector struct {
	query sale.Query
	cfg   Config
	now   func() time.Time
}

// Option customizes a Detector.
type Option func(*Detector)

// WithClock overrides the time source that anchors the window.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// NewDetector creates a detector.
func NewDetector(query sale.Query, cfg Config, opts ...Option) *Detector {
	d := &Detector{query: query, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Check looks for a recorded sale of the same store within the window that has
// the same total (within epsilon), the same payment method string and the same
// multiset of line items. The first match wins.
//
// A failing query never blocks the sale: the check reports no duplicate.
func (d *Detector) Check(ctx context.Context, req sale.Request, companyID, storeID string) Verdict {
	policy := d.cfg.PolicyFor(companyID)
	now := d.now()

	recent, err := d.query.RecentSales(ctx, sale.RecentFilter{
		CompanyID:  companyID,
		StoreID:    storeID,
		CustomerID: req.CustomerID,
		From:       now.Add(-policy.Window),
		To:         now,
	})
	if err != nil {
		logger.Warn(ctx, "duplicate check unavailable, allowing sale",
			"company_id", companyID,
			"store_id", storeID,
			"error", err,
		)
		return Verdict{}
	}

	total := req.Total()
	method := req.PaymentMethod()
	for i := range recent {
		candidate := &recent[i]
		if !types.WithinTolerance(candidate.TotalAmount, total, policy.Epsilon) {
			continue
		}
		if candidate.PaymentMethod != method {
			continue
		}
		if !sameItems(req.Items, candidate.Items, policy.Epsilon) {
			continue
		}
		logger.Info(ctx, "possible duplicate sale",
			"company_id", companyID,
			"store_id", storeID,
			"matched_sale_id", candidate.ID,
			"matched_invoice_number", candidate.InvoiceNumber,
		)
		return Verdict{IsDuplicate: true, Match: candidate}
	}
	return Verdict{}
}

// sameItems reports whether a and b are equal as multisets of
// (product, quantity, unit price), with prices compared within eps.
func sameItems(a, b []sale.LineItem, eps types.Money) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, x := range a {
		found := false
		for j, y := range b {
			if used[j] || x.ProductID != y.ProductID || x.Quantity != y.Quantity {
				continue
			}
			if !types.WithinTolerance(x.UnitPrice, y.UnitPrice, eps) {
				continue
			}
			used[j] = true
			found = true
			break
		}
		if !found {
			return false
		}
	}
	return true
}
