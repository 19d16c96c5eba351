package sequence

import (
	"context"
	"fmt"

	"possync/internal/core/numerator"
	"possync/internal/domain/sale"
	"possync/pkg/logger"
)

// Oracle reads what the remote store already holds. Its answer is a best-effort
// upper bound: another terminal may commit a higher number right after the read.
type Oracle struct {
	query sale.Query
}

// NewOracle creates an oracle over the remote query interface.
func NewOracle(query sale.Query) *Oracle {
	return &Oracle{query: query}
}

// FetchHighestSequence returns the sequence embedded in the company's most
// recent invoice. It reports false when there are no sales yet, the latest
// number does not parse, or the query fails.
func (o *Oracle) FetchHighestSequence(ctx context.Context, companyID string) (int64, bool) {
	latest, err := o.query.LatestSale(ctx, companyID)
	if err != nil {
		logger.Warn(ctx, "remote sequence lookup failed, using local state",
			"company_id", companyID,
			"error", err,
		)
		return 0, false
	}
	if latest == nil {
		return 0, false
	}
	seq, ok := numerator.ParseSequence(latest.InvoiceNumber)
	if !ok {
		logger.Warn(ctx, "latest invoice number has no numeric suffix",
			"company_id", companyID,
			"invoice_number", latest.InvoiceNumber,
		)
		return 0, false
	}
	return seq, true
}

// Exists checks the whole company for invoiceNumber.
func (o *Oracle) Exists(ctx context.Context, invoiceNumber, companyID string) (bool, error) {
	exists, err := o.query.InvoiceExists(ctx, companyID, invoiceNumber)
	if err != nil {
		return false, fmt.Errorf("check invoice %s: %w", invoiceNumber, err)
	}
	return exists, nil
}
