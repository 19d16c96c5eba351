package sale_repo

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	jsoniter "github.com/json-iterator/go"
	"github.com/shopspring/decimal"

	"possync/internal/core/id"
	"possync/internal/core/types"
	"possync/internal/domain/sale"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// saleRow is the sales table row written on submission.
type saleRow struct {
	ID            id.ID       `db:"id"`
	CompanyID     string      `db:"company_id"`
	StoreID       string      `db:"store_id"`
	TerminalID    *string     `db:"terminal_id"`
	CashierID     string      `db:"cashier_id"`
	CustomerID    *string     `db:"customer_id"`
	TotalAmount   types.Money `db:"total_amount"`
	PaymentMethod string      `db:"payment_method"`
	Payments      []byte      `db:"payments"`
	Financing     []byte      `db:"financing"`
	Notes         *string     `db:"notes"`
}

func nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func newSaleRow(saleID id.ID, req sale.Request) (saleRow, error) {
	payments, err := codec.Marshal(req.Payments)
	if err != nil {
		return saleRow{}, fmt.Errorf("encode payments: %w", err)
	}
	var financing []byte
	if req.Financing != nil {
		if financing, err = codec.Marshal(req.Financing); err != nil {
			return saleRow{}, fmt.Errorf("encode financing: %w", err)
		}
	}
	return saleRow{
		ID:            saleID,
		CompanyID:     req.CompanyID,
		StoreID:       req.StoreID,
		TerminalID:    nullable(req.TerminalID),
		CashierID:     req.CashierID,
		CustomerID:    nullable(req.CustomerID),
		TotalAmount:   req.Total(),
		PaymentMethod: req.PaymentMethod(),
		Payments:      payments,
		Financing:     financing,
		Notes:         nullable(req.Notes),
	}, nil
}

var itemColumns = []string{"sale_id", "line_no", "product_id", "quantity_scaled", "unit_price"}

// numeric converts to pgtype.Numeric, which the COPY binary protocol accepts.
func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func itemRows(saleID id.ID, items []sale.LineItem) [][]any {
	rows := make([][]any, len(items))
	for i, item := range items {
		rows[i] = []any{saleID, int32(i + 1), item.ProductID, item.Quantity.Int64Scaled(), numeric(item.UnitPrice)}
	}
	return rows
}

// itemRow is a sale_items row read back for duplicate detection.
type itemRow struct {
	SaleID         string      `db:"sale_id"`
	ProductID      string      `db:"product_id"`
	QuantityScaled int64       `db:"quantity_scaled"`
	UnitPrice      types.Money `db:"unit_price"`
}

func (r itemRow) lineItem() sale.LineItem {
	return sale.LineItem{
		ProductID: r.ProductID,
		Quantity:  types.NewQuantityFromInt64Scaled(r.QuantityScaled),
		UnitPrice: r.UnitPrice,
	}
}

// stockDemand sums quantities per product, keeping first-seen order.
type stockDemand struct {
	ProductID string
	Quantity  types.Quantity
}

func demandOf(items []sale.LineItem) ([]stockDemand, error) {
	index := make(map[string]int, len(items))
	var out []stockDemand
	for _, item := range items {
		if i, ok := index[item.ProductID]; ok {
			total, err := out[i].Quantity.Add(item.Quantity)
			if err != nil {
				return nil, fmt.Errorf("product %s: %w", item.ProductID, err)
			}
			out[i].Quantity = total
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, stockDemand{ProductID: item.ProductID, Quantity: item.Quantity})
	}
	return out, nil
}
