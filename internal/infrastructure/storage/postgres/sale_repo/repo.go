// Package sale_repo is the PostgreSQL implementation of the remote sale store.
package sale_repo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/lo"

	"possync/internal/core/apperror"
	"possync/internal/core/id"
	"possync/internal/core/types"
	"possync/internal/domain/sale"
	"possync/internal/infrastructure/storage/postgres"
)

// Repo records sales, assigns invoice numbers and answers sale queries.
type Repo struct {
	txm    *postgres.TxManager
	copier *postgres.BatchInserter
	batch  *postgres.BatchExecutor
}

// New creates a repository over txm.
func New(txm *postgres.TxManager) *Repo {
	return &Repo{
		txm:    txm,
		copier: postgres.NewBatchInserter(txm),
		batch:  postgres.NewBatchExecutor(txm),
	}
}

var (
	_ sale.Remote       = (*Repo)(nil)
	_ sale.StockChecker = (*Repo)(nil)
)

// Submit records the sale, its lines and the stock movement in one
// transaction and returns the new sale id. The sale has no invoice number yet.
func (r *Repo) Submit(ctx context.Context, req sale.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	saleID := id.New()

	err := r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		row, err := newSaleRow(saleID, req)
		if err != nil {
			return err
		}

		sql, args, err := insertSaleQuery(row).ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}

		if _, err := r.copier.CopyFromSlice(ctx, itemsTable, itemColumns, itemRows(saleID, req.Items)); err != nil {
			return err
		}

		return r.takeStock(ctx, req)
	})
	if err != nil {
		return "", mapError(err)
	}
	return saleID.String(), nil
}

// takeStock decrements tracked inventory. A product without an inventory row
// is not tracked; a tracked product with too little stock fails the sale.
func (r *Repo) takeStock(ctx context.Context, req sale.Request) error {
	demand, err := demandOf(req.Items)
	if err != nil {
		return apperror.NewValidation("quantity out of range").WithDetail("reason", err.Error())
	}
	queries := lo.Map(demand, func(d stockDemand, _ int) postgres.BatchQuery {
		return postgres.BatchQuery{
			SQL:  decrementStockSQL,
			Args: []any{d.Quantity.Int64Scaled(), req.StoreID, d.ProductID},
		}
	})

	tags, err := r.batch.ExecuteBatch(ctx, queries)
	if err != nil {
		return fmt.Errorf("update inventory: %w", err)
	}

	var short []stockDemand
	for i, tag := range tags {
		if tag.RowsAffected() == 0 {
			short = append(short, demand[i])
		}
	}
	if len(short) == 0 {
		return nil
	}

	onHand, err := r.stockLevels(ctx, req.StoreID, lo.Map(short, func(d stockDemand, _ int) string { return d.ProductID }))
	if err != nil {
		return err
	}
	for _, d := range short {
		if available, tracked := onHand[d.ProductID]; tracked {
			return apperror.NewInsufficientStock(d.ProductID, d.Quantity.String(), available.String())
		}
	}
	return nil
}

func (r *Repo) stockLevels(ctx context.Context, storeID string, productIDs []string) (map[string]types.Quantity, error) {
	sql, args, err := stockQuery(storeID, productIDs).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stock query: %w", err)
	}

	var rows []struct {
		ProductID      string `db:"product_id"`
		QuantityScaled int64  `db:"quantity_scaled"`
	}
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("query stock: %w", err)
	}

	out := make(map[string]types.Quantity, len(rows))
	for _, row := range rows {
		out[row.ProductID] = types.NewQuantityFromInt64Scaled(row.QuantityScaled)
	}
	return out, nil
}

// AttachInvoice sets the invoice number of a recorded sale. A number already
// used by another sale of the company yields a DUPLICATE_ENTRY error.
func (r *Repo) AttachInvoice(ctx context.Context, companyID, saleID, invoiceNumber string) error {
	if !id.IsValid(saleID) {
		return apperror.NewValidation("invalid sale id").WithDetail("sale_id", saleID)
	}

	err := r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		sql, args, err := attachInvoiceQuery(companyID, saleID, invoiceNumber).ToSql()
		if err != nil {
			return fmt.Errorf("build update: %w", err)
		}
		tag, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("attach invoice %s: %w", invoiceNumber, err)
		}
		if tag.RowsAffected() == 0 {
			return apperror.NewValidation("sale not found").
				WithDetail("sale_id", saleID).
				WithDetail("company_id", companyID)
		}
		return nil
	})
	if err != nil {
		return mapError(err)
	}
	return nil
}

// LatestSale returns the most recent invoiced sale of the company, or nil.
func (r *Repo) LatestSale(ctx context.Context, companyID string) (*sale.RecordedSale, error) {
	sql, args, err := latestSaleQuery(companyID).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out sale.RecordedSale
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &out, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("latest sale: %w", err)
	}
	return &out, nil
}

// InvoiceExists checks the whole company for invoiceNumber.
func (r *Repo) InvoiceExists(ctx context.Context, companyID, invoiceNumber string) (bool, error) {
	var exists bool
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, invoiceExistsSQL, companyID, invoiceNumber).Scan(&exists); err != nil {
		return false, fmt.Errorf("invoice exists: %w", err)
	}
	return exists, nil
}

// RecentSales returns matching sales with their line items, newest first.
func (r *Repo) RecentSales(ctx context.Context, f sale.RecentFilter) ([]sale.RecordedSale, error) {
	var out []sale.RecordedSale

	err := r.txm.ReadOnly(ctx, func(ctx context.Context) error {
		sql, args, err := recentSalesQuery(f).ToSql()
		if err != nil {
			return fmt.Errorf("build query: %w", err)
		}
		q := r.txm.GetQuerier(ctx)
		if err := pgxscan.Select(ctx, q, &out, sql, args...); err != nil {
			return fmt.Errorf("recent sales: %w", err)
		}
		if len(out) == 0 {
			return nil
		}

		sql, args, err = saleItemsQuery(lo.Map(out, func(s sale.RecordedSale, _ int) string { return s.ID })).ToSql()
		if err != nil {
			return fmt.Errorf("build items query: %w", err)
		}
		var items []itemRow
		if err := pgxscan.Select(ctx, q, &items, sql, args...); err != nil {
			return fmt.Errorf("sale items: %w", err)
		}

		bySale := lo.GroupBy(items, func(it itemRow) string { return it.SaleID })
		for i := range out {
			out[i].Items = lo.Map(bySale[out[i].ID], func(it itemRow, _ int) sale.LineItem { return it.lineItem() })
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Available returns on-hand stock, or types.UnlimitedQuantity for untracked products.
func (r *Repo) Available(ctx context.Context, storeID, productID string) (types.Quantity, error) {
	levels, err := r.stockLevels(ctx, storeID, []string{productID})
	if err != nil {
		return 0, err
	}
	q, tracked := levels[productID]
	if !tracked {
		return types.UnlimitedQuantity, nil
	}
	return q, nil
}

// mapError turns server-side rejections into application errors. Connection
// failures are returned unchanged so they classify as network failures.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperror.AsAppError(err); ok {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NewValidation("sale not found")
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch {
	case pgErr.Code == "23505" && strings.Contains(pgErr.ConstraintName, "invoice"):
		return apperror.NewDuplicate("sale", "invoice_number", pgErr.Detail).WithCause(err)
	case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P0"):
		return err
	case strings.HasPrefix(pgErr.Code, "22"), strings.HasPrefix(pgErr.Code, "23"), pgErr.Code == "P0001":
		return apperror.NewRejected(pgErr.Message).WithCause(err)
	default:
		return err
	}
}
