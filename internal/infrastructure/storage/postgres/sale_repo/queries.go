package sale_repo

import (
	"github.com/Masterminds/squirrel"

	"possync/internal/domain/sale"
	"possync/internal/infrastructure/storage/postgres"
)

const (
	salesTable     = "sales"
	itemsTable     = "sale_items"
	inventoryTable = "inventory"

	// recentSalesLimit caps how many candidates one duplicate check compares.
	recentSalesLimit = 50
)

var recordedSaleCols = []string{
	"id::text AS id",
	"COALESCE(invoice_number, '') AS invoice_number",
	"company_id",
	"store_id",
	"COALESCE(customer_id, '') AS customer_id",
	"total_amount",
	"payment_method",
	"created_at",
}

const invoiceExistsSQL = `SELECT EXISTS (SELECT 1 FROM sales WHERE company_id = $1 AND invoice_number = $2)`

const decrementStockSQL = `UPDATE inventory
SET quantity_scaled = quantity_scaled - $1, updated_at = now()
WHERE store_id = $2 AND product_id = $3 AND quantity_scaled >= $1`

func builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func insertSaleQuery(row saleRow) squirrel.InsertBuilder {
	return builder().Insert(salesTable).SetMap(postgres.StructToMap(row))
}

func attachInvoiceQuery(companyID, saleID, invoiceNumber string) squirrel.UpdateBuilder {
	return builder().
		Update(salesTable).
		Set("invoice_number", invoiceNumber).
		Where(squirrel.Eq{"id": saleID}).
		Where(squirrel.Eq{"company_id": companyID})
}

func latestSaleQuery(companyID string) squirrel.SelectBuilder {
	return builder().
		Select(recordedSaleCols...).
		From(salesTable).
		Where(squirrel.Eq{"company_id": companyID}).
		Where(squirrel.NotEq{"invoice_number": nil}).
		OrderBy("created_at DESC").
		Limit(1)
}

func recentSalesQuery(f sale.RecentFilter) squirrel.SelectBuilder {
	q := builder().
		Select(recordedSaleCols...).
		From(salesTable).
		Where(squirrel.Eq{"company_id": f.CompanyID}).
		Where(squirrel.Eq{"store_id": f.StoreID}).
		Where(squirrel.GtOrEq{"created_at": f.From}).
		Where(squirrel.LtOrEq{"created_at": f.To})
	if f.CustomerID != "" {
		q = q.Where(squirrel.Eq{"customer_id": f.CustomerID})
	}
	return q.OrderBy("created_at DESC").Limit(recentSalesLimit)
}

func saleItemsQuery(saleIDs []string) squirrel.SelectBuilder {
	return builder().
		Select("sale_id::text AS sale_id", "product_id", "quantity_scaled", "unit_price").
		From(itemsTable).
		Where(squirrel.Eq{"sale_id": saleIDs}).
		OrderBy("sale_id", "line_no")
}

func stockQuery(storeID string, productIDs []string) squirrel.SelectBuilder {
	return builder().
		Select("product_id", "quantity_scaled").
		From(inventoryTable).
		Where(squirrel.Eq{"store_id": storeID}).
		Where(squirrel.Eq{"product_id": productIDs})
}
