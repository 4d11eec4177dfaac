package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getProductByID = `
SELECT id, shop_id, name, image_url, price, stock_count, status, oversell_flagged
FROM products
WHERE id = $1
`

// GetProductByID fetches a single product row.
func (q *Queries) GetProductByID(ctx context.Context, id pgtype.UUID) (Product, error) {
	row := q.db.QueryRow(ctx, getProductByID, id)
	var p Product
	err := row.Scan(&p.ID, &p.ShopID, &p.Name, &p.ImageURL, &p.Price, &p.StockCount, &p.Status, &p.OversellFlagged)
	return p, err
}

// Column references on the right-hand side of SET read the pre-update value,
// so oversell detection compares the old stock against the decrement while
// GREATEST keeps the stored count at zero or above.
const decrementProductStock = `
UPDATE products
SET stock_count = GREATEST(stock_count - $2, 0),
    oversell_flagged = oversell_flagged OR stock_count < $2
WHERE id = $1
RETURNING stock_count, oversell_flagged
`

// DecrementProductStockParams carries the aggregated quantity to subtract.
type DecrementProductStockParams struct {
	ID  pgtype.UUID
	Qty int32
}

// DecrementProductStockRow reports the post-decrement state.
type DecrementProductStockRow struct {
	StockCount      int32
	OversellFlagged bool
}

// DecrementProductStock subtracts the given quantity, clamping at zero and
// flagging the product when the request exceeded the available stock.
func (q *Queries) DecrementProductStock(ctx context.Context, arg DecrementProductStockParams) (DecrementProductStockRow, error) {
	row := q.db.QueryRow(ctx, decrementProductStock, arg.ID, arg.Qty)
	var r DecrementProductStockRow
	err := row.Scan(&r.StockCount, &r.OversellFlagged)
	return r, err
}
