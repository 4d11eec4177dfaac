package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getCouponForShop = `
SELECT id, shop_id, code, kind, value, max_discount, min_purchase,
       buy_qty, get_qty, valid_from, valid_to, usage_limit, used_count, status
FROM coupons
WHERE code = $1 AND (shop_id = $2 OR shop_id IS NULL)
ORDER BY shop_id NULLS LAST
LIMIT 1
`

// GetCouponForShopParams selects a coupon by code, preferring a shop-scoped
// record over a platform-wide one.
type GetCouponForShopParams struct {
	Code   string
	ShopID pgtype.UUID
}

// GetCouponForShop resolves the coupon record applicable to the given shop.
func (q *Queries) GetCouponForShop(ctx context.Context, arg GetCouponForShopParams) (Coupon, error) {
	row := q.db.QueryRow(ctx, getCouponForShop, arg.Code, arg.ShopID)
	var c Coupon
	err := row.Scan(&c.ID, &c.ShopID, &c.Code, &c.Kind, &c.Value, &c.MaxDiscount, &c.MinPurchase,
		&c.BuyQty, &c.GetQty, &c.ValidFrom, &c.ValidTo, &c.UsageLimit, &c.UsedCount, &c.Status)
	return c, err
}

const incrementCouponUsage = `
UPDATE coupons
SET used_count = LEAST(used_count + 1, COALESCE(usage_limit, used_count + 1))
WHERE code = $1
`

// IncrementCouponUsage bumps the usage counter for the coupon code. Called
// only at settlement time, once per distinct code per checkout. Two checkouts
// validated just under the limit can both settle; the counter clamps at
// usage_limit rather than overshooting, mirroring the stock decrement clamp.
func (q *Queries) IncrementCouponUsage(ctx context.Context, code string) error {
	_, err := q.db.Exec(ctx, incrementCouponUsage, code)
	return err
}
