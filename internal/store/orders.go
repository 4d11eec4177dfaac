package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, human_id, user_id, shop_id, shop_name,
       subtotal, discount, shipping, tax, total,
       coupon_code, coupon_snapshot, shipping_address, billing_address, notes,
       payment_method, payment_status, failure_reason, order_status,
       gateway_order_id, paid_at, created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.HumanID, &o.UserID, &o.ShopID, &o.ShopName,
		&o.Subtotal, &o.Discount, &o.Shipping, &o.Tax, &o.Total,
		&o.CouponCode, &o.CouponSnapshot, &o.ShippingAddress, &o.BillingAddress, &o.Notes,
		&o.PaymentMethod, &o.PaymentStatus, &o.FailureReason, &o.OrderStatus,
		&o.GatewayOrderID, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

const createOrder = `
INSERT INTO orders (human_id, user_id, shop_id, shop_name,
                    subtotal, discount, shipping, tax, total,
                    coupon_code, coupon_snapshot, shipping_address, billing_address, notes,
                    payment_method, payment_status, order_status, gateway_order_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
RETURNING ` + orderColumns

// CreateOrderParams carries one shop order draft for persistence.
type CreateOrderParams struct {
	HumanID         string
	UserID          pgtype.UUID
	ShopID          pgtype.UUID
	ShopName        string
	Subtotal        int64
	Discount        int64
	Shipping        int64
	Tax             int64
	Total           int64
	CouponCode      pgtype.Text
	CouponSnapshot  []byte
	ShippingAddress []byte
	BillingAddress  []byte
	Notes           pgtype.Text
	PaymentMethod   string
	PaymentStatus   string
	OrderStatus     string
	GatewayOrderID  pgtype.Text
}

// CreateOrder persists one order row and returns the stored record.
func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, createOrder,
		arg.HumanID, arg.UserID, arg.ShopID, arg.ShopName,
		arg.Subtotal, arg.Discount, arg.Shipping, arg.Tax, arg.Total,
		arg.CouponCode, arg.CouponSnapshot, arg.ShippingAddress, arg.BillingAddress, arg.Notes,
		arg.PaymentMethod, arg.PaymentStatus, arg.OrderStatus, arg.GatewayOrderID)
	return scanOrder(row)
}

const createOrderItem = `
INSERT INTO order_items (order_id, product_id, name, image_url, unit_price, qty, subtotal)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// CreateOrderItemParams is an immutable line snapshot for one order.
type CreateOrderItemParams struct {
	OrderID   pgtype.UUID
	ProductID pgtype.UUID
	Name      string
	ImageURL  pgtype.Text
	UnitPrice int64
	Qty       int32
	Subtotal  int64
}

// CreateOrderItem persists one order line snapshot.
func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) error {
	_, err := q.db.Exec(ctx, createOrderItem,
		arg.OrderID, arg.ProductID, arg.Name, arg.ImageURL, arg.UnitPrice, arg.Qty, arg.Subtotal)
	return err
}

const getOrderByID = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

// GetOrderByID fetches a single order row.
func (q *Queries) GetOrderByID(ctx context.Context, id pgtype.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByID, id))
}

const listOrdersByUser = `
SELECT ` + orderColumns + `
FROM orders
WHERE user_id = $1
ORDER BY created_at DESC
LIMIT $2 OFFSET $3
`

// ListOrdersByUserParams pages through a user's orders, newest first.
type ListOrdersByUserParams struct {
	UserID pgtype.UUID
	Limit  int32
	Offset int32
}

// ListOrdersByUser returns the user's orders, newest first.
func (q *Queries) ListOrdersByUser(ctx context.Context, arg ListOrdersByUserParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersByUser, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const listOrderItems = `
SELECT id, order_id, product_id, name, image_url, unit_price, qty, subtotal
FROM order_items
WHERE order_id = $1
ORDER BY name
`

// ListOrderItems returns the line snapshots belonging to an order.
func (q *Queries) ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItems, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Name, &it.ImageURL, &it.UnitPrice, &it.Qty, &it.Subtotal); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

const updateOrderPaymentStatus = `
UPDATE orders
SET payment_status = $2,
    failure_reason = $3,
    paid_at = $4,
    order_status = $5,
    updated_at = now()
WHERE id = $1
`

// UpdateOrderPaymentStatusParams records a payment transition.
type UpdateOrderPaymentStatusParams struct {
	ID            pgtype.UUID
	PaymentStatus string
	FailureReason pgtype.Text
	PaidAt        pgtype.Timestamptz
	OrderStatus   string
}

// UpdateOrderPaymentStatus transitions an order's payment state.
func (q *Queries) UpdateOrderPaymentStatus(ctx context.Context, arg UpdateOrderPaymentStatusParams) error {
	_, err := q.db.Exec(ctx, updateOrderPaymentStatus,
		arg.ID, arg.PaymentStatus, arg.FailureReason, arg.PaidAt, arg.OrderStatus)
	return err
}
