package store

import "github.com/jackc/pgx/v5/pgtype"

// Product status values.
const (
	ProductStatusActive   = "active"
	ProductStatusInactive = "inactive"
)

// Payment status lifecycle for orders. An order is born awaiting (gateway) or
// pending (cod) and transitions to paid or failed exactly once.
const (
	PaymentStatusAwaiting = "awaiting"
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
)

// Order status values owned by this service. Fulfilment states are managed
// by seller tooling elsewhere.
const (
	OrderStatusPlaced    = "placed"
	OrderStatusConfirmed = "confirmed"
	OrderStatusCanceled  = "canceled"
)

// Payment methods accepted at checkout.
const (
	PaymentMethodGateway = "gateway"
	PaymentMethodCOD     = "cod"
)

// Product is a sellable item owned by a shop. StockCount never goes negative:
// settlement decrements are clamped and flag the row for reconciliation.
type Product struct {
	ID              pgtype.UUID
	ShopID          pgtype.UUID
	Name            string
	ImageURL        pgtype.Text
	Price           int64
	StockCount      int32
	Status          string
	OversellFlagged bool
}

// Coupon is a promo rule scoped to one shop, or platform-wide when ShopID is
// null. UsedCount is mutated only at settlement time.
type Coupon struct {
	ID          pgtype.UUID
	ShopID      pgtype.UUID
	Code        string
	Kind        string
	Value       int64
	MaxDiscount pgtype.Int8
	MinPurchase int64
	BuyQty      pgtype.Int4
	GetQty      pgtype.Int4
	ValidFrom   pgtype.Timestamptz
	ValidTo     pgtype.Timestamptz
	UsageLimit  pgtype.Int4
	UsedCount   int32
	Status      string
}

// Address is a stored delivery address owned by a user.
type Address struct {
	ID           pgtype.UUID
	UserID       pgtype.UUID
	ReceiverName string
	Phone        string
	AddressLine1 string
	AddressLine2 pgtype.Text
	City         string
	Province     string
	PostalCode   string
	Country      string
}

// CartItem is an ephemeral cart line; cleared when its checkout settles.
type CartItem struct {
	ID        pgtype.UUID
	UserID    pgtype.UUID
	ShopID    pgtype.UUID
	ProductID pgtype.UUID
	Qty       int32
}

// Order is one shop's slice of a checkout. A multi-shop checkout produces
// several orders sharing a gateway order reference.
type Order struct {
	ID              pgtype.UUID
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
	FailureReason   pgtype.Text
	OrderStatus     string
	GatewayOrderID  pgtype.Text
	PaidAt          pgtype.Timestamptz
	CreatedAt       pgtype.Timestamptz
	UpdatedAt       pgtype.Timestamptz
}

// OrderItem is an immutable snapshot of a product at order-creation time,
// decoupled from later product mutations.
type OrderItem struct {
	ID        pgtype.UUID
	OrderID   pgtype.UUID
	ProductID pgtype.UUID
	Name      string
	ImageURL  pgtype.Text
	UnitPrice int64
	Qty       int32
	Subtotal  int64
}
