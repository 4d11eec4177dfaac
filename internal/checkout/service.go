package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lokapasar/backend-lapak/internal/common"
	"github.com/lokapasar/backend-lapak/internal/coupon"
	"github.com/lokapasar/backend-lapak/internal/events"
	"github.com/lokapasar/backend-lapak/internal/obs"
	"github.com/lokapasar/backend-lapak/internal/payment"
	"github.com/lokapasar/backend-lapak/internal/pricing"
	"github.com/lokapasar/backend-lapak/internal/store"
)

// Querier captures the database methods required by the checkout service.
type Querier interface {
	GetAddressByID(ctx context.Context, id pgtype.UUID) (store.Address, error)
	GetProductByID(ctx context.Context, id pgtype.UUID) (store.Product, error)
	GetCouponForShop(ctx context.Context, arg store.GetCouponForShopParams) (store.Coupon, error)
	CreateOrder(ctx context.Context, arg store.CreateOrderParams) (store.Order, error)
	CreateOrderItem(ctx context.Context, arg store.CreateOrderItemParams) error
	DecrementProductStock(ctx context.Context, arg store.DecrementProductStockParams) (store.DecrementProductStockRow, error)
	IncrementCouponUsage(ctx context.Context, code string) error
	DeleteCartItemsByUser(ctx context.Context, userID pgtype.UUID) error
}

// ItemInput is one requested product line within a shop order.
type ItemInput struct {
	ProductID string `json:"productId" validate:"required,uuid_rfc4122"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	Variant   string `json:"variant,omitempty"`
}

// ShopOrderInput is the slice of the checkout belonging to one seller.
type ShopOrderInput struct {
	ShopID     string      `json:"shopId" validate:"required,uuid_rfc4122"`
	ShopName   string      `json:"shopName" validate:"required"`
	Items      []ItemInput `json:"items" validate:"required,min=1,dive"`
	CouponCode string      `json:"couponCode,omitempty"`
}

// Input is the CreateOrder request payload.
type Input struct {
	ShippingAddressID string           `json:"shippingAddressId" validate:"required,uuid_rfc4122"`
	BillingAddressID  string           `json:"billingAddressId,omitempty" validate:"omitempty,uuid_rfc4122"`
	PaymentMethod     string           `json:"paymentMethod" validate:"required,oneof=gateway cod"`
	ShopOrders        []ShopOrderInput `json:"shopOrders" validate:"required,min=1,dive"`
	Notes             string           `json:"notes,omitempty"`
}

// OrderSummary identifies one persisted shop order.
type OrderSummary struct {
	ID           string `json:"id"`
	HumanOrderID string `json:"humanOrderId"`
	ShopID       string `json:"shopId"`
	ShopName     string `json:"shopName"`
	Total        int64  `json:"total"`
}

// Output is the CreateOrder response payload. Amount is the grand total in
// minor currency units across all shop orders.
type Output struct {
	Orders         []OrderSummary `json:"orders"`
	GatewayOrderID string         `json:"gatewayOrderId,omitempty"`
	Amount         int64          `json:"amount"`
	Currency       string         `json:"currency"`
	Total          int64          `json:"total"`
}

// Service splits a multi-shop checkout into per-shop orders, prices them and
// persists everything inside one transaction. COD checkouts settle
// synchronously in the same transaction; gateway checkouts defer settlement
// to payment verification.
type Service struct {
	Pool     *pgxpool.Pool
	Q        *store.Queries
	Gateway  payment.Gateway
	Pricing  pricing.Params
	Currency string
	Events   *events.Bus
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Create runs the full order-creation flow for the authenticated user.
func (s *Service) Create(ctx context.Context, userID string, in Input) (Output, error) {
	if s == nil || s.Q == nil || s.Pool == nil {
		return Output{}, errors.New("checkout service not configured")
	}
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "CheckoutService.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("checkout.payment_method", in.PaymentMethod),
		attribute.Int("checkout.shop_orders", len(in.ShopOrders)),
	)

	uid, err := store.ToUUID(userID)
	if err != nil {
		return Output{}, common.BadRequest("invalid user id")
	}
	if len(in.ShopOrders) == 0 {
		return Output{}, common.BadRequest("at least one shop order is required")
	}

	var out Output
	err = store.WithTx(ctx, s.Pool, func(q *store.Queries) error {
		res, err := s.createTx(ctx, q, uid, in)
		if err != nil {
			return err
		}
		out = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		if obs.CheckoutOrdersTotal != nil {
			obs.CheckoutOrdersTotal.WithLabelValues(in.PaymentMethod, "rejected").Inc()
		}
		return Output{}, err
	}
	if obs.CheckoutOrdersTotal != nil {
		obs.CheckoutOrdersTotal.WithLabelValues(in.PaymentMethod, "created").Add(float64(len(out.Orders)))
	}
	s.emitCreated(ctx, userID, in.PaymentMethod, out)
	return out, nil
}

// shopDraft is one shop order fully validated and priced, ready to persist.
type shopDraft struct {
	shopID       pgtype.UUID
	shopName     string
	items        []store.CreateOrderItemParams
	lines        []pricing.Item
	summary      pricing.Summary
	couponCode   pgtype.Text
	couponDetail []byte
}

// createTx performs all reads, validation and writes of one checkout inside
// the caller's transaction. Exercised directly by tests through Querier.
func (s *Service) createTx(ctx context.Context, q Querier, uid pgtype.UUID, in Input) (Output, error) {
	shippingAddr, err := s.ownAddress(ctx, q, uid, in.ShippingAddressID, "shipping")
	if err != nil {
		return Output{}, err
	}
	billingAddr := shippingAddr
	if strings.TrimSpace(in.BillingAddressID) != "" {
		billingAddr, err = s.ownAddress(ctx, q, uid, in.BillingAddressID, "billing")
		if err != nil {
			return Output{}, err
		}
	}

	// Validate every line of every shop before writing anything: a single
	// unavailable product aborts the whole multi-shop request.
	drafts := make([]shopDraft, 0, len(in.ShopOrders))
	qtyByProduct := map[string]int32{}
	productOrder := make([]pgtype.UUID, 0, 8)
	var grandTotal int64
	for _, so := range in.ShopOrders {
		draft, err := s.draftShopOrder(ctx, q, so, qtyByProduct, &productOrder)
		if err != nil {
			return Output{}, err
		}
		grandTotal += draft.summary.Total
		drafts = append(drafts, draft)
	}

	paymentStatus := store.PaymentStatusAwaiting
	var gatewayRef pgtype.Text
	if in.PaymentMethod == store.PaymentMethodCOD {
		paymentStatus = store.PaymentStatusPending
	} else {
		if s.Gateway == nil {
			return Output{}, errors.New("payment gateway not configured")
		}
		receipt := "chk_" + uuid.NewString()
		gw, err := s.Gateway.CreateOrder(ctx, grandTotal, s.Currency, receipt)
		if err != nil {
			return Output{}, fmt.Errorf("register gateway order: %w", err)
		}
		gatewayRef = pgtype.Text{String: gw.ID, Valid: true}
	}

	out := Output{Amount: grandTotal, Currency: s.Currency, Total: grandTotal, GatewayOrderID: gatewayRef.String}
	shippingJSON := toJSON(addressSnapshot(shippingAddr))
	billingJSON := toJSON(addressSnapshot(billingAddr))
	for _, draft := range drafts {
		order, err := q.CreateOrder(ctx, store.CreateOrderParams{
			HumanID:         humanOrderID(s.now()),
			UserID:          uid,
			ShopID:          draft.shopID,
			ShopName:        draft.shopName,
			Subtotal:        draft.summary.Subtotal,
			Discount:        draft.summary.Discount,
			Shipping:        draft.summary.Shipping,
			Tax:             draft.summary.Tax,
			Total:           draft.summary.Total,
			CouponCode:      draft.couponCode,
			CouponSnapshot:  draft.couponDetail,
			ShippingAddress: shippingJSON,
			BillingAddress:  billingJSON,
			Notes:           toNullableText(in.Notes),
			PaymentMethod:   in.PaymentMethod,
			PaymentStatus:   paymentStatus,
			OrderStatus:     store.OrderStatusPlaced,
			GatewayOrderID:  gatewayRef,
		})
		if err != nil {
			return Output{}, err
		}
		for _, item := range draft.items {
			item.OrderID = order.ID
			if err := q.CreateOrderItem(ctx, item); err != nil {
				return Output{}, err
			}
		}
		out.Orders = append(out.Orders, OrderSummary{
			ID:           store.UUIDString(order.ID),
			HumanOrderID: order.HumanID,
			ShopID:       store.UUIDString(order.ShopID),
			ShopName:     order.ShopName,
			Total:        order.Total,
		})
	}

	// COD has no external verification phase, so settlement side effects
	// apply here, inside the same transaction as the order rows.
	if in.PaymentMethod == store.PaymentMethodCOD {
		if err := s.settleCOD(ctx, q, uid, drafts, qtyByProduct, productOrder); err != nil {
			return Output{}, err
		}
	}
	return out, nil
}

func (s *Service) draftShopOrder(ctx context.Context, q Querier, so ShopOrderInput, qtyByProduct map[string]int32, productOrder *[]pgtype.UUID) (shopDraft, error) {
	shopID, err := store.ToUUID(so.ShopID)
	if err != nil {
		return shopDraft{}, common.BadRequest(fmt.Sprintf("invalid shop id %q", so.ShopID))
	}
	draft := shopDraft{shopID: shopID, shopName: so.ShopName}
	for _, item := range so.Items {
		productID, err := store.ToUUID(item.ProductID)
		if err != nil {
			return shopDraft{}, common.BadRequest(fmt.Sprintf("invalid product id %q", item.ProductID))
		}
		product, err := q.GetProductByID(ctx, productID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return shopDraft{}, common.OrderRejected(fmt.Sprintf("product %s not found", item.ProductID), err)
			}
			return shopDraft{}, err
		}
		if !store.UUIDEqual(product.ShopID, shopID) {
			return shopDraft{}, common.OrderRejected(fmt.Sprintf("product %q does not belong to shop %q", product.Name, so.ShopName), nil)
		}
		if err := CheckAvailable(product, item.Quantity); err != nil {
			return shopDraft{}, common.OrderRejected(err.Error(), err)
		}
		draft.items = append(draft.items, store.CreateOrderItemParams{
			ProductID: product.ID,
			Name:      product.Name,
			ImageURL:  product.ImageURL,
			UnitPrice: product.Price,
			Qty:       int32(item.Quantity),
			Subtotal:  product.Price * int64(item.Quantity),
		})
		draft.lines = append(draft.lines, pricing.Item{Qty: item.Quantity, UnitPrice: product.Price})
		key := store.UUIDString(product.ID)
		if _, seen := qtyByProduct[key]; !seen {
			*productOrder = append(*productOrder, product.ID)
		}
		qtyByProduct[key] += int32(item.Quantity)
	}

	discount, freeShipping := s.applyCoupon(ctx, q, &draft, so.CouponCode)
	draft.summary = pricing.Compute(draft.lines, discount, s.Pricing, freeShipping)
	return draft, nil
}

// applyCoupon resolves and evaluates a coupon code for one shop. Promo codes
// are best effort: a missing or inapplicable coupon is ignored, never an
// error, so an expired code does not kill the checkout.
func (s *Service) applyCoupon(ctx context.Context, q Querier, draft *shopDraft, code string) (int64, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return 0, false
	}
	record, err := q.GetCouponForShop(ctx, store.GetCouponForShopParams{Code: code, ShopID: draft.shopID})
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			s.Logger.Warn().Err(err).Str("coupon", code).Msg("coupon lookup failed, continuing without discount")
		}
		return 0, false
	}
	subtotal := pricing.Subtotal(draft.lines)
	result := coupon.Validate(coupon.RuleFromModel(record), draft.lines, subtotal, s.now())
	if !result.Applicable {
		s.Logger.Debug().Err(result.Reason).Str("coupon", code).Msg("coupon not applicable, ignored")
		return 0, false
	}
	draft.couponCode = pgtype.Text{String: record.Code, Valid: true}
	draft.couponDetail = toJSON(map[string]any{
		"code":         record.Code,
		"kind":         record.Kind,
		"value":        record.Value,
		"discount":     result.Discount,
		"freeShipping": result.FreeShipping,
	})
	return result.Discount, result.FreeShipping
}

// settleCOD applies the settlement side effects for a cash-on-delivery
// checkout: aggregated stock decrement per product, one usage increment per
// distinct coupon, cart clearing. Same discipline as gateway settlement.
func (s *Service) settleCOD(ctx context.Context, q Querier, uid pgtype.UUID, drafts []shopDraft, qtyByProduct map[string]int32, productOrder []pgtype.UUID) error {
	for _, productID := range productOrder {
		qty := qtyByProduct[store.UUIDString(productID)]
		row, err := q.DecrementProductStock(ctx, store.DecrementProductStockParams{ID: productID, Qty: qty})
		if err != nil {
			return err
		}
		if row.OversellFlagged {
			s.Logger.Error().Str("product_id", store.UUIDString(productID)).Int32("qty", qty).
				Msg("stock clamped at zero during cod settlement, flagged for reconciliation")
			if obs.OversellClampTotal != nil {
				obs.OversellClampTotal.Inc()
			}
		}
	}
	seen := map[string]struct{}{}
	for _, draft := range drafts {
		if !draft.couponCode.Valid {
			continue
		}
		if _, dup := seen[draft.couponCode.String]; dup {
			continue
		}
		seen[draft.couponCode.String] = struct{}{}
		if err := q.IncrementCouponUsage(ctx, draft.couponCode.String); err != nil {
			return err
		}
		if obs.CouponRedemptionsTotal != nil {
			obs.CouponRedemptionsTotal.Inc()
		}
	}
	return q.DeleteCartItemsByUser(ctx, uid)
}

func (s *Service) ownAddress(ctx context.Context, q Querier, uid pgtype.UUID, id, kind string) (store.Address, error) {
	addrID, err := store.ToUUID(id)
	if err != nil {
		return store.Address{}, common.BadRequest(fmt.Sprintf("invalid %s address id", kind))
	}
	addr, err := q.GetAddressByID(ctx, addrID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Address{}, common.NotFound(fmt.Sprintf("%s address not found", kind))
		}
		return store.Address{}, err
	}
	if !store.UUIDEqual(addr.UserID, uid) {
		return store.Address{}, common.Forbidden(fmt.Sprintf("%s address does not belong to caller", kind))
	}
	return addr, nil
}

func (s *Service) emitCreated(ctx context.Context, userID, method string, out Output) {
	if s.Events == nil {
		return
	}
	for _, order := range out.Orders {
		payload := map[string]any{
			"orderId":       order.ID,
			"humanOrderId":  order.HumanOrderID,
			"shopId":        order.ShopID,
			"userId":        userID,
			"total":         order.Total,
			"paymentMethod": method,
		}
		if err := s.Events.Emit(ctx, events.TopicOrderCreated, order.ID, payload); err != nil {
			s.Logger.Warn().Err(err).Str("order_id", order.ID).Msg("emit order.created")
		}
	}
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func humanOrderID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("LPK-%s-%s", now.Format("20060102"), suffix)
}

func addressSnapshot(a store.Address) map[string]any {
	snapshot := map[string]any{
		"receiverName": a.ReceiverName,
		"phone":        a.Phone,
		"addressLine1": a.AddressLine1,
		"city":         a.City,
		"province":     a.Province,
		"postalCode":   a.PostalCode,
		"country":      a.Country,
	}
	if a.AddressLine2.Valid {
		snapshot["addressLine2"] = a.AddressLine2.String
	}
	return snapshot
}

func toJSON(v any) []byte {
	if v == nil {
		return nil
	}
	b, _ := json.Marshal(v)
	return b
}

func toNullableText(v string) pgtype.Text {
	if strings.TrimSpace(v) == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: v, Valid: true}
}
