package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lokapasar/backend-lapak/internal/common"
	"github.com/lokapasar/backend-lapak/internal/events"
	"github.com/lokapasar/backend-lapak/internal/lock"
	"github.com/lokapasar/backend-lapak/internal/obs"
	"github.com/lokapasar/backend-lapak/internal/store"
)

// Querier captures the database methods the settlement flow needs.
type Querier interface {
	GetOrderByID(ctx context.Context, id pgtype.UUID) (store.Order, error)
	ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]store.OrderItem, error)
	UpdateOrderPaymentStatus(ctx context.Context, arg store.UpdateOrderPaymentStatusParams) error
	DecrementProductStock(ctx context.Context, arg store.DecrementProductStockParams) (store.DecrementProductStockRow, error)
	IncrementCouponUsage(ctx context.Context, code string) error
	DeleteCartItemsByUser(ctx context.Context, userID pgtype.UUID) error
}

// VerifyInput is the payment verification payload posted by the client once
// the gateway reports a capture. OrderIDs lists every shop order of the
// checkout; all of them share the same gateway order reference.
type VerifyInput struct {
	OrderIDs         []string `json:"orderIds" validate:"required,min=1,dive,uuid_rfc4122"`
	GatewayOrderID   string   `json:"gatewayOrderId" validate:"required"`
	GatewayPaymentID string   `json:"gatewayPaymentId" validate:"required"`
	Signature        string   `json:"signature" validate:"required"`
}

// VerifyOutput reports the settlement outcome for one checkout.
type VerifyOutput struct {
	Status      string   `json:"status"`
	OrderIDs    []string `json:"orderIds"`
	AlreadyPaid bool     `json:"alreadyPaid,omitempty"`
}

const (
	settleStatusPaid = "paid"

	replayKeyPrefix = "settle:failed:"
)

// Service verifies gateway payment signatures and commits the settlement:
// orders flip to paid, stock decrements once per product, coupon usage
// increments once per code, the buyer's cart is cleared. The whole commit is
// one transaction and re-running it for an already-paid checkout is a no-op.
type Service struct {
	Pool      *pgxpool.Pool
	Q         *store.Queries
	Secret    string
	Replay    *redis.Client
	ReplayTTL time.Duration
	Lock      *lock.Locker
	Events    *events.Bus
	Logger    zerolog.Logger
	Now       func() time.Time
}

// Verify runs the settlement flow for the authenticated user.
func (s *Service) Verify(ctx context.Context, userID string, in VerifyInput) (VerifyOutput, error) {
	if s == nil || s.Q == nil || s.Pool == nil {
		return VerifyOutput{}, errors.New("payment service not configured")
	}
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Verify")
	defer span.End()
	span.SetAttributes(
		attribute.String("payment.gateway_order_id", in.GatewayOrderID),
		attribute.Int("payment.orders", len(in.OrderIDs)),
	)

	uid, err := store.ToUUID(userID)
	if err != nil {
		return VerifyOutput{}, common.BadRequest("invalid user id")
	}
	orderIDs := make([]pgtype.UUID, 0, len(in.OrderIDs))
	for _, raw := range in.OrderIDs {
		id, err := store.ToUUID(raw)
		if err != nil {
			return VerifyOutput{}, common.BadRequest(fmt.Sprintf("invalid order id %q", raw))
		}
		orderIDs = append(orderIDs, id)
	}

	// A payment id that already failed signature verification is refused
	// outright so tampered payloads cannot be retried against the database.
	if s.replaySeen(ctx, in.GatewayPaymentID) {
		s.countResult("replay")
		return VerifyOutput{}, common.NewAppError(common.CodeReplay, "payment verification already rejected", 409, nil)
	}

	var (
		out         VerifyOutput
		sigMismatch bool
	)
	settle := func(ctx context.Context) error {
		return store.WithTx(ctx, s.Pool, func(q *store.Queries) error {
			res, mismatch, err := s.verifyTx(ctx, q, uid, orderIDs, in)
			if err != nil {
				return err
			}
			out = res
			sigMismatch = mismatch
			return nil
		})
	}
	if s.Lock != nil {
		// Two verifies of the same checkout racing past the status read
		// would decrement stock twice; serialise them per gateway order.
		err = s.Lock.WithLock(ctx, "settle:lock:"+in.GatewayOrderID, 30*time.Second, settle)
	} else {
		err = settle(ctx)
	}
	if err != nil {
		span.RecordError(err)
		s.countResult("rejected")
		return VerifyOutput{}, err
	}
	if sigMismatch {
		// Failure markings are committed; the rejection still surfaces.
		s.markReplay(ctx, in.GatewayPaymentID)
		s.countResult("invalid_signature")
		s.emit(ctx, events.TopicPaymentFailed, in, "signature mismatch")
		return VerifyOutput{}, common.NewAppError(common.CodeInvalidSignature, "payment signature verification failed", 400, nil)
	}
	if out.AlreadyPaid {
		s.countResult("already_paid")
		return out, nil
	}
	s.countResult("paid")
	s.emit(ctx, events.TopicOrderPaid, in, "")
	return out, nil
}

// verifyTx holds the settlement logic. The returned bool reports a signature
// mismatch whose failure markings must be committed before rejecting.
func (s *Service) verifyTx(ctx context.Context, q Querier, uid pgtype.UUID, orderIDs []pgtype.UUID, in VerifyInput) (VerifyOutput, bool, error) {
	orders := make([]store.Order, 0, len(orderIDs))
	allPaid := true
	seenOrders := map[string]struct{}{}
	for _, id := range orderIDs {
		// A repeated id must not settle the same order twice.
		if _, dup := seenOrders[store.UUIDString(id)]; dup {
			continue
		}
		seenOrders[store.UUIDString(id)] = struct{}{}
		order, err := q.GetOrderByID(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return VerifyOutput{}, false, common.NotFound(fmt.Sprintf("order %s not found", store.UUIDString(id)))
			}
			return VerifyOutput{}, false, err
		}
		if !store.UUIDEqual(order.UserID, uid) {
			return VerifyOutput{}, false, common.Forbidden("order does not belong to caller")
		}
		if order.PaymentMethod != store.PaymentMethodGateway {
			return VerifyOutput{}, false, common.BadRequest(fmt.Sprintf("order %s is not a gateway order", order.HumanID))
		}
		if !order.GatewayOrderID.Valid || order.GatewayOrderID.String != in.GatewayOrderID {
			return VerifyOutput{}, false, common.BadRequest(fmt.Sprintf("order %s does not match gateway order %s", order.HumanID, in.GatewayOrderID))
		}
		switch order.PaymentStatus {
		case store.PaymentStatusPaid:
			// Already settled; skip but keep for the idempotency check.
		case store.PaymentStatusAwaiting:
			allPaid = false
		default:
			return VerifyOutput{}, false, common.BadRequest(fmt.Sprintf("order %s is %s and cannot be verified", order.HumanID, order.PaymentStatus))
		}
		orders = append(orders, order)
	}

	out := VerifyOutput{Status: settleStatusPaid, OrderIDs: in.OrderIDs}
	if allPaid {
		out.AlreadyPaid = true
		return out, false, nil
	}

	if !VerifySignature(in.GatewayOrderID, in.GatewayPaymentID, in.Signature, s.Secret) {
		reason := pgtype.Text{String: "signature mismatch", Valid: true}
		for _, order := range orders {
			if order.PaymentStatus != store.PaymentStatusAwaiting {
				continue
			}
			err := q.UpdateOrderPaymentStatus(ctx, store.UpdateOrderPaymentStatusParams{
				ID:            order.ID,
				PaymentStatus: store.PaymentStatusFailed,
				FailureReason: reason,
				OrderStatus:   order.OrderStatus,
			})
			if err != nil {
				return VerifyOutput{}, false, err
			}
		}
		return VerifyOutput{}, true, nil
	}

	paidAt := pgtype.Timestamptz{Time: s.now(), Valid: true}
	qtyByProduct := map[string]int32{}
	productOrder := make([]pgtype.UUID, 0, 8)
	couponSeen := map[string]struct{}{}
	for _, order := range orders {
		if order.PaymentStatus != store.PaymentStatusAwaiting {
			continue
		}
		err := q.UpdateOrderPaymentStatus(ctx, store.UpdateOrderPaymentStatusParams{
			ID:            order.ID,
			PaymentStatus: store.PaymentStatusPaid,
			PaidAt:        paidAt,
			OrderStatus:   store.OrderStatusConfirmed,
		})
		if err != nil {
			return VerifyOutput{}, false, err
		}
		items, err := q.ListOrderItems(ctx, order.ID)
		if err != nil {
			return VerifyOutput{}, false, err
		}
		for _, item := range items {
			key := store.UUIDString(item.ProductID)
			if _, seen := qtyByProduct[key]; !seen {
				productOrder = append(productOrder, item.ProductID)
			}
			qtyByProduct[key] += item.Qty
		}
		if order.CouponCode.Valid {
			couponSeen[order.CouponCode.String] = struct{}{}
		}
	}

	for _, productID := range productOrder {
		qty := qtyByProduct[store.UUIDString(productID)]
		row, err := q.DecrementProductStock(ctx, store.DecrementProductStockParams{ID: productID, Qty: qty})
		if err != nil {
			return VerifyOutput{}, false, err
		}
		if row.OversellFlagged {
			s.Logger.Error().Str("product_id", store.UUIDString(productID)).Int32("qty", qty).
				Msg("stock clamped at zero during settlement, flagged for reconciliation")
			if obs.OversellClampTotal != nil {
				obs.OversellClampTotal.Inc()
			}
		}
	}
	for code := range couponSeen {
		if err := q.IncrementCouponUsage(ctx, code); err != nil {
			return VerifyOutput{}, false, err
		}
		if obs.CouponRedemptionsTotal != nil {
			obs.CouponRedemptionsTotal.Inc()
		}
	}
	if err := q.DeleteCartItemsByUser(ctx, uid); err != nil {
		return VerifyOutput{}, false, err
	}
	return out, false, nil
}

func (s *Service) replaySeen(ctx context.Context, paymentID string) bool {
	if s.Replay == nil || paymentID == "" {
		return false
	}
	n, err := s.Replay.Exists(ctx, replayKeyPrefix+common.Sha256Hex(paymentID)).Result()
	if err != nil {
		s.Logger.Warn().Err(err).Msg("replay guard lookup failed, continuing")
		return false
	}
	return n > 0
}

func (s *Service) markReplay(ctx context.Context, paymentID string) {
	if s.Replay == nil || paymentID == "" {
		return
	}
	ttl := s.ReplayTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if err := s.Replay.Set(ctx, replayKeyPrefix+common.Sha256Hex(paymentID), "1", ttl).Err(); err != nil {
		s.Logger.Warn().Err(err).Msg("replay guard store failed")
	}
}

func (s *Service) countResult(result string) {
	if obs.SettlementTotal != nil {
		obs.SettlementTotal.WithLabelValues(result).Inc()
	}
}

func (s *Service) emit(ctx context.Context, topic string, in VerifyInput, reason string) {
	if s.Events == nil {
		return
	}
	for _, orderID := range in.OrderIDs {
		payload := map[string]any{
			"orderId":          orderID,
			"gatewayOrderId":   in.GatewayOrderID,
			"gatewayPaymentId": in.GatewayPaymentID,
		}
		if reason != "" {
			payload["reason"] = reason
		}
		if err := s.Events.Emit(ctx, topic, orderID, payload); err != nil {
			s.Logger.Warn().Err(err).Str("order_id", orderID).Msg("emit settlement event")
		}
	}
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
