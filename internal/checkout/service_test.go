package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"

	"github.com/lokapasar/backend-lapak/internal/common"
	"github.com/lokapasar/backend-lapak/internal/payment"
	"github.com/lokapasar/backend-lapak/internal/pricing"
	"github.com/lokapasar/backend-lapak/internal/store"
)

type stubQuerier struct {
	addresses map[string]store.Address
	products  map[string]store.Product
	coupons   map[string]store.Coupon

	orders     []store.CreateOrderParams
	items      []store.CreateOrderItemParams
	decrements []store.DecrementProductStockParams
	redeemed   []string
	cleared    []pgtype.UUID
	oversell   map[string]bool
}

func (s *stubQuerier) GetAddressByID(_ context.Context, id pgtype.UUID) (store.Address, error) {
	addr, ok := s.addresses[store.UUIDString(id)]
	if !ok {
		return store.Address{}, pgx.ErrNoRows
	}
	return addr, nil
}

func (s *stubQuerier) GetProductByID(_ context.Context, id pgtype.UUID) (store.Product, error) {
	p, ok := s.products[store.UUIDString(id)]
	if !ok {
		return store.Product{}, pgx.ErrNoRows
	}
	return p, nil
}

func (s *stubQuerier) GetCouponForShop(_ context.Context, arg store.GetCouponForShopParams) (store.Coupon, error) {
	c, ok := s.coupons[arg.Code]
	if !ok {
		return store.Coupon{}, pgx.ErrNoRows
	}
	if c.ShopID.Valid && !store.UUIDEqual(c.ShopID, arg.ShopID) {
		return store.Coupon{}, pgx.ErrNoRows
	}
	return c, nil
}

func (s *stubQuerier) CreateOrder(_ context.Context, arg store.CreateOrderParams) (store.Order, error) {
	s.orders = append(s.orders, arg)
	id, _ := store.ToUUID(uuid.NewString())
	return store.Order{
		ID:             id,
		HumanID:        arg.HumanID,
		UserID:         arg.UserID,
		ShopID:         arg.ShopID,
		ShopName:       arg.ShopName,
		Subtotal:       arg.Subtotal,
		Discount:       arg.Discount,
		Shipping:       arg.Shipping,
		Tax:            arg.Tax,
		Total:          arg.Total,
		CouponCode:     arg.CouponCode,
		PaymentMethod:  arg.PaymentMethod,
		PaymentStatus:  arg.PaymentStatus,
		OrderStatus:    arg.OrderStatus,
		GatewayOrderID: arg.GatewayOrderID,
	}, nil
}

func (s *stubQuerier) CreateOrderItem(_ context.Context, arg store.CreateOrderItemParams) error {
	s.items = append(s.items, arg)
	return nil
}

func (s *stubQuerier) DecrementProductStock(_ context.Context, arg store.DecrementProductStockParams) (store.DecrementProductStockRow, error) {
	s.decrements = append(s.decrements, arg)
	key := store.UUIDString(arg.ID)
	p := s.products[key]
	remaining := p.StockCount - arg.Qty
	flagged := false
	if remaining < 0 {
		remaining = 0
		flagged = true
	}
	p.StockCount = remaining
	s.products[key] = p
	if s.oversell == nil {
		s.oversell = map[string]bool{}
	}
	s.oversell[key] = s.oversell[key] || flagged
	return store.DecrementProductStockRow{StockCount: remaining, OversellFlagged: s.oversell[key]}, nil
}

func (s *stubQuerier) IncrementCouponUsage(_ context.Context, code string) error {
	s.redeemed = append(s.redeemed, code)
	return nil
}

func (s *stubQuerier) DeleteCartItemsByUser(_ context.Context, userID pgtype.UUID) error {
	s.cleared = append(s.cleared, userID)
	return nil
}

func mustUUID(t *testing.T) pgtype.UUID {
	t.Helper()
	id, err := store.ToUUID(uuid.NewString())
	if err != nil {
		t.Fatalf("make uuid: %v", err)
	}
	return id
}

type fixture struct {
	q       *stubQuerier
	svc     *Service
	user    pgtype.UUID
	addr    pgtype.UUID
	shopA   pgtype.UUID
	shopB   pgtype.UUID
	prodA   pgtype.UUID
	prodB   pgtype.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		user:  mustUUID(t),
		addr:  mustUUID(t),
		shopA: mustUUID(t),
		shopB: mustUUID(t),
		prodA: mustUUID(t),
		prodB: mustUUID(t),
	}
	f.q = &stubQuerier{
		addresses: map[string]store.Address{
			store.UUIDString(f.addr): {
				ID: f.addr, UserID: f.user,
				ReceiverName: "Sari", Phone: "0812", AddressLine1: "Jl. Melati 1",
				City: "Bandung", Province: "Jawa Barat", PostalCode: "40111", Country: "ID",
			},
		},
		products: map[string]store.Product{
			store.UUIDString(f.prodA): {ID: f.prodA, ShopID: f.shopA, Name: "Kopi Arabika", Price: 50000, StockCount: 10, Status: store.ProductStatusActive},
			store.UUIDString(f.prodB): {ID: f.prodB, ShopID: f.shopB, Name: "Teh Hijau", Price: 100000, StockCount: 5, Status: store.ProductStatusActive},
		},
		coupons: map[string]store.Coupon{},
	}
	f.svc = &Service{
		Gateway:  payment.SandboxGateway{Prefix: "order"},
		Pricing:  pricing.Params{TaxRateBps: 1800, FreeShippingMin: 500000, FlatShippingFee: 10000},
		Currency: "IDR",
		Logger:   zerolog.Nop(),
		Now:      func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) },
	}
	return f
}

func (f *fixture) input(method string) Input {
	return Input{
		ShippingAddressID: store.UUIDString(f.addr),
		PaymentMethod:     method,
		ShopOrders: []ShopOrderInput{
			{
				ShopID:   store.UUIDString(f.shopA),
				ShopName: "Warung A",
				Items:    []ItemInput{{ProductID: store.UUIDString(f.prodA), Quantity: 2}},
			},
			{
				ShopID:   store.UUIDString(f.shopB),
				ShopName: "Warung B",
				Items:    []ItemInput{{ProductID: store.UUIDString(f.prodB), Quantity: 1}},
			},
		},
	}
}

func TestCreateTxSplitsCartPerShop(t *testing.T) {
	f := newFixture(t)
	out, err := f.svc.createTx(context.Background(), f.q, f.user, f.input(store.PaymentMethodGateway))
	if err != nil {
		t.Fatalf("createTx: %v", err)
	}
	if len(out.Orders) != 2 {
		t.Fatalf("orders = %d, want 2", len(out.Orders))
	}
	if len(f.q.orders) != 2 {
		t.Fatalf("persisted orders = %d, want 2", len(f.q.orders))
	}
	// Each shop priced independently: 100000 subtotal + 10000 shipping + 18000 tax.
	for _, o := range out.Orders {
		if o.Total != 128000 {
			t.Fatalf("shop total = %d, want 128000", o.Total)
		}
	}
	if out.Amount != 256000 {
		t.Fatalf("amount = %d, want 256000", out.Amount)
	}
	if out.GatewayOrderID == "" {
		t.Fatal("gateway order id missing")
	}
	for _, o := range f.q.orders {
		if o.PaymentStatus != store.PaymentStatusAwaiting {
			t.Fatalf("payment status = %s, want awaiting", o.PaymentStatus)
		}
		if !o.GatewayOrderID.Valid || o.GatewayOrderID.String != out.GatewayOrderID {
			t.Fatal("orders must share the gateway order reference")
		}
	}
}

func TestCreateTxGatewayDefersSettlement(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.createTx(context.Background(), f.q, f.user, f.input(store.PaymentMethodGateway)); err != nil {
		t.Fatalf("createTx: %v", err)
	}
	if len(f.q.decrements) != 0 {
		t.Fatalf("stock decremented at gateway checkout: %v", f.q.decrements)
	}
	if len(f.q.cleared) != 0 {
		t.Fatal("cart cleared before payment verification")
	}
}

func TestCreateTxCODSettlesImmediately(t *testing.T) {
	f := newFixture(t)
	out, err := f.svc.createTx(context.Background(), f.q, f.user, f.input(store.PaymentMethodCOD))
	if err != nil {
		t.Fatalf("createTx: %v", err)
	}
	if out.GatewayOrderID != "" {
		t.Fatal("cod checkout must not register a gateway order")
	}
	for _, o := range f.q.orders {
		if o.PaymentStatus != store.PaymentStatusPending {
			t.Fatalf("payment status = %s, want pending", o.PaymentStatus)
		}
	}
	if len(f.q.decrements) != 2 {
		t.Fatalf("decrements = %d, want 2", len(f.q.decrements))
	}
	if got := f.q.products[store.UUIDString(f.prodA)].StockCount; got != 8 {
		t.Fatalf("shop A stock = %d, want 8", got)
	}
	if len(f.q.cleared) != 1 {
		t.Fatal("cart not cleared at cod settlement")
	}
}

func TestCreateTxAbortsAllShopsOnInsufficientStock(t *testing.T) {
	f := newFixture(t)
	in := f.input(store.PaymentMethodCOD)
	in.ShopOrders[1].Items[0].Quantity = 6 // shop B only has 5

	_, err := f.svc.createTx(context.Background(), f.q, f.user, in)
	if err == nil {
		t.Fatal("expected order rejection")
	}
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != common.CodeOrderRejected {
		t.Fatalf("error = %v, want ORDER_REJECTED", err)
	}
	if len(f.q.orders) != 0 || len(f.q.decrements) != 0 {
		t.Fatal("partial writes on rejected checkout")
	}
}

func TestCreateTxRejectsInactiveProduct(t *testing.T) {
	f := newFixture(t)
	p := f.q.products[store.UUIDString(f.prodA)]
	p.Status = store.ProductStatusInactive
	f.q.products[store.UUIDString(f.prodA)] = p

	_, err := f.svc.createTx(context.Background(), f.q, f.user, f.input(store.PaymentMethodCOD))
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != common.CodeOrderRejected {
		t.Fatalf("error = %v, want ORDER_REJECTED", err)
	}
}

func TestCreateTxRejectsProductFromAnotherShop(t *testing.T) {
	f := newFixture(t)
	in := f.input(store.PaymentMethodCOD)
	// Shop A claims shop B's product.
	in.ShopOrders[0].Items[0].ProductID = store.UUIDString(f.prodB)

	_, err := f.svc.createTx(context.Background(), f.q, f.user, in)
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != common.CodeOrderRejected {
		t.Fatalf("error = %v, want ORDER_REJECTED", err)
	}
}

func TestCreateTxForbidsForeignAddress(t *testing.T) {
	f := newFixture(t)
	other := f.q.addresses[store.UUIDString(f.addr)]
	other.UserID = mustUUID(t)
	f.q.addresses[store.UUIDString(f.addr)] = other

	_, err := f.svc.createTx(context.Background(), f.q, f.user, f.input(store.PaymentMethodCOD))
	var appErr *common.AppError
	if !errors.As(err, &appErr) || appErr.Code != common.CodeForbidden {
		t.Fatalf("error = %v, want FORBIDDEN", err)
	}
}

func TestCreateTxAppliesCoupon(t *testing.T) {
	f := newFixture(t)
	f.q.coupons["WELCOME10"] = store.Coupon{
		Code: "WELCOME10", Kind: "percentage", Value: 10,
		MaxDiscount: pgtype.Int8{Int64: 100000, Valid: true},
		MinPurchase: 50000, Status: "active",
	}
	in := f.input(store.PaymentMethodCOD)
	in.ShopOrders[0].CouponCode = "WELCOME10"

	out, err := f.svc.createTx(context.Background(), f.q, f.user, in)
	if err != nil {
		t.Fatalf("createTx: %v", err)
	}
	if out.Orders[0].Total != 118000 {
		t.Fatalf("shop A total = %d, want 118000 after 10%% discount", out.Orders[0].Total)
	}
	if out.Orders[1].Total != 128000 {
		t.Fatalf("shop B total = %d, coupon must not leak across shops", out.Orders[1].Total)
	}
	if len(f.q.redeemed) != 1 || f.q.redeemed[0] != "WELCOME10" {
		t.Fatalf("redeemed = %v, want one WELCOME10 increment", f.q.redeemed)
	}
}

func TestCreateTxIgnoresInapplicableCoupon(t *testing.T) {
	f := newFixture(t)
	f.q.coupons["OLD"] = store.Coupon{
		Code: "OLD", Kind: "percentage", Value: 10, Status: "active",
		ValidTo: pgtype.Timestamptz{Time: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Valid: true},
	}
	in := f.input(store.PaymentMethodCOD)
	in.ShopOrders[0].CouponCode = "OLD"

	out, err := f.svc.createTx(context.Background(), f.q, f.user, in)
	if err != nil {
		t.Fatalf("createTx: %v", err)
	}
	if out.Orders[0].Total != 128000 {
		t.Fatalf("total = %d, expired coupon must be ignored", out.Orders[0].Total)
	}
	if len(f.q.redeemed) != 0 {
		t.Fatalf("redeemed = %v, want none", f.q.redeemed)
	}
}

func TestCreateTxAggregatesDecrementsPerProduct(t *testing.T) {
	f := newFixture(t)
	in := f.input(store.PaymentMethodCOD)
	// The same product on two lines of one shop decrements once, aggregated.
	in.ShopOrders[0].Items = append(in.ShopOrders[0].Items, ItemInput{
		ProductID: store.UUIDString(f.prodA), Quantity: 3, Variant: "250g",
	})

	if _, err := f.svc.createTx(context.Background(), f.q, f.user, in); err != nil {
		t.Fatalf("createTx: %v", err)
	}
	var forA []store.DecrementProductStockParams
	for _, d := range f.q.decrements {
		if store.UUIDEqual(d.ID, f.prodA) {
			forA = append(forA, d)
		}
	}
	if len(forA) != 1 || forA[0].Qty != 5 {
		t.Fatalf("decrements for product A = %+v, want one call with qty 5", forA)
	}
}
