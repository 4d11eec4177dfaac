package coupon

import (
	"errors"
	"testing"
	"time"

	"github.com/lokapasar/backend-lapak/internal/pricing"
)

func i64(v int64) *int64   { return &v }
func i32(v int32) *int32   { return &v }
func ts(t time.Time) *time.Time { return &t }

var now = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func activeRule(kind string, value int64) Rule {
	return Rule{Code: "TEST", Kind: kind, Value: value, Active: true}
}

func TestValidatePercentage(t *testing.T) {
	r := activeRule(KindPercentage, 10)
	res := Validate(r, nil, 100000, now)
	if !res.Applicable || res.Discount != 10000 {
		t.Fatalf("result = %+v, want applicable discount 10000", res)
	}
}

func TestValidatePercentageMaxDiscountCap(t *testing.T) {
	r := activeRule(KindPercentage, 10)
	r.MaxDiscount = i64(5000)
	res := Validate(r, nil, 100000, now)
	if res.Discount != 5000 {
		t.Fatalf("discount = %d, want capped 5000", res.Discount)
	}
}

func TestValidatePercentageFloors(t *testing.T) {
	r := activeRule(KindPercentage, 10)
	// 10% of 15 is 1.5; integer division floors to 1.
	res := Validate(r, nil, 15, now)
	if res.Discount != 1 {
		t.Fatalf("discount = %d, want 1", res.Discount)
	}
}

func TestValidateFixed(t *testing.T) {
	r := activeRule(KindFixed, 2500)
	res := Validate(r, nil, 100000, now)
	if res.Discount != 2500 {
		t.Fatalf("discount = %d, want 2500", res.Discount)
	}
}

func TestValidateFixedBoundedToSubtotal(t *testing.T) {
	r := activeRule(KindFixed, 5000)
	res := Validate(r, nil, 3000, now)
	if res.Discount != 3000 {
		t.Fatalf("discount = %d, want bounded to subtotal 3000", res.Discount)
	}
}

func TestValidateFreeShippingCarriesNoMoney(t *testing.T) {
	r := activeRule(KindFreeShipping, 0)
	res := Validate(r, nil, 100000, now)
	if !res.Applicable || !res.FreeShipping {
		t.Fatalf("result = %+v, want free-shipping benefit", res)
	}
	if res.Discount != 0 {
		t.Fatalf("discount = %d, want 0", res.Discount)
	}
}

func TestValidateInactive(t *testing.T) {
	r := activeRule(KindPercentage, 10)
	r.Active = false
	res := Validate(r, nil, 100000, now)
	if res.Applicable || !errors.Is(res.Reason, ErrInactive) {
		t.Fatalf("result = %+v, want ErrInactive", res)
	}
}

func TestValidateWindow(t *testing.T) {
	r := activeRule(KindPercentage, 10)
	r.ValidFrom = ts(now.Add(time.Hour))
	if res := Validate(r, nil, 100000, now); !errors.Is(res.Reason, ErrNotStarted) {
		t.Fatalf("reason = %v, want ErrNotStarted", res.Reason)
	}

	r = activeRule(KindPercentage, 10)
	r.ValidTo = ts(now.Add(-time.Hour))
	if res := Validate(r, nil, 100000, now); !errors.Is(res.Reason, ErrExpired) {
		t.Fatalf("reason = %v, want ErrExpired", res.Reason)
	}
}

func TestValidateMinPurchase(t *testing.T) {
	r := activeRule(KindPercentage, 10)
	r.MinPurchase = 50000
	if res := Validate(r, nil, 49999, now); !errors.Is(res.Reason, ErrMinPurchaseUnmet) {
		t.Fatalf("reason = %v, want ErrMinPurchaseUnmet", res.Reason)
	}
	if res := Validate(r, nil, 50000, now); !res.Applicable {
		t.Fatalf("result = %+v, want applicable at exact floor", res)
	}
}

func TestValidateUsageLimit(t *testing.T) {
	r := activeRule(KindPercentage, 10)
	r.UsageLimit = i32(100)
	r.UsedCount = 100
	if res := Validate(r, nil, 100000, now); !errors.Is(res.Reason, ErrUsageLimitReached) {
		t.Fatalf("reason = %v, want ErrUsageLimitReached", res.Reason)
	}

	r.UsedCount = 99
	if res := Validate(r, nil, 100000, now); !res.Applicable {
		t.Fatalf("result = %+v, want applicable below limit", res)
	}
}

func TestBuyXGetYCheapestUnitsFree(t *testing.T) {
	items := []pricing.Item{
		{Qty: 2, UnitPrice: 10000},
		{Qty: 1, UnitPrice: 4000},
	}
	// Buy 2 get 1: three units in the order, the cheapest one is free.
	if got := BuyXGetY(items, 2, 1); got != 4000 {
		t.Fatalf("discount = %d, want 4000", got)
	}
}

func TestBuyXGetYInsufficientQty(t *testing.T) {
	items := []pricing.Item{{Qty: 2, UnitPrice: 10000}}
	if got := BuyXGetY(items, 2, 1); got != 0 {
		t.Fatalf("discount = %d, want 0 below buy+get quantity", got)
	}
}

func TestBuyXGetYSpansLines(t *testing.T) {
	items := []pricing.Item{
		{Qty: 1, UnitPrice: 3000},
		{Qty: 1, UnitPrice: 5000},
		{Qty: 3, UnitPrice: 9000},
	}
	// Buy 3 get 2: the two cheapest units across lines are free.
	if got := BuyXGetY(items, 3, 2); got != 8000 {
		t.Fatalf("discount = %d, want 8000", got)
	}
}

func TestBuyXGetYDoesNotMutateInput(t *testing.T) {
	items := []pricing.Item{
		{Qty: 2, UnitPrice: 1000},
		{Qty: 2, UnitPrice: 2000},
	}
	BuyXGetY(items, 2, 2)
	if items[0].Qty != 2 || items[1].Qty != 2 {
		t.Fatalf("input mutated: %+v", items)
	}
}

func TestValidateBuyXGetYZeroBenefit(t *testing.T) {
	r := activeRule(KindBuyXGetY, 0)
	r.BuyQty, r.GetQty = 2, 1
	items := []pricing.Item{{Qty: 2, UnitPrice: 10000}}
	res := Validate(r, items, 20000, now)
	if res.Applicable || !errors.Is(res.Reason, ErrNoDiscount) {
		t.Fatalf("result = %+v, want ErrNoDiscount", res)
	}
}
