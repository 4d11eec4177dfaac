package coupon

import (
	"errors"
	"time"

	"github.com/lokapasar/backend-lapak/internal/pricing"
	"github.com/lokapasar/backend-lapak/internal/store"
)

// Discount kinds supported by the platform.
const (
	KindPercentage   = "percentage"
	KindFixed        = "fixed"
	KindFreeShipping = "free_shipping"
	KindBuyXGetY     = "buy_x_get_y"
)

var (
	// ErrInactive is returned when the coupon is not in active status.
	ErrInactive = errors.New("coupon not active")
	// ErrNotStarted is returned before the validity window opens.
	ErrNotStarted = errors.New("coupon not yet valid")
	// ErrExpired is returned after the validity window closes.
	ErrExpired = errors.New("coupon expired")
	// ErrMinPurchaseUnmet indicates the shop subtotal is below the coupon floor.
	ErrMinPurchaseUnmet = errors.New("coupon minimum purchase not met")
	// ErrUsageLimitReached indicates the global usage quota is exhausted.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrNoDiscount indicates the rule evaluated to a zero benefit.
	ErrNoDiscount = errors.New("coupon yields no discount")
)

// Rule captures the runtime constraints of a coupon. Scope selection (which
// shop's record to evaluate) happens at lookup time; the rule itself is pure.
type Rule struct {
	Code        string
	Kind        string
	Value       int64
	MaxDiscount *int64
	MinPurchase int64
	BuyQty      int
	GetQty      int
	ValidFrom   *time.Time
	ValidTo     *time.Time
	UsageLimit  *int32
	UsedCount   int32
	Active      bool
}

// Result is the outcome of evaluating a rule against one shop order.
// FreeShipping is a separate benefit channel: it zeroes the shipping fee and
// carries no monetary discount.
type Result struct {
	Applicable   bool
	Discount     int64
	FreeShipping bool
	Reason       error
}

// Validate evaluates the rule against a shop subtotal at the given instant.
// It never mutates usage counters; incrementing UsedCount is settlement work.
func Validate(r Rule, items []pricing.Item, shopSubtotal int64, now time.Time) Result {
	if !r.Active {
		return Result{Reason: ErrInactive}
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return Result{Reason: ErrNotStarted}
	}
	if r.ValidTo != nil && now.After(*r.ValidTo) {
		return Result{Reason: ErrExpired}
	}
	if shopSubtotal < r.MinPurchase {
		return Result{Reason: ErrMinPurchaseUnmet}
	}
	if r.UsageLimit != nil && r.UsedCount >= *r.UsageLimit {
		return Result{Reason: ErrUsageLimitReached}
	}

	switch r.Kind {
	case KindFreeShipping:
		return Result{Applicable: true, FreeShipping: true}
	case KindBuyXGetY:
		discount := BuyXGetY(items, r.BuyQty, r.GetQty)
		if discount <= 0 {
			return Result{Reason: ErrNoDiscount}
		}
		return Result{Applicable: true, Discount: boundToSubtotal(discount, shopSubtotal)}
	default:
		discount := monetaryDiscount(r, shopSubtotal)
		if discount <= 0 {
			return Result{Reason: ErrNoDiscount}
		}
		return Result{Applicable: true, Discount: discount}
	}
}

func monetaryDiscount(r Rule, shopSubtotal int64) int64 {
	var discount int64
	switch r.Kind {
	case KindPercentage:
		discount = (shopSubtotal * r.Value) / 100
		if r.MaxDiscount != nil && discount > *r.MaxDiscount {
			discount = *r.MaxDiscount
		}
	case KindFixed:
		discount = r.Value
	default:
		return 0
	}
	return boundToSubtotal(discount, shopSubtotal)
}

// A discount above the shop subtotal is a data error; bounding here keeps the
// order total from going negative downstream.
func boundToSubtotal(discount, shopSubtotal int64) int64 {
	if discount > shopSubtotal {
		return shopSubtotal
	}
	if discount < 0 {
		return 0
	}
	return discount
}

// BuyXGetY prices the giveaway units of a buy-X-get-Y promotion. When the shop
// order carries at least buyQty+getQty units, the getQty cheapest units are
// free. Quantity is counted across lines; the cheapest line funds the benefit.
func BuyXGetY(items []pricing.Item, buyQty, getQty int) int64 {
	if buyQty <= 0 || getQty <= 0 {
		return 0
	}
	var totalQty int
	for _, it := range items {
		if it.Qty > 0 {
			totalQty += it.Qty
		}
	}
	if totalQty < buyQty+getQty {
		return 0
	}
	var discount int64
	remaining := getQty
	for remaining > 0 {
		idx := cheapestLine(items)
		if idx < 0 {
			break
		}
		free := items[idx].Qty
		if free > remaining {
			free = remaining
		}
		discount += int64(free) * items[idx].UnitPrice
		remaining -= free
		// Copy so the caller's slice stays untouched while we consume lines.
		trimmed := make([]pricing.Item, len(items))
		copy(trimmed, items)
		trimmed[idx].Qty -= free
		items = trimmed
	}
	return discount
}

func cheapestLine(items []pricing.Item) int {
	idx := -1
	for i, it := range items {
		if it.Qty <= 0 || it.UnitPrice <= 0 {
			continue
		}
		if idx < 0 || it.UnitPrice < items[idx].UnitPrice {
			idx = i
		}
	}
	return idx
}

// RuleFromModel converts a stored coupon row into a pure evaluation rule.
func RuleFromModel(c store.Coupon) Rule {
	rule := Rule{
		Code:        c.Code,
		Kind:        c.Kind,
		Value:       c.Value,
		MinPurchase: c.MinPurchase,
		UsedCount:   c.UsedCount,
		Active:      c.Status == "active",
	}
	if c.MaxDiscount.Valid {
		v := c.MaxDiscount.Int64
		rule.MaxDiscount = &v
	}
	if c.BuyQty.Valid {
		rule.BuyQty = int(c.BuyQty.Int32)
	}
	if c.GetQty.Valid {
		rule.GetQty = int(c.GetQty.Int32)
	}
	if c.ValidFrom.Valid {
		rule.ValidFrom = &c.ValidFrom.Time
	}
	if c.ValidTo.Valid {
		rule.ValidTo = &c.ValidTo.Time
	}
	if c.UsageLimit.Valid {
		limit := c.UsageLimit.Int32
		rule.UsageLimit = &limit
	}
	return rule
}
