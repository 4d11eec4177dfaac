package pricing

// Money represents a monetary value stored in minor units.
type Money = int64

// Item describes a line item used for pricing calculation.
type Item struct {
	Qty       int
	UnitPrice Money
}

// Params holds the platform-level pricing knobs applied per shop.
type Params struct {
	TaxRateBps      int
	FreeShippingMin Money
	FlatShippingFee Money
}

// Summary aggregates the computed pricing components of one shop order.
type Summary struct {
	Subtotal Money
	Discount Money
	Shipping Money
	Tax      Money
	Total    Money
}

// Subtotal sums the line totals. Lines with a non-positive quantity are skipped.
func Subtotal(items []Item) Money {
	var subtotal Money
	for _, it := range items {
		if it.Qty <= 0 {
			continue
		}
		subtotal += Money(it.Qty) * it.UnitPrice
	}
	return subtotal
}

// Compute calculates one shop's totals. The discount is expected to already be
// bounded by the coupon engine (never above the subtotal); it is subtracted
// last and deliberately not re-clamped here. freeShipping zeroes the shipping
// fee regardless of the threshold.
func Compute(items []Item, discount Money, p Params, freeShipping bool) Summary {
	subtotal := Subtotal(items)

	shipping := p.FlatShippingFee
	if freeShipping || subtotal >= p.FreeShippingMin {
		shipping = 0
	}

	// Half-up rounding on basis-point tax.
	tax := (subtotal*Money(p.TaxRateBps) + 5000) / 10000

	return Summary{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shipping,
		Tax:      tax,
		Total:    subtotal + shipping + tax - discount,
	}
}
