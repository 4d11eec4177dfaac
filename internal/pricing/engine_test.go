package pricing

import "testing"

var testParams = Params{
	TaxRateBps:      1800,
	FreeShippingMin: 500000,
	FlatShippingFee: 10000,
}

func TestComputeFlatShippingAndTax(t *testing.T) {
	// Two 500.00 units: subtotal 1000.00, below the free-shipping threshold.
	items := []Item{{Qty: 2, UnitPrice: 50000}}
	got := Compute(items, 0, testParams, false)

	want := Summary{Subtotal: 100000, Discount: 0, Shipping: 10000, Tax: 18000, Total: 128000}
	if got != want {
		t.Fatalf("Compute() = %+v, want %+v", got, want)
	}
}

func TestComputeDiscountSubtractedAfterTax(t *testing.T) {
	// 10% welcome discount on a 1000.00 subtotal: tax stays on the full
	// subtotal, the discount comes off the final total.
	items := []Item{{Qty: 2, UnitPrice: 50000}}
	got := Compute(items, 10000, testParams, false)

	if got.Total != 118000 {
		t.Fatalf("Total = %d, want 118000", got.Total)
	}
	if got.Tax != 18000 {
		t.Fatalf("Tax = %d, want 18000 (tax base is undiscounted subtotal)", got.Tax)
	}
}

func TestComputeFreeShippingThreshold(t *testing.T) {
	items := []Item{{Qty: 1, UnitPrice: 500000}}
	got := Compute(items, 0, testParams, false)
	if got.Shipping != 0 {
		t.Fatalf("Shipping = %d, want 0 at threshold", got.Shipping)
	}

	items = []Item{{Qty: 1, UnitPrice: 499999}}
	got = Compute(items, 0, testParams, false)
	if got.Shipping != 10000 {
		t.Fatalf("Shipping = %d, want flat fee below threshold", got.Shipping)
	}
}

func TestComputeFreeShippingCoupon(t *testing.T) {
	items := []Item{{Qty: 1, UnitPrice: 20000}}
	got := Compute(items, 0, testParams, true)
	if got.Shipping != 0 {
		t.Fatalf("Shipping = %d, want 0 with free-shipping benefit", got.Shipping)
	}
	if got.Tax != 3600 {
		t.Fatalf("Tax = %d, want 3600", got.Tax)
	}
}

func TestComputeTaxRoundsHalfUp(t *testing.T) {
	cases := []struct {
		subtotal Money
		want     Money
	}{
		{25, 5},   // 4.5 rounds up
		{24, 4},   // 4.32 rounds down
		{1, 0},    // 0.18 rounds down
		{3, 1},    // 0.54 rounds up
		{100, 18}, // exact
	}
	for _, tc := range cases {
		got := Compute([]Item{{Qty: 1, UnitPrice: tc.subtotal}}, 0, Params{TaxRateBps: 1800}, true)
		if got.Tax != tc.want {
			t.Errorf("tax on %d = %d, want %d", tc.subtotal, got.Tax, tc.want)
		}
	}
}

func TestSubtotalSkipsNonPositiveQty(t *testing.T) {
	items := []Item{{Qty: 2, UnitPrice: 100}, {Qty: 0, UnitPrice: 500}, {Qty: -1, UnitPrice: 500}}
	if got := Subtotal(items); got != 200 {
		t.Fatalf("Subtotal = %d, want 200", got)
	}
}

func TestComputeMultiShopScenario(t *testing.T) {
	// Shop A: 2 x 500.00, shop B: 1 x 1000.00. Each shop prices
	// independently and both land on the same total.
	shopA := Compute([]Item{{Qty: 2, UnitPrice: 50000}}, 0, testParams, false)
	shopB := Compute([]Item{{Qty: 1, UnitPrice: 100000}}, 0, testParams, false)

	if shopA.Total != 128000 || shopB.Total != 128000 {
		t.Fatalf("totals = %d/%d, want 128000 each", shopA.Total, shopB.Total)
	}
	if grand := shopA.Total + shopB.Total; grand != 256000 {
		t.Fatalf("grand total = %d, want 256000", grand)
	}
}
