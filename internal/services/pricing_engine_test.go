package services

import (
	"testing"

	"github.com/shopspring/decimal"

	domain "github.com/mercy-field/pos/internal/domain"
)

func dec(value string) decimal.Decimal {
	d, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(value string) *decimal.Decimal {
	d := dec(value)
	return &d
}

func assertMoney(t *testing.T, field string, got, want decimal.Decimal) {
	t.Helper()
	if !got.Equal(want) {
		t.Fatalf("%s = %s, want %s", field, got.String(), want.String())
	}
}

func TestComputeOrderCompoundingDiscountsAndTax(t *testing.T) {
	engine := NewPricingEngine()

	cart := domain.CartState{
		Lines: []domain.CartLine{
			{ID: "1", Name: "Lamp", UnitPrice: dec("10.00"), Quantity: 2},
		},
		Settings: domain.CartSettings{
			GlobalDiscountPercent: dec("5"),
			TaxPercent:            dec("8"),
			ItemDefaultDiscounts:  map[string]decimal.Decimal{"1": dec("10")},
		},
	}

	order := engine.ComputeOrder(cart)

	if len(order.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(order.Lines))
	}
	line := order.Lines[0]
	assertMoney(t, "effectivePercent", line.EffectivePercent, dec("10"))
	assertMoney(t, "discountedUnit", line.DiscountedUnit, dec("9.00"))
	assertMoney(t, "lineTotal", line.LineTotal, dec("18.00"))
	assertMoney(t, "subtotal", order.Subtotal, dec("18.00"))
	assertMoney(t, "discountedSubtotal", order.DiscountedSubtotal, dec("17.10"))
	assertMoney(t, "tax", order.Tax, dec("1.37"))
	assertMoney(t, "total", order.Total, dec("18.47"))
}

func TestComputeOrderEmptyCart(t *testing.T) {
	order := NewPricingEngine().ComputeOrder(domain.CartState{})

	if len(order.Lines) != 0 {
		t.Fatalf("expected no lines, got %d", len(order.Lines))
	}
	assertMoney(t, "subtotal", order.Subtotal, decimal.Zero)
	assertMoney(t, "discountedSubtotal", order.DiscountedSubtotal, decimal.Zero)
	assertMoney(t, "tax", order.Tax, decimal.Zero)
	assertMoney(t, "total", order.Total, decimal.Zero)
}

func TestComputeOrderLineOverrideBeatsItemDefault(t *testing.T) {
	engine := NewPricingEngine()

	cart := domain.CartState{
		Lines: []domain.CartLine{
			{ID: "7", Name: "Coat", UnitPrice: dec("40.00"), Quantity: 1, DiscountPercent: decPtr("25")},
		},
		Settings: domain.CartSettings{
			ItemDefaultDiscounts: map[string]decimal.Decimal{"7": dec("50")},
		},
	}

	order := engine.ComputeOrder(cart)
	assertMoney(t, "discountedUnit", order.Lines[0].DiscountedUnit, dec("30.00"))
	assertMoney(t, "total", order.Total, dec("30.00"))
}

func TestComputeOrderClampsMalformedInput(t *testing.T) {
	engine := NewPricingEngine()

	cart := domain.CartState{
		Lines: []domain.CartLine{
			{ID: "a", Name: "Broken price", UnitPrice: dec("-4.00"), Quantity: 3},
			{ID: "b", Name: "Over discount", UnitPrice: dec("10.00"), Quantity: 1, DiscountPercent: decPtr("150")},
		},
		Settings: domain.CartSettings{
			GlobalDiscountPercent: dec("120"),
			TaxPercent:            dec("-8"),
		},
	}

	order := engine.ComputeOrder(cart)

	assertMoney(t, "line a total", order.Lines[0].LineTotal, decimal.Zero)
	assertMoney(t, "line b total", order.Lines[1].LineTotal, decimal.Zero)
	assertMoney(t, "subtotal", order.Subtotal, decimal.Zero)
	assertMoney(t, "tax", order.Tax, decimal.Zero)
	assertMoney(t, "total", order.Total, decimal.Zero)
}

func TestComputeOrderRoundsAtOutputNotPerLine(t *testing.T) {
	engine := NewPricingEngine()

	// Three lines whose full-precision totals each carry a third of a cent.
	// Summing first and rounding once keeps the subtotal exact.
	cart := domain.CartState{
		Lines: []domain.CartLine{
			{ID: "1", Name: "A", UnitPrice: dec("0.10"), Quantity: 1, DiscountPercent: decPtr("33.333333")},
			{ID: "2", Name: "B", UnitPrice: dec("0.10"), Quantity: 1, DiscountPercent: decPtr("33.333333")},
			{ID: "3", Name: "C", UnitPrice: dec("0.10"), Quantity: 1, DiscountPercent: decPtr("33.333333")},
		},
	}

	order := engine.ComputeOrder(cart)
	// Full precision: 3 * 0.0666666667 = 0.2000000001 -> 0.20. Rounding each
	// line first (0.07 * 3) would have produced 0.21.
	assertMoney(t, "subtotal", order.Subtotal, dec("0.20"))
}

func TestComputeOrderDeterministic(t *testing.T) {
	engine := NewPricingEngine()

	cart := domain.CartState{
		Lines: []domain.CartLine{
			{ID: "1", Name: "Mug", UnitPrice: dec("3.49"), Quantity: 4},
			{ID: "2", Name: "Chair", UnitPrice: dec("12.95"), Quantity: 1, DiscountPercent: decPtr("15")},
		},
		Settings: domain.CartSettings{
			GlobalDiscountPercent: dec("5"),
			TaxPercent:            dec("8.25"),
		},
	}

	first := engine.ComputeOrder(cart)
	second := engine.ComputeOrder(cart)

	assertMoney(t, "subtotal", second.Subtotal, first.Subtotal)
	assertMoney(t, "discountedSubtotal", second.DiscountedSubtotal, first.DiscountedSubtotal)
	assertMoney(t, "tax", second.Tax, first.Tax)
	assertMoney(t, "total", second.Total, first.Total)
	if first.Total.LessThan(first.DiscountedSubtotal) || first.DiscountedSubtotal.GreaterThan(first.Subtotal) {
		t.Fatalf("ordering invariant violated: subtotal=%s discounted=%s total=%s", first.Subtotal, first.DiscountedSubtotal, first.Total)
	}
}

func TestComputeOrderPreservesInsertionOrder(t *testing.T) {
	engine := NewPricingEngine()

	cart := domain.CartState{
		Lines: []domain.CartLine{
			{ID: "z", Name: "Last alphabetically", UnitPrice: dec("1.00"), Quantity: 1},
			{ID: "a", Name: "First alphabetically", UnitPrice: dec("2.00"), Quantity: 1},
		},
	}

	order := engine.ComputeOrder(cart)
	if order.Lines[0].ID != "z" || order.Lines[1].ID != "a" {
		t.Fatalf("expected insertion order z,a got %s,%s", order.Lines[0].ID, order.Lines[1].ID)
	}
}
