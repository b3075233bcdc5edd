package services

import (
	"github.com/shopspring/decimal"

	domain "github.com/mercy-field/pos/internal/domain"
)

var (
	decimalZero    = decimal.Zero
	decimalHundred = decimal.NewFromInt(100)
)

// PricingEngine converts raw cart state into per-line and order-level
// amounts. It is deterministic, holds no state, and performs no I/O, so a
// single shared instance is safe for concurrent use.
type PricingEngine struct{}

// NewPricingEngine constructs the pricing engine.
func NewPricingEngine() *PricingEngine {
	return &PricingEngine{}
}

// ComputeOrder derives the full order computation for the given cart. Line
// ordering follows cart insertion order. Intermediate math runs at full
// precision; every returned amount is rounded half-up to two decimal places
// only at this output boundary so rounding error never compounds across
// lines. Out-of-range percents and negative amounts are clamped, never
// rejected.
func (e *PricingEngine) ComputeOrder(cart domain.CartState) domain.OrderComputation {
	lines := make([]domain.LineComputation, 0, len(cart.Lines))
	subtotal := decimalZero

	for _, line := range cart.Lines {
		pct := effectiveDiscountPercent(line, cart.Settings.ItemDefaultDiscounts)
		unit := clampNonNegative(line.UnitPrice)
		quantity := line.Quantity
		if quantity < 0 {
			quantity = 0
		}

		discountedUnit := unit.Mul(decimalHundred.Sub(pct)).Div(decimalHundred)
		discountedUnit = clampNonNegative(discountedUnit)
		lineTotal := discountedUnit.Mul(decimal.NewFromInt(int64(quantity)))

		subtotal = subtotal.Add(lineTotal)

		lines = append(lines, domain.LineComputation{
			ID:               line.ID,
			Name:             line.Name,
			UnitPrice:        roundMoney(unit),
			EffectivePercent: pct,
			DiscountedUnit:   roundMoney(discountedUnit),
			Quantity:         quantity,
			LineTotal:        roundMoney(lineTotal),
		})
	}

	globalPct := clampPercent(cart.Settings.GlobalDiscountPercent)
	discountedSubtotal := subtotal.Mul(decimalHundred.Sub(globalPct)).Div(decimalHundred)
	discountedSubtotal = clampNonNegative(discountedSubtotal)

	taxPct := clampNonNegative(cart.Settings.TaxPercent)
	tax := discountedSubtotal.Mul(taxPct).Div(decimalHundred)
	total := discountedSubtotal.Add(tax)

	return domain.OrderComputation{
		Lines:              lines,
		Subtotal:           roundMoney(subtotal),
		DiscountedSubtotal: roundMoney(discountedSubtotal),
		Tax:                roundMoney(tax),
		Total:              roundMoney(total),
	}
}

// effectiveDiscountPercent resolves the discount actually applied to a line:
// its own override when set, else the register's item default, else zero.
func effectiveDiscountPercent(line domain.CartLine, defaults map[string]decimal.Decimal) decimal.Decimal {
	if line.DiscountPercent != nil {
		return clampPercent(*line.DiscountPercent)
	}
	if defaults != nil {
		if pct, ok := defaults[line.ID]; ok {
			return clampPercent(pct)
		}
	}
	return decimalZero
}

func clampPercent(pct decimal.Decimal) decimal.Decimal {
	if pct.IsNegative() {
		return decimalZero
	}
	if pct.GreaterThan(decimalHundred) {
		return decimalHundred
	}
	return pct
}

func clampNonNegative(value decimal.Decimal) decimal.Decimal {
	if value.IsNegative() {
		return decimalZero
	}
	return value
}

// roundMoney applies the register's display rounding: half-up, two decimal
// places. All engine inputs are clamped non-negative first, so decimal's
// round-half-away-from-zero is exactly half-up here.
func roundMoney(value decimal.Decimal) decimal.Decimal {
	return value.Round(2)
}
