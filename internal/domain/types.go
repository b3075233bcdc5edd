package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentMethod enumerates the ways a sale can be paid at the register.
type PaymentMethod string

const (
	// MethodCash indicates payment settled in cash at the register.
	MethodCash PaymentMethod = "cash"
	// MethodCard indicates payment captured through the card processor.
	MethodCard PaymentMethod = "card"
)

// AttemptStatus describes the terminal outcome of a payment attempt.
type AttemptStatus string

const (
	// AttemptSucceeded indicates the payment was captured.
	AttemptSucceeded AttemptStatus = "succeeded"
	// AttemptFailed indicates the payment terminated without capture.
	AttemptFailed AttemptStatus = "failed"
)

// CartLine is one distinct item entry in the cart, unique by item id.
// DiscountPercent nil defers to the register's per-item default discount.
type CartLine struct {
	ID              string
	Name            string
	UnitPrice       decimal.Decimal
	Quantity        int
	DiscountPercent *decimal.Decimal
}

// CartSettings is the register-configured subset of cart state that survives
// restarts: discounts, tax, and the buyer fields. Cart lines never persist.
type CartSettings struct {
	GlobalDiscountPercent decimal.Decimal
	TaxPercent            decimal.Decimal
	ItemDefaultDiscounts  map[string]decimal.Decimal
	BuyerName             string
	BuyerPhone            string
}

// Clone returns a deep copy so callers cannot alias the defaults map.
func (s CartSettings) Clone() CartSettings {
	dup := s
	if s.ItemDefaultDiscounts != nil {
		dup.ItemDefaultDiscounts = make(map[string]decimal.Decimal, len(s.ItemDefaultDiscounts))
		for k, v := range s.ItemDefaultDiscounts {
			dup.ItemDefaultDiscounts[k] = v
		}
	}
	return dup
}

// CartState is the full register cart: ephemeral lines in insertion order
// plus the persisted settings. Every line carries Quantity >= 1; removal is
// the only way a line leaves the cart.
type CartState struct {
	Lines    []CartLine
	Settings CartSettings
}

// Clone deep-copies the cart so snapshots cannot observe later mutations.
func (c CartState) Clone() CartState {
	dup := CartState{Settings: c.Settings.Clone()}
	if c.Lines != nil {
		dup.Lines = make([]CartLine, len(c.Lines))
		copy(dup.Lines, c.Lines)
		for i := range dup.Lines {
			if c.Lines[i].DiscountPercent != nil {
				pct := *c.Lines[i].DiscountPercent
				dup.Lines[i].DiscountPercent = &pct
			}
		}
	}
	return dup
}

// LineComputation is the derived pricing for one cart line. Never stored;
// recomputed from CartState on read.
type LineComputation struct {
	ID               string
	Name             string
	UnitPrice        decimal.Decimal
	EffectivePercent decimal.Decimal
	DiscountedUnit   decimal.Decimal
	Quantity         int
	LineTotal        decimal.Decimal
}

// OrderComputation aggregates line computations into order-level amounts.
// All amounts are non-negative and rounded half-up to two decimal places.
type OrderComputation struct {
	Lines              []LineComputation
	Subtotal           decimal.Decimal
	DiscountedSubtotal decimal.Decimal
	Tax                decimal.Decimal
	Total              decimal.Decimal
}

// OrderSnapshot freezes a finalised order at the moment payment succeeded,
// before the cart is cleared. Reconciliation, the ledger, and the receipt all
// read from the snapshot, never from the live cart.
type OrderSnapshot struct {
	Order                 OrderComputation
	GlobalDiscountPercent decimal.Decimal
	BuyerName             string
	BuyerPhone            string
	Method                PaymentMethod
	TransactionID         string
	CapturedAt            time.Time
}

// PaymentAttempt is one immutable ledger entry describing a terminal payment
// outcome. The ledger records payment outcome only; sale-recording failures
// are reported separately and do not appear here.
type PaymentAttempt struct {
	ID            string
	Status        AttemptStatus
	Method        PaymentMethod
	TransactionID string
	Amount        decimal.Decimal
	Lines         []LineComputation
	Error         string
	Timestamp     time.Time
}
