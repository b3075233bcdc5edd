package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	domain "github.com/mercy-field/pos/internal/domain"
	"github.com/mercy-field/pos/internal/payments"
)

const defaultProviderCallTimeout = 15 * time.Second

var (
	// ErrCheckoutValidation indicates the cart cannot be checked out: empty
	// cart or a non-positive total. Raised before any external call.
	ErrCheckoutValidation = errors.New("checkout: validation failed")
	// ErrCheckoutSessionActive indicates another card session is in flight.
	ErrCheckoutSessionActive = errors.New("checkout: session already active")
	// ErrCheckoutNoSession indicates no card session exists for the operation.
	ErrCheckoutNoSession = errors.New("checkout: no active session")
	// ErrCheckoutWrongState indicates the session is not in the state the
	// operation requires.
	ErrCheckoutWrongState = errors.New("checkout: operation not valid in current state")
)

// SessionState enumerates the card checkout state machine.
type SessionState string

const (
	// StateIntentRequested covers the window while the processor intent call
	// is in flight.
	StateIntentRequested SessionState = "intent_requested"
	// StateIntentReady means a client secret is held and confirmation may
	// proceed. Declines return the session here with the same secret.
	StateIntentReady SessionState = "intent_ready"
	// StateConfirming covers the processor confirmation call.
	StateConfirming SessionState = "confirming"
)

// SessionView is the externally visible slice of an active card session.
type SessionView struct {
	ID           string
	State        SessionState
	ClientSecret string
	Amount       decimal.Decimal
	LastError    string
}

// CheckoutResult is the outcome of a finalised payment: the frozen snapshot,
// the rendered receipt, and the reconciliation failures if any.
type CheckoutResult struct {
	Attempt     domain.PaymentAttempt
	Snapshot    domain.OrderSnapshot
	Receipt     string
	FailedLines []SaleFailure
}

type checkoutSession struct {
	id             string
	state          SessionState
	snapshot       domain.OrderSnapshot
	intent         payments.Intent
	idempotencyKey string
	lastError      string
}

// CheckoutOrchestratorDeps wires the dependencies required by the checkout
// orchestrator.
type CheckoutOrchestratorDeps struct {
	Cart     *CartStore
	Pricing  *PricingEngine
	Provider payments.Provider
	Recorder *SaleRecorder
	Ledger   *PaymentLedger
	Receipts *ReceiptRenderer
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
	// Currency is the ISO code charged for card payments. Defaults to USD.
	Currency string
	// CallTimeout bounds each processor call. Defaults to fifteen seconds.
	CallTimeout time.Duration
}

// CheckoutOrchestrator drives a payment from cart to terminal outcome. At
// most one card session is active at a time; while it lives, the cart is
// locked so the captured snapshot and the cart cannot diverge. Cash skips the
// processor entirely and finalises immediately.
//
// Terminal transitions append exactly one ledger entry. A decline or a
// processor outage during confirmation is not terminal: the session returns
// to intent_ready and the same secret stays reusable.
type CheckoutOrchestrator struct {
	mu      sync.Mutex
	session *checkoutSession

	lastResult *CheckoutResult

	cart     *CartStore
	pricing  *PricingEngine
	provider payments.Provider
	recorder *SaleRecorder
	ledger   *PaymentLedger
	receipts *ReceiptRenderer
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
	currency string
	timeout  time.Duration
}

// NewCheckoutOrchestrator constructs the orchestrator validating required
// dependencies.
func NewCheckoutOrchestrator(deps CheckoutOrchestratorDeps) (*CheckoutOrchestrator, error) {
	if deps.Cart == nil {
		return nil, errors.New("checkout orchestrator: cart store is required")
	}
	if deps.Pricing == nil {
		return nil, errors.New("checkout orchestrator: pricing engine is required")
	}
	if deps.Provider == nil {
		return nil, errors.New("checkout orchestrator: payment provider is required")
	}
	if deps.Recorder == nil {
		return nil, errors.New("checkout orchestrator: sale recorder is required")
	}
	if deps.Ledger == nil {
		return nil, errors.New("checkout orchestrator: payment ledger is required")
	}
	if deps.Receipts == nil {
		return nil, errors.New("checkout orchestrator: receipt renderer is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "USD"
	}
	timeout := deps.CallTimeout
	if timeout <= 0 {
		timeout = defaultProviderCallTimeout
	}

	return &CheckoutOrchestrator{
		cart:     deps.Cart,
		pricing:  deps.Pricing,
		provider: deps.Provider,
		recorder: deps.Recorder,
		ledger:   deps.Ledger,
		receipts: deps.Receipts,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:   logger,
		currency: currency,
		timeout:  timeout,
	}, nil
}

// StartCardPayment validates the cart, locks it, captures the order snapshot,
// and requests a payment intent for the total. On success the session is in
// intent_ready holding the client secret. An intent-creation failure is
// terminal: it appends a failed ledger entry, releases the cart, and leaves
// no session, so the register is immediately retryable.
func (o *CheckoutOrchestrator) StartCardPayment(ctx context.Context) (SessionView, error) {
	o.mu.Lock()
	if o.session != nil {
		o.mu.Unlock()
		return SessionView{}, ErrCheckoutSessionActive
	}

	// The lock must precede capture: a mutation landing in between would be
	// in the live cart but not the snapshot, then lost to the post-payment
	// clear.
	if !o.cart.lock() {
		o.mu.Unlock()
		return SessionView{}, ErrCheckoutSessionActive
	}
	snapshot, err := o.captureSnapshot(domain.MethodCard)
	if err != nil {
		o.cart.unlock()
		o.mu.Unlock()
		return SessionView{}, err
	}

	session := &checkoutSession{
		id:             ulid.Make().String(),
		state:          StateIntentRequested,
		snapshot:       snapshot,
		idempotencyKey: ulid.Make().String(),
	}
	o.session = session
	o.mu.Unlock()

	o.logger(ctx, "checkout.card_started", map[string]any{
		"session": session.id,
		"total":   snapshot.Order.Total.StringFixed(2),
	})

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	intent, err := o.provider.CreateIntent(callCtx, payments.CreateIntentRequest{
		AmountMinorUnits: minorUnits(snapshot.Order.Total),
		Currency:         o.currency,
		IdempotencyKey:   session.idempotencyKey,
		Metadata:         map[string]string{"session": session.id},
	})
	cancel()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != session {
		// Cancelled while the intent call was in flight; nothing to update.
		return SessionView{}, ErrCheckoutNoSession
	}

	if err != nil {
		o.failSessionLocked(ctx, session, err)
		return SessionView{}, err
	}

	session.state = StateIntentReady
	session.intent = intent
	return viewOf(session), nil
}

// ConfirmCardPayment completes the active session with the shopper's payment
// method. A decline or an unreachable processor returns the session to
// intent_ready with the error message attached; the same client secret stays
// valid for the retry. Success finalises the order.
func (o *CheckoutOrchestrator) ConfirmCardPayment(ctx context.Context, paymentMethodID string) (CheckoutResult, error) {
	o.mu.Lock()
	session := o.session
	if session == nil {
		o.mu.Unlock()
		return CheckoutResult{}, ErrCheckoutNoSession
	}
	if session.state != StateIntentReady {
		o.mu.Unlock()
		return CheckoutResult{}, ErrCheckoutWrongState
	}
	session.state = StateConfirming
	session.lastError = ""
	o.mu.Unlock()

	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	confirmation, err := o.provider.Confirm(callCtx, payments.ConfirmRequest{
		IntentID:        session.intent.ID,
		PaymentMethodID: paymentMethodID,
		IdempotencyKey:  session.idempotencyKey,
	})
	cancel()

	if err != nil && errors.Is(err, payments.ErrUnavailable) {
		confirmation, err = o.resolveAmbiguousConfirm(ctx, session, err)
	}

	o.mu.Lock()
	if o.session != session {
		o.mu.Unlock()
		return CheckoutResult{}, ErrCheckoutNoSession
	}

	if err != nil {
		session.state = StateIntentReady
		session.lastError = err.Error()
		o.mu.Unlock()
		o.logger(ctx, "checkout.confirm_failed", map[string]any{
			"session": session.id,
			"error":   err.Error(),
		})
		return CheckoutResult{}, err
	}

	snapshot := session.snapshot
	snapshot.TransactionID = confirmation.TransactionID
	o.session = nil
	o.mu.Unlock()

	result := o.finalize(ctx, snapshot)
	o.cart.unlock()
	return result, nil
}

// PayCash finalises the order immediately with no processor involvement.
// Rejected while a card session is active and on empty or zero-total carts.
func (o *CheckoutOrchestrator) PayCash(ctx context.Context) (CheckoutResult, error) {
	o.mu.Lock()
	if o.session != nil {
		o.mu.Unlock()
		return CheckoutResult{}, ErrCheckoutSessionActive
	}
	// Lock before capture, as in StartCardPayment.
	if !o.cart.lock() {
		o.mu.Unlock()
		return CheckoutResult{}, ErrCheckoutSessionActive
	}
	snapshot, err := o.captureSnapshot(domain.MethodCash)
	if err != nil {
		o.cart.unlock()
		o.mu.Unlock()
		return CheckoutResult{}, err
	}
	o.mu.Unlock()

	o.logger(ctx, "checkout.cash_accepted", map[string]any{
		"total": snapshot.Order.Total.StringFixed(2),
	})
	result := o.finalize(ctx, snapshot)
	o.cart.unlock()
	return result, nil
}

// Cancel discards the active session before capture: the cart unlocks
// unchanged and nothing is recorded anywhere. Rejected while a confirmation
// is in flight, since the charge may already have been captured server side;
// once confirmation has succeeded there is no session left to cancel.
func (o *CheckoutOrchestrator) Cancel(ctx context.Context) error {
	o.mu.Lock()
	session := o.session
	if session == nil {
		o.mu.Unlock()
		return ErrCheckoutNoSession
	}
	if session.state == StateConfirming {
		o.mu.Unlock()
		return ErrCheckoutWrongState
	}
	o.session = nil
	o.mu.Unlock()

	o.cart.unlock()
	o.logger(ctx, "checkout.cancelled", map[string]any{"session": session.id})
	return nil
}

// Session reports the active card session, if any.
func (o *CheckoutOrchestrator) Session() (SessionView, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return SessionView{}, false
	}
	return viewOf(o.session), true
}

// LastResult returns the most recent finalised checkout, which carries the
// printable receipt.
func (o *CheckoutOrchestrator) LastResult() (CheckoutResult, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastResult == nil {
		return CheckoutResult{}, false
	}
	return *o.lastResult, true
}

// resolveAmbiguousConfirm handles an unreachable processor during confirm:
// the charge may or may not have been captured server side. Look the intent
// up; a succeeded intent means the payment went through and the session must
// finalise instead of retrying and charging twice. Any other outcome keeps
// the original error and the session stays retryable.
func (o *CheckoutOrchestrator) resolveAmbiguousConfirm(ctx context.Context, session *checkoutSession, cause error) (payments.Confirmation, error) {
	lookupCtx, cancel := context.WithTimeout(ctx, o.timeout)
	confirmation, err := o.provider.LookupIntent(lookupCtx, session.intent.ID)
	cancel()
	if err != nil {
		return payments.Confirmation{}, cause
	}
	if confirmation.Status != payments.StatusSucceeded {
		return payments.Confirmation{}, cause
	}

	o.logger(ctx, "checkout.confirm_recovered", map[string]any{
		"session": session.id,
		"intent":  session.intent.ID,
	})
	return confirmation, nil
}

// captureSnapshot freezes the current cart into an order snapshot, rejecting
// carts that cannot be charged. Callers must hold o.mu and the cart lock.
func (o *CheckoutOrchestrator) captureSnapshot(method domain.PaymentMethod) (domain.OrderSnapshot, error) {
	cart := o.cart.State()
	order := o.pricing.ComputeOrder(cart)
	if len(order.Lines) == 0 {
		return domain.OrderSnapshot{}, ErrCheckoutValidation
	}
	if !order.Total.IsPositive() {
		return domain.OrderSnapshot{}, ErrCheckoutValidation
	}

	return domain.OrderSnapshot{
		Order:                 order,
		GlobalDiscountPercent: clampPercent(cart.Settings.GlobalDiscountPercent),
		BuyerName:             cart.Settings.BuyerName,
		BuyerPhone:            cart.Settings.BuyerPhone,
		Method:                method,
	}, nil
}

// finalize runs the success path shared by cash and card: stamp the
// snapshot, append the ledger entry, reconcile sales, render the receipt,
// and clear the cart. Reconciliation failures are carried in the result,
// never raised; the payment is already captured.
func (o *CheckoutOrchestrator) finalize(ctx context.Context, snapshot domain.OrderSnapshot) CheckoutResult {
	snapshot.CapturedAt = o.now()

	attempt := domain.PaymentAttempt{
		ID:            ulid.Make().String(),
		Status:        domain.AttemptSucceeded,
		Method:        snapshot.Method,
		TransactionID: snapshot.TransactionID,
		Amount:        snapshot.Order.Total,
		Lines:         snapshot.Order.Lines,
		Timestamp:     snapshot.CapturedAt,
	}
	o.ledger.Append(ctx, attempt)

	failures := o.recorder.RecordOrder(ctx, snapshot)

	receipt, err := o.receipts.Render(snapshot)
	if err != nil {
		o.logger(ctx, "checkout.receipt_failed", map[string]any{"error": err.Error()})
	}

	o.cart.clearAfterCheckout(ctx)

	result := CheckoutResult{
		Attempt:     attempt,
		Snapshot:    snapshot,
		Receipt:     receipt,
		FailedLines: failures,
	}

	o.mu.Lock()
	o.lastResult = &result
	o.mu.Unlock()

	return result
}

// failSessionLocked records a terminal failure: one failed ledger entry, the
// cart released, the session discarded. Callers must hold o.mu.
func (o *CheckoutOrchestrator) failSessionLocked(ctx context.Context, session *checkoutSession, cause error) {
	o.session = nil
	o.cart.unlock()

	o.ledger.Append(ctx, domain.PaymentAttempt{
		ID:        ulid.Make().String(),
		Status:    domain.AttemptFailed,
		Method:    session.snapshot.Method,
		Amount:    session.snapshot.Order.Total,
		Lines:     session.snapshot.Order.Lines,
		Error:     cause.Error(),
		Timestamp: o.now(),
	})

	o.logger(ctx, "checkout.intent_failed", map[string]any{
		"session": session.id,
		"error":   cause.Error(),
	})
}

func viewOf(session *checkoutSession) SessionView {
	return SessionView{
		ID:           session.id,
		State:        session.state,
		ClientSecret: session.intent.ClientSecret,
		Amount:       session.snapshot.Order.Total,
		LastError:    session.lastError,
	}
}

// minorUnits converts a two-decimal amount into integer minor units for the
// processor.
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
