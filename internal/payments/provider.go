// Package payments abstracts the external card processor behind a small
// provider contract. The checkout engine sees normalised intents,
// confirmations, and a three-way error taxonomy: configuration problems
// (operator must fix), declines (retryable in place with new card details),
// and transport failures (retryable as-is).
package payments

import (
	"context"
	"errors"
	"time"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting confirmation.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the processor reports the payment captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the processor reports a non-retryable failure.
	StatusFailed Status = "failed"
)

var (
	// ErrConfiguration indicates the processor is missing or misconfigured
	// (no API key, intent issued without a client secret). Not retryable
	// without operator intervention.
	ErrConfiguration = errors.New("payments: processor not configured")
	// ErrDeclined indicates the processor rejected the card. Retryable in
	// place with different card details against the same intent.
	ErrDeclined = errors.New("payments: card declined")
	// ErrUnavailable indicates a network failure or timeout reaching the
	// processor. Retryable by re-invoking the same step.
	ErrUnavailable = errors.New("payments: processor unreachable")
)

// CreateIntentRequest asks the processor to authorise a charge for the
// order total, expressed in minor currency units.
type CreateIntentRequest struct {
	AmountMinorUnits int64
	Currency         string
	IdempotencyKey   string
	Metadata         map[string]string
}

// Intent is the processor-issued authorisation handed back to the terminal;
// the client secret is what the card entry surface confirms against.
type Intent struct {
	ID           string
	ClientSecret string
	Amount       int64
	Currency     string
	CreatedAt    time.Time
}

// ConfirmRequest completes a previously created intent with the shopper's
// card details (as an opaque payment-method id minted by the terminal).
type ConfirmRequest struct {
	IntentID        string
	PaymentMethodID string
	IdempotencyKey  string
}

// Confirmation is the normalised outcome of a confirm call.
type Confirmation struct {
	TransactionID string
	Status        Status
	Amount        int64
	Currency      string
}

// Provider defines the contract card-processor adapters implement.
type Provider interface {
	CreateIntent(ctx context.Context, req CreateIntentRequest) (Intent, error)
	Confirm(ctx context.Context, req ConfirmRequest) (Confirmation, error)
	LookupIntent(ctx context.Context, intentID string) (Confirmation, error)
}
