package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeProviderConfig configures the StripeProvider. Intents is a test seam;
// when nil the real Stripe client built from APIKey is used.
type StripeProviderConfig struct {
	APIKey  string
	Logger  StripeLogger
	Clock   func() time.Time
	Intents stripePaymentIntentAPI
}

// StripeProvider implements Provider on the Stripe PaymentIntents API.
type StripeProvider struct {
	intents stripePaymentIntentAPI
	clock   func() time.Time
	logger  StripeLogger
}

// NewStripeProvider constructs a Stripe provider. A missing API key is the
// canonical configuration error the checkout surfaces to operators.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	intents := cfg.Intents
	if intents == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, fmt.Errorf("%w: stripe api key is missing", ErrConfiguration)
		}
		sc := client.New(apiKey, nil)
		intents = sc.PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		intents: intents,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateIntent creates a Stripe PaymentIntent for the order total. An intent
// returned without a client secret is treated as a configuration failure so
// the session can never advance to confirmation without one.
func (p *StripeProvider) CreateIntent(ctx context.Context, req CreateIntentRequest) (Intent, error) {
	if p == nil || p.intents == nil {
		return Intent{}, fmt.Errorf("%w: stripe provider is not initialised", ErrConfiguration)
	}
	if req.AmountMinorUnits <= 0 {
		return Intent{}, fmt.Errorf("%w: non-positive amount %d", ErrUnavailable, req.AmountMinorUnits)
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(req.AmountMinorUnits),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	intent, err := p.intents.New(params)
	if err != nil {
		return Intent{}, p.translateError(ctx, "payments.stripe.intent_create_failed", err)
	}
	if strings.TrimSpace(intent.ClientSecret) == "" {
		p.logger(ctx, "payments.stripe.intent_missing_secret", map[string]any{"paymentIntent": intent.ID})
		return Intent{}, fmt.Errorf("%w: processor returned no client secret", ErrConfiguration)
	}

	p.logger(ctx, "payments.stripe.intent_created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
		"currency":      intent.Currency,
	})

	return Intent{
		ID:           intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       intent.Amount,
		Currency:     strings.ToUpper(string(intent.Currency)),
		CreatedAt:    p.clock(),
	}, nil
}

// Confirm completes the intent with the supplied payment method.
func (p *StripeProvider) Confirm(ctx context.Context, req ConfirmRequest) (Confirmation, error) {
	if p == nil || p.intents == nil {
		return Confirmation{}, fmt.Errorf("%w: stripe provider is not initialised", ErrConfiguration)
	}

	params := &stripe.PaymentIntentConfirmParams{}
	params.Context = ctx
	if method := strings.TrimSpace(req.PaymentMethodID); method != "" {
		params.PaymentMethod = stripe.String(method)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}

	intent, err := p.intents.Confirm(req.IntentID, params)
	if err != nil {
		return Confirmation{}, p.translateError(ctx, "payments.stripe.confirm_failed", err)
	}

	confirmation := stripeConfirmation(intent)
	p.logger(ctx, "payments.stripe.intent_confirmed", map[string]any{
		"paymentIntent": intent.ID,
		"status":        intent.Status,
	})

	if confirmation.Status != StatusSucceeded {
		return confirmation, fmt.Errorf("%w: intent %s is %s", ErrDeclined, intent.ID, intent.Status)
	}
	return confirmation, nil
}

// LookupIntent retrieves the current state of an intent, used to resolve
// ambiguous outcomes after a confirmation timeout.
func (p *StripeProvider) LookupIntent(ctx context.Context, intentID string) (Confirmation, error) {
	if p == nil || p.intents == nil {
		return Confirmation{}, fmt.Errorf("%w: stripe provider is not initialised", ErrConfiguration)
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	intent, err := p.intents.Get(intentID, params)
	if err != nil {
		return Confirmation{}, p.translateError(ctx, "payments.stripe.lookup_failed", err)
	}
	return stripeConfirmation(intent), nil
}

// translateError maps Stripe SDK failures onto the provider taxonomy: card
// errors become declines carrying Stripe's shopper-facing message, anything
// else is a transport failure.
func (p *StripeProvider) translateError(ctx context.Context, event string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		p.logger(ctx, event, map[string]any{
			"type": string(stripeErr.Type),
			"code": string(stripeErr.Code),
		})
		if stripeErr.Type == stripe.ErrorTypeCard {
			msg := strings.TrimSpace(stripeErr.Msg)
			if msg == "" {
				msg = "card was declined"
			}
			return fmt.Errorf("%w: %s", ErrDeclined, msg)
		}
		if stripeErr.HTTPStatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", ErrConfiguration, strings.TrimSpace(stripeErr.Msg))
		}
		return fmt.Errorf("%w: %s", ErrUnavailable, strings.TrimSpace(stripeErr.Msg))
	}

	p.logger(ctx, event, map[string]any{"error": err.Error()})
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func stripeConfirmation(intent *stripe.PaymentIntent) Confirmation {
	if intent == nil {
		return Confirmation{}
	}

	status := StatusPending
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		status = StatusSucceeded
	case stripe.PaymentIntentStatusCanceled:
		status = StatusFailed
	}

	return Confirmation{
		TransactionID: intent.ID,
		Status:        status,
		Amount:        intent.Amount,
		Currency:      strings.ToUpper(string(intent.Currency)),
	}
}
