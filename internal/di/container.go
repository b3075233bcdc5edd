// Package di assembles the register's runtime dependencies: storage,
// repositories, external clients, and the service layer handlers consume.
package di

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mercy-field/pos/internal/payments"
	"github.com/mercy-field/pos/internal/platform/config"
	"github.com/mercy-field/pos/internal/platform/observability"
	"github.com/mercy-field/pos/internal/repositories/boltkv"
	"github.com/mercy-field/pos/internal/salesapi"
	"github.com/mercy-field/pos/internal/services"
)

// Container wires repositories and services for runtime use.
type Container struct {
	Config config.Config
	Store  *boltkv.Store

	Cart     *services.CartStore
	Pricing  *services.PricingEngine
	Ledger   *services.PaymentLedger
	Checkout *services.CheckoutOrchestrator
}

// NewContainer constructs the runtime dependencies from configuration. The
// returned container owns the data file handle; callers must Close it.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	eventLogger := observability.EventLogger(logger)

	store, err := boltkv.Open(cfg.Register.DataPath)
	if err != nil {
		return nil, fmt.Errorf("open data store: %w", err)
	}

	container, err := buildContainer(ctx, cfg, store, eventLogger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return container, nil
}

func buildContainer(ctx context.Context, cfg config.Config, store *boltkv.Store, eventLogger func(ctx context.Context, event string, fields map[string]any)) (*Container, error) {
	settingsRepo, err := boltkv.NewSettingsRepository(store, eventLogger)
	if err != nil {
		return nil, fmt.Errorf("build settings repository: %w", err)
	}
	ledgerRepo, err := boltkv.NewLedgerRepository(store, eventLogger)
	if err != nil {
		return nil, fmt.Errorf("build ledger repository: %w", err)
	}

	cart, err := services.NewCartStore(ctx, services.CartStoreDeps{
		Settings: settingsRepo,
		Logger:   eventLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("build cart store: %w", err)
	}

	ledger, err := services.NewPaymentLedger(ctx, services.PaymentLedgerDeps{
		Ledger: ledgerRepo,
		Logger: eventLogger,
		Cap:    cfg.Register.LedgerCap,
	})
	if err != nil {
		return nil, fmt.Errorf("build payment ledger: %w", err)
	}

	salesClient, err := salesapi.NewClient(salesapi.ClientConfig{
		BaseURL:  cfg.SalesAPI.BaseURL,
		APIToken: cfg.SalesAPI.Token,
		Timeout:  cfg.SalesAPI.Timeout,
		Logger:   eventLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("build sales client: %w", err)
	}
	recorder, err := services.NewSaleRecorder(services.SaleRecorderDeps{
		Sales:  salesClient,
		Logger: eventLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("build sale recorder: %w", err)
	}

	provider, err := buildPaymentProvider(cfg, eventLogger)
	if err != nil {
		return nil, fmt.Errorf("build payment provider: %w", err)
	}

	pricing := services.NewPricingEngine()

	checkout, err := services.NewCheckoutOrchestrator(services.CheckoutOrchestratorDeps{
		Cart:        cart,
		Pricing:     pricing,
		Provider:    provider,
		Recorder:    recorder,
		Ledger:      ledger,
		Receipts:    services.NewReceiptRenderer(),
		Logger:      eventLogger,
		Currency:    cfg.Register.Currency,
		CallTimeout: cfg.Register.ProviderTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("build checkout orchestrator: %w", err)
	}

	return &Container{
		Config:   cfg,
		Store:    store,
		Cart:     cart,
		Pricing:  pricing,
		Ledger:   ledger,
		Checkout: checkout,
	}, nil
}

// buildPaymentProvider returns the Stripe adapter when an API key is
// configured. Without one the register still runs for cash sales; card
// checkouts surface the configuration error instead.
func buildPaymentProvider(cfg config.Config, eventLogger func(ctx context.Context, event string, fields map[string]any)) (payments.Provider, error) {
	if strings.TrimSpace(cfg.Stripe.APIKey) == "" {
		return unconfiguredProvider{}, nil
	}
	return payments.NewStripeProvider(payments.StripeProviderConfig{
		APIKey: cfg.Stripe.APIKey,
		Logger: eventLogger,
	})
}

// Close releases resources owned by the container.
func (c *Container) Close() error {
	if c == nil {
		return nil
	}
	return c.Store.Close()
}

type unconfiguredProvider struct{}

func (unconfiguredProvider) CreateIntent(context.Context, payments.CreateIntentRequest) (payments.Intent, error) {
	return payments.Intent{}, fmt.Errorf("%w: stripe api key is missing", payments.ErrConfiguration)
}

func (unconfiguredProvider) Confirm(context.Context, payments.ConfirmRequest) (payments.Confirmation, error) {
	return payments.Confirmation{}, fmt.Errorf("%w: stripe api key is missing", payments.ErrConfiguration)
}

func (unconfiguredProvider) LookupIntent(context.Context, string) (payments.Confirmation, error) {
	return payments.Confirmation{}, fmt.Errorf("%w: stripe api key is missing", payments.ErrConfiguration)
}
