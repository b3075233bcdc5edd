package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/mercy-field/pos/internal/domain"
	"github.com/mercy-field/pos/internal/payments"
	"github.com/mercy-field/pos/internal/salesapi"
	"github.com/mercy-field/pos/internal/services"
)

type memSettingsRepo struct {
	settings domain.CartSettings
}

func (r *memSettingsRepo) LoadSettings(context.Context) (domain.CartSettings, error) {
	return r.settings.Clone(), nil
}

func (r *memSettingsRepo) SaveSettings(_ context.Context, settings domain.CartSettings) error {
	r.settings = settings.Clone()
	return nil
}

type memLedgerRepo struct {
	attempts []domain.PaymentAttempt
}

func (r *memLedgerRepo) LoadAttempts(context.Context) ([]domain.PaymentAttempt, error) {
	return append([]domain.PaymentAttempt(nil), r.attempts...), nil
}

func (r *memLedgerRepo) SaveAttempts(_ context.Context, attempts []domain.PaymentAttempt) error {
	r.attempts = append([]domain.PaymentAttempt(nil), attempts...)
	return nil
}

type stubPaymentProvider struct {
	createFunc  func(ctx context.Context, req payments.CreateIntentRequest) (payments.Intent, error)
	confirmFunc func(ctx context.Context, req payments.ConfirmRequest) (payments.Confirmation, error)
}

func (p *stubPaymentProvider) CreateIntent(ctx context.Context, req payments.CreateIntentRequest) (payments.Intent, error) {
	if p.createFunc != nil {
		return p.createFunc(ctx, req)
	}
	return payments.Intent{ID: "pi_test", ClientSecret: "secret_test", Amount: req.AmountMinorUnits, Currency: req.Currency}, nil
}

func (p *stubPaymentProvider) Confirm(ctx context.Context, req payments.ConfirmRequest) (payments.Confirmation, error) {
	if p.confirmFunc != nil {
		return p.confirmFunc(ctx, req)
	}
	return payments.Confirmation{TransactionID: req.IntentID, Status: payments.StatusSucceeded}, nil
}

func (p *stubPaymentProvider) LookupIntent(context.Context, string) (payments.Confirmation, error) {
	return payments.Confirmation{}, nil
}

type stubSales struct {
	recordFunc func(ctx context.Context, record salesapi.SaleRecord) error
	records    []salesapi.SaleRecord
}

func (s *stubSales) RecordSale(ctx context.Context, record salesapi.SaleRecord) error {
	s.records = append(s.records, record)
	if s.recordFunc != nil {
		return s.recordFunc(ctx, record)
	}
	return nil
}

type apiFixture struct {
	router     http.Handler
	cart       *services.CartStore
	provider   *stubPaymentProvider
	sales      *stubSales
	ledgerRepo *memLedgerRepo
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()

	settingsRepo := &memSettingsRepo{}
	ledgerRepo := &memLedgerRepo{}
	provider := &stubPaymentProvider{}
	sales := &stubSales{}

	cart, err := services.NewCartStore(ctx, services.CartStoreDeps{Settings: settingsRepo})
	if err != nil {
		t.Fatalf("failed to build cart store: %v", err)
	}
	pricing := services.NewPricingEngine()
	recorder, err := services.NewSaleRecorder(services.SaleRecorderDeps{Sales: sales})
	if err != nil {
		t.Fatalf("failed to build sale recorder: %v", err)
	}
	ledger, err := services.NewPaymentLedger(ctx, services.PaymentLedgerDeps{Ledger: ledgerRepo})
	if err != nil {
		t.Fatalf("failed to build ledger: %v", err)
	}
	checkout, err := services.NewCheckoutOrchestrator(services.CheckoutOrchestratorDeps{
		Cart:     cart,
		Pricing:  pricing,
		Provider: provider,
		Recorder: recorder,
		Ledger:   ledger,
		Receipts: services.NewReceiptRenderer(),
		Clock:    func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("failed to build checkout orchestrator: %v", err)
	}

	router := NewRouter(
		WithCartRoutes(NewCartHandlers(cart, pricing).Routes),
		WithCheckoutRoutes(NewCheckoutHandlers(checkout).Routes),
		WithPaymentRoutes(NewPaymentHandlers(ledger).Routes),
	)

	return &apiFixture{
		router:     router,
		cart:       cart,
		provider:   provider,
		sales:      sales,
		ledgerRepo: ledgerRepo,
	}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *apiFixture) seedCart(t *testing.T) {
	t.Helper()
	rr := f.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"id":        "lamp-1",
		"name":      "Brass Lamp",
		"unitPrice": "10.00",
		"quantity":  2,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 seeding cart, got %d: %s", rr.Code, rr.Body.String())
	}
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestRouterUnknownRouteReturnsJSONError(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodGet, "/api/v1/unknown", nil)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error"] != "route_not_found" {
		t.Fatalf("expected route_not_found, got %v", body["error"])
	}
}

func TestRouterMethodNotAllowed(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodDelete, "/api/v1/cart", nil)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status 405, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error"] != "method_not_allowed" {
		t.Fatalf("expected method_not_allowed, got %v", body["error"])
	}
}

func TestRouterNotImplementedGroupWhenRegistrarMissing(t *testing.T) {
	router := NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotImplemented {
		t.Fatalf("expected status 501, got %d", rr.Code)
	}
}
