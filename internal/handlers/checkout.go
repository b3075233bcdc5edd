package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mercy-field/pos/internal/payments"
	"github.com/mercy-field/pos/internal/platform/httpx"
	"github.com/mercy-field/pos/internal/services"
)

// CheckoutHandlers exposes the card and cash checkout flow.
type CheckoutHandlers struct {
	checkout *services.CheckoutOrchestrator
}

// NewCheckoutHandlers constructs handlers over the checkout orchestrator.
func NewCheckoutHandlers(checkout *services.CheckoutOrchestrator) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/card", h.startCard)
	r.Post("/card/confirm", h.confirmCard)
	r.Post("/cash", h.payCash)
	r.Post("/cancel", h.cancel)
	r.Get("/session", h.session)
	r.Get("/receipt", h.receipt)
}

type sessionPayload struct {
	ID           string `json:"id"`
	State        string `json:"state"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Amount       string `json:"amount"`
	LastError    string `json:"lastError,omitempty"`
}

type saleFailurePayload struct {
	ItemID string `json:"itemId"`
	Name   string `json:"name"`
	Error  string `json:"error"`
}

type checkoutResultPayload struct {
	AttemptID     string               `json:"attemptId"`
	Status        string               `json:"status"`
	Method        string               `json:"method"`
	TransactionID string               `json:"transactionId,omitempty"`
	Total         string               `json:"total"`
	CapturedAt    string               `json:"capturedAt"`
	Order         orderPayload         `json:"order"`
	Receipt       string               `json:"receipt"`
	FailedSales   []saleFailurePayload `json:"failedSales"`
}

func (h *CheckoutHandlers) startCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, err := h.checkout.StartCardPayment(ctx)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, buildSessionPayload(view))
}

type confirmRequest struct {
	PaymentMethodID string `json:"paymentMethodId"`
}

func (h *CheckoutHandlers) confirmCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req confirmRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.PaymentMethodID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "paymentMethodId is required", http.StatusBadRequest))
		return
	}

	result, err := h.checkout.ConfirmCardPayment(ctx, req.PaymentMethodID)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildResultPayload(result))
}

func (h *CheckoutHandlers) payCash(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, err := h.checkout.PayCash(ctx)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, buildResultPayload(result))
}

func (h *CheckoutHandlers) cancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.checkout.Cancel(ctx); err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"cancelled": true})
}

func (h *CheckoutHandlers) session(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	view, ok := h.checkout.Session()
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("no_active_session", "no card checkout session is active", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, buildSessionPayload(view))
}

func (h *CheckoutHandlers) receipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result, ok := h.checkout.LastResult()
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("no_receipt", "no completed checkout to print", http.StatusNotFound))
		return
	}
	writeJSONResponse(w, http.StatusOK, buildResultPayload(result))
}

func buildSessionPayload(view services.SessionView) sessionPayload {
	return sessionPayload{
		ID:           view.ID,
		State:        string(view.State),
		ClientSecret: view.ClientSecret,
		Amount:       view.Amount.StringFixed(2),
		LastError:    view.LastError,
	}
}

func buildResultPayload(result services.CheckoutResult) checkoutResultPayload {
	failures := make([]saleFailurePayload, 0, len(result.FailedLines))
	for _, failure := range result.FailedLines {
		failures = append(failures, saleFailurePayload{
			ItemID: failure.ItemID,
			Name:   failure.Name,
			Error:  failure.Err.Error(),
		})
	}
	return checkoutResultPayload{
		AttemptID:     result.Attempt.ID,
		Status:        string(result.Attempt.Status),
		Method:        string(result.Attempt.Method),
		TransactionID: result.Attempt.TransactionID,
		Total:         result.Attempt.Amount.StringFixed(2),
		CapturedAt:    formatTime(result.Snapshot.CapturedAt),
		Order:         buildOrderPayload(result.Snapshot.Order),
		Receipt:       result.Receipt,
		FailedSales:   failures,
	}
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutValidation):
		httpx.WriteError(ctx, w, httpx.NewError("validation_failed", "cart is empty or total is not positive", http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrCheckoutSessionActive):
		httpx.WriteError(ctx, w, httpx.NewError("session_active", "a card checkout session is already active", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutNoSession):
		httpx.WriteError(ctx, w, httpx.NewError("no_active_session", "no card checkout session is active", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutWrongState):
		httpx.WriteError(ctx, w, httpx.NewError("wrong_session_state", "operation is not valid in the current session state", http.StatusConflict))
	case errors.Is(err, services.ErrCartLocked):
		httpx.WriteError(ctx, w, httpx.NewError("cart_locked", "cart is locked by an active checkout session", http.StatusConflict))
	case errors.Is(err, payments.ErrDeclined):
		httpx.WriteError(ctx, w, httpx.NewError("card_declined", "the card was declined; the session can be retried", http.StatusPaymentRequired))
	case errors.Is(err, payments.ErrConfiguration):
		httpx.WriteError(ctx, w, httpx.NewError("processor_not_configured", "payment processor is not configured", http.StatusServiceUnavailable))
	case errors.Is(err, payments.ErrUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("processor_unavailable", "payment processor is unreachable; the session can be retried", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "checkout operation failed", http.StatusInternalServerError))
	}
}
