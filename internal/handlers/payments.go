package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/mercy-field/pos/internal/domain"
	"github.com/mercy-field/pos/internal/services"
)

// PaymentHandlers exposes the register's payment history.
type PaymentHandlers struct {
	ledger *services.PaymentLedger
}

// NewPaymentHandlers constructs handlers over the payment ledger.
func NewPaymentHandlers(ledger *services.PaymentLedger) *PaymentHandlers {
	return &PaymentHandlers{ledger: ledger}
}

// Routes wires the /payments endpoints onto the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/history", h.listHistory)
	r.Delete("/history", h.clearHistory)
}

type attemptPayload struct {
	ID            string                `json:"id"`
	Status        string                `json:"status"`
	Method        string                `json:"method"`
	TransactionID string                `json:"transactionId,omitempty"`
	Amount        string                `json:"amount"`
	Lines         []computedLinePayload `json:"lines"`
	Error         string                `json:"error,omitempty"`
	Timestamp     string                `json:"timestamp"`
}

func (h *PaymentHandlers) listHistory(w http.ResponseWriter, r *http.Request) {
	attempts := h.ledger.List(r.Context())
	payload := make([]attemptPayload, 0, len(attempts))
	for _, attempt := range attempts {
		payload = append(payload, buildAttemptPayload(attempt))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"attempts": payload})
}

func (h *PaymentHandlers) clearHistory(w http.ResponseWriter, r *http.Request) {
	h.ledger.Clear(r.Context())
	writeJSONResponse(w, http.StatusOK, map[string]any{"cleared": true})
}

func buildAttemptPayload(attempt domain.PaymentAttempt) attemptPayload {
	return attemptPayload{
		ID:            attempt.ID,
		Status:        string(attempt.Status),
		Method:        string(attempt.Method),
		TransactionID: attempt.TransactionID,
		Amount:        attempt.Amount.StringFixed(2),
		Lines:         buildComputedLines(attempt.Lines),
		Error:         attempt.Error,
		Timestamp:     formatTime(attempt.Timestamp),
	}
}
