package handlers

import (
	"net/http"
	"testing"
)

func TestPaymentsHistoryListsMostRecentFirst(t *testing.T) {
	f := newAPIFixture(t)
	f.seedCart(t)
	f.do(t, http.MethodPost, "/api/v1/checkout/cash", nil)

	f.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"id":        "vase-2",
		"name":      "Vase",
		"unitPrice": "4.00",
	})
	f.do(t, http.MethodPost, "/api/v1/checkout/cash", nil)

	rr := f.do(t, http.MethodGet, "/api/v1/payments/history", nil)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	body := decodeBody(t, rr)
	attempts, ok := body["attempts"].([]any)
	if !ok {
		t.Fatalf("expected attempts array, got %v", body["attempts"])
	}
	if len(attempts) != 2 {
		t.Fatalf("expected two attempts, got %d", len(attempts))
	}
	first := attempts[0].(map[string]any)
	if first["amount"] != "4.00" {
		t.Fatalf("expected most recent attempt first, got amount %v", first["amount"])
	}
	if first["status"] != "succeeded" {
		t.Fatalf("expected succeeded attempt, got %v", first["status"])
	}
}

func TestPaymentsHistoryClear(t *testing.T) {
	f := newAPIFixture(t)
	f.seedCart(t)
	f.do(t, http.MethodPost, "/api/v1/checkout/cash", nil)

	rr := f.do(t, http.MethodDelete, "/api/v1/payments/history", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	rr = f.do(t, http.MethodGet, "/api/v1/payments/history", nil)
	body := decodeBody(t, rr)
	if attempts := body["attempts"].([]any); len(attempts) != 0 {
		t.Fatalf("expected empty history, got %d attempts", len(attempts))
	}
	if len(f.ledgerRepo.attempts) != 0 {
		t.Fatalf("expected cleared history persisted, got %d", len(f.ledgerRepo.attempts))
	}
}
