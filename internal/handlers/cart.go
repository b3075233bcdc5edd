package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/mercy-field/pos/internal/domain"
	"github.com/mercy-field/pos/internal/platform/httpx"
	"github.com/mercy-field/pos/internal/services"
)

// CartHandlers exposes the register's cart commands.
type CartHandlers struct {
	cart    *services.CartStore
	pricing *services.PricingEngine
}

// NewCartHandlers constructs handlers over the cart store and pricing engine.
func NewCartHandlers(cart *services.CartStore, pricing *services.PricingEngine) *CartHandlers {
	return &CartHandlers{
		cart:    cart,
		pricing: pricing,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Post("/items", h.addItem)
	r.Delete("/items/{itemID}", h.removeItem)
	r.Put("/items/{itemID}/quantity", h.setQuantity)
	r.Put("/items/{itemID}/discount", h.setLineDiscount)
	r.Put("/defaults/{itemID}", h.setItemDefaultDiscount)
	r.Put("/discount", h.setGlobalDiscount)
	r.Put("/tax", h.setTaxPercent)
	r.Put("/buyer", h.setBuyer)
	r.Post("/clear", h.clearCart)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	h.writeCart(w, h.cart.State())
}

type addItemRequest struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	UnitPrice       string  `json:"unitPrice"`
	Quantity        int     `json:"quantity"`
	DiscountPercent *string `json:"discountPercent"`
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req addItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.ID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "item id is required", http.StatusBadRequest))
		return
	}
	unitPrice, err := parseAmount(req.UnitPrice, "unitPrice")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.AddItemCommand{
		ID:        req.ID,
		Name:      req.Name,
		UnitPrice: unitPrice,
		Quantity:  req.Quantity,
	}
	if req.DiscountPercent != nil {
		pct, err := parseAmount(*req.DiscountPercent, "discountPercent")
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
			return
		}
		cmd.DiscountPercent = &pct
	}

	state, err := h.cart.AddItem(ctx, cmd)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	h.writeCart(w, state)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, err := h.cart.RemoveItem(ctx, chi.URLParam(r, "itemID"))
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	h.writeCart(w, state)
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandlers) setQuantity(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req quantityRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	state, err := h.cart.SetQuantity(ctx, chi.URLParam(r, "itemID"), req.Quantity)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	h.writeCart(w, state)
}

type percentRequest struct {
	Percent string `json:"percent"`
}

func (h *CartHandlers) setLineDiscount(w http.ResponseWriter, r *http.Request) {
	h.applyPercent(w, r, func(ctx context.Context, pct decimal.Decimal) (domain.CartState, error) {
		return h.cart.SetLineDiscount(ctx, chi.URLParam(r, "itemID"), pct)
	})
}

func (h *CartHandlers) setItemDefaultDiscount(w http.ResponseWriter, r *http.Request) {
	h.applyPercent(w, r, func(ctx context.Context, pct decimal.Decimal) (domain.CartState, error) {
		return h.cart.SetItemDefaultDiscount(ctx, chi.URLParam(r, "itemID"), pct)
	})
}

func (h *CartHandlers) setGlobalDiscount(w http.ResponseWriter, r *http.Request) {
	h.applyPercent(w, r, h.cart.SetGlobalDiscount)
}

func (h *CartHandlers) setTaxPercent(w http.ResponseWriter, r *http.Request) {
	h.applyPercent(w, r, h.cart.SetTaxPercent)
}

func (h *CartHandlers) applyPercent(w http.ResponseWriter, r *http.Request, apply func(context.Context, decimal.Decimal) (domain.CartState, error)) {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req percentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	pct, err := parseAmount(req.Percent, "percent")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	state, err := apply(ctx, pct)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	h.writeCart(w, state)
}

type buyerRequest struct {
	Name  *string `json:"name"`
	Phone *string `json:"phone"`
}

func (h *CartHandlers) setBuyer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}
	var req buyerRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if req.Name == nil && req.Phone == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "name or phone is required", http.StatusBadRequest))
		return
	}

	state := h.cart.State()
	if req.Name != nil {
		updated, err := h.cart.SetBuyerName(ctx, *req.Name)
		if err != nil {
			writeCartError(ctx, w, err)
			return
		}
		state = updated
	}
	if req.Phone != nil {
		updated, err := h.cart.SetBuyerPhone(ctx, *req.Phone)
		if err != nil {
			writeCartError(ctx, w, err)
			return
		}
		state = updated
	}
	h.writeCart(w, state)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	state, err := h.cart.Clear(ctx)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	h.writeCart(w, state)
}

func (h *CartHandlers) writeCart(w http.ResponseWriter, state domain.CartState) {
	order := h.pricing.ComputeOrder(state)
	writeJSONResponse(w, http.StatusOK, buildCartPayload(state, order))
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCartLocked):
		httpx.WriteError(ctx, w, httpx.NewError("cart_locked", "cart is locked by an active checkout session", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "cart operation failed", http.StatusInternalServerError))
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

// parseAmount decodes a decimal carried as a JSON string, keeping exact cents
// out of float arithmetic.
func parseAmount(value, field string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return decimal.Decimal{}, fmt.Errorf("%s is required", field)
	}
	parsed, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s must be a decimal number", field)
	}
	return parsed, nil
}
