// Package handlers wires the register's HTTP surface: cart commands, the
// checkout flow, payment history, and health probes.
package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	domain "github.com/mercy-field/pos/internal/domain"
)

const maxBodySize = 16 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

type linePayload struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	UnitPrice       string  `json:"unitPrice"`
	Quantity        int     `json:"quantity"`
	DiscountPercent *string `json:"discountPercent,omitempty"`
}

type computedLinePayload struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	UnitPrice        string `json:"unitPrice"`
	EffectivePercent string `json:"effectivePercent"`
	DiscountedUnit   string `json:"discountedUnit"`
	Quantity         int    `json:"quantity"`
	LineTotal        string `json:"lineTotal"`
}

type orderPayload struct {
	Lines              []computedLinePayload `json:"lines"`
	Subtotal           string                `json:"subtotal"`
	DiscountedSubtotal string                `json:"discountedSubtotal"`
	Tax                string                `json:"tax"`
	Total              string                `json:"total"`
}

type settingsPayload struct {
	GlobalDiscountPercent string            `json:"globalDiscountPercent"`
	TaxPercent            string            `json:"taxPercent"`
	ItemDefaultDiscounts  map[string]string `json:"itemDefaultDiscounts"`
	BuyerName             string            `json:"buyerName"`
	BuyerPhone            string            `json:"buyerPhone"`
}

type cartPayload struct {
	Lines    []linePayload   `json:"lines"`
	Settings settingsPayload `json:"settings"`
	Order    orderPayload    `json:"order"`
}

func buildCartPayload(state domain.CartState, order domain.OrderComputation) cartPayload {
	lines := make([]linePayload, 0, len(state.Lines))
	for _, line := range state.Lines {
		payload := linePayload{
			ID:        line.ID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice.StringFixed(2),
			Quantity:  line.Quantity,
		}
		if line.DiscountPercent != nil {
			pct := line.DiscountPercent.String()
			payload.DiscountPercent = &pct
		}
		lines = append(lines, payload)
	}

	defaults := make(map[string]string, len(state.Settings.ItemDefaultDiscounts))
	for id, pct := range state.Settings.ItemDefaultDiscounts {
		defaults[id] = pct.String()
	}

	return cartPayload{
		Lines: lines,
		Settings: settingsPayload{
			GlobalDiscountPercent: state.Settings.GlobalDiscountPercent.String(),
			TaxPercent:            state.Settings.TaxPercent.String(),
			ItemDefaultDiscounts:  defaults,
			BuyerName:             state.Settings.BuyerName,
			BuyerPhone:            state.Settings.BuyerPhone,
		},
		Order: buildOrderPayload(order),
	}
}

func buildComputedLines(lines []domain.LineComputation) []computedLinePayload {
	payload := make([]computedLinePayload, 0, len(lines))
	for _, line := range lines {
		payload = append(payload, computedLinePayload{
			ID:               line.ID,
			Name:             line.Name,
			UnitPrice:        line.UnitPrice.StringFixed(2),
			EffectivePercent: line.EffectivePercent.String(),
			DiscountedUnit:   line.DiscountedUnit.StringFixed(2),
			Quantity:         line.Quantity,
			LineTotal:        line.LineTotal.StringFixed(2),
		})
	}
	return payload
}

func buildOrderPayload(order domain.OrderComputation) orderPayload {
	return orderPayload{
		Lines:              buildComputedLines(order.Lines),
		Subtotal:           order.Subtotal.StringFixed(2),
		DiscountedSubtotal: order.DiscountedSubtotal.StringFixed(2),
		Tax:                order.Tax.StringFixed(2),
		Total:              order.Total.StringFixed(2),
	}
}
