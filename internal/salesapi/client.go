// Package salesapi is the REST client for the store's sales ledger service.
// Checkout reports each sold cart line with a POST /sales call; the caller
// decides how to handle individual failures.
package salesapi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// ErrUnavailable indicates the sales API could not be reached or answered
// with a server error.
var ErrUnavailable = errors.New("salesapi: service unavailable")

// ErrRejected indicates the sales API understood the request and refused it.
var ErrRejected = errors.New("salesapi: sale rejected")

const defaultTimeout = 10 * time.Second

// SaleRecord describes one sold cart line. SalePrice is the discounted unit
// price actually charged for the item, already rounded to cents.
type SaleRecord struct {
	ItemID     string
	SalePrice  decimal.Decimal
	BuyerName  string
	BuyerPhone string
	Method     string
	PaymentID  string
}

type saleRequest struct {
	ItemID     string `json:"item_id"`
	SalePrice  string `json:"sale_price"`
	BuyerName  string `json:"buyer_name,omitempty"`
	BuyerPhone string `json:"buyer_phone,omitempty"`
	Method     string `json:"method"`
	PaymentID  string `json:"payment_id,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (e apiError) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Error
}

// ClientConfig configures the sales API client.
type ClientConfig struct {
	BaseURL  string
	APIToken string
	Timeout  time.Duration
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// Client posts completed sales to the external sales API.
type Client struct {
	http   *resty.Client
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewClient constructs the client. BaseURL is required; the bearer token is
// optional for deployments that front the API with network-level auth.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("sales api client: base url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	http := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if token := strings.TrimSpace(cfg.APIToken); token != "" {
		http.SetAuthToken(token)
	}

	return &Client{http: http, logger: logger}, nil
}

// RecordSale reports a single sold line. 4xx responses map to ErrRejected,
// transport failures and 5xx responses map to ErrUnavailable.
func (c *Client) RecordSale(ctx context.Context, record SaleRecord) error {
	itemID := strings.TrimSpace(record.ItemID)
	if itemID == "" {
		return fmt.Errorf("%w: missing item id", ErrRejected)
	}

	body := saleRequest{
		ItemID:     itemID,
		SalePrice:  record.SalePrice.StringFixed(2),
		BuyerName:  strings.TrimSpace(record.BuyerName),
		BuyerPhone: strings.TrimSpace(record.BuyerPhone),
		Method:     record.Method,
		PaymentID:  strings.TrimSpace(record.PaymentID),
	}

	var failure apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetError(&failure).
		Post("/sales")
	if err != nil {
		c.logger(ctx, "salesapi.record_failed", map[string]any{
			"itemId": itemID,
			"error":  err.Error(),
		})
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch {
	case resp.IsSuccess():
		return nil
	case resp.StatusCode() >= 500:
		c.logger(ctx, "salesapi.record_failed", map[string]any{
			"itemId": itemID,
			"status": resp.StatusCode(),
		})
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode())
	default:
		c.logger(ctx, "salesapi.record_rejected", map[string]any{
			"itemId": itemID,
			"status": resp.StatusCode(),
		})
		if msg := failure.text(); msg != "" {
			return fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode(), msg)
		}
		return fmt.Errorf("%w: status %d", ErrRejected, resp.StatusCode())
	}
}
