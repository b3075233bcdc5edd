package services

import (
	"context"
	"errors"

	domain "github.com/mercy-field/pos/internal/domain"
	"github.com/mercy-field/pos/internal/salesapi"
)

// SalesClient reports a single sold line to the external sales API.
type SalesClient interface {
	RecordSale(ctx context.Context, record salesapi.SaleRecord) error
}

// SaleFailure names one line whose sale could not be recorded.
type SaleFailure struct {
	ItemID string
	Name   string
	Err    error
}

var errSalesClientRequired = errors.New("sale recorder: sales client is required")

// SaleRecorderDeps wires the sale recorder dependencies.
type SaleRecorderDeps struct {
	Sales  SalesClient
	Logger func(ctx context.Context, event string, fields map[string]any)
}

// SaleRecorder reconciles a finalised order with the store's sales ledger.
// Recording is strictly best-effort: it runs only after payment has already
// succeeded, so a failed line can never fail the payment. Each line is
// reported independently and failures are collected, not short-circuited.
type SaleRecorder struct {
	sales  SalesClient
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewSaleRecorder constructs the recorder.
func NewSaleRecorder(deps SaleRecorderDeps) (*SaleRecorder, error) {
	if deps.Sales == nil {
		return nil, errSalesClientRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &SaleRecorder{sales: deps.Sales, logger: logger}, nil
}

// RecordOrder posts one sale per snapshot line, using the discounted unit
// price actually charged. It returns the lines that could not be recorded;
// an empty result means full reconciliation.
func (r *SaleRecorder) RecordOrder(ctx context.Context, snapshot domain.OrderSnapshot) []SaleFailure {
	var failures []SaleFailure

	for _, line := range snapshot.Order.Lines {
		record := salesapi.SaleRecord{
			ItemID:     line.ID,
			SalePrice:  line.DiscountedUnit,
			BuyerName:  snapshot.BuyerName,
			BuyerPhone: snapshot.BuyerPhone,
			Method:     string(snapshot.Method),
			PaymentID:  snapshot.TransactionID,
		}
		if err := r.sales.RecordSale(ctx, record); err != nil {
			r.logger(ctx, "sales.record_line_failed", map[string]any{
				"itemId": line.ID,
				"error":  err.Error(),
			})
			failures = append(failures, SaleFailure{ItemID: line.ID, Name: line.Name, Err: err})
		}
	}

	if len(failures) > 0 {
		r.logger(ctx, "sales.reconciliation_partial", map[string]any{
			"failed": len(failures),
			"total":  len(snapshot.Order.Lines),
		})
	}
	return failures
}
