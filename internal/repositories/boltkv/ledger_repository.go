package boltkv

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/mercy-field/pos/internal/domain"
	"github.com/mercy-field/pos/internal/repositories"
)

type attemptLineRecord struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	UnitPrice        decimal.Decimal `json:"unitPrice"`
	EffectivePercent decimal.Decimal `json:"effectivePercent"`
	DiscountedUnit   decimal.Decimal `json:"discountedUnit"`
	Quantity         int             `json:"quantity"`
	LineTotal        decimal.Decimal `json:"lineTotal"`
}

type attemptRecord struct {
	ID            string              `json:"id"`
	Status        string              `json:"status"`
	Method        string              `json:"method"`
	TransactionID string              `json:"transactionId,omitempty"`
	Amount        decimal.Decimal     `json:"amount"`
	Lines         []attemptLineRecord `json:"lines,omitempty"`
	Error         string              `json:"error,omitempty"`
	Timestamp     time.Time           `json:"timestamp"`
}

// LedgerRepository persists the payment-history ledger in the ledger bucket
// as one most-recent-first JSON list.
type LedgerRepository struct {
	store  *Store
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewLedgerRepository constructs the repository over an open store.
func NewLedgerRepository(store *Store, logger func(ctx context.Context, event string, fields map[string]any)) (*LedgerRepository, error) {
	if store == nil {
		return nil, fmt.Errorf("boltkv: ledger repository requires an open store")
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &LedgerRepository{store: store, logger: logger}, nil
}

var _ repositories.LedgerRepository = (*LedgerRepository)(nil)

// LoadAttempts reads the stored ledger. A corrupt blob yields an empty
// ledger: payment history is an operator convenience, never worth a crash.
func (r *LedgerRepository) LoadAttempts(ctx context.Context) ([]domain.PaymentAttempt, error) {
	raw, err := r.store.get(bucketLedger, keyLedger)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repositories.ErrUnavailable, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var records []attemptRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		r.logger(ctx, "ledger.load_corrupt", map[string]any{"error": err.Error()})
		return nil, nil
	}

	attempts := make([]domain.PaymentAttempt, 0, len(records))
	for _, record := range records {
		attempts = append(attempts, attemptFromRecord(record))
	}
	return attempts, nil
}

// SaveAttempts replaces the stored ledger with the supplied list.
func (r *LedgerRepository) SaveAttempts(ctx context.Context, attempts []domain.PaymentAttempt) error {
	records := make([]attemptRecord, 0, len(attempts))
	for _, attempt := range attempts {
		records = append(records, recordFromAttempt(attempt))
	}

	raw, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("boltkv: encode ledger: %w", err)
	}
	if err := r.store.put(bucketLedger, keyLedger, raw); err != nil {
		return fmt.Errorf("%w: %v", repositories.ErrUnavailable, err)
	}
	return nil
}

func recordFromAttempt(attempt domain.PaymentAttempt) attemptRecord {
	record := attemptRecord{
		ID:            attempt.ID,
		Status:        string(attempt.Status),
		Method:        string(attempt.Method),
		TransactionID: attempt.TransactionID,
		Amount:        attempt.Amount,
		Error:         attempt.Error,
		Timestamp:     attempt.Timestamp.UTC(),
	}
	for _, line := range attempt.Lines {
		record.Lines = append(record.Lines, attemptLineRecord{
			ID:               line.ID,
			Name:             line.Name,
			UnitPrice:        line.UnitPrice,
			EffectivePercent: line.EffectivePercent,
			DiscountedUnit:   line.DiscountedUnit,
			Quantity:         line.Quantity,
			LineTotal:        line.LineTotal,
		})
	}
	return record
}

func attemptFromRecord(record attemptRecord) domain.PaymentAttempt {
	attempt := domain.PaymentAttempt{
		ID:            record.ID,
		Status:        domain.AttemptStatus(record.Status),
		Method:        domain.PaymentMethod(record.Method),
		TransactionID: record.TransactionID,
		Amount:        record.Amount,
		Error:         record.Error,
		Timestamp:     record.Timestamp,
	}
	for _, line := range record.Lines {
		attempt.Lines = append(attempt.Lines, domain.LineComputation{
			ID:               line.ID,
			Name:             line.Name,
			UnitPrice:        line.UnitPrice,
			EffectivePercent: line.EffectivePercent,
			DiscountedUnit:   line.DiscountedUnit,
			Quantity:         line.Quantity,
			LineTotal:        line.LineTotal,
		})
	}
	return attempt
}
