package services

import (
	"context"
	"errors"
	"sync"

	domain "github.com/mercy-field/pos/internal/domain"
	"github.com/mercy-field/pos/internal/repositories"
)

const defaultLedgerCap = 20

var errLedgerRepoRequired = errors.New("payment ledger: ledger repository is required")

// PaymentLedgerDeps wires the ledger dependencies. Cap bounds the retained
// history; zero means the default of twenty entries.
type PaymentLedgerDeps struct {
	Ledger repositories.LedgerRepository
	Logger func(ctx context.Context, event string, fields map[string]any)
	Cap    int
}

// PaymentLedger keeps the register's recent terminal payment attempts,
// most recent first, capped to a fixed depth. Entries are immutable once
// appended; the only mutations are append and clear, and both persist
// immediately so history survives restarts.
type PaymentLedger struct {
	mu       sync.Mutex
	attempts []domain.PaymentAttempt

	repo   repositories.LedgerRepository
	logger func(ctx context.Context, event string, fields map[string]any)
	cap    int
}

// NewPaymentLedger constructs the ledger, seeding history from persisted
// state. A failed load is logged and the ledger starts empty.
func NewPaymentLedger(ctx context.Context, deps PaymentLedgerDeps) (*PaymentLedger, error) {
	if deps.Ledger == nil {
		return nil, errLedgerRepoRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	capacity := deps.Cap
	if capacity <= 0 {
		capacity = defaultLedgerCap
	}

	ledger := &PaymentLedger{
		repo:   deps.Ledger,
		logger: logger,
		cap:    capacity,
	}

	attempts, err := deps.Ledger.LoadAttempts(ctx)
	if err != nil {
		logger(ctx, "ledger.load_failed", map[string]any{"error": err.Error()})
		attempts = nil
	}
	if len(attempts) > capacity {
		attempts = attempts[:capacity]
	}
	ledger.attempts = attempts

	return ledger, nil
}

// Append records a terminal attempt at the head of the history, evicting the
// oldest entry beyond the cap. Persistence failures are logged; the in-memory
// history stays authoritative for the current process.
func (l *PaymentLedger) Append(ctx context.Context, attempt domain.PaymentAttempt) []domain.PaymentAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()

	head := make([]domain.PaymentAttempt, 0, len(l.attempts)+1)
	head = append(head, attempt)
	head = append(head, l.attempts...)
	if len(head) > l.cap {
		head = head[:l.cap]
	}
	l.attempts = head

	l.persist(ctx)
	l.logger(ctx, "ledger.attempt_recorded", map[string]any{
		"attempt": attempt.ID,
		"status":  string(attempt.Status),
		"method":  string(attempt.Method),
	})
	return l.snapshot()
}

// List returns the retained attempts, most recent first.
func (l *PaymentLedger) List(ctx context.Context) []domain.PaymentAttempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshot()
}

// Clear drops all retained attempts and persists the empty history.
func (l *PaymentLedger) Clear(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts = nil
	l.persist(ctx)
	l.logger(ctx, "ledger.cleared", nil)
}

// snapshot copies the attempt slice. Callers must hold l.mu.
func (l *PaymentLedger) snapshot() []domain.PaymentAttempt {
	out := make([]domain.PaymentAttempt, len(l.attempts))
	copy(out, l.attempts)
	return out
}

// persist writes the current history. Callers must hold l.mu.
func (l *PaymentLedger) persist(ctx context.Context) {
	if err := l.repo.SaveAttempts(ctx, l.snapshot()); err != nil {
		l.logger(ctx, "ledger.persist_failed", map[string]any{"error": err.Error()})
	}
}
