package repositories

import (
	"context"
	"errors"

	domain "github.com/mercy-field/pos/internal/domain"
)

// ErrUnavailable wraps low-level persistence failures. Callers treat the
// register storage as best-effort: reads degrade to defaults, writes are
// logged and retried on the next mutation.
var ErrUnavailable = errors.New("repositories: storage unavailable")

// SettingsRepository persists the register-configured cart settings
// (discounts, tax, item defaults, buyer fields). Cart lines are deliberately
// excluded; they are ephemeral per register session.
type SettingsRepository interface {
	// LoadSettings returns the persisted settings merged over defaults.
	// Missing or malformed data yields defaults per field, never an error;
	// only an unreachable store reports ErrUnavailable.
	LoadSettings(ctx context.Context) (domain.CartSettings, error)
	SaveSettings(ctx context.Context, settings domain.CartSettings) error
}

// LedgerRepository persists the payment-history ledger as a single
// most-recent-first list, already capped by the service.
type LedgerRepository interface {
	// LoadAttempts returns the stored ledger. Corrupt or missing data yields
	// an empty ledger, never an error.
	LoadAttempts(ctx context.Context) ([]domain.PaymentAttempt, error)
	SaveAttempts(ctx context.Context, attempts []domain.PaymentAttempt) error
}
