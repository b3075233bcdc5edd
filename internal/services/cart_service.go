package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	domain "github.com/mercy-field/pos/internal/domain"
	"github.com/mercy-field/pos/internal/repositories"
)

// ErrCartLocked indicates a card checkout session holds the cart between
// snapshot capture and its terminal transition; mutations are rejected so the
// captured snapshot and the cart cannot diverge.
var ErrCartLocked = errors.New("cart: locked by active checkout session")

var errCartSettingsRepoRequired = errors.New("cart store: settings repository is required")

// CartStoreDeps wires the persistence and logging dependencies of the store.
type CartStoreDeps struct {
	Settings repositories.SettingsRepository
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

// CartStore is the canonical mutable cart state for the register. All
// mutation happens through the fixed command set below; consumers receive
// deep copies and can never alias internal state. The store is safe for
// concurrent use, though the register drives it from a single UI session.
type CartStore struct {
	mu     sync.Mutex
	state  domain.CartState
	locked bool

	settings repositories.SettingsRepository
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewCartStore constructs the store, seeding settings from persisted state.
// A failed load is logged and the store starts from defaults; the register
// must come up even when its data file is unreadable.
func NewCartStore(ctx context.Context, deps CartStoreDeps) (*CartStore, error) {
	if deps.Settings == nil {
		return nil, errCartSettingsRepoRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	store := &CartStore{
		settings: deps.Settings,
		logger:   logger,
	}

	settings, err := deps.Settings.LoadSettings(ctx)
	if err != nil {
		logger(ctx, "cart.settings_load_failed", map[string]any{"error": err.Error()})
		settings = domain.CartSettings{}
	}
	if settings.ItemDefaultDiscounts == nil {
		settings.ItemDefaultDiscounts = map[string]decimal.Decimal{}
	}
	store.state = domain.CartState{Settings: settings}

	return store, nil
}

// State returns a deep copy of the current cart.
func (s *CartStore) State() domain.CartState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// AddItemCommand carries the inputs for AddItem. Quantity below one is
// treated as one; DiscountPercent nil defers to the item default.
type AddItemCommand struct {
	ID              string
	Name            string
	UnitPrice       decimal.Decimal
	Quantity        int
	DiscountPercent *decimal.Decimal
}

// AddItem inserts a new line or, when the id is already present, increments
// its quantity and overwrites the line discount only if one was supplied
// explicitly. Returns the updated cart.
func (s *CartStore) AddItem(ctx context.Context, cmd AddItemCommand) (domain.CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return s.state.Clone(), ErrCartLocked
	}

	id := strings.TrimSpace(cmd.ID)
	if id == "" {
		return s.state.Clone(), nil
	}
	quantity := cmd.Quantity
	if quantity < 1 {
		quantity = 1
	}
	var override *decimal.Decimal
	if cmd.DiscountPercent != nil {
		pct := clampPercent(*cmd.DiscountPercent)
		override = &pct
	}

	for i := range s.state.Lines {
		if s.state.Lines[i].ID != id {
			continue
		}
		s.state.Lines[i].Quantity += quantity
		if override != nil {
			s.state.Lines[i].DiscountPercent = override
		}
		return s.state.Clone(), nil
	}

	s.state.Lines = append(s.state.Lines, domain.CartLine{
		ID:              id,
		Name:            strings.TrimSpace(cmd.Name),
		UnitPrice:       cmd.UnitPrice,
		Quantity:        quantity,
		DiscountPercent: override,
	})
	return s.state.Clone(), nil
}

// RemoveItem drops the line with the given id; unknown ids are a no-op.
func (s *CartStore) RemoveItem(ctx context.Context, id string) (domain.CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return s.state.Clone(), ErrCartLocked
	}

	for i := range s.state.Lines {
		if s.state.Lines[i].ID == id {
			s.state.Lines = append(s.state.Lines[:i], s.state.Lines[i+1:]...)
			break
		}
	}
	return s.state.Clone(), nil
}

// SetQuantity sets a line's quantity, clamped to a minimum of one. Dropping
// a line requires an explicit RemoveItem; zeroing is never allowed.
func (s *CartStore) SetQuantity(ctx context.Context, id string, quantity int) (domain.CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return s.state.Clone(), ErrCartLocked
	}

	if quantity < 1 {
		quantity = 1
	}
	for i := range s.state.Lines {
		if s.state.Lines[i].ID == id {
			s.state.Lines[i].Quantity = quantity
			break
		}
	}
	return s.state.Clone(), nil
}

// SetLineDiscount overrides the discount percent for one line, clamped to
// [0,100].
func (s *CartStore) SetLineDiscount(ctx context.Context, id string, percent decimal.Decimal) (domain.CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return s.state.Clone(), ErrCartLocked
	}

	pct := clampPercent(percent)
	for i := range s.state.Lines {
		if s.state.Lines[i].ID == id {
			s.state.Lines[i].DiscountPercent = &pct
			break
		}
	}
	return s.state.Clone(), nil
}

// SetGlobalDiscount sets the order-level discount percent, clamped to
// [0,100], and persists the register settings.
func (s *CartStore) SetGlobalDiscount(ctx context.Context, percent decimal.Decimal) (domain.CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return s.state.Clone(), ErrCartLocked
	}

	s.state.Settings.GlobalDiscountPercent = clampPercent(percent)
	s.persistSettings(ctx)
	return s.state.Clone(), nil
}

// SetTaxPercent sets the tax rate (clamped non-negative) and persists the
// register settings.
func (s *CartStore) SetTaxPercent(ctx context.Context, percent decimal.Decimal) (domain.CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return s.state.Clone(), ErrCartLocked
	}

	s.state.Settings.TaxPercent = clampNonNegative(percent)
	s.persistSettings(ctx)
	return s.state.Clone(), nil
}

// SetItemDefaultDiscount records the default discount for an item id,
// clamped to [0,100], and persists the register settings.
func (s *CartStore) SetItemDefaultDiscount(ctx context.Context, id string, percent decimal.Decimal) (domain.CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return s.state.Clone(), ErrCartLocked
	}

	id = strings.TrimSpace(id)
	if id == "" {
		return s.state.Clone(), nil
	}
	if s.state.Settings.ItemDefaultDiscounts == nil {
		s.state.Settings.ItemDefaultDiscounts = map[string]decimal.Decimal{}
	}
	s.state.Settings.ItemDefaultDiscounts[id] = clampPercent(percent)
	s.persistSettings(ctx)
	return s.state.Clone(), nil
}

// SetBuyerName updates the buyer name and persists the register settings.
func (s *CartStore) SetBuyerName(ctx context.Context, name string) (domain.CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return s.state.Clone(), ErrCartLocked
	}

	s.state.Settings.BuyerName = strings.TrimSpace(name)
	s.persistSettings(ctx)
	return s.state.Clone(), nil
}

// SetBuyerPhone updates the buyer phone and persists the register settings.
func (s *CartStore) SetBuyerPhone(ctx context.Context, phone string) (domain.CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return s.state.Clone(), ErrCartLocked
	}

	s.state.Settings.BuyerPhone = strings.TrimSpace(phone)
	s.persistSettings(ctx)
	return s.state.Clone(), nil
}

// Clear empties the lines and buyer fields while preserving the configured
// register settings (global discount, tax, item defaults).
func (s *CartStore) Clear(ctx context.Context) (domain.CartState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return s.state.Clone(), ErrCartLocked
	}

	s.clearLocked(ctx)
	return s.state.Clone(), nil
}

// lock reserves the cart for an in-flight card checkout. Returns false when
// another session already holds it.
func (s *CartStore) lock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locked {
		return false
	}
	s.locked = true
	return true
}

// unlock releases the checkout hold without touching cart contents.
func (s *CartStore) unlock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = false
}

// clearAfterCheckout empties the cart on behalf of a finalised checkout,
// bypassing the session lock the checkout itself holds.
func (s *CartStore) clearAfterCheckout(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked(ctx)
}

func (s *CartStore) clearLocked(ctx context.Context) {
	s.state.Lines = nil
	s.state.Settings.BuyerName = ""
	s.state.Settings.BuyerPhone = ""
	s.persistSettings(ctx)
}

// persistSettings writes the settings subset. Failures are logged and the
// in-memory state stays authoritative; the next settings mutation retries.
// Callers must hold s.mu.
func (s *CartStore) persistSettings(ctx context.Context) {
	if err := s.settings.SaveSettings(ctx, s.state.Settings.Clone()); err != nil {
		s.logger(ctx, "cart.settings_persist_failed", map[string]any{"error": err.Error()})
	}
}
