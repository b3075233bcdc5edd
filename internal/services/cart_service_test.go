package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	domain "github.com/mercy-field/pos/internal/domain"
)

type stubSettingsRepository struct {
	loadFunc func(ctx context.Context) (domain.CartSettings, error)
	saveFunc func(ctx context.Context, settings domain.CartSettings) error
	saves    []domain.CartSettings
}

func (s *stubSettingsRepository) LoadSettings(ctx context.Context) (domain.CartSettings, error) {
	if s.loadFunc != nil {
		return s.loadFunc(ctx)
	}
	return domain.CartSettings{}, nil
}

func (s *stubSettingsRepository) SaveSettings(ctx context.Context, settings domain.CartSettings) error {
	s.saves = append(s.saves, settings)
	if s.saveFunc != nil {
		return s.saveFunc(ctx, settings)
	}
	return nil
}

func newTestCartStore(t *testing.T, repo *stubSettingsRepository) *CartStore {
	t.Helper()
	if repo == nil {
		repo = &stubSettingsRepository{}
	}
	store, err := NewCartStore(context.Background(), CartStoreDeps{Settings: repo})
	if err != nil {
		t.Fatalf("new cart store: %v", err)
	}
	return store
}

func TestCartStoreAddItemMergesDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestCartStore(t, nil)

	if _, err := store.AddItem(ctx, AddItemCommand{ID: "1", Name: "Lamp", UnitPrice: dec("10.00"), Quantity: 2}); err != nil {
		t.Fatalf("add item: %v", err)
	}
	state, err := store.AddItem(ctx, AddItemCommand{ID: "1", Name: "Lamp", UnitPrice: dec("10.00"), Quantity: 3})
	if err != nil {
		t.Fatalf("add item again: %v", err)
	}

	if len(state.Lines) != 1 {
		t.Fatalf("expected single merged line, got %d", len(state.Lines))
	}
	if state.Lines[0].Quantity != 5 {
		t.Fatalf("quantity = %d, want 5", state.Lines[0].Quantity)
	}
	if state.Lines[0].DiscountPercent != nil {
		t.Fatalf("discount should stay nil without an explicit override")
	}
}

func TestCartStoreAddItemExplicitDiscountOverwrites(t *testing.T) {
	ctx := context.Background()
	store := newTestCartStore(t, nil)

	if _, err := store.AddItem(ctx, AddItemCommand{ID: "1", Name: "Lamp", UnitPrice: dec("10.00")}); err != nil {
		t.Fatalf("add item: %v", err)
	}
	state, err := store.AddItem(ctx, AddItemCommand{ID: "1", Name: "Lamp", UnitPrice: dec("10.00"), DiscountPercent: decPtr("20")})
	if err != nil {
		t.Fatalf("add with discount: %v", err)
	}

	if state.Lines[0].DiscountPercent == nil || !state.Lines[0].DiscountPercent.Equal(dec("20")) {
		t.Fatalf("expected discount override 20, got %v", state.Lines[0].DiscountPercent)
	}
	if state.Lines[0].Quantity != 2 {
		t.Fatalf("quantity = %d, want 2", state.Lines[0].Quantity)
	}
}

func TestCartStoreSetQuantityClampsToOne(t *testing.T) {
	ctx := context.Background()
	store := newTestCartStore(t, nil)
	if _, err := store.AddItem(ctx, AddItemCommand{ID: "1", Name: "Lamp", UnitPrice: dec("10.00"), Quantity: 4}); err != nil {
		t.Fatalf("add item: %v", err)
	}

	state, err := store.SetQuantity(ctx, "1", 0)
	if err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if len(state.Lines) != 1 || state.Lines[0].Quantity != 1 {
		t.Fatalf("quantity below one must clamp, never remove: %#v", state.Lines)
	}

	state, err = store.RemoveItem(ctx, "1")
	if err != nil {
		t.Fatalf("remove item: %v", err)
	}
	if len(state.Lines) != 0 {
		t.Fatalf("explicit removal should drop the line, got %#v", state.Lines)
	}
}

func TestCartStoreClearPreservesRegisterSettings(t *testing.T) {
	ctx := context.Background()
	repo := &stubSettingsRepository{}
	store := newTestCartStore(t, repo)

	if _, err := store.SetGlobalDiscount(ctx, dec("5")); err != nil {
		t.Fatalf("set global discount: %v", err)
	}
	if _, err := store.SetTaxPercent(ctx, dec("8")); err != nil {
		t.Fatalf("set tax: %v", err)
	}
	if _, err := store.SetItemDefaultDiscount(ctx, "1", dec("10")); err != nil {
		t.Fatalf("set item default: %v", err)
	}
	if _, err := store.SetBuyerName(ctx, "Pat"); err != nil {
		t.Fatalf("set buyer name: %v", err)
	}
	if _, err := store.AddItem(ctx, AddItemCommand{ID: "1", Name: "Lamp", UnitPrice: dec("10.00")}); err != nil {
		t.Fatalf("add item: %v", err)
	}

	state, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("clear: %v", err)
	}

	if len(state.Lines) != 0 {
		t.Fatalf("clear must empty lines, got %d", len(state.Lines))
	}
	if state.Settings.BuyerName != "" || state.Settings.BuyerPhone != "" {
		t.Fatalf("clear must empty buyer fields, got %q/%q", state.Settings.BuyerName, state.Settings.BuyerPhone)
	}
	if !state.Settings.GlobalDiscountPercent.Equal(dec("5")) {
		t.Fatalf("global discount must survive clear, got %s", state.Settings.GlobalDiscountPercent)
	}
	if !state.Settings.TaxPercent.Equal(dec("8")) {
		t.Fatalf("tax must survive clear, got %s", state.Settings.TaxPercent)
	}
	if !state.Settings.ItemDefaultDiscounts["1"].Equal(dec("10")) {
		t.Fatalf("item defaults must survive clear, got %#v", state.Settings.ItemDefaultDiscounts)
	}
}

func TestCartStorePersistsSettingsMutationsOnly(t *testing.T) {
	ctx := context.Background()
	repo := &stubSettingsRepository{}
	store := newTestCartStore(t, repo)

	if _, err := store.AddItem(ctx, AddItemCommand{ID: "1", Name: "Lamp", UnitPrice: dec("10.00")}); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if _, err := store.SetQuantity(ctx, "1", 3); err != nil {
		t.Fatalf("set quantity: %v", err)
	}
	if len(repo.saves) != 0 {
		t.Fatalf("line mutations must not persist, saw %d writes", len(repo.saves))
	}

	if _, err := store.SetTaxPercent(ctx, dec("8")); err != nil {
		t.Fatalf("set tax: %v", err)
	}
	if len(repo.saves) != 1 {
		t.Fatalf("settings mutation should persist once, saw %d writes", len(repo.saves))
	}
	if !repo.saves[0].TaxPercent.Equal(dec("8")) {
		t.Fatalf("persisted tax = %s, want 8", repo.saves[0].TaxPercent)
	}
}

func TestCartStoreSeedsFromPersistedSettings(t *testing.T) {
	repo := &stubSettingsRepository{
		loadFunc: func(context.Context) (domain.CartSettings, error) {
			return domain.CartSettings{
				GlobalDiscountPercent: dec("5"),
				TaxPercent:            dec("8"),
				ItemDefaultDiscounts:  map[string]decimal.Decimal{"1": dec("10")},
				BuyerName:             "Pat",
			}, nil
		},
	}
	store := newTestCartStore(t, repo)

	state := store.State()
	if !state.Settings.GlobalDiscountPercent.Equal(dec("5")) || state.Settings.BuyerName != "Pat" {
		t.Fatalf("expected seeded settings, got %#v", state.Settings)
	}
}

func TestCartStoreStartsFromDefaultsWhenLoadFails(t *testing.T) {
	repo := &stubSettingsRepository{
		loadFunc: func(context.Context) (domain.CartSettings, error) {
			return domain.CartSettings{}, errors.New("disk on fire")
		},
	}
	store := newTestCartStore(t, repo)

	state := store.State()
	if !state.Settings.GlobalDiscountPercent.IsZero() || len(state.Lines) != 0 {
		t.Fatalf("expected default state, got %#v", state)
	}
}

func TestCartStoreRejectsMutationWhileLocked(t *testing.T) {
	ctx := context.Background()
	store := newTestCartStore(t, nil)
	if _, err := store.AddItem(ctx, AddItemCommand{ID: "1", Name: "Lamp", UnitPrice: dec("10.00")}); err != nil {
		t.Fatalf("add item: %v", err)
	}

	if !store.lock() {
		t.Fatalf("first lock should succeed")
	}
	if store.lock() {
		t.Fatalf("second lock must be rejected")
	}

	if _, err := store.AddItem(ctx, AddItemCommand{ID: "2", Name: "Mug", UnitPrice: dec("2.00")}); !errors.Is(err, ErrCartLocked) {
		t.Fatalf("expected ErrCartLocked, got %v", err)
	}
	if _, err := store.Clear(ctx); !errors.Is(err, ErrCartLocked) {
		t.Fatalf("expected ErrCartLocked on clear, got %v", err)
	}

	store.unlock()
	if _, err := store.AddItem(ctx, AddItemCommand{ID: "2", Name: "Mug", UnitPrice: dec("2.00")}); err != nil {
		t.Fatalf("unlocked add should succeed: %v", err)
	}
}

func TestCartStoreStateReturnsDeepCopy(t *testing.T) {
	ctx := context.Background()
	store := newTestCartStore(t, nil)
	if _, err := store.AddItem(ctx, AddItemCommand{ID: "1", Name: "Lamp", UnitPrice: dec("10.00"), DiscountPercent: decPtr("10")}); err != nil {
		t.Fatalf("add item: %v", err)
	}

	state := store.State()
	state.Lines[0].Quantity = 99
	*state.Lines[0].DiscountPercent = dec("99")
	state.Settings.ItemDefaultDiscounts["x"] = dec("50")

	fresh := store.State()
	if fresh.Lines[0].Quantity != 1 {
		t.Fatalf("mutating a returned copy must not affect the store")
	}
	if !fresh.Lines[0].DiscountPercent.Equal(dec("10")) {
		t.Fatalf("discount aliased through returned copy")
	}
	if _, ok := fresh.Settings.ItemDefaultDiscounts["x"]; ok {
		t.Fatalf("defaults map aliased through returned copy")
	}
}
