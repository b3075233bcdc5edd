package boltkv

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	domain "github.com/mercy-field/pos/internal/domain"
	"github.com/mercy-field/pos/internal/repositories"
)

// settingsRecord is the stored JSON shape. Fields are raw so a single
// malformed value falls back to its default without discarding the rest.
type settingsRecord struct {
	GlobalDiscountPercent json.RawMessage `json:"globalDiscountPercent"`
	TaxPercent            json.RawMessage `json:"taxPercent"`
	ItemDefaults          json.RawMessage `json:"itemDefaults"`
	BuyerName             json.RawMessage `json:"buyerName"`
	BuyerPhone            json.RawMessage `json:"buyerPhone"`
}

// SettingsRepository persists register cart settings in the settings bucket.
type SettingsRepository struct {
	store  *Store
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewSettingsRepository constructs the repository over an open store.
func NewSettingsRepository(store *Store, logger func(ctx context.Context, event string, fields map[string]any)) (*SettingsRepository, error) {
	if store == nil {
		return nil, fmt.Errorf("boltkv: settings repository requires an open store")
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &SettingsRepository{store: store, logger: logger}, nil
}

var _ repositories.SettingsRepository = (*SettingsRepository)(nil)

// LoadSettings reads the persisted settings, merging each valid field over
// its default. Corrupt data is logged and skipped per field.
func (r *SettingsRepository) LoadSettings(ctx context.Context) (domain.CartSettings, error) {
	settings := domain.CartSettings{ItemDefaultDiscounts: map[string]decimal.Decimal{}}

	raw, err := r.store.get(bucketSettings, keySettings)
	if err != nil {
		return settings, fmt.Errorf("%w: %v", repositories.ErrUnavailable, err)
	}
	if len(raw) == 0 {
		return settings, nil
	}

	var record settingsRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		r.logger(ctx, "settings.load_corrupt", map[string]any{"error": err.Error()})
		return settings, nil
	}

	settings.GlobalDiscountPercent = r.decodePercent(ctx, "globalDiscountPercent", record.GlobalDiscountPercent)
	settings.TaxPercent = r.decodePercent(ctx, "taxPercent", record.TaxPercent)

	if len(record.ItemDefaults) > 0 {
		defaults := map[string]decimal.Decimal{}
		if err := json.Unmarshal(record.ItemDefaults, &defaults); err != nil {
			r.logger(ctx, "settings.field_corrupt", map[string]any{"field": "itemDefaults", "error": err.Error()})
		} else {
			settings.ItemDefaultDiscounts = defaults
		}
	}

	settings.BuyerName = r.decodeString(ctx, "buyerName", record.BuyerName)
	settings.BuyerPhone = r.decodeString(ctx, "buyerPhone", record.BuyerPhone)

	return settings, nil
}

// SaveSettings writes the full settings blob, replacing any previous value.
func (r *SettingsRepository) SaveSettings(ctx context.Context, settings domain.CartSettings) error {
	defaults := settings.ItemDefaultDiscounts
	if defaults == nil {
		defaults = map[string]decimal.Decimal{}
	}

	payload := map[string]any{
		"globalDiscountPercent": settings.GlobalDiscountPercent,
		"taxPercent":            settings.TaxPercent,
		"itemDefaults":          defaults,
		"buyerName":             settings.BuyerName,
		"buyerPhone":            settings.BuyerPhone,
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("boltkv: encode settings: %w", err)
	}
	if err := r.store.put(bucketSettings, keySettings, raw); err != nil {
		return fmt.Errorf("%w: %v", repositories.ErrUnavailable, err)
	}
	return nil
}

func (r *SettingsRepository) decodePercent(ctx context.Context, field string, raw json.RawMessage) decimal.Decimal {
	if len(raw) == 0 {
		return decimal.Zero
	}
	var pct decimal.Decimal
	if err := json.Unmarshal(raw, &pct); err != nil {
		r.logger(ctx, "settings.field_corrupt", map[string]any{"field": field, "error": err.Error()})
		return decimal.Zero
	}
	return pct
}

func (r *SettingsRepository) decodeString(ctx context.Context, field string, raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		r.logger(ctx, "settings.field_corrupt", map[string]any{"field": field, "error": err.Error()})
		return ""
	}
	return value
}
