package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"POS_SALES_API_BASE_URL": "https://sales.example.com",
		}),
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("port = %q, want 8080", cfg.Server.Port)
	}
	if cfg.Register.Currency != "USD" || cfg.Register.LedgerCap != 20 {
		t.Fatalf("unexpected register config %#v", cfg.Register)
	}
	if cfg.Register.DataPath != "pos.db" {
		t.Fatalf("data path = %q, want pos.db", cfg.Register.DataPath)
	}
	if cfg.Idempotency.Header != "Idempotency-Key" || cfg.Idempotency.TTL != 24*time.Hour {
		t.Fatalf("unexpected idempotency config %#v", cfg.Idempotency)
	}
	if cfg.SalesAPI.Timeout != 10*time.Second {
		t.Fatalf("sales timeout = %v, want 10s", cfg.SalesAPI.Timeout)
	}
}

func TestLoadEnvMapOverridesDefaults(t *testing.T) {
	cfg, err := Load(
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"POS_SERVER_PORT":               "9090",
			"POS_REGISTER_CURRENCY":         "eur",
			"POS_REGISTER_LEDGER_CAP":       "50",
			"POS_REGISTER_PROVIDER_TIMEOUT": "5s",
			"POS_SALES_API_BASE_URL":        "https://sales.example.com",
			"POS_STRIPE_API_KEY":            "sk_test_123",
		}),
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Fatalf("port = %q, want 9090", cfg.Server.Port)
	}
	if cfg.Register.Currency != "EUR" {
		t.Fatalf("currency must be upper-cased, got %q", cfg.Register.Currency)
	}
	if cfg.Register.LedgerCap != 50 || cfg.Register.ProviderTimeout != 5*time.Second {
		t.Fatalf("unexpected register config %#v", cfg.Register)
	}
	if cfg.Stripe.APIKey != "sk_test_123" {
		t.Fatalf("stripe key = %q", cfg.Stripe.APIKey)
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env")
	content := "# register overrides\nPOS_SERVER_PORT=7070\nexport POS_SALES_API_BASE_URL=\"https://sales.example.com\"\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(WithoutSystemEnv(), WithEnvFile(envPath))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Fatalf("port = %q, want 7070", cfg.Server.Port)
	}
	if cfg.SalesAPI.BaseURL != "https://sales.example.com" {
		t.Fatalf("base url = %q", cfg.SalesAPI.BaseURL)
	}
}

func TestLoadValidatesRequiredFields(t *testing.T) {
	_, err := Load(WithoutSystemEnv(), WithEnvFile(""), WithEnvMap(map[string]string{}))

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	found := false
	for _, field := range validationErr.Fields() {
		if field == "SalesAPI.BaseURL" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected SalesAPI.BaseURL to be flagged, got %v", validationErr.Fields())
	}
}

func TestLoadIgnoresMalformedNumericValues(t *testing.T) {
	cfg, err := Load(
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithEnvMap(map[string]string{
			"POS_REGISTER_LEDGER_CAP": "not-a-number",
			"POS_SALES_API_TIMEOUT":   "soon",
			"POS_SALES_API_BASE_URL":  "https://sales.example.com",
		}),
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Register.LedgerCap != 20 {
		t.Fatalf("malformed int must fall back to default, got %d", cfg.Register.LedgerCap)
	}
	if cfg.SalesAPI.Timeout != 10*time.Second {
		t.Fatalf("malformed duration must fall back to default, got %v", cfg.SalesAPI.Timeout)
	}
}
