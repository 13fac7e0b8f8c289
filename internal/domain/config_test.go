package domain

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Tier != TierCommunity || cfg.Repository.Driver != "sqlite" {
			t.Errorf("expected community sqlite defaults, got %s/%s", cfg.Tier, cfg.Repository.Driver)
		}
		if cfg.RateLimit.Window().Seconds() != 60 {
			t.Errorf("expected 60s window, got %s", cfg.RateLimit.Window())
		}
	})

	t.Run("ProTier", func(t *testing.T) {
		t.Setenv("TRADEPROOF_TIER", "pro")

		cfg, err := LoadConfig("")
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Repository.Driver != "postgres" || cfg.EventBus.Type != "nats" {
			t.Errorf("expected postgres + nats, got %s + %s", cfg.Repository.Driver, cfg.EventBus.Type)
		}
		if !cfg.RateLimit.Distributed {
			t.Error("pro tier should count rate limits in the shared cache")
		}
	})

	t.Run("YAMLOverlay", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tradeproof.yaml")
		yaml := `
server:
  port: 9090
repository:
  sqlitePath: /var/lib/tradeproof/data.db
rateLimit:
  requests: 10
logging:
  format: text
`
		if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
			t.Fatal(err)
		}

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("expected port 9090, got %d", cfg.Server.Port)
		}
		if cfg.Repository.SQLitePath != "/var/lib/tradeproof/data.db" {
			t.Errorf("unexpected sqlite path %q", cfg.Repository.SQLitePath)
		}
		if cfg.RateLimit.Requests != 10 || cfg.RateLimit.WindowSecs != 60 {
			t.Errorf("overlay should keep unset defaults, got %+v", cfg.RateLimit)
		}
		if cfg.Repository.Driver != "sqlite" {
			t.Errorf("unset driver should stay sqlite, got %q", cfg.Repository.Driver)
		}
		if cfg.Logging.Format != "text" {
			t.Errorf("expected text format, got %q", cfg.Logging.Format)
		}
	})

	t.Run("EnvOverridesFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tradeproof.yaml")
		if err := os.WriteFile(path, []byte("server:\n  port: 9090\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("TRADEPROOF_PORT", "7070")
		t.Setenv("TRADEPROOF_TENANTS", " bank-a, ,bank-b ")
		t.Setenv("TRADEPROOF_ASYNC_WORKER", "false")
		t.Setenv("TRADEPROOF_DEBUG", "true")

		cfg, err := LoadConfig(path)
		if err != nil {
			t.Fatalf("LoadConfig failed: %v", err)
		}
		if cfg.Server.Port != 7070 {
			t.Errorf("expected env port 7070, got %d", cfg.Server.Port)
		}
		if len(cfg.Tenants) != 2 || cfg.Tenants[0] != "bank-a" || cfg.Tenants[1] != "bank-b" {
			t.Errorf("unexpected tenants %v", cfg.Tenants)
		}
		if cfg.AsyncWorker {
			t.Error("expected async worker disabled")
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("expected debug level, got %q", cfg.Logging.Level)
		}
	})

	t.Run("BadPort", func(t *testing.T) {
		t.Setenv("TRADEPROOF_PORT", "eighty")
		if _, err := LoadConfig(""); err == nil {
			t.Error("expected error for non-numeric port")
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("MalformedYAML", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("server: [unclosed"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfig(path); err == nil {
			t.Error("expected parse error")
		}
	})
}

func TestCrossCheckRequestValidate(t *testing.T) {
	invoice := TradeDocument{Type: DocCommercialInvoice}

	tests := []struct {
		name    string
		req     CrossCheckRequest
		wantErr bool
	}{
		{"Valid", CrossCheckRequest{TradeID: "t-1", Documents: []TradeDocument{invoice}}, false},
		{"BlankTradeID", CrossCheckRequest{TradeID: "  ", Documents: []TradeDocument{invoice}}, true},
		{"NoDocuments", CrossCheckRequest{TradeID: "t-1"}, true},
		{"UnknownType", CrossCheckRequest{TradeID: "t-1", Documents: []TradeDocument{{Type: "airway_bill"}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
