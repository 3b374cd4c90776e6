package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetPrimaryRPCURL(t *testing.T) {
	os.Setenv("TEST_RPC_API_KEY", "test-api-key")
	defer os.Unsetenv("TEST_RPC_API_KEY")

	cfg := &Config{
		RPC: RPCConfig{
			PrimaryURL:       "https://rpc.shyft.to",
			PrimaryAPIKeyEnv: "TEST_RPC_API_KEY",
		},
	}
	m := &Manager{config: cfg}

	// Basic URL
	url := m.GetPrimaryRPCURL()
	expected := "https://rpc.shyft.to?api_key=test-api-key"
	if url != expected {
		t.Errorf("expected %s, got %s", expected, url)
	}

	// URL with existing query param
	m.config.RPC.PrimaryURL = "https://rpc.shyft.to?foo=bar"
	url = m.GetPrimaryRPCURL()
	expected = "https://rpc.shyft.to?foo=bar&api_key=test-api-key"
	if url != expected {
		t.Errorf("expected %s, got %s", expected, url)
	}

	// API key env var missing
	os.Unsetenv("TEST_RPC_API_KEY")
	m.config.RPC.PrimaryURL = "https://rpc.shyft.to"
	url = m.GetPrimaryRPCURL()
	expected = "https://rpc.shyft.to"
	if url != expected {
		t.Errorf("expected %s, got %s", expected, url)
	}
}

func TestGetFallbackRPCURLHeliusStyle(t *testing.T) {
	os.Setenv("TEST_HELIUS_KEY", "test-helius-key")
	defer os.Unsetenv("TEST_HELIUS_KEY")

	cfg := &Config{
		RPC: RPCConfig{
			FallbackURL:       "https://mainnet.helius-rpc.com",
			FallbackAPIKeyEnv: "TEST_HELIUS_KEY",
		},
	}
	m := &Manager{config: cfg}

	// Helius uses api-key
	url := m.GetFallbackRPCURL()
	expected := "https://mainnet.helius-rpc.com?api-key=test-helius-key"
	if url != expected {
		t.Errorf("expected %s, got %s", expected, url)
	}
}

func TestNewManagerDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
trading:
  real_trading_enabled: false
  buy_amount_sol: 0.05
detector:
  native_enabled: false
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	cfg := m.Get()
	if cfg.Trading.BuyAmountSOL != 0.05 {
		t.Errorf("buy_amount_sol = %v, want 0.05 from file", cfg.Trading.BuyAmountSOL)
	}
	if cfg.Trading.RealTradingEnabled {
		t.Error("real_trading_enabled should be false")
	}
	if cfg.Detector.NativeEnabled {
		t.Error("native_enabled should be false from file")
	}
	if !cfg.Detector.PumpfunEnabled {
		t.Error("pumpfun_enabled should default to true")
	}
	if cfg.Trading.SlippageBps != 500 {
		t.Errorf("slippage_bps = %d, want default 500", cfg.Trading.SlippageBps)
	}
	if cfg.Trading.MaxOpenPositions != 3 {
		t.Errorf("max_open_positions = %d, want default 3", cfg.Trading.MaxOpenPositions)
	}
	if cfg.Price.CacheTTLSeconds != 3 {
		t.Errorf("price.cache_ttl_seconds = %d, want default 3", cfg.Price.CacheTTLSeconds)
	}
	if cfg.Jupiter.MaxPriorityFeeLamports != 1_250_000 {
		t.Errorf("max_priority_fee_lamports = %d, want default 1250000", cfg.Jupiter.MaxPriorityFeeLamports)
	}
	if cfg.Storage.SQLitePath != "./data/bot.db" {
		t.Errorf("sqlite_path = %s, want default", cfg.Storage.SQLitePath)
	}
	if cfg.Wallet.BaseMint != "So11111111111111111111111111111111111111112" {
		t.Errorf("base_mint = %s, want wrapped SOL default", cfg.Wallet.BaseMint)
	}
}

func TestDurationHelpers(t *testing.T) {
	m := &Manager{config: &Config{
		Monitor:    MonitorConfig{IntervalSeconds: 5},
		Blockchain: BlockchainConfig{BlockhashRefreshMs: 1000, BlockhashTTLSeconds: 60},
	}}

	if got := m.GetMonitorInterval().Seconds(); got != 5 {
		t.Errorf("monitor interval = %vs, want 5s", got)
	}
	if got := m.GetBlockhashRefresh().Milliseconds(); got != 1000 {
		t.Errorf("blockhash refresh = %vms, want 1000ms", got)
	}
}
