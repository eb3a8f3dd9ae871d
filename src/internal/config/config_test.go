package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigFileMergesChainDefaults(t *testing.T) {
	path := writeSettings(t, `
economic:
  threshold: 0.2
chains:
  eth:
    native_price_usd: 3000
    explorer:
      api_key: file-key
`)
	cfg, err := LoadConfigFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}

	eth, err := cfg.GetChainConfig("mainnet")
	if err != nil {
		t.Fatalf("GetChainConfig: %v", err)
	}
	if eth.NativePriceUSD != 3000 {
		t.Errorf("native price = %v, want 3000", eth.NativePriceUSD)
	}
	if eth.ChainID != 1 || len(eth.Factories) != 2 || eth.WrappedNative == "" {
		t.Errorf("defaults not merged: %+v", eth)
	}
	if eth.Explorer.APIKey != "file-key" {
		t.Errorf("api key = %q", eth.Explorer.APIKey)
	}
	if _, err := cfg.GetChainConfig("bsc"); err != nil {
		t.Errorf("bsc missing: %v", err)
	}
	if cfg.Economic.Threshold != 0.2 || cfg.Economic.MinProfitUSD != 100 || cfg.Economic.FlashLoanFeePct != 0.09 {
		t.Errorf("economic = %+v", cfg.Economic)
	}
	if cfg.Analyzers.Slither.Timeout != 300*time.Second || cfg.Analyzers.Mythril.Path != "myth" {
		t.Errorf("analyzers = %+v", cfg.Analyzers)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ETHERSCAN_API_KEY", "env-key")
	t.Setenv("ECONAUDIT_RPC_BSC", "http://localhost:8545")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg := Default()
	bsc, _ := cfg.GetChainConfig("bnb")
	if bsc.Explorer.APIKey != "env-key" {
		t.Errorf("api key = %q", bsc.Explorer.APIKey)
	}
	if bsc.RPCURLs[0] != "http://localhost:8545" {
		t.Errorf("rpc urls = %v", bsc.RPCURLs)
	}
	if len(cfg.Publish.Brokers) != 2 || cfg.Cache.RedisAddr != "localhost:6379" {
		t.Errorf("publish=%v cache=%q", cfg.Publish.Brokers, cfg.Cache.RedisAddr)
	}
}

func TestGetAIConfig(t *testing.T) {
	cfg := Default()
	cfg.AI.OpenAI.Model = "gpt-4o"
	tests := []struct {
		provider string
		wantErr  bool
		model    string
	}{
		{"openai", false, "gpt-4o"},
		{"ollama", false, ""},
		{"stub", false, ""},
		{"gemini", true, ""},
	}
	for _, tt := range tests {
		p, err := cfg.GetAIConfig(tt.provider)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: err = %v", tt.provider, err)
			continue
		}
		if err == nil && p.Model != tt.model {
			t.Errorf("%s: model = %q", tt.provider, p.Model)
		}
	}
}

func TestGetDatabaseDSN(t *testing.T) {
	cfg := Default()
	cfg.Database = DatabaseConfig{Host: "db", Port: "3306", User: "u", Password: "p", Name: "audits"}
	if got, want := cfg.GetDatabaseDSN(true), "u:p@tcp(db:3306)/audits?parseTime=true&charset=utf8mb4"; got != want {
		t.Errorf("dsn = %q, want %q", got, want)
	}
	if got, want := cfg.GetDatabaseDSN(false), "u:p@tcp(db:3306)/?parseTime=true&charset=utf8mb4"; got != want {
		t.Errorf("dsn = %q, want %q", got, want)
	}
}

func TestMergeConfigs(t *testing.T) {
	app := Default()
	app.Economic.Threshold = 0.3
	app.AI.Provider = "ollama"

	got := MergeConfigs(app, AuditConfiguration{Chain: "bnb", MinProfitUSD: 50, Format: "json"})
	if got.Threshold != 0.3 || got.AIProvider != "ollama" {
		t.Errorf("file values lost: %+v", got)
	}
	if got.Chain != "bsc" || got.MinProfitUSD != 50 || got.Format != "json" {
		t.Errorf("flag values lost: %+v", got)
	}
	if got.ReportDir != "reports" {
		t.Errorf("report dir = %q", got.ReportDir)
	}
}

func TestAPIKeyManagerRotation(t *testing.T) {
	if NewAPIKeyManager(nil, "") != nil {
		t.Fatal("expected nil manager without keys")
	}
	var nilManager *APIKeyManager
	if nilManager.GetKey() != "" || nilManager.GetKeyCount() != 0 {
		t.Error("nil manager should be empty")
	}

	m := NewAPIKeyManager([]string{"a", "", "b"}, "fallback")
	if m.GetKeyCount() != 2 {
		t.Fatalf("count = %d", m.GetKeyCount())
	}
	first := m.GetKey()
	second := m.GetNextKey()
	if first == second {
		t.Errorf("rotation did not advance: %s", first)
	}
	if m.GetNextKey() != first {
		t.Error("rotation should wrap")
	}

	if got := NewAPIKeyManager(nil, "fallback").GetKey(); got != "fallback" {
		t.Errorf("fallback = %q", got)
	}
}

func TestCanonicalChain(t *testing.T) {
	for in, want := range map[string]string{"ETH": "ethereum", " arb ": "arbitrum", "base": "base"} {
		if got := CanonicalChain(in); got != want {
			t.Errorf("CanonicalChain(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExampleSettingsParse(t *testing.T) {
	cfg, err := LoadConfigFile(filepath.Join("..", "..", "config", "settings.example.yaml"))
	if err != nil {
		t.Fatalf("LoadConfigFile: %v", err)
	}
	if !cfg.Analyzers.AI || cfg.Analyzers.Slither.Enabled {
		t.Errorf("analyzers = %+v", cfg.Analyzers)
	}
	if cfg.AI.OpenAI.Timeout != 120*time.Second || cfg.Cache.TTL != 60*time.Second {
		t.Errorf("durations not decoded: openai=%v ttl=%v", cfg.AI.OpenAI.Timeout, cfg.Cache.TTL)
	}
	eth, err := cfg.GetChainConfig("ethereum")
	if err != nil {
		t.Fatalf("GetChainConfig: %v", err)
	}
	if eth.NativePriceUSD != 2000 || eth.ChainID != 1 {
		t.Errorf("ethereum = %+v", eth)
	}
}
