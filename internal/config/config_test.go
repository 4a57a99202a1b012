package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

func TestDiscoveryDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Discovery.ScanWindow != 1000 {
		t.Fatalf("expected scan window 1000, got %d", cfg.Discovery.ScanWindow)
	}
	if cfg.Discovery.LogTimeout != 10*time.Second {
		t.Fatalf("expected log timeout 10s, got %v", cfg.Discovery.LogTimeout)
	}
	if cfg.Discovery.PollInterval != 5*time.Second {
		t.Fatalf("expected poll interval 5s, got %v", cfg.Discovery.PollInterval)
	}
}

func TestChainDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Chains.Destination != BaseSepoliaChainID {
		t.Fatalf("expected destination %d, got %d", BaseSepoliaChainID, cfg.Chains.Destination)
	}
	if cfg.Chains.Origin != SepoliaChainID {
		t.Fatalf("expected origin %d, got %d", SepoliaChainID, cfg.Chains.Origin)
	}
	if cfg.Chains.Reactive != ReactiveLasnaChainID {
		t.Fatalf("expected reactive %d, got %d", ReactiveLasnaChainID, cfg.Chains.Reactive)
	}
}

func TestLimitDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Limits.MaxLTVBps != 8000 || cfg.Limits.DefaultLTVBps != 7000 {
		t.Fatalf("unexpected ltv limits: %+v", cfg.Limits)
	}
	if cfg.Limits.MaxSlippageBps != 1000 || cfg.Limits.DefaultSlippageBps != 300 {
		t.Fatalf("unexpected slippage limits: %+v", cfg.Limits)
	}
}

func TestMetricsDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	if cfg.Metrics.Enabled == nil || !cfg.Metrics.EnabledValue() {
		t.Fatalf("expected metrics enabled default")
	}
	if cfg.Metrics.Address != "127.0.0.1:9001" {
		t.Fatalf("expected metrics address default, got %q", cfg.Metrics.Address)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Fatalf("expected metrics path default, got %q", cfg.Metrics.Path)
	}
}

func TestMetricsEnabledFalseRespected(t *testing.T) {
	enabled := false
	cfg := &Config{Metrics: MetricsConfig{Enabled: &enabled}}
	applyDefaults(cfg)
	if cfg.Metrics.EnabledValue() {
		t.Fatalf("expected metrics enabled=false to be preserved")
	}
}

func TestDefaultAssetsRegistry(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	usdc, ok := cfg.Assets.BySymbol(BaseSepoliaChainID, "usdc")
	if !ok {
		t.Fatalf("expected USDC in default registry")
	}
	if usdc.Decimals != 6 {
		t.Fatalf("expected USDC decimals 6, got %d", usdc.Decimals)
	}
	weth, ok := cfg.Assets.Resolve(BaseSepoliaChainID, "0x4200000000000000000000000000000000000006")
	if !ok || weth.Symbol != "WETH" {
		t.Fatalf("expected WETH by address, got %+v (ok=%v)", weth, ok)
	}
	if _, ok := cfg.Assets.Resolve(SepoliaChainID, "USDC"); ok {
		t.Fatalf("expected no USDC on origin chain")
	}
}

func TestDisplayFallsBackToUnknownAsset(t *testing.T) {
	reg := DefaultAssets()
	got := reg.Display(BaseSepoliaChainID, common.HexToAddress("0x0000000000000000000000000000000000000bad"))
	if got != UnknownAsset {
		t.Fatalf("expected unknown asset fallback, got %+v", got)
	}
}

func TestValidateRejectsBadFactory(t *testing.T) {
	cfg := &Config{Contracts: ContractsConfig{Factory: "nope"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for invalid factory address")
	}
}

func TestValidateRejectsDefaultLTVAboveMax(t *testing.T) {
	cfg := &Config{Limits: LimitsConfig{MaxLTVBps: 5000, DefaultLTVBps: 6000}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for default ltv above max")
	}
}

func TestValidateRejectsMissingDestinationAssets(t *testing.T) {
	cfg := &Config{Chains: ChainsConfig{Destination: 1}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for destination chain without assets")
	}
}

func TestValidateRejectsMetricsPathWithoutSlash(t *testing.T) {
	cfg := &Config{Metrics: MetricsConfig{Path: "metrics"}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for metrics path without leading slash")
	}
}

func TestValidateRejectsTelegramEnabledWithoutConfig(t *testing.T) {
	t.Setenv("YG_TELEGRAM_TOKEN", "")
	t.Setenv("YG_TELEGRAM_CHAT_ID", "")
	cfg := &Config{Telegram: TelegramConfig{Enabled: true}}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for missing telegram token/chat_id")
	}
}

func TestValidateRejectsOperatorWithoutTelegram(t *testing.T) {
	cfg := &Config{Telegram: TelegramConfig{OperatorEnabled: true}}
	applyDefaults(cfg)
	if err := validate(cfg); err == nil {
		t.Fatalf("expected error for operator without telegram")
	}
	if cfg.Telegram.OperatorPollInterval != 3*time.Second {
		t.Fatalf("expected operator poll default 3s, got %v", cfg.Telegram.OperatorPollInterval)
	}
}

func TestEnvOverridesConfig(t *testing.T) {
	t.Setenv("YG_TELEGRAM_TOKEN", "env-token")
	t.Setenv("YG_TELEGRAM_CHAT_ID", "123")
	t.Setenv("YG_FACTORY_ADDRESS", "0x00000000000000000000000000000000000000f1")
	cfg := &Config{Telegram: TelegramConfig{Enabled: true, Token: "config-token", ChatID: "999"}}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	if cfg.Telegram.Token != "env-token" {
		t.Fatalf("expected env token override, got %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.ChatID != "123" {
		t.Fatalf("expected env chat id override, got %q", cfg.Telegram.ChatID)
	}
	if cfg.Contracts.Factory != "0x00000000000000000000000000000000000000f1" {
		t.Fatalf("expected env factory override, got %q", cfg.Contracts.Factory)
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("expected valid config with env overrides, got %v", err)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "" +
		"log:\n  level: debug\n" +
		"chains:\n  destination: 31337\n" +
		"contracts:\n  factory: \"0x00000000000000000000000000000000000000aa\"\n" +
		"assets:\n  31337:\n    DAI:\n      address: \"0x00000000000000000000000000000000000000da\"\n      decimals: 18\n      symbol: DAI\n" +
		"discovery:\n  scan_window: 50\n  log_timeout: 3s\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("expected debug level, got %q", cfg.Log.Level)
	}
	if cfg.Chains.Destination != 31337 {
		t.Fatalf("expected destination 31337, got %d", cfg.Chains.Destination)
	}
	if cfg.Discovery.ScanWindow != 50 || cfg.Discovery.LogTimeout != 3*time.Second {
		t.Fatalf("unexpected discovery config: %+v", cfg.Discovery)
	}
	if _, ok := cfg.Assets.BySymbol(31337, "DAI"); !ok {
		t.Fatalf("expected DAI asset on chain 31337")
	}
}

func TestExplorerTxURL(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)
	got := cfg.ExplorerTxURL(BaseSepoliaChainID, "0xabc")
	if got != "https://sepolia.basescan.org/tx/0xabc" {
		t.Fatalf("unexpected explorer url %q", got)
	}
	if cfg.ExplorerTxURL(1, "0xabc") != "" {
		t.Fatalf("expected empty url for unknown chain")
	}
}
