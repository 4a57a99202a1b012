package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log       LoggingConfig     `yaml:"log"`
	RPC       RPCConfig         `yaml:"rpc"`
	Chains    ChainsConfig      `yaml:"chains"`
	Contracts ContractsConfig   `yaml:"contracts"`
	Assets    AssetRegistry     `yaml:"assets"`
	Explorers map[uint64]string `yaml:"explorers"`
	Limits    LimitsConfig      `yaml:"limits"`
	Discovery DiscoveryConfig   `yaml:"discovery"`
	Tx        TxConfig          `yaml:"tx"`
	Wallet    WalletConfig      `yaml:"wallet"`
	State     StateConfig       `yaml:"state"`
	Metrics   MetricsConfig     `yaml:"metrics"`
	Telegram  TelegramConfig    `yaml:"telegram"`
	Timescale TimescaleConfig   `yaml:"timescale"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type RPCConfig struct {
	URL     string        `yaml:"url"`
	WSURL   string        `yaml:"ws_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// ChainsConfig holds the numeric chain identifiers of the three deployments.
// Destination is where the factory and the positions live.
type ChainsConfig struct {
	Origin      uint64 `yaml:"origin"`
	Destination uint64 `yaml:"destination"`
	Reactive    uint64 `yaml:"reactive"`
}

type ContractsConfig struct {
	Factory    string `yaml:"factory"`
	FeedProxy  string `yaml:"feed_proxy"`
	OriginFeed string `yaml:"origin_feed"`
}

type LimitsConfig struct {
	MaxLTVBps          uint64 `yaml:"max_ltv_bps"`
	DefaultLTVBps      uint64 `yaml:"default_ltv_bps"`
	MaxSlippageBps     uint64 `yaml:"max_slippage_bps"`
	DefaultSlippageBps uint64 `yaml:"default_slippage_bps"`
}

type DiscoveryConfig struct {
	ScanWindow   uint64        `yaml:"scan_window"`
	LogTimeout   time.Duration `yaml:"log_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Owner        string        `yaml:"owner"`
}

type TxConfig struct {
	ConfirmPollInterval time.Duration `yaml:"confirm_poll_interval"`
	ConfirmTimeout      time.Duration `yaml:"confirm_timeout"`
	GasLimitMultiplier  float64       `yaml:"gas_limit_multiplier"`
}

type WalletConfig struct {
	Address    string `yaml:"address"`
	PrivateKey string `yaml:"-"`
}

type StateConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Address string `yaml:"address"`
	Path    string `yaml:"path"`
}

func (m MetricsConfig) EnabledValue() bool {
	return m.Enabled != nil && *m.Enabled
}

type TelegramConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
	// Operator commands are read from ChatID only, and only from
	// OperatorAllowedUserIDs when that list is set.
	OperatorEnabled        bool          `yaml:"operator_enabled"`
	OperatorPollInterval   time.Duration `yaml:"operator_poll_interval"`
	OperatorAllowedUserIDs []int64       `yaml:"operator_allowed_user_ids"`
}

type TimescaleConfig struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	Schema          string        `yaml:"schema"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueueSize       int           `yaml:"queue_size"`
}

const (
	BaseSepoliaChainID   uint64 = 84532
	SepoliaChainID       uint64 = 11155111
	ReactiveLasnaChainID uint64 = 5318007

	defaultFactory    = "0x67442eB9835688E59f886a884f4E915De5ce93E8"
	defaultOriginFeed = "0x694AA1769357215DE4FAC081bf1f309aDC325306"
)

func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

// Default returns a configuration for the public testnet deployment with no
// file backing it. Environment overrides are applied.
func Default() (*Config, error) {
	var cfg Config
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return &cfg, validate(&cfg)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.RPC.URL == "" {
		cfg.RPC.URL = "https://sepolia.base.org"
	}
	if cfg.RPC.Timeout == 0 {
		cfg.RPC.Timeout = 15 * time.Second
	}
	if cfg.Chains.Origin == 0 {
		cfg.Chains.Origin = SepoliaChainID
	}
	if cfg.Chains.Destination == 0 {
		cfg.Chains.Destination = BaseSepoliaChainID
	}
	if cfg.Chains.Reactive == 0 {
		cfg.Chains.Reactive = ReactiveLasnaChainID
	}
	if cfg.Contracts.Factory == "" {
		cfg.Contracts.Factory = defaultFactory
	}
	if cfg.Contracts.OriginFeed == "" {
		cfg.Contracts.OriginFeed = defaultOriginFeed
	}
	if len(cfg.Assets) == 0 {
		cfg.Assets = DefaultAssets()
	}
	if cfg.Explorers == nil {
		cfg.Explorers = map[uint64]string{
			SepoliaChainID:       "https://sepolia.etherscan.io",
			BaseSepoliaChainID:   "https://sepolia.basescan.org",
			ReactiveLasnaChainID: "https://kopli.reactscan.net",
		}
	}
	if cfg.Limits.MaxLTVBps == 0 {
		cfg.Limits.MaxLTVBps = 8000
	}
	if cfg.Limits.DefaultLTVBps == 0 {
		cfg.Limits.DefaultLTVBps = 7000
	}
	if cfg.Limits.MaxSlippageBps == 0 {
		cfg.Limits.MaxSlippageBps = 1000
	}
	if cfg.Limits.DefaultSlippageBps == 0 {
		cfg.Limits.DefaultSlippageBps = 300
	}
	if cfg.Discovery.ScanWindow == 0 {
		cfg.Discovery.ScanWindow = 1000
	}
	if cfg.Discovery.LogTimeout == 0 {
		cfg.Discovery.LogTimeout = 10 * time.Second
	}
	if cfg.Discovery.PollInterval == 0 {
		cfg.Discovery.PollInterval = 5 * time.Second
	}
	if cfg.Tx.ConfirmPollInterval == 0 {
		cfg.Tx.ConfirmPollInterval = 2 * time.Second
	}
	if cfg.Tx.ConfirmTimeout == 0 {
		cfg.Tx.ConfirmTimeout = 2 * time.Minute
	}
	if cfg.Tx.GasLimitMultiplier == 0 {
		cfg.Tx.GasLimitMultiplier = 1.2
	}
	if cfg.State.SQLitePath == "" {
		cfg.State.SQLitePath = "data/yieldguard.db"
	}
	if cfg.Metrics.Enabled == nil {
		enabled := true
		cfg.Metrics.Enabled = &enabled
	}
	if cfg.Metrics.Address == "" {
		cfg.Metrics.Address = "127.0.0.1:9001"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Telegram.OperatorPollInterval == 0 {
		cfg.Telegram.OperatorPollInterval = 3 * time.Second
	}
	if cfg.Timescale.Schema == "" {
		cfg.Timescale.Schema = "public"
	}
}

func applyEnvOverrides(cfg *Config) {
	setString(&cfg.RPC.URL, "YG_RPC_URL")
	setString(&cfg.RPC.WSURL, "YG_RPC_WS_URL")
	setString(&cfg.Contracts.Factory, "YG_FACTORY_ADDRESS")
	setString(&cfg.Contracts.FeedProxy, "YG_FEED_PROXY_ADDRESS")
	setString(&cfg.Wallet.Address, "YG_WALLET_ADDRESS")
	setString(&cfg.Wallet.PrivateKey, "YG_PRIVATE_KEY")
	setString(&cfg.Discovery.Owner, "YG_OWNER_ADDRESS")
	setString(&cfg.Telegram.Token, "YG_TELEGRAM_TOKEN")
	setString(&cfg.Telegram.ChatID, "YG_TELEGRAM_CHAT_ID")
	setString(&cfg.Timescale.DSN, "YG_TIMESCALE_DSN")
}

func setString(dst *string, key string) {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		*dst = val
	}
}

func validate(cfg *Config) error {
	if cfg.Chains.Destination == 0 {
		return errors.New("chains.destination is required")
	}
	if !common.IsHexAddress(cfg.Contracts.Factory) {
		return fmt.Errorf("contracts.factory %q is not a valid address", cfg.Contracts.Factory)
	}
	if cfg.Contracts.FeedProxy != "" && !common.IsHexAddress(cfg.Contracts.FeedProxy) {
		return fmt.Errorf("contracts.feed_proxy %q is not a valid address", cfg.Contracts.FeedProxy)
	}
	if cfg.Wallet.Address != "" && !common.IsHexAddress(cfg.Wallet.Address) {
		return fmt.Errorf("wallet.address %q is not a valid address", cfg.Wallet.Address)
	}
	if cfg.Discovery.Owner != "" && !common.IsHexAddress(cfg.Discovery.Owner) {
		return fmt.Errorf("discovery.owner %q is not a valid address", cfg.Discovery.Owner)
	}
	if err := cfg.Assets.validate(); err != nil {
		return err
	}
	if _, ok := cfg.Assets[cfg.Chains.Destination]; !ok {
		return fmt.Errorf("assets has no entry for destination chain %d", cfg.Chains.Destination)
	}
	if cfg.Limits.MaxLTVBps > 10000 {
		return errors.New("limits.max_ltv_bps must be <= 10000")
	}
	if cfg.Limits.DefaultLTVBps > cfg.Limits.MaxLTVBps {
		return errors.New("limits.default_ltv_bps exceeds limits.max_ltv_bps")
	}
	if cfg.Limits.DefaultSlippageBps > cfg.Limits.MaxSlippageBps {
		return errors.New("limits.default_slippage_bps exceeds limits.max_slippage_bps")
	}
	if cfg.Discovery.LogTimeout < 0 || cfg.Discovery.PollInterval < 0 {
		return errors.New("discovery intervals must be >= 0")
	}
	if cfg.Tx.ConfirmPollInterval < 0 || cfg.Tx.ConfirmTimeout < 0 {
		return errors.New("tx intervals must be >= 0")
	}
	if cfg.Tx.GasLimitMultiplier < 1 {
		return errors.New("tx.gas_limit_multiplier must be >= 1")
	}
	if cfg.Metrics.Path != "" && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		return errors.New("metrics.path must start with /")
	}
	if cfg.Telegram.Enabled && (strings.TrimSpace(cfg.Telegram.Token) == "" || strings.TrimSpace(cfg.Telegram.ChatID) == "") {
		return errors.New("telegram.token and telegram.chat_id are required when telegram is enabled")
	}
	if cfg.Telegram.OperatorEnabled && !cfg.Telegram.Enabled {
		return errors.New("telegram.operator_enabled requires telegram.enabled")
	}
	if cfg.Timescale.Enabled && strings.TrimSpace(cfg.Timescale.DSN) == "" {
		return errors.New("timescale.dsn is required when timescale is enabled")
	}
	return nil
}

func (c *Config) ExplorerTxURL(chainID uint64, hash string) string {
	base, ok := c.Explorers[chainID]
	if !ok || base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/tx/" + hash
}
