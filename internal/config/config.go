package config

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config holds all bot configuration
type Config struct {
	Wallet     WalletConfig     `mapstructure:"wallet"`
	RPC        RPCConfig        `mapstructure:"rpc"`
	Trading    TradingConfig    `mapstructure:"trading"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	Price      PriceConfig      `mapstructure:"price"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Jupiter    JupiterConfig    `mapstructure:"jupiter"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Blockchain BlockchainConfig `mapstructure:"blockchain"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Notify     NotifyConfig     `mapstructure:"notify"`
}

type WalletConfig struct {
	PrivateKeyEnv string `mapstructure:"private_key_env"`
	KeyCachePath  string `mapstructure:"key_cache_path"`
	BaseMint      string `mapstructure:"base_mint"`
}

type RPCConfig struct {
	PrimaryURL        string `mapstructure:"primary_url"`
	PrimaryAPIKeyEnv  string `mapstructure:"primary_api_key_env"`
	FallbackURL       string `mapstructure:"fallback_url"`
	FallbackAPIKeyEnv string `mapstructure:"fallback_api_key_env"`
}

type TradingConfig struct {
	RealTradingEnabled bool    `mapstructure:"real_trading_enabled"`
	BuyAmountSOL       float64 `mapstructure:"buy_amount_sol"`
	SlippageBps        int     `mapstructure:"slippage_bps"`
	TakeProfitPercent  float64 `mapstructure:"take_profit_percent"`
	StopLossPercent    float64 `mapstructure:"stop_loss_percent"`
	MaxOpenPositions   int     `mapstructure:"max_open_positions"`

	// Time-based exit (auto-sell after X minutes, 0 = disabled)
	MaxHoldMinutes int `mapstructure:"max_hold_minutes"`

	// Per-mint buy cooldown
	CooldownSeconds int `mapstructure:"cooldown_seconds"`

	// Reserved for network fees on top of the buy amount
	FeeBufferSOL float64 `mapstructure:"fee_buffer_sol"`
}

type DetectorConfig struct {
	PumpfunEnabled  bool `mapstructure:"pumpfun_enabled"`
	MoonshotEnabled bool `mapstructure:"moonshot_enabled"`
	RaydiumEnabled  bool `mapstructure:"raydium_enabled"`
	NativeEnabled   bool `mapstructure:"native_enabled"`
}

type PriceConfig struct {
	CacheTTLSeconds int     `mapstructure:"cache_ttl_seconds"`
	TimeoutSeconds  int     `mapstructure:"timeout_seconds"`
	SOLUSDFallback  float64 `mapstructure:"sol_usd_fallback"`
	FloorPriceSOL   float64 `mapstructure:"floor_price_sol"`
}

type MonitorConfig struct {
	IntervalSeconds  int `mapstructure:"interval_seconds"`
	HeartbeatMinutes int `mapstructure:"heartbeat_minutes"`
}

type JupiterConfig struct {
	QuoteAPIURL    string `mapstructure:"quote_api_url"`
	SwapAPIURL     string `mapstructure:"swap_api_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`

	// Cap on the priority fee Jupiter may attach, in lamports
	MaxPriorityFeeLamports uint64 `mapstructure:"max_priority_fee_lamports"`
}

type IngestConfig struct {
	ListenHost string `mapstructure:"listen_host"`
	ListenPort int    `mapstructure:"listen_port"`
	WSURL      string `mapstructure:"ws_url"`
	BufferSize int    `mapstructure:"buffer_size"`
}

type BlockchainConfig struct {
	BlockhashRefreshMs    int `mapstructure:"blockhash_refresh_ms"`
	BlockhashTTLSeconds   int `mapstructure:"blockhash_ttl_seconds"`
	BalanceRefreshSeconds int `mapstructure:"balance_refresh_seconds"`
}

type StorageConfig struct {
	SQLitePath string `mapstructure:"sqlite_path"`
}

type NotifyConfig struct {
	TelegramTokenEnv string `mapstructure:"telegram_token_env"`
	ChatID           int64  `mapstructure:"chat_id"`
}

// Manager handles config loading and hot-reload
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	viper    *viper.Viper
	onChange func(*Config)
}

// NewManager creates a new config manager
func NewManager(configPath string) (*Manager, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Set Defaults (Hardening)
	v.SetDefault("wallet.private_key_env", "WALLET_PRIVATE_KEY")
	v.SetDefault("wallet.key_cache_path", "./data/wallet.key")
	v.SetDefault("wallet.base_mint", "So11111111111111111111111111111111111111112")
	v.SetDefault("rpc.primary_api_key_env", "RPC_API_KEY")
	v.SetDefault("rpc.fallback_api_key_env", "HELIUS_API_KEY")
	v.SetDefault("rpc.fallback_url", "https://api.mainnet-beta.solana.com")
	v.SetDefault("trading.buy_amount_sol", 0.01)
	v.SetDefault("trading.slippage_bps", 500) // 5%
	v.SetDefault("trading.take_profit_percent", 75.0)
	v.SetDefault("trading.stop_loss_percent", 40.0)
	v.SetDefault("trading.max_open_positions", 3)
	v.SetDefault("trading.cooldown_seconds", 30)
	v.SetDefault("trading.fee_buffer_sol", 0.002)
	v.SetDefault("detector.pumpfun_enabled", true)
	v.SetDefault("detector.moonshot_enabled", true)
	v.SetDefault("detector.raydium_enabled", true)
	v.SetDefault("detector.native_enabled", true)
	v.SetDefault("price.cache_ttl_seconds", 3)
	v.SetDefault("price.timeout_seconds", 5)
	v.SetDefault("price.sol_usd_fallback", 200.0)
	v.SetDefault("price.floor_price_sol", 0.000000001)
	v.SetDefault("monitor.interval_seconds", 5)
	v.SetDefault("monitor.heartbeat_minutes", 60)
	v.SetDefault("jupiter.quote_api_url", "https://quote-api.jup.ag/v6/quote")
	v.SetDefault("jupiter.swap_api_url", "https://quote-api.jup.ag/v6/swap")
	v.SetDefault("jupiter.timeout_seconds", 10)
	v.SetDefault("jupiter.max_priority_fee_lamports", 1_250_000)
	v.SetDefault("ingest.listen_host", "127.0.0.1")
	v.SetDefault("ingest.listen_port", 8180)
	v.SetDefault("ingest.buffer_size", 100)
	v.SetDefault("blockchain.blockhash_refresh_ms", 1000)
	v.SetDefault("blockchain.blockhash_ttl_seconds", 60)
	v.SetDefault("blockchain.balance_refresh_seconds", 5)
	v.SetDefault("storage.sqlite_path", "./data/bot.db")
	v.SetDefault("notify.telegram_token_env", "TELEGRAM_BOT_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Manual fallback if unmarshal leaves zero values (double check)
	if cfg.Jupiter.QuoteAPIURL == "" {
		cfg.Jupiter.QuoteAPIURL = "https://quote-api.jup.ag/v6/quote"
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = "./data/bot.db"
	}

	m := &Manager{
		config: &cfg,
		viper:  v,
	}

	// Watch for config changes
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Str("file", e.Name).Msg("config file changed, reloading")
		m.reload()
	})

	return m, nil
}

// Get returns the current config (thread-safe)
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetTrading returns trading config (most frequently accessed)
func (m *Manager) GetTrading() TradingConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Trading
}

// GetDetector returns detector platform gates
func (m *Manager) GetDetector() DetectorConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Detector
}

// SetOnChange registers a callback for config changes
func (m *Manager) SetOnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

func (m *Manager) reload() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var cfg Config
	if err := m.viper.Unmarshal(&cfg); err != nil {
		log.Error().Err(err).Msg("failed to unmarshal config on reload")
		return
	}

	m.config = &cfg
	if m.onChange != nil {
		m.onChange(&cfg)
	}
}

// GetPrivateKey loads private key from environment
func (m *Manager) GetPrivateKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.Wallet.PrivateKeyEnv)
}

// GetTelegramToken loads the Telegram bot token from environment
func (m *Manager) GetTelegramToken() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return os.Getenv(m.config.Notify.TelegramTokenEnv)
}

// GetPrimaryRPCURL returns the primary RPC URL with API key injected
func (m *Manager) GetPrimaryRPCURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return injectAPIKey(m.config.RPC.PrimaryURL, os.Getenv(m.config.RPC.PrimaryAPIKeyEnv))
}

// GetFallbackRPCURL returns the fallback RPC URL with API key injected
func (m *Manager) GetFallbackRPCURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return injectAPIKey(m.config.RPC.FallbackURL, os.Getenv(m.config.RPC.FallbackAPIKeyEnv))
}

// injectAPIKey appends the provider API key as a query parameter.
// Helius uses api-key, everyone else api_key.
func injectAPIKey(url, key string) string {
	if key == "" {
		return url
	}

	param := "api_key"
	if strings.Contains(url, "helius") {
		param = "api-key"
	}

	if strings.Contains(url, "?") {
		return url + "&" + param + "=" + key
	}
	return url + "?" + param + "=" + key
}

// GetBlockhashRefresh returns blockhash refresh interval as duration
func (m *Manager) GetBlockhashRefresh() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.Blockchain.BlockhashRefreshMs) * time.Millisecond
}

// GetBlockhashTTL returns blockhash staleness cutoff as duration
func (m *Manager) GetBlockhashTTL() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.Blockchain.BlockhashTTLSeconds) * time.Second
}

// GetBalanceRefresh returns balance refresh interval as duration
func (m *Manager) GetBalanceRefresh() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.Blockchain.BalanceRefreshSeconds) * time.Second
}

// GetMonitorInterval returns the position monitor tick interval
func (m *Manager) GetMonitorInterval() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return time.Duration(m.config.Monitor.IntervalSeconds) * time.Second
}
