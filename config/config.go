// config/config.go
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// RiskConfig holds the immutable risk limits enforced by the risk ledger.
// All percentage fields are positive numbers interpreted as "percent".
type RiskConfig struct {
	MaxPositionSize      float64 `yaml:"max_position_size"`
	MaxLeverage          int     `yaml:"max_leverage"`
	DefaultStopLossPct   float64 `yaml:"default_stop_loss_pct"`
	DefaultTakeProfitPct float64 `yaml:"default_take_profit_pct"`
	MaxDailyDrawdownPct  float64 `yaml:"max_daily_drawdown_pct"`
	MaxTotalRiskPct      float64 `yaml:"max_total_risk_pct"`
}

// LogConfig holds the configuration for logging.
type LogConfig struct {
	LogLevel   string `yaml:"log_level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// NormalConfig holds all general, non-strategy-specific configuration.
type NormalConfig struct {
	HTTPTimeoutSeconds       int    `yaml:"http_timeout_seconds"`
	RecvWindowSeconds        int    `yaml:"recv_window_seconds"`
	MonitorIntervalSeconds   int    `yaml:"monitor_interval_seconds"`
	HeartbeatIntervalMinutes int    `yaml:"heartbeat_interval_minutes"`
	TimeSyncIntervalMinutes  int    `yaml:"time_sync_interval_minutes"`
	PricePrecision           int    `yaml:"price_precision"`
	LogDirectory             string `yaml:"log_directory"`
	StateDirectory           string `yaml:"state_directory"`
}

// SwapConfig holds settings for the DEX aggregator client.
type SwapConfig struct {
	StableToken  string `yaml:"stable_token"`
	SlippageBps  int    `yaml:"slippage_bps"`
	RetryCount   int    `yaml:"retry_count"`
	QuoteTimeout int    `yaml:"quote_timeout_seconds"`
}

// SignalConfig holds settings for chat-signal ingestion.
type SignalConfig struct {
	DefaultQuantity float64 `yaml:"default_quantity"`
	QuoteAsset      string  `yaml:"quote_asset"`
}

// ServerConfig holds settings for the status/webhook HTTP server.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// Config is the top-level configuration structure.
type Config struct {
	UseSimulation bool          `yaml:"use_simulation"`
	Risk          *RiskConfig   `yaml:"risk"`
	Normal        *NormalConfig `yaml:"normal_config"`
	Logs          *LogConfig    `yaml:"logs"`
	Swap          *SwapConfig   `yaml:"swap"`
	Signal        *SignalConfig `yaml:"signal"`
	Server        *ServerConfig `yaml:"server"`
}

// NewConfig creates a new Config struct with allocated nested blocks but no
// magic numbers. All critical parameters MUST be provided in the yaml file.
func NewConfig() *Config {
	return &Config{
		UseSimulation: false,
		Risk:          &RiskConfig{},
		Normal:        &NormalConfig{},
		Logs:          &LogConfig{},
		Swap:          &SwapConfig{},
		Signal:        &SignalConfig{},
		Server:        &ServerConfig{},
	}
}

// LoadConfig loads configuration from a given path and validates it.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("Error: Config file not found at %s. Program cannot run without a config file", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks the logical consistency and completeness of the entire configuration.
func (c *Config) Validate() error {
	if c.Risk == nil {
		return fmt.Errorf("Critical config missing: 'risk' configuration block must be provided in config.yaml")
	}
	if c.Risk.MaxPositionSize <= 0 {
		return fmt.Errorf("Critical config missing: 'risk.max_position_size' must be explicitly specified in config.yaml and be positive")
	}
	if c.Risk.MaxLeverage <= 0 {
		return fmt.Errorf("Critical config missing: 'risk.max_leverage' must be explicitly specified in config.yaml and be positive")
	}
	if c.Risk.DefaultStopLossPct <= 0 || c.Risk.DefaultStopLossPct >= 100 {
		return fmt.Errorf("Config error: risk.default_stop_loss_pct must be between 0 and 100, got %.2f", c.Risk.DefaultStopLossPct)
	}
	if c.Risk.DefaultTakeProfitPct <= 0 {
		return fmt.Errorf("Critical config missing: 'risk.default_take_profit_pct' must be explicitly specified in config.yaml and be positive")
	}
	if c.Risk.MaxDailyDrawdownPct <= 0 {
		return fmt.Errorf("Critical config missing: 'risk.max_daily_drawdown_pct' must be explicitly specified in config.yaml and be positive")
	}
	if c.Risk.MaxTotalRiskPct <= 0 {
		return fmt.Errorf("Critical config missing: 'risk.max_total_risk_pct' must be explicitly specified in config.yaml and be positive")
	}

	if c.Normal == nil {
		return fmt.Errorf("Critical config missing: 'normal_config' configuration block must be provided in config.yaml")
	}
	if c.Normal.HTTPTimeoutSeconds <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.http_timeout_seconds' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.RecvWindowSeconds <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.recv_window_seconds' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.MonitorIntervalSeconds <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.monitor_interval_seconds' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.HeartbeatIntervalMinutes <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.heartbeat_interval_minutes' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.TimeSyncIntervalMinutes <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.time_sync_interval_minutes' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.PricePrecision <= 0 {
		return fmt.Errorf("Critical config missing: 'normal_config.price_precision' must be explicitly specified in config.yaml and be positive")
	}
	if c.Normal.LogDirectory == "" {
		return fmt.Errorf("Critical config missing: 'normal_config.log_directory' must be explicitly specified in config.yaml (e.g., 'logs')")
	}
	if c.Normal.StateDirectory == "" {
		return fmt.Errorf("Critical config missing: 'normal_config.state_directory' must be explicitly specified in config.yaml (e.g., 'state')")
	}

	if c.Logs == nil {
		return fmt.Errorf("Critical config missing: 'logs' configuration block must be provided in config.yaml")
	}
	if c.Logs.LogLevel == "" {
		return fmt.Errorf("Critical config missing: 'logs.log_level' must be explicitly specified in config.yaml (e.g., 'info', 'debug', 'warn', 'error')")
	}
	if c.Logs.MaxSizeMB <= 0 {
		return fmt.Errorf("Critical config missing: 'logs.max_size_mb' must be explicitly specified in config.yaml and be positive")
	}
	if c.Logs.MaxBackups <= 0 {
		return fmt.Errorf("Critical config missing: 'logs.max_backups' must be explicitly specified in config.yaml and be positive")
	}
	if c.Logs.MaxAgeDays <= 0 {
		return fmt.Errorf("Critical config missing: 'logs.max_age_days' must be explicitly specified in config.yaml and be positive")
	}

	if c.Swap == nil {
		return fmt.Errorf("Critical config missing: 'swap' configuration block must be provided in config.yaml")
	}
	if c.Swap.StableToken == "" {
		return fmt.Errorf("Critical config missing: 'swap.stable_token' must be explicitly specified in config.yaml (e.g., 'USDC')")
	}
	if c.Swap.SlippageBps <= 0 {
		return fmt.Errorf("Critical config missing: 'swap.slippage_bps' must be explicitly specified in config.yaml and be positive")
	}
	if c.Swap.RetryCount < 0 {
		return fmt.Errorf("Config error: swap.retry_count cannot be negative")
	}
	if c.Swap.QuoteTimeout <= 0 {
		return fmt.Errorf("Critical config missing: 'swap.quote_timeout_seconds' must be explicitly specified in config.yaml and be positive")
	}

	if c.Signal == nil {
		return fmt.Errorf("Critical config missing: 'signal' configuration block must be provided in config.yaml")
	}
	if c.Signal.DefaultQuantity <= 0 {
		return fmt.Errorf("Critical config missing: 'signal.default_quantity' must be explicitly specified in config.yaml and be positive")
	}
	if c.Signal.QuoteAsset == "" {
		return fmt.Errorf("Critical config missing: 'signal.quote_asset' must be explicitly specified in config.yaml (e.g., 'USDT')")
	}

	if c.Server == nil || c.Server.ListenAddr == "" {
		return fmt.Errorf("Critical config missing: 'server.listen_addr' must be explicitly specified in config.yaml (e.g., ':8080')")
	}

	return nil
}

// EnvConfig carries secrets and endpoints loaded from the environment.
type EnvConfig struct {
	ApiKey      string
	ApiSecret   string
	BaseURL     string
	SwapBaseURL string
}

func LoadEnvConfig() *EnvConfig {
	return &EnvConfig{
		ApiKey:      os.Getenv("MEXC_API_KEY"),
		ApiSecret:   os.Getenv("MEXC_API_SECRET"),
		BaseURL:     os.Getenv("MEXC_BASE_URL"),
		SwapBaseURL: os.Getenv("SWAP_QUOTE_BASE_URL"),
	}
}
