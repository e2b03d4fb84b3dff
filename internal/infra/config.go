package infra

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the trading core. Loaded from YAML,
// then sensitive values are overridden from environment variables.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Ledger struct {
		Endpoints         []string `yaml:"endpoints"`
		StreamURL         string   `yaml:"stream_url"` // ws:// or wss://, optional
		NetworkPassphrase string   `yaml:"network_passphrase"`
		SigningSeed       string   `yaml:"signing_seed"` // hex ed25519 seed, env override
		RequestTimeoutSec int      `yaml:"request_timeout_sec"`
		ProbeIntervalSec  int      `yaml:"probe_interval_sec"`
		ProbeBackoffSec   int      `yaml:"probe_backoff_sec"`
		BaseFeeStroops    int64    `yaml:"base_fee_stroops"`
		OrderRatePerSec   float64  `yaml:"order_rate_per_sec"`
		OrderBurst        int      `yaml:"order_burst"`
	} `yaml:"ledger"`

	Trading struct {
		AccountID          string          `yaml:"account_id"`
		MinOrderAmount     decimal.Decimal `yaml:"min_order_amount"`
		MaxOrderAmount     decimal.Decimal `yaml:"max_order_amount"`
		MinPrice           decimal.Decimal `yaml:"min_price"`
		MaxPrice           decimal.Decimal `yaml:"max_price"`
		SupportedAssets    []string        `yaml:"supported_assets"`
		MonitorIntervalSec int             `yaml:"monitor_interval_sec"`
		// MissingOfferPolicy decides what a vanished remote offer means:
		// "filled" (default) or "expired". See OrderExecutionEngine.
		MissingOfferPolicy string `yaml:"missing_offer_policy"`
	} `yaml:"trading"`

	Breaker struct {
		FailureThreshold   int `yaml:"failure_threshold"`
		HalfOpenMaxCalls   int `yaml:"half_open_max_calls"`
		RecoveryTimeoutSec int `yaml:"recovery_timeout_sec"`
	} `yaml:"breaker"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// LoadConfig reads and parses the configuration file, applies env
// overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	overrideWithEnv(&cfg)
	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if len(c.Ledger.Endpoints) == 0 {
		return fmt.Errorf("at least one ledger endpoint is required")
	}
	for _, ep := range c.Ledger.Endpoints {
		if !hasPrefix(ep, "http://") && !hasPrefix(ep, "https://") {
			return fmt.Errorf("invalid ledger endpoint: %s", ep)
		}
	}
	if c.Ledger.StreamURL != "" && !hasPrefix(c.Ledger.StreamURL, "ws://") && !hasPrefix(c.Ledger.StreamURL, "wss://") {
		return fmt.Errorf("invalid stream URL: %s", c.Ledger.StreamURL)
	}

	if c.Trading.AccountID == "" {
		return fmt.Errorf("trading account_id is required")
	}
	if c.Trading.MinOrderAmount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("min_order_amount must be positive")
	}
	if c.Trading.MaxOrderAmount.LessThan(c.Trading.MinOrderAmount) {
		return fmt.Errorf("max_order_amount must be >= min_order_amount")
	}
	if c.Trading.MinPrice.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("min_price must be positive")
	}
	if c.Trading.MaxPrice.LessThan(c.Trading.MinPrice) {
		return fmt.Errorf("max_price must be >= min_price")
	}
	switch c.Trading.MissingOfferPolicy {
	case "filled", "expired":
	default:
		return fmt.Errorf("missing_offer_policy must be \"filled\" or \"expired\", got %q", c.Trading.MissingOfferPolicy)
	}

	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker failure_threshold must be positive")
	}
	if c.Breaker.HalfOpenMaxCalls <= 0 {
		return fmt.Errorf("breaker half_open_max_calls must be positive")
	}

	return nil
}

// RequestTimeout returns the bounded per-call timeout for ledger requests.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Ledger.RequestTimeoutSec) * time.Second
}

// ProbeInterval returns the health monitor cadence.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Ledger.ProbeIntervalSec) * time.Second
}

// ProbeBackoff returns the monitor cadence after a local probe error.
func (c *Config) ProbeBackoff() time.Duration {
	return time.Duration(c.Ledger.ProbeBackoffSec) * time.Second
}

// MonitorInterval returns the order status polling cadence.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Trading.MonitorIntervalSec) * time.Second
}

// RecoveryTimeout returns the breaker OPEN -> HALF_OPEN delay.
func (c *Config) RecoveryTimeout() time.Duration {
	return time.Duration(c.Breaker.RecoveryTimeoutSec) * time.Second
}

func applyDefaults(cfg *Config) {
	if cfg.Ledger.RequestTimeoutSec <= 0 {
		cfg.Ledger.RequestTimeoutSec = 10
	}
	if cfg.Ledger.ProbeIntervalSec <= 0 {
		cfg.Ledger.ProbeIntervalSec = 30
	}
	if cfg.Ledger.ProbeBackoffSec <= 0 {
		cfg.Ledger.ProbeBackoffSec = 60
	}
	if cfg.Ledger.BaseFeeStroops <= 0 {
		cfg.Ledger.BaseFeeStroops = 100
	}
	if cfg.Ledger.OrderRatePerSec <= 0 {
		cfg.Ledger.OrderRatePerSec = 10
	}
	if cfg.Ledger.OrderBurst <= 0 {
		cfg.Ledger.OrderBurst = 5
	}
	if cfg.Trading.MonitorIntervalSec <= 0 {
		cfg.Trading.MonitorIntervalSec = 5
	}
	if cfg.Trading.MissingOfferPolicy == "" {
		cfg.Trading.MissingOfferPolicy = "filled"
	}
	if cfg.Breaker.FailureThreshold <= 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.HalfOpenMaxCalls <= 0 {
		cfg.Breaker.HalfOpenMaxCalls = 2
	}
	if cfg.Breaker.RecoveryTimeoutSec <= 0 {
		cfg.Breaker.RecoveryTimeoutSec = 30
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[0:len(prefix)] == prefix
}

// overrideWithEnv overrides sensitive values from the environment.
func overrideWithEnv(cfg *Config) {
	if seed := os.Getenv("LEDGER_SIGNING_SEED"); seed != "" {
		cfg.Ledger.SigningSeed = seed
	}
	if account := os.Getenv("LEDGER_ACCOUNT_ID"); account != "" {
		cfg.Trading.AccountID = account
	}
}
