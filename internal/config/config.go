// Package config defines all configuration for the gold-trading brokerage
// server. Config is loaded from a YAML file (default: configs/config.yaml)
// with sensitive fields overridable via environment variables, following the
// teacher's viper-based loader with env-var overrides for secrets.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration. Maps directly to the YAML file
// structure.
type Config struct {
	DryRun     bool             `mapstructure:"dry_run"`
	MT5        MT5Config        `mapstructure:"mt5"`
	Messaging  MessagingConfig  `mapstructure:"messaging"`
	Trading    TradingConfig    `mapstructure:"trading"`
	MarketData MarketDataConfig `mapstructure:"market_data"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Admin      AdminConfig      `mapstructure:"admin"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Server     ServerConfig     `mapstructure:"server"`
}

// MT5Config holds the upstream-venue subprocess bridge's launch parameters
// and credentials. The subprocess itself (the MT5↔JSON RPC sidecar) is an
// external collaborator; this repo owns only the client side of the pipe.
type MT5Config struct {
	BridgeCommand string `mapstructure:"bridge_command"`
	Server        string `mapstructure:"server"`
	Login         string `mapstructure:"login"`
	Password      string `mapstructure:"password"`
}

// MessagingConfig holds the conversational-channel vendor's send credentials.
// The vendor SDK itself is out of scope (spec.md §1); this repo makes one
// outbound HTTP call to its send API via messaging.Sender.
type MessagingConfig struct {
	SendURL  string `mapstructure:"send_url"`
	APIKey   string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	SenderID string `mapstructure:"sender_id"`
}

// TradingConfig tunes the margin/balance policy and trading defaults.
//
//   - BaseAmountPerVolume: AED reserved per gram of volume before margin %.
//   - MinimumBalancePct:   additional margin percentage on top of the base.
//   - AllowNegativeMetal:  defaults to true. No code path reads it: a SELL
//     that drives metalWeight negative is accepted whatever its value
//     (spec.md §9 open question).
type TradingConfig struct {
	BaseAmountPerVolume float64       `mapstructure:"base_amount_per_volume"`
	MinimumBalancePct   float64       `mapstructure:"minimum_balance_pct"`
	AllowNegativeMetal  bool          `mapstructure:"allow_negative_metal"`
	DefaultSymbol       string        `mapstructure:"default_symbol"`
	DedupWindow         time.Duration `mapstructure:"dedup_window"`
	SessionIdleTimeout  time.Duration `mapstructure:"session_idle_timeout"`
	// CountryCode is tried as a prefix/suffix variant when normalizing an
	// inbound phone number against Account.PhoneNumber (spec.md §4.9).
	CountryCode string `mapstructure:"country_code"`
}

// MarketDataConfig tunes the adaptive poller.
type MarketDataConfig struct {
	DefaultInterval time.Duration `mapstructure:"default_interval"`
	MinInterval     time.Duration `mapstructure:"min_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
	InactiveTimeout time.Duration `mapstructure:"inactive_timeout"`
	RefreshSpacing  time.Duration `mapstructure:"refresh_spacing"`
}

// DatabaseConfig holds the connection string for the storage layer.
type DatabaseConfig struct {
	DSN    string `mapstructure:"dsn"`
	Driver string `mapstructure:"driver"` // "mysql" or "sqlite"
}

// AdminConfig holds the REST admin surface's API key and the dashboard's
// allowed CORS origins. An empty AllowedOrigins falls back to same-host and
// localhost origins only (see isOriginAllowed in internal/api/handlers.go).
type AdminConfig struct {
	APIKey         string   `mapstructure:"api_key"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: MT5_SERVER, MT5_LOGIN, MT5_PASSWORD,
// MESSAGING_API_KEY, MESSAGING_API_SECRET, MESSAGING_SENDER_ID,
// DATABASE_DSN, ADMIN_API_KEY, PORT.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("trading.allow_negative_metal", true)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if s := os.Getenv("MT5_SERVER"); s != "" {
		cfg.MT5.Server = s
	}
	if s := os.Getenv("MT5_LOGIN"); s != "" {
		cfg.MT5.Login = s
	}
	if s := os.Getenv("MT5_PASSWORD"); s != "" {
		cfg.MT5.Password = s
	}
	if s := os.Getenv("MESSAGING_API_KEY"); s != "" {
		cfg.Messaging.APIKey = s
	}
	if s := os.Getenv("MESSAGING_API_SECRET"); s != "" {
		cfg.Messaging.APISecret = s
	}
	if s := os.Getenv("MESSAGING_SENDER_ID"); s != "" {
		cfg.Messaging.SenderID = s
	}
	if s := os.Getenv("DATABASE_DSN"); s != "" {
		cfg.Database.DSN = s
	}
	if s := os.Getenv("ADMIN_API_KEY"); s != "" {
		cfg.Admin.APIKey = s
	}
	if s := os.Getenv("PORT"); s != "" {
		port, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("parse PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if os.Getenv("DRY_RUN") == "true" || os.Getenv("DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.MT5.BridgeCommand == "" {
		return fmt.Errorf("mt5.bridge_command is required")
	}
	if c.MT5.Server == "" {
		return fmt.Errorf("mt5.server is required (set MT5_SERVER)")
	}
	if c.MT5.Login == "" {
		return fmt.Errorf("mt5.login is required (set MT5_LOGIN)")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required (set DATABASE_DSN)")
	}
	if c.Admin.APIKey == "" {
		return fmt.Errorf("admin.api_key is required (set ADMIN_API_KEY)")
	}
	if c.Trading.BaseAmountPerVolume <= 0 {
		return fmt.Errorf("trading.base_amount_per_volume must be > 0")
	}
	if c.Trading.MinimumBalancePct < 0 {
		return fmt.Errorf("trading.minimum_balance_pct must be >= 0")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	return nil
}
