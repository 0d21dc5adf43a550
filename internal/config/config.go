// Package config defines the service configuration and its validation.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"predictionmarket/internal/settlement"
)

// Config is the root configuration. Fields come from a TOML file and are then
// overridden by environment variables.
type Config struct {
	Owner    string         `toml:"owner" validate:"required,eth_addr"`
	LogLevel string         `toml:"log_level" validate:"oneof=debug info warn error"`
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Market   MarketConfig   `toml:"market"`
	Worker   WorkerConfig   `toml:"worker"`
	Chain    ChainConfig    `toml:"chain"`
	Redis    RedisConfig    `toml:"redis"`
	Notify   NotifyConfig   `toml:"notify"`
	Auth     AuthConfig     `toml:"auth"`
	Feeds    []FeedConfig   `toml:"feeds" validate:"dive"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port      int    `toml:"port" validate:"min=1,max=65535"`
	StaticDir string `toml:"static_dir"`
}

// DatabaseConfig points at the SQLite file.
type DatabaseConfig struct {
	Path string `toml:"path" validate:"required"`
}

// MarketConfig holds settlement parameters applied to new markets.
type MarketConfig struct {
	FeeBps         int64    `toml:"fee_bps" validate:"min=0,max=10000"`
	PriceTolerance duration `toml:"price_tolerance"`
	MinDuration    duration `toml:"min_duration"`
	MaxDuration    duration `toml:"max_duration"`
	WelcomeGrant   int64    `toml:"welcome_grant" validate:"min=0"`
}

// WorkerConfig controls the auto-resolution loop.
type WorkerConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
}

// ChainConfig points at the JSON-RPC node used to read price feeds.
type ChainConfig struct {
	RPCURL string `toml:"rpc_url" validate:"omitempty,url"`
}

// RedisConfig holds the optional price cache connection.
type RedisConfig struct {
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db" validate:"min=0"`
	PriceTTL duration `toml:"price_ttl"`
}

// NotifyConfig holds Telegram channel broadcast settings.
type NotifyConfig struct {
	TelegramToken string `toml:"telegram_token"`
	ChannelID     string `toml:"channel_id"`
}

// AuthConfig holds wallet-signature settings.
type AuthConfig struct {
	MaxAge duration `toml:"max_age"`
}

// FeedConfig registers a price feed at startup.
type FeedConfig struct {
	Asset   string `toml:"asset" validate:"required,alphanum,uppercase"`
	Address string `toml:"address" validate:"required,eth_addr"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// ("5m", "24h").
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config with every optional field filled in.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:      8080,
			StaticDir: "./web",
		},
		Database: DatabaseConfig{
			Path: "/app/data/market.db",
		},
		Market: MarketConfig{
			FeeBps:         settlement.DefaultFeeBps,
			PriceTolerance: duration{settlement.DefaultPriceTolerance},
			MinDuration:    duration{time.Hour},
			MaxDuration:    duration{30 * 24 * time.Hour},
		},
		Worker: WorkerConfig{
			Enabled:  true,
			Interval: duration{time.Minute},
		},
		Redis: RedisConfig{
			PriceTTL: duration{30 * time.Second},
		},
		Auth: AuthConfig{
			MaxAge: duration{24 * time.Hour},
		},
	}
}

// Validate checks field tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	var errs []string
	if c.Market.PriceTolerance.Duration <= 0 {
		errs = append(errs, "market: price_tolerance must be positive")
	}
	if c.Market.MinDuration.Duration <= 0 {
		errs = append(errs, "market: min_duration must be positive")
	}
	if c.Market.MaxDuration.Duration < c.Market.MinDuration.Duration {
		errs = append(errs, "market: max_duration must not be below min_duration")
	}
	if c.Worker.Enabled && c.Worker.Interval.Duration <= 0 {
		errs = append(errs, "worker: interval must be positive")
	}
	if c.Auth.MaxAge.Duration <= 0 {
		errs = append(errs, "auth: max_age must be positive")
	}
	if len(c.Feeds) > 0 && c.Chain.RPCURL == "" {
		errs = append(errs, "chain: rpc_url is required when feeds are configured")
	}
	seen := make(map[string]bool, len(c.Feeds))
	for _, f := range c.Feeds {
		if seen[f.Asset] {
			errs = append(errs, fmt.Sprintf("feeds: duplicate asset %q", f.Asset))
		}
		seen[f.Asset] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
