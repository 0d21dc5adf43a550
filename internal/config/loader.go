package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads the TOML file at path on top of Defaults, loads .env if present,
// and applies environment overrides. A missing file is not an error so the
// service can run from environment alone. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	// Plain names kept for existing deployments.
	setInt(&cfg.Server.Port, "PORT")
	setStr(&cfg.Database.Path, "DATABASE_PATH")
	setStr(&cfg.Notify.TelegramToken, "TELEGRAM_BOT_TOKEN")
	setStr(&cfg.Notify.ChannelID, "CHANNEL_ID")

	setStr(&cfg.Owner, "PREDICTIONMARKET_OWNER")
	setStr(&cfg.LogLevel, "PREDICTIONMARKET_LOG_LEVEL")
	setInt(&cfg.Server.Port, "PREDICTIONMARKET_SERVER_PORT")
	setStr(&cfg.Server.StaticDir, "PREDICTIONMARKET_SERVER_STATIC_DIR")
	setStr(&cfg.Database.Path, "PREDICTIONMARKET_DATABASE_PATH")

	setInt64(&cfg.Market.FeeBps, "PREDICTIONMARKET_MARKET_FEE_BPS")
	setDuration(&cfg.Market.PriceTolerance, "PREDICTIONMARKET_MARKET_PRICE_TOLERANCE")
	setDuration(&cfg.Market.MinDuration, "PREDICTIONMARKET_MARKET_MIN_DURATION")
	setDuration(&cfg.Market.MaxDuration, "PREDICTIONMARKET_MARKET_MAX_DURATION")
	setInt64(&cfg.Market.WelcomeGrant, "PREDICTIONMARKET_MARKET_WELCOME_GRANT")

	setBool(&cfg.Worker.Enabled, "PREDICTIONMARKET_WORKER_ENABLED")
	setDuration(&cfg.Worker.Interval, "PREDICTIONMARKET_WORKER_INTERVAL")

	setStr(&cfg.Chain.RPCURL, "PREDICTIONMARKET_CHAIN_RPC_URL")

	setStr(&cfg.Redis.Addr, "PREDICTIONMARKET_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDICTIONMARKET_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDICTIONMARKET_REDIS_DB")
	setDuration(&cfg.Redis.PriceTTL, "PREDICTIONMARKET_REDIS_PRICE_TTL")

	setStr(&cfg.Notify.TelegramToken, "PREDICTIONMARKET_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.ChannelID, "PREDICTIONMARKET_NOTIFY_CHANNEL_ID")

	setDuration(&cfg.Auth.MaxAge, "PREDICTIONMARKET_AUTH_MAX_AGE")
}

// Each setter only mutates the target when the variable is set and parses.

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
