// Package config loads runtime configuration from the environment and the
// optional settings file.
package config

import (
	"fmt"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Config is the environment-driven server configuration. A .env file in the
// working directory is honored when present.
type Config struct {
	ListenAddr string `env:"LISTEN_ADDR,default=:8080"`

	// Empty DatabaseURL runs everything on the in-memory store.
	DatabaseURL    string `env:"DATABASE_URL"`
	MigrateOnStart bool   `env:"MIGRATE_ON_START,default=false"`

	// Empty RedisAddr keeps carts in the primary store.
	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	CartTTL       time.Duration `env:"CART_TTL,default=168h"`

	JWTSecret string        `env:"JWT_SECRET,required"`
	TokenTTL  time.Duration `env:"TOKEN_TTL,default=24h"`

	// Optional webhook receiving order status events.
	NotifyWebhookURL string `env:"NOTIFY_WEBHOOK_URL"`

	SnapshotSchedule string `env:"REPORT_SNAPSHOT_SCHEDULE"`

	SettingsPath string `env:"SETTINGS_PATH,default=config/settings.yaml"`

	AuditLogPath string `env:"AUDIT_LOG_PATH"`

	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND,default=25"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST,default=50"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=text"`
}

// Load reads the configuration from the environment, merging in a .env file
// if one exists.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if len(cfg.JWTSecret) < 16 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 16 characters")
	}
	return cfg, nil
}
