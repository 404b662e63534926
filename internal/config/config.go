// internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Payment    PaymentConfig
	Settlement SettlementConfig
	RateLimit  RateLimitConfig
	I18n       I18nConfig
}

type ServerConfig struct {
	Port         string   `envconfig:"SERVER_PORT" default:"8080"`
	Host         string   `envconfig:"SERVER_HOST" default:"localhost"`
	ReadTimeout  int      `envconfig:"SERVER_READ_TIMEOUT" default:"15"`
	WriteTimeout int      `envconfig:"SERVER_WRITE_TIMEOUT" default:"30"`
	IdleTimeout  int      `envconfig:"SERVER_IDLE_TIMEOUT" default:"60"`
	CORSOrigins  []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`
}

type DatabaseConfig struct {
	Host         string `envconfig:"DB_HOST" default:"localhost"`
	Port         string `envconfig:"DB_PORT" default:"5432"`
	User         string `envconfig:"DB_USER" default:"postgres"`
	Password     string `envconfig:"DB_PASSWORD"`
	Database     string `envconfig:"DB_NAME" default:"farm_qa"`
	SSLMode      string `envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns int    `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns int    `envconfig:"DB_MAX_IDLE_CONNS" default:"25"`
	MaxLifetime  int    `envconfig:"DB_MAX_LIFETIME" default:"300"`
	LogLevel     string `envconfig:"DB_LOG_LEVEL" default:"warn"`
}

// RedisConfig holds the shared counter store. An empty Host disables Redis and
// rate limiting falls back to per-process limiters.
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST"`
	Port     string `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

type JWTConfig struct {
	SecretKey string `envconfig:"JWT_SECRET" default:"your-secret-key-change-in-production"`
}

type PaymentConfig struct {
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`
	Currency            string `envconfig:"PAYMENT_CURRENCY" default:"usd"`
}

type SettlementConfig struct {
	// bcrypt hash of the bearer secret presented by the external cron trigger
	CronSecretHash string        `envconfig:"CRON_SECRET_HASH"`
	GracePeriod    time.Duration `envconfig:"SETTLEMENT_GRACE_PERIOD" default:"720h"`
	PoolTimeout    time.Duration `envconfig:"SETTLEMENT_POOL_TIMEOUT" default:"30s"`
	BatchSize      int           `envconfig:"SETTLEMENT_BATCH_SIZE" default:"200"`
	// Empty disables the in-process schedule; the HTTP trigger still works.
	CronSpec string        `envconfig:"SETTLEMENT_CRON_SPEC" default:"@every 1h"`
	HoldTTL  time.Duration `envconfig:"ESCROW_HOLD_TTL" default:"168h"`
}

type RateLimitConfig struct {
	Requests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"60"`
	Window   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

type I18nConfig struct {
	DefaultLocale string `envconfig:"DEFAULT_LOCALE" default:"en"`
	LocalesPath   string `envconfig:"LOCALES_PATH" default:"./internal/i18n/locales"`
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return &cfg, cfg.Validate()
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.JWT.SecretKey == defaultJWTSecret {
			return fmt.Errorf("JWT secret key must be changed in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database password is required in production")
		}
		if c.Settlement.CronSecretHash == "" {
			return fmt.Errorf("CRON_SECRET_HASH is required in production")
		}
		if c.Payment.StripeWebhookSecret == "" {
			return fmt.Errorf("STRIPE_WEBHOOK_SECRET is required in production")
		}
	}

	if c.Settlement.GracePeriod <= 0 {
		return fmt.Errorf("SETTLEMENT_GRACE_PERIOD must be positive")
	}
	if c.Settlement.PoolTimeout <= 0 {
		return fmt.Errorf("SETTLEMENT_POOL_TIMEOUT must be positive")
	}
	if c.Settlement.BatchSize <= 0 {
		return fmt.Errorf("SETTLEMENT_BATCH_SIZE must be positive")
	}
	if c.RateLimit.Requests <= 0 || c.RateLimit.Window <= 0 {
		return fmt.Errorf("invalid RATE_LIMIT_REQUESTS/RATE_LIMIT_WINDOW")
	}

	return nil
}
