package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 720*time.Hour, cfg.Settlement.GracePeriod)
	assert.Equal(t, 168*time.Hour, cfg.Settlement.HoldTTL)
	assert.Equal(t, "usd", cfg.Payment.Currency)
	assert.False(t, cfg.Redis.Enabled())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "development")
	t.Setenv("SETTLEMENT_GRACE_PERIOD", "48h")
	t.Setenv("REDIS_HOST", "cache")
	t.Setenv("CORS_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 48*time.Hour, cfg.Settlement.GracePeriod)
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, "cache:6379", cfg.Redis.Addr())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
}

func TestValidateProduction(t *testing.T) {
	cfg := &Config{
		Environment: "production",
		JWT:         JWTConfig{SecretKey: defaultJWTSecret},
		Settlement:  SettlementConfig{GracePeriod: time.Hour, PoolTimeout: time.Second, BatchSize: 1},
		RateLimit:   RateLimitConfig{Requests: 1, Window: time.Second},
	}
	assert.Error(t, cfg.Validate())

	cfg.JWT.SecretKey = "s3cret"
	cfg.Database.Password = "pw"
	assert.Error(t, cfg.Validate(), "cron secret hash is required")

	cfg.Settlement.CronSecretHash = "$2a$10$hash"
	cfg.Payment.StripeWebhookSecret = "whsec_x"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveDurations(t *testing.T) {
	cfg := &Config{
		Settlement: SettlementConfig{GracePeriod: 0, PoolTimeout: time.Second, BatchSize: 1},
		RateLimit:  RateLimitConfig{Requests: 1, Window: time.Second},
	}
	assert.Error(t, cfg.Validate())
}
