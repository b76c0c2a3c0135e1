package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndNesting(t *testing.T) {
	t.Setenv("APP_ENV", " Production ")
	t.Setenv("DATABASE_URL", "postgres://x")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("PAYMENT_AUTO_CONFIRM", "true")
	t.Setenv("MPESA_TIMEOUT", "10s")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Env)
	assert.False(t, cfg.IsDev())
	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, 168*time.Hour, cfg.JWT.TTL)
	assert.True(t, cfg.Payments.AutoConfirm)
	assert.Equal(t, "171717", cfg.Mpesa.ServiceProviderCode)
	assert.Equal(t, 10*time.Second, cfg.Mpesa.Timeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.NoError(t, cfg.Validate())
}

func TestValidate_RequiresGatewayCredentials(t *testing.T) {
	cfg := &Config{DatabaseURL: "x", JWT: JWT{Secret: "s"}}
	assert.ErrorContains(t, cfg.Validate(), "MPESA_API_KEY")

	cfg.Mpesa.Simulate = true
	assert.NoError(t, cfg.Validate())

	cfg.JWT.Secret = ""
	assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET")
}

func TestLoad_DefaultsToProduction(t *testing.T) {
	t.Setenv("APP_ENV", "")
	require.NoError(t, os.Unsetenv("APP_ENV"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.Env)
	assert.False(t, cfg.IsDev())
}
