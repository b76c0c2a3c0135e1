package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

type Config struct {
	Env         string `envconfig:"APP_ENV" default:"production"`
	Port        string `envconfig:"PORT" default:"3000"`
	DBDriver    string `envconfig:"DB_DRIVER" default:"postgres"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	CORSOrigins string `envconfig:"CORS_ORIGINS" default:"*"`
	// DevPaymentSecret guards the sandbox completion endpoint (X-Dev-Secret).
	DevPaymentSecret string `envconfig:"DEV_PAYMENT_SECRET"`

	JWT      JWT      `envconfig:"JWT"`
	Payments Payments `envconfig:"PAYMENT"`
	Mpesa    Mpesa    `envconfig:"MPESA"`
	Redis    Redis    `envconfig:"REDIS"`
	Kafka    Kafka    `envconfig:"KAFKA"`
}

type JWT struct {
	Secret string        `envconfig:"SECRET"`
	TTL    time.Duration `envconfig:"TTL" default:"168h"`
}

type Payments struct {
	// AutoConfirm skips the gateway: orders are created already paid and assigned.
	AutoConfirm  bool          `envconfig:"AUTO_CONFIRM" default:"false"`
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
}

type Mpesa struct {
	APIKey              string        `envconfig:"API_KEY"`
	PublicKey           string        `envconfig:"PUBLIC_KEY"`
	ServiceProviderCode string        `envconfig:"SERVICE_PROVIDER_CODE" default:"171717"`
	BaseURL             string        `envconfig:"BASE_URL" default:"https://api.sandbox.vm.co.mz:18352"`
	Timeout             time.Duration `envconfig:"TIMEOUT" default:"30s"`
	// Simulate answers initiations locally instead of calling the provider.
	Simulate bool `envconfig:"SIMULATE" default:"false"`
}

type Redis struct {
	Addr     string `envconfig:"ADDR"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0"`
}

type Kafka struct {
	Brokers []string `envconfig:"BROKERS"`
	Topic   string   `envconfig:"TOPIC" default:"consultation-events"`
}

// Load reads .env (when present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "process env")
	}
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	return &cfg, nil
}

func (c *Config) IsDev() bool { return c.Env == "development" || c.Env == "dev" }

// Validate checks the settings the HTTP server cannot run without.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if !c.Payments.AutoConfirm && !c.Mpesa.Simulate && c.Mpesa.APIKey == "" {
		return errors.New("MPESA_API_KEY is required unless PAYMENT_AUTO_CONFIRM or MPESA_SIMULATE is set")
	}
	return nil
}

// AllowedOrigins splits CORS_ORIGINS for the cors middleware.
func (c *Config) AllowedOrigins() string {
	parts := strings.Split(c.CORSOrigins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return strings.Join(parts, ",")
}
