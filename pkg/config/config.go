package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "QRMINT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App              AppConfig
	DB               DBConfig
	Redis            RedisConfig
	JWT              JWTConfig
	Billing          BillingConfig
	Crypto           CryptoConfig
	WebhookRateLimit WebhookRateLimitConfig
	FeatureFlags     FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"QRMINT_APP_ENV" required:"true"`
	Port         string `envconfig:"QRMINT_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"QRMINT_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"QRMINT_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"QRMINT_DB_DSN"`
	Driver string `envconfig:"QRMINT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"QRMINT_DB_HOST"`
	Port     int    `envconfig:"QRMINT_DB_PORT" default:"5432"`
	User     string `envconfig:"QRMINT_DB_USER"`
	Password string `envconfig:"QRMINT_DB_PASSWORD"`
	Name     string `envconfig:"QRMINT_DB_NAME"`
	SSLMode  string `envconfig:"QRMINT_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"QRMINT_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"QRMINT_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"QRMINT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"QRMINT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"QRMINT_REDIS_URL" required:"true"`
	Address      string        `envconfig:"QRMINT_REDIS_ADDR"`
	Password     string        `envconfig:"QRMINT_REDIS_PASSWORD"`
	DB           int           `envconfig:"QRMINT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"QRMINT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"QRMINT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"QRMINT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"QRMINT_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"QRMINT_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"QRMINT_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"QRMINT_JWT_ISSUER" required:"true"`
}

// BillingConfig tunes the checkout and reconciliation pipeline.
type BillingConfig struct {
	BaseCurrency       string        `envconfig:"QRMINT_BILLING_BASE_CURRENCY" default:"USD"`
	TrialDays          int           `envconfig:"QRMINT_BILLING_TRIAL_DAYS" default:"14"`
	TrialPriceFraction string        `envconfig:"QRMINT_BILLING_TRIAL_PRICE_FRACTION" default:"0.1"`
	YearlyMultiplier   int           `envconfig:"QRMINT_BILLING_YEARLY_MULTIPLIER" default:"10"`
	SessionGraceWindow time.Duration `envconfig:"QRMINT_BILLING_SESSION_GRACE_WINDOW" default:"45s"`
	GatewayTimeout     time.Duration `envconfig:"QRMINT_BILLING_GATEWAY_TIMEOUT" default:"15s"`
	SuccessURL         string        `envconfig:"QRMINT_BILLING_SUCCESS_URL"`
	CancelURL          string        `envconfig:"QRMINT_BILLING_CANCEL_URL"`
}

// CryptoConfig carries the ordered key material for credential field
// encryption. Keys are comma-separated, newest first; older keys stay
// decrypt-only until stored records are re-encrypted.
type CryptoConfig struct {
	FieldKeys string `envconfig:"QRMINT_CRYPTO_FIELD_KEYS" required:"true"`
}

func (c CryptoConfig) KeyList() []string {
	parts := strings.Split(c.FieldKeys, ",")
	keys := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return keys
}

type WebhookRateLimitConfig struct {
	Window  time.Duration `envconfig:"QRMINT_WEBHOOK_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit int           `envconfig:"QRMINT_WEBHOOK_RATE_LIMIT_IP_LIMIT" default:"120"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"QRMINT_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		"QRMINT_DB_HOST": db.Host,
		"QRMINT_DB_USER": db.User,
		"QRMINT_DB_NAME": db.Name,
	}
	for _, env := range []string{"QRMINT_DB_HOST", "QRMINT_DB_USER", "QRMINT_DB_NAME"} {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either QRMINT_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
