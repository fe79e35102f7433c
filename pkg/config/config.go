package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "pagestack"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	Stripe       StripeConfig
	Checkout     CheckoutConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
	FeatureFlags FeatureFlagsConfig
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
	Env          string `envconfig:"PAGESTACK_APP_ENV" required:"true"`
	Port         string `envconfig:"PAGESTACK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"PAGESTACK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"PAGESTACK_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"PAGESTACK_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"PAGESTACK_DB_DSN"`
	Driver string `envconfig:"PAGESTACK_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"PAGESTACK_DB_HOST"`
	Port     int    `envconfig:"PAGESTACK_DB_PORT" default:"5432"`
	User     string `envconfig:"PAGESTACK_DB_USER"`
	Password string `envconfig:"PAGESTACK_DB_PASSWORD"`
	Name     string `envconfig:"PAGESTACK_DB_NAME"`
	SSLMode  string `envconfig:"PAGESTACK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"PAGESTACK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"PAGESTACK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"PAGESTACK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"PAGESTACK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	for _, pair := range []struct {
		env   string
		value string
	}{
		{"PAGESTACK_DB_HOST", db.Host},
		{"PAGESTACK_DB_USER", db.User},
		{"PAGESTACK_DB_NAME", db.Name},
	} {
		if pair.value == "" {
			missing = append(missing, pair.env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("either PAGESTACK_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(db.User, db.Password),
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}
	query := dsn.Query()
	query.Set("sslmode", db.SSLMode)
	dsn.RawQuery = query.Encode()
	db.DSN = dsn.String()
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"PAGESTACK_REDIS_URL" required:"true"`
	Address      string        `envconfig:"PAGESTACK_REDIS_ADDR"`
	Password     string        `envconfig:"PAGESTACK_REDIS_PASSWORD"`
	DB           int           `envconfig:"PAGESTACK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"PAGESTACK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"PAGESTACK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"PAGESTACK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"PAGESTACK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"PAGESTACK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"PAGESTACK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"PAGESTACK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"PAGESTACK_JWT_EXPIRATION_MINUTES" default:"60"`
}

type StripeConfig struct {
	APIKey        string        `envconfig:"PAGESTACK_STRIPE_API_KEY"`
	WebhookSecret string        `envconfig:"PAGESTACK_STRIPE_WEBHOOK_SECRET"`
	Env           string        `envconfig:"PAGESTACK_STRIPE_ENV" default:"test"`
	EventGuardTTL time.Duration `envconfig:"PAGESTACK_STRIPE_EVENT_GUARD_TTL" default:"72h"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type CheckoutConfig struct {
	SuccessURL string `envconfig:"PAGESTACK_CHECKOUT_SUCCESS_URL"`
	CancelURL  string `envconfig:"PAGESTACK_CHECKOUT_CANCEL_URL"`
	Currency   string `envconfig:"PAGESTACK_CHECKOUT_CURRENCY" default:"usd"`
}

type GCPConfig struct {
	ProjectID       string `envconfig:"PAGESTACK_GCP_PROJECT_ID"`
	CredentialsJSON string `envconfig:"PAGESTACK_GCP_CREDENTIALS_JSON"`
}

type PubSubConfig struct {
	OrdersTopic              string `envconfig:"PAGESTACK_PUBSUB_ORDERS_TOPIC" default:"ps-order-events"`
	NotificationTopic        string `envconfig:"PAGESTACK_PUBSUB_NOTIFICATION_TOPIC" default:"ps-notification-events"`
	NotificationSubscription string `envconfig:"PAGESTACK_PUBSUB_NOTIFICATION_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"PAGESTACK_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"PAGESTACK_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"PAGESTACK_OUTBOX_MAX_ATTEMPTS" default:"10"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"PAGESTACK_AUTO_MIGRATE" default:"false"`
}
