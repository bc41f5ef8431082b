package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Stripe    StripeConfig
	Uber      UberConfig
	Delivery  DeliveryConfig
	Checkout  CheckoutConfig
	Webhooks  WebhooksConfig
	Notify    NotifyConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.RateLimit.validate(cfg.Redis); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env            string   `envconfig:"MISTERFOOD_APP_ENV" required:"true"`
	Port           string   `envconfig:"MISTERFOOD_APP_PORT" default:"8080"`
	PublicURL      string   `envconfig:"MISTERFOOD_APP_PUBLIC_URL"`
	LogLevel       string   `envconfig:"MISTERFOOD_LOG_LEVEL" default:"info"`
	LogWarnStack   bool     `envconfig:"MISTERFOOD_LOG_WARN_STACK" default:"false"`
	AutoMigrate    bool     `envconfig:"MISTERFOOD_AUTO_MIGRATE" default:"false"`
	AllowedOrigins []string `envconfig:"MISTERFOOD_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// BaseURL returns the public URL without a trailing slash.
func (a AppConfig) BaseURL() string {
	return strings.TrimRight(strings.TrimSpace(a.PublicURL), "/")
}

type DBConfig struct {
	DSN string `envconfig:"MISTERFOOD_DB_DSN"`

	LegacyHost     string `envconfig:"MISTERFOOD_DB_HOST"`
	LegacyPort     int    `envconfig:"MISTERFOOD_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MISTERFOOD_DB_USER"`
	LegacyPassword string `envconfig:"MISTERFOOD_DB_PASSWORD"`
	LegacyName     string `envconfig:"MISTERFOOD_DB_NAME"`
	LegacySSLMode  string `envconfig:"MISTERFOOD_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MISTERFOOD_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MISTERFOOD_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MISTERFOOD_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MISTERFOOD_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MISTERFOOD_REDIS_URL"`
	PoolSize     int           `envconfig:"MISTERFOOD_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MISTERFOOD_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MISTERFOOD_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MISTERFOOD_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"MISTERFOOD_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// Enabled reports whether a redis URL was configured.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

const (
	RateLimitStoreMemory = "memory"
	RateLimitStoreRedis  = "redis"
)

type RateLimitConfig struct {
	Limit  int           `envconfig:"MISTERFOOD_RATE_LIMIT_LIMIT" default:"60"`
	Window time.Duration `envconfig:"MISTERFOOD_RATE_LIMIT_WINDOW" default:"60s"`
	Store  string        `envconfig:"MISTERFOOD_RATE_LIMIT_STORE" default:"memory"`
}

func (r RateLimitConfig) validate(redisCfg RedisConfig) error {
	switch strings.ToLower(r.Store) {
	case RateLimitStoreMemory:
		return nil
	case RateLimitStoreRedis:
		if !redisCfg.Enabled() {
			return fmt.Errorf("%s=redis requires %s", EnvRateStore, EnvRedisURL)
		}
		return nil
	default:
		return fmt.Errorf("unsupported %s %q", EnvRateStore, r.Store)
	}
}

type StripeConfig struct {
	APIKey         string `envconfig:"MISTERFOOD_STRIPE_API_KEY"`
	WebhookSecret  string `envconfig:"MISTERFOOD_STRIPE_WEBHOOK_SECRET"`
	Env            string `envconfig:"MISTERFOOD_STRIPE_ENV" default:"test"`
	ConnectCountry string `envconfig:"MISTERFOOD_STRIPE_CONNECT_COUNTRY" default:"FR"`
	OnboardingPath string `envconfig:"MISTERFOOD_STRIPE_ONBOARDING_PATH" default:"/admin"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type UberConfig struct {
	ClientID      string        `envconfig:"MISTERFOOD_UBER_CLIENT_ID"`
	ClientSecret  string        `envconfig:"MISTERFOOD_UBER_CLIENT_SECRET"`
	APIBase       string        `envconfig:"MISTERFOOD_UBER_API_BASE" default:"https://api.uber.com"`
	AuthBase      string        `envconfig:"MISTERFOOD_UBER_AUTH_BASE" default:"https://login.uber.com"`
	StoreID       string        `envconfig:"MISTERFOOD_UBER_STORE_ID"`
	WebhookSecret string        `envconfig:"MISTERFOOD_UBER_WEBHOOK_SECRET"`
	HTTPTimeout   time.Duration `envconfig:"MISTERFOOD_UBER_HTTP_TIMEOUT" default:"15s"`
}

// HasCredentials reports whether real courier credentials are configured.
// Without them the delivery gateway runs in mock mode.
func (u UberConfig) HasCredentials() bool {
	return strings.TrimSpace(u.ClientID) != "" && strings.TrimSpace(u.ClientSecret) != ""
}

type DeliveryConfig struct {
	AllowedHours         string   `envconfig:"MISTERFOOD_DELIVERY_ALLOWED_HOURS"`
	BusinessOpeningHours string   `envconfig:"MISTERFOOD_BUSINESS_OPENING_HOURS"`
	Timezone             string   `envconfig:"MISTERFOOD_BUSINESS_TIMEZONE" default:"Europe/Paris"`
	AllowedPostalCodes   []string `envconfig:"MISTERFOOD_DELIVERY_ALLOWED_POSTAL_CODES"`
	OriginLat            *float64 `envconfig:"MISTERFOOD_DELIVERY_ORIGIN_LAT"`
	OriginLng            *float64 `envconfig:"MISTERFOOD_DELIVERY_ORIGIN_LNG"`
	MaxDistanceKm        float64  `envconfig:"MISTERFOOD_DELIVERY_MAX_DISTANCE_KM"`
}

// Schedule returns the delivery windows, falling back to the opening hours.
func (d DeliveryConfig) Schedule() string {
	if s := strings.TrimSpace(d.AllowedHours); s != "" {
		return s
	}
	return strings.TrimSpace(d.BusinessOpeningHours)
}

type CheckoutConfig struct {
	ReplayWaitAttempts int           `envconfig:"MISTERFOOD_CHECKOUT_REPLAY_WAIT_ATTEMPTS" default:"10"`
	ReplayWaitInterval time.Duration `envconfig:"MISTERFOOD_CHECKOUT_REPLAY_WAIT_INTERVAL" default:"150ms"`
}

type WebhooksConfig struct {
	SlowLatency time.Duration `envconfig:"MISTERFOOD_WEBHOOK_SLOW_LATENCY" default:"5m"`
}

type NotifyConfig struct {
	SendgridAPIKey     string `envconfig:"MISTERFOOD_SENDGRID_API_KEY"`
	EmailFrom          string `envconfig:"MISTERFOOD_NOTIFY_EMAIL_FROM" default:"no-reply@example.com"`
	TwilioAccountSID   string `envconfig:"MISTERFOOD_TWILIO_ACCOUNT_SID"`
	TwilioAuthToken    string `envconfig:"MISTERFOOD_TWILIO_AUTH_TOKEN"`
	TwilioFrom         string `envconfig:"MISTERFOOD_TWILIO_FROM"`
	TwilioWhatsAppFrom string `envconfig:"MISTERFOOD_TWILIO_WHATSAPP_FROM"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
