package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Payment   PaymentConfig
	Catalog   CatalogConfig
	Email     EmailConfig
	Alerts    AlertConfig
	RateLimit RateLimitConfig
	Monitor   MonitorConfig
}

// PaymentConfig configures the external payment provider.
type PaymentConfig struct {
	APIKey string
	// WebhookSecrets are tried in order; the first one that validates a
	// signature wins. Two entries let one endpoint serve two provider
	// environments at once.
	WebhookSecrets []string
	SuccessURL     string
	CancelURL      string
}

// CatalogConfig holds the env defaults for catalog.yml; see CatalogHolder.
// Prices are in minor currency units.
type CatalogConfig struct {
	// Dir overrides the catalog.yml search path.
	Dir              string
	Currency         string
	PriceCV          int64
	PriceCoverLetter int64
	PriceBundle      int64
}

type EmailConfig struct {
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

type AlertConfig struct {
	SlackWebhookURL string
	OpsEmail        string
}

type RateLimitConfig struct {
	RedisAddr         string
	RedisPassword     string
	CheckoutPerMinute float64
	CheckoutBurst     int
}

type MonitorConfig struct {
	StalePaymentAfter    time.Duration
	StalePaymentInterval time.Duration
	StalePaymentBatch    int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "orderdesk"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "orderdesk"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DB_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DB_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DB_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DB_CONN_MAX_IDLE_TIME", 60),
		Payment: PaymentConfig{
			APIKey: strings.TrimSpace(getenv("STRIPE_API_KEY", "")),
			WebhookSecrets: parseList(
				getenv("STRIPE_WEBHOOK_SECRET", ""),
				getenv("STRIPE_WEBHOOK_SECRET_SECONDARY", ""),
			),
			SuccessURL: getenv("CHECKOUT_SUCCESS_URL", "http://localhost:8080/orders/success"),
			CancelURL:  getenv("CHECKOUT_CANCEL_URL", "http://localhost:8080/orders/cancelled"),
		},
		Catalog: CatalogConfig{
			Dir:              strings.TrimSpace(getenv("CATALOG_CONFIG_DIR", "")),
			Currency:         strings.ToLower(getenv("CURRENCY", "eur")),
			PriceCV:          getenvInt64("PRICE_CV", 4900),
			PriceCoverLetter: getenvInt64("PRICE_COVER_LETTER", 2900),
			PriceBundle:      getenvInt64("PRICE_BUNDLE", 6900),
		},
		Email: EmailConfig{
			SMTPHost:     getenv("SMTP_HOST", ""),
			SMTPPort:     getenvInt("SMTP_PORT", 587),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("NOTIFY_FROM", "no-reply@orderdesk.local"),
		},
		Alerts: AlertConfig{
			SlackWebhookURL: strings.TrimSpace(getenv("SLACK_ALERT_WEBHOOK_URL", "")),
			OpsEmail:        strings.TrimSpace(getenv("OPS_ALERT_EMAIL", "")),
		},
		RateLimit: RateLimitConfig{
			RedisAddr:         strings.TrimSpace(getenv("REDIS_ADDR", "")),
			RedisPassword:     getenv("REDIS_PASSWORD", ""),
			CheckoutPerMinute: getenvFloat("CHECKOUT_RATE_PER_MINUTE", 10),
			CheckoutBurst:     getenvInt("CHECKOUT_BURST", 5),
		},
		Monitor: MonitorConfig{
			StalePaymentAfter:    getenvDuration("STALE_PAYMENT_AFTER", 2*time.Hour),
			StalePaymentInterval: getenvDuration("STALE_PAYMENT_INTERVAL", 10*time.Minute),
			StalePaymentBatch:    getenvInt("STALE_PAYMENT_BATCH", 50),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func parseList(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
