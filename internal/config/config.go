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

	LogLevel  string
	LogFormat string

	OTLPEndpoint      string
	OTLPProtocol      string
	OtelEnabled       bool
	OtelSamplingRatio float64

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

	RedisURL string

	Stripe StripeConfig
	SMTP   SMTPConfig
	S3     S3Config

	GracePeriodDays  int
	ReminderSchedule []int
	KeyPrefix        string
}

type StripeConfig struct {
	SecretKey         string
	WebhookSecret     string
	APITimeout        time.Duration
	MaxNetworkRetries int64
	SuccessURL        string
	CancelURL         string
}

type SMTPConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	From           string
	FromName       string
	UnsubscribeURL string
	Timeout        time.Duration
}

type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	LegalDocuments  []string
	PartnerDocument string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "coursepay"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		LogLevel:     strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:    strings.ToLower(getenv("LOG_FORMAT", "json")),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),
		OTLPProtocol: strings.ToLower(getenv("OTLP_PROTOCOL", "grpc")),
		OtelEnabled:  getenvBool("OTEL_ENABLED", false),

		OtelSamplingRatio: getenvFloat("OTEL_SAMPLING_RATIO", 0.1),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "coursepay"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RedisURL: strings.TrimSpace(getenv("REDIS_URL", "")),

		Stripe: StripeConfig{
			SecretKey:         strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret:     strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			APITimeout:        getenvDuration("STRIPE_API_TIMEOUT", 20*time.Second),
			MaxNetworkRetries: int64(getenvInt("STRIPE_MAX_NETWORK_RETRIES", 2)),
			SuccessURL:        getenv("CHECKOUT_SUCCESS_URL", "https://example.com/checkout/success?session_id={CHECKOUT_SESSION_ID}"),
			CancelURL:         getenv("CHECKOUT_CANCEL_URL", "https://example.com/checkout/cancel"),
		},
		SMTP: SMTPConfig{
			Host:           getenv("SMTP_HOST", "localhost"),
			Port:           getenvInt("SMTP_PORT", 587),
			Username:       getenv("SMTP_USERNAME", ""),
			Password:       getenv("SMTP_PASSWORD", ""),
			From:           getenv("SMTP_FROM", "no-reply@example.com"),
			FromName:       getenv("SMTP_FROM_NAME", "Kursanmeldung"),
			UnsubscribeURL: getenv("SMTP_UNSUBSCRIBE_URL", ""),
			Timeout:        getenvDuration("SMTP_TIMEOUT", 15*time.Second),
		},
		S3: S3Config{
			Endpoint:        strings.TrimSpace(getenv("S3_ENDPOINT", "")),
			Region:          getenv("S3_REGION", "eu-central-1"),
			Bucket:          getenv("S3_BUCKET", ""),
			AccessKeyID:     getenv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getenv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    getenvBool("S3_USE_PATH_STYLE", true),
			LegalDocuments: parseList(getenv("LEGAL_DOCUMENT_KEYS",
				"legal/agb.pdf,legal/widerrufsbelehrung.pdf,legal/datenschutzerklaerung.pdf")),
			PartnerDocument: getenv("PARTNER_AGREEMENT_KEY", "legal/partnervereinbarung.pdf"),
		},

		GracePeriodDays:  getenvInt("GRACE_PERIOD_DAYS", 7),
		ReminderSchedule: parseInts(getenv("REMINDER_SCHEDULE_DAYS", "7,3,1")),
		KeyPrefix:        getenv("PRODUCT_KEY_PREFIX", "HN"),
	}

	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
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
	if err != nil {
		return def
	}
	return parsed
}

func parseList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func parseInts(raw string) []int {
	out := []int{}
	for _, p := range parseList(raw) {
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			continue
		}
		out = append(out, n)
	}
	return out
}
