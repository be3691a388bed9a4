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
	LogLevel    string

	HTTPAddr string

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

	RedisAddr string

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	AlertWebhookURL string

	DocumentFormat string

	PaymentTermsDays  int
	PipelineWorkers   int
	MaxAttempts       int
	StageTimeout      time.Duration
	RetryBackoff      time.Duration
	RecoveryInterval  time.Duration
	RecoveryThreshold time.Duration

	SeedDemoMerchant bool
}

const (
	DocumentFormatHTML = "html"
	DocumentFormatPDF  = "pdf"
)

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:     getenv("APP_SERVICE", "invoiceflow"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),

		HTTPAddr: getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "invoiceflow"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 25),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),

		RedisAddr: strings.TrimSpace(getenv("REDIS_ADDR", "")),

		SMTPHost:     getenv("SMTP_HOST", "localhost"),
		SMTPPort:     getenvInt("SMTP_PORT", 587),
		SMTPUsername: getenv("SMTP_USERNAME", ""),
		SMTPPassword: getenv("SMTP_PASSWORD", ""),
		SMTPFrom:     getenv("SMTP_FROM", "billing@invoiceflow.local"),

		AlertWebhookURL: strings.TrimSpace(getenv("ALERT_WEBHOOK_URL", "")),

		DocumentFormat: normalizeDocumentFormat(getenv("DOCUMENT_FORMAT", DocumentFormatHTML)),

		PaymentTermsDays:  getenvInt("PAYMENT_TERMS_DAYS", 0),
		PipelineWorkers:   getenvInt("PIPELINE_WORKERS", 4),
		MaxAttempts:       getenvInt("PIPELINE_MAX_ATTEMPTS", 3),
		StageTimeout:      getenvDuration("PIPELINE_STAGE_TIMEOUT", 15*time.Second),
		RetryBackoff:      getenvDuration("PIPELINE_RETRY_BACKOFF", 500*time.Millisecond),
		RecoveryInterval:  getenvDuration("PIPELINE_RECOVERY_INTERVAL", time.Minute),
		RecoveryThreshold: getenvDuration("PIPELINE_RECOVERY_THRESHOLD", 5*time.Minute),

		SeedDemoMerchant: getenvBool("SEED_DEMO_MERCHANT", false),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func normalizeDocumentFormat(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case DocumentFormatPDF:
		return DocumentFormatPDF
	default:
		return DocumentFormatHTML
	}
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
