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
	ListenAddr  string

	BackendBaseURL string
	BackendAPIKey  string

	DBPath string

	DefaultAppUserID string

	// FinishTransactions is false in observer mode, where the host app owns
	// finishing platform transactions and storebridge only posts receipts.
	FinishTransactions bool

	ProductsRequestTimeout time.Duration
	ReceiptRetryCount      int
	ReceiptRetrySleep      time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "storebridge"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		ListenAddr:  getenv("LISTEN_ADDR", ":8084"),

		BackendBaseURL: strings.TrimRight(getenv("BACKEND_BASE_URL", "http://localhost:8080"), "/"),
		BackendAPIKey:  strings.TrimSpace(getenv("BACKEND_API_KEY", "")),

		DBPath: getenv("DATABASE_PATH", "storebridge.db"),

		DefaultAppUserID: getenv("DEFAULT_APP_USER_ID", "$anonymous"),

		FinishTransactions: getenvBool("FINISH_TRANSACTIONS", true),

		ProductsRequestTimeout: getenvDuration("PRODUCTS_REQUEST_TIMEOUT", 30*time.Second),
		ReceiptRetryCount:      getenvInt("RECEIPT_RETRY_COUNT", 3),
		ReceiptRetrySleep:      getenvDuration("RECEIPT_RETRY_SLEEP", 5*time.Second),
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}
