package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"spotKeeper/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Binance API. Per-user keys live in the database; these are the
	// fallback pair used by the command line tools.
	APIKey    string
	SecretKey string
	IsTestnet bool

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel
	LogFile  string // Empty logs to stderr only

	// Reconciliation
	ReconcileInterval     time.Duration
	StopLossTrackInterval time.Duration
	StopLossMaxTracks     int
	ReconcileWorkers      int
	StrictBalanceRetry    bool // Only insufficient-balance rejections trigger the clamp and retry

	// Exchange connection
	RequestsPerSecond float64
	RequestBurst      int
	HTTPTimeout       time.Duration

	// Events
	KafkaBrokers []string
	KafkaTopic   string

	// Metrics
	MetricsAddr string // Empty disables the /metrics endpoint
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	// Binance API
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety
	if (cfg.APIKey == "") != (cfg.SecretKey == "") {
		errs = append(errs, "BINANCE_API_KEY and BINANCE_API_SECRET must be set together")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/spot_keeper.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = logger.ParseLevel(getEnv("LOG_LEVEL", "INFO"))
	cfg.LogFile = getEnv("LOG_FILE", "")

	// Reconciliation
	reconcileSeconds, err := getEnvAsIntRequired("RECONCILE_INTERVAL_SECONDS", 60)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RECONCILE_INTERVAL_SECONDS: %v", err))
	} else if reconcileSeconds <= 0 {
		errs = append(errs, "RECONCILE_INTERVAL_SECONDS must be positive")
	}
	cfg.ReconcileInterval = time.Duration(reconcileSeconds) * time.Second

	trackSeconds, err := getEnvAsIntRequired("STOP_LOSS_TRACK_INTERVAL_SECONDS", 300)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS_TRACK_INTERVAL_SECONDS: %v", err))
	} else if trackSeconds <= 0 {
		errs = append(errs, "STOP_LOSS_TRACK_INTERVAL_SECONDS must be positive")
	}
	cfg.StopLossTrackInterval = time.Duration(trackSeconds) * time.Second

	cfg.StopLossMaxTracks, err = getEnvAsIntRequired("STOP_LOSS_MAX_TRACKS", 12)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STOP_LOSS_MAX_TRACKS: %v", err))
	} else if cfg.StopLossMaxTracks <= 0 {
		errs = append(errs, "STOP_LOSS_MAX_TRACKS must be positive")
	}

	cfg.ReconcileWorkers, err = getEnvAsIntRequired("RECONCILE_WORKERS", 8)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid RECONCILE_WORKERS: %v", err))
	} else if cfg.ReconcileWorkers <= 0 {
		errs = append(errs, "RECONCILE_WORKERS must be positive")
	}

	cfg.StrictBalanceRetry = getEnvAsBool("STRICT_BALANCE_RETRY", true)

	// Exchange connection
	cfg.RequestsPerSecond, err = getEnvAsFloatRequired("EXCHANGE_RATE_LIMIT_PER_SECOND", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid EXCHANGE_RATE_LIMIT_PER_SECOND: %v", err))
	} else if cfg.RequestsPerSecond <= 0 {
		errs = append(errs, "EXCHANGE_RATE_LIMIT_PER_SECOND must be positive")
	}

	cfg.RequestBurst, err = getEnvAsIntRequired("EXCHANGE_RATE_BURST", 20)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid EXCHANGE_RATE_BURST: %v", err))
	} else if cfg.RequestBurst <= 0 {
		errs = append(errs, "EXCHANGE_RATE_BURST must be positive")
	}

	timeoutSeconds := getEnvAsInt("HTTP_TIMEOUT_SECONDS", 10)
	if timeoutSeconds <= 0 {
		errs = append(errs, "HTTP_TIMEOUT_SECONDS must be positive")
	}
	cfg.HTTPTimeout = time.Duration(timeoutSeconds) * time.Second

	// Events
	cfg.KafkaBrokers = splitList(getEnv("KAFKA_BROKERS", ""))
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", "trade-lifecycle")
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		errs = append(errs, "KAFKA_TOPIC must be set when KAFKA_BROKERS is set")
	}

	// Metrics
	cfg.MetricsAddr = getEnvAllowEmpty("METRICS_ADDR", ":9102")

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvAllowEmpty returns the default only when the key is unset, so an
// explicitly empty value can switch a feature off.
func getEnvAllowEmpty(key, defaultValue string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
