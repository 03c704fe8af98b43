package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotKeeper/internal/adapters/logger"
)

func TestLoadConfig_Defaults(t *testing.T) {
	for _, k := range []string{
		"BINANCE_API_KEY", "BINANCE_API_SECRET", "IS_TESTNET", "DB_PATH", "LOG_LEVEL", "LOG_FILE",
		"RECONCILE_INTERVAL_SECONDS", "STOP_LOSS_TRACK_INTERVAL_SECONDS", "STOP_LOSS_MAX_TRACKS",
		"RECONCILE_WORKERS", "STRICT_BALANCE_RETRY", "EXCHANGE_RATE_LIMIT_PER_SECOND",
		"EXCHANGE_RATE_BURST", "HTTP_TIMEOUT_SECONDS", "KAFKA_BROKERS", "KAFKA_TOPIC",
	} {
		t.Setenv(k, "")
	}

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.True(t, cfg.IsTestnet)
	assert.Equal(t, "./data/spot_keeper.db", cfg.DBPath)
	assert.Equal(t, logger.LevelInfo, cfg.LogLevel)
	assert.Equal(t, time.Minute, cfg.ReconcileInterval)
	assert.Equal(t, 300*time.Second, cfg.StopLossTrackInterval)
	assert.Equal(t, 12, cfg.StopLossMaxTracks)
	assert.Equal(t, 8, cfg.ReconcileWorkers)
	assert.True(t, cfg.StrictBalanceRetry)
	assert.Equal(t, 10.0, cfg.RequestsPerSecond)
	assert.Equal(t, 20, cfg.RequestBurst)
	assert.Equal(t, 10*time.Second, cfg.HTTPTimeout)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "trade-lifecycle", cfg.KafkaTopic)
}

func TestLoadConfig_Overrides(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "key")
	t.Setenv("BINANCE_API_SECRET", "secret")
	t.Setenv("IS_TESTNET", "false")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STOP_LOSS_MAX_TRACKS", "5")
	t.Setenv("STRICT_BALANCE_RETRY", "false")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("METRICS_ADDR", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "key", cfg.APIKey)
	assert.False(t, cfg.IsTestnet)
	assert.Equal(t, logger.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 5, cfg.StopLossMaxTracks)
	assert.False(t, cfg.StrictBalanceRetry)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoadConfig_CollectsValidationErrors(t *testing.T) {
	t.Setenv("BINANCE_API_KEY", "only-key")
	t.Setenv("BINANCE_API_SECRET", "")
	t.Setenv("RECONCILE_INTERVAL_SECONDS", "soon")
	t.Setenv("RECONCILE_WORKERS", "0")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be set together")
	assert.Contains(t, err.Error(), "invalid RECONCILE_INTERVAL_SECONDS")
	assert.Contains(t, err.Error(), "RECONCILE_WORKERS must be positive")
}
