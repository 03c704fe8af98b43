package logger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"spotKeeper/internal/ports"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
	}{
		{"debug", LevelDebug},
		{"INFO", LevelInfo},
		{"warning", LevelWarn},
		{"Warn", LevelWarn},
		{"error", LevelError},
		{"verbose", LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestZapLogger_LevelsAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := newWithCore(core, LevelInfo)
	ctx := context.Background()

	l.Debug(ctx, "hidden")
	l.Info(ctx, "Order placed", map[string]interface{}{"tradeId": int64(4), "symbol": "ETHUSDT"})
	l.Warn(ctx, "Retrying")
	l.Error(ctx, errors.New("boom"), "Cancel failed", nil)

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)

	assert.Equal(t, "Order placed", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(4), fields["tradeId"])
	assert.Equal(t, "ETHUSDT", fields["symbol"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "boom", entries[2].ContextMap()["error"])
}

func TestZapLogger_ScopedFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	base := newWithCore(core, LevelDebug)
	scoped := ports.WithFields(base, map[string]interface{}{"tradeId": int64(9)})
	nested := ports.WithFields(scoped, map[string]interface{}{"op": "reconcile"})

	nested.Debug(context.Background(), "Polling", map[string]interface{}{"orderId": int64(3)})

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(9), fields["tradeId"])
	assert.Equal(t, "reconcile", fields["op"])
	assert.Equal(t, int64(3), fields["orderId"])
}

func TestNew_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keeper.log")
	l := New(Options{Level: LevelInfo, File: path})

	l.Info(context.Background(), "hello", map[string]interface{}{"k": "v"})
	_ = l.Sync()

	assert.FileExists(t, path)
}
