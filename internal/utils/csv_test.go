package utils

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spotKeeper/internal/domain"
)

func TestWriteRulesToCSV(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "rules.csv")
	updated := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rules := []*domain.TradingRule{
		{Symbol: "ETHUSDT", BaseAsset: "ETH", QuoteAsset: "USDT", MinAmount: 0.0001, MaxAmount: 9000, StepSize: 0.0001,
			MinPrice: 0.01, MaxPrice: 1000000, TickSize: 0.01, MinOrderValue: 5, UpdatedAt: updated},
	}

	require.NoError(t, WriteRulesToCSV(rules, filename))

	f, err := os.Open(filename)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "symbol", records[0][0])
	assert.Equal(t, []string{"ETHUSDT", "ETH", "USDT", "0.0001", "9000", "0.0001", "0.01", "1000000", "0.01", "5", "2024-05-01T12:00:00Z"}, records[1])
}

func TestWriteRulesToCSV_BadPath(t *testing.T) {
	err := WriteRulesToCSV(nil, filepath.Join(t.TempDir(), "missing", "rules.csv"))
	assert.Error(t, err)
}
