package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"spotKeeper/internal/domain"
)

// WriteRulesToCSV writes trading rules to filename, one symbol per row.
func WriteRulesToCSV(rules []*domain.TradingRule, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"symbol", "base_asset", "quote_asset", "min_amount", "max_amount", "step_size", "min_price", "max_price", "tick_size", "min_order_value", "updated_at"})

	for _, r := range rules {
		writer.Write([]string{
			r.Symbol,
			r.BaseAsset,
			r.QuoteAsset,
			strconv.FormatFloat(r.MinAmount, 'f', -1, 64),
			strconv.FormatFloat(r.MaxAmount, 'f', -1, 64),
			strconv.FormatFloat(r.StepSize, 'f', -1, 64),
			strconv.FormatFloat(r.MinPrice, 'f', -1, 64),
			strconv.FormatFloat(r.MaxPrice, 'f', -1, 64),
			strconv.FormatFloat(r.TickSize, 'f', -1, 64),
			strconv.FormatFloat(r.MinOrderValue, 'f', -1, 64),
			r.UpdatedAt.Format(time.RFC3339),
		})
	}
	return writer.Error()
}
