package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"spotKeeper/internal/domain"
)

const ruleColumns = `symbol, base_asset, quote_asset, min_amount, max_amount, step_size,
	min_price, max_price, tick_size, min_order_value, updated_at`

// FindRule returns the rule for a symbol. Returns nil, nil if not found.
func (r *Repository) FindRule(ctx context.Context, symbol string) (*domain.TradingRule, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM trading_rules WHERE symbol = ?`, symbol)
	rule, err := scanRule(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.logger.Debug(ctx, "No trading rule stored for symbol", map[string]interface{}{"symbol": symbol})
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query rule for symbol %s: %w", symbol, err)
	}
	return rule, nil
}

// FindAllRules returns every stored rule ordered by symbol.
func (r *Repository) FindAllRules(ctx context.Context) ([]*domain.TradingRule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+ruleColumns+` FROM trading_rules ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to query trading rules: %w", err)
	}
	defer rows.Close()

	rules := make([]*domain.TradingRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trading rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trading rule rows: %w", err)
	}
	return rules, nil
}

// UpsertRule inserts or replaces a rule.
func (r *Repository) UpsertRule(ctx context.Context, rule *domain.TradingRule) error {
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = time.Now()
	}
	const query = `
	INSERT INTO trading_rules (` + ruleColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(symbol) DO UPDATE SET
		base_asset = excluded.base_asset, quote_asset = excluded.quote_asset,
		min_amount = excluded.min_amount, max_amount = excluded.max_amount, step_size = excluded.step_size,
		min_price = excluded.min_price, max_price = excluded.max_price, tick_size = excluded.tick_size,
		min_order_value = excluded.min_order_value, updated_at = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, query,
		rule.Symbol, rule.BaseAsset, rule.QuoteAsset, rule.MinAmount, rule.MaxAmount, rule.StepSize,
		rule.MinPrice, rule.MaxPrice, rule.TickSize, rule.MinOrderValue, rule.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert rule for symbol %s: %w", rule.Symbol, err)
	}
	return nil
}

// DeleteRulesExcept removes rules whose symbol is not in keep and returns how many were removed.
// An empty keep list removes nothing.
func (r *Repository) DeleteRulesExcept(ctx context.Context, keep []string) (int64, error) {
	if len(keep) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keep)), ",")
	args := make([]interface{}, len(keep))
	for i, s := range keep {
		args[i] = s
	}
	result, err := r.db.ExecContext(ctx, `DELETE FROM trading_rules WHERE symbol NOT IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete delisted rules: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for rule delete: %w", err)
	}
	return n, nil
}

// scanRule scans a row into a domain.TradingRule struct.
func scanRule(s scanner) (*domain.TradingRule, error) {
	rule := &domain.TradingRule{}
	err := s.Scan(
		&rule.Symbol, &rule.BaseAsset, &rule.QuoteAsset, &rule.MinAmount, &rule.MaxAmount, &rule.StepSize,
		&rule.MinPrice, &rule.MaxPrice, &rule.TickSize, &rule.MinOrderValue, &rule.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return rule, nil
}
