package app

import (
	"context"
	"fmt"

	"spotKeeper/internal/domain"
	"spotKeeper/internal/ports"
)

// RuleSyncResult summarizes one rule synchronization.
type RuleSyncResult struct {
	Created   int
	Updated   int
	Unchanged int
	Removed   int64
}

// SyncRules mirrors the venue's trading rules into the rule repository:
// new symbols are added, changed rules are overwritten and delisted symbols
// are removed.
func SyncRules(ctx context.Context, logger ports.Logger, source ports.RuleSource, repo ports.RuleRepository) (*RuleSyncResult, []*domain.TradingRule, error) {
	fetched, err := source.ExchangeRules(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to fetch exchange rules: %w", err)
	}
	if len(fetched) == 0 {
		return nil, nil, fmt.Errorf("venue returned no trading rules: %w", ports.ErrExchangeUnavailable)
	}

	stored, err := repo.FindAllRules(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load stored rules: %w", err)
	}
	bySymbol := make(map[string]*domain.TradingRule, len(stored))
	for _, r := range stored {
		bySymbol[r.Symbol] = r
	}

	res := &RuleSyncResult{}
	keep := make([]string, 0, len(fetched))
	for _, rule := range fetched {
		keep = append(keep, rule.Symbol)
		existing, ok := bySymbol[rule.Symbol]
		if ok && existing.Equal(rule) {
			res.Unchanged++
			continue
		}
		if err := repo.UpsertRule(ctx, rule); err != nil {
			return nil, nil, fmt.Errorf("failed to store rule %s: %w", rule.Symbol, err)
		}
		if ok {
			res.Updated++
		} else {
			res.Created++
		}
	}

	if res.Removed, err = repo.DeleteRulesExcept(ctx, keep); err != nil {
		return nil, nil, fmt.Errorf("failed to remove delisted rules: %w", err)
	}

	logger.Info(ctx, "Trading rules synchronized", map[string]interface{}{
		"created": res.Created, "updated": res.Updated, "unchanged": res.Unchanged, "removed": res.Removed,
	})
	return res, fetched, nil
}
