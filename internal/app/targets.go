package app

import (
	"fmt"
	"strconv"
	"strings"

	"spotKeeper/internal/domain"
	"spotKeeper/internal/ports"
)

// ParseTargets reads a "bid:percent,bid:percent" list. Percentages must be
// positive and sum to at most 100.
func ParseTargets(s string) ([]*domain.Target, error) {
	var (
		targets []*domain.Target
		total   float64
	)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		bidStr, pctStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("target %q: expected bid:percent: %w", part, ports.ErrInvalidRequest)
		}
		bid, err := strconv.ParseFloat(strings.TrimSpace(bidStr), 64)
		if err != nil || bid <= 0 {
			return nil, fmt.Errorf("target %q: invalid bid: %w", part, ports.ErrInvalidRequest)
		}
		pct, err := strconv.ParseFloat(strings.TrimSpace(pctStr), 64)
		if err != nil || pct <= 0 {
			return nil, fmt.Errorf("target %q: invalid percentage: %w", part, ports.ErrInvalidRequest)
		}
		total += pct
		targets = append(targets, &domain.Target{Bid: bid, Amount: pct})
	}
	if total > 100 {
		return nil, fmt.Errorf("target percentages add up to %.2f: %w", total, ports.ErrInvalidRequest)
	}
	return targets, nil
}
