package ports

import (
	"context"

	"spotKeeper/internal/domain"
)

// TradeRepository defines the interface for storing and retrieving trades.
type TradeRepository interface {
	// CreateTrade saves a new trade with its targets and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindTradeByID loads a trade with its rule, targets (ascending bid) and orders.
	// Returns nil, nil if not found.
	FindTradeByID(ctx context.Context, id int64) (*domain.Trade, error)
	// FindActiveTrades loads every active trade.
	FindActiveTrades(ctx context.Context) ([]*domain.Trade, error)
	// UpdateTrade persists the trade's own columns (active flag, finish time).
	UpdateTrade(ctx context.Context, trade *domain.Trade) error
}

// TargetRepository persists target state.
type TargetRepository interface {
	// UpdateTarget persists reached/sell price/order association of one target.
	UpdateTarget(ctx context.Context, target *domain.Target) error
	// DetachOrder clears every target association pointing at the given order.
	DetachOrder(ctx context.Context, orderID int64) error
}

// OrderRepository is the order ledger. Each call updates a single record atomically.
type OrderRepository interface {
	// CreateOrder saves a new order record and returns its assigned ID.
	CreateOrder(ctx context.Context, order *domain.OrderRecord) (int64, error)
	// UpdateOrder overwrites an existing order record.
	UpdateOrder(ctx context.Context, order *domain.OrderRecord) error
	// DeleteOrder removes an order record.
	DeleteOrder(ctx context.Context, id int64) error
	// FindOrdersByTrade returns every order of a trade ordered by ID.
	FindOrdersByTrade(ctx context.Context, tradeID int64) ([]*domain.OrderRecord, error)
}

// RuleRepository stores venue trading rules.
type RuleRepository interface {
	// FindRule returns the rule for a symbol. Returns nil, nil if not found.
	FindRule(ctx context.Context, symbol string) (*domain.TradingRule, error)
	// FindAllRules returns every stored rule.
	FindAllRules(ctx context.Context) ([]*domain.TradingRule, error)
	// UpsertRule inserts or replaces a rule.
	UpsertRule(ctx context.Context, rule *domain.TradingRule) error
	// DeleteRulesExcept removes rules whose symbol is not in keep and returns how many were removed.
	DeleteRulesExcept(ctx context.Context, keep []string) (int64, error)
}

// CredentialRepository stores per-user exchange credentials.
type CredentialRepository interface {
	// FindCredentials returns a user's key pair. Returns nil, nil if not found.
	FindCredentials(ctx context.Context, userID int64) (*domain.Credentials, error)
	// SaveCredentials inserts or replaces a user's key pair.
	SaveCredentials(ctx context.Context, creds *domain.Credentials) error
}
