package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"spotKeeper/internal/domain"
	"spotKeeper/internal/ports"
)

const orderColumns = `id, trade_id, symbol, venue_order_id, client_order_id, side, type, status,
	orig_qty, executed_qty, price, stop_price, trailing, last_tracked_at, track_count, created_at, updated_at`

// CreateOrder saves a new order record and returns its assigned ID.
func (r *Repository) CreateOrder(ctx context.Context, order *domain.OrderRecord) (int64, error) {
	now := time.Now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = now
	}
	const query = `
	INSERT INTO trade_orders (trade_id, symbol, venue_order_id, client_order_id, side, type, status,
	                          orig_qty, executed_qty, price, stop_price, trailing, last_tracked_at, track_count,
	                          created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query,
		order.TradeID, order.Symbol, order.VenueOrderID, order.ClientOrderID, order.Side, order.Type, order.Status,
		order.OrigQty, order.ExecutedQty, order.Price, order.StopPrice, order.Trailing, nullTime(order.LastTrackedAt), order.TrackCount,
		order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert order %d of trade %d: %w", order.VenueOrderID, order.TradeID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for order of trade %d: %w", order.TradeID, err)
	}
	order.ID = id
	r.logger.Debug(ctx, "Order created", map[string]interface{}{"orderId": id, "tradeId": order.TradeID, "slot": order.Slot()})
	return id, nil
}

// UpdateOrder overwrites an existing order record.
func (r *Repository) UpdateOrder(ctx context.Context, order *domain.OrderRecord) error {
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = time.Now()
	}
	const query = `
	UPDATE trade_orders
	SET symbol = ?, venue_order_id = ?, client_order_id = ?, side = ?, type = ?, status = ?,
	    orig_qty = ?, executed_qty = ?, price = ?, stop_price = ?, trailing = ?,
	    last_tracked_at = ?, track_count = ?, updated_at = ?
	WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query,
		order.Symbol, order.VenueOrderID, order.ClientOrderID, order.Side, order.Type, order.Status,
		order.OrigQty, order.ExecutedQty, order.Price, order.StopPrice, order.Trailing,
		nullTime(order.LastTrackedAt), order.TrackCount, order.UpdatedAt,
		order.ID)
	if err != nil {
		return fmt.Errorf("failed to update order ID %d: %w: %w", order.ID, ports.ErrUpdateFailed, err)
	}
	return expectRow(result, "order", order.ID)
}

// DeleteOrder removes an order record. Targets pointing at it are detached.
func (r *Repository) DeleteOrder(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM trade_orders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete order ID %d: %w: %w", id, ports.ErrDeleteFailed, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for delete order ID %d: %w", id, err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("order ID %d not found for delete: %w", id, ports.ErrNotFound)
	}
	r.logger.Debug(ctx, "Order deleted", map[string]interface{}{"orderId": id})
	return nil
}

// FindOrdersByTrade returns every order of a trade ordered by ID.
func (r *Repository) FindOrdersByTrade(ctx context.Context, tradeID int64) ([]*domain.OrderRecord, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM trade_orders WHERE trade_id = ? ORDER BY id`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders of trade %d: %w", tradeID, err)
	}
	defer rows.Close()

	orders := make([]*domain.OrderRecord, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order of trade %d: %w", tradeID, err)
		}
		orders = append(orders, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order rows: %w", err)
	}
	return orders, nil
}

// scanOrder scans a row into a domain.OrderRecord struct.
func scanOrder(s scanner) (*domain.OrderRecord, error) {
	o := &domain.OrderRecord{}
	var side, orderType, status string
	var lastTracked sql.NullTime
	err := s.Scan(
		&o.ID, &o.TradeID, &o.Symbol, &o.VenueOrderID, &o.ClientOrderID, &side, &orderType, &status,
		&o.OrigQty, &o.ExecutedQty, &o.Price, &o.StopPrice, &o.Trailing, &lastTracked, &o.TrackCount,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Side = domain.OrderSide(side)
	o.Type = domain.OrderType(orderType)
	o.Status = domain.OrderStatus(status)
	if lastTracked.Valid {
		lt := lastTracked.Time
		o.LastTrackedAt = &lt
	}
	return o, nil
}
