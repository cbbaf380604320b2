package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// PaperBookRepository persists the deterministic paper matching book: the
// singleton book row, per-symbol positions, open orders, and append-only
// fills. Every fill mutates book+position+order in one transaction.
type PaperBookRepository struct {
	base
}

// NewPaperBookRepository constructs a PaperBookRepository.
func NewPaperBookRepository(db *sql.DB, log zerolog.Logger) *PaperBookRepository {
	return &PaperBookRepository{base: newBase(db, log, "paperbook")}
}

// InitBook seeds the singleton book row if absent; a no-op otherwise so
// restarts don't reset the simulated cash balance.
func (r *PaperBookRepository) InitBook(startingCash float64, now time.Time) error {
	_, err := r.db.Exec(`
		INSERT INTO paper_perp_book (id, starting_cash, cash, realized_pnl, updated_at)
		VALUES (1, ?, ?, 0, ?)
		ON CONFLICT(id) DO NOTHING
	`, startingCash, startingCash, formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to init paper book: %w", err)
	}
	return nil
}

// GetBook reads the singleton book row.
func (r *PaperBookRepository) GetBook() (*PaperBookRow, error) {
	var row PaperBookRow
	var updatedAt string
	err := r.db.QueryRow(`SELECT starting_cash, cash, realized_pnl, updated_at FROM paper_perp_book WHERE id = 1`).
		Scan(&row.StartingCash, &row.Cash, &row.RealizedPnL, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get paper book: %w", err)
	}
	if t, err := parseTime(updatedAt); err == nil {
		row.UpdatedAt = t
	}
	return &row, nil
}

// GetPosition reads the position for symbol, or nil if flat.
func (r *PaperBookRepository) GetPosition(symbol string) (*PaperPositionRow, error) {
	var row PaperPositionRow
	var updatedAt string
	err := r.db.QueryRow(`
		SELECT symbol, side, size, entry, leverage, updated_at
		FROM paper_perp_positions WHERE symbol = ?
	`, symbol).Scan(&row.Symbol, &row.Side, &row.Size, &row.Entry, &row.Leverage, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position %s: %w", symbol, err)
	}
	if t, err := parseTime(updatedAt); err == nil {
		row.UpdatedAt = t
	}
	return &row, nil
}

// ListPositions returns every non-flat symbol's position.
func (r *PaperBookRepository) ListPositions() ([]PaperPositionRow, error) {
	rows, err := r.db.Query(`SELECT symbol, side, size, entry, leverage, updated_at FROM paper_perp_positions`)
	if err != nil {
		return nil, fmt.Errorf("failed to list positions: %w", err)
	}
	defer rows.Close()

	var out []PaperPositionRow
	for rows.Next() {
		var row PaperPositionRow
		var updatedAt string
		if err := rows.Scan(&row.Symbol, &row.Side, &row.Size, &row.Entry, &row.Leverage, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		if t, err := parseTime(updatedAt); err == nil {
			row.UpdatedAt = t
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// PlaceOrder inserts a new open order.
func (r *PaperBookRepository) PlaceOrder(order PaperOrderRow) error {
	_, err := r.db.Exec(`
		INSERT INTO paper_perp_orders
			(id, symbol, side, order_type, price, size, reduce_only, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, order.ID, order.Symbol, order.Side, order.OrderType, order.Price, order.Size,
		order.ReduceOnly, string(order.Status), formatTime(order.CreatedAt), formatTime(order.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to place order %s: %w", order.ID, err)
	}
	return nil
}

// GetOrder reads an order by id.
func (r *PaperBookRepository) GetOrder(id string) (*PaperOrderRow, error) {
	var row PaperOrderRow
	var price sql.NullFloat64
	var createdAt, updatedAt, status string
	err := r.db.QueryRow(`
		SELECT id, symbol, side, order_type, price, size, reduce_only, status, created_at, updated_at
		FROM paper_perp_orders WHERE id = ?
	`, id).Scan(&row.ID, &row.Symbol, &row.Side, &row.OrderType, &price, &row.Size,
		&row.ReduceOnly, &status, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	if price.Valid {
		row.Price = &price.Float64
	}
	row.Status = PaperOrderStatus(status)
	if t, err := parseTime(createdAt); err == nil {
		row.CreatedAt = t
	}
	if t, err := parseTime(updatedAt); err == nil {
		row.UpdatedAt = t
	}
	return &row, nil
}

// ListOpenOrders returns every open order for symbol, oldest first, used
// to find resting limit orders a new mark price may have crossed.
func (r *PaperBookRepository) ListOpenOrders(symbol string) ([]PaperOrderRow, error) {
	rows, err := r.db.Query(`
		SELECT id, symbol, side, order_type, price, size, reduce_only, status, created_at, updated_at
		FROM paper_perp_orders WHERE symbol = ? AND status = 'open' ORDER BY created_at ASC
	`, symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to list open orders for %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []PaperOrderRow
	for rows.Next() {
		var row PaperOrderRow
		var price sql.NullFloat64
		var createdAt, updatedAt, status string
		if err := rows.Scan(&row.ID, &row.Symbol, &row.Side, &row.OrderType, &price, &row.Size,
			&row.ReduceOnly, &status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan open order: %w", err)
		}
		if price.Valid {
			row.Price = &price.Float64
		}
		row.Status = PaperOrderStatus(status)
		if t, err := parseTime(createdAt); err == nil {
			row.CreatedAt = t
		}
		if t, err := parseTime(updatedAt); err == nil {
			row.UpdatedAt = t
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CancelOrder marks an open order cancelled. Idempotent for a non-existent
// or already-resolved order: returns ErrNotFound without mutating state.
func (r *PaperBookRepository) CancelOrder(id string, now time.Time) error {
	res, err := r.db.Exec(`
		UPDATE paper_perp_orders SET status = 'cancelled', updated_at = ?
		WHERE id = ? AND status = 'open'
	`, formatTime(now), id)
	if err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read cancel rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ApplyFill atomically records a fill, updates (or creates/removes) the
// symbol's position, adjusts the book's cash and realized PnL, and marks
// the order filled. The caller (paperbook.Book) computes the fill
// economics; this method only persists them.
func (r *PaperBookRepository) ApplyFill(fill PaperFillRow, newPosition *PaperPositionRow, cashDelta, realizedPnLDelta float64, now time.Time) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin fill tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO paper_perp_fills (order_id, symbol, side, price, size, fee, realized_pnl, filled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, fill.OrderID, fill.Symbol, fill.Side, fill.Price, fill.Size, fill.Fee, fill.RealizedPnL, formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to insert fill: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE paper_perp_orders SET status = 'filled', updated_at = ? WHERE id = ?
	`, formatTime(now), fill.OrderID)
	if err != nil {
		return fmt.Errorf("failed to mark order %s filled: %w", fill.OrderID, err)
	}

	if newPosition == nil {
		if _, err := tx.Exec(`DELETE FROM paper_perp_positions WHERE symbol = ?`, fill.Symbol); err != nil {
			return fmt.Errorf("failed to clear position %s: %w", fill.Symbol, err)
		}
	} else {
		_, err = tx.Exec(`
			INSERT INTO paper_perp_positions (symbol, side, size, entry, leverage, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(symbol) DO UPDATE SET
				side = excluded.side, size = excluded.size, entry = excluded.entry,
				leverage = excluded.leverage, updated_at = excluded.updated_at
		`, newPosition.Symbol, newPosition.Side, newPosition.Size, newPosition.Entry,
			newPosition.Leverage, formatTime(now))
		if err != nil {
			return fmt.Errorf("failed to upsert position %s: %w", fill.Symbol, err)
		}
	}

	_, err = tx.Exec(`
		UPDATE paper_perp_book SET cash = cash + ?, realized_pnl = realized_pnl + ?, updated_at = ? WHERE id = 1
	`, cashDelta, realizedPnLDelta, formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to update book: %w", err)
	}

	return tx.Commit()
}
