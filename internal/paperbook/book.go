package paperbook

import (
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/perpautopilot/internal/clock"
	"github.com/aristath/perpautopilot/internal/domain"
	"github.com/aristath/perpautopilot/internal/store"
)

// Book is the deterministic matching engine. It computes fill economics
// and hands the result to store.PaperBookRepository.ApplyFill for atomic
// persistence; Book itself holds no mutable state.
type Book struct {
	repo  *store.PaperBookRepository
	clock clock.Clock
	cfg   Config
	log   zerolog.Logger
}

// New constructs a Book.
func New(repo *store.PaperBookRepository, c clock.Clock, cfg Config, log zerolog.Logger) *Book {
	return &Book{repo: repo, clock: c, cfg: cfg, log: log.With().Str("component", "paperbook").Logger()}
}

// Init seeds the singleton book row with the configured starting cash if
// it does not already exist.
func (b *Book) Init() error {
	return b.repo.InitBook(b.cfg.StartingCash, b.clock.Now())
}

// PlaceOrder validates reduce-only semantics, persists the order, and for
// a market order fills it immediately at mark. Limit orders rest until a
// later Cross call observes a crossing mark.
func (b *Book) PlaceOrder(symbol string, side domain.Side, orderType domain.OrderType, size float64, price *float64, reduceOnly bool, leverage, mark float64) (*store.PaperOrderRow, error) {
	if size <= 0 {
		return nil, fmt.Errorf("order size must be > 0")
	}

	pos, err := b.repo.GetPosition(symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to read position for %s: %w", symbol, err)
	}

	if reduceOnly {
		if pos == nil {
			return nil, fmt.Errorf("reduce_only order for %s refused: no open position", symbol)
		}
		if domain.Side(pos.Side) == side {
			return nil, fmt.Errorf("reduce_only order for %s refused: %s side would increase exposure", symbol, side)
		}
		if size > pos.Size {
			return nil, fmt.Errorf("reduce_only order for %s refused: size %.8f exceeds position size %.8f", symbol, size, pos.Size)
		}
	}

	now := b.clock.Now()
	order := store.PaperOrderRow{
		ID: uuid.NewString(), Symbol: symbol, Side: string(side), OrderType: string(orderType),
		Price: price, Size: size, ReduceOnly: reduceOnly, Status: store.PaperOrderOpen,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := b.repo.PlaceOrder(order); err != nil {
		return nil, fmt.Errorf("failed to place order: %w", err)
	}

	if orderType == domain.OrderTypeMarket {
		if err := b.fill(order, mark, leverage, now); err != nil {
			return nil, err
		}
	}
	return &order, nil
}

// Cross fills any resting limit order for symbol whose price the given
// mark has crossed: a buy limit fills once mark <= price, a sell limit
// fills once mark >= price.
func (b *Book) Cross(symbol string, mark float64) error {
	orders, err := b.repo.ListOpenOrders(symbol)
	if err != nil {
		return fmt.Errorf("failed to list open orders for %s: %w", symbol, err)
	}
	now := b.clock.Now()
	for _, order := range orders {
		if order.OrderType != string(domain.OrderTypeLimit) || order.Price == nil {
			continue
		}
		crossed := (domain.Side(order.Side) == domain.SideBuy && mark <= *order.Price) ||
			(domain.Side(order.Side) == domain.SideSell && mark >= *order.Price)
		if !crossed {
			continue
		}
		if err := b.fill(order, *order.Price, 0, now); err != nil {
			return err
		}
	}
	return nil
}

// CancelOrder cancels an open order; idempotent for a non-existent or
// already-resolved order (returns store.ErrNotFound, state unchanged).
func (b *Book) CancelOrder(id string) error {
	return b.repo.CancelOrder(id, b.clock.Now())
}

// GetPosition returns the symbol's position, or nil if flat.
func (b *Book) GetPosition(symbol string) (*store.PaperPositionRow, error) {
	return b.repo.GetPosition(symbol)
}

// GetBook returns the singleton book state.
func (b *Book) GetBook() (*store.PaperBookRow, error) {
	return b.repo.GetBook()
}

// ListPositions returns every non-flat symbol's position.
func (b *Book) ListPositions() ([]store.PaperPositionRow, error) {
	return b.repo.ListPositions()
}

// fill computes the matching-book fill economics for one order against
// fillPrice and persists the result atomically. Opening or adding to a
// same-side position uses average-entry; an opposite-side fill realizes PnL on
// min(existing, incoming) at the fill price, flipping to the remainder's
// side if the incoming order exceeds the existing position (unreachable
// for a reduce-only order, since PlaceOrder already bounds its size to
// the existing position).
func (b *Book) fill(order store.PaperOrderRow, fillPrice, leverage float64, now time.Time) error {
	pos, err := b.repo.GetPosition(order.Symbol)
	if err != nil {
		return fmt.Errorf("failed to read position for %s: %w", order.Symbol, err)
	}

	side := domain.Side(order.Side)
	fee := fillPrice * order.Size * b.cfg.FeeRate

	var newPos *store.PaperPositionRow
	var realizedPnL float64

	switch {
	case pos == nil:
		newPos = &store.PaperPositionRow{Symbol: order.Symbol, Side: string(side), Size: order.Size, Entry: fillPrice, Leverage: leverage, UpdatedAt: now}

	case domain.Side(pos.Side) == side:
		totalSize := pos.Size + order.Size
		entry := (pos.Entry*pos.Size + fillPrice*order.Size) / totalSize
		newPos = &store.PaperPositionRow{Symbol: order.Symbol, Side: string(side), Size: totalSize, Entry: entry, Leverage: pos.Leverage, UpdatedAt: now}

	default:
		closeSize := math.Min(pos.Size, order.Size)
		if domain.Side(pos.Side) == domain.SideBuy {
			realizedPnL = (fillPrice - pos.Entry) * closeSize
		} else {
			realizedPnL = (pos.Entry - fillPrice) * closeSize
		}

		remainingExisting := pos.Size - closeSize
		remainingIncoming := order.Size - closeSize
		switch {
		case remainingIncoming > 0:
			newPos = &store.PaperPositionRow{Symbol: order.Symbol, Side: string(side), Size: remainingIncoming, Entry: fillPrice, Leverage: pos.Leverage, UpdatedAt: now}
		case remainingExisting > 0:
			newPos = &store.PaperPositionRow{Symbol: order.Symbol, Side: pos.Side, Size: remainingExisting, Entry: pos.Entry, Leverage: pos.Leverage, UpdatedAt: now}
		default:
			newPos = nil
		}
	}

	cashDelta := realizedPnL - fee
	fillRow := store.PaperFillRow{
		OrderID: order.ID, Symbol: order.Symbol, Side: order.Side, Price: fillPrice,
		Size: order.Size, Fee: fee, RealizedPnL: realizedPnL, FilledAt: now,
	}
	if err := b.repo.ApplyFill(fillRow, newPos, cashDelta, realizedPnL, now); err != nil {
		return fmt.Errorf("failed to apply fill for order %s: %w", order.ID, err)
	}
	return nil
}
