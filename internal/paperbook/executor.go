package paperbook

import (
	"context"
	"fmt"

	"github.com/aristath/perpautopilot/internal/collaborators"
	"github.com/aristath/perpautopilot/internal/domain"
)

// Executor adapts Book to collaborators.Executor and
// collaborators.PositionProvider, letting the heartbeat supervisor and
// policy-driven entries run against the paper book exactly as they would
// against a live venue when execution.mode is "paper".
type Executor struct {
	book *Book
}

// NewExecutor constructs an Executor over book.
func NewExecutor(book *Book) *Executor {
	return &Executor{book: book}
}

// Execute places the decision as an order against the paper book. A
// market order fills at Decision.Price as the mark (the caller resolves
// mark from a market-data client before building the decision); a limit
// order rests at Decision.Price until a later Cross.
func (e *Executor) Execute(ctx context.Context, market string, decision collaborators.Decision) (collaborators.ExecuteResult, error) {
	leverage := 0.0
	if decision.Leverage != nil {
		leverage = *decision.Leverage
	}

	var mark float64
	if decision.Price != nil {
		mark = *decision.Price
	}

	order, err := e.book.PlaceOrder(market, decision.Side, decision.OrderType, decision.Size, decision.Price, decision.ReduceOnly, leverage, mark)
	if err != nil {
		return collaborators.ExecuteResult{Executed: false, Message: err.Error()}, nil
	}
	return collaborators.ExecuteResult{Executed: true, Message: fmt.Sprintf("paper order %s placed (%s)", order.ID, order.Status)}, nil
}

// GetOpenOrders always returns empty; nothing in this module reads
// resting paper orders through the Executor surface.
func (e *Executor) GetOpenOrders(ctx context.Context) ([]collaborators.Order, error) {
	return nil, nil
}

// CancelOrder cancels a resting paper order.
func (e *Executor) CancelOrder(ctx context.Context, id string) error {
	return e.book.CancelOrder(id)
}

// GetOpenPositions returns every non-flat symbol's position. The book
// itself has no live mark, so MarkPrice/UnrealizedPnL/LiquidationDistPct
// are placeholders; the heartbeat supervisor overwrites MarkPrice from
// its own market-data poll before evaluating triggers.
func (e *Executor) GetOpenPositions(ctx context.Context) ([]collaborators.Position, error) {
	bookRow, err := e.book.GetBook()
	if err != nil {
		return nil, fmt.Errorf("failed to read paper book: %w", err)
	}
	positions, err := e.book.ListPositions()
	if err != nil {
		return nil, fmt.Errorf("failed to list paper positions: %w", err)
	}

	accountEquity := bookRow.Cash + bookRow.RealizedPnL
	out := make([]collaborators.Position, 0, len(positions))
	for _, pos := range positions {
		out = append(out, collaborators.Position{
			Symbol:             pos.Symbol,
			Side:               domain.Side(pos.Side),
			Size:               pos.Size,
			EntryPrice:         pos.Entry,
			MarkPrice:          pos.Entry,
			UnrealizedPnL:      0,
			LiquidationDistPct: 100,
			AccountEquity:      accountEquity,
		})
	}
	return out, nil
}
