package paperbook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/perpautopilot/internal/collaborators"
	"github.com/aristath/perpautopilot/internal/domain"
)

func TestExecutor_ExecuteMarketOrderOpensPosition(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBook(t, now, Config{FeeRate: 0, StartingCash: 100_000})
	exec := NewExecutor(b)

	price := 50_000.0
	leverage := 2.0
	result, err := exec.Execute(context.Background(), "BTC", collaborators.Decision{
		Symbol: "BTC", Side: domain.SideBuy, Size: 1, OrderType: domain.OrderTypeMarket,
		Price: &price, Leverage: &leverage,
	})
	require.NoError(t, err)
	assert.True(t, result.Executed)

	positions, err := exec.GetOpenPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "BTC", positions[0].Symbol)
	assert.Equal(t, 1.0, positions[0].Size)
}

func TestExecutor_ExecuteInvalidOrderReturnsUnexecutedNotError(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBook(t, now, DefaultConfig())
	exec := NewExecutor(b)

	result, err := exec.Execute(context.Background(), "BTC", collaborators.Decision{
		Symbol: "BTC", Side: domain.SideSell, Size: 1, OrderType: domain.OrderTypeMarket, ReduceOnly: true,
	})
	require.NoError(t, err, "a refused order surfaces as Executed=false, not a Go error")
	assert.False(t, result.Executed)
	assert.NotEmpty(t, result.Message)
}

func TestExecutor_CancelOrder(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBook(t, now, DefaultConfig())
	exec := NewExecutor(b)

	price := 10_000.0
	order, err := b.PlaceOrder("BTC", domain.SideBuy, domain.OrderTypeLimit, 1, &price, false, 1, 50_000)
	require.NoError(t, err)

	require.NoError(t, exec.CancelOrder(context.Background(), order.ID))
}

func TestExecutor_GetOpenOrdersAlwaysEmpty(t *testing.T) {
	exec := NewExecutor(nil)
	orders, err := exec.GetOpenOrders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}
