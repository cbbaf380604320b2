package paperbook

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/perpautopilot/internal/clock"
	"github.com/aristath/perpautopilot/internal/domain"
	"github.com/aristath/perpautopilot/internal/storetest"
	"github.com/aristath/perpautopilot/internal/store"
)

func newTestBook(t *testing.T, now time.Time, cfg Config) *Book {
	t.Helper()
	db, cleanup := storetest.New(t)
	t.Cleanup(cleanup)

	repo := store.NewPaperBookRepository(db.Conn(), zerolog.Nop())
	b := New(repo, clock.NewFixed(now), cfg, zerolog.Nop())
	require.NoError(t, b.Init())
	return b
}

func TestPlaceOrder_MarketOrderFillsImmediately(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBook(t, now, Config{FeeRate: 0, StartingCash: 10_000})

	order, err := b.PlaceOrder("BTC", domain.SideBuy, domain.OrderTypeMarket, 1, nil, false, 1, 50_000)
	require.NoError(t, err)

	got, err := b.repo.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PaperOrderFilled, got.Status)

	pos, err := b.GetPosition("BTC")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 1.0, pos.Size)
	assert.Equal(t, 50_000.0, pos.Entry)
}

func TestPlaceOrder_LimitOrderRestsUntilCross(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBook(t, now, Config{FeeRate: 0, StartingCash: 10_000})

	price := 45_000.0
	order, err := b.PlaceOrder("BTC", domain.SideBuy, domain.OrderTypeLimit, 1, &price, false, 1, 50_000)
	require.NoError(t, err)

	got, err := b.repo.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PaperOrderOpen, got.Status, "a limit order away from mark must rest, not fill")

	require.NoError(t, b.Cross("BTC", 44_000))

	got, err = b.repo.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PaperOrderFilled, got.Status, "mark <= buy limit price must fill it")
}

func TestCross_SellLimitFillsWhenMarkRisesAbovePrice(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBook(t, now, Config{FeeRate: 0, StartingCash: 10_000})

	_, err := b.PlaceOrder("BTC", domain.SideBuy, domain.OrderTypeMarket, 1, nil, false, 1, 50_000)
	require.NoError(t, err)

	price := 55_000.0
	order, err := b.PlaceOrder("BTC", domain.SideSell, domain.OrderTypeLimit, 1, &price, true, 1, 50_000)
	require.NoError(t, err)

	require.NoError(t, b.Cross("BTC", 54_000))
	got, err := b.repo.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PaperOrderOpen, got.Status, "mark below sell limit must not fill it yet")

	require.NoError(t, b.Cross("BTC", 56_000))
	got, err = b.repo.GetOrder(order.ID)
	require.NoError(t, err)
	assert.Equal(t, store.PaperOrderFilled, got.Status)
}

func TestPlaceOrder_SameSideAddsAverageEntry(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBook(t, now, Config{FeeRate: 0, StartingCash: 100_000})

	_, err := b.PlaceOrder("BTC", domain.SideBuy, domain.OrderTypeMarket, 1, nil, false, 1, 40_000)
	require.NoError(t, err)
	_, err = b.PlaceOrder("BTC", domain.SideBuy, domain.OrderTypeMarket, 1, nil, false, 1, 60_000)
	require.NoError(t, err)

	pos, err := b.GetPosition("BTC")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 2.0, pos.Size)
	assert.InDelta(t, 50_000, pos.Entry, 1e-9)
}

func TestPlaceOrder_OppositeSideRealizesPnLOnOverlap(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBook(t, now, Config{FeeRate: 0, StartingCash: 100_000})

	_, err := b.PlaceOrder("BTC", domain.SideBuy, domain.OrderTypeMarket, 2, nil, false, 1, 50_000)
	require.NoError(t, err)

	_, err = b.PlaceOrder("BTC", domain.SideSell, domain.OrderTypeMarket, 1, nil, true, 1, 55_000)
	require.NoError(t, err)

	pos, err := b.GetPosition("BTC")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 1.0, pos.Size, "half the long position remains open")
	assert.Equal(t, 50_000.0, pos.Entry, "the remaining position keeps its original entry")

	book, err := b.GetBook()
	require.NoError(t, err)
	assert.InDelta(t, 100_000+5_000, book.Cash, 1e-6, "realized pnl of (55000-50000)*1 credited to cash")
}

func TestPlaceOrder_OppositeSideOversizedFillFlipsSide(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBook(t, now, Config{FeeRate: 0, StartingCash: 100_000})

	_, err := b.PlaceOrder("BTC", domain.SideBuy, domain.OrderTypeMarket, 1, nil, false, 1, 50_000)
	require.NoError(t, err)

	_, err = b.PlaceOrder("BTC", domain.SideSell, domain.OrderTypeMarket, 3, nil, false, 1, 55_000)
	require.NoError(t, err)

	pos, err := b.GetPosition("BTC")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, string(domain.SideSell), pos.Side, "an oversized opposite fill flips to the remainder's side")
	assert.Equal(t, 2.0, pos.Size)
	assert.Equal(t, 55_000.0, pos.Entry)
}

func TestPlaceOrder_OppositeSideFullCloseRemovesPosition(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBook(t, now, Config{FeeRate: 0, StartingCash: 100_000})

	_, err := b.PlaceOrder("BTC", domain.SideBuy, domain.OrderTypeMarket, 1, nil, false, 1, 50_000)
	require.NoError(t, err)
	_, err = b.PlaceOrder("BTC", domain.SideSell, domain.OrderTypeMarket, 1, nil, true, 1, 52_000)
	require.NoError(t, err)

	pos, err := b.GetPosition("BTC")
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestPlaceOrder_ReduceOnlyRefusedWithNoPosition(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBook(t, now, DefaultConfig())

	_, err := b.PlaceOrder("BTC", domain.SideSell, domain.OrderTypeMarket, 1, nil, true, 1, 50_000)
	assert.Error(t, err)
}

func TestPlaceOrder_ReduceOnlyRefusedSameSide(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBook(t, now, DefaultConfig())
	_, err := b.PlaceOrder("BTC", domain.SideBuy, domain.OrderTypeMarket, 1, nil, false, 1, 50_000)
	require.NoError(t, err)

	_, err = b.PlaceOrder("BTC", domain.SideBuy, domain.OrderTypeMarket, 1, nil, true, 1, 50_000)
	assert.Error(t, err, "reduce_only on the same side as the position must be refused")
}

func TestPlaceOrder_ReduceOnlyRefusedWhenSizeExceedsPosition(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBook(t, now, DefaultConfig())
	_, err := b.PlaceOrder("BTC", domain.SideBuy, domain.OrderTypeMarket, 1, nil, false, 1, 50_000)
	require.NoError(t, err)

	_, err = b.PlaceOrder("BTC", domain.SideSell, domain.OrderTypeMarket, 2, nil, true, 1, 50_000)
	assert.Error(t, err)
}

func TestPlaceOrder_RejectsNonPositiveSize(t *testing.T) {
	b := newTestBook(t, time.Now(), DefaultConfig())
	_, err := b.PlaceOrder("BTC", domain.SideBuy, domain.OrderTypeMarket, 0, nil, false, 1, 50_000)
	assert.Error(t, err)
}

func TestCancelOrder_IsIdempotent(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBook(t, now, DefaultConfig())
	price := 10_000.0
	order, err := b.PlaceOrder("BTC", domain.SideBuy, domain.OrderTypeLimit, 1, &price, false, 1, 50_000)
	require.NoError(t, err)

	require.NoError(t, b.CancelOrder(order.ID))
	err = b.CancelOrder(order.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestFill_FeeDeductedFromCash(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b := newTestBook(t, now, Config{FeeRate: 0.0005, StartingCash: 100_000})

	_, err := b.PlaceOrder("BTC", domain.SideBuy, domain.OrderTypeMarket, 1, nil, false, 1, 50_000)
	require.NoError(t, err)

	book, err := b.GetBook()
	require.NoError(t, err)
	assert.InDelta(t, 100_000-25, book.Cash, 1e-6)
}
