// Package collaborators defines the external-system boundaries the core
// calls into but does not implement: the executor, the market-data client,
// and the advisory oracle. Only these interfaces plus thin HTTP adapters
// live here; order construction internals, market-data ingestion, and LLM
// prompt engineering are out of scope.
package collaborators

import (
	"context"

	"github.com/aristath/perpautopilot/internal/domain"
)

// Decision is the order the heartbeat supervisor (or policy engine, for a
// live entry) asks the executor to place.
type Decision struct {
	Symbol     string
	Side       domain.Side
	Size       float64
	OrderType  domain.OrderType
	Price      *float64
	Leverage   *float64
	ReduceOnly bool
	Reasoning  string
}

// ExecuteResult is the executor's response to Execute.
type ExecuteResult struct {
	Executed bool
	Message  string
}

// Order is a resting order as reported by the executor or market-data
// client.
type Order struct {
	ID     string
	Symbol string
	Side   domain.Side
	Price  float64
	Size   float64
}

// Executor places and cancels orders against the live (or paper) venue.
type Executor interface {
	Execute(ctx context.Context, market string, decision Decision) (ExecuteResult, error)
	GetOpenOrders(ctx context.Context) ([]Order, error)
	CancelOrder(ctx context.Context, id string) error
}

// Position is one open position as reported by the executor.
type Position struct {
	Symbol             string
	Side               domain.Side
	Size               float64
	EntryPrice         float64
	MarkPrice          float64
	UnrealizedPnL      float64
	LiquidationDistPct float64
	FundingRate        float64
	StopPrice          float64
	TakeProfitPrice    float64
	AccountEquity      float64
}

// PositionProvider is the subset of the executor surface the heartbeat
// supervisor polls each tick.
type PositionProvider interface {
	GetOpenPositions(ctx context.Context) ([]Position, error)
}

// AssetContext is one entry in the exchange's universe/metadata response.
type AssetContext struct {
	Symbol      string
	FundingRate float64
}

// MarginSummary summarizes account-level margin state.
type MarginSummary struct {
	AccountEquity float64
}

// ClearinghouseState is the account snapshot from getClearinghouseState.
type ClearinghouseState struct {
	AssetPositions []Position
	MarginSummary  MarginSummary
}

// MarketDataClient is the market-data collaborator.
type MarketDataClient interface {
	GetAllMids(ctx context.Context) (map[string]float64, error)
	GetClearinghouseState(ctx context.Context) (ClearinghouseState, error)
	GetMetaAndAssetCtxs(ctx context.Context) ([]string, []AssetContext, error)
	GetOpenOrders(ctx context.Context) ([]Order, error)
}

// Message is one chat-style turn sent to the advisory oracle.
type Message struct {
	Role    string
	Content string
}

// CompleteOptions configures an oracle call.
type CompleteOptions struct {
	Temperature float64
	MaxTokens   int
	TimeoutMs   int
}

// CompleteResult is the oracle's raw response; Content is expected to
// contain exactly one JSON object matching domain.HeartbeatAction.
type CompleteResult struct {
	Content string
}

// AdvisoryOracle is the decision-oracle collaborator.
type AdvisoryOracle interface {
	Complete(ctx context.Context, messages []Message, opts CompleteOptions) (CompleteResult, error)
}

// ExpressionCandidate is one already-formed candidate trade plus the signal
// cluster it was derived from, as fetched from an ExpressionSource.
type ExpressionCandidate struct {
	Expression domain.Expression
	Cluster    domain.SignalCluster
}

// ExpressionSource is the discovery-job collaborator: it supplies
// already-formed candidate expressions. Strategy discovery itself, the
// scoring and universe selection behind it, is out of scope; this repo only
// gates and sizes whatever candidates it is handed.
type ExpressionSource interface {
	FetchCandidates(ctx context.Context) ([]ExpressionCandidate, error)
}
