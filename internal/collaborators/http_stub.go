package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPExecutor is a thin HTTP adapter for execution.mode=webhook: it posts
// the decision to an operator-configured endpoint and reports whatever the
// endpoint reports back. Exchange order-construction internals (signing,
// venue-specific payloads) are out of scope; a real live-mode executor
// would live behind this same interface but is not part of the core.
type HTTPExecutor struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPExecutor constructs an HTTPExecutor.
func NewHTTPExecutor(baseURL string, log zerolog.Logger) *HTTPExecutor {
	return &HTTPExecutor{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("client", "executor").Logger(),
	}
}

// Execute posts the decision and decodes {executed, message}.
func (e *HTTPExecutor) Execute(ctx context.Context, market string, decision Decision) (ExecuteResult, error) {
	body, err := json.Marshal(struct {
		Market   string   `json:"market"`
		Decision Decision `json:"decision"`
	}{Market: market, Decision: decision})
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("failed to marshal execute request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("failed to build execute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("execute request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return ExecuteResult{}, fmt.Errorf("failed to read execute response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return ExecuteResult{}, fmt.Errorf("executor returned status %d", resp.StatusCode)
	}

	var result ExecuteResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return ExecuteResult{}, fmt.Errorf("failed to parse execute response: %w", err)
	}
	return result, nil
}

// GetOpenOrders fetches resting orders from the executor endpoint.
func (e *HTTPExecutor) GetOpenOrders(ctx context.Context) ([]Order, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/orders", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build orders request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("orders request failed: %w", err)
	}
	defer resp.Body.Close()

	var orders []Order
	if err := json.NewDecoder(resp.Body).Decode(&orders); err != nil {
		return nil, fmt.Errorf("failed to parse orders response: %w", err)
	}
	return orders, nil
}

// CancelOrder cancels an order by id.
func (e *HTTPExecutor) CancelOrder(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, e.baseURL+"/orders/"+id, nil)
	if err != nil {
		return fmt.Errorf("failed to build cancel request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("cancel request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("executor returned status %d on cancel", resp.StatusCode)
	}
	return nil
}

// GetOpenPositions fetches open positions from the executor endpoint.
func (e *HTTPExecutor) GetOpenPositions(ctx context.Context) ([]Position, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build positions request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("positions request failed: %w", err)
	}
	defer resp.Body.Close()

	var positions []Position
	if err := json.NewDecoder(resp.Body).Decode(&positions); err != nil {
		return nil, fmt.Errorf("failed to parse positions response: %w", err)
	}
	return positions, nil
}

// HTTPMarketDataClient is a thin HTTP adapter for the MarketDataClient
// collaborator, shaped the same as HTTPExecutor/HTTPOracle.
type HTTPMarketDataClient struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPMarketDataClient constructs an HTTPMarketDataClient.
func NewHTTPMarketDataClient(baseURL string, log zerolog.Logger) *HTTPMarketDataClient {
	return &HTTPMarketDataClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("client", "market_data").Logger(),
	}
}

// GetAllMids fetches the symbol->mid-price map.
func (m *HTTPMarketDataClient) GetAllMids(ctx context.Context) (map[string]float64, error) {
	var mids map[string]float64
	if err := m.getJSON(ctx, "/mids", &mids); err != nil {
		return nil, err
	}
	return mids, nil
}

// GetClearinghouseState fetches the account snapshot.
func (m *HTTPMarketDataClient) GetClearinghouseState(ctx context.Context) (ClearinghouseState, error) {
	var state ClearinghouseState
	if err := m.getJSON(ctx, "/clearinghouse-state", &state); err != nil {
		return ClearinghouseState{}, err
	}
	return state, nil
}

// GetMetaAndAssetCtxs fetches the universe list and per-asset context.
func (m *HTTPMarketDataClient) GetMetaAndAssetCtxs(ctx context.Context) ([]string, []AssetContext, error) {
	var parsed struct {
		Symbols []string       `json:"symbols"`
		Assets  []AssetContext `json:"assets"`
	}
	if err := m.getJSON(ctx, "/meta-and-asset-ctxs", &parsed); err != nil {
		return nil, nil, err
	}
	return parsed.Symbols, parsed.Assets, nil
}

// GetOpenOrders fetches resting orders from the market-data endpoint.
func (m *HTTPMarketDataClient) GetOpenOrders(ctx context.Context) ([]Order, error) {
	var orders []Order
	if err := m.getJSON(ctx, "/orders", &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// HTTPExpressionSource is a thin HTTP adapter for the ExpressionSource
// collaborator, shaped the same as HTTPMarketDataClient.
type HTTPExpressionSource struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPExpressionSource constructs an HTTPExpressionSource.
func NewHTTPExpressionSource(baseURL string, log zerolog.Logger) *HTTPExpressionSource {
	return &HTTPExpressionSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 15 * time.Second},
		log:     log.With().Str("client", "expression_source").Logger(),
	}
}

// FetchCandidates fetches the pending batch of already-formed candidate
// expressions awaiting a gate decision.
func (s *HTTPExpressionSource) FetchCandidates(ctx context.Context) ([]ExpressionCandidate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/candidates", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build candidates request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("candidates request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("expression source returned status %d", resp.StatusCode)
	}

	var candidates []ExpressionCandidate
	if err := json.NewDecoder(resp.Body).Decode(&candidates); err != nil {
		return nil, fmt.Errorf("failed to parse candidates response: %w", err)
	}
	return candidates, nil
}

func (m *HTTPMarketDataClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", path, err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("market data endpoint %s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", path, err)
	}
	return nil
}
