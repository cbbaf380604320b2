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

// HTTPOracle is a minimal HTTP-backed AdvisoryOracle adapter (baseURL +
// *http.Client + zerolog logger, JSON request/response). Prompt
// construction and provider selection are out of scope; this only posts
// messages and returns the raw content string.
type HTTPOracle struct {
	baseURL string
	client  *http.Client
	log     zerolog.Logger
}

// NewHTTPOracle constructs an HTTPOracle.
func NewHTTPOracle(baseURL string, log zerolog.Logger) *HTTPOracle {
	return &HTTPOracle{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		log:     log.With().Str("client", "advisory_oracle").Logger(),
	}
}

type completeRequest struct {
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type completeResponse struct {
	Content string `json:"content"`
}

// Complete posts the conversation and returns its raw content. Callers
// extract the structured action via ExtractJSON; a transport or decode
// failure here degrades the heartbeat tick to a hold, not a crash.
func (o *HTTPOracle) Complete(ctx context.Context, messages []Message, opts CompleteOptions) (CompleteResult, error) {
	timeout := time.Duration(opts.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(completeRequest{
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return CompleteResult{}, fmt.Errorf("failed to marshal oracle request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/complete", bytes.NewReader(body))
	if err != nil {
		return CompleteResult{}, fmt.Errorf("failed to build oracle request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return CompleteResult{}, fmt.Errorf("oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return CompleteResult{}, fmt.Errorf("failed to read oracle response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return CompleteResult{}, fmt.Errorf("oracle returned status %d", resp.StatusCode)
	}

	var parsed completeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return CompleteResult{}, fmt.Errorf("failed to parse oracle response: %w", err)
	}

	return CompleteResult{Content: parsed.Content}, nil
}
