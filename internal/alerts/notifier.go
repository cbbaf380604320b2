package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Notifier delivers a rendered alert message to one channel. A delivery
// failure is returned as an error, never panics; the pipeline records it.
type Notifier interface {
	Send(ctx context.Context, channel, message string) error
}

// LogNotifier "delivers" by writing a structured log line; it always
// succeeds and is the default channel so alerts are never silently
// lost when no webhook is configured.
type LogNotifier struct {
	log zerolog.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(log zerolog.Logger) *LogNotifier {
	return &LogNotifier{log: log.With().Str("component", "alerts").Logger()}
}

// Send implements Notifier.
func (n *LogNotifier) Send(ctx context.Context, channel, message string) error {
	n.log.Warn().Str("channel", channel).Msg(message)
	return nil
}

// WebhookNotifier POSTs the rendered message as JSON to a single
// configured URL, grounded on collaborators.HTTPOracle's
// baseURL+*http.Client+zerolog shape.
type WebhookNotifier struct {
	url    string
	client *http.Client
	log    zerolog.Logger
}

// NewWebhookNotifier constructs a WebhookNotifier.
func NewWebhookNotifier(url string, log zerolog.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.With().Str("component", "alerts").Logger(),
	}
}

type webhookPayload struct {
	Channel string `json:"channel"`
	Message string `json:"message"`
}

// Send implements Notifier.
func (n *WebhookNotifier) Send(ctx context.Context, channel, message string) error {
	body, err := json.Marshal(webhookPayload{Channel: channel, Message: message})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// ChannelRouter dispatches to the right Notifier per channel name.
type ChannelRouter struct {
	notifiers map[string]Notifier
}

// NewChannelRouter constructs a ChannelRouter from a channel-name-to-
// Notifier map.
func NewChannelRouter(notifiers map[string]Notifier) *ChannelRouter {
	return &ChannelRouter{notifiers: notifiers}
}

// Send implements Notifier by dispatching to the channel's registered
// Notifier; an unregistered channel is a non-retryable error.
func (r *ChannelRouter) Send(ctx context.Context, channel, message string) error {
	n, ok := r.notifiers[channel]
	if !ok {
		return fmt.Errorf("no notifier registered for channel %q", channel)
	}
	return n.Send(ctx, channel, message)
}
