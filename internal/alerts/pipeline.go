package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/perpautopilot/internal/clock"
	"github.com/aristath/perpautopilot/internal/store"
)

// Pipeline is the alert policy layer plus dispatch, built on
// store.AlertRepository.
type Pipeline struct {
	repo     *store.AlertRepository
	notifier Notifier
	clock    clock.Clock
	cfg      Config
	log      zerolog.Logger
}

// New constructs a Pipeline.
func New(repo *store.AlertRepository, notifier Notifier, c clock.Clock, cfg Config, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		repo:     repo,
		notifier: notifier,
		clock:    c,
		cfg:      cfg,
		log:      log.With().Str("component", "alerts").Logger(),
	}
}

// CreateInput is Create's public input record.
type CreateInput struct {
	DedupeKey  string
	Source     string
	Reason     string
	Severity   string
	Summary    string
	Message    string
	Metadata   string
	OccurredAt *time.Time
}

// Decision is the result of the policy layer: either a suppression with a
// reason, or an authorization carrying the resolved channel list and
// rendered message, ready for Dispatch.
type Decision struct {
	AlertID         string
	Suppressed      bool
	SuppressReason  string
	Authorized      bool
	Channels        []string
	RenderedMessage string
}

// Create gates the candidate, always persists the alert (so dedupe/cooldown
// windows have something to read back against on the next raise), and
// transitions it to suppressed or leaves it open for Dispatch to send.
func (p *Pipeline) Create(in CreateInput) (Decision, error) {
	now := p.clock.Now()
	if in.OccurredAt != nil {
		now = *in.OccurredAt
	}

	id := uuid.NewString()
	summary := TrimSummary(in.Summary)

	if !p.cfg.Enabled {
		return p.suppress(id, in, summary, now, "disabled")
	}
	if !p.cfg.ActionableReasons[in.Reason] {
		return p.suppress(id, in, summary, now, "non_actionable")
	}

	channels := p.resolveChannels(in.Severity)
	if len(channels) == 0 {
		return p.suppress(id, in, summary, now, "no_channels")
	}

	fingerprint := Fingerprint(in.Reason, in.Severity, summary)
	lastFingerprint, err := p.repo.LastWithFingerprint(in.DedupeKey, fingerprint)
	if err != nil {
		return Decision{}, fmt.Errorf("alert dedupe check failed: %w", err)
	}
	dedupeWindow := time.Duration(p.cfg.DedupeWindowSeconds) * time.Second
	if !lastFingerprint.IsZero() && now.Sub(lastFingerprint) < dedupeWindow {
		return p.suppress(id, in, summary, now, "dedupe")
	}

	_, lastSent, err := p.repo.LastSeenAndSent(in.DedupeKey)
	if err != nil {
		return Decision{}, fmt.Errorf("alert cooldown check failed: %w", err)
	}
	cooldownWindow := time.Duration(p.cfg.CooldownSeconds) * time.Second
	if !lastSent.IsZero() && now.Sub(lastSent) < cooldownWindow {
		return p.suppress(id, in, summary, now, "cooldown")
	}

	if err := p.repo.Create(store.AlertRow{
		ID: id, DedupeKey: in.DedupeKey, Source: in.Source, Reason: in.Reason,
		Severity: in.Severity, Summary: summary, Message: in.Message,
		Metadata: in.Metadata, OpenedAt: now,
	}); err != nil {
		return Decision{}, fmt.Errorf("failed to create alert: %w", err)
	}

	return Decision{
		AlertID:         id,
		Authorized:      true,
		Channels:        channels,
		RenderedMessage: renderMessage(in.Source, in.Reason, in.Severity, summary, in.Message),
	}, nil
}

func (p *Pipeline) suppress(id string, in CreateInput, summary string, now time.Time, reason string) (Decision, error) {
	if err := p.repo.Create(store.AlertRow{
		ID: id, DedupeKey: in.DedupeKey, Source: in.Source, Reason: in.Reason,
		Severity: in.Severity, Summary: summary, Message: in.Message,
		Metadata: in.Metadata, OpenedAt: now,
	}); err != nil {
		return Decision{}, fmt.Errorf("failed to create suppressed alert: %w", err)
	}
	if err := p.repo.Transition(id, store.AlertSuppressed, now, reason); err != nil {
		return Decision{}, fmt.Errorf("failed to suppress alert: %w", err)
	}
	return Decision{AlertID: id, Suppressed: true, SuppressReason: reason}, nil
}

func (p *Pipeline) resolveChannels(severity string) []string {
	if channels, ok := p.cfg.ChannelsBySeverity[severity]; ok {
		return channels
	}
	return p.cfg.DefaultChannels
}

func renderMessage(source, reason, severity, summary, message string) string {
	if message != "" {
		return message
	}
	return fmt.Sprintf("[%s] %s: %s (source: %s)", severity, reason, summary, source)
}

// Dispatch sends an authorized decision's message to every resolved
// channel, recording each attempt, and marks the alert sent if at least
// one channel succeeds.
func (p *Pipeline) Dispatch(ctx context.Context, d Decision) error {
	if !d.Authorized {
		return fmt.Errorf("cannot dispatch a non-authorized decision")
	}

	now := p.clock.Now()
	anySent := false
	for _, channel := range d.Channels {
		err := p.notifier.Send(ctx, channel, d.RenderedMessage)
		status := store.DeliverySent
		errMsg := ""
		if err != nil {
			status = store.DeliveryFailed
			errMsg = err.Error()
		} else {
			anySent = true
		}
		if recErr := p.repo.RecordDelivery(d.AlertID, channel, status, 1, "", errMsg, "", now); recErr != nil {
			p.log.Error().Err(recErr).Str("alert_id", d.AlertID).Msg("failed to record delivery")
		}
	}

	if anySent {
		if err := p.repo.Transition(d.AlertID, store.AlertSent, now, "delivered"); err != nil {
			return fmt.Errorf("failed to mark alert %s sent: %w", d.AlertID, err)
		}
	}
	return nil
}

// Resolve transitions an alert (open, suppressed, or sent) to resolved.
func (p *Pipeline) Resolve(alertID, detail string) error {
	return p.repo.Transition(alertID, store.AlertResolved, p.clock.Now(), detail)
}

// Acknowledge records an operator acknowledgement without transitioning
// state.
func (p *Pipeline) Acknowledge(alertID, by string) error {
	return p.repo.Acknowledge(alertID, by, p.clock.Now())
}
