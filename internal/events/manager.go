package events

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/aristath/perpautopilot/internal/clock"
)

// EventType represents different event types emitted across the autonomy
// control plane.
type EventType string

const (
	ErrorOccurred EventType = "ERROR_OCCURRED"

	// Scheduler lifecycle events.
	JobLeaseAcquired EventType = "JOB_LEASE_ACQUIRED"
	JobSucceeded     EventType = "JOB_SUCCEEDED"
	JobFailed        EventType = "JOB_FAILED"
	StaleLeaseFound  EventType = "STALE_LEASE_FOUND"

	// Policy engine events.
	TradeGateDenied        EventType = "TRADE_GATE_DENIED"
	TradeGateAllowed       EventType = "TRADE_GATE_ALLOWED"
	ObservationModeEntered EventType = "OBSERVATION_MODE_ENTERED"

	// Reflective mutator events.
	PolicyTightened EventType = "POLICY_TIGHTENED"

	// Heartbeat supervisor events.
	HeartbeatTriggerFired   EventType = "HEARTBEAT_TRIGGER_FIRED"
	HeartbeatEmergencyClose EventType = "HEARTBEAT_EMERGENCY_CLOSE"
	HeartbeatActionRejected EventType = "HEARTBEAT_ACTION_REJECTED"
	HeartbeatActionExecuted EventType = "HEARTBEAT_ACTION_EXECUTED"

	// Alert pipeline events.
	AlertCreated    EventType = "ALERT_CREATED"
	AlertSuppressed EventType = "ALERT_SUPPRESSED"
	AlertSent       EventType = "ALERT_SENT"
	AlertResolved   EventType = "ALERT_RESOLVED"

	// Paper matching book events.
	PaperOrderPlaced   EventType = "PAPER_ORDER_PLACED"
	PaperOrderFilled   EventType = "PAPER_ORDER_FILLED"
	PaperOrderCanceled EventType = "PAPER_ORDER_CANCELED"
)

// Event represents a system event.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// Manager handles event emission and logging.
type Manager struct {
	clock clock.Clock
	log   zerolog.Logger
}

// NewManager creates a new event manager.
func NewManager(c clock.Clock, log zerolog.Logger) *Manager {
	return &Manager{
		clock: c,
		log:   log.With().Str("service", "events").Logger(),
	}
}

// Emit emits an event.
func (m *Manager) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: clock.ISOMilli(m.clock.Now()),
		Data:      data,
		Module:    module,
	}

	eventJSON, _ := json.Marshal(event)
	m.log.Info().
		Str("event_type", string(eventType)).
		Str("module", module).
		RawJSON("event", eventJSON).
		Msg("event emitted")
}

// EmitError emits an error event.
func (m *Manager) EmitError(module string, err error, context map[string]interface{}) {
	data := map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	}
	m.Emit(ErrorOccurred, module, data)
}
