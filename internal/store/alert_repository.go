package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// AlertRepository creates and transitions alerts, appending to the
// append-only alert_events and alert_deliveries tables transactionally.
type AlertRepository struct {
	base
}

// NewAlertRepository constructs an AlertRepository.
func NewAlertRepository(db *sql.DB, log zerolog.Logger) *AlertRepository {
	return &AlertRepository{base: newBase(db, log, "alerts")}
}

// allowedTransitions is the alert lifecycle state machine: open ->
// {suppressed, sent, resolved}; suppressed -> {sent, resolved}; sent ->
// resolved; resolved terminal.
var allowedTransitions = map[AlertState]map[AlertState]bool{
	AlertOpen:       {AlertSuppressed: true, AlertSent: true, AlertResolved: true},
	AlertSuppressed: {AlertSent: true, AlertResolved: true},
	AlertSent:       {AlertResolved: true},
	AlertResolved:   {},
}

// Create inserts an open alert and an "open" event in one transaction.
func (r *AlertRepository) Create(row AlertRow) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin alert create tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO alerts
			(id, dedupe_key, source, reason, severity, summary, message, metadata,
			 state, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'open', ?)
	`, row.ID, row.DedupeKey, row.Source, row.Reason, row.Severity, row.Summary,
		row.Message, row.Metadata, formatTime(row.OpenedAt))
	if err != nil {
		return fmt.Errorf("failed to insert alert %s: %w", row.ID, err)
	}

	_, err = tx.Exec(`
		INSERT INTO alert_events (alert_id, event_type, detail, occurred_at)
		VALUES (?, 'open', ?, ?)
	`, row.ID, row.Summary, formatTime(row.OpenedAt))
	if err != nil {
		return fmt.Errorf("failed to insert open event for alert %s: %w", row.ID, err)
	}

	return tx.Commit()
}

// Transition moves an alert to a new state iff allowed by the transition
// table, stamping the matching timestamp column and appending an event in
// the same transaction. Returns ErrInvalidTransition (state untouched) if
// the move is not allowed, ErrNotFound if the alert does not exist.
func (r *AlertRepository) Transition(alertID string, to AlertState, now time.Time, detail string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin alert transition tx: %w", err)
	}
	defer tx.Rollback()

	var currentState string
	err = tx.QueryRow(`SELECT state FROM alerts WHERE id = ?`, alertID).Scan(&currentState)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read alert %s state: %w", alertID, err)
	}

	from := AlertState(currentState)
	if !allowedTransitions[from][to] {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	var column string
	switch to {
	case AlertSuppressed:
		column = "suppressed_at"
	case AlertSent:
		column = "sent_at"
	case AlertResolved:
		column = "resolved_at"
	default:
		return fmt.Errorf("%w: unknown target state %s", ErrInvalidTransition, to)
	}

	_, err = tx.Exec(fmt.Sprintf(`UPDATE alerts SET state = ?, %s = ? WHERE id = ?`, column),
		string(to), formatTime(now), alertID)
	if err != nil {
		return fmt.Errorf("failed to transition alert %s: %w", alertID, err)
	}

	_, err = tx.Exec(`
		INSERT INTO alert_events (alert_id, event_type, detail, occurred_at)
		VALUES (?, ?, ?, ?)
	`, alertID, string(to), detail, formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to insert transition event for alert %s: %w", alertID, err)
	}

	return tx.Commit()
}

// Acknowledge records acknowledged_at/by on any state without transitioning
// it; acknowledgement is orthogonal to the delivery state machine.
func (r *AlertRepository) Acknowledge(alertID, by string, now time.Time) error {
	res, err := r.db.Exec(`
		UPDATE alerts SET acknowledged_at = ?, acknowledged_by = ? WHERE id = ?
	`, formatTime(now), by, alertID)
	if err != nil {
		return fmt.Errorf("failed to acknowledge alert %s: %w", alertID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read acknowledge rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordDelivery appends a delivery attempt and a matching event
// atomically; on status=failed with a non-empty error it also updates
// alerts.last_error. Fails with ErrNotFound if the alert does not exist.
func (r *AlertRepository) RecordDelivery(alertID, channel string, status AlertDeliveryStatus, attempt int, providerMessageID, deliveryErr, metadata string, now time.Time) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delivery tx: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT 1 FROM alerts WHERE id = ?`, alertID).Scan(&exists); errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	} else if err != nil {
		return fmt.Errorf("failed to check alert %s existence: %w", alertID, err)
	}

	_, err = tx.Exec(`
		INSERT INTO alert_deliveries
			(alert_id, channel, status, attempt, provider_message_id, error, metadata, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, alertID, channel, string(status), attempt, providerMessageID, deliveryErr, metadata, formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to insert delivery for alert %s: %w", alertID, err)
	}

	_, err = tx.Exec(`
		INSERT INTO alert_events (alert_id, event_type, detail, occurred_at)
		VALUES (?, ?, ?, ?)
	`, alertID, "delivery:"+string(status), channel, formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to insert delivery event for alert %s: %w", alertID, err)
	}

	if status == DeliveryFailed && deliveryErr != "" {
		if _, err := tx.Exec(`UPDATE alerts SET last_error = ? WHERE id = ?`, deliveryErr, alertID); err != nil {
			return fmt.Errorf("failed to update last_error for alert %s: %w", alertID, err)
		}
	}

	return tx.Commit()
}

// LastSeenAndSent returns the most recent event timestamp for the dedupe
// key (any event) and the most recent "sent" transition timestamp, used by
// the alert policy's dedupe/cooldown windows. Either may be zero if none
// exists.
func (r *AlertRepository) LastSeenAndSent(dedupeKey string) (lastSeen, lastSent time.Time, err error) {
	var seenStr, sentStr string
	if err = r.db.QueryRow(`
		SELECT COALESCE(MAX(ae.occurred_at), '') FROM alert_events ae
		JOIN alerts a ON a.id = ae.alert_id WHERE a.dedupe_key = ?
	`, dedupeKey).Scan(&seenStr); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to read last seen for %s: %w", dedupeKey, err)
	}
	if err = r.db.QueryRow(`
		SELECT COALESCE(MAX(ae.occurred_at), '') FROM alert_events ae
		JOIN alerts a ON a.id = ae.alert_id WHERE a.dedupe_key = ? AND ae.event_type = 'sent'
	`, dedupeKey).Scan(&sentStr); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to read last sent for %s: %w", dedupeKey, err)
	}

	if seenStr != "" {
		if t, perr := parseTime(seenStr); perr == nil {
			lastSeen = t
		}
	}
	if sentStr != "" {
		if t, perr := parseTime(sentStr); perr == nil {
			lastSent = t
		}
	}
	return lastSeen, lastSent, nil
}

// ListRecent returns the most recent limit alerts (any state), newest
// first, for the alert feed endpoint.
func (r *AlertRepository) ListRecent(limit int) ([]AlertRow, error) {
	rows, err := r.db.Query(`
		SELECT id, dedupe_key, source, reason, severity, summary, message, metadata,
		       state, opened_at, suppressed_at, sent_at, resolved_at,
		       acknowledged_at, acknowledged_by, last_error
		FROM alerts ORDER BY opened_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent alerts: %w", err)
	}
	defer rows.Close()

	var out []AlertRow
	for rows.Next() {
		var (
			row                                      AlertRow
			state, openedAt                          string
			suppressedAt, sentAt, resolvedAt, ackAt  sql.NullString
			ackBy, lastErr                           sql.NullString
		)
		if err := rows.Scan(&row.ID, &row.DedupeKey, &row.Source, &row.Reason, &row.Severity,
			&row.Summary, &row.Message, &row.Metadata, &state, &openedAt,
			&suppressedAt, &sentAt, &resolvedAt, &ackAt, &ackBy, &lastErr); err != nil {
			return nil, fmt.Errorf("failed to scan alert row: %w", err)
		}
		row.State = AlertState(state)
		row.AcknowledgedBy = ackBy.String
		row.LastError = lastErr.String
		if t, perr := parseTime(openedAt); perr == nil {
			row.OpenedAt = t
		}
		if suppressedAt.Valid {
			if t, perr := parseTime(suppressedAt.String); perr == nil {
				row.SuppressedAt = &t
			}
		}
		if sentAt.Valid {
			if t, perr := parseTime(sentAt.String); perr == nil {
				row.SentAt = &t
			}
		}
		if resolvedAt.Valid {
			if t, perr := parseTime(resolvedAt.String); perr == nil {
				row.ResolvedAt = &t
			}
		}
		if ackAt.Valid {
			if t, perr := parseTime(ackAt.String); perr == nil {
				row.AcknowledgedAt = &t
			}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// LastWithFingerprint returns the opened_at time of the most recent alert
// under dedupeKey whose summary matches fingerprint exactly, used for the
// dedupe-window check ahead of cooldown. Returns zero time if none.
func (r *AlertRepository) LastWithFingerprint(dedupeKey, fingerprint string) (time.Time, error) {
	var openedAt sql.NullString
	err := r.db.QueryRow(`
		SELECT opened_at FROM alerts
		WHERE dedupe_key = ? AND reason || '|' || severity || '|' || summary = ?
		ORDER BY opened_at DESC LIMIT 1
	`, dedupeKey, fingerprint).Scan(&openedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read last fingerprint match: %w", err)
	}
	if !openedAt.Valid {
		return time.Time{}, nil
	}
	return parseTime(openedAt.String)
}
