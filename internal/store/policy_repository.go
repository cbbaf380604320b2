package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// PolicyRepository reads and writes the singleton-per-session-date
// autonomy_policy_state row.
type PolicyRepository struct {
	base
}

// NewPolicyRepository constructs a PolicyRepository.
func NewPolicyRepository(db *sql.DB, log zerolog.Logger) *PolicyRepository {
	return &PolicyRepository{base: newBase(db, log, "policy")}
}

// Get reads the policy state for sessionDate, returning a zero-value row
// (no overrides, no observation window) if none has been written yet.
func (r *PolicyRepository) Get(sessionDate string) (*PolicyStateRow, error) {
	row := r.db.QueryRow(`
		SELECT session_date, min_edge_override, max_trades_per_scan_override,
		       leverage_cap_override, observation_only_until, reason, updated_at
		FROM autonomy_policy_state WHERE session_date = ?
	`, sessionDate)

	var (
		minEdge        sql.NullFloat64
		maxTrades      sql.NullInt64
		leverageCap    sql.NullFloat64
		obsUntil       sql.NullString
		reason         sql.NullString
		updatedAt      string
	)
	state := &PolicyStateRow{SessionDate: sessionDate}
	err := row.Scan(&state.SessionDate, &minEdge, &maxTrades, &leverageCap, &obsUntil, &reason, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &PolicyStateRow{SessionDate: sessionDate}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy state for %s: %w", sessionDate, err)
	}

	if minEdge.Valid {
		state.MinEdgeOverride = &minEdge.Float64
	}
	if maxTrades.Valid {
		v := int(maxTrades.Int64)
		state.MaxTradesPerScanOverride = &v
	}
	if leverageCap.Valid {
		state.LeverageCapOverride = &leverageCap.Float64
	}
	if obsUntil.Valid {
		if t, err := parseTime(obsUntil.String); err == nil {
			state.ObservationOnlyUntil = &t
		}
	}
	state.Reason = reason.String
	if ut, err := parseTime(updatedAt); err == nil {
		state.UpdatedAt = ut
	}
	return state, nil
}

// Upsert writes the full policy state row for its session date.
func (r *PolicyRepository) Upsert(state PolicyStateRow) error {
	var obsUntil interface{}
	if state.ObservationOnlyUntil != nil {
		obsUntil = formatTime(*state.ObservationOnlyUntil)
	}
	var minEdge interface{}
	if state.MinEdgeOverride != nil {
		minEdge = *state.MinEdgeOverride
	}
	var maxTrades interface{}
	if state.MaxTradesPerScanOverride != nil {
		maxTrades = *state.MaxTradesPerScanOverride
	}
	var leverageCap interface{}
	if state.LeverageCapOverride != nil {
		leverageCap = *state.LeverageCapOverride
	}

	_, err := r.db.Exec(`
		INSERT INTO autonomy_policy_state
			(session_date, min_edge_override, max_trades_per_scan_override,
			 leverage_cap_override, observation_only_until, reason, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_date) DO UPDATE SET
			min_edge_override            = excluded.min_edge_override,
			max_trades_per_scan_override  = excluded.max_trades_per_scan_override,
			leverage_cap_override         = excluded.leverage_cap_override,
			observation_only_until        = excluded.observation_only_until,
			reason                        = excluded.reason,
			updated_at                    = excluded.updated_at
	`, state.SessionDate, minEdge, maxTrades, leverageCap, obsUntil, state.Reason, formatTime(state.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert policy state for %s: %w", state.SessionDate, err)
	}
	return nil
}

// CountExecutedTradesToday counts journal entries with outcome=executed
// created on sessionDate, for the daily trade cap.
func (r *PolicyRepository) CountExecutedTradesToday(sessionDate string) (int, error) {
	var count int
	err := r.db.QueryRow(`
		SELECT COUNT(*) FROM perp_trade_journal
		WHERE outcome = 'executed' AND substr(created_at, 1, 10) = ?
	`, sessionDate).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count today's trades: %w", err)
	}
	return count, nil
}

// SignalPerformanceSample is one resolved trade's realized R used to
// compute the signal-performance Sharpe-like guard.
type SignalPerformanceSample struct {
	CapturedR float64
	ClosedAt  time.Time
}

// ResolvedSamplesForSignalClass returns the captured-R series for every
// resolved (closed_at not null) journal entry of the given signal class,
// most recent last.
func (r *PolicyRepository) ResolvedSamplesForSignalClass(signalClass string) ([]SignalPerformanceSample, error) {
	rows, err := r.db.Query(`
		SELECT captured_r, closed_at FROM perp_trade_journal
		WHERE signal_class = ? AND closed_at IS NOT NULL
		ORDER BY closed_at ASC
	`, signalClass)
	if err != nil {
		return nil, fmt.Errorf("failed to query resolved samples: %w", err)
	}
	defer rows.Close()

	var out []SignalPerformanceSample
	for rows.Next() {
		var r2 float64
		var closedAt string
		if err := rows.Scan(&r2, &closedAt); err != nil {
			return nil, fmt.Errorf("failed to scan resolved sample: %w", err)
		}
		t, err := parseTime(closedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse closed_at: %w", err)
		}
		out = append(out, SignalPerformanceSample{CapturedR: r2, ClosedAt: t})
	}
	return out, rows.Err()
}
