package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// JournalRepository appends and reads perp_trade_journal rows. Entries are
// immutable once written; ordering by insertion (id ascending) defines
// "recency" for the reflective mutator.
type JournalRepository struct {
	base
}

// NewJournalRepository constructs a JournalRepository.
func NewJournalRepository(db *sql.DB, log zerolog.Logger) *JournalRepository {
	return &JournalRepository{base: newBase(db, log, "journal")}
}

// JournalEntryInput is the write-side shape; ThesisCorrect/ClosedAt/Scores
// are resolved later in the position's lifecycle via CloseWithOutcome.
type JournalEntryInput struct {
	Symbol        string
	Side          string
	Size          float64
	Leverage      float64
	OrderType     string
	ReduceOnly    bool
	MarkPrice     float64
	Outcome       string
	SignalClass   string
	MarketRegime  string
	Volatility    string
	Liquidity     string
	Triggers      []string
	Reason        string
	CreatedAt     time.Time
}

// Append inserts one immutable journal row and returns its id.
func (r *JournalRepository) Append(e JournalEntryInput) (int64, error) {
	triggersJSON, err := json.Marshal(e.Triggers)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal triggers: %w", err)
	}

	res, err := r.db.Exec(`
		INSERT INTO perp_trade_journal
			(symbol, side, size, leverage, order_type, reduce_only, mark_price,
			 outcome, signal_class, market_regime, volatility_bucket, liquidity_bucket,
			 triggers, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Symbol, e.Side, e.Size, e.Leverage, e.OrderType, e.ReduceOnly, e.MarkPrice,
		e.Outcome, e.SignalClass, e.MarketRegime, e.Volatility, e.Liquidity,
		string(triggersJSON), e.Reason, formatTime(e.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("failed to append journal entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read journal entry id: %w", err)
	}
	return id, nil
}

// CloseWithOutcome records the resolution of a previously-opened trade:
// thesis correctness, per-component scores, captured R, and closed_at.
func (r *JournalRepository) CloseWithOutcome(id int64, thesisCorrect bool, scores [4]float64, capturedR float64, closedAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE perp_trade_journal
		SET thesis_correct = ?, score_direction = ?, score_timing = ?,
		    score_sizing = ?, score_exit = ?, captured_r = ?, closed_at = ?
		WHERE id = ?
	`, boolToInt(thesisCorrect), scores[0], scores[1], scores[2], scores[3], capturedR, formatTime(closedAt), id)
	if err != nil {
		return fmt.Errorf("failed to close journal entry %d: %w", id, err)
	}
	return nil
}

// RecentWithThesis returns the most recent `limit` entries that have a
// non-null thesis_correct, most-recent-first, used by the reflective
// mutator's observation-forcing rule.
func (r *JournalRepository) RecentWithThesis(limit int) ([]bool, error) {
	rows, err := r.db.Query(`
		SELECT thesis_correct FROM perp_trade_journal
		WHERE thesis_correct IS NOT NULL
		ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent thesis entries: %w", err)
	}
	defer rows.Close()

	var out []bool
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan thesis_correct: %w", err)
		}
		out = append(out, v != 0)
	}
	return out, rows.Err()
}

// RecentOutcomes returns the most recent `limit` entries' outcome strings,
// most-recent-first, used by the reflective mutator's adaptive-tightening
// rule.
func (r *JournalRepository) RecentOutcomes(limit int) ([]string, error) {
	rows, err := r.db.Query(`
		SELECT outcome FROM perp_trade_journal ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent outcomes: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
