package reflectmut

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/perpautopilot/internal/clock"
	"github.com/aristath/perpautopilot/internal/policy"
	"github.com/aristath/perpautopilot/internal/store"
)

// Mutator reads recent journal history and tightens (never loosens) the
// session's policy overrides. It is re-entrant: repeated runs within a
// session converge rather than oscillate.
type Mutator struct {
	policy  *store.PolicyRepository
	journal *store.JournalRepository
	clock   clock.Clock
	cfg     Config
	log     zerolog.Logger
}

// New constructs a Mutator.
func New(policyRepo *store.PolicyRepository, journalRepo *store.JournalRepository, c clock.Clock, cfg Config, log zerolog.Logger) *Mutator {
	return &Mutator{
		policy:  policyRepo,
		journal: journalRepo,
		clock:   c,
		cfg:     cfg,
		log:     log.With().Str("component", "reflectmut").Logger(),
	}
}

// Name satisfies scheduler.Job.
func (m *Mutator) Name() string { return "reflective-mutator" }

// Run satisfies scheduler.Job.
func (m *Mutator) Run(ctx context.Context) error {
	return m.Apply()
}

// Apply evaluates both mutation rules against the current session's journal
// history and writes any tightening to the policy state row. A run with no
// rule firing is a no-op (no store write).
func (m *Mutator) Apply() error {
	now := m.clock.Now()
	sessionDate := policy.SessionDateFor(now)

	state, err := m.policy.Get(sessionDate)
	if err != nil {
		return fmt.Errorf("reflective mutator: failed to read policy state: %w", err)
	}

	changed := false

	if forcedUntil, reason, ok := m.evaluateObservationForcing(now); ok {
		if state.ObservationOnlyUntil == nil || forcedUntil.After(*state.ObservationOnlyUntil) {
			state.ObservationOnlyUntil = &forcedUntil
			state.Reason = reason
			changed = true
		}
	}

	if m.evaluateTightening() {
		minEdge := m.cfg.MinEdgeDefault
		if state.MinEdgeOverride != nil {
			minEdge = *state.MinEdgeOverride
		}
		minEdge = clampFloat(minEdge+m.cfg.MinEdgeStep, m.cfg.MinEdgeMin, m.cfg.MinEdgeMax)
		state.MinEdgeOverride = &minEdge

		maxTrades := m.cfg.MaxTradesPerScanDefault
		if state.MaxTradesPerScanOverride != nil {
			maxTrades = *state.MaxTradesPerScanOverride
		}
		maxTrades = maxIntFloor(maxTrades-1, m.cfg.MaxTradesPerScanFloor)
		state.MaxTradesPerScanOverride = &maxTrades

		leverageCap := m.cfg.LeverageCapDefault
		if state.LeverageCapOverride != nil {
			leverageCap = *state.LeverageCapOverride
		}
		leverageCap = maxFloatFloor(leverageCap-1, m.cfg.LeverageCapFloor)
		state.LeverageCapOverride = &leverageCap

		if state.Reason == "" {
			state.Reason = "adaptive tightening: elevated recent failure rate"
		}
		changed = true
	}

	if !changed {
		return nil
	}

	state.UpdatedAt = now
	if err := m.policy.Upsert(*state); err != nil {
		return fmt.Errorf("reflective mutator: failed to upsert policy state: %w", err)
	}
	return nil
}

// evaluateObservationForcing implements the observation-forcing rule: among
// the most recent window entries having a resolved thesis, if at least
// minFalse are false, observation mode is forced until now +
// max(60s, scanIntervalSeconds).
func (m *Mutator) evaluateObservationForcing(now time.Time) (time.Time, string, bool) {
	theses, err := m.journal.RecentWithThesis(m.cfg.ObservationWindow)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to read recent thesis outcomes")
		return time.Time{}, "", false
	}

	falseCount := 0
	for _, correct := range theses {
		if !correct {
			falseCount++
		}
	}
	if falseCount < m.cfg.ObservationMinFalse {
		return time.Time{}, "", false
	}

	ttl := time.Duration(m.cfg.ScanIntervalSeconds) * time.Second
	if ttl < 60*time.Second {
		ttl = 60 * time.Second
	}
	reason := fmt.Sprintf("observation forced: %d of last %d resolved trades had an incorrect thesis", falseCount, len(theses))
	return now.Add(ttl), reason, true
}

// evaluateTightening implements the adaptive-tightening rule: among the
// most recent 10 journal entries, if at least 6 exist and at least 50% have
// outcome failed, the knobs below tighten by one step.
func (m *Mutator) evaluateTightening() bool {
	outcomes, err := m.journal.RecentOutcomes(m.cfg.TighteningWindow)
	if err != nil {
		m.log.Error().Err(err).Msg("failed to read recent outcomes")
		return false
	}
	if len(outcomes) < m.cfg.TighteningMinCount {
		return false
	}

	failed := 0
	for _, o := range outcomes {
		if o == "failed" {
			failed++
		}
	}
	ratio := float64(failed) / float64(len(outcomes))
	return ratio >= m.cfg.TighteningMinFailedRatio
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func maxIntFloor(v, floor int) int {
	if v < floor {
		return floor
	}
	return v
}

func maxFloatFloor(v, floor float64) float64 {
	if v < floor {
		return floor
	}
	return v
}
