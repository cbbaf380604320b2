// Package heartbeat polls live positions on a cadence, evaluates
// multi-signal risk triggers, and applies hard circuit breakers plus a
// rate-limited advisory decision layer.
package heartbeat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/perpautopilot/internal/clock"
	"github.com/aristath/perpautopilot/internal/collaborators"
	"github.com/aristath/perpautopilot/internal/domain"
	"github.com/aristath/perpautopilot/internal/retry"
	"github.com/aristath/perpautopilot/internal/store"
)

const (
	liquidationEmergencyPct = 2.0  // strict <
	pnlEmergencyPctOfEquity = -5.0 // strict <

	// configuredVenue is the only venue this supervisor's trigger
	// thresholds and circuit breakers are calibrated for.
	configuredVenue = "hyperliquid"
)

// Supervisor owns the ring buffers and per-(symbol,trigger) cooldown state
// for one process; these are transient in-memory indices that can be
// rebuilt from the store on restart.
type Supervisor struct {
	cfg       Config
	positions collaborators.PositionProvider
	mids      collaborators.MarketDataClient
	executor  collaborators.Executor
	oracle    collaborators.AdvisoryOracle
	journal   *store.JournalRepository
	clock     clock.Clock
	backoff   retry.Policy
	log       zerolog.Logger

	mu               sync.Mutex
	rings            map[string]*Ring
	triggerCooldowns map[string]map[string]time.Time
	lastSymbols      map[string]bool
	oracleCalls      []time.Time

	alertRaiser func(reason, severity, summary string)
}

// SetAlertRaiser wires an optional alert hook, invoked on a data-poll
// failure or a hard circuit-breaker close. Left nil, the supervisor only
// journals these outcomes, which is sufficient for tests.
func (s *Supervisor) SetAlertRaiser(f func(reason, severity, summary string)) {
	s.alertRaiser = f
}

func (s *Supervisor) raise(reason, severity, summary string) {
	if s.alertRaiser != nil {
		s.alertRaiser(reason, severity, summary)
	}
}

// New constructs a Supervisor.
func New(cfg Config, positions collaborators.PositionProvider, mids collaborators.MarketDataClient, executor collaborators.Executor, oracle collaborators.AdvisoryOracle, journal *store.JournalRepository, c clock.Clock, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		cfg:              cfg,
		positions:        positions,
		mids:             mids,
		executor:         executor,
		oracle:           oracle,
		journal:          journal,
		clock:            c,
		backoff:          retry.Default(),
		log:              log.With().Str("component", "heartbeat").Logger(),
		rings:            make(map[string]*Ring),
		triggerCooldowns: make(map[string]map[string]time.Time),
		lastSymbols:      make(map[string]bool),
	}
}

// Name satisfies scheduler.Job.
func (s *Supervisor) Name() string { return "heartbeat" }

// Run satisfies scheduler.Job; it is Tick under a different name so the
// supervisor can be registered directly with the job scheduler.
func (s *Supervisor) Run(ctx context.Context) error {
	return s.Tick(ctx)
}

// Tick runs one poll-evaluate-act cycle over every open position.
func (s *Supervisor) Tick(ctx context.Context) error {
	if !s.cfg.Enabled || s.cfg.ExecutionMode != "live" || s.cfg.Provider != configuredVenue {
		return nil
	}

	positions, err := s.positions.GetOpenPositions(ctx)
	if err != nil {
		s.journalSkipped("", "data_poll_failed", "failed to fetch open positions: "+err.Error())
		s.raise("heartbeat_data_poll_failed", "warning", "failed to fetch open positions: "+err.Error())
		return nil
	}

	var mids map[string]float64
	pollErr := s.backoff.Do(ctx, func(ctx context.Context) error {
		m, err := s.mids.GetAllMids(ctx)
		if err != nil {
			return err
		}
		mids = m
		return nil
	})
	if pollErr != nil {
		s.journalSkipped("", "data_poll_failed", "failed to fetch mids: "+pollErr.Error())
		s.raise("heartbeat_data_poll_failed", "warning", "failed to fetch mids: "+pollErr.Error())
		return nil
	}

	now := s.clock.Now()
	seen := make(map[string]bool, len(positions))

	for _, pos := range positions {
		seen[pos.Symbol] = true
		s.processPosition(ctx, pos, mids, now)
	}

	s.mu.Lock()
	for symbol := range s.lastSymbols {
		if !seen[symbol] {
			s.handlePositionClosed(symbol, now)
		}
	}
	s.lastSymbols = seen
	s.mu.Unlock()

	return nil
}

func (s *Supervisor) processPosition(ctx context.Context, pos collaborators.Position, mids map[string]float64, now time.Time) {
	mark := pos.MarkPrice
	if m, ok := mids[pos.Symbol]; ok {
		mark = m
	}

	tick := domain.HeartbeatTick{
		Symbol:             pos.Symbol,
		Timestamp:          now,
		MarkPrice:          mark,
		UnrealizedPnL:      pos.UnrealizedPnL,
		LiquidationDistPct: pos.LiquidationDistPct,
		FundingRate:        pos.FundingRate,
		StopPrice:          pos.StopPrice,
		TakeProfitPrice:    pos.TakeProfitPrice,
		Side:               pos.Side,
		Size:               pos.Size,
		AccountEquity:      pos.AccountEquity,
	}

	s.mu.Lock()
	ring, ok := s.rings[pos.Symbol]
	if !ok {
		ring = NewRing(s.cfg.RollingBufferSize)
		s.rings[pos.Symbol] = ring
	}
	ring.Append(tick)
	cooldowns, ok := s.triggerCooldowns[pos.Symbol]
	if !ok {
		cooldowns = make(map[string]time.Time)
		s.triggerCooldowns[pos.Symbol] = cooldowns
	}
	ticks := append([]domain.HeartbeatTick(nil), ring.Ticks()...)
	s.mu.Unlock()

	triggers := EvaluateTriggers(ticks, s.cfg.Triggers, now, cooldowns)

	// Layer 1: hard circuit breakers, no advisory consultation.
	if pos.LiquidationDistPct < liquidationEmergencyPct {
		s.emergencyClose(ctx, pos, mark, append(triggers, TriggerLiquidationProximity), now)
		return
	}
	pnlPctOfEquity := 0.0
	if pos.AccountEquity != 0 {
		pnlPctOfEquity = pos.UnrealizedPnL / pos.AccountEquity * 100
	}
	if pnlPctOfEquity < pnlEmergencyPctOfEquity {
		s.emergencyClose(ctx, pos, mark, append(triggers, TriggerPnLShift), now)
		return
	}

	if len(triggers) == 0 {
		return
	}

	// Layer 2: rate-limited advisory layer.
	if !s.allowOracleCall(now) {
		s.journalAction(pos, domain.HeartbeatAction{Kind: domain.ActionHold}, mark, domain.OutcomeSkipped, triggers, "advisory rate limit exceeded", now)
		return
	}

	action, err := s.consultOracle(ctx, pos, mark, triggers)
	if err != nil {
		s.journalAction(pos, domain.HeartbeatAction{Kind: domain.ActionHold}, mark, domain.OutcomeSkipped, triggers, "oracle unavailable: "+err.Error(), now)
		return
	}

	// Layer 3: action validation.
	if err := ValidateAction(action, pos.Side, mark, pos.StopPrice, pos.Size); err != nil {
		s.journalAction(pos, action, mark, domain.OutcomeRejected, triggers, err.Error(), now)
		return
	}

	// Layer 4: execution.
	s.execute(ctx, pos, action, mark, triggers, now)
}

func (s *Supervisor) allowOracleCall(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-time.Hour)
	kept := s.oracleCalls[:0]
	for _, t := range s.oracleCalls {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.oracleCalls = kept

	max := s.cfg.MaxCallsPerHour
	if max <= 0 {
		max = 20
	}
	if len(s.oracleCalls) >= max {
		return false
	}
	s.oracleCalls = append(s.oracleCalls, now)
	return true
}

func (s *Supervisor) consultOracle(ctx context.Context, pos collaborators.Position, mark float64, triggers []string) (domain.HeartbeatAction, error) {
	prompt := fmt.Sprintf("Position %s side=%s size=%.6f mark=%.6f liqDistPct=%.4f triggers=%v. Respond with a single JSON heartbeat action.",
		pos.Symbol, pos.Side, pos.Size, mark, pos.LiquidationDistPct, triggers)

	result, err := s.oracle.Complete(ctx, []collaborators.Message{{Role: "user", Content: prompt}}, collaborators.CompleteOptions{
		Temperature: 0.2,
		MaxTokens:   512,
		TimeoutMs:   30000,
	})
	if err != nil {
		return domain.HeartbeatAction{}, err
	}

	raw := collaborators.ExtractJSON(result.Content)
	if raw == "" {
		return domain.HeartbeatAction{Kind: domain.ActionHold}, nil
	}

	action, err := parseHeartbeatAction(raw)
	if err != nil {
		return domain.HeartbeatAction{Kind: domain.ActionHold}, nil
	}
	return action, nil
}

func (s *Supervisor) emergencyClose(ctx context.Context, pos collaborators.Position, mark float64, triggers []string, now time.Time) {
	action := domain.HeartbeatAction{Kind: domain.ActionCloseEntirely, Reasoning: "hard circuit breaker"}
	s.raise("heartbeat_emergency_close", "critical", fmt.Sprintf("emergency close %s: triggers=%v liqDistPct=%.4f", pos.Symbol, triggers, pos.LiquidationDistPct))
	s.execute(ctx, pos, action, mark, triggers, now)
}

func (s *Supervisor) execute(ctx context.Context, pos collaborators.Position, action domain.HeartbeatAction, mark float64, triggers []string, now time.Time) {
	decision, ok := buildDecision(pos, action, mark)
	if !ok {
		s.journalAction(pos, action, mark, domain.OutcomeOK, triggers, "", now)
		return
	}

	result, err := s.executor.Execute(ctx, pos.Symbol, decision)
	if err != nil || !result.Executed {
		msg := ""
		if err != nil {
			msg = err.Error()
		} else {
			msg = result.Message
		}
		s.journalAction(pos, action, mark, domain.OutcomeFailed, triggers, msg, now)
		return
	}

	s.journalAction(pos, action, mark, domain.OutcomeOK, triggers, result.Message, now)
}

// buildDecision returns (decision, true) if the action requires an
// exchange call, or (_, false) for hold/no-op actions.
func buildDecision(pos collaborators.Position, action domain.HeartbeatAction, mark float64) (collaborators.Decision, bool) {
	inverse := domain.SideSell
	if pos.Side == domain.SideSell {
		inverse = domain.SideBuy
	}

	switch action.Kind {
	case domain.ActionHold:
		return collaborators.Decision{}, false

	case domain.ActionCloseEntirely:
		return collaborators.Decision{
			Symbol: pos.Symbol, Side: inverse, Size: pos.Size,
			OrderType: domain.OrderTypeMarket, ReduceOnly: true, Reasoning: action.Reasoning,
		}, true

	case domain.ActionTakePartialProfit:
		size := action.Size
		if size <= 0 {
			size = pos.Size * action.Fraction
		}
		if size > pos.Size {
			size = pos.Size
		}
		return collaborators.Decision{
			Symbol: pos.Symbol, Side: inverse, Size: size,
			OrderType: domain.OrderTypeMarket, ReduceOnly: true, Reasoning: action.Reasoning,
		}, true

	case domain.ActionTightenStop:
		price := action.NewStopPrice
		return collaborators.Decision{
			Symbol: pos.Symbol, Side: inverse, Size: pos.Size, Price: &price,
			OrderType: domain.OrderTypeLimit, ReduceOnly: true, Reasoning: action.Reasoning,
		}, true

	case domain.ActionAdjustTakeProfit:
		price := action.NewTakeProfitPrice
		return collaborators.Decision{
			Symbol: pos.Symbol, Side: inverse, Size: pos.Size, Price: &price,
			OrderType: domain.OrderTypeLimit, ReduceOnly: true, Reasoning: action.Reasoning,
		}, true

	default:
		return collaborators.Decision{}, false
	}
}

func (s *Supervisor) handlePositionClosed(symbol string, now time.Time) {
	s.journal.Append(store.JournalEntryInput{
		Symbol: symbol, Outcome: string(domain.OutcomeOK),
		Triggers: []string{TriggerPositionClosed}, CreatedAt: now,
	})
	delete(s.rings, symbol)
	delete(s.triggerCooldowns, symbol)
}

func (s *Supervisor) journalSkipped(symbol, reason, detail string) {
	now := s.clock.Now()
	s.journal.Append(store.JournalEntryInput{
		Symbol: symbol, Outcome: string(domain.OutcomeSkipped),
		Triggers: []string{reason}, Reason: detail, CreatedAt: now,
	})
}

func (s *Supervisor) journalAction(pos collaborators.Position, action domain.HeartbeatAction, mark float64, outcome domain.Outcome, triggers []string, reason string, now time.Time) {
	s.journal.Append(store.JournalEntryInput{
		Symbol: pos.Symbol, Side: string(pos.Side), Size: pos.Size,
		OrderType: string(domain.OrderTypeMarket), ReduceOnly: true, MarkPrice: mark,
		Outcome: string(outcome), Triggers: triggers, Reason: reason, CreatedAt: now,
	})
}
