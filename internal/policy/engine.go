// Package policy gates trade entries: regime classification, news
// provenance, signal calibration, the daily trade cap, observation mode,
// and fractional Kelly position sizing.
package policy

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aristath/perpautopilot/internal/clock"
	"github.com/aristath/perpautopilot/internal/domain"
	"github.com/aristath/perpautopilot/internal/store"
	"github.com/aristath/perpautopilot/pkg/formulas"
)

// Engine is the store-backed gate runner. Pure classification/sizing
// functions (ClassifyRegime, FractionalKelly, ...) need no store access and
// are free functions instead; Engine exists only for the gates that must
// read policy/journal state.
type Engine struct {
	policy *store.PolicyRepository
	clock  clock.Clock
	cfg    Config

	fullAuto atomic.Bool
}

// NewEngine constructs an Engine. fullAuto starts at cfg.FullAuto and can be
// flipped live via SetFullAuto (the server's full-auto toggle).
func NewEngine(policy *store.PolicyRepository, c clock.Clock, cfg Config) *Engine {
	e := &Engine{policy: policy, clock: c, cfg: cfg}
	e.fullAuto.Store(cfg.FullAuto)
	return e
}

// SetFullAuto flips live execution on or off without restarting the
// process. Disabling it does not touch observation_only_until; it is a
// separate, instantly reversible switch.
func (e *Engine) SetFullAuto(v bool) {
	e.fullAuto.Store(v)
}

// FullAuto reports the current live-execution switch state.
func (e *Engine) FullAuto() bool {
	return e.fullAuto.Load()
}

// GlobalTradeGateInput is the per-candidate input to GlobalTradeGate.
type GlobalTradeGateInput struct {
	SessionDate string
	SignalClass domain.SignalClass
	Regime      domain.MarketRegime
}

// GlobalTradeGate runs the layered entry gate: autonomy disabled bypass,
// observation mode, daily cap, signal-performance guard, then
// regime-compatibility.
func (e *Engine) GlobalTradeGate(in GlobalTradeGateInput) (bool, string) {
	if !e.cfg.AutonomyEnabled {
		return true, ""
	}

	now := e.clock.Now()

	state, err := e.policy.Get(in.SessionDate)
	if err != nil {
		return false, fmt.Sprintf("policy state unavailable: %v", err)
	}

	if state.ObservationOnlyUntil != nil && state.ObservationOnlyUntil.After(now) {
		return false, fmt.Sprintf("observation mode active until %s", clock.ISOMilli(*state.ObservationOnlyUntil))
	}

	maxTrades := e.cfg.MaxTradesPerDay
	if state.MaxTradesPerScanOverride != nil {
		maxTrades = *state.MaxTradesPerScanOverride
	}
	todayCount, err := e.policy.CountExecutedTradesToday(in.SessionDate)
	if err != nil {
		return false, fmt.Sprintf("trade count unavailable: %v", err)
	}
	if todayCount >= maxTrades {
		return false, fmt.Sprintf("daily trade cap reached (%d/%d)", todayCount, maxTrades)
	}

	samples, err := e.policy.ResolvedSamplesForSignalClass(string(in.SignalClass))
	if err != nil {
		return false, fmt.Sprintf("signal performance samples unavailable: %v", err)
	}
	if len(samples) >= e.cfg.SignalPerformance.MinSamples {
		rs := make([]float64, len(samples))
		for i, s := range samples {
			rs[i] = s.CapturedR
		}
		sharpeLike := sharpeLikeRatio(rs)
		if sharpeLike < e.cfg.SignalPerformance.MinSharpe {
			return false, fmt.Sprintf("signal class %s Sharpe-like ratio %.2f below minimum %.2f", in.SignalClass, sharpeLike, e.cfg.SignalPerformance.MinSharpe)
		}

		if drawdown := formulas.CalculateMaxDrawdown(equityCurve(rs)); drawdown != nil && *drawdown > e.cfg.SignalPerformance.MaxDrawdown {
			return false, fmt.Sprintf("signal class %s cumulative drawdown %.2f exceeds maximum %.2f", in.SignalClass, *drawdown, e.cfg.SignalPerformance.MaxDrawdown)
		}
	}

	if !SignalClassAllowed(in.SignalClass, in.Regime) {
		return false, fmt.Sprintf("signal class %s disallowed in regime %s", in.SignalClass, in.Regime)
	}

	return true, ""
}

// sharpeLikeRatio is mean/stddev of per-trade captured-R multiples, via
// formulas.CalculateSharpeRatio with a zero risk-free rate and
// periodsPerYear=1: captured-R samples are one per closed trade, not one per
// fixed calendar period, so there is nothing to annualize against.
func sharpeLikeRatio(rs []float64) float64 {
	sharpe := formulas.CalculateSharpeRatio(rs, 0, 1)
	if sharpe == nil {
		return 0
	}
	return *sharpe
}

// equityCurve turns a captured-R series into a cumulative equity curve
// (starting at 1.0) so formulas.CalculateMaxDrawdown, built for price
// series, can measure the worst peak-to-trough run across a signal class's
// trade history instead of just its mean/stddev.
func equityCurve(rs []float64) []float64 {
	curve := make([]float64, len(rs)+1)
	curve[0] = 1.0
	for i, r := range rs {
		curve[i+1] = curve[i] * (1 + r)
	}
	return curve
}

// SessionDateFor formats t as the session-date key (UTC calendar date)
// policy state and the daily cap are keyed by.
func SessionDateFor(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
