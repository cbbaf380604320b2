package heartbeat

import (
	"math"
	"time"

	"github.com/aristath/perpautopilot/internal/domain"
	"github.com/aristath/perpautopilot/pkg/formulas"
)

// Trigger names, the fixed set the supervisor evaluates each tick.
const (
	TriggerPnLShift             = "pnl_shift"
	TriggerApproachingStop      = "approaching_stop"
	TriggerApproachingTP        = "approaching_tp"
	TriggerLiquidationProximity = "liquidation_proximity"
	TriggerFundingSpike         = "funding_spike"
	TriggerVolatilitySpike      = "volatility_spike"
	TriggerTimeCeiling          = "time_ceiling"
	TriggerPositionClosed       = "position_closed"
)

// approachingBandPct is how close mark must be to stop/tp, as a fraction
// of the mark price, to count as "approaching": the trigger fires when
// |mark - stop| (or |mark - tp|) is at most 15% of mark.
const approachingBandPct = 0.15

// EvaluateTriggers emits the fixed trigger-name set for one symbol's ring,
// respecting a per-(symbol,trigger) cooldown carried in lastFired. openedAt
// is the first tick's timestamp in the ring, used as the position's
// observed-age proxy for time_ceiling.
func EvaluateTriggers(ticks []domain.HeartbeatTick, cfg TriggerConfig, now time.Time, lastFired map[string]time.Time) []string {
	if len(ticks) == 0 {
		return nil
	}

	latest := ticks[len(ticks)-1]
	var fired []string

	fire := func(name string) {
		cooldown := time.Duration(cfg.TriggerCooldownSeconds) * time.Second
		if cooldown <= 0 {
			cooldown = 180 * time.Second
		}
		if last, ok := lastFired[name]; ok && now.Sub(last) < cooldown {
			return
		}
		lastFired[name] = now
		fired = append(fired, name)
	}

	if pnlShiftPct(ticks) > cfg.PnlShiftPct {
		fire(TriggerPnLShift)
	}

	if latest.StopPrice > 0 {
		if approachingBand(latest.Side, latest.MarkPrice, latest.StopPrice) {
			fire(TriggerApproachingStop)
		}
	}
	if latest.TakeProfitPrice > 0 {
		if approachingBand(latest.Side, latest.MarkPrice, latest.TakeProfitPrice) {
			fire(TriggerApproachingTP)
		}
	}

	if latest.LiquidationDistPct <= cfg.LiquidationProximityPct {
		fire(TriggerLiquidationProximity)
	}

	if math.Abs(latest.FundingRate) > cfg.FundingSpikePct {
		fire(TriggerFundingSpike)
	}

	if volatilitySpike(ticks, cfg) {
		fire(TriggerVolatilitySpike)
	}

	openedAt := ticks[0].Timestamp
	if now.Sub(openedAt).Minutes() > cfg.TimeCeilingMinutes {
		fire(TriggerTimeCeiling)
	}

	return fired
}

// pnlShiftPct is the largest absolute swing in unrealized PnL observed
// within the ring, as a percentage of account equity.
func pnlShiftPct(ticks []domain.HeartbeatTick) float64 {
	if len(ticks) < 2 {
		return 0
	}
	minPnl, maxPnl := ticks[0].UnrealizedPnL, ticks[0].UnrealizedPnL
	equity := ticks[len(ticks)-1].AccountEquity
	for _, t := range ticks {
		if t.UnrealizedPnL < minPnl {
			minPnl = t.UnrealizedPnL
		}
		if t.UnrealizedPnL > maxPnl {
			maxPnl = t.UnrealizedPnL
		}
	}
	if equity == 0 {
		return 0
	}
	return (maxPnl - minPnl) / equity * 100
}

// volatilitySpike reports whether the rolling stdev of mark-price returns
// over the last volatilitySpikeWindowTicks exceeds volatilitySpikePct.
func volatilitySpike(ticks []domain.HeartbeatTick, cfg TriggerConfig) bool {
	window := cfg.VolatilitySpikeWindowTicks
	if window <= 0 {
		window = 20
	}
	if len(ticks) < 2 {
		return false
	}
	if len(ticks) > window {
		ticks = ticks[len(ticks)-window:]
	}

	prices := make([]float64, len(ticks))
	for i, t := range ticks {
		prices[i] = t.MarkPrice
	}
	returns := formulas.CalculateReturns(prices)
	if len(returns) < 2 {
		return false
	}
	stdDev := formulas.StdDev(returns) * 100
	return stdDev > cfg.VolatilitySpikePct
}

func approachingBand(side domain.Side, mark, target float64) bool {
	dist := math.Abs(mark - target)
	if dist == 0 {
		return true
	}
	band := math.Abs(mark) * approachingBandPct
	return dist <= band
}
