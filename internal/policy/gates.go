package policy

import (
	"fmt"
	"time"

	"github.com/aristath/perpautopilot/internal/domain"
)

// NewsEntryGate allows entry iff the trigger is enabled, not expired, and
// every threshold is met. Each failure returns a specific human-readable
// reason.
func NewsEntryGate(cfg NewsEntryConfig, expr domain.Expression, now time.Time) (bool, string) {
	t := expr.News
	if t == nil || !t.Enabled {
		return false, "news trigger not enabled"
	}

	nowMs := now.UnixMilli()
	if t.ExpiresAtMs <= nowMs {
		return false, "expired"
	}
	if t.Novelty < cfg.MinNovelty {
		return false, fmt.Sprintf("novelty %.2f below minimum %.2f", t.Novelty, cfg.MinNovelty)
	}
	if t.Confirmation < cfg.MinConfirm {
		return false, fmt.Sprintf("confirmation %.2f below minimum %.2f", t.Confirmation, cfg.MinConfirm)
	}
	if t.Liquidity < cfg.MinLiquidity {
		return false, fmt.Sprintf("liquidity %.2f below minimum %.2f", t.Liquidity, cfg.MinLiquidity)
	}
	if t.Volatility < cfg.MinVolatility {
		return false, fmt.Sprintf("volatility %.2f below minimum %.2f", t.Volatility, cfg.MinVolatility)
	}
	if len(distinctSources(t.Sources)) < cfg.MinSourceCount {
		return false, fmt.Sprintf("source count %d below minimum %d", len(distinctSources(t.Sources)), cfg.MinSourceCount)
	}

	return true, ""
}

func distinctSources(sources []string) []string {
	seen := make(map[string]bool, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// regimeCompatibility is the fixed regime/signal-class compatibility matrix.
var regimeCompatibility = map[domain.MarketRegime]map[domain.SignalClass]bool{
	domain.RegimeTrending: {
		domain.SignalClassMomentumBreakout:   true,
		domain.SignalClassNewsEvent:          true,
		domain.SignalClassLiquidationCascade: true,
	},
	domain.RegimeChoppy: {
		domain.SignalClassMeanReversion: true,
		domain.SignalClassNewsEvent:     true,
	},
	domain.RegimeHighVolExpansion: {
		domain.SignalClassLiquidationCascade: true,
		domain.SignalClassNewsEvent:          true,
		domain.SignalClassMomentumBreakout:   true,
	},
	domain.RegimeLowVolCompression: {
		domain.SignalClassMeanReversion: true,
		domain.SignalClassNewsEvent:     true,
	},
}

// SignalClassAllowed looks up the regime-compatibility matrix.
func SignalClassAllowed(signalClass domain.SignalClass, regime domain.MarketRegime) bool {
	return regimeCompatibility[regime][signalClass]
}
