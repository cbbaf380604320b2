package policy

import (
	"strings"

	"github.com/aristath/perpautopilot/internal/domain"
)

// ClassifyRegime buckets the cluster's price-vol primitive into a market
// regime, evaluated in order.
func ClassifyRegime(cluster domain.SignalCluster) domain.MarketRegime {
	pv, ok := cluster.PriceVol()
	if !ok {
		return domain.RegimeChoppy
	}
	trend := pv.Metrics["trend"]
	volZ := pv.Metrics["volZ"]

	switch {
	case volZ >= 1.0:
		return domain.RegimeHighVolExpansion
	case volZ <= -0.5:
		return domain.RegimeLowVolCompression
	case abs(trend) >= 0.015:
		return domain.RegimeTrending
	default:
		return domain.RegimeChoppy
	}
}

// ClassifySignal returns the expression's explicit signal class if set,
// else infers one from a hypothesis-id substring match, else unknown. The
// substring inference is a legacy fallback, not the primary mechanism.
func ClassifySignal(expr domain.Expression) domain.SignalClass {
	if expr.SignalClass != "" {
		return expr.SignalClass
	}

	id := expr.HypothesisID
	switch {
	case strings.Contains(id, "_revert"):
		return domain.SignalClassMeanReversion
	case strings.Contains(id, "_reflex"):
		return domain.SignalClassLiquidationCascade
	case strings.Contains(id, "_trend"):
		return domain.SignalClassMomentumBreakout
	}

	if expr.News != nil && expr.News.Enabled {
		return domain.SignalClassNewsEvent
	}

	return domain.SignalClassUnknown
}

// VolatilityBucket classifies |volZ| on the cluster's price-vol primitive.
func VolatilityBucket(cluster domain.SignalCluster) domain.VolatilityBucket {
	pv, ok := cluster.PriceVol()
	if !ok {
		return domain.VolatilityMedium
	}
	volZ := abs(pv.Metrics["volZ"])
	switch {
	case volZ >= 1.2:
		return domain.VolatilityHigh
	case volZ <= 0.4:
		return domain.VolatilityLow
	default:
		return domain.VolatilityMedium
	}
}

// LiquidityBucket classifies the cluster's orderflow trade count.
func LiquidityBucket(cluster domain.SignalCluster) domain.LiquidityBucket {
	of, ok := cluster.Orderflow()
	if !ok {
		return domain.LiquidityNormal
	}
	count := of.Metrics["tradeCount"]
	switch {
	case count >= 18:
		return domain.LiquidityDeep
	case count <= 4:
		return domain.LiquidityThin
	default:
		return domain.LiquidityNormal
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
