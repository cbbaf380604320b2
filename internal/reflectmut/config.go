// Package reflectmut implements the reflective policy mutator: it reads
// recent trade-journal history and writes tightened policy overrides back
// to the same autonomy_policy_state row the policy engine reads from.
package reflectmut

// Config holds the mutation rule parameters and the base values each
// override tightens from when no override yet exists.
type Config struct {
	ObservationWindow   int
	ObservationMinFalse int

	TighteningWindow         int
	TighteningMinCount       int
	TighteningMinFailedRatio float64

	MinEdgeStep    float64
	MinEdgeMin     float64
	MinEdgeMax     float64
	MinEdgeDefault float64

	MaxTradesPerScanFloor   int
	MaxTradesPerScanDefault int

	LeverageCapFloor   float64
	LeverageCapDefault float64

	ScanIntervalSeconds int
}

// DefaultConfig returns the mutator's baseline defaults. MinEdgeDefault and
// the per-scan trade/leverage defaults aren't fed by any other component
// (only hyperliquid.maxLeverage feeds the leverage-cap base); reasonable
// starting points within each override's clamp range are used and
// documented in DESIGN.md.
func DefaultConfig() Config {
	return Config{
		ObservationWindow:   5,
		ObservationMinFalse: 3,

		TighteningWindow:         10,
		TighteningMinCount:       6,
		TighteningMinFailedRatio: 0.5,

		MinEdgeStep:    0.01,
		MinEdgeMin:     0.03,
		MinEdgeMax:     0.20,
		MinEdgeDefault: 0.05,

		MaxTradesPerScanFloor:   1,
		MaxTradesPerScanDefault: 5,

		LeverageCapFloor:   1,
		LeverageCapDefault: 5,

		ScanIntervalSeconds: 900,
	}
}
