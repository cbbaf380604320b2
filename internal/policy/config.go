package policy

// Config is the typed, defaults-resolved configuration record for every
// policy-engine knob, resolved once at startup by internal/config instead
// of each call site reaching for os.Getenv directly.
type Config struct {
	AutonomyEnabled bool
	FullAuto        bool
	MaxTradesPerDay int
	ScanIntervalSeconds int
	ProbeRiskFraction   float64

	NewsEntry NewsEntryConfig

	SignalPerformance SignalPerformanceConfig

	MaxKellyFraction float64
}

// NewsEntryConfig holds the NewsEntryGate thresholds.
type NewsEntryConfig struct {
	MinNovelty     float64
	MinConfirm     float64
	MinLiquidity   float64
	MinVolatility  float64
	MinSourceCount int
}

// SignalPerformanceConfig holds the signal-performance guard knobs.
type SignalPerformanceConfig struct {
	MinSamples  int
	MinSharpe   float64
	MaxDrawdown float64 // peak-to-trough fraction of the signal class's cumulative captured-R curve
}

// DefaultConfig returns the policy engine's baseline defaults.
func DefaultConfig() Config {
	return Config{
		AutonomyEnabled:     false,
		FullAuto:            false,
		MaxTradesPerDay:     25,
		ScanIntervalSeconds: 900,
		ProbeRiskFraction:   0.005,
		NewsEntry: NewsEntryConfig{
			MinNovelty:     0.6,
			MinConfirm:     0.55,
			MinLiquidity:   0.4,
			MinVolatility:  0.25,
			MinSourceCount: 1,
		},
		SignalPerformance: SignalPerformanceConfig{
			MinSamples:  8,
			MinSharpe:   0.8,
			MaxDrawdown: 0.35,
		},
		MaxKellyFraction: 0.25,
	}
}
