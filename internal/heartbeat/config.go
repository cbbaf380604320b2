package heartbeat

// TriggerConfig holds the supervisor's trigger thresholds and cooldown.
type TriggerConfig struct {
	PnlShiftPct                float64
	LiquidationProximityPct    float64
	FundingSpikePct            float64
	VolatilitySpikeWindowTicks int
	VolatilitySpikePct         float64
	TimeCeilingMinutes         float64
	TriggerCooldownSeconds     int
}

// Config is the full heartbeat supervisor configuration.
type Config struct {
	Enabled            bool
	TickIntervalSeconds int
	RollingBufferSize  int
	Triggers           TriggerConfig
	MaxCallsPerHour    int
	ExecutionMode      string // paper|live|webhook
	Provider           string // configured venue name
}

// DefaultConfig returns the supervisor's baseline defaults plus reasonable
// trigger thresholds (the exact numeric defaults for trigger thresholds
// are left to the operator; only the structurally significant ones,
// cooldown, buffer size, rate limit, are fixed here).
func DefaultConfig() Config {
	return Config{
		Enabled:             false,
		TickIntervalSeconds: 30,
		RollingBufferSize:   60,
		Triggers: TriggerConfig{
			PnlShiftPct:                5,
			LiquidationProximityPct:    2,
			FundingSpikePct:            0.05,
			VolatilitySpikeWindowTicks: 20,
			VolatilitySpikePct:         2,
			TimeCeilingMinutes:         240,
			TriggerCooldownSeconds:     180,
		},
		MaxCallsPerHour: 20,
		ExecutionMode:   "paper",
		Provider:        "hyperliquid",
	}
}
