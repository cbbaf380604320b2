// Package paperbook implements a deterministic in-process exchange
// simulator used whenever execution.mode is "paper".
package paperbook

// Config holds the matching book's economics.
type Config struct {
	FeeRate      float64
	StartingCash float64
}

// DefaultConfig returns the book's named default fee rate (5 bps) and a
// reasonable starting cash balance, documented here rather than silently
// hardcoded at each call site.
func DefaultConfig() Config {
	return Config{
		FeeRate:      0.0005,
		StartingCash: 10000,
	}
}
