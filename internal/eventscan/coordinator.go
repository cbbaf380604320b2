// Package eventscan debounces external-event-driven scans between
// scheduler ticks: a per-key cooldown gate with no persistence, since
// losing cooldown state on restart is acceptable by design.
package eventscan

import (
	"sync"
	"time"

	"github.com/aristath/perpautopilot/internal/clock"
)

// Decision is the outcome of Evaluate.
type Decision string

const (
	Disabled      Decision = "disabled"
	BelowMinItems Decision = "below_min_items"
	Cooldown      Decision = "cooldown"
	Allowed       Decision = "allowed"
)

// Config constructs a Coordinator.
type Config struct {
	Enabled    bool
	CooldownMs int64
}

// Coordinator tracks independent cooldowns per event key: "enqueue only if
// interval elapsed" per key, the same shape as a per-symbol cooldown map.
type Coordinator struct {
	cfg   Config
	clock clock.Clock

	mu       sync.Mutex
	lastFire map[string]time.Time
}

// New constructs a Coordinator.
func New(cfg Config, c clock.Clock) *Coordinator {
	return &Coordinator{cfg: cfg, clock: c, lastFire: make(map[string]time.Time)}
}

// EvaluateInput is the input to Evaluate.
type EvaluateInput struct {
	EventKey string
	ItemCount int
	MinItems  int
	Now       *time.Time // optional override, else the injected clock
}

// Result carries the decision and, for Cooldown, the remaining wait.
type Result struct {
	Decision Decision
	WaitMs   int64
}

// Evaluate returns the coordinator's decision without recording a fire.
func (c *Coordinator) Evaluate(in EvaluateInput) Result {
	if !c.cfg.Enabled {
		return Result{Decision: Disabled}
	}
	if in.ItemCount < in.MinItems {
		return Result{Decision: BelowMinItems}
	}

	now := c.now(in.Now)

	c.mu.Lock()
	last, ok := c.lastFire[in.EventKey]
	c.mu.Unlock()

	if ok {
		elapsed := now.Sub(last).Milliseconds()
		if elapsed < c.cfg.CooldownMs {
			wait := c.cfg.CooldownMs - elapsed
			if wait <= 0 {
				wait = 1
			}
			return Result{Decision: Cooldown, WaitMs: wait}
		}
	}

	return Result{Decision: Allowed}
}

// MarkTriggered records the fire time for eventKey.
func (c *Coordinator) MarkTriggered(eventKey string, now *time.Time) {
	t := c.now(now)
	c.mu.Lock()
	c.lastFire[eventKey] = t
	c.mu.Unlock()
}

// TryAcquire is the fused evaluate-and-mark: if Evaluate would return
// Allowed, the fire time is recorded atomically before returning.
func (c *Coordinator) TryAcquire(in EvaluateInput) Result {
	if !c.cfg.Enabled {
		return Result{Decision: Disabled}
	}
	if in.ItemCount < in.MinItems {
		return Result{Decision: BelowMinItems}
	}

	now := c.now(in.Now)

	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.lastFire[in.EventKey]
	if ok {
		elapsed := now.Sub(last).Milliseconds()
		if elapsed < c.cfg.CooldownMs {
			wait := c.cfg.CooldownMs - elapsed
			if wait <= 0 {
				wait = 1
			}
			return Result{Decision: Cooldown, WaitMs: wait}
		}
	}

	c.lastFire[in.EventKey] = now
	return Result{Decision: Allowed}
}

func (c *Coordinator) now(override *time.Time) time.Time {
	if override != nil {
		return *override
	}
	return c.clock.Now()
}
