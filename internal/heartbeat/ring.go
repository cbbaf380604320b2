package heartbeat

import "github.com/aristath/perpautopilot/internal/domain"

// Ring is a bounded FIFO of per-symbol heartbeat ticks, clamped to
// [10, 1000].
type Ring struct {
	capacity int
	ticks    []domain.HeartbeatTick
}

// NewRing constructs a Ring with the given capacity, clamped to the
// package's fixed bounds.
func NewRing(capacity int) *Ring {
	if capacity < 10 {
		capacity = 10
	}
	if capacity > 1000 {
		capacity = 1000
	}
	return &Ring{capacity: capacity}
}

// Append adds a tick, evicting the oldest if at capacity.
func (r *Ring) Append(t domain.HeartbeatTick) {
	r.ticks = append(r.ticks, t)
	if len(r.ticks) > r.capacity {
		r.ticks = r.ticks[len(r.ticks)-r.capacity:]
	}
}

// Ticks returns the buffer's contents, oldest first.
func (r *Ring) Ticks() []domain.HeartbeatTick {
	return r.ticks
}

// Latest returns the most recent tick and true, or the zero value and
// false if empty.
func (r *Ring) Latest() (domain.HeartbeatTick, bool) {
	if len(r.ticks) == 0 {
		return domain.HeartbeatTick{}, false
	}
	return r.ticks[len(r.ticks)-1], true
}

// Len returns the number of ticks currently held.
func (r *Ring) Len() int {
	return len(r.ticks)
}
