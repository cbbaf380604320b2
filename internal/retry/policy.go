// Package retry provides a single reusable exponential-backoff policy used
// uniformly across the heartbeat's exchange/mid pollers and any other
// transient-transport collaborator call.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"time"
)

// Classifier reports whether an error is worth retrying. Transport timeouts
// and transient aborts are retryable; non-retryable transport (HTTP error
// status) and programming errors are not.
type Classifier func(err error) bool

// Policy is a record describing a capped exponential backoff with jitter.
// Grounded on the lease-heartbeat renewal loop's capped-backoff closure
// (see DESIGN.md).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction of the computed delay to randomize, e.g. 0.2
	Classify    Classifier
}

// Default matches the heartbeat poller spec: initial 200ms, factor 2, capped
// at 5s.
func Default() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Jitter:      0.2,
		Classify:    AlwaysRetryable,
	}
}

// AlwaysRetryable treats every non-nil error as retryable.
func AlwaysRetryable(error) bool { return true }

// ErrExhausted is wrapped around the last observed error once MaxAttempts
// have all failed.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Do invokes fn until it succeeds, a non-retryable error is classified, the
// attempt budget is exhausted, or ctx is cancelled. It sleeps with capped
// exponential backoff and jitter between attempts.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	classify := p.Classify
	if classify == nil {
		classify = AlwaysRetryable
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !classify(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.delayFor(attempt)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return errors.Join(ErrExhausted, lastErr)
}

func (p Policy) delayFor(attempt int) time.Duration {
	base := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if max := float64(p.MaxDelay); max > 0 && base > max {
		base = max
	}
	if p.Jitter > 0 {
		jitterRange := base * p.Jitter
		base += (rand.Float64()*2 - 1) * jitterRange
		if base < 0 {
			base = 0
		}
	}
	return time.Duration(base)
}
