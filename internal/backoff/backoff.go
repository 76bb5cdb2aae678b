// Package backoff provides the delay strategies and clock used by the
// job poll loop. Strategies are stateless and safe for concurrent use.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before poll attempt n (1-indexed).
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Constant always returns the same delay.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant delay strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ConstantWithJitter spreads a constant interval over
// [Interval/2, Interval*3/2] so many pollers do not hit the remote
// service in lockstep.
type ConstantWithJitter struct {
	Interval time.Duration
}

// NewConstantWithJitter creates a jittered constant strategy.
func NewConstantWithJitter(interval time.Duration) *ConstantWithJitter {
	return &ConstantWithJitter{Interval: interval}
}

// Delay returns a random duration in [Interval/2, Interval*3/2].
func (c *ConstantWithJitter) Delay(_ int) time.Duration {
	half := float64(c.Interval) / 2
	return time.Duration(half + rand.Float64()*float64(c.Interval)) //nolint:gosec // jitter intentionally uses non-crypto rand
}

// Exponential doubles the delay each attempt.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential delay strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// Clock abstracts time for the poll loop so timeout behavior is
// testable without real delays.
type Clock interface {
	Now() time.Time
	// Sleep waits for d or until ctx is done, returning ctx.Err() in
	// the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the real clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
