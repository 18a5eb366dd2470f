// Package clock provides the time source used for scheduling decisions.
//
// Everything that compares against "now" (eligibility, lock staleness,
// backoff) reads the time through a Clock, so tests can freeze it.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock tells the time, and sleeps.
type Clock interface {
	// Now returns the current time in UTC.
	Now() time.Time
	// Sleep blocks for d, or until ctx is done, in which case ctx.Err() is
	// returned.
	Sleep(ctx context.Context, d time.Duration) error
}

// Default is the wall clock.
var Default Clock = Real{}

// Real reads the system clock. Times are truncated to the microsecond, which
// is the precision Postgres stores.
type Real struct{}

func (Real) Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Frozen is a Clock that only moves when told to. Sleep advances the frozen
// time instead of blocking.
type Frozen struct {
	mu    sync.Mutex
	now   time.Time
	slept time.Duration
}

// Freeze returns a Frozen clock set to t.
func Freeze(t time.Time) *Frozen {
	return &Frozen{now: t.UTC().Truncate(time.Microsecond)}
}

func (f *Frozen) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Set moves the clock to t.
func (f *Frozen) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t.UTC().Truncate(time.Microsecond)
}

// Advance moves the clock forward by d.
func (f *Frozen) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func (f *Frozen) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if d > 0 {
		f.now = f.now.Add(d)
		f.slept += d
	}
	return nil
}

// Slept returns the total duration passed to Sleep.
func (f *Frozen) Slept() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slept
}

// Ago returns the time d before c.Now().
func Ago(c Clock, d time.Duration) time.Time {
	return c.Now().Add(-d)
}

// FromNow returns the time d after c.Now().
func FromNow(c Clock, d time.Duration) time.Time {
	return c.Now().Add(d)
}
