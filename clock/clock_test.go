package clock

import (
	"context"
	"testing"
	"time"

	"github.com/flusio/minz-worker/test"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFrozenSleepAdvances(t *testing.T) {
	t.Parallel()
	c := Freeze(epoch)
	err := c.Sleep(context.Background(), 3*time.Second)
	test.AssertNotError(t, err, "sleeping")
	test.AssertTimeEquals(t, c.Now(), epoch.Add(3*time.Second))
	test.AssertEquals(t, c.Slept(), 3*time.Second)
}

func TestFrozenSleepCanceled(t *testing.T) {
	t.Parallel()
	c := Freeze(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	test.AssertErrorIs(t, c.Sleep(ctx, time.Second), context.Canceled)
	test.AssertTimeEquals(t, c.Now(), epoch)
}

func TestOffsets(t *testing.T) {
	t.Parallel()
	c := Freeze(epoch)
	test.AssertTimeEquals(t, Ago(c, time.Hour), epoch.Add(-time.Hour))
	test.AssertTimeEquals(t, FromNow(c, time.Hour), epoch.Add(time.Hour))
	c.Advance(time.Minute)
	test.AssertTimeEquals(t, c.Now(), epoch.Add(time.Minute))
}

func TestRealSleepReturnsOnCancel(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	err := Real{}.Sleep(ctx, 5*time.Second)
	test.AssertErrorIs(t, err, context.Canceled)
	test.Assert(t, time.Since(start) < 2*time.Second, "Sleep did not return on cancel")
}

func TestRealNowIsUTC(t *testing.T) {
	t.Parallel()
	now := Real{}.Now()
	test.AssertEquals(t, now.Location(), time.UTC)
	test.AssertEquals(t, now.Nanosecond()%1000, 0)
}
