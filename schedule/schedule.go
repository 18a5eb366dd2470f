// Package schedule computes when a job should run next: after a recurring
// job ran, or after a one-shot job failed.
//
// Frequencies are either relative modifiers ("+1 hour", "+1 day +2 hours",
// "+1 month") or cron specs ("cron:0 3 * * *", "@hourly", "@every 90m",
// "*/5 * * * *").
package schedule

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrSchedulingInvariant is returned when applying a frequency does not move
// time forward. Retrying can't help; the frequency must be fixed.
var ErrSchedulingInvariant = errors.New("schedule: frequency does not advance time")

// A Schedule returns the occurrence that follows t.
type Schedule interface {
	Next(t time.Time) time.Time
}

// Relative adds a fixed offset, plus whole years and months, to a time.
type Relative struct {
	Years  int
	Months int
	Fixed  time.Duration
}

func (r Relative) Next(t time.Time) time.Time {
	if r.Years != 0 || r.Months != 0 {
		t = t.AddDate(r.Years, r.Months, 0)
	}
	return t.Add(r.Fixed)
}

func (r Relative) calendar() bool {
	return r.Years != 0 || r.Months != 0
}

var units = map[string]time.Duration{
	"sec":       time.Second,
	"second":    time.Second,
	"min":       time.Minute,
	"minute":    time.Minute,
	"hour":      time.Hour,
	"day":       24 * time.Hour,
	"week":      7 * 24 * time.Hour,
	"fortnight": 14 * 24 * time.Hour,
	// months and years are handled by the calendar
	"month": 0,
	"year":  0,
}

var term = regexp.MustCompile(`^([+-]?)(\d+)\s*([a-z]+)$`)

var fields = regexp.MustCompile(`\s*[+-]?\d+\s*[a-z]+`)

func parseRelative(s string) (Relative, error) {
	low := strings.ToLower(strings.TrimSpace(s))
	matches := fields.FindAllStringIndex(low, -1)
	if len(matches) == 0 {
		return Relative{}, fmt.Errorf("schedule: invalid frequency %q", s)
	}
	var r Relative
	end := 0
	for _, m := range matches {
		if m[0] != end {
			return Relative{}, fmt.Errorf("schedule: invalid frequency %q", s)
		}
		end = m[1]
		parts := term.FindStringSubmatch(strings.TrimSpace(low[m[0]:m[1]]))
		if parts == nil {
			return Relative{}, fmt.Errorf("schedule: invalid frequency %q", s)
		}
		n, err := strconv.Atoi(parts[2])
		if err != nil {
			return Relative{}, fmt.Errorf("schedule: invalid frequency %q: %w", s, err)
		}
		if parts[1] == "-" {
			n = -n
		}
		unit := strings.TrimSuffix(parts[3], "s")
		d, ok := units[unit]
		if !ok {
			return Relative{}, fmt.Errorf("schedule: unknown unit %q in frequency %q", parts[3], s)
		}
		switch unit {
		case "month":
			r.Months += n
		case "year":
			r.Years += n
		default:
			r.Fixed += time.Duration(n) * d
		}
	}
	if end != len(low) {
		return Relative{}, fmt.Errorf("schedule: invalid frequency %q", s)
	}
	return r, nil
}

// Parse parses a frequency. The empty frequency is not valid here; it means
// "one-shot" and has no schedule.
func Parse(frequency string) (Schedule, error) {
	s := strings.TrimSpace(frequency)
	if s == "" {
		return nil, errors.New("schedule: frequency required")
	}
	low := strings.ToLower(s)
	if strings.HasPrefix(low, "cron:") {
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return nil, errors.New("schedule: cron spec required after 'cron:'")
		}
		return parseCron(expr)
	}
	if strings.HasPrefix(s, "@") {
		return parseCron(s)
	}
	r, err := parseRelative(s)
	if err == nil {
		return r, nil
	}
	if len(strings.Fields(s)) == 5 {
		return parseCron(s)
	}
	return nil, err
}

func parseCron(expr string) (Schedule, error) {
	sched, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("schedule: invalid cron spec %q: %w", expr, err)
	}
	return sched, nil
}

// Reschedule returns the next time a recurring job should run. Starting from
// from, the frequency is applied at least once, and until the result is
// strictly after now.
func Reschedule(from time.Time, frequency string, now time.Time) (time.Time, error) {
	sched, err := Parse(frequency)
	if err != nil {
		return time.Time{}, err
	}
	switch s := sched.(type) {
	case Relative:
		if !s.calendar() {
			return stepFixed(from, s.Fixed, now, frequency)
		}
	case cron.ConstantDelaySchedule:
		return stepFixed(from, s.Delay, now, frequency)
	case *cron.SpecSchedule:
		// Occurrences are monotonic, so the first one after max(from, now)
		// is where stepping would land.
		start := from
		if now.After(start) {
			start = now
		}
		next := s.Next(start)
		if next.IsZero() {
			return time.Time{}, fmt.Errorf("%w: %q has no occurrence after %v", ErrSchedulingInvariant, frequency, start)
		}
		return next, nil
	}
	t := from
	for {
		next := sched.Next(t)
		if !next.After(t) {
			return time.Time{}, fmt.Errorf("%w: %q moves %v to %v", ErrSchedulingInvariant, frequency, t, next)
		}
		t = next
		if t.After(now) {
			return t, nil
		}
	}
}

func stepFixed(from time.Time, d time.Duration, now time.Time, frequency string) (time.Time, error) {
	if d <= 0 {
		return time.Time{}, fmt.Errorf("%w: %q moves time by %v", ErrSchedulingInvariant, frequency, d)
	}
	k := int64(1)
	if behind := now.Sub(from); behind >= 0 {
		k = int64(behind/d) + 1
	}
	return from.Add(time.Duration(k) * d), nil
}

// Validate returns an error if frequency can't be used to reschedule a job.
// The empty frequency is valid.
func Validate(frequency string, now time.Time) error {
	if frequency == "" {
		return nil
	}
	_, err := Reschedule(now, frequency, now)
	return err
}

// the exponent overflows a time.Duration past this
const maxBackoffAttempts = 300

// RetryAt returns when a one-shot job that failed on its attempts-th attempt
// should run again: 5 + attempts^4 seconds from now.
func RetryAt(now time.Time, attempts int64) time.Time {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > maxBackoffAttempts {
		attempts = maxBackoffAttempts
	}
	secs := 5 + int64(math.Pow(float64(attempts), 4))
	return now.Add(time.Duration(secs) * time.Second)
}
