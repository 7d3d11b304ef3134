// Package ratelimit provides a three-window sliding rate limiter that
// gates invocations of the external extraction step.
//
// Three caps (per-minute, per-hour, per-day) are evaluated
// independently over a shared in-memory timestamp log. A request is
// allowed only while every window has headroom; the caps themselves
// are inclusive, so the (cap+1)-th call within a window is the first
// one blocked. State lives for the process lifetime only and is never
// persisted.
//
// Limiters are plain instances meant to be owned by whatever component
// performs extraction calls. Tests construct their own.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

// Default caps for the three windows.
const (
	DefaultPerMinute = 10
	DefaultPerHour   = 100
	DefaultPerDay    = 500
)

// Window durations.
const (
	minuteWindow = time.Minute
	hourWindow   = time.Hour
	dayWindow    = 24 * time.Hour
)

// Caps holds the three independent window caps. A zero field in a
// Configure call means "keep the current value".
type Caps struct {
	PerMinute int `json:"per_minute" yaml:"per_minute"`
	PerHour   int `json:"per_hour" yaml:"per_hour"`
	PerDay    int `json:"per_day" yaml:"per_day"`
}

// DefaultCaps returns the default limiter configuration.
func DefaultCaps() Caps {
	return Caps{PerMinute: DefaultPerMinute, PerHour: DefaultPerHour, PerDay: DefaultPerDay}
}

// Status is the result of a limit check. Remaining counts are reported
// for all three windows regardless of which window (if any) is
// saturated; being blocked by the minute cap does not distort the
// hour or day numbers.
type Status struct {
	Allowed         bool `json:"allowed"`
	RemainingMinute int  `json:"remaining_minute"`
	RemainingHour   int  `json:"remaining_hour"`
	RemainingDay    int  `json:"remaining_day"`
	// RetryAfterSeconds is set only when not allowed: seconds until the
	// soonest saturated window frees a slot.
	RetryAfterSeconds int64 `json:"retry_after_seconds,omitempty"`
	// Per-window seconds until the window clears; zero for windows that
	// are not saturated.
	MinuteClearsSeconds int64 `json:"minute_clears_seconds,omitempty"`
	HourClearsSeconds   int64 `json:"hour_clears_seconds,omitempty"`
	DayClearsSeconds    int64 `json:"day_clears_seconds,omitempty"`
}

// Limiter is a sliding-window limiter over an append-only timestamp
// log. Safe for concurrent use; the mobile host is single-threaded,
// but check-then-record from multiple goroutines would otherwise race.
type Limiter struct {
	mu   sync.Mutex
	caps Caps
	log  []time.Time
	now  func() time.Time
}

// New creates a Limiter with the given caps; zero fields fall back to
// defaults.
func New(caps Caps) *Limiter {
	l := &Limiter{caps: DefaultCaps(), now: time.Now}
	l.Configure(caps)
	return l
}

// Configure merges the provided caps over the current configuration.
// Zero or negative fields keep their prior values.
func (l *Limiter) Configure(caps Caps) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if caps.PerMinute > 0 {
		l.caps.PerMinute = caps.PerMinute
	}
	if caps.PerHour > 0 {
		l.caps.PerHour = caps.PerHour
	}
	if caps.PerDay > 0 {
		l.caps.PerDay = caps.PerDay
	}
}

// Caps returns the current configuration.
func (l *Limiter) Caps() Caps {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.caps
}

// CheckLimit computes the current status without mutating state.
func (l *Limiter) CheckLimit() Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	minCount, minOldest := l.windowCount(now, minuteWindow)
	hourCount, hourOldest := l.windowCount(now, hourWindow)
	dayCount, dayOldest := l.windowCount(now, dayWindow)

	st := Status{
		RemainingMinute: remaining(l.caps.PerMinute, minCount),
		RemainingHour:   remaining(l.caps.PerHour, hourCount),
		RemainingDay:    remaining(l.caps.PerDay, dayCount),
	}
	st.Allowed = st.RemainingMinute > 0 && st.RemainingHour > 0 && st.RemainingDay > 0
	if st.Allowed {
		return st
	}

	// For each saturated window, the slot frees when its oldest
	// in-window timestamp ages out. Retry-after is the soonest of those.
	retry := int64(math.MaxInt64)
	if st.RemainingMinute == 0 {
		st.MinuteClearsSeconds = secondsUntilClear(now, minOldest, minuteWindow)
		retry = min64(retry, st.MinuteClearsSeconds)
	}
	if st.RemainingHour == 0 {
		st.HourClearsSeconds = secondsUntilClear(now, hourOldest, hourWindow)
		retry = min64(retry, st.HourClearsSeconds)
	}
	if st.RemainingDay == 0 {
		st.DayClearsSeconds = secondsUntilClear(now, dayOldest, dayWindow)
		retry = min64(retry, st.DayClearsSeconds)
	}
	st.RetryAfterSeconds = retry
	return st
}

// RecordRequest appends the current time to the log. Entries older than
// the day window are pruned here; the hour and minute windows are
// subsumed by it, so one prune covers all three.
func (l *Limiter) RecordRequest() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-dayWindow)
	kept := l.log[:0]
	for _, t := range l.log {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.log = append(kept, now)
}

// Reset clears the timestamp log. Test and admin hook.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.log = nil
}

// windowCount returns how many logged timestamps fall inside the
// trailing window, and the oldest of them.
func (l *Limiter) windowCount(now time.Time, window time.Duration) (count int, oldest time.Time) {
	cutoff := now.Add(-window)
	for _, t := range l.log {
		if t.After(cutoff) {
			count++
			if oldest.IsZero() || t.Before(oldest) {
				oldest = t
			}
		}
	}
	return count, oldest
}

func remaining(cap, count int) int {
	r := cap - count
	if r < 0 {
		return 0
	}
	return r
}

// secondsUntilClear is the time until the oldest in-window timestamp
// ages out, rounded up so callers who sleep the full value always land
// outside the window.
func secondsUntilClear(now, oldest time.Time, window time.Duration) int64 {
	if oldest.IsZero() {
		return 0
	}
	d := oldest.Add(window).Sub(now)
	if d <= 0 {
		return 0
	}
	return int64(math.Ceil(d.Seconds()))
}

func min64(a, b int64) int64 {
	if b < a {
		return b
	}
	return a
}
