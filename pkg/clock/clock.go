// Package clock abstracts the time source used by the countdown engine.
//
// Production code uses Real(), which wraps the standard time package and
// therefore carries Go's monotonic clock reading. Tests inject a Fake clock
// and advance it by hand.
package clock

import (
	"math"
	"time"
)

// Clock provides the two time operations the engine needs.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a Ticker that delivers the current time every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker wraps time.Ticker functionality.
type Ticker interface {
	// C returns the channel on which ticks are delivered.
	C() <-chan time.Time

	// Stop turns off the ticker. After Stop, no more ticks will be sent.
	Stop()
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) Ticker {
	return &realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (r *realTicker) C() <-chan time.Time { return r.t.C }
func (r *realTicker) Stop()               { r.t.Stop() }

// Remaining returns how long is left until deadline as seen from now,
// clamped at zero.
func Remaining(now, deadline time.Time) time.Duration {
	d := deadline.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Millis converts a duration to whole milliseconds.
func Millis(d time.Duration) int64 { return d.Milliseconds() }

// maxMillis is the largest millisecond count a time.Duration can hold.
const maxMillis = math.MaxInt64 / int64(time.Millisecond)

// FromMillis converts signed milliseconds to a duration, saturating at the
// bounds of time.Duration instead of wrapping.
func FromMillis(ms int64) time.Duration {
	switch {
	case ms > maxMillis:
		ms = maxMillis
	case ms < -maxMillis:
		ms = -maxMillis
	}
	return time.Duration(ms) * time.Millisecond
}
