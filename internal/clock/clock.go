// Package clock abstracts time for the components that stamp, expire or
// schedule things (integrity timestamps, credential expiry, login lockout,
// periodic sync). Production code injects Real(); tests inject Fake() and
// move time forward explicitly.
package clock

import "time"

// Clock is the subset of the time package the client depends on.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a Ticker delivering ticks every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker wraps a periodic timer. Read ticks from C and call Stop when done.
// C has capacity 1; a slow consumer drops ticks instead of queueing them.
type Ticker struct {
	C <-chan time.Time

	stopFunc func()
}

// Stop turns off the ticker. Stop does not close C.
func (t *Ticker) Stop() { t.stopFunc() }

// NowMillis returns c.Now() as Unix milliseconds.
func NowMillis(c Clock) int64 {
	return c.Now().UnixMilli()
}
