package rates

import "time"

// Window is a fixed-window counter. The zero value starts a new window on
// the first call to Allow.
type Window struct {
	Start time.Time
	Count int
}

// Allow counts one event at now against a limit of max per window. When the
// limit is exceeded it reports how long until the window resets. A zero
// window or non-positive max allows everything.
func (w *Window) Allow(now time.Time, window time.Duration, max int) (ok bool, retryAfter time.Duration) {
	if window <= 0 || max <= 0 {
		return true, 0
	}
	if w.Start.IsZero() || now.Sub(w.Start) >= window {
		w.Start = now
		w.Count = 0
	}
	w.Count++
	if w.Count <= max {
		return true, 0
	}
	return false, w.Start.Add(window).Sub(now)
}
