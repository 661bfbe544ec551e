// Package wait provides the bounded polling used by element and page waits.
package wait

import (
	"strconv"
	"time"
)

// DefaultInterval is the pause between predicate evaluations
const DefaultInterval = 50 * time.Millisecond

// Until evaluates predicate immediately and then every interval until it returns
// true or timeout has elapsed. The returned elapsed time never exceeds timeout.
func Until(timeout, interval time.Duration, predicate func() bool) (time.Duration, bool) {
	if interval <= 0 {
		interval = DefaultInterval
	}

	start := time.Now()
	for {
		if predicate() {
			return clamp(time.Since(start), timeout), true
		}

		elapsed := time.Since(start)
		if elapsed >= timeout {
			return clamp(elapsed, timeout), false
		}

		pause := interval
		if remaining := timeout - elapsed; remaining < pause {
			pause = remaining
		}
		time.Sleep(pause)
	}
}

func clamp(elapsed, timeout time.Duration) time.Duration {
	if timeout >= 0 && elapsed > timeout {
		return timeout
	}
	return elapsed
}

// Seconds renders d as seconds for report text, e.g. "5.0" or "0.25"
func Seconds(d time.Duration) string {
	s := d.Seconds()
	if s == float64(int64(s)) {
		return strconv.FormatFloat(s, 'f', 1, 64)
	}
	return strconv.FormatFloat(s, 'f', -1, 64)
}
