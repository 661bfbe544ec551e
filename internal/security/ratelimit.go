package security

import (
	"sync"
	"time"
)

// RateLimiter is a sliding window limiter keyed by client
type RateLimiter struct {
	windows  map[string]*window
	mu       sync.Mutex
	limit    int
	span     time.Duration
	burstMax int
	stop     chan struct{}
	once     sync.Once
}

type window struct {
	requests []time.Time
	lastSeen time.Time
}

// RateLimitConfig holds rate limiter configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the maximum number of requests allowed per window
	RequestsPerWindow int
	// WindowDuration is the length of the sliding window
	WindowDuration time.Duration
	// BurstMax caps the requests accepted within any one second
	BurstMax int
}

// DefaultRateLimitConfig returns default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
		BurstMax:          20,
	}
}

// NewRateLimiter creates a rate limiter. Call Stop to end its cleanup loop.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	d := DefaultRateLimitConfig()
	if config.RequestsPerWindow <= 0 {
		config.RequestsPerWindow = d.RequestsPerWindow
	}
	if config.WindowDuration <= 0 {
		config.WindowDuration = d.WindowDuration
	}
	if config.BurstMax <= 0 {
		config.BurstMax = config.RequestsPerWindow
	}

	rl := &RateLimiter{
		windows:  make(map[string]*window),
		limit:    config.RequestsPerWindow,
		span:     config.WindowDuration,
		burstMax: config.BurstMax,
		stop:     make(chan struct{}),
	}
	go rl.cleanup(5 * time.Minute)
	return rl
}

// Allow records a request for key and reports whether it is within the limits
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	w, ok := rl.windows[key]
	if !ok {
		w = &window{requests: make([]time.Time, 0, rl.limit)}
		rl.windows[key] = w
	}
	w.lastSeen = now
	w.requests = prune(w.requests, now.Add(-rl.span))

	if len(w.requests) >= rl.limit {
		return false
	}

	burst := 0
	for _, t := range w.requests {
		if t.After(now.Add(-time.Second)) {
			burst++
		}
	}
	if burst >= rl.burstMax {
		return false
	}

	w.requests = append(w.requests, now)
	return true
}

// prune drops the leading requests made before cutoff. Requests are appended
// in time order so the slice stays sorted.
func prune(requests []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(requests) && !requests[i].After(cutoff) {
		i++
	}
	return requests[i:]
}

// Remaining returns the number of requests key may still make in the window
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok {
		return rl.limit
	}
	count := len(prune(w.requests, time.Now().Add(-rl.span)))
	return max(rl.limit-count, 0)
}

// ResetAt returns when the oldest request of key leaves the window
func (rl *RateLimiter) ResetAt(key string) time.Time {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	w, ok := rl.windows[key]
	if !ok || len(w.requests) == 0 {
		return time.Now()
	}
	return w.requests[0].Add(rl.span)
}

// Reset forgets the requests of key
func (rl *RateLimiter) Reset(key string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.windows, key)
}

// Stop ends the cleanup loop
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

// sweep drops windows idle for more than two spans
func (rl *RateLimiter) sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-2 * rl.span)
	removed := 0
	for key, w := range rl.windows {
		if w.lastSeen.Before(cutoff) {
			delete(rl.windows, key)
			removed++
		}
	}
	return removed
}

// RateLimitInfo is reported in the X-RateLimit-* response headers
type RateLimitInfo struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Info returns the limit state of key
func (rl *RateLimiter) Info(key string) RateLimitInfo {
	return RateLimitInfo{
		Limit:     rl.limit,
		Remaining: rl.Remaining(key),
		ResetAt:   rl.ResetAt(key),
	}
}
