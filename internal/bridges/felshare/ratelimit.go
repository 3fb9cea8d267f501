package felshare

import (
	"sync"
	"time"
)

// Publish limiter bounds.
const (
	DefaultMinPublishInterval = time.Second
	MinPublishIntervalFloor   = 200 * time.Millisecond
	MinPublishIntervalCeil    = 10 * time.Second

	DefaultMaxBurst = 3
	MaxBurstFloor   = 1
	MaxBurstCeil    = 20
)

// RateLimiter enforces a minimum spacing between publishes and a cap of
// maxBurst publishes in any window of minInterval*maxBurst.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type RateLimiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	maxBurst    int
	window      time.Duration
	sent        []time.Time
}

// NewRateLimiter clamps its arguments to 0.2-10s and 1-20 sends.
func NewRateLimiter(minInterval time.Duration, maxBurst int) *RateLimiter {
	minInterval = max(MinPublishIntervalFloor, min(minInterval, MinPublishIntervalCeil))
	maxBurst = clampInt(maxBurst, MaxBurstFloor, MaxBurstCeil)
	return &RateLimiter{
		minInterval: minInterval,
		maxBurst:    maxBurst,
		window:      minInterval * time.Duration(maxBurst),
		sent:        make([]time.Time, 0, maxBurst),
	}
}

// Delay returns how long to wait from now before the next send satisfies
// both constraints. Zero means a send is allowed immediately.
func (r *RateLimiter) Delay(now time.Time) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(now)
	if len(r.sent) == 0 {
		return 0
	}

	wait := r.sent[len(r.sent)-1].Add(r.minInterval).Sub(now)
	if len(r.sent) >= r.maxBurst {
		oldest := r.sent[len(r.sent)-r.maxBurst]
		wait = max(wait, oldest.Add(r.window).Sub(now))
	}
	return max(wait, 0)
}

// Record notes a send at now.
func (r *RateLimiter) Record(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.prune(now)
	r.sent = append(r.sent, now)
	if len(r.sent) > r.maxBurst {
		r.sent = append(r.sent[:0], r.sent[len(r.sent)-r.maxBurst:]...)
	}
}

// prune drops sends that fell out of the sliding window. Caller holds mu.
func (r *RateLimiter) prune(now time.Time) {
	cutoff := now.Add(-r.window)
	i := 0
	for i < len(r.sent) && !r.sent[i].After(cutoff) {
		i++
	}
	if i > 0 {
		r.sent = append(r.sent[:0], r.sent[i:]...)
	}
}
