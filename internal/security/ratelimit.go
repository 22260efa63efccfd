package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// defaultRequestsPerMin bounds chat turns per user when no limit is
// configured. LLM turns are expensive; this is generous for a human.
const defaultRequestsPerMin = 30

// RateLimiter implements per-user sliding window rate limiting. Each
// user tracks timestamps of recent requests within a one minute window.
type RateLimiter struct {
	mu     sync.Mutex
	users  map[string][]time.Time
	limit  int
	window time.Duration
	now    func() time.Time
	lastGC time.Time
}

// NewRateLimiter creates a limiter allowing requestsPerMin turns per
// user. Zero uses the default; negative disables limiting.
func NewRateLimiter(requestsPerMin int) *RateLimiter {
	if requestsPerMin == 0 {
		requestsPerMin = defaultRequestsPerMin
	}
	return &RateLimiter{
		users:  make(map[string][]time.Time),
		limit:  requestsPerMin,
		window: time.Minute,
		now:    time.Now,
	}
}

// Allow records a request for the user and reports whether it fits the
// window. Returns nil if allowed, ErrRateLimited otherwise.
func (rl *RateLimiter) Allow(uid string) error {
	if rl.limit < 0 {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.maybeGC(now)

	events := evict(rl.users[uid], now.Add(-rl.window))
	if len(events) >= rl.limit {
		rl.users[uid] = events
		return ErrRateLimited
	}
	rl.users[uid] = append(events, now)
	return nil
}

// maybeGC drops users whose whole window has expired, at most once per
// window, so the map does not grow with every uid ever seen.
func (rl *RateLimiter) maybeGC(now time.Time) {
	if now.Sub(rl.lastGC) < rl.window {
		return
	}
	rl.lastGC = now
	cutoff := now.Add(-rl.window)
	for uid, events := range rl.users {
		if kept := evict(events, cutoff); len(kept) == 0 {
			delete(rl.users, uid)
		} else {
			rl.users[uid] = kept
		}
	}
}

// evict removes events before the cutoff. Events are chronological.
func evict(events []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(events) && events[i].Before(cutoff) {
		i++
	}
	return events[i:]
}
