package ratelimit

import (
	"sync"
	"time"
)

// Limiter enforces a minimum spacing between outbound upstream calls.
// One instance is shared by every caller that talks to the provider.
type Limiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	lastCall    time.Time
}

func New(minInterval time.Duration) *Limiter {
	return &Limiter{minInterval: minInterval}
}

// Acquire blocks until at least minInterval has elapsed since the previous
// call, then records the current time as the new last-call timestamp. The
// mutex is held across the whole check-sleep-update sequence so two callers
// can never both observe a stale timestamp and issue within the window.
func (l *Limiter) Acquire() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.lastCall.IsZero() {
		if elapsed := time.Since(l.lastCall); elapsed < l.minInterval {
			time.Sleep(l.minInterval - elapsed)
		}
	}
	l.lastCall = time.Now()
}
