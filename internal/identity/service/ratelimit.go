package service

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RotationLimiter throttles refresh rotation per subject so a buggy or
// hostile client retry loop cannot hammer the revocation ledger.
type RotationLimiter struct {
	limiters sync.Map // map[string]*rate.Limiter
	rate     rate.Limit
	burst    int

	mu          sync.Mutex
	lastCleanup time.Time
}

// NewRotationLimiter allows requestsPerWindow rotations per window for
// each subject, with the whole allowance available as a burst.
func NewRotationLimiter(requestsPerWindow int, window time.Duration) *RotationLimiter {
	if requestsPerWindow <= 0 {
		requestsPerWindow = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &RotationLimiter{
		rate:        rate.Limit(float64(requestsPerWindow) / window.Seconds()),
		burst:       requestsPerWindow,
		lastCleanup: time.Now(),
	}
}

// Allow reports whether the subject may rotate now.
func (l *RotationLimiter) Allow(subjectID string) bool {
	return l.limiterFor(subjectID).Allow()
}

func (l *RotationLimiter) limiterFor(subjectID string) *rate.Limiter {
	if limiter, ok := l.limiters.Load(subjectID); ok {
		return limiter.(*rate.Limiter)
	}

	limiter := rate.NewLimiter(l.rate, l.burst)
	actual, _ := l.limiters.LoadOrStore(subjectID, limiter)

	l.maybeCleanup()

	return actual.(*rate.Limiter)
}

// maybeCleanup drops limiters whose buckets are full again, since a full
// bucket means the subject has been idle for at least a window.
func (l *RotationLimiter) maybeCleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if time.Since(l.lastCleanup) < 5*time.Minute {
		return
	}
	l.lastCleanup = time.Now()

	l.limiters.Range(func(key, value any) bool {
		if value.(*rate.Limiter).Tokens() >= float64(l.burst) {
			l.limiters.Delete(key)
		}
		return true
	})
}
