package httpadapter

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// writeLimiter holds one token bucket per organization. Buckets idle for
// longer than idleTTL are dropped on the next sweep.
type writeLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	buckets   map[string]*bucket
	lastSweep time.Time
	now       func() time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

const idleTTL = 10 * time.Minute

func newWriteLimiter(rps float64, burst int) *writeLimiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &writeLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		buckets: map[string]*bucket{},
		now:     time.Now,
	}
}

func (l *writeLimiter) allow(orgID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSweep) > idleTTL {
		for id, b := range l.buckets {
			if now.Sub(b.seen) > idleTTL {
				delete(l.buckets, id)
			}
		}
		l.lastSweep = now
	}
	b, ok := l.buckets[orgID]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[orgID] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}
