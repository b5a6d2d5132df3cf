package membership

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// defaultMaxKeys bounds how many per-key buckets a limiterSet tracks.
const defaultMaxKeys = 10000

type keyedLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// limiterSet hands out one token bucket per key. Buckets idle long enough to
// have refilled are swept; when the set is still full, unseen keys share a
// single overflow bucket until room frees up.
type limiterSet struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	maxKeys  int
	idle     time.Duration
	now      func() time.Time
	limiters map[string]*keyedLimiter
	overflow *rate.Limiter
}

func newLimiterSet(perMinute, burst int) *limiterSet {
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}
	if burst < 1 {
		burst = 1
	}
	var idle time.Duration
	if limit != rate.Inf {
		idle = time.Duration(float64(burst) / float64(limit) * float64(time.Second))
	}
	return &limiterSet{
		limit:    limit,
		burst:    burst,
		maxKeys:  defaultMaxKeys,
		idle:     idle,
		now:      time.Now,
		limiters: make(map[string]*keyedLimiter),
		overflow: rate.NewLimiter(limit, burst),
	}
}

func (l *limiterSet) Allow(key string) bool {
	l.mu.Lock()
	now := l.now()
	e, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= l.maxKeys {
			l.sweep(now)
		}
		if len(l.limiters) >= l.maxKeys {
			l.mu.Unlock()
			return l.overflow.AllowN(now, 1)
		}
		e = &keyedLimiter{lim: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = e
	}
	e.lastSeen = now
	l.mu.Unlock()
	return e.lim.AllowN(now, 1)
}

// sweep drops buckets untouched for longer than a full refill. Such a bucket
// is indistinguishable from a fresh one.
func (l *limiterSet) sweep(now time.Time) {
	for k, e := range l.limiters {
		if now.Sub(e.lastSeen) >= l.idle {
			delete(l.limiters, k)
		}
	}
}

func (l *limiterSet) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}
