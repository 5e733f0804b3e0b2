// Package ratelimit caps how many translations a single user can request.
package ratelimit

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const defaultIdleTTL = 2 * time.Hour

// buckets holds the minute and hour token buckets of one user.
type buckets struct {
	minute *rate.Limiter
	hour   *rate.Limiter
}

// Limiter enforces per-key limits per minute and per hour. Idle keys are
// evicted by the cache. Safe for concurrent use; a nil Limiter allows all.
type Limiter struct {
	perMinute int
	perHour   int

	mu      sync.Mutex
	entries *cache.Cache
	now     func() time.Time
}

// New creates a limiter. A limit <= 0 disables that window.
func New(perMinute, perHour int) *Limiter {
	return NewWithTTL(perMinute, perHour, defaultIdleTTL)
}

// NewWithTTL is New with an explicit idle eviction window.
func NewWithTTL(perMinute, perHour int, idle time.Duration) *Limiter {
	if idle <= 0 {
		idle = defaultIdleTTL
	}
	return &Limiter{
		perMinute: perMinute,
		perHour:   perHour,
		entries:   cache.New(idle, idle/2),
		now:       time.Now,
	}
}

func windowLimiter(limit int, window time.Duration) *rate.Limiter {
	if limit <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
}

func (l *Limiter) get(key string) *buckets {
	l.mu.Lock()
	defer l.mu.Unlock()

	if v, ok := l.entries.Get(key); ok {
		b := v.(*buckets)
		l.entries.SetDefault(key, b)
		return b
	}
	b := &buckets{
		minute: windowLimiter(l.perMinute, time.Minute),
		hour:   windowLimiter(l.perHour, time.Hour),
	}
	l.entries.SetDefault(key, b)
	return b
}

// Allow consumes one token from both windows of key, or none if either
// window is exhausted.
func (l *Limiter) Allow(key string) bool {
	if l == nil || (l.perMinute <= 0 && l.perHour <= 0) {
		return true
	}
	b := l.get(key)
	now := l.now()

	minute := b.minute.ReserveN(now, 1)
	if !minute.OK() || minute.DelayFrom(now) > 0 {
		minute.CancelAt(now)
		return false
	}
	hour := b.hour.ReserveN(now, 1)
	if !hour.OK() || hour.DelayFrom(now) > 0 {
		hour.CancelAt(now)
		minute.CancelAt(now)
		return false
	}
	return true
}

// Tracked returns the number of keys currently holding buckets.
func (l *Limiter) Tracked() int {
	if l == nil {
		return 0
	}
	return l.entries.ItemCount()
}
