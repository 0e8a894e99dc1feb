package mw

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/MrSnakeDoc/smartmark/internal/utils"
)

type RateLimitConfig struct {
	Burst             int
	RefillPerIPPerMin int
	MaxEntries        int           // past this many tracked clients, expired buckets are dropped eagerly
	SweepInterval     time.Duration // how often idle buckets are evicted
	IdleTTL           time.Duration // a client unseen this long starts over with a full bucket
	TrustProxy        bool          // resolve IP from proxy headers when true
}

type bucket struct {
	mu      sync.Mutex
	tokens  float64
	lastRef time.Time
}

// take refills b for the time elapsed since the last call, then spends one token.
func (b *bucket) take(now time.Time, rate, capacity float64) (ok bool, remaining int, retryAfterSec int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if elapsed := now.Sub(b.lastRef).Seconds(); elapsed > 0 {
		b.tokens = math.Min(capacity, b.tokens+elapsed*rate)
		b.lastRef = now
	}

	if b.tokens >= 1.0 {
		b.tokens--
		return true, int(math.Floor(b.tokens)), 0
	}

	sec := int(math.Ceil((1.0 - b.tokens) / rate))
	if sec < 1 {
		sec = 1
	}
	return false, 0, sec
}

type limiter struct {
	cfg      RateLimitConfig
	rate     float64
	capacity float64
	buckets  *cache.Cache
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Minute
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 15 * time.Minute
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.RefillPerIPPerMin < 1 {
		cfg.RefillPerIPPerMin = 1
	}
	return &limiter{
		cfg:      cfg,
		rate:     float64(cfg.RefillPerIPPerMin) / 60.0,
		capacity: float64(cfg.Burst),
		buckets:  cache.New(cfg.IdleTTL, cfg.SweepInterval),
	}
}

// bucketFor returns key's bucket and pushes its expiry out by IdleTTL.
func (l *limiter) bucketFor(key string, now time.Time) *bucket {
	if l.cfg.MaxEntries > 0 && l.buckets.ItemCount() >= l.cfg.MaxEntries {
		l.buckets.DeleteExpired()
	}
	fresh := &bucket{tokens: l.capacity, lastRef: now}
	if err := l.buckets.Add(key, fresh, cache.DefaultExpiration); err == nil {
		return fresh
	}
	if x, found := l.buckets.Get(key); found {
		b := x.(*bucket)
		l.buckets.Set(key, b, cache.DefaultExpiration)
		return b
	}
	// evicted between Add and Get
	l.buckets.Set(key, fresh, cache.DefaultExpiration)
	return fresh
}

func (l *limiter) allow(key string, now time.Time) (bool, int, int) {
	return l.bucketFor(key, now).take(now, l.rate, l.capacity)
}

// RateLimit is a per-client-IP token bucket. Sign-in endpoints sit behind it.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	l := newLimiter(cfg)
	limitStr := strconv.Itoa(l.cfg.Burst)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, remaining, retry := l.allow(utils.ClientIP(r, l.cfg.TrustProxy), time.Now())

			w.Header().Set("X-RateLimit-Limit", limitStr)
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
