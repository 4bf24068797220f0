package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/atlet99/metric-alert-engine/internal/errors"
	"github.com/atlet99/metric-alert-engine/internal/monitoring"
)

const (
	defaultRate  = 20.0
	defaultBurst = 40

	// idle limiters are evicted once the table grows past maxLimiters
	maxLimiters  = 10000
	limiterIdle  = 10 * time.Minute
	globalKey    = "global"
	keySeparator = "|"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// HTTPRateLimiter provides token-bucket rate limiting for HTTP requests
type HTTPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	config   RateLimiterConfig
	now      func() time.Time
}

// RateLimiterConfig holds configuration for rate limiting
type RateLimiterConfig struct {
	Rate        float64 // requests per second
	Burst       int
	PerIP       bool
	PerEndpoint bool
}

// NewHTTPRateLimiter creates a rate limiter; zero values take the defaults
func NewHTTPRateLimiter(config RateLimiterConfig) *HTTPRateLimiter {
	if config.Rate <= 0 {
		config.Rate = defaultRate
	}
	if config.Burst <= 0 {
		config.Burst = defaultBurst
	}
	return &HTTPRateLimiter{
		limiters: make(map[string]*limiterEntry),
		config:   config,
		now:      time.Now,
	}
}

// limiterKey combines the route pattern and client IP as configured
func (rl *HTTPRateLimiter) limiterKey(r *http.Request) string {
	key := globalKey
	if rl.config.PerEndpoint {
		key = monitoring.RouteLabel(r)
	}
	if rl.config.PerIP {
		key += keySeparator + clientIP(r)
	}
	return key
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then RemoteAddr
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (rl *HTTPRateLimiter) getOrCreateLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if entry, ok := rl.limiters[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	if len(rl.limiters) >= maxLimiters {
		rl.evictIdleLocked(now)
	}
	entry := &limiterEntry{
		limiter:  rate.NewLimiter(rate.Limit(rl.config.Rate), rl.config.Burst),
		lastSeen: now,
	}
	rl.limiters[key] = entry
	return entry.limiter
}

func (rl *HTTPRateLimiter) evictIdleLocked(now time.Time) {
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > limiterIdle {
			delete(rl.limiters, key)
		}
	}
}

// Allow reports whether the request fits its bucket
func (rl *HTTPRateLimiter) Allow(r *http.Request) bool {
	return rl.getOrCreateLimiter(rl.limiterKey(r)).Allow()
}

// Len returns the number of tracked buckets
func (rl *HTTPRateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// RateLimitMiddleware rejects requests over the limit with RATE_LIMITED.
// It must run inside the mux so the route pattern is known.
func RateLimitMiddleware(limiter *HTTPRateLimiter, errHandler *errors.Handler,
	metrics *monitoring.PrometheusMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(r) {
				metrics.RecordRateLimitBlock(monitoring.RouteLabel(r))
				w.Header().Set("Retry-After", "1")
				errHandler.HandleError(w, r, errors.NewError(errors.ErrCodeRateLimited).
					WithMessage("Rate limit exceeded").
					Build())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
