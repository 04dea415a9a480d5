package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/faultline-hq/faultline/internal/config"
)

type RateLimitTier string

const (
	TierPublic RateLimitTier = "public"
	TierIngest RateLimitTier = "ingest"
	TierLogin  RateLimitTier = "login"
)

// RateLimiter hands out per-tier, per-client token buckets. Routes opt
// in by wrapping their handler with Limit; tiers with no configured
// budget pass everything through.
type RateLimiter struct {
	store *limiterStore
}

func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	return &RateLimiter{store: newLimiterStore(cfg)}
}

func (l *RateLimiter) Limit(tier RateLimitTier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			limiter := l.store.limiter(tier, clientKey(r))
			if limiter != nil && !limiter.Allow() {
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type limiterStore struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	limits   map[RateLimitTier]limitSpec
}

type limitSpec struct {
	burst    int
	interval time.Duration
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(cfg config.RateLimitConfig) *limiterStore {
	limits := make(map[RateLimitTier]limitSpec)
	if cfg.PublicPerMinute > 0 {
		limits[TierPublic] = limitSpec{burst: cfg.PublicPerMinute, interval: time.Minute / time.Duration(cfg.PublicPerMinute)}
	}
	if cfg.IngestPerMinute > 0 {
		limits[TierIngest] = limitSpec{burst: cfg.IngestPerMinute, interval: time.Minute / time.Duration(cfg.IngestPerMinute)}
	}
	if cfg.LoginPerHour > 0 {
		limits[TierLogin] = limitSpec{burst: cfg.LoginPerHour, interval: time.Hour / time.Duration(cfg.LoginPerHour)}
	}

	store := &limiterStore{
		limiters: make(map[string]*limiterEntry),
		limits:   limits,
	}
	go store.cleanupLoop()
	return store
}

func (s *limiterStore) limiter(tier RateLimitTier, key string) *rate.Limiter {
	spec, ok := s.limits[tier]
	if !ok {
		return nil
	}

	lookup := string(tier) + ":" + key

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.limiters[lookup]; ok {
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	limiter := rate.NewLimiter(rate.Every(spec.interval), spec.burst)
	s.limiters[lookup] = &limiterEntry{limiter: limiter, lastSeen: time.Now()}
	return limiter
}

// cleanupLoop drops limiter entries idle for 15 minutes so the map does
// not grow without bound.
func (s *limiterStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		now := time.Now()
		for key, entry := range s.limiters {
			if now.Sub(entry.lastSeen) > 15*time.Minute {
				delete(s.limiters, key)
			}
		}
		s.mu.Unlock()
	}
}

func clientKey(r *http.Request) string {
	if r == nil {
		return ""
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
