package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/spanwire/internal/infrastructure/config"
	"github.com/GriffinCanCode/spanwire/internal/infrastructure/tracing"
)

const defaultIdleTTL = 3 * time.Minute

// RateLimitConfig defines rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
	// IdleTTL drops a client's limiter after this long without requests.
	IdleTTL time.Duration
}

// DefaultRateLimitConfig returns production-ready rate limit configuration.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: 100,
		Burst:             200,
		IdleTTL:           defaultIdleTTL,
	}
}

// RateLimitConfigFrom converts the loaded configuration.
func RateLimitConfigFrom(cfg config.RateLimitConfig) RateLimitConfig {
	return RateLimitConfig{
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
		IdleTTL:           cfg.IdleTTL,
	}
}

// RateLimitFrom picks the per-IP or global limiter for the configured scope.
func RateLimitFrom(cfg config.RateLimitConfig) gin.HandlerFunc {
	if cfg.Scope == config.RateLimitScopeGlobal {
		return GlobalRateLimit(RateLimitConfigFrom(cfg))
	}
	return RateLimit(RateLimitConfigFrom(cfg))
}

// RateLimit creates a per-IP rate limiting middleware.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	store := newLimiterStore(cfg)

	return func(c *gin.Context) {
		if !store.get(c.ClientIP(), time.Now()).Allow() {
			rejectRateLimited(c)
			return
		}
		c.Next()
	}
}

// GlobalRateLimit creates a global rate limiting middleware.
func GlobalRateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	limiter := rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)

	return func(c *gin.Context) {
		if !limiter.Allow() {
			rejectRateLimited(c)
			return
		}
		c.Next()
	}
}

// rejectRateLimited aborts with 429 and marks the request span.
func rejectRateLimited(c *gin.Context) {
	if span := tracing.SpanFromGin(c); span != nil {
		span.SetTag("rate_limited", true)
	}
	body := gin.H{"error": "rate limit exceeded"}
	if id := GetRequestID(c); id != "" {
		body["request_id"] = id
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, body)
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// limiterStore keeps one limiter per client key. Entries idle for longer
// than ttl are swept at most once per ttl.
type limiterStore struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	clients   map[string]*clientLimiter
}

func newLimiterStore(cfg RateLimitConfig) *limiterStore {
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = defaultIdleTTL
	}
	return &limiterStore{
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		ttl:     ttl,
		clients: make(map[string]*clientLimiter),
	}
}

func (s *limiterStore) get(key string, now time.Time) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastSweep.IsZero() {
		s.lastSweep = now
	} else if now.Sub(s.lastSweep) >= s.ttl {
		for k, cl := range s.clients {
			if now.Sub(cl.lastSeen) >= s.ttl {
				delete(s.clients, k)
			}
		}
		s.lastSweep = now
	}

	cl, ok := s.clients[key]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.clients[key] = cl
	}
	cl.lastSeen = now
	return cl.limiter
}

func (s *limiterStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
