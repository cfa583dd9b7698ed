package middleware

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/vision-stage-tracker/internal/domain"
)

// RateLimiter keeps one token bucket per client IP. Buckets live in a bounded
// LRU so an unbounded stream of clients cannot grow memory.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	clients *lru.Cache[string, *rate.Limiter]
	mu      sync.Mutex
}

// NewRateLimiter creates a rate limiter from configuration
func NewRateLimiter(cfg domain.RateLimitConfig) (*RateLimiter, error) {
	if cfg.RequestsPerSecond <= 0 {
		return nil, fmt.Errorf("requests_per_second must be positive, got %v", cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		return nil, fmt.Errorf("burst must be positive, got %d", cfg.Burst)
	}
	size := cfg.MaxClients
	if size <= 0 {
		size = 1024
	}

	clients, err := lru.New[string, *rate.Limiter](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create client cache: %w", err)
	}

	return &RateLimiter{
		limit:   rate.Limit(cfg.RequestsPerSecond),
		burst:   cfg.Burst,
		clients: clients,
	}, nil
}

// Allow consumes one token from the client's bucket
func (l *RateLimiter) Allow(client string) bool {
	return l.limiter(client).Allow()
}

// Clients returns the number of tracked clients
func (l *RateLimiter) Clients() int {
	return l.clients.Len()
}

func (l *RateLimiter) limiter(client string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.clients.Get(client); ok {
		return lim
	}
	lim := rate.NewLimiter(l.limit, l.burst)
	l.clients.Add(client, lim)
	return lim
}

// Middleware rejects requests over the client's budget with 429
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.NewAPIError(
				domain.ErrRateLimit,
				"Too many requests",
				"",
				c.GetString(CorrelationIDKey),
			))
			return
		}
		c.Next()
	}
}
