package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/api/responses"
	pkgerrors "github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/errors"
	"github.com/Andrey71823/zabardoo-telegram-bot-sub005/pkg/logger"
)

const limiterIdleTTL = 10 * time.Minute

// IngestRateLimiter keeps one token bucket per client address.
type IngestRateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	clients map[string]*clientLimiter
	swept   time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIngestRateLimiter builds a limiter allowing perSecond events per client with the given burst.
// A non-positive rate disables limiting.
func NewIngestRateLimiter(perSecond float64, burst int) *IngestRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &IngestRateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
		clients: make(map[string]*clientLimiter),
	}
}

func (l *IngestRateLimiter) enabled() bool {
	return l != nil && l.limit > 0
}

// Allow reports whether the client may submit one more request now.
func (l *IngestRateLimiter) Allow(client string) bool {
	if !l.enabled() {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.swept) > limiterIdleTTL {
		for key, c := range l.clients {
			if now.Sub(c.lastSeen) > limiterIdleTTL {
				delete(l.clients, key)
			}
		}
		l.swept = now
	}

	c, ok := l.clients[client]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[client] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// RateLimit rejects requests over the client's budget with RATE_LIMIT_EXCEEDED.
func RateLimit(limiter *IngestRateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !limiter.enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if limiter.Allow(ip) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			if logg != nil {
				logg.Warn(logg.WithFields(ctx, map[string]any{
					"ip":    ip,
					"limit": float64(limiter.limit),
					"burst": limiter.burst,
				}), "ingest.rate_limit.blocked")
			}
			w.Header().Set("Retry-After", "1")
			responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
		})
	}
}

func clientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if header := r.Header.Get("X-Forwarded-For"); header != "" {
		for _, part := range strings.Split(header, ",") {
			if ip := strings.TrimSpace(part); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
