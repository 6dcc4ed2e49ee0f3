package clients

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/ajitpratap0/storepulse/pkg/errors"
)

// RateLimiter paces outgoing API calls.
type RateLimiter interface {
	// Allow reports whether a request may proceed now, consuming a token if so.
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done.
	Wait(ctx context.Context) error
	// GetStats returns limiter statistics.
	GetStats() RateLimiterStats
}

// RateLimiterStats contains rate limiter statistics
type RateLimiterStats struct {
	Rate            float64 `json:"rate"`
	Burst           int     `json:"burst"`
	AllowedRequests int64   `json:"allowed_requests"`
	BlockedRequests int64   `json:"blocked_requests"`
	CurrentTokens   float64 `json:"current_tokens"`
}

// Limiter is a token bucket over golang.org/x/time/rate that keeps
// allow/block counters for connector metrics.
type Limiter struct {
	lim     *rate.Limiter
	allowed atomic.Int64
	blocked atomic.Int64
}

// NewRateLimiter allows perSecond requests per second with bursts up to
// burst. A non-positive rate disables limiting.
func NewRateLimiter(perSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &Limiter{lim: rate.NewLimiter(limit, burst)}
}

// Allow checks if a request is allowed immediately.
func (l *Limiter) Allow() bool {
	if l.lim.Allow() {
		l.allowed.Add(1)
		return true
	}
	l.blocked.Add(1)
	return false
}

// Wait blocks until a token is available. It fails straight away when the
// wait would outlast ctx's deadline; that error wraps context.DeadlineExceeded.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.lim.Wait(ctx); err != nil {
		l.blocked.Add(1)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.Wrap(context.DeadlineExceeded, errors.ErrorTypeRateLimit, err.Error())
	}
	l.allowed.Add(1)
	return nil
}

// GetStats returns current statistics
func (l *Limiter) GetStats() RateLimiterStats {
	return RateLimiterStats{
		Rate:            float64(l.lim.Limit()),
		Burst:           l.lim.Burst(),
		AllowedRequests: l.allowed.Load(),
		BlockedRequests: l.blocked.Load(),
		CurrentTokens:   l.lim.Tokens(),
	}
}
