package channel

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// OutboundLimiter spaces outbound platform writes per key (platform + workspace)
// on top of the relay's flush interval.
type OutboundLimiter struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rate.Limiter
}

// NewOutboundLimiter returns nil (no limiting) when perSecond is not positive.
func NewOutboundLimiter(perSecond float64, burst int) *OutboundLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &OutboundLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		limiters: map[string]*rate.Limiter{},
	}
}

// Wait blocks until a write for key is allowed or ctx ends.
func (l *OutboundLimiter) Wait(ctx context.Context, key string) error {
	if l == nil {
		return nil
	}
	return l.get(key).Wait(ctx)
}

func (l *OutboundLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	lim, ok := l.limiters[key]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = lim
	}
	return lim
}
