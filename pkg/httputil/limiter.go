package httputil

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is a goroutine-safe token bucket shared by every request sent to
// one registry host.
type Limiter struct {
	lim *rate.Limiter
}

// NewLimiter allows perSecond requests per second with the given burst.
// perSecond <= 0 disables limiting; burst < 1 is treated as 1.
func NewLimiter(perSecond float64, burst int) *Limiter {
	if perSecond <= 0 {
		return &Limiter{}
	}
	return &Limiter{lim: rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))}
}

// Wait blocks until a token is available or ctx is done.
// A nil or disabled limiter never blocks.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.lim == nil {
		return ctx.Err()
	}
	return l.lim.Wait(ctx)
}

// Enabled reports whether the limiter enforces a rate.
func (l *Limiter) Enabled() bool {
	return l != nil && l.lim != nil
}
