package remote

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/Ark1369/CBZ-Metadata-Manager/internal/metrics"
)

const DefaultCallsPerMinute = 85

// Limiter serializes outbound calls across every goroutine sharing it: at
// most one call is in flight, and call starts are spaced by Interval.
type Limiter struct {
	limiter *rate.Limiter
	slot    chan struct{}
}

func NewLimiter(callsPerMinute int) *Limiter {
	if callsPerMinute <= 0 {
		callsPerMinute = DefaultCallsPerMinute
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(callsPerMinute)), 1),
		slot:    make(chan struct{}, 1),
	}
}

// Interval is the minimum spacing between calls.
func (l *Limiter) Interval() time.Duration {
	return time.Duration(float64(time.Second) / float64(l.limiter.Limit()))
}

// Do waits for the call slot and the next rate token, then runs call while
// holding the slot. Waiting respects ctx; a call that has started runs to
// completion.
func (l *Limiter) Do(ctx context.Context, call func() error) error {
	startedAt := time.Now()
	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		metrics.RemoteLimiterWait.Observe(time.Since(startedAt).Seconds())
		return ctx.Err()
	}
	defer func() { <-l.slot }()

	err := l.limiter.Wait(ctx)
	metrics.RemoteLimiterWait.Observe(time.Since(startedAt).Seconds())
	if err != nil {
		return err
	}
	return call()
}
