// Package ratelimit paces outbound requests so the engine does not trigger upstream throttling.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Gate blocks until the caller may send the next request.
type Gate interface {
	Wait(ctx context.Context) error
}

// TokenBucket allows bursts up to burst and refills at perSecond tokens per second.
type TokenBucket struct {
	l *rate.Limiter
}

// NewTokenBucket returns an unlimited bucket when perSecond <= 0.
func NewTokenBucket(perSecond float64, burst int) *TokenBucket {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &TokenBucket{l: rate.NewLimiter(limit, burst)}
}

func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.l.Wait(ctx)
}

// MinInterval enforces a minimum time between request starts.
// Concurrent callers are queued in arrival order; a canceled caller gives its slot back
// only if nobody queued after it.
type MinInterval struct {
	Interval time.Duration

	mu   sync.Mutex
	next time.Time
}

func (m *MinInterval) Wait(ctx context.Context) error {
	if m.Interval <= 0 {
		return ctx.Err()
	}
	m.mu.Lock()
	now := time.Now()
	slot := m.next
	if slot.Before(now) {
		slot = now
	}
	m.next = slot.Add(m.Interval)
	m.mu.Unlock()

	wait := time.Until(slot)
	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		m.mu.Lock()
		if m.next.Equal(slot.Add(m.Interval)) {
			m.next = slot
		}
		m.mu.Unlock()
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Chain waits on every gate in order.
type Chain []Gate

func (c Chain) Wait(ctx context.Context) error {
	for _, g := range c {
		if err := g.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

// New builds the gate for the given settings. Zero values disable the matching stage.
func New(perSecond float64, burst int, minInterval time.Duration) Gate {
	var c Chain
	if minInterval > 0 {
		c = append(c, &MinInterval{Interval: minInterval})
	}
	if perSecond > 0 {
		c = append(c, NewTokenBucket(perSecond, burst))
	}
	return c
}
