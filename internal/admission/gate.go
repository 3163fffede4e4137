// Package admission bounds how much network work runs at once.
//
// Every stage that opens connections acquires a Gate before each connection
// attempt and releases it afterwards. The Gate caps in-flight attempts and
// can optionally pace how fast new attempts start.
package admission

import (
	"context"
	"math"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Gate is a counting admission gate with optional pacing.
type Gate struct {
	limit   int
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// Option configures a Gate.
type Option func(*Gate)

// WithRate paces admissions to perSecond new attempts per second.
// Zero or negative disables pacing.
func WithRate(perSecond float64) Option {
	return func(g *Gate) {
		if perSecond <= 0 {
			g.limiter = nil
			return
		}
		burst := int(math.Ceil(perSecond))
		g.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// New creates a Gate admitting at most limit concurrent holders.
// A limit below one is treated as one.
func New(limit int, opts ...Option) *Gate {
	if limit < 1 {
		limit = 1
	}
	g := &Gate{
		limit: limit,
		sem:   semaphore.NewWeighted(int64(limit)),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Limit returns the capacity of the gate.
func (g *Gate) Limit() int {
	return g.limit
}

// Acquire blocks until a slot is free (and, with pacing, until the next
// admission is allowed) or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			g.sem.Release(1)
			return err
		}
	}
	return nil
}

// Release frees a slot obtained by Acquire.
func (g *Gate) Release() {
	g.sem.Release(1)
}

// Do runs fn while holding a slot.
func (g *Gate) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := g.Acquire(ctx); err != nil {
		return err
	}
	defer g.Release()
	return fn(ctx)
}
