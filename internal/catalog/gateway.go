package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/example/reservationd/internal/reservation"
)

var ErrCircuitOpen = errors.New("catalog circuit open")

// Breakers holds one circuit per directory lookup, so a failing endpoint only
// takes its own lookup down.
type Breakers struct {
	Tables    *Breaker
	Table     *Breaker
	Available *Breaker
	Operating *Breaker
}

// Gateway guards the restaurant directory with circuit breakers and bounded
// retries. Unless Strict is set it never returns an error: failures degrade to
// the most conservative answer (no tables, table not found, closed).
type Gateway struct {
	Upstream reservation.Catalog
	Breakers Breakers
	Retry    RetryPolicy
	// Timeout bounds each attempt. Zero leaves it to the upstream.
	Timeout time.Duration
	Strict  bool
}

func NewGateway(upstream reservation.Catalog, cfg BreakerConfig, retry RetryPolicy) *Gateway {
	return &Gateway{
		Upstream: upstream,
		Breakers: Breakers{
			Tables:    NewBreaker("directory-tables", cfg),
			Table:     NewBreaker("directory-table", cfg),
			Available: NewBreaker("directory-available-tables", cfg),
			Operating: NewBreaker("directory-operating-hours", cfg),
		},
		Retry: retry,
	}
}

func (g *Gateway) call(ctx context.Context, b *Breaker, fn func(ctx context.Context) error) error {
	if !b.Allow() {
		return ErrCircuitOpen
	}
	err := g.Retry.Do(ctx, func(ctx context.Context) error {
		if g.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.Timeout)
			defer cancel()
		}
		return fn(ctx)
	})
	// a caller that gave up says nothing about the directory
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		b.Release()
		return err
	}
	b.Record(err == nil)
	return err
}

// degrade logs a failed call and decides whether the caller sees it.
func (g *Gateway) degrade(op string, err error) error {
	if g.Strict {
		log.Printf("catalog: %s failed: %v", op, err)
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Printf("catalog: %s failed, failing closed: %v", op, err)
	return nil
}

func (g *Gateway) Tables(ctx context.Context, restaurantID string) ([]reservation.Table, error) {
	var out []reservation.Table
	err := g.call(ctx, g.Breakers.Tables, func(ctx context.Context) error {
		var err error
		out, err = g.Upstream.Tables(ctx, restaurantID)
		return err
	})
	if err != nil {
		return []reservation.Table{}, g.degrade("tables for "+restaurantID, err)
	}
	return out, nil
}

func (g *Gateway) Table(ctx context.Context, restaurantID, tableID string) (reservation.Table, bool, error) {
	var (
		t     reservation.Table
		found bool
	)
	err := g.call(ctx, g.Breakers.Table, func(ctx context.Context) error {
		var err error
		t, found, err = g.Upstream.Table(ctx, restaurantID, tableID)
		return err
	})
	if err != nil {
		return reservation.Table{}, false, g.degrade(fmt.Sprintf("table %s for %s", tableID, restaurantID), err)
	}
	return t, found, nil
}

func (g *Gateway) AvailableTables(ctx context.Context, restaurantID string, minCapacity int) ([]reservation.Table, error) {
	var out []reservation.Table
	err := g.call(ctx, g.Breakers.Available, func(ctx context.Context) error {
		var err error
		out, err = g.Upstream.AvailableTables(ctx, restaurantID, minCapacity)
		return err
	})
	if err != nil {
		return []reservation.Table{}, g.degrade(fmt.Sprintf("available tables for %s (capacity %d)", restaurantID, minCapacity), err)
	}
	return out, nil
}

func (g *Gateway) IsOperating(ctx context.Context, restaurantID string, at time.Time) (bool, error) {
	var open bool
	err := g.call(ctx, g.Breakers.Operating, func(ctx context.Context) error {
		var err error
		open, err = g.Upstream.IsOperating(ctx, restaurantID, at)
		return err
	})
	if err != nil {
		return false, g.degrade("operating hours for "+restaurantID, err)
	}
	return open, nil
}

var _ reservation.Catalog = (*Gateway)(nil)
