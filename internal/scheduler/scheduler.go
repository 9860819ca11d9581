package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/example/reservationd/internal/reservation"
)

// Sweeper cancels reservations that stayed PENDING longer than PendingTimeout.
type Sweeper struct {
	Manager        *reservation.Manager
	Store          reservation.Store
	Interval       time.Duration
	PendingTimeout time.Duration
	Lock           Locker
	Now            func() time.Time

	mu sync.Mutex
	wg sync.WaitGroup
}

type Result struct {
	Found     int
	Cancelled int
	Skipped   int
	Failed    int
}

func (s *Sweeper) Run(ctx context.Context) error {
	t := time.NewTicker(s.Interval)
	defer t.Stop()

	// kick immediately
	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return ctx.Err()
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if !s.mu.TryLock() {
			log.Printf("scheduler: previous sweep still running, skipping")
			return
		}
		defer s.mu.Unlock()

		res, err := s.Sweep(ctx)
		if err != nil {
			log.Printf("scheduler: sweep failed: %v", err)
			return
		}
		if res.Found > 0 {
			log.Printf("scheduler: expired %d of %d pending reservations (skipped %d, failed %d)",
				res.Cancelled, res.Found, res.Skipped, res.Failed)
		}
	}()
}

func (s *Sweeper) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Sweep runs one expiry pass. A failure on one reservation is logged and
// counted; the rest of the batch still runs.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result

	if s.Lock != nil {
		ok, err := s.Lock.Acquire(ctx)
		if err != nil {
			return res, fmt.Errorf("sweep lock: %w", err)
		}
		if !ok {
			log.Printf("scheduler: sweep lock held elsewhere, skipping")
			return res, nil
		}
		defer func() {
			if err := s.Lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.Printf("scheduler: release sweep lock: %v", err)
			}
		}()
	}

	cutoff := s.now().Add(-s.PendingTimeout)
	expired, err := s.Store.ExpiredPending(ctx, cutoff)
	if err != nil {
		return res, fmt.Errorf("expired pending query: %w", err)
	}
	res.Found = len(expired)

	for _, r := range expired {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		_, err := s.Manager.ExpirePending(ctx, r.ID)
		switch {
		case err == nil:
			res.Cancelled++
		case errors.Is(err, reservation.ErrInvalidTransition), errors.Is(err, reservation.ErrNotFound):
			res.Skipped++
		default:
			res.Failed++
			log.Printf("scheduler: expire reservation %d: %v", r.ID, err)
		}
	}
	return res, nil
}
