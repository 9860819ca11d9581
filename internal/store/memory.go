package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/reservationd/internal/reservation"
)

// Memory is an in-process store for local runs and tests. It enforces the same
// slot uniqueness rule as the Postgres index under a single mutex.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]reservation.Reservation
}

func NewMemory() *Memory {
	return &Memory{rows: make(map[int64]reservation.Reservation)}
}

func clone(r reservation.Reservation) reservation.Reservation {
	if r.UpdatedAt != nil {
		t := *r.UpdatedAt
		r.UpdatedAt = &t
	}
	return r
}

func sameSlot(a, b reservation.Reservation) bool {
	return a.RestaurantID == b.RestaurantID && a.TableID == b.TableID && a.ReservationTime.Equal(b.ReservationTime)
}

// conflicts must be called with mu held.
func (m *Memory) conflicts(r reservation.Reservation) bool {
	if !r.Status.HoldsSlot() {
		return false
	}
	for id, other := range m.rows {
		if id == r.ID || !other.Status.HoldsSlot() {
			continue
		}
		if sameSlot(r, other) {
			return true
		}
	}
	return false
}

func (m *Memory) Create(_ context.Context, r reservation.Reservation) (reservation.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r.ID = 0
	if m.conflicts(r) {
		return reservation.Reservation{}, reservation.ErrSlotConflict
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.nextID++
	r.ID = m.nextID
	m.rows[r.ID] = clone(r)
	return clone(r), nil
}

func (m *Memory) Get(_ context.Context, id int64) (reservation.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rows[id]
	if !ok {
		return reservation.Reservation{}, reservation.ErrNotFound
	}
	return clone(r), nil
}

func (m *Memory) Mutate(_ context.Context, id int64, fn func(r *reservation.Reservation) error) (reservation.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.rows[id]
	if !ok {
		return reservation.Reservation{}, reservation.ErrNotFound
	}
	next := clone(cur)
	if err := fn(&next); err != nil {
		return reservation.Reservation{}, err
	}
	next.ID = id
	if m.conflicts(next) {
		return reservation.Reservation{}, reservation.ErrSlotConflict
	}
	m.rows[id] = clone(next)
	return clone(next), nil
}

func (m *Memory) filter(keep func(r reservation.Reservation) bool, less func(a, b reservation.Reservation) bool) []reservation.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []reservation.Reservation{}
	for _, r := range m.rows {
		if keep(r) {
			out = append(out, clone(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if less(out[i], out[j]) {
			return true
		}
		if less(out[j], out[i]) {
			return false
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func byTime(a, b reservation.Reservation) bool { return a.ReservationTime.Before(b.ReservationTime) }

func (m *Memory) ListByUser(_ context.Context, userID string) ([]reservation.Reservation, error) {
	return m.filter(
		func(r reservation.Reservation) bool { return r.UserID == userID },
		func(a, b reservation.Reservation) bool { return a.CreatedAt.After(b.CreatedAt) },
	), nil
}

func (m *Memory) ListByRestaurant(_ context.Context, restaurantID string) ([]reservation.Reservation, error) {
	return m.filter(func(r reservation.Reservation) bool { return r.RestaurantID == restaurantID }, byTime), nil
}

func (m *Memory) ListByStatus(_ context.Context, restaurantID string, status reservation.Status) ([]reservation.Reservation, error) {
	return m.filter(func(r reservation.Reservation) bool {
		return r.RestaurantID == restaurantID && r.Status == status
	}, byTime), nil
}

func (m *Memory) ListByTimeRange(_ context.Context, restaurantID string, from, to time.Time) ([]reservation.Reservation, error) {
	return m.filter(func(r reservation.Reservation) bool {
		return r.RestaurantID == restaurantID && !r.ReservationTime.Before(from) && !r.ReservationTime.After(to)
	}, byTime), nil
}

func (m *Memory) active(restaurantID string, at time.Time, excludeID int64, match func(r reservation.Reservation) bool) []reservation.Reservation {
	return m.filter(func(r reservation.Reservation) bool {
		return r.ID != excludeID && r.RestaurantID == restaurantID && r.ReservationTime.Equal(at) &&
			r.Status.HoldsSlot() && match(r)
	}, byTime)
}

func (m *Memory) SlotHeld(_ context.Context, restaurantID, tableID string, at time.Time, excludeID int64) (bool, error) {
	rs := m.active(restaurantID, at, excludeID, func(r reservation.Reservation) bool { return r.TableID == tableID })
	return len(rs) > 0, nil
}

func (m *Memory) CountActive(_ context.Context, restaurantID string, at time.Time, excludeID int64) (int, error) {
	rs := m.active(restaurantID, at, excludeID, func(reservation.Reservation) bool { return true })
	return len(rs), nil
}

func (m *Memory) OccupiedTableIDs(_ context.Context, restaurantID string, at time.Time) ([]string, error) {
	rs := m.active(restaurantID, at, 0, func(reservation.Reservation) bool { return true })
	seen := map[string]bool{}
	var ids []string
	for _, r := range rs {
		if !seen[r.TableID] {
			seen[r.TableID] = true
			ids = append(ids, r.TableID)
		}
	}
	return ids, nil
}

func (m *Memory) ExpiredPending(_ context.Context, cutoff time.Time) ([]reservation.Reservation, error) {
	return m.filter(func(r reservation.Reservation) bool {
		return r.Status == reservation.StatusPending && r.CreatedAt.Before(cutoff)
	}, func(a, b reservation.Reservation) bool { return a.CreatedAt.Before(b.CreatedAt) }), nil
}

var _ reservation.Store = (*Memory)(nil)
