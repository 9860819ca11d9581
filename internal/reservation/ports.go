package reservation

import (
	"context"
	"time"
)

// Store persists reservations. Implementations must guarantee that at most one
// slot-holding reservation exists per (restaurant, table, time) and report a
// refused write as ErrSlotConflict.
type Store interface {
	Create(ctx context.Context, r Reservation) (Reservation, error)
	Get(ctx context.Context, id int64) (Reservation, error)

	// Mutate runs fn against the current record inside a single transaction and
	// persists whatever fn leaves in *r. An error from fn aborts the write.
	Mutate(ctx context.Context, id int64, fn func(r *Reservation) error) (Reservation, error)

	ListByUser(ctx context.Context, userID string) ([]Reservation, error)
	ListByRestaurant(ctx context.Context, restaurantID string) ([]Reservation, error)
	ListByStatus(ctx context.Context, restaurantID string, status Status) ([]Reservation, error)
	ListByTimeRange(ctx context.Context, restaurantID string, from, to time.Time) ([]Reservation, error)

	// SlotHeld reports whether a slot-holding reservation other than excludeID
	// exists for the exact slot. excludeID 0 excludes nothing.
	SlotHeld(ctx context.Context, restaurantID, tableID string, at time.Time, excludeID int64) (bool, error)
	CountActive(ctx context.Context, restaurantID string, at time.Time, excludeID int64) (int, error)
	OccupiedTableIDs(ctx context.Context, restaurantID string, at time.Time) ([]string, error)
	ExpiredPending(ctx context.Context, cutoff time.Time) ([]Reservation, error)
}

// Catalog is the restaurant table directory. The gateway in front of the real
// directory degrades to conservative answers instead of returning errors unless
// it runs in strict mode.
type Catalog interface {
	Tables(ctx context.Context, restaurantID string) ([]Table, error)
	Table(ctx context.Context, restaurantID, tableID string) (Table, bool, error)
	AvailableTables(ctx context.Context, restaurantID string, minCapacity int) ([]Table, error)
	IsOperating(ctx context.Context, restaurantID string, at time.Time) (bool, error)
}

// Notifier publishes lifecycle events. Delivery is best-effort.
type Notifier interface {
	Publish(ctx context.Context, ev Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(context.Context, Event) {}
