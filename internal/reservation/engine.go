package reservation

import (
	"context"
	"fmt"
	"time"
)

// Policy holds the admission limits.
type Policy struct {
	MinNotice  time.Duration
	MaxPerSlot int
}

func DefaultPolicy() Policy {
	return Policy{MinNotice: 60 * time.Minute, MaxPerSlot: 20}
}

// Query describes one admission check. ExcludeID is set on the update path so
// that a reservation does not conflict with itself.
type Query struct {
	RestaurantID string
	TableID      string
	Time         time.Time
	PartySize    int
	ExcludeID    int64
}

type Decision struct {
	Admitted bool   `json:"admitted"`
	Reason   Reason `json:"reason,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

func admit() Decision { return Decision{Admitted: true} }

func reject(reason Reason, format string, args ...any) Decision {
	return Decision{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

// Err returns the rejection as an error, or nil when admitted.
func (d Decision) Err() error {
	if d.Admitted {
		return nil
	}
	return &RejectionError{Reason: d.Reason, Detail: d.Detail}
}

// Engine decides whether a reservation may claim a slot. It never writes.
type Engine struct {
	Catalog Catalog
	Store   Store
	Policy  Policy
	Now     func() time.Time
}

func NewEngine(p Policy, catalog Catalog, store Store) *Engine {
	return &Engine{Catalog: catalog, Store: store, Policy: p, Now: time.Now}
}

// Check runs the admission checks in order and stops at the first rejection.
// The returned error is reserved for store failures and an unavailable catalog.
func (e *Engine) Check(ctx context.Context, q Query) (Decision, error) {
	now := e.Now()
	lead := q.Time.Sub(now).Truncate(time.Minute)
	if lead < e.Policy.MinNotice {
		return reject(ReasonInsufficientNotice, "reservations need at least %d minutes notice", int(e.Policy.MinNotice/time.Minute)), nil
	}

	open, err := e.Catalog.IsOperating(ctx, q.RestaurantID, q.Time)
	if err != nil {
		return Decision{}, fmt.Errorf("operating hours: %w: %w", ErrDependencyUnavailable, err)
	}
	if !open {
		return reject(ReasonRestaurantClosed, "restaurant %s is not operating at %s", q.RestaurantID, q.Time.Format(time.RFC3339)), nil
	}

	table, found, err := e.Catalog.Table(ctx, q.RestaurantID, q.TableID)
	if err != nil {
		return Decision{}, fmt.Errorf("table lookup: %w: %w", ErrDependencyUnavailable, err)
	}
	if !found {
		return reject(ReasonTableNotFound, "table %s not found", q.TableID), nil
	}
	if table.Capacity < q.PartySize {
		return reject(ReasonInsufficientCapacity, "table %s seats %d, party of %d", q.TableID, table.Capacity, q.PartySize), nil
	}
	if table.Status == TableOutOfService {
		return reject(ReasonTableOutOfService, "table %s is out of service", q.TableID), nil
	}

	held, err := e.Store.SlotHeld(ctx, q.RestaurantID, q.TableID, q.Time, q.ExcludeID)
	if err != nil {
		return Decision{}, fmt.Errorf("slot lookup: %w", err)
	}
	if held {
		return reject(ReasonSlotTaken, "table %s is already booked at %s", q.TableID, q.Time.Format(time.RFC3339)), nil
	}

	n, err := e.Store.CountActive(ctx, q.RestaurantID, q.Time, q.ExcludeID)
	if err != nil {
		return Decision{}, fmt.Errorf("slot count: %w", err)
	}
	if n >= e.Policy.MaxPerSlot {
		return reject(ReasonSlotFull, "%d of %d reservations taken for this slot", n, e.Policy.MaxPerSlot), nil
	}

	return admit(), nil
}

// AvailableTables lists catalog tables in AVAILABLE status that hold no
// reservation at the given time. With minCapacity > 0 the catalog's
// capacity-filtered feed is used.
func (e *Engine) AvailableTables(ctx context.Context, restaurantID string, at time.Time, minCapacity int) ([]string, error) {
	var (
		tables []Table
		err    error
	)
	if minCapacity > 0 {
		tables, err = e.Catalog.AvailableTables(ctx, restaurantID, minCapacity)
	} else {
		tables, err = e.Catalog.Tables(ctx, restaurantID)
	}
	if err != nil {
		return nil, fmt.Errorf("table list: %w: %w", ErrDependencyUnavailable, err)
	}

	occupied, err := e.Store.OccupiedTableIDs(ctx, restaurantID, at)
	if err != nil {
		return nil, fmt.Errorf("occupied tables: %w", err)
	}
	taken := make(map[string]struct{}, len(occupied))
	for _, id := range occupied {
		taken[id] = struct{}{}
	}

	out := []string{}
	for _, t := range tables {
		if t.Status != TableAvailable {
			continue
		}
		if _, ok := taken[t.ID]; ok {
			continue
		}
		out = append(out, t.ID)
	}
	return out, nil
}

func (e *Engine) TableFree(ctx context.Context, restaurantID, tableID string, at time.Time) (bool, error) {
	held, err := e.Store.SlotHeld(ctx, restaurantID, tableID, at, 0)
	if err != nil {
		return false, err
	}
	return !held, nil
}
