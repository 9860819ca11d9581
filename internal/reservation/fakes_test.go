package reservation_test

import (
	"context"
	"sync"
	"time"

	"github.com/example/reservationd/internal/reservation"
	"github.com/example/reservationd/internal/store"
)

var now = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

type fakeCatalog struct {
	mu     sync.Mutex
	tables map[string]reservation.Table
	open   bool
	err    error
}

func newFakeCatalog(tables ...reservation.Table) *fakeCatalog {
	c := &fakeCatalog{tables: map[string]reservation.Table{}, open: true}
	for _, t := range tables {
		c.tables[t.ID] = t
	}
	return c
}

func (c *fakeCatalog) Tables(_ context.Context, restaurantID string) ([]reservation.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	var out []reservation.Table
	for _, t := range c.tables {
		if t.RestaurantID == restaurantID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *fakeCatalog) Table(_ context.Context, restaurantID, tableID string) (reservation.Table, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return reservation.Table{}, false, c.err
	}
	t, ok := c.tables[tableID]
	if !ok || t.RestaurantID != restaurantID {
		return reservation.Table{}, false, nil
	}
	return t, true, nil
}

func (c *fakeCatalog) AvailableTables(ctx context.Context, restaurantID string, minCapacity int) ([]reservation.Table, error) {
	all, err := c.Tables(ctx, restaurantID)
	if err != nil {
		return nil, err
	}
	var out []reservation.Table
	for _, t := range all {
		if t.Capacity >= minCapacity && t.Status == reservation.TableAvailable {
			out = append(out, t)
		}
	}
	return out, nil
}

func (c *fakeCatalog) IsOperating(context.Context, string, time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	return c.open, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []reservation.Event
}

func (n *recordingNotifier) Publish(_ context.Context, ev reservation.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) types() []reservation.EventType {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]reservation.EventType, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

func table(id string, capacity int) reservation.Table {
	return reservation.Table{ID: id, Capacity: capacity, Status: reservation.TableAvailable, RestaurantID: "R"}
}

type harness struct {
	catalog  *fakeCatalog
	store    *store.Memory
	notifier *recordingNotifier
	engine   *reservation.Engine
	manager  *reservation.Manager
}

func newHarness(tables ...reservation.Table) *harness {
	if len(tables) == 0 {
		tables = []reservation.Table{table("T", 4)}
	}
	h := &harness{
		catalog:  newFakeCatalog(tables...),
		store:    store.NewMemory(),
		notifier: &recordingNotifier{},
	}
	h.engine = reservation.NewEngine(reservation.DefaultPolicy(), h.catalog, h.store)
	h.engine.Now = func() time.Time { return now }
	h.manager = reservation.NewManager(h.engine, h.store, h.notifier)
	h.manager.Now = func() time.Time { return now }
	return h
}

func booking(tableID string, at time.Time, party int) reservation.Request {
	return reservation.Request{RestaurantID: "R", TableID: tableID, ReservationTime: at, PartySize: party}
}

// lateLoser passes every read through to Memory but refuses writes with a
// slot conflict, as if another request claimed the slot after the checks ran.
type lateLoser struct {
	*store.Memory
	creates, mutates int
}

func (s *lateLoser) Create(context.Context, reservation.Reservation) (reservation.Reservation, error) {
	s.creates++
	return reservation.Reservation{}, reservation.ErrSlotConflict
}

func (s *lateLoser) Mutate(context.Context, int64, func(*reservation.Reservation) error) (reservation.Reservation, error) {
	s.mutates++
	return reservation.Reservation{}, reservation.ErrSlotConflict
}
