package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Manager is the only writer of reservation state. Every slot-claiming change
// passes through Engine first and then through the store's uniqueness guarantee.
type Manager struct {
	Engine   *Engine
	Store    Store
	Notifier Notifier
	Now      func() time.Time
}

func NewManager(engine *Engine, store Store, notifier Notifier) *Manager {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &Manager{Engine: engine, Store: store, Notifier: notifier, Now: time.Now}
}

func (m *Manager) now() time.Time {
	if m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

func (m *Manager) validate(req Request) error {
	if err := req.Validate(); err != nil {
		return err
	}
	if !req.ReservationTime.After(m.now()) {
		return &ValidationError{Field: "reservation_time", Msg: "reservation_time must be in the future"}
	}
	return nil
}

func (m *Manager) Create(ctx context.Context, req Request, userID string) (Reservation, error) {
	if userID == "" {
		return Reservation{}, &ValidationError{Field: "user_id", Msg: "user_id required"}
	}
	if err := m.validate(req); err != nil {
		return Reservation{}, err
	}

	d, err := m.Engine.Check(ctx, Query{
		RestaurantID: req.RestaurantID,
		TableID:      req.TableID,
		Time:         req.ReservationTime,
		PartySize:    req.PartySize,
	})
	if err != nil {
		return Reservation{}, err
	}
	if err := d.Err(); err != nil {
		return Reservation{}, err
	}

	saved, err := m.Store.Create(ctx, Reservation{
		RestaurantID:    req.RestaurantID,
		UserID:          userID,
		TableID:         req.TableID,
		ReservationTime: req.ReservationTime,
		PartySize:       req.PartySize,
		SpecialRequests: req.SpecialRequests,
		Status:          StatusPending,
		CreatedAt:       m.now(),
	})
	if errors.Is(err, ErrSlotConflict) {
		return Reservation{}, slotTaken("booked concurrently by another request")
	}
	if err != nil {
		return Reservation{}, fmt.Errorf("create reservation: %w", err)
	}

	m.Notifier.Publish(ctx, NewEvent(EventCreated, saved))
	return saved, nil
}

// Update moves a live reservation to a new table, time or party size. The
// restaurant cannot change.
func (m *Manager) Update(ctx context.Context, id int64, req Request) (Reservation, error) {
	if err := m.validate(req); err != nil {
		return Reservation{}, err
	}

	cur, err := m.Store.Get(ctx, id)
	if err != nil {
		return Reservation{}, err
	}
	if cur.Status.Terminal() {
		return Reservation{}, fmt.Errorf("%w: cannot update a %s reservation", ErrInvalidTransition, cur.Status)
	}
	if req.RestaurantID != cur.RestaurantID {
		return Reservation{}, &ValidationError{Field: "restaurant_id", Msg: "restaurant_id cannot be changed"}
	}

	d, err := m.Engine.Check(ctx, Query{
		RestaurantID: cur.RestaurantID,
		TableID:      req.TableID,
		Time:         req.ReservationTime,
		PartySize:    req.PartySize,
		ExcludeID:    id,
	})
	if err != nil {
		return Reservation{}, err
	}
	if err := d.Err(); err != nil {
		return Reservation{}, err
	}

	updated, err := m.Store.Mutate(ctx, id, func(r *Reservation) error {
		if r.Status.Terminal() {
			return fmt.Errorf("%w: cannot update a %s reservation", ErrInvalidTransition, r.Status)
		}
		now := m.now()
		r.TableID = req.TableID
		r.ReservationTime = req.ReservationTime
		r.PartySize = req.PartySize
		r.SpecialRequests = req.SpecialRequests
		r.UpdatedAt = &now
		return nil
	})
	if errors.Is(err, ErrSlotConflict) {
		return Reservation{}, slotTaken("booked concurrently by another request")
	}
	if err != nil {
		return Reservation{}, err
	}

	m.Notifier.Publish(ctx, NewEvent(EventUpdated, updated))
	return updated, nil
}

func (m *Manager) UpdateStatus(ctx context.Context, id int64, to Status) (Reservation, error) {
	if !to.Valid() {
		return Reservation{}, &ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q", to)}
	}
	updated, err := m.transition(ctx, id, func(from Status) error {
		if !CanTransition(from, to) {
			return &TransitionError{From: from, To: to}
		}
		return nil
	}, to)
	if err != nil {
		return Reservation{}, err
	}
	m.Notifier.Publish(ctx, NewEvent(EventStatusChanged, updated))
	return updated, nil
}

// Cancel releases the slot of any reservation that is not already final.
func (m *Manager) Cancel(ctx context.Context, id int64) (Reservation, error) {
	updated, err := m.transition(ctx, id, func(from Status) error {
		if from.Terminal() {
			return &TransitionError{From: from, To: StatusCancelled}
		}
		return nil
	}, StatusCancelled)
	if err != nil {
		return Reservation{}, err
	}
	m.Notifier.Publish(ctx, NewEvent(EventCancelled, updated))
	return updated, nil
}

// ExpirePending cancels a reservation only while it is still PENDING, so a
// confirmation that lands between listing and cancelling wins.
func (m *Manager) ExpirePending(ctx context.Context, id int64) (Reservation, error) {
	updated, err := m.transition(ctx, id, func(from Status) error {
		if from != StatusPending {
			return &TransitionError{From: from, To: StatusCancelled}
		}
		return nil
	}, StatusCancelled)
	if err != nil {
		return Reservation{}, err
	}
	m.Notifier.Publish(ctx, NewEvent(EventCancelled, updated))
	return updated, nil
}

func (m *Manager) transition(ctx context.Context, id int64, allowed func(from Status) error, to Status) (Reservation, error) {
	return m.Store.Mutate(ctx, id, func(r *Reservation) error {
		if err := allowed(r.Status); err != nil {
			return err
		}
		now := m.now()
		r.Status = to
		r.UpdatedAt = &now
		return nil
	})
}

func (m *Manager) Get(ctx context.Context, id int64) (Reservation, error) {
	return m.Store.Get(ctx, id)
}

func (m *Manager) ListByUser(ctx context.Context, userID string) ([]Reservation, error) {
	return m.Store.ListByUser(ctx, userID)
}

func (m *Manager) ListByRestaurant(ctx context.Context, restaurantID string) ([]Reservation, error) {
	return m.Store.ListByRestaurant(ctx, restaurantID)
}

func (m *Manager) ListByStatus(ctx context.Context, restaurantID string, status Status) ([]Reservation, error) {
	if !status.Valid() {
		return nil, &ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q", status)}
	}
	return m.Store.ListByStatus(ctx, restaurantID, status)
}

func (m *Manager) ListByTimeRange(ctx context.Context, restaurantID string, from, to time.Time) ([]Reservation, error) {
	if to.Before(from) {
		return nil, &ValidationError{Field: "to", Msg: "to must not be before from"}
	}
	return m.Store.ListByTimeRange(ctx, restaurantID, from, to)
}

func (m *Manager) CountActive(ctx context.Context, restaurantID string, at time.Time) (int, error) {
	return m.Store.CountActive(ctx, restaurantID, at, 0)
}

// CheckAvailability runs the admission checks without claiming anything.
func (m *Manager) CheckAvailability(ctx context.Context, q Query) (Decision, error) {
	if q.RestaurantID == "" || q.TableID == "" {
		return Decision{}, &ValidationError{Field: "table_id", Msg: "restaurant_id and table_id required"}
	}
	if q.PartySize < 1 {
		return Decision{}, &ValidationError{Field: "party_size", Msg: "party_size must be at least 1"}
	}
	return m.Engine.Check(ctx, q)
}

func (m *Manager) AvailableTables(ctx context.Context, restaurantID string, at time.Time, minCapacity int) ([]string, error) {
	return m.Engine.AvailableTables(ctx, restaurantID, at, minCapacity)
}
