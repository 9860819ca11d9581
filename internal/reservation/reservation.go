package reservation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusCompleted Status = "COMPLETED"
	StatusNoShow    Status = "NO_SHOW"
)

// transitions lists every allowed status move. Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted, StatusNoShow},
}

func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", &ValidationError{Field: "status", Msg: fmt.Sprintf("unknown status %q", s)}
	}
	return st, nil
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}

// HoldsSlot reports whether a reservation in this status still occupies its slot.
func (s Status) HoldsSlot() bool {
	return s.Valid() && s != StatusCancelled && s != StatusNoShow
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Reservation struct {
	ID              int64      `json:"id"`
	RestaurantID    string     `json:"restaurant_id"`
	UserID          string     `json:"user_id"`
	TableID         string     `json:"table_id"`
	ReservationTime time.Time  `json:"reservation_time"`
	PartySize       int        `json:"party_size"`
	SpecialRequests string     `json:"special_requests,omitempty"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

type TableStatus string

const (
	TableAvailable    TableStatus = "AVAILABLE"
	TableOccupied     TableStatus = "OCCUPIED"
	TableReserved     TableStatus = "RESERVED"
	TableOutOfService TableStatus = "OUT_OF_SERVICE"
)

// Table is a point-in-time view of a table as reported by the restaurant catalog.
// It is never persisted here.
type Table struct {
	ID           string      `json:"id"`
	Number       string      `json:"number,omitempty"`
	Capacity     int         `json:"capacity"`
	Location     string      `json:"location,omitempty"`
	Accessible   bool        `json:"accessible"`
	Status       TableStatus `json:"status"`
	RestaurantID string      `json:"restaurantId"`
}

// Request carries the caller-supplied fields for create and update.
type Request struct {
	RestaurantID    string    `json:"restaurant_id" validate:"required"`
	TableID         string    `json:"table_id" validate:"required"`
	ReservationTime time.Time `json:"reservation_time" validate:"required"`
	PartySize       int       `json:"party_size" validate:"min=1"`
	SpecialRequests string    `json:"special_requests,omitempty" validate:"max=500"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (r Request) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Msg: err.Error()}
	}
	fe := verrs[0]
	field := fieldName(fe.StructField())
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: field, Msg: field + " required"}
	case "min":
		return &ValidationError{Field: field, Msg: field + " must be at least " + fe.Param()}
	case "max":
		return &ValidationError{Field: field, Msg: field + " must be at most " + fe.Param() + " characters"}
	}
	return &ValidationError{Field: field, Msg: fe.Error()}
}

func fieldName(structField string) string {
	switch structField {
	case "RestaurantID":
		return "restaurant_id"
	case "TableID":
		return "table_id"
	case "ReservationTime":
		return "reservation_time"
	case "PartySize":
		return "party_size"
	case "SpecialRequests":
		return "special_requests"
	}
	return strings.ToLower(structField)
}

type EventType string

const (
	EventCreated       EventType = "RESERVATION_CREATED"
	EventUpdated       EventType = "RESERVATION_UPDATED"
	EventCancelled     EventType = "RESERVATION_CANCELLED"
	EventStatusChanged EventType = "RESERVATION_STATUS_CHANGED"
)

// Event is the lifecycle notification handed to the Notifier. ID and Timestamp
// are filled in at publish time.
type Event struct {
	ID              string    `json:"event_id"`
	Type            EventType `json:"event_type"`
	ReservationID   int64     `json:"reservation_id"`
	RestaurantID    string    `json:"restaurant_id"`
	UserID          string    `json:"user_id"`
	TableID         string    `json:"table_id"`
	ReservationTime time.Time `json:"reservation_time"`
	PartySize       int       `json:"party_size"`
	Status          Status    `json:"status"`
	Timestamp       time.Time `json:"timestamp"`
}

func NewEvent(t EventType, r Reservation) Event {
	return Event{
		Type:            t,
		ReservationID:   r.ID,
		RestaurantID:    r.RestaurantID,
		UserID:          r.UserID,
		TableID:         r.TableID,
		ReservationTime: r.ReservationTime,
		PartySize:       r.PartySize,
		Status:          r.Status,
	}
}
