package reservation

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound              = errors.New("reservation not found")
	ErrValidation            = errors.New("invalid reservation request")
	ErrAdmissionRejected     = errors.New("reservation rejected")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrDependencyUnavailable = errors.New("table catalog unavailable")

	// ErrSlotConflict is returned by a Store when its uniqueness guarantee on
	// (restaurant, table, time) refuses a write.
	ErrSlotConflict = errors.New("slot already held")
)

// Reason is the sub-reason carried by an admission rejection.
type Reason string

const (
	ReasonInsufficientNotice   Reason = "INSUFFICIENT_NOTICE"
	ReasonRestaurantClosed     Reason = "RESTAURANT_CLOSED"
	ReasonTableNotFound        Reason = "TABLE_NOT_FOUND"
	ReasonInsufficientCapacity Reason = "INSUFFICIENT_CAPACITY"
	ReasonTableOutOfService    Reason = "TABLE_OUT_OF_SERVICE"
	ReasonSlotTaken            Reason = "SLOT_TAKEN"
	ReasonSlotFull             Reason = "SLOT_FULL"
)

type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type RejectionError struct {
	Reason Reason
	Detail string
}

func (e *RejectionError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("reservation rejected: %s", e.Reason)
	}
	return fmt.Sprintf("reservation rejected: %s: %s", e.Reason, e.Detail)
}

func (e *RejectionError) Is(target error) bool { return target == ErrAdmissionRejected }

// RejectionReason extracts the sub-reason from an admission rejection anywhere in err's chain.
func RejectionReason(err error) (Reason, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason, true
	}
	return "", false
}

type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

func slotTaken(detail string) *RejectionError {
	return &RejectionError{Reason: ReasonSlotTaken, Detail: detail}
}
