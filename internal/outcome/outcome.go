// Package outcome defines the closed result taxonomy the request layer
// consumes. Classify maps service errors to a Result without side effects;
// the same Result values are what the idempotency ledger stores, so a
// replayed request observes the original classification verbatim.
package outcome

import (
	"errors"

	"github.com/google/uuid"
)

type Kind string

const (
	KindSuccess         Kind = "success"
	KindConflict        Kind = "conflict"
	KindValidationError Kind = "validation_error"
	KindNotFound        Kind = "not_found"
	KindInternalError   Kind = "internal_error"
)

type Result struct {
	Kind               Kind      `json:"kind"`
	ReservationID      uuid.UUID `json:"reservation_id,omitempty"`
	SeatIDs            []int64   `json:"seat_ids,omitempty"`
	UnavailableSeatIDs []int64   `json:"unavailable_seat_ids,omitempty"`
	Reason             string    `json:"reason,omitempty"`
	Resource           string    `json:"resource,omitempty"`
}

func Success(reservationID uuid.UUID, seatIDs []int64) Result {
	return Result{Kind: KindSuccess, ReservationID: reservationID, SeatIDs: seatIDs}
}

func Conflict(unavailable []int64) Result {
	return Result{Kind: KindConflict, UnavailableSeatIDs: unavailable}
}

func ValidationError(reason string) Result {
	return Result{Kind: KindValidationError, Reason: reason}
}

func NotFound(resource string) Result {
	return Result{Kind: KindNotFound, Resource: resource}
}

func InternalError() Result {
	return Result{Kind: KindInternalError}
}

// Classifiable is implemented by errors that carry their own classification,
// such as a seats-unavailable error listing the contested seat ids.
type Classifiable interface {
	Classify() Result
}

// Classify maps an error to a Result. A nil error is not a valid input; the
// caller composes Success itself because classification alone cannot know the
// reservation id.
func Classify(err error) Result {
	var c Classifiable
	if errors.As(err, &c) {
		return c.Classify()
	}
	return InternalError()
}
