package repository

import (
	"errors"
	"fmt"

	"github.com/hirokisan/seatres/internal/outcome"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrEventNotFound = errors.New("event not found")
	ErrSeatNotFound  = errors.New("seat not found")
)

// SeatsUnavailableError reports which of the requested seats were not
// available at claim time. The claim makes no state change when it is
// returned.
type SeatsUnavailableError struct {
	SeatIDs []int64
}

func (e *SeatsUnavailableError) Error() string {
	return fmt.Sprintf("seats unavailable: %v", e.SeatIDs)
}

func (e *SeatsUnavailableError) Classify() outcome.Result {
	return outcome.Conflict(e.SeatIDs)
}

// InvalidSeatSpecError rejects a whole batch of seat specs; no seats are
// created when it is returned.
type InvalidSeatSpecError struct {
	Label  string
	Reason string
}

func (e *InvalidSeatSpecError) Error() string {
	return fmt.Sprintf("invalid seat spec %q: %s", e.Label, e.Reason)
}
