package inventory

import "errors"

var (
	ErrEventNotFound = errors.New("event not found")
	ErrSeatNotFound  = errors.New("seat not found")
)
