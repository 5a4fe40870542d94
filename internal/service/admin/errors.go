package admin

import "errors"

var (
	ErrEventNotFound     = errors.New("event not found")
	ErrNameRequired      = errors.New("event name is required")
	ErrInvalidCapacity   = errors.New("capacity must be positive")
	ErrInvalidTimeWindow = errors.New("event must end after it starts")
)
