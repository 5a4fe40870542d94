package domain

import (
	"time"

	"github.com/google/uuid"
)

type SeatStatus string

const (
	SeatAvailable SeatStatus = "available"
	// SeatHeld is part of the state machine for a future hold-before-confirm
	// flow; the reservation path never produces it.
	SeatHeld     SeatStatus = "held"
	SeatReserved SeatStatus = "reserved"
)

type Event struct {
	ID       int64     `json:"id"`
	Name     string    `json:"name"`
	Venue    string    `json:"venue"`
	Starts   time.Time `json:"starts_at"`
	Ends     time.Time `json:"ends_at"`
	Capacity int       `json:"capacity"`
}

type Seat struct {
	ID            int64      `json:"id"`
	EventID       int64      `json:"event_id"`
	Label         string     `json:"label"`
	Section       string     `json:"section"`
	Row           string     `json:"row"`
	PriceCents    int        `json:"price_cents"`
	Status        SeatStatus `json:"status"`
	ReservationID *uuid.UUID `json:"reservation_id,omitempty"`
}

// SeatSpec describes one seat to create. Label must be unique within the
// event and PriceCents must be positive.
type SeatSpec struct {
	Label      string `json:"label"`
	Section    string `json:"section"`
	Row        string `json:"row"`
	PriceCents int    `json:"price_cents"`
}

type Reservation struct {
	ID             uuid.UUID `json:"id"`
	EventID        int64     `json:"event_id"`
	ActorID        string    `json:"actor_id"`
	IdempotencyKey string    `json:"idempotency_key"`
	SeatIDs        []int64   `json:"seat_ids"`
	CreatedAt      time.Time `json:"created_at"`
}

type EventCounts struct {
	Available int64 `json:"available"`
	Held      int64 `json:"held"`
	Reserved  int64 `json:"reserved"`
	Total     int64 `json:"total"`
}
