package httpgin

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hirokisan/seatres/internal/repository"
	"github.com/hirokisan/seatres/internal/service/admin"
	"github.com/hirokisan/seatres/internal/service/arbiter"
	"github.com/hirokisan/seatres/internal/service/inventory"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

type ReserveRequest struct {
	SeatIDs []int64 `json:"seat_ids" binding:"required"`
	ActorID string  `json:"actor_id"`
}

type CreateEventRequest struct {
	Name     string `json:"name" binding:"required"`
	Venue    string `json:"venue"`
	StartsAt string `json:"starts_at" binding:"required"`
	EndsAt   string `json:"ends_at" binding:"required"`
	Capacity int    `json:"capacity" binding:"required"`
}

type CreateEventResponse struct {
	EventID int64 `json:"event_id"`
}

type SeatSpecRequest struct {
	Label      string `json:"label" binding:"required"`
	Section    string `json:"section"`
	Row        string `json:"row"`
	PriceCents int    `json:"price_cents" binding:"required"`
}

type CreateSeatsRequest struct {
	Seats []SeatSpecRequest `json:"seats" binding:"required"`
}

type AvailabilityResponse struct {
	EventID   int64 `json:"event_id"`
	Available int64 `json:"available"`
}

func adminCreateInput(req CreateEventRequest, starts, ends time.Time) admin.CreateEventInput {
	return admin.CreateEventInput{
		Name:     req.Name,
		Venue:    req.Venue,
		Starts:   starts,
		Ends:     ends,
		Capacity: req.Capacity,
	}
}

func parseUUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		badRequest(c, "invalid "+name)
		return uuid.Nil, err
	}
	return id, nil
}

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	v, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// respondErr maps service errors onto HTTP statuses. Reserve does not go
// through here; its classified result carries its own status.
func respondErr(c *gin.Context, err error) {
	var spec *repository.InvalidSeatSpecError

	switch {
	case errors.As(err, &spec):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: spec.Error()})
	case errors.Is(err, admin.ErrNameRequired),
		errors.Is(err, admin.ErrInvalidCapacity),
		errors.Is(err, admin.ErrInvalidTimeWindow):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, admin.ErrEventNotFound),
		errors.Is(err, inventory.ErrEventNotFound),
		errors.Is(err, inventory.ErrSeatNotFound),
		errors.Is(err, arbiter.ErrReservationNotFound),
		errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, repository.ErrConflict):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
