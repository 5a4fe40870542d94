package httpgin

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/hirokisan/seatres/internal/domain"
	"github.com/hirokisan/seatres/internal/outcome"
	redisrepo "github.com/hirokisan/seatres/internal/repository/redis"
	"github.com/hirokisan/seatres/internal/service"
	"github.com/hirokisan/seatres/internal/service/arbiter"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func NewRouter(
	svcs *service.Services,
	limiter *redisrepo.SlidingWindowLimiter,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI. The UI shell works as-is; /swagger/doc.json needs the
	// swag-generated docs package imported from main (swag init + blank
	// import), which this build does not ship.
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Public API
	r.GET("/events", handleListEvents(svcs))
	r.GET("/events/:id", handleGetEvent(svcs))
	r.GET("/events/:id/availability", handleGetAvailability(svcs))
	r.GET("/events/:id/counts", handleGetCounts(svcs))
	r.GET("/events/:id/seats", handleListSeats(svcs))
	r.GET("/seats/:id", handleGetSeat(svcs))

	r.POST("/events/:id/reservations", RateLimitMiddleware(limiter), handleReserve(svcs))
	r.GET("/reservations/:id", handleGetReservation(svcs))
	r.DELETE("/reservations/:id", handleReleaseReservation(svcs))

	// Admin API
	adm := r.Group("/admin")
	{
		adm.POST("/events", handleCreateEvent(svcs))
		adm.DELETE("/events/:id", handleDeleteEvent(svcs))
		adm.POST("/events/:id/seats", handleCreateSeats(svcs))
	}

	return r
}

// @Summary  Reserve seats (idempotent)
// @Param    id  path  int  true  "Event ID"
// @Param    Idempotency-Key  header  string  true  "client retry token"
// @Param    req body  ReserveRequest true "payload"
// @Success  201 {object} outcome.Result
// @Failure  400 {object} outcome.Result
// @Failure  404 {object} outcome.Result
// @Failure  409 {object} outcome.Result "one or more seats unavailable"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Router   /events/{id}/reservations [post]
func handleReserve(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}

		var req ReserveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		actorID := strings.TrimSpace(c.GetHeader("X-Actor-ID"))
		if actorID == "" {
			actorID = strings.TrimSpace(req.ActorID)
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))

		res, err := svcs.Arbiter.Reserve(c.Request.Context(), arbiter.ReserveInput{
			EventID:        eventID,
			SeatIDs:        req.SeatIDs,
			ActorID:        actorID,
			IdempotencyKey: idemKey,
		})
		if err != nil {
			_ = c.Error(err)
		}

		if idemKey != "" {
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(statusForResult(res), res)
	}
}

func statusForResult(res outcome.Result) int {
	switch res.Kind {
	case outcome.KindSuccess:
		return http.StatusCreated
	case outcome.KindConflict:
		return http.StatusConflict
	case outcome.KindValidationError:
		return http.StatusBadRequest
	case outcome.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// @Summary  Get reservation
// @Param    id  path  string  true  "Reservation ID (uuid)"
// @Success  200 {object} domain.Reservation
// @Failure  404 {object} ErrorResponse
// @Router   /reservations/{id} [get]
func handleGetReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseUUIDParam(c, "id")
		if err != nil {
			return
		}
		resv, err := svcs.Arbiter.GetReservation(c.Request.Context(), id)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, resv)
	}
}

// @Summary  Release reservation (cancellation flow)
// @Param    id  path  string  true  "Reservation ID (uuid)"
// @Success  204
// @Failure  404 {object} ErrorResponse
// @Router   /reservations/{id} [delete]
func handleReleaseReservation(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := parseUUIDParam(c, "id")
		if err != nil {
			return
		}
		if err := svcs.Arbiter.Release(c.Request.Context(), id); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  List events
// @Param    limit  query  int  false "page size"
// @Param    offset query  int  false "offset"
// @Success  200  {array}  domain.Event
// @Router   /events [get]
func handleListEvents(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := parseIntDefault(c.Query("limit"), 20)
		offset := parseIntDefault(c.Query("offset"), 0)

		events, err := svcs.Admin.ListEvents(c.Request.Context(), limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, events, "public, max-age=60", true)
	}
}

// @Summary  Get event
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  domain.Event
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id} [get]
func handleGetEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		e, err := svcs.Admin.GetEvent(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, e, "public, max-age=60", true)
	}
}

// @Summary  Get availability count
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  AvailabilityResponse
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id}/availability [get]
func handleGetAvailability(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		count, err := svcs.Inventory.AvailableCount(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, AvailabilityResponse{
			EventID:   eventID,
			Available: count,
		}, "public, max-age=5", true)
	}
}

// @Summary  Seat counts by status
// @Param    id  path  int  true  "Event ID"
// @Success  200  {object}  domain.EventCounts
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id}/counts [get]
func handleGetCounts(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		counts, err := svcs.Inventory.Counts(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, counts, "public, max-age=5", true)
	}
}

// @Summary  List event seats
// @Param    id     path   int     true  "Event ID"
// @Param    only   query  string  false "available"
// @Param    limit  query  int     false "page size"
// @Param    offset query  int     false "offset"
// @Success  200  {array}   domain.Seat
// @Failure  404  {object}  ErrorResponse
// @Router   /events/{id}/seats [get]
func handleListSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		onlyAvailable := c.Query("only") == "available" || c.Query("only_available") == "true"
		limit := parseIntDefault(c.Query("limit"), 100)
		offset := parseIntDefault(c.Query("offset"), 0)

		seats, err := svcs.Inventory.ListSeats(c.Request.Context(), eventID, onlyAvailable, limit, offset)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, seats, "public, max-age=15", true)
	}
}

// @Summary  Get seat
// @Param    id  path  int  true  "Seat ID"
// @Success  200  {object}  domain.Seat
// @Failure  404  {object}  ErrorResponse
// @Router   /seats/{id} [get]
func handleGetSeat(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		seatID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		seat, err := svcs.Inventory.GetSeat(c.Request.Context(), seatID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, seat)
	}
}

// @Summary  Create event
// @Param    req body  CreateEventRequest true "payload"
// @Success  201 {object} CreateEventResponse
// @Failure  400 {object} ErrorResponse
// @Router   /admin/events [post]
func handleCreateEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateEventRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		starts, err := parseRFC3339(req.StartsAt)
		if err != nil {
			badRequest(c, "invalid starts_at (RFC3339)")
			return
		}
		ends, err := parseRFC3339(req.EndsAt)
		if err != nil {
			badRequest(c, "invalid ends_at (RFC3339)")
			return
		}

		e, err := svcs.Admin.CreateEvent(c.Request.Context(), adminCreateInput(req, starts, ends))
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, CreateEventResponse{EventID: e.ID})
	}
}

// @Summary  Delete event (cascades to seats and reservations)
// @Param    id  path  int  true  "Event ID"
// @Success  204
// @Failure  404 {object} ErrorResponse
// @Router   /admin/events/{id} [delete]
func handleDeleteEvent(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		if err := svcs.Admin.DeleteEvent(c.Request.Context(), eventID); err != nil {
			respondErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// @Summary  Create seats (atomic batch)
// @Param    id  path  int  true  "Event ID"
// @Param    req body  CreateSeatsRequest true "payload"
// @Success  201 {array} domain.Seat
// @Failure  400 {object} ErrorResponse "whole batch rejected"
// @Failure  404 {object} ErrorResponse
// @Router   /admin/events/{id}/seats [post]
func handleCreateSeats(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		var req CreateSeatsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		specs := make([]domain.SeatSpec, 0, len(req.Seats))
		for _, sp := range req.Seats {
			specs = append(specs, domain.SeatSpec{
				Label:      sp.Label,
				Section:    sp.Section,
				Row:        sp.Row,
				PriceCents: sp.PriceCents,
			})
		}

		seats, err := svcs.Inventory.CreateSeats(c.Request.Context(), eventID, specs)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, seats)
	}
}
