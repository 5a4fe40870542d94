// Package inventory owns the seat inventory surface: bulk seat creation,
// seat reads, and the availability count with its recompute path.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hirokisan/seatres/internal/domain"
	redisx "github.com/hirokisan/seatres/internal/redis"
	"github.com/hirokisan/seatres/internal/repository"
	redisrepo "github.com/hirokisan/seatres/internal/repository/redis"
)

// seatsPageTTL bounds staleness of the cached default seat page between
// invalidations.
const seatsPageTTL = 15 * time.Second

type SeatStore interface {
	CreateBatch(ctx context.Context, eventID int64, specs []domain.SeatSpec) ([]domain.Seat, error)
	Get(ctx context.Context, id int64) (*domain.Seat, error)
	ListByEvent(ctx context.Context, eventID int64, onlyAvailable bool, limit, offset int) ([]domain.Seat, error)
	CountAvailable(ctx context.Context, eventID int64) (int64, error)
}

type EventStore interface {
	Get(ctx context.Context, id int64) (*domain.Event, error)
	CountsByStatus(ctx context.Context, eventID int64) (*domain.EventCounts, error)
}

// Counter is the cached availability count. Get reports an absent key with
// redisrepo.ErrCounterMiss; the service recomputes and primes on miss.
type Counter interface {
	Get(ctx context.Context, eventID int64) (int64, error)
	Set(ctx context.Context, eventID int64, count int64) error
}

type Notifier interface {
	EventChanged(ctx context.Context, eventID int64)
}

type Config struct {
	DefaultSeatsPage int
	MaxSeatsPage     int
}

type Service struct {
	seats    SeatStore
	events   EventStore
	counter  Counter
	cache    *redisrepo.Cache // optional; nil disables seat-page caching
	notifier Notifier
	logger   *slog.Logger
	cfg      Config
}

func New(seats SeatStore, events EventStore, counter Counter, cache *redisrepo.Cache, notifier Notifier, logger *slog.Logger, cfg Config) *Service {
	if cfg.DefaultSeatsPage <= 0 {
		cfg.DefaultSeatsPage = 100
	}
	if cfg.MaxSeatsPage <= 0 || cfg.MaxSeatsPage < cfg.DefaultSeatsPage {
		cfg.MaxSeatsPage = 500
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		seats:    seats,
		events:   events,
		counter:  counter,
		cache:    cache,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
	}
}

// CreateSeats creates the whole batch atomically; a single malformed spec
// rejects the batch and creates nothing. Handles single seats and bulk
// batches of hundreds alike.
//
// Returns:
//   - ErrEventNotFound if the event does not exist.
//   - repository.InvalidSeatSpecError if any spec is malformed.
func (s *Service) CreateSeats(ctx context.Context, eventID int64, specs []domain.SeatSpec) ([]domain.Seat, error) {
	const op = "service.inventory.CreateSeats"

	if len(specs) == 0 {
		return nil, &repository.InvalidSeatSpecError{Reason: "empty seat spec list"}
	}

	if _, err := s.events.Get(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	seats, err := s.seats.CreateBatch(ctx, eventID, specs)
	if err != nil {
		var spec *repository.InvalidSeatSpecError
		if errors.As(err, &spec) {
			return nil, spec
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	// Bulk creation shifts the true count; recompute rather than guessing.
	if _, err := s.Recompute(ctx, eventID); err != nil {
		s.logger.Warn("availability recompute after seat creation failed", "event_id", eventID, "error", err)
	}

	if s.notifier != nil {
		s.notifier.EventChanged(ctx, eventID)
	}

	return seats, nil
}

// GetSeat retrieves one seat.
//
// Returns ErrSeatNotFound if it does not exist.
func (s *Service) GetSeat(ctx context.Context, id int64) (*domain.Seat, error) {
	const op = "service.inventory.GetSeat"

	seat, err := s.seats.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSeatNotFound) || errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSeatNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return seat, nil
}

// ListSeats lists an event's seats, optionally only the available ones.
//
// Returns ErrEventNotFound if the event does not exist.
func (s *Service) ListSeats(ctx context.Context, eventID int64, onlyAvailable bool, limit, offset int) ([]domain.Seat, error) {
	const op = "service.inventory.ListSeats"

	if _, err := s.events.Get(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if limit <= 0 {
		limit = s.cfg.DefaultSeatsPage
	}
	if limit > s.cfg.MaxSeatsPage {
		limit = s.cfg.MaxSeatsPage
	}
	if offset < 0 {
		offset = 0
	}

	// The default first page is the hot read; cache it and let inventory
	// changes invalidate it.
	if s.cache != nil && !onlyAvailable && offset == 0 && limit == s.cfg.DefaultSeatsPage {
		seats, err := redisrepo.GetOrSetJSON(
			ctx,
			s.cache,
			redisx.KeyEventSeats(eventID),
			seatsPageTTL,
			func(ctx context.Context) ([]domain.Seat, error) {
				return s.seats.ListByEvent(ctx, eventID, false, limit, 0)
			},
		)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return seats, nil
	}

	seats, err := s.seats.ListByEvent(ctx, eventID, onlyAvailable, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return seats, nil
}

// AvailableCount returns the number of available seats for the event,
// serving from the counter and recomputing from the store on a miss.
//
// Returns ErrEventNotFound if the event does not exist.
func (s *Service) AvailableCount(ctx context.Context, eventID int64) (int64, error) {
	const op = "service.inventory.AvailableCount"

	if _, err := s.events.Get(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrEventNotFound
		}
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	count, err := s.counter.Get(ctx, eventID)
	if err == nil {
		return count, nil
	}
	if !errors.Is(err, redisrepo.ErrCounterMiss) {
		s.logger.Warn("availability counter read failed", "event_id", eventID, "error", err)
	}

	return s.Recompute(ctx, eventID)
}

// Counts returns the per-status seat breakdown straight from the store.
//
// Returns ErrEventNotFound if the event does not exist.
func (s *Service) Counts(ctx context.Context, eventID int64) (*domain.EventCounts, error) {
	const op = "service.inventory.Counts"

	if _, err := s.events.Get(ctx, eventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	counts, err := s.events.CountsByStatus(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return counts, nil
}

// Recompute recounts available seats from the inventory store and primes the
// counter, correcting any drift.
func (s *Service) Recompute(ctx context.Context, eventID int64) (int64, error) {
	const op = "service.inventory.Recompute"

	count, err := s.seats.CountAvailable(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.counter.Set(ctx, eventID, count); err != nil {
		s.logger.Warn("availability counter prime failed", "event_id", eventID, "error", err)
	}

	return count, nil
}
