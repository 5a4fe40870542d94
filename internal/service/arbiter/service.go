// Package arbiter decides, under concurrent contention, which request may
// transition a set of seats from available to reserved. The store's atomic
// claim is the single arbitration point per seat; the ledger collapses
// replayed submissions onto the first recorded outcome.
package arbiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hirokisan/seatres/internal/domain"
	"github.com/hirokisan/seatres/internal/outcome"
	"github.com/hirokisan/seatres/internal/repository"
)

// Store is the slice of the inventory store the arbiter needs. Claim and
// ReleaseReservation must each be atomic: no caller may observe a partially
// claimed or partially released seat set.
type Store interface {
	GetEvent(ctx context.Context, id int64) (*domain.Event, error)
	Claim(ctx context.Context, eventID int64, actorID, idempotencyKey string, seatIDs []int64) (*domain.Reservation, error)
	ReleaseReservation(ctx context.Context, id uuid.UUID) (int64, error)
	GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
}

// Ledger records the first outcome per (actor, key) and returns it to every
// later or concurrent submission of the same key.
type Ledger interface {
	Lookup(ctx context.Context, actorID, key string) (outcome.Result, bool, error)
	RecordIfAbsent(ctx context.Context, actorID, key string, res outcome.Result) (winner outcome.Result, recorded bool, err error)
}

// Counter is the fast-path availability count. Adjust runs after the store
// transition commits and before Reserve returns.
type Counter interface {
	Adjust(ctx context.Context, eventID int64, delta int64) error
}

// Notifier fans out an inventory change, e.g. cache invalidation and
// pub/sub. Optional.
type Notifier interface {
	EventChanged(ctx context.Context, eventID int64)
}

type Service struct {
	store    Store
	ledger   Ledger
	counter  Counter
	notifier Notifier
	logger   *slog.Logger
}

func New(store Store, ledger Ledger, counter Counter, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		ledger:   ledger,
		counter:  counter,
		notifier: notifier,
		logger:   logger,
	}
}

type ReserveInput struct {
	EventID        int64
	SeatIDs        []int64
	ActorID        string
	IdempotencyKey string
}

// Reserve arbitrates one reservation attempt and returns its classified
// result. A non-nil error accompanies only an internal-error result and
// carries the cause for logging; every expected outcome, Conflict included,
// comes back as a Result with a nil error.
//
// The ledger is checked before the store so replays never touch the
// inventory. On the rare double miss, where two requests with the same key
// both pass the lookup, whichever records its outcome first wins and the
// loser releases its own claim before returning the winner's result.
func (s *Service) Reserve(ctx context.Context, in ReserveInput) (outcome.Result, error) {
	const op = "service.arbiter.Reserve"

	if reason, ok := validate(in); !ok {
		return outcome.ValidationError(reason), nil
	}

	if _, err := s.store.GetEvent(ctx, in.EventID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return outcome.NotFound("event"), nil
		}
		return outcome.InternalError(), fmt.Errorf("%s: %w", op, err)
	}

	if res, ok, err := s.ledger.Lookup(ctx, in.ActorID, in.IdempotencyKey); err != nil {
		return outcome.InternalError(), fmt.Errorf("%s: %w", op, err)
	} else if ok {
		return res, nil
	}

	resv, err := s.store.Claim(ctx, in.EventID, in.ActorID, in.IdempotencyKey, in.SeatIDs)
	if err != nil {
		return s.classifyClaimErr(ctx, in, err)
	}

	if err := s.counter.Adjust(ctx, in.EventID, -int64(len(in.SeatIDs))); err != nil {
		// The counter self-heals on the next miss; the claim stands.
		s.logger.Warn("availability counter adjust failed", "event_id", in.EventID, "error", err)
	}

	success := outcome.Success(resv.ID, resv.SeatIDs)

	winner, recorded, err := s.ledger.RecordIfAbsent(ctx, in.ActorID, in.IdempotencyKey, success)
	if err != nil {
		return outcome.InternalError(), fmt.Errorf("%s: %w", op, err)
	}

	if !recorded {
		// Lost the double-miss race: undo our claim and converge on the
		// outcome that was recorded first.
		if _, rerr := s.store.ReleaseReservation(ctx, resv.ID); rerr != nil {
			s.logger.Error("failed to release losing reservation", "reservation_id", resv.ID, "error", rerr)
		} else if aerr := s.counter.Adjust(ctx, in.EventID, int64(len(in.SeatIDs))); aerr != nil {
			s.logger.Warn("availability counter restore failed", "event_id", in.EventID, "error", aerr)
		}
		s.notify(ctx, in.EventID)
		return winner, nil
	}

	s.notify(ctx, in.EventID)

	return success, nil
}

func (s *Service) classifyClaimErr(ctx context.Context, in ReserveInput, err error) (outcome.Result, error) {
	const op = "service.arbiter.Reserve"

	var unavailable *repository.SeatsUnavailableError
	if errors.As(err, &unavailable) {
		conflict := outcome.Classify(err)
		winner, _, lerr := s.ledger.RecordIfAbsent(ctx, in.ActorID, in.IdempotencyKey, conflict)
		if lerr != nil {
			return outcome.InternalError(), fmt.Errorf("%s: %w", op, lerr)
		}
		return winner, nil
	}

	if errors.Is(err, repository.ErrSeatNotFound) {
		return outcome.NotFound("seat"), nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return outcome.NotFound("event"), nil
	}

	return outcome.InternalError(), fmt.Errorf("%s: %w", op, err)
}

// Release reverses a confirmed reservation, returning its seats to the pool.
// It exists for the external cancellation flow; the arbitration path itself
// only releases when reconciling a lost ledger race.
func (s *Service) Release(ctx context.Context, reservationID uuid.UUID) error {
	const op = "service.arbiter.Release"

	resv, err := s.store.GetReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrReservationNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	released, err := s.store.ReleaseReservation(ctx, reservationID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrReservationNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if released > 0 {
		if aerr := s.counter.Adjust(ctx, resv.EventID, released); aerr != nil {
			s.logger.Warn("availability counter adjust failed", "event_id", resv.EventID, "error", aerr)
		}
	}

	s.notify(ctx, resv.EventID)

	return nil
}

// GetReservation retrieves a confirmed reservation.
func (s *Service) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	const op = "service.arbiter.GetReservation"

	resv, err := s.store.GetReservation(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrReservationNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return resv, nil
}

func (s *Service) notify(ctx context.Context, eventID int64) {
	if s.notifier != nil {
		s.notifier.EventChanged(ctx, eventID)
	}
}

func validate(in ReserveInput) (string, bool) {
	if in.ActorID == "" {
		return "actor id is required", false
	}
	if in.IdempotencyKey == "" {
		return "idempotency key is required", false
	}
	if len(in.SeatIDs) == 0 {
		return "seat list is empty", false
	}
	seen := make(map[int64]struct{}, len(in.SeatIDs))
	for _, id := range in.SeatIDs {
		if _, dup := seen[id]; dup {
			return "duplicate seat ids", false
		}
		seen[id] = struct{}{}
	}
	return "", true
}
