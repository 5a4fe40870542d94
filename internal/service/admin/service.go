// Package admin owns the event lifecycle: creation, reads, and deletion with
// its cascade into seats, reservations, and the availability counter.
package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hirokisan/seatres/internal/domain"
	redisx "github.com/hirokisan/seatres/internal/redis"
	"github.com/hirokisan/seatres/internal/repository"
	postgresrepo "github.com/hirokisan/seatres/internal/repository/postgres"
	redisrepo "github.com/hirokisan/seatres/internal/repository/redis"
	"github.com/hirokisan/seatres/internal/uow"
)

const eventSummaryTTL = 60 * time.Second

type Service struct {
	store   *postgresrepo.Store
	cache   *redisrepo.Cache
	counter *redisrepo.Counter
	pubsub  *redisx.EventsPubSub
	uow     *uow.UoW
}

func New(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	counter *redisrepo.Counter,
	pubsub *redisx.EventsPubSub,
) *Service {
	return &Service{
		store:   store,
		cache:   cache,
		counter: counter,
		pubsub:  pubsub,
		uow:     uow.NewUoW(store),
	}
}

type CreateEventInput struct {
	Name     string
	Venue    string
	Starts   time.Time
	Ends     time.Time
	Capacity int
}

// CreateEvent registers a new event with an empty seat inventory.
func (s *Service) CreateEvent(ctx context.Context, in CreateEventInput) (*domain.Event, error) {
	const op = "service.admin.CreateEvent"

	if in.Name == "" {
		return nil, ErrNameRequired
	}
	if in.Capacity <= 0 {
		return nil, ErrInvalidCapacity
	}
	if !in.Ends.After(in.Starts) {
		return nil, ErrInvalidTimeWindow
	}

	e := &domain.Event{
		Name:     in.Name,
		Venue:    in.Venue,
		Starts:   in.Starts,
		Ends:     in.Ends,
		Capacity: in.Capacity,
	}

	id, err := s.store.Events().Create(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	e.ID = id

	return e, nil
}

// GetEvent retrieves an event through the summary cache; concurrent misses
// for the same event collapse into a single store read.
//
// Returns ErrEventNotFound if it does not exist.
func (s *Service) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "service.admin.GetEvent"

	e, err := redisrepo.GetOrSetJSON(
		ctx,
		s.cache,
		redisx.KeyEventSummary(id),
		eventSummaryTTL,
		func(ctx context.Context) (domain.Event, error) {
			ev, err := s.store.Events().Get(ctx, id)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					return domain.Event{}, ErrEventNotFound
				}
				return domain.Event{}, err
			}
			return *ev, nil
		},
	)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &e, nil
}

func (s *Service) ListEvents(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	const op = "service.admin.ListEvents"

	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	events, err := s.store.Events().List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return events, nil
}

// DeleteEvent removes the event and everything under it. The counter and
// caches are torn down only after the cascade commits.
//
// Returns ErrEventNotFound if it does not exist.
func (s *Service) DeleteEvent(ctx context.Context, id int64) error {
	const op = "service.admin.DeleteEvent"

	err := s.uow.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		if err := s.store.Events().With(tx).Delete(ctx, id); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrEventNotFound
			}
			return err
		}

		after(func(ctx context.Context) {
			_ = s.counter.Drop(ctx, id)
			_ = s.cache.InvalidateEvent(ctx, id)
			if s.pubsub != nil {
				_ = s.pubsub.PublishEventChanged(ctx, id)
			}
		})

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			return ErrEventNotFound
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
