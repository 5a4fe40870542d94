package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/hirokisan/seatres/internal/domain"
	redisx "github.com/hirokisan/seatres/internal/redis"
	postgresrepo "github.com/hirokisan/seatres/internal/repository/postgres"
	redisrepo "github.com/hirokisan/seatres/internal/repository/redis"
	"github.com/hirokisan/seatres/internal/service/admin"
	"github.com/hirokisan/seatres/internal/service/arbiter"
	"github.com/hirokisan/seatres/internal/service/inventory"
)

type Services struct {
	Arbiter   *arbiter.Service
	Inventory *inventory.Service
	Admin     *admin.Service
}

type Config struct {
	Inventory inventory.Config
}

func NewServices(
	store *postgresrepo.Store,
	cache *redisrepo.Cache,
	counter *redisrepo.Counter,
	ledger *redisrepo.Ledger,
	pubsub *redisx.EventsPubSub,
	logger *slog.Logger,
	cfg Config,
) *Services {
	notifier := &changeNotifier{cache: cache, pubsub: pubsub}
	pg := &storeAdapter{store: store}

	return &Services{
		Arbiter:   arbiter.New(pg, ledger, counter, notifier, logger),
		Inventory: inventory.New(store.Seats(), store.Events(), counter, cache, notifier, logger, cfg.Inventory),
		Admin:     admin.New(store, cache, counter, pubsub),
	}
}

// storeAdapter narrows the Postgres store to the slice the arbiter accepts.
type storeAdapter struct {
	store *postgresrepo.Store
}

func (a *storeAdapter) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	return a.store.Events().Get(ctx, id)
}

func (a *storeAdapter) Claim(ctx context.Context, eventID int64, actorID, idempotencyKey string, seatIDs []int64) (*domain.Reservation, error) {
	resv, err := a.store.Reservations().Claim(ctx, eventID, actorID, idempotencyKey, seatIDs)
	if err != nil && postgresrepo.IsRetryable(err) {
		// One retry covers a transient serialization failure or deadlock;
		// the seat locks make a second consecutive one implausible.
		return a.store.Reservations().Claim(ctx, eventID, actorID, idempotencyKey, seatIDs)
	}
	return resv, err
}

func (a *storeAdapter) ReleaseReservation(ctx context.Context, id uuid.UUID) (int64, error) {
	return a.store.Reservations().Release(ctx, id)
}

func (a *storeAdapter) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return a.store.Reservations().Get(ctx, id)
}

// changeNotifier drops derived read models and broadcasts the change.
type changeNotifier struct {
	cache  *redisrepo.Cache
	pubsub *redisx.EventsPubSub
}

func (n *changeNotifier) EventChanged(ctx context.Context, eventID int64) {
	if n.cache != nil {
		_ = n.cache.InvalidateEvent(ctx, eventID)
	}
	if n.pubsub != nil {
		_ = n.pubsub.PublishEventChanged(ctx, eventID)
	}
}
