package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hirokisan/seatres/internal/config"
	"github.com/hirokisan/seatres/internal/postgres"
	redisx "github.com/hirokisan/seatres/internal/redis"
	postgresrepo "github.com/hirokisan/seatres/internal/repository/postgres"
	redisrepo "github.com/hirokisan/seatres/internal/repository/redis"
	"github.com/hirokisan/seatres/internal/service"
	"github.com/hirokisan/seatres/internal/service/admin"
	"github.com/hirokisan/seatres/internal/service/inventory"
	httpgin "github.com/hirokisan/seatres/internal/transport/http/gin"
	"github.com/hirokisan/seatres/internal/worker"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	recounter  *worker.Recounter
	pubsub     *redisx.EventsPubSub
	inventory  *inventory.Service
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := postgresrepo.Migrate(cfg.Postgres.MigrateDSN()); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: cfg.Postgres.DSN()})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redisx.New(context.Background(), redisx.Config{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.NewCache(rdb)
	counter := redisrepo.NewCounter(rdb, cfg.Arbiter.CounterTTL)
	ledger := redisrepo.NewLedger(rdb, cfg.Arbiter.IdempotencyRetention)
	pubsub := redisx.NewEventsPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, redisx.KeyRateLimit("reserve"), cfg.RateLimit.Limit, cfg.RateLimit.Window)

	// Services
	services := service.NewServices(store, cache, counter, ledger, pubsub, logger, service.Config{
		Inventory: inventory.Config{},
	})

	// Background counter reconciliation
	recounter := worker.NewRecounter(
		eventLister{admin: services.Admin},
		services.Inventory,
		cfg.Arbiter.RecountInterval,
		logger,
	)

	router := httpgin.NewRouter(services, limiter, logger)

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
		recounter: recounter,
		pubsub:    pubsub,
		inventory: services.Inventory,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		_ = a.recounter.Run(gCtx)
		return nil
	})

	// Changes published by any instance trigger an immediate recount of the
	// affected event, ahead of the periodic sweep.
	g.Go(func() error {
		err := a.pubsub.Subscribe(gCtx, func(ctx context.Context, eventID int64) {
			if _, rerr := a.inventory.Recompute(ctx, eventID); rerr != nil {
				a.logger.Warn("recompute on change notification failed", "event_id", eventID, "error", rerr)
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("events subscription failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}

// eventLister narrows the admin service to the id stream the recounter walks.
type eventLister struct {
	admin *admin.Service
}

func (l eventLister) ListEvents(ctx context.Context, limit, offset int) ([]worker.EventRef, error) {
	events, err := l.admin.ListEvents(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	refs := make([]worker.EventRef, 0, len(events))
	for _, e := range events {
		refs = append(refs, worker.EventRef{ID: e.ID})
	}
	return refs, nil
}
