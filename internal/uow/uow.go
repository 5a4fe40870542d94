package uow

import (
	"context"

	"github.com/jackc/pgx/v5"

	postgres "github.com/hirokisan/seatres/internal/repository/postgres"
)

// AfterCommit is a function that runs after a successful transaction commit.
// Counter adjustments and cache invalidations go through hooks so they only
// fire once the seat-state change is durable.
type AfterCommit func(ctx context.Context)

// UoW runs a function inside one store transaction and executes the hooks it
// registered after the commit lands.
type UoW struct {
	store *postgres.Store
}

func NewUoW(store *postgres.Store) *UoW {
	return &UoW{store: store}
}

func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx postgres.DB, after func(AfterCommit)) error,
) error {
	return u.DoWithOpts(ctx, nil, fn)
}

func (u *UoW) DoWithOpts(
	ctx context.Context,
	opts *pgx.TxOptions,
	fn func(ctx context.Context, tx postgres.DB, after func(AfterCommit)) error,
) error {
	var hooks []AfterCommit

	err := u.store.RunTx(ctx, opts, func(ctx context.Context, tx postgres.DB) error {
		return fn(ctx, tx, func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
