package postgres

import (
	"context"
	"fmt"

	"github.com/hirokisan/seatres/internal/domain"
	"github.com/hirokisan/seatres/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EventRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *EventRepo) With(db DB) *EventRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *EventRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

func (r *EventRepo) Create(ctx context.Context, e *domain.Event) (int64, error) {
	const op = "postgres.EventRepo.Create"

	db := r.handle()

	var id int64
	if err := db.QueryRow(ctx,
		`INSERT INTO events(name, venue, starts_at, ends_at, capacity)
       	 VALUES ($1, $2, $3, $4, $5)
     	 RETURNING id`,
		e.Name, e.Venue, e.Starts, e.Ends, e.Capacity,
	).Scan(&id); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return id, nil
}

// Get retrieves an event by its ID.
//
// Returns repository.ErrNotFound if the event does not exist.
func (r *EventRepo) Get(ctx context.Context, id int64) (*domain.Event, error) {
	const op = "postgres.EventRepo.Get"

	db := r.handle()

	var e domain.Event
	err := db.QueryRow(ctx,
		`SELECT id, name, venue, starts_at, ends_at, capacity
       	 FROM events WHERE id = $1`,
		id,
	).Scan(&e.ID, &e.Name, &e.Venue, &e.Starts, &e.Ends, &e.Capacity)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &e, nil
}

func (r *EventRepo) List(ctx context.Context, limit, offset int) ([]domain.Event, error) {
	const op = "postgres.EventRepo.List"

	db := r.handle()

	rows, err := db.Query(ctx,
		`SELECT id, name, venue, starts_at, ends_at, capacity
		 FROM events
		 ORDER BY starts_at
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Venue, &e.Starts, &e.Ends, &e.Capacity); err != nil {
			return nil, wrapDBErr(op, err)
		}

		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// Delete removes the event; seats, reservations, and their seat links go
// with it via ON DELETE CASCADE. Returns repository.ErrNotFound if the event
// does not exist.
func (r *EventRepo) Delete(ctx context.Context, id int64) error {
	const op = "postgres.EventRepo.Delete"

	db := r.handle()

	tag, err := db.Exec(ctx, `DELETE FROM events WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

// CountsByStatus counts seats by status for an event. The event's existence
// is verified separately since an event with zero seats is a valid state.
func (r *EventRepo) CountsByStatus(ctx context.Context, eventID int64) (*domain.EventCounts, error) {
	const op = "postgres.EventRepo.CountsByStatus"

	db := r.handle()

	var ec domain.EventCounts
	err := db.QueryRow(ctx,
		`SELECT
       	 	COALESCE(SUM(CASE WHEN status = 'available' THEN 1 ELSE 0 END), 0),
    	 	COALESCE(SUM(CASE WHEN status = 'held' THEN 1 ELSE 0 END), 0),
       	 	COALESCE(SUM(CASE WHEN status = 'reserved' THEN 1 ELSE 0 END), 0)
     	 FROM seats
     	 WHERE event_id = $1`,
		eventID,
	).Scan(&ec.Available, &ec.Held, &ec.Reserved)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	ec.Total = ec.Available + ec.Held + ec.Reserved

	return &ec, nil
}
