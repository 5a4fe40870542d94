package postgres

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/hirokisan/seatres/internal/domain"
	"github.com/hirokisan/seatres/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReservationRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *ReservationRepo) With(db DB) *ReservationRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *ReservationRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Claim atomically transitions every requested seat from available to
// reserved and records the confirmed reservation, all in one transaction.
// Row locks are taken in ascending seat-id order so concurrent claims on
// overlapping seat sets serialize instead of deadlocking; claims on disjoint
// seats never contend.
//
// Returns:
//   - repository.ErrSeatNotFound if any id is missing or belongs to a
//     different event (no state change).
//   - repository.SeatsUnavailableError listing the contested ids if any seat
//     is not available (no state change).
func (r *ReservationRepo) Claim(
	ctx context.Context,
	eventID int64,
	actorID string,
	idempotencyKey string,
	seatIDs []int64,
) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.Claim"

	if r.db != nil {
		res, err := r.claimCore(ctx, r.db, eventID, actorID, idempotencyKey, seatIDs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return res, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer tx.Rollback(ctx)

	res, err := r.claimCore(ctx, tx, eventID, actorID, idempotencyKey, seatIDs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return res, nil
}

func (r *ReservationRepo) claimCore(
	ctx context.Context,
	db DB,
	eventID int64,
	actorID string,
	idempotencyKey string,
	seatIDs []int64,
) (*domain.Reservation, error) {
	ordered := make([]int64, len(seatIDs))
	copy(ordered, seatIDs)
	slices.Sort(ordered)

	rows, err := db.Query(ctx,
		`SELECT id, status
       	 FROM seats
      	 WHERE event_id = $1 AND id = ANY($2)
      	 ORDER BY id
        FOR UPDATE`,
		eventID, ordered,
	)
	if err != nil {
		return nil, translateDBErr(err)
	}

	statuses := make(map[int64]domain.SeatStatus, len(ordered))
	for rows.Next() {
		var id int64
		var status string
		if err := rows.Scan(&id, &status); err != nil {
			rows.Close()
			return nil, translateDBErr(err)
		}
		statuses[id] = domain.SeatStatus(status)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, translateDBErr(err)
	}

	if len(statuses) != len(ordered) {
		return nil, repository.ErrSeatNotFound
	}

	var unavailable []int64
	for _, id := range ordered {
		if statuses[id] != domain.SeatAvailable {
			unavailable = append(unavailable, id)
		}
	}
	if len(unavailable) > 0 {
		return nil, &repository.SeatsUnavailableError{SeatIDs: unavailable}
	}

	res := &domain.Reservation{
		ID:             uuid.New(),
		EventID:        eventID,
		ActorID:        actorID,
		IdempotencyKey: idempotencyKey,
		SeatIDs:        seatIDs,
		CreatedAt:      time.Now().UTC(),
	}

	// The reservation row goes in first: seats.reservation_id carries a
	// non-deferrable FK onto reservations(id), checked at the end of each
	// statement.
	if _, err := db.Exec(ctx,
		`INSERT INTO reservations(id, event_id, actor_id, idempotency_key, status, created_at)
       	 VALUES ($1, $2, $3, $4, 'confirmed', $5)`,
		res.ID, eventID, actorID, idempotencyKey, res.CreatedAt,
	); err != nil {
		return nil, translateDBErr(err)
	}

	tag, err := db.Exec(ctx,
		`UPDATE seats
        	SET status = 'reserved', reservation_id = $1
      	 WHERE id = ANY($2) AND status = 'available'`,
		res.ID, ordered,
	)
	if err != nil {
		return nil, translateDBErr(err)
	}
	if int(tag.RowsAffected()) != len(ordered) {
		// Cannot happen under the row locks above; treat as corruption.
		return nil, repository.ErrConflict
	}

	batch := &pgx.Batch{}
	for _, sid := range seatIDs {
		batch.Queue(
			`INSERT INTO reservation_seats(reservation_id, seat_id)
         	 VALUES ($1, $2)`,
			res.ID, sid,
		)
	}
	if err := db.SendBatch(ctx, batch).Close(); err != nil {
		return nil, translateDBErr(err)
	}

	return res, nil
}

// Get retrieves a reservation with its seat ids.
//
// Returns repository.ErrNotFound if the reservation does not exist.
func (r *ReservationRepo) Get(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	const op = "postgres.ReservationRepo.Get"

	db := r.handle()

	var res domain.Reservation
	err := db.QueryRow(ctx,
		`SELECT id, event_id, actor_id, idempotency_key, created_at
       	 FROM reservations WHERE id = $1`,
		id,
	).Scan(&res.ID, &res.EventID, &res.ActorID, &res.IdempotencyKey, &res.CreatedAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	rows, err := db.Query(ctx,
		`SELECT seat_id FROM reservation_seats WHERE reservation_id = $1 ORDER BY seat_id`,
		id,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	for rows.Next() {
		var sid int64
		if err := rows.Scan(&sid); err != nil {
			return nil, wrapDBErr(op, err)
		}
		res.SeatIDs = append(res.SeatIDs, sid)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &res, nil
}

// Release undoes a reservation: seats go back to available and the
// reservation row is removed. Used by the external cancellation flow and by
// the arbiter when it loses the ledger write race.
//
// Returns the number of seats released, or repository.ErrNotFound if the
// reservation does not exist.
func (r *ReservationRepo) Release(ctx context.Context, reservationID uuid.UUID) (int64, error) {
	const op = "postgres.ReservationRepo.Release"

	if r.db != nil {
		n, err := r.releaseCore(ctx, r.db, reservationID)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", op, err)
		}
		return n, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	defer tx.Rollback(ctx)

	n, err := r.releaseCore(ctx, tx, reservationID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, wrapDBErr(op, err)
	}

	return n, nil
}

func (r *ReservationRepo) releaseCore(ctx context.Context, db DB, reservationID uuid.UUID) (int64, error) {
	tag, err := db.Exec(ctx,
		`UPDATE seats
        	SET status = 'available', reservation_id = NULL
      	 WHERE reservation_id = $1 AND status = 'reserved'`,
		reservationID,
	)
	if err != nil {
		return 0, translateDBErr(err)
	}

	released := tag.RowsAffected()

	ct, err := db.Exec(ctx, `DELETE FROM reservations WHERE id = $1`, reservationID)
	if err != nil {
		return released, translateDBErr(err)
	}
	if ct.RowsAffected() == 0 {
		return released, repository.ErrNotFound
	}

	return released, nil
}
