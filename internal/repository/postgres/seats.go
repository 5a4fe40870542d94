package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hirokisan/seatres/internal/domain"
	"github.com/hirokisan/seatres/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SeatRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *SeatRepo) With(db DB) *SeatRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *SeatRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// CreateBatch inserts all specs as one atomic unit: either every seat is
// created or none is. A duplicate label inside the batch or against existing
// seats of the event surfaces as repository.InvalidSeatSpecError, as does a
// non-positive price. The caller must run this inside a transaction when it
// holds one; standalone calls open their own.
func (r *SeatRepo) CreateBatch(ctx context.Context, eventID int64, specs []domain.SeatSpec) ([]domain.Seat, error) {
	const op = "postgres.SeatRepo.CreateBatch"

	if err := validateSpecs(specs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if r.db != nil {
		seats, err := r.createBatchCore(ctx, r.db, eventID, specs)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, translateBatchErr(err))
		}
		return seats, nil
	}

	var seats []domain.Seat
	err := r.runTx(ctx, func(tx DB) error {
		var err error
		seats, err = r.createBatchCore(ctx, tx, eventID, specs)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, translateBatchErr(err))
	}

	return seats, nil
}

func (r *SeatRepo) createBatchCore(ctx context.Context, db DB, eventID int64, specs []domain.SeatSpec) ([]domain.Seat, error) {
	batch := &pgx.Batch{}
	for _, sp := range specs {
		batch.Queue(
			`INSERT INTO seats(event_id, label, section, seat_row, price_cents, status)
         	 VALUES ($1, $2, $3, $4, $5, 'available')
       		 RETURNING id`,
			eventID, sp.Label, sp.Section, sp.Row, sp.PriceCents,
		)
	}

	br := db.SendBatch(ctx, batch)
	defer br.Close()

	seats := make([]domain.Seat, 0, len(specs))
	for _, sp := range specs {
		var id int64
		if err := br.QueryRow().Scan(&id); err != nil {
			return nil, err
		}
		seats = append(seats, domain.Seat{
			ID:         id,
			EventID:    eventID,
			Label:      sp.Label,
			Section:    sp.Section,
			Row:        sp.Row,
			PriceCents: sp.PriceCents,
			Status:     domain.SeatAvailable,
		})
	}

	return seats, nil
}

// Get retrieves a seat by its ID.
//
// Returns repository.ErrSeatNotFound if the seat does not exist.
func (r *SeatRepo) Get(ctx context.Context, id int64) (*domain.Seat, error) {
	const op = "postgres.SeatRepo.Get"

	db := r.handle()

	var s domain.Seat
	var status string
	err := db.QueryRow(ctx,
		`SELECT id, event_id, label, section, seat_row, price_cents, status, reservation_id
       	 FROM seats WHERE id = $1`,
		id,
	).Scan(&s.ID, &s.EventID, &s.Label, &s.Section, &s.Row, &s.PriceCents, &status, &s.ReservationID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, repository.ErrSeatNotFound)
		}
		return nil, wrapDBErr(op, err)
	}

	s.Status = domain.SeatStatus(status)

	return &s, nil
}

func (r *SeatRepo) ListByEvent(ctx context.Context, eventID int64, onlyAvailable bool, limit, offset int) ([]domain.Seat, error) {
	const op = "postgres.SeatRepo.ListByEvent"

	db := r.handle()

	q := `SELECT id, event_id, label, section, seat_row, price_cents, status, reservation_id
		  FROM seats
		  WHERE event_id = $1`
	if onlyAvailable {
		q += ` AND status = 'available'`
	}
	q += ` ORDER BY section, seat_row, label
		   LIMIT $2 OFFSET $3`

	rows, err := db.Query(ctx, q, eventID, limit, offset)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	defer rows.Close()

	var out []domain.Seat
	for rows.Next() {
		var s domain.Seat
		var status string
		if err := rows.Scan(&s.ID, &s.EventID, &s.Label, &s.Section, &s.Row, &s.PriceCents, &status, &s.ReservationID); err != nil {
			return nil, wrapDBErr(op, err)
		}
		s.Status = domain.SeatStatus(status)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}

// CountAvailable is the ground-truth recount the availability counter is
// reconciled against.
func (r *SeatRepo) CountAvailable(ctx context.Context, eventID int64) (int64, error) {
	const op = "postgres.SeatRepo.CountAvailable"

	db := r.handle()

	var n int64
	err := db.QueryRow(ctx,
		`SELECT COUNT(*) FROM seats WHERE event_id = $1 AND status = 'available'`,
		eventID,
	).Scan(&n)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return n, nil
}

func (r *SeatRepo) runTx(ctx context.Context, fn func(tx DB) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return err
	}

	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func validateSpecs(specs []domain.SeatSpec) error {
	seen := make(map[string]struct{}, len(specs))
	for _, sp := range specs {
		if sp.Label == "" {
			return &repository.InvalidSeatSpecError{Label: sp.Label, Reason: "empty label"}
		}
		if sp.PriceCents <= 0 {
			return &repository.InvalidSeatSpecError{Label: sp.Label, Reason: "non-positive price"}
		}
		if _, dup := seen[sp.Label]; dup {
			return &repository.InvalidSeatSpecError{Label: sp.Label, Reason: "duplicate label in batch"}
		}
		seen[sp.Label] = struct{}{}
	}
	return nil
}

// translateBatchErr turns the unique (event_id, label) violation into the
// same spec error a pre-flight duplicate check produces, so callers see one
// validation taxonomy regardless of where the duplicate was caught. The
// colliding label comes from the violation detail; when Postgres omits it
// the error names no label rather than a wrong one.
func translateBatchErr(err error) error {
	var pge *pgconn.PgError
	if errors.As(err, &pge) && pge.Code == "23505" {
		return &repository.InvalidSeatSpecError{
			Label:  duplicateLabel(pge.Detail),
			Reason: "duplicate label for event",
		}
	}
	return translateDBErr(err)
}

// duplicateLabel extracts the label from a unique-violation detail of the
// form `Key (event_id, label)=(3, A-1) already exists.`.
func duplicateLabel(detail string) string {
	start := strings.Index(detail, ")=(")
	if start == -1 {
		return ""
	}
	rest := detail[start+3:]
	end := strings.Index(rest, ")")
	if end == -1 {
		return ""
	}
	parts := strings.Split(rest[:end], ", ")
	return parts[len(parts)-1]
}
