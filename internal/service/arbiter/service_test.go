package arbiter

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hirokisan/seatres/internal/domain"
	"github.com/hirokisan/seatres/internal/outcome"
	"github.com/hirokisan/seatres/internal/repository"
)

// memStore is an in-memory Store whose Claim and ReleaseReservation hold a
// single mutex, giving the same all-or-nothing semantics as the row-locked
// transaction in Postgres.
type memStore struct {
	mu           sync.Mutex
	events       map[int64]*domain.Event
	seats        map[int64]*domain.Seat
	reservations map[uuid.UUID]*domain.Reservation
	claimCalls   int
}

func newMemStore(eventID int64, seatIDs ...int64) *memStore {
	s := &memStore{
		events:       map[int64]*domain.Event{},
		seats:        map[int64]*domain.Seat{},
		reservations: map[uuid.UUID]*domain.Reservation{},
	}
	s.events[eventID] = &domain.Event{ID: eventID, Name: "show", Capacity: len(seatIDs)}
	for _, id := range seatIDs {
		s.seats[id] = &domain.Seat{
			ID:      id,
			EventID: eventID,
			Label:   fmt.Sprintf("S%d", id),
			Status:  domain.SeatAvailable,
		}
	}
	return s
}

func (s *memStore) GetEvent(_ context.Context, id int64) (*domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *memStore) Claim(_ context.Context, eventID int64, actorID, idempotencyKey string, seatIDs []int64) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimCalls++

	if _, ok := s.events[eventID]; !ok {
		return nil, repository.ErrNotFound
	}

	var unavailable []int64
	for _, id := range seatIDs {
		seat, ok := s.seats[id]
		if !ok || seat.EventID != eventID {
			return nil, repository.ErrSeatNotFound
		}
		if seat.Status != domain.SeatAvailable {
			unavailable = append(unavailable, id)
		}
	}
	if len(unavailable) > 0 {
		sort.Slice(unavailable, func(i, j int) bool { return unavailable[i] < unavailable[j] })
		return nil, &repository.SeatsUnavailableError{SeatIDs: unavailable}
	}

	resv := &domain.Reservation{
		ID:             uuid.New(),
		EventID:        eventID,
		ActorID:        actorID,
		IdempotencyKey: idempotencyKey,
		SeatIDs:        append([]int64(nil), seatIDs...),
	}
	for _, id := range seatIDs {
		s.seats[id].Status = domain.SeatReserved
		rid := resv.ID
		s.seats[id].ReservationID = &rid
	}
	s.reservations[resv.ID] = resv

	cp := *resv
	return &cp, nil
}

func (s *memStore) ReleaseReservation(_ context.Context, id uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resv, ok := s.reservations[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	var released int64
	for _, seatID := range resv.SeatIDs {
		if seat, ok := s.seats[seatID]; ok && seat.ReservationID != nil && *seat.ReservationID == id {
			seat.Status = domain.SeatAvailable
			seat.ReservationID = nil
			released++
		}
	}
	delete(s.reservations, id)
	return released, nil
}

func (s *memStore) GetReservation(_ context.Context, id uuid.UUID) (*domain.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resv, ok := s.reservations[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *resv
	return &cp, nil
}

func (s *memStore) availableCount() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, seat := range s.seats {
		if seat.Status == domain.SeatAvailable {
			n++
		}
	}
	return n
}

func (s *memStore) seatStatus(id int64) domain.SeatStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seats[id].Status
}

// memLedger arbitrates first-writer-wins per (actor, key) under a mutex.
type memLedger struct {
	mu      sync.Mutex
	entries map[string]outcome.Result

	// blindLookup makes Lookup always miss while RecordIfAbsent still sees
	// recorded entries. It simulates the window where two requests with the
	// same key both pass the pre-claim lookup.
	blindLookup bool
}

func newMemLedger() *memLedger {
	return &memLedger{entries: map[string]outcome.Result{}}
}

func (l *memLedger) key(actorID, key string) string { return actorID + "\x00" + key }

func (l *memLedger) Lookup(_ context.Context, actorID, key string) (outcome.Result, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.blindLookup {
		return outcome.Result{}, false, nil
	}
	res, ok := l.entries[l.key(actorID, key)]
	return res, ok, nil
}

func (l *memLedger) RecordIfAbsent(_ context.Context, actorID, key string, res outcome.Result) (outcome.Result, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := l.key(actorID, key)
	if existing, ok := l.entries[k]; ok {
		return existing, false, nil
	}
	l.entries[k] = res
	return res, true, nil
}

type memCounter struct {
	mu     sync.Mutex
	counts map[int64]int64
}

func newMemCounter(eventID, n int64) *memCounter {
	return &memCounter{counts: map[int64]int64{eventID: n}}
}

func (c *memCounter) Adjust(_ context.Context, eventID int64, delta int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[eventID] += delta
	return nil
}

func (c *memCounter) value(eventID int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[eventID]
}

func newTestService(store *memStore, ledger *memLedger, counter *memCounter) *Service {
	return New(store, ledger, counter, nil, nil)
}

func input(eventID int64, actor, key string, seatIDs ...int64) ReserveInput {
	return ReserveInput{
		EventID:        eventID,
		SeatIDs:        seatIDs,
		ActorID:        actor,
		IdempotencyKey: key,
	}
}

func TestReserve_Validation(t *testing.T) {
	store := newMemStore(1, 10)
	svc := newTestService(store, newMemLedger(), newMemCounter(1, 1))

	tests := []struct {
		name string
		in   ReserveInput
	}{
		{"missing actor", input(1, "", "k1", 10)},
		{"missing idempotency key", input(1, "alice", "", 10)},
		{"empty seat list", input(1, "alice", "k1")},
		{"duplicate seat ids", input(1, "alice", "k1", 10, 10)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := svc.Reserve(context.Background(), tt.in)
			require.NoError(t, err)
			assert.Equal(t, outcome.KindValidationError, res.Kind)
			assert.NotEmpty(t, res.Reason)
		})
	}

	// Rejected inputs never reach the store.
	assert.Equal(t, 0, store.claimCalls)
}

func TestReserve_EventNotFound(t *testing.T) {
	svc := newTestService(newMemStore(1, 10), newMemLedger(), newMemCounter(1, 1))

	res, err := svc.Reserve(context.Background(), input(99, "alice", "k1", 10))
	require.NoError(t, err)
	assert.Equal(t, outcome.KindNotFound, res.Kind)
	assert.Equal(t, "event", res.Resource)
}

func TestReserve_SeatNotFound(t *testing.T) {
	svc := newTestService(newMemStore(1, 10), newMemLedger(), newMemCounter(1, 1))

	res, err := svc.Reserve(context.Background(), input(1, "alice", "k1", 10, 999))
	require.NoError(t, err)
	assert.Equal(t, outcome.KindNotFound, res.Kind)
	assert.Equal(t, "seat", res.Resource)
}

func TestReserve_Success(t *testing.T) {
	store := newMemStore(1, 10, 11)
	counter := newMemCounter(1, 2)
	svc := newTestService(store, newMemLedger(), counter)

	res, err := svc.Reserve(context.Background(), input(1, "alice", "k1", 10, 11))
	require.NoError(t, err)
	require.Equal(t, outcome.KindSuccess, res.Kind)
	assert.NotEqual(t, uuid.Nil, res.ReservationID)
	assert.ElementsMatch(t, []int64{10, 11}, res.SeatIDs)

	assert.Equal(t, domain.SeatReserved, store.seatStatus(10))
	assert.Equal(t, domain.SeatReserved, store.seatStatus(11))
	assert.Equal(t, int64(0), counter.value(1))
}

func TestReserve_ConflictLeavesOtherSeatsUntouched(t *testing.T) {
	store := newMemStore(1, 10, 11)
	counter := newMemCounter(1, 2)
	svc := newTestService(store, newMemLedger(), counter)

	// Another actor holds seat 11.
	first, err := svc.Reserve(context.Background(), input(1, "bob", "kb", 11))
	require.NoError(t, err)
	require.Equal(t, outcome.KindSuccess, first.Kind)

	res, err := svc.Reserve(context.Background(), input(1, "alice", "k1", 10, 11))
	require.NoError(t, err)
	require.Equal(t, outcome.KindConflict, res.Kind)
	assert.Equal(t, []int64{11}, res.UnavailableSeatIDs)

	// The rejected request changed nothing: seat 10 stays available and the
	// counter still reflects bob's single claim.
	assert.Equal(t, domain.SeatAvailable, store.seatStatus(10))
	assert.Equal(t, int64(1), counter.value(1))
	assert.Equal(t, store.availableCount(), counter.value(1))
}

func TestReserve_IdempotentReplay(t *testing.T) {
	store := newMemStore(1, 10)
	counter := newMemCounter(1, 1)
	svc := newTestService(store, newMemLedger(), counter)

	first, err := svc.Reserve(context.Background(), input(1, "alice", "k1", 10))
	require.NoError(t, err)
	require.Equal(t, outcome.KindSuccess, first.Kind)

	second, err := svc.Reserve(context.Background(), input(1, "alice", "k1", 10))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// Replay short-circuits before the store; exactly one claim happened.
	assert.Equal(t, 1, store.claimCalls)
	assert.Equal(t, int64(0), counter.value(1))
}

func TestReserve_ConflictIsReplayedToo(t *testing.T) {
	store := newMemStore(1, 10)
	svc := newTestService(store, newMemLedger(), newMemCounter(1, 1))

	win, err := svc.Reserve(context.Background(), input(1, "bob", "kb", 10))
	require.NoError(t, err)
	require.Equal(t, outcome.KindSuccess, win.Kind)

	first, err := svc.Reserve(context.Background(), input(1, "alice", "k1", 10))
	require.NoError(t, err)
	require.Equal(t, outcome.KindConflict, first.Kind)

	claims := store.claimCalls

	second, err := svc.Reserve(context.Background(), input(1, "alice", "k1", 10))
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, claims, store.claimCalls)
}

func TestReserve_ExactlyOneWinner(t *testing.T) {
	const callers = 100

	store := newMemStore(1, 10)
	counter := newMemCounter(1, 1)
	svc := newTestService(store, newMemLedger(), counter)

	results := make([]outcome.Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := fmt.Sprintf("actor-%d", i)
			key := fmt.Sprintf("key-%d", i)
			res, err := svc.Reserve(context.Background(), input(1, actor, key, 10))
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	var successes, conflicts int
	for _, res := range results {
		switch res.Kind {
		case outcome.KindSuccess:
			successes++
		case outcome.KindConflict:
			conflicts++
			assert.Equal(t, []int64{10}, res.UnavailableSeatIDs)
		default:
			t.Fatalf("unexpected result kind %q", res.Kind)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, conflicts)
	assert.Equal(t, domain.SeatReserved, store.seatStatus(10))
	assert.Equal(t, int64(0), counter.value(1))
	assert.Equal(t, store.availableCount(), counter.value(1))
}

func TestReserve_ConcurrentSameKeyConverges(t *testing.T) {
	const callers = 16

	store := newMemStore(1, 10)
	counter := newMemCounter(1, 1)
	ledger := newMemLedger()
	ledger.blindLookup = true // every request races past the lookup
	svc := newTestService(store, ledger, counter)

	results := make([]outcome.Result, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.Reserve(context.Background(), input(1, "alice", "k1", 10))
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	// Whatever interleaving happened, every caller observed the single
	// recorded outcome.
	for i := 1; i < callers; i++ {
		assert.Equal(t, results[0], results[i])
	}
}

func TestReserve_DoubleMissLoserReleasesClaim(t *testing.T) {
	store := newMemStore(1, 10)
	counter := newMemCounter(1, 1)
	ledger := newMemLedger()
	svc := newTestService(store, ledger, counter)

	// A concurrent request with the same key already recorded a conflict,
	// but this request's lookup ran before that record landed.
	recorded := outcome.Conflict([]int64{10})
	_, ok, err := ledger.RecordIfAbsent(context.Background(), "alice", "k1", recorded)
	require.NoError(t, err)
	require.True(t, ok)
	ledger.blindLookup = true

	res, err := svc.Reserve(context.Background(), input(1, "alice", "k1", 10))
	require.NoError(t, err)

	// The claim succeeded locally but lost the record race, so it was
	// rolled back and the first recorded outcome returned.
	assert.Equal(t, recorded, res)
	assert.Equal(t, domain.SeatAvailable, store.seatStatus(10))
	assert.Equal(t, int64(1), counter.value(1))
	assert.Empty(t, store.reservations)
}

func TestRelease(t *testing.T) {
	store := newMemStore(1, 10, 11)
	counter := newMemCounter(1, 2)
	svc := newTestService(store, newMemLedger(), counter)

	res, err := svc.Reserve(context.Background(), input(1, "alice", "k1", 10, 11))
	require.NoError(t, err)
	require.Equal(t, outcome.KindSuccess, res.Kind)
	require.Equal(t, int64(0), counter.value(1))

	require.NoError(t, svc.Release(context.Background(), res.ReservationID))

	assert.Equal(t, domain.SeatAvailable, store.seatStatus(10))
	assert.Equal(t, domain.SeatAvailable, store.seatStatus(11))
	assert.Equal(t, int64(2), counter.value(1))
	assert.Equal(t, store.availableCount(), counter.value(1))
}

func TestRelease_NotFound(t *testing.T) {
	svc := newTestService(newMemStore(1, 10), newMemLedger(), newMemCounter(1, 1))

	err := svc.Release(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrReservationNotFound)
}

func TestGetReservation(t *testing.T) {
	store := newMemStore(1, 10)
	svc := newTestService(store, newMemLedger(), newMemCounter(1, 1))

	res, err := svc.Reserve(context.Background(), input(1, "alice", "k1", 10))
	require.NoError(t, err)
	require.Equal(t, outcome.KindSuccess, res.Kind)

	resv, err := svc.GetReservation(context.Background(), res.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, "alice", resv.ActorID)
	assert.Equal(t, []int64{10}, resv.SeatIDs)

	_, err = svc.GetReservation(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrReservationNotFound)
}
