package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	redisx "github.com/hirokisan/seatres/internal/redis"
)

// ErrCounterMiss signals the counter key is absent and a recompute from the
// inventory store is needed.
var ErrCounterMiss = errors.New("availability counter miss")

// adjust only touches an existing key: if the counter was never primed (or
// expired), skipping the delta is safe because the next read recomputes from
// the store.
// KEYS[1] = key
// ARGV[1] = delta
const luaAdjustIfExists = `
if redis.call('EXISTS', KEYS[1]) == 1 then
  return redis.call('INCRBY', KEYS[1], ARGV[1])
end
return -1
`

// Counter keeps the fast-path count of available seats per event.
type Counter struct {
	rdb    *redis.Client
	ttl    time.Duration
	script *redis.Script
}

func NewCounter(rdb *redis.Client, ttl time.Duration) *Counter {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Counter{
		rdb:    rdb,
		ttl:    ttl,
		script: redis.NewScript(luaAdjustIfExists),
	}
}

// Get returns the cached count, or ErrCounterMiss when the key is absent.
func (c *Counter) Get(ctx context.Context, eventID int64) (int64, error) {
	const op = "redis.Counter.Get"

	v, err := c.rdb.Get(ctx, redisx.KeyAvailableCount(eventID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, ErrCounterMiss
	}
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return v, nil
}

// Adjust applies delta to the counter if it is primed. Called synchronously
// after the store transaction commits and before the arbitration call
// returns, so callers never observe a stale count once reserve resolves.
func (c *Counter) Adjust(ctx context.Context, eventID int64, delta int64) error {
	const op = "redis.Counter.Adjust"

	if err := c.script.Run(
		ctx,
		c.rdb,
		[]string{redisx.KeyAvailableCount(eventID)},
		delta,
	).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Set primes the counter with a freshly recomputed count.
func (c *Counter) Set(ctx context.Context, eventID int64, count int64) error {
	const op = "redis.Counter.Set"

	if err := c.rdb.Set(ctx, redisx.KeyAvailableCount(eventID), count, c.ttl).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Drop removes the counter, e.g. when the event is deleted.
func (c *Counter) Drop(ctx context.Context, eventID int64) error {
	const op = "redis.Counter.Drop"

	if err := c.rdb.Del(ctx, redisx.KeyAvailableCount(eventID)).Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
