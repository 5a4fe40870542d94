package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hirokisan/seatres/internal/outcome"
	redisx "github.com/hirokisan/seatres/internal/redis"
)

// recordIfAbsent writes the value only when the key is free, and hands the
// stored value back either way. The 1/0 flag tells the caller whether it won.
// KEYS[1] = key
// ARGV[1] = payload
// ARGV[2] = ttl_ms
const luaRecordIfAbsent = `
local ok = redis.call('SET', KEYS[1], ARGV[1], 'NX', 'PX', ARGV[2])
if ok then
  return {1, ARGV[1]}
end
return {0, redis.call('GET', KEYS[1])}
`

// Ledger maps an idempotency key to the classified result of the request
// that first used it. Keys are scoped per actor. Records expire after the
// retention window; an expired key reads as a miss.
type Ledger struct {
	rdb       *redis.Client
	retention time.Duration
	script    *redis.Script
}

func NewLedger(rdb *redis.Client, retention time.Duration) *Ledger {
	if retention <= 0 {
		retention = 15 * time.Minute
	}
	return &Ledger{
		rdb:       rdb,
		retention: retention,
		script:    redis.NewScript(luaRecordIfAbsent),
	}
}

// Lookup is a non-blocking read. The second return value reports a hit.
func (l *Ledger) Lookup(ctx context.Context, actorID, key string) (outcome.Result, bool, error) {
	const op = "redis.Ledger.Lookup"

	v, err := l.rdb.Get(ctx, redisx.KeyIdempotency(actorID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return outcome.Result{}, false, nil
	}
	if err != nil {
		return outcome.Result{}, false, fmt.Errorf("%s: %w", op, err)
	}

	var res outcome.Result
	if err := json.Unmarshal([]byte(v), &res); err != nil {
		return outcome.Result{}, false, fmt.Errorf("%s: %w", op, err)
	}

	return res, true, nil
}

// RecordIfAbsent atomically records res under the key if absent. The
// returned result is the one that won the write: res itself when recorded is
// true, the previously stored result otherwise. Concurrent replays of the
// same key converge here on a single outcome.
func (l *Ledger) RecordIfAbsent(ctx context.Context, actorID, key string, res outcome.Result) (outcome.Result, bool, error) {
	const op = "redis.Ledger.RecordIfAbsent"

	payload, err := json.Marshal(res)
	if err != nil {
		return outcome.Result{}, false, fmt.Errorf("%s: %w", op, err)
	}

	raw, err := l.script.Run(
		ctx,
		l.rdb,
		[]string{redisx.KeyIdempotency(actorID, key)},
		payload, l.retention.Milliseconds(),
	).Result()
	if err != nil {
		return outcome.Result{}, false, fmt.Errorf("%s: %w", op, err)
	}

	arr, ok := raw.([]any)
	if !ok || len(arr) != 2 {
		return outcome.Result{}, false, fmt.Errorf("%s: bad script result: %v", op, raw)
	}

	recorded := toInt(arr[0]) == 1

	stored, ok := arr[1].(string)
	if !ok {
		return outcome.Result{}, false, fmt.Errorf("%s: bad script payload: %v", op, arr[1])
	}

	var winner outcome.Result
	if err := json.Unmarshal([]byte(stored), &winner); err != nil {
		return outcome.Result{}, false, fmt.Errorf("%s: %w", op, err)
	}

	return winner, recorded, nil
}
