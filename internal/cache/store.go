// Package cache implements the reservation store: the Redis-resident stock
// counters, purchase markers, result slots, admission tokens, rate-limit
// windows and catalog entries.  Every multi-step mutation of the hot keys
// runs as a single server-side Lua script.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReserveResult is the outcome of the atomic reservation script.
type ReserveResult int

const (
	ReserveDuplicate ReserveResult = -1
	ReserveEmpty     ReserveResult = 0
	ReserveSuccess   ReserveResult = 1
)

func (r ReserveResult) String() string {
	switch r {
	case ReserveDuplicate:
		return "duplicate"
	case ReserveEmpty:
		return "empty"
	case ReserveSuccess:
		return "success"
	}
	return "unknown"
}

// reserveScript: KEYS[1]=stock, KEYS[2]=marker, ARGV[1]=marker ttl seconds.
// Returns -1 duplicate, 0 stock empty, 1 reserved.
var reserveScript = redis.NewScript(`
local stock_key = KEYS[1]
local marker_key = KEYS[2]
if redis.call('EXISTS', marker_key) == 1 then
    return -1
end
local stock = tonumber(redis.call('GET', stock_key))
if stock == nil or stock <= 0 then
    return 0
end
redis.call('DECR', stock_key)
redis.call('SET', marker_key, 1, 'EX', tonumber(ARGV[1]))
return 1
`)

// releaseScript gives one unit back to KEYS[1] when the counter still
// exists and deletes every other key.  A missing counter is never
// recreated.  Returns 1 when the counter was incremented.
var releaseScript = redis.NewScript(`
local restored = 0
if redis.call('EXISTS', KEYS[1]) == 1 then
    redis.call('INCR', KEYS[1])
    restored = 1
end
for i = 2, #KEYS do
    redis.call('DEL', KEYS[i])
end
return restored
`)

// hitScript increments a window counter and sets its expiry only on the
// first hit of the window.  ARGV[1]=window in milliseconds.
var hitScript = redis.NewScript(`
local n = redis.call('INCR', KEYS[1])
if n == 1 then
    redis.call('PEXPIRE', KEYS[1], tonumber(ARGV[1]))
end
return n
`)

// Store is the reservation store backed by Redis.
type Store struct {
	rdb redis.UniversalClient
}

// New returns a Store using rdb.
func New(rdb redis.UniversalClient) *Store { return &Store{rdb: rdb} }

// Client exposes the underlying client for health checks.
func (s *Store) Client() redis.UniversalClient { return s.rdb }

// Reserve atomically rejects a duplicate purchase or takes one unit of
// stock and creates the purchase marker with markerTTL.
func (s *Store) Reserve(ctx context.Context, activityID, userID uint64, markerTTL time.Duration) (ReserveResult, error) {
	n, err := reserveScript.Run(ctx, s.rdb,
		[]string{StockKey(activityID), MarkerKey(userID, activityID)},
		int64(markerTTL/time.Second)).Int64()
	if err != nil {
		return ReserveEmpty, fmt.Errorf("reserve stock: %w", err)
	}
	switch ReserveResult(n) {
	case ReserveDuplicate, ReserveEmpty, ReserveSuccess:
		return ReserveResult(n), nil
	}
	return ReserveEmpty, fmt.Errorf("reserve stock: unexpected script result %d", n)
}

// Release undoes a reservation: one unit back to the counter (if it still
// exists) and the purchase marker deleted.  With clearResult the result
// slot is deleted too.  It reports whether the counter was incremented.
func (s *Store) Release(ctx context.Context, activityID, userID uint64, clearResult bool) (bool, error) {
	keys := []string{StockKey(activityID), MarkerKey(userID, activityID)}
	if clearResult {
		keys = append(keys, ResultKey(userID, activityID))
	}
	n, err := releaseScript.Run(ctx, s.rdb, keys).Int64()
	if err != nil {
		return false, fmt.Errorf("release reservation: %w", err)
	}
	return n == 1, nil
}

// ReturnUnit gives one unit back to the counter without touching any
// marker.  A missing counter is left missing.
func (s *Store) ReturnUnit(ctx context.Context, activityID uint64) (bool, error) {
	n, err := releaseScript.Run(ctx, s.rdb, []string{StockKey(activityID)}).Int64()
	if err != nil {
		return false, fmt.Errorf("return unit: %w", err)
	}
	return n == 1, nil
}

// WarmStock sets the counter only when it is absent.  It reports whether
// the value was written.
func (s *Store) WarmStock(ctx context.Context, activityID uint64, stock int64) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, StockKey(activityID), stock, 0).Result()
	if err != nil {
		return false, fmt.Errorf("warm stock: %w", err)
	}
	return ok, nil
}

// SetStock overwrites the counter.  Only administrative resets use it.
func (s *Store) SetStock(ctx context.Context, activityID uint64, stock int64) error {
	return s.rdb.Set(ctx, StockKey(activityID), stock, 0).Err()
}

// Stock returns the counter and whether it exists.
func (s *Store) Stock(ctx context.Context, activityID uint64) (int64, bool, error) {
	n, err := s.rdb.Get(ctx, StockKey(activityID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// Stocks returns the counters of several activities.  Missing counters
// are absent from the map.
func (s *Store) Stocks(ctx context.Context, activityIDs []uint64) (map[uint64]int64, error) {
	out := make(map[uint64]int64, len(activityIDs))
	if len(activityIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(activityIDs))
	for i, id := range activityIDs {
		keys[i] = StockKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		if n, err := strconv.ParseInt(str, 10, 64); err == nil {
			out[activityIDs[i]] = n
		}
	}
	return out, nil
}

// DeleteStock removes the counter of an ended or deleted activity.
func (s *Store) DeleteStock(ctx context.Context, activityID uint64) error {
	return s.rdb.Del(ctx, StockKey(activityID)).Err()
}

// Marked reports whether the purchase marker of (user, activity) exists.
func (s *Store) Marked(ctx context.Context, userID, activityID uint64) (bool, error) {
	n, err := s.rdb.Exists(ctx, MarkerKey(userID, activityID)).Result()
	return n == 1, err
}

// SetResult writes the async outcome: an order id, or a negative sentinel.
func (s *Store) SetResult(ctx context.Context, userID, activityID uint64, value int64, ttl time.Duration) error {
	return s.rdb.Set(ctx, ResultKey(userID, activityID), value, ttl).Err()
}

// Result returns the async outcome and whether the slot exists.
func (s *Store) Result(ctx context.Context, userID, activityID uint64) (int64, bool, error) {
	n, err := s.rdb.Get(ctx, ResultKey(userID, activityID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// SetPath stores the one-time purchase path token.
func (s *Store) SetPath(ctx context.Context, userID, activityID uint64, token string, ttl time.Duration) error {
	return s.rdb.Set(ctx, PathKey(userID, activityID), token, ttl).Err()
}

// TakePath reads and deletes the path token in one command.
func (s *Store) TakePath(ctx context.Context, userID, activityID uint64) (string, bool, error) {
	return s.take(ctx, PathKey(userID, activityID))
}

// SetCaptcha stores the expected captcha answer.
func (s *Store) SetCaptcha(ctx context.Context, userID, activityID uint64, answer int, ttl time.Duration) error {
	return s.rdb.Set(ctx, CaptchaKey(userID, activityID), answer, ttl).Err()
}

// TakeCaptcha reads and deletes the expected captcha answer.
func (s *Store) TakeCaptcha(ctx context.Context, userID, activityID uint64) (string, bool, error) {
	return s.take(ctx, CaptchaKey(userID, activityID))
}

func (s *Store) take(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.GetDel(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Hit counts one call against a fixed window and returns the count so
// far, expiry set on the first call of the window only.
func (s *Store) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	return hitScript.Run(ctx, s.rdb, []string{key}, window.Milliseconds()).Int64()
}

// GetJSON decodes a cached JSON value into dst.  It reports false on a
// miss.
func (s *Store) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	b, err := s.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, err
	}
	return true, nil
}

// SetJSON caches v as JSON under key for ttl.
func (s *Store) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, b, ttl).Err()
}

// Evict deletes the given keys.
func (s *Store) Evict(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}
