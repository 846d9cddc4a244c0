package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return New(rdb), mr
}

func TestReserveThreeWayContract(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetStock(ctx, 1, 1))

	res, err := s.Reserve(ctx, 1, 10, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ReserveSuccess, res)

	res, err = s.Reserve(ctx, 1, 10, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ReserveDuplicate, res)

	res, err = s.Reserve(ctx, 1, 11, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ReserveEmpty, res)

	got, err := mr.Get(StockKey(1))
	require.NoError(t, err)
	assert.Equal(t, "0", got)
	assert.Equal(t, 24*time.Hour, mr.TTL(MarkerKey(10, 1)))
	assert.False(t, mr.Exists(MarkerKey(11, 1)))
}

func TestReserveWithoutCounterIsEmpty(t *testing.T) {
	s, mr := newTestStore(t)
	res, err := s.Reserve(context.Background(), 2, 10, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, ReserveEmpty, res)
	assert.False(t, mr.Exists(StockKey(2)))
	assert.False(t, mr.Exists(MarkerKey(10, 2)))
}

func TestReserveNeverOversells(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	const stock = 10
	const users = 200
	require.NoError(t, s.SetStock(ctx, 3, stock))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for u := 1; u <= users; u++ {
		wg.Add(1)
		go func(uid uint64) {
			defer wg.Done()
			res, err := s.Reserve(ctx, 3, uid, time.Hour)
			if err != nil {
				t.Error(err)
				return
			}
			if res == ReserveSuccess {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}(uint64(u))
	}
	wg.Wait()

	assert.Equal(t, stock, success)
	got, _ := mr.Get(StockKey(3))
	assert.Equal(t, "0", got)
}

func TestReserveSameUserConcurrentlyOnce(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetStock(ctx, 4, 100))

	results := make(chan ReserveResult, 20)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Reserve(ctx, 4, 7, time.Hour)
			if err != nil {
				t.Error(err)
				return
			}
			results <- res
		}()
	}
	wg.Wait()
	close(results)

	counts := map[ReserveResult]int{}
	for r := range results {
		counts[r]++
	}
	assert.Equal(t, 1, counts[ReserveSuccess])
	assert.Equal(t, 19, counts[ReserveDuplicate])
	n, ok, err := s.Stock(ctx, 4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(99), n)
}

func TestReleaseRoundTrip(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetStock(ctx, 5, 3))

	_, err := s.Reserve(ctx, 5, 9, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.SetResult(ctx, 9, 5, 77, time.Hour))

	restored, err := s.Release(ctx, 5, 9, true)
	require.NoError(t, err)
	assert.True(t, restored)

	got, _ := mr.Get(StockKey(5))
	assert.Equal(t, "3", got)
	assert.False(t, mr.Exists(MarkerKey(9, 5)))
	assert.False(t, mr.Exists(ResultKey(9, 5)))
}

func TestReleaseDoesNotResurrectDeletedCounter(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	mr.Set(MarkerKey(9, 6), "1")

	restored, err := s.Release(ctx, 6, 9, false)
	require.NoError(t, err)
	assert.False(t, restored)
	assert.False(t, mr.Exists(StockKey(6)))
	assert.False(t, mr.Exists(MarkerKey(9, 6)))
}

func TestReturnUnitKeepsMarker(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetStock(ctx, 7, 0))
	mr.Set(MarkerKey(1, 7), "1")

	ok, err := s.ReturnUnit(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)
	got, _ := mr.Get(StockKey(7))
	assert.Equal(t, "1", got)
	assert.True(t, mr.Exists(MarkerKey(1, 7)))
}

func TestWarmStockOnlyIfAbsent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := s.WarmStock(ctx, 8, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	_, err = s.Reserve(ctx, 8, 1, time.Hour)
	require.NoError(t, err)

	ok, err = s.WarmStock(ctx, 8, 10)
	require.NoError(t, err)
	assert.False(t, ok)
	n, _, err := s.Stock(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)
}

func TestTakePathIsSingleUse(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetPath(ctx, 1, 2, "abc", time.Minute))

	v, ok, err := s.TakePath(ctx, 1, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "abc", v)

	_, ok, err = s.TakePath(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetPath(ctx, 1, 2, "def", time.Minute))
	mr.FastForward(61 * time.Second)
	_, ok, err = s.TakePath(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHitFixedWindow(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	key := RateKey("", "execute", "user:1")
	assert.Equal(t, "ratelimit:execute:user:1", key)

	for i := int64(1); i <= 4; i++ {
		n, err := s.Hit(ctx, key, 5*time.Second)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
	assert.Equal(t, 5*time.Second, mr.TTL(key))

	mr.FastForward(5 * time.Second)
	n, err := s.Hit(ctx, key, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 5*time.Second, mr.TTL(key))
}

func TestStocksSkipsMissing(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SetStock(ctx, 1, 4))

	got, err := s.Stocks(ctx, []uint64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, map[uint64]int64{1: 4}, got)
}

func TestJSONRoundTripAndEvict(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	type entry struct {
		Name string `json:"name"`
	}
	require.NoError(t, s.SetJSON(ctx, DetailKey(3), entry{Name: "phone"}, time.Minute))
	assert.Equal(t, time.Minute, mr.TTL(DetailKey(3)))

	var got entry
	ok, err := s.GetJSON(ctx, DetailKey(3), &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "phone", got.Name)

	require.NoError(t, s.Evict(ctx, DetailKey(3), ListKey))
	ok, err = s.GetJSON(ctx, DetailKey(3), &got)
	require.NoError(t, err)
	assert.False(t, ok)
}
