package service

import (
	"context"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seckill/internal/cache"
	"github.com/iliyamo/seckill/internal/model"
	"github.com/iliyamo/seckill/internal/repository"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// memDB is an in-memory system of record implementing every repository
// interface the services consume.
type memDB struct {
	mu       sync.Mutex
	acts     map[uint64]*model.Activity
	orders   map[uint64]*model.Order
	guards   map[[2]uint64]uint64
	nextID   uint64
	now      time.Time
	getErr   error
	placeErr error

	getCalls  int
	listCalls int
}

func newMemDB() *memDB {
	return &memDB{
		acts:   map[uint64]*model.Activity{},
		orders: map[uint64]*model.Order{},
		guards: map[[2]uint64]uint64{},
		nextID: 100,
		now:    testNow,
	}
}

func (m *memDB) put(a *model.Activity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acts[a.ID] = a
}

func (m *memDB) activity(id uint64) model.Activity {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.acts[id]
}

func (m *memDB) order(id uint64) model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.orders[id]
}

func (m *memDB) GetByID(_ context.Context, id uint64) (*model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	a, ok := m.acts[id]
	if !ok {
		return nil, repository.ErrActivityNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memDB) filter(keep func(a *model.Activity) bool) []model.Activity {
	out := []model.Activity{}
	for _, a := range m.acts {
		if keep(a) {
			out = append(out, *a)
		}
	}
	slices.SortFunc(out, func(a, b model.Activity) int { return int(a.ID) - int(b.ID) })
	return out
}

func (m *memDB) ListOnSale(context.Context) ([]model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	return m.filter(func(a *model.Activity) bool { return a.GoodsOnSale }), nil
}

func (m *memDB) ListActive(context.Context) ([]model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(a *model.Activity) bool { return a.Status == model.ActivityActive }), nil
}

func (m *memDB) ListAll(context.Context) ([]model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(*model.Activity) bool { return true }), nil
}

func (m *memDB) ResetStock(_ context.Context, id uint64, stock int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.acts[id]; ok {
		a.StockCount = stock
	}
	return nil
}

func (m *memDB) SoftDelete(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.acts[id]; !ok {
		return repository.ErrActivityNotFound
	}
	delete(m.acts, id)
	return nil
}

func (m *memDB) Summary(context.Context) (repository.ActivitySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s repository.ActivitySummary
	for _, a := range m.acts {
		s.Total++
		s.TotalStock += a.StockCount
		if a.Status == model.ActivityActive {
			s.Active++
		}
	}
	return s, nil
}

func (m *memDB) flip(from, to model.ActivityStatus, match func(a *model.Activity) bool) []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []uint64{}
	for _, a := range m.acts {
		if a.Status == from && match(a) {
			a.Status = to
			ids = append(ids, a.ID)
		}
	}
	slices.Sort(ids)
	return ids
}

func (m *memDB) EndExpired(_ context.Context, now time.Time) ([]uint64, error) {
	return m.flip(model.ActivityActive, model.ActivityEnded, func(a *model.Activity) bool { return a.EndAt.Before(now) }), nil
}

func (m *memDB) ReactivateOpen(_ context.Context, now time.Time) ([]uint64, error) {
	return m.flip(model.ActivityEnded, model.ActivityActive, func(a *model.Activity) bool { return a.InWindow(now) }), nil
}

func (m *memDB) PublishDue(_ context.Context, now time.Time) ([]uint64, error) {
	return m.flip(model.ActivityUnpublished, model.ActivityActive, func(a *model.Activity) bool { return a.InWindow(now) }), nil
}

func (m *memDB) Place(_ context.Context, act *model.Activity, userID uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.placeErr != nil {
		return 0, m.placeErr
	}
	if id, ok := m.guards[[2]uint64{userID, act.ID}]; ok {
		return id, repository.ErrDuplicateOrder
	}
	a := m.acts[act.ID]
	if a == nil || a.StockCount <= 0 {
		return 0, repository.ErrStockExhausted
	}
	a.StockCount--
	m.nextID++
	id := m.nextID
	m.orders[id] = &model.Order{
		ID: id, UserID: userID, GoodsID: act.GoodsID, ActivityID: act.ID, GoodsName: act.GoodsName,
		Quantity: 1, PriceCents: act.SalePrice, Status: model.OrderUnpaid, CreatedAt: m.now, UpdatedAt: m.now,
	}
	m.guards[[2]uint64{userID, act.ID}] = id
	return id, nil
}

func (m *memDB) CancelUnpaid(_ context.Context, orderID, userID uint64) (*model.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || (userID != 0 && o.UserID != userID) {
		return nil, false, repository.ErrOrderNotFound
	}
	if o.Status != model.OrderUnpaid {
		cp := *o
		return &cp, false, nil
	}
	o.Status = model.OrderCancelled
	if a, ok := m.acts[o.ActivityID]; ok {
		a.StockCount++
	}
	delete(m.guards, [2]uint64{o.UserID, o.ActivityID})
	cp := *o
	return &cp, true, nil
}

func (m *memDB) GetForUser(_ context.Context, userID, id uint64) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memDB) ListByUser(_ context.Context, userID uint64, status *model.OrderStatus) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Order{}
	for _, o := range m.orders {
		if o.UserID == userID && (status == nil || o.Status == *status) {
			out = append(out, *o)
		}
	}
	slices.SortFunc(out, func(a, b model.Order) int { return int(b.ID) - int(a.ID) })
	return out, nil
}

func (m *memDB) ListAll(_ context.Context, status *model.OrderStatus) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.Order{}
	for _, o := range m.orders {
		if status == nil || o.Status == *status {
			out = append(out, *o)
		}
	}
	slices.SortFunc(out, func(a, b model.Order) int { return int(b.ID) - int(a.ID) })
	return out, nil
}

func (m *memDB) StatsByUser(_ context.Context, userID uint64) (model.OrderStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s model.OrderStats
	for _, o := range m.orders {
		if o.UserID != userID {
			continue
		}
		s.Total++
		switch o.Status {
		case model.OrderUnpaid:
			s.Unpaid++
		case model.OrderPaid:
			s.Paid++
		case model.OrderCancelled:
			s.Cancelled++
		}
	}
	return s, nil
}

func (m *memDB) MarkPaid(_ context.Context, userID, id uint64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok || o.UserID != userID || o.Status != model.OrderUnpaid {
		return false, nil
	}
	o.Status = model.OrderPaid
	o.PaidAt = &at
	return true, nil
}

func (m *memDB) ListStaleUnpaid(_ context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := []uint64{}
	for _, o := range m.orders {
		if o.Status == model.OrderUnpaid && o.CreatedAt.Before(cutoff) {
			ids = append(ids, o.ID)
		}
	}
	slices.Sort(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (m *memDB) CountByStatus(context.Context) (map[model.OrderStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[model.OrderStatus]int64{}
	for _, o := range m.orders {
		out[o.Status]++
	}
	return out, nil
}

type fakeTimeouts struct {
	mu   sync.Mutex
	err  error
	sent []uint64
}

func (f *fakeTimeouts) PublishOrderTimeout(_ context.Context, orderID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, orderID)
	return nil
}

func newStore(t *testing.T) (*cache.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return cache.New(rdb), mr
}

func activeActivity(id uint64, stock int64) *model.Activity {
	return &model.Activity{
		ID: id, GoodsID: 10 + id, GoodsName: "phone", GoodsOnSale: true, GoodsPrice: 200, SalePrice: 100,
		StockCount: stock, StartAt: testNow.Add(-time.Hour), EndAt: testNow.Add(time.Hour),
		Status: model.ActivityActive,
	}
}

func stockOf(t *testing.T, mr *miniredis.Miniredis, activityID uint64) string {
	t.Helper()
	v, err := mr.Get(cache.StockKey(activityID))
	require.NoError(t, err)
	return v
}

func itoa(v uint64) string { return strconv.FormatUint(v, 10) }
