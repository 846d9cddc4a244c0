package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/iliyamo/seckill/internal/model"
	"github.com/iliyamo/seckill/internal/repository"
	"github.com/iliyamo/seckill/internal/seckill"
)

// ActivityAdmin is the persistence surface of the administrative hooks.
type ActivityAdmin interface {
	GetByID(ctx context.Context, id uint64) (*model.Activity, error)
	ListAll(ctx context.Context) ([]model.Activity, error)
	ResetStock(ctx context.Context, id uint64, stock int64) error
	SoftDelete(ctx context.Context, id uint64) error
	Summary(ctx context.Context) (repository.ActivitySummary, error)
}

// OrderOverview reads orders across all users.
type OrderOverview interface {
	CountByStatus(ctx context.Context) (map[model.OrderStatus]int64, error)
	ListAll(ctx context.Context, status *model.OrderStatus) ([]model.Order, error)
}

// AdminService implements the administrative hooks: stock reset, deletion,
// the cross-user order listing and the dashboard.
type AdminService struct {
	activities ActivityAdmin
	orders     OrderOverview
	store      ReservationStore
	goods      *GoodsService
	soldOut    *seckill.SoldOut
	log        *zap.Logger
}

// NewAdminService returns an AdminService.
func NewAdminService(activities ActivityAdmin, orders OrderOverview, store ReservationStore, goods *GoodsService, soldOut *seckill.SoldOut, log *zap.Logger) *AdminService {
	if log == nil {
		log = zap.NewNop()
	}
	if soldOut == nil {
		soldOut = seckill.NewSoldOut()
	}
	return &AdminService{activities: activities, orders: orders, store: store, goods: goods, soldOut: soldOut, log: log}
}

// ResetStock overwrites both the persisted stock and the cached counter of
// an activity and clears its sold-out flag.
func (s *AdminService) ResetStock(ctx context.Context, id uint64, stock int64) error {
	if stock < 0 {
		return errors.New("stock must not be negative")
	}
	if _, err := s.activities.GetByID(ctx, id); err != nil {
		if errors.Is(err, repository.ErrActivityNotFound) {
			return seckill.ErrActivityNotFound
		}
		return err
	}
	if err := s.activities.ResetStock(ctx, id, stock); err != nil {
		return err
	}
	if err := s.store.SetStock(ctx, id, stock); err != nil {
		return seckill.Busy(err)
	}
	s.soldOut.Clear(id)
	if s.goods != nil {
		s.goods.Invalidate(ctx, id)
	}
	s.log.Info("stock reset", zap.Uint64("activity_id", id), zap.Int64("stock", stock))
	return nil
}

// Delete soft-deletes an activity and drops everything cached for it.
func (s *AdminService) Delete(ctx context.Context, id uint64) error {
	if err := s.activities.SoftDelete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrActivityNotFound) {
			return seckill.ErrActivityNotFound
		}
		return err
	}
	if err := s.store.DeleteStock(ctx, id); err != nil {
		s.log.Warn("deleted activity counter not removed", zap.Uint64("activity_id", id), zap.Error(err))
	}
	s.soldOut.Clear(id)
	if s.goods != nil {
		s.goods.Invalidate(ctx, id)
	}
	s.log.Info("activity deleted", zap.Uint64("activity_id", id))
	return nil
}

// Orders lists the newest orders of every user, optionally filtered by
// status.
func (s *AdminService) Orders(ctx context.Context, status *model.OrderStatus) ([]model.Order, error) {
	return s.orders.ListAll(ctx, status)
}

// ActivityStock compares persisted and cached stock of one activity.
type ActivityStock struct {
	ID          uint64               `json:"id"`
	GoodsName   string               `json:"goods_name"`
	Status      model.ActivityStatus `json:"status"`
	StockCount  int64                `json:"stock_count"`
	CachedStock *int64               `json:"cached_stock"`
	SoldOutFlag bool                 `json:"sold_out_flag"`
}

// Dashboard is the administrative overview.
type Dashboard struct {
	Activities repository.ActivitySummary `json:"activities"`
	Orders     map[string]int64           `json:"orders"`
	Stocks     []ActivityStock            `json:"stocks"`
}

// Dashboard aggregates activity and order counts and the per-activity
// persisted vs cached stock.
func (s *AdminService) Dashboard(ctx context.Context) (*Dashboard, error) {
	summary, err := s.activities.Summary(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.orders.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	acts, err := s.activities.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, len(acts))
	for i, a := range acts {
		ids[i] = a.ID
	}
	cached, err := s.store.Stocks(ctx, ids)
	if err != nil {
		s.log.Warn("dashboard: cached counters unavailable", zap.Error(err))
		cached = map[uint64]int64{}
	}

	d := &Dashboard{Activities: summary, Orders: map[string]int64{}, Stocks: make([]ActivityStock, 0, len(acts))}
	for st, n := range counts {
		d.Orders[st.String()] = n
	}
	for _, a := range acts {
		row := ActivityStock{ID: a.ID, GoodsName: a.GoodsName, Status: a.Status, StockCount: a.StockCount,
			SoldOutFlag: s.soldOut.IsSet(a.ID)}
		if n, ok := cached[a.ID]; ok {
			n := n
			row.CachedStock = &n
		}
		d.Stocks = append(d.Stocks, row)
	}
	return d, nil
}
