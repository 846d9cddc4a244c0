package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/seckill/internal/clock"
	"github.com/iliyamo/seckill/internal/metrics"
	"github.com/iliyamo/seckill/internal/model"
	"github.com/iliyamo/seckill/internal/queue"
	"github.com/iliyamo/seckill/internal/repository"
	"github.com/iliyamo/seckill/internal/seckill"
)

// OrderReader reads and pays orders.
type OrderReader interface {
	GetForUser(ctx context.Context, userID, id uint64) (*model.Order, error)
	ListByUser(ctx context.Context, userID uint64, status *model.OrderStatus) ([]model.Order, error)
	StatsByUser(ctx context.Context, userID uint64) (model.OrderStats, error)
	MarkPaid(ctx context.Context, userID, id uint64, at time.Time) (bool, error)
}

// Cancellation triggers, used as metric labels.
const (
	TriggerUser    = "user"
	TriggerTimeout = "timeout"
	TriggerSweep   = "sweep"
)

// OrderService implements the customer order operations and the
// cancellation path shared by users, the timeout queue and the scheduler.
type OrderService struct {
	orders    OrderReader
	purchases Purchases
	store     ReservationStore
	soldOut   *seckill.SoldOut
	clock     clock.Clock
	log       *zap.Logger
}

// NewOrderService returns an OrderService.
func NewOrderService(orders OrderReader, purchases Purchases, store ReservationStore, soldOut *seckill.SoldOut, clk clock.Clock, log *zap.Logger) *OrderService {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if soldOut == nil {
		soldOut = seckill.NewSoldOut()
	}
	return &OrderService{orders: orders, purchases: purchases, store: store, soldOut: soldOut, clock: clk, log: log}
}

// List returns the user's orders, optionally filtered by status.
func (s *OrderService) List(ctx context.Context, userID uint64, status *model.OrderStatus) ([]model.Order, error) {
	return s.orders.ListByUser(ctx, userID, status)
}

// Get returns one of the user's orders.
func (s *OrderService) Get(ctx context.Context, userID, orderID uint64) (*model.Order, error) {
	o, err := s.orders.GetForUser(ctx, userID, orderID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, seckill.ErrOrderNotFound
	}
	return o, err
}

// Stats counts the user's orders by status.
func (s *OrderService) Stats(ctx context.Context, userID uint64) (model.OrderStats, error) {
	return s.orders.StatsByUser(ctx, userID)
}

// Pay marks an unpaid order as paid.  Paying twice, or paying a cancelled
// order, yields ErrOrderNotUnpaid.
func (s *OrderService) Pay(ctx context.Context, userID, orderID uint64) error {
	ok, err := s.orders.MarkPaid(ctx, userID, orderID, s.clock.Now())
	if err != nil {
		return err
	}
	if ok {
		s.log.Info("order paid", zap.Uint64("order_id", orderID), zap.Uint64("user_id", userID))
		return nil
	}
	if _, err := s.Get(ctx, userID, orderID); err != nil {
		return err
	}
	return seckill.ErrOrderNotUnpaid
}

// Cancel is the user-initiated cancellation of an unpaid order.
func (s *OrderService) Cancel(ctx context.Context, userID, orderID uint64) error {
	o, cancelled, err := s.purchases.CancelUnpaid(ctx, orderID, userID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return seckill.ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	if !cancelled {
		return seckill.ErrOrderNotUnpaid
	}
	s.restore(ctx, o, TriggerUser)
	return nil
}

// TimeoutCancel cancels orderID if it is still unpaid.  Paid, cancelled
// and unknown orders are a no-op.
func (s *OrderService) TimeoutCancel(ctx context.Context, orderID uint64, trigger string) error {
	o, cancelled, err := s.purchases.CancelUnpaid(ctx, orderID, 0)
	if errors.Is(err, repository.ErrOrderNotFound) {
		s.log.Warn("timeout for unknown order", zap.Uint64("order_id", orderID))
		return nil
	}
	if err != nil {
		return err
	}
	if !cancelled {
		s.log.Debug("timeout ignored, order already settled",
			zap.Uint64("order_id", orderID), zap.Stringer("status", o.Status))
		return nil
	}
	s.restore(ctx, o, trigger)
	return nil
}

// HandleTimeout is the handler of the order dead-letter queue.
func (s *OrderService) HandleTimeout(ctx context.Context, body []byte) error {
	m, err := queue.DecodeOrderTimeout(body)
	if err != nil {
		return err
	}
	return s.TimeoutCancel(ctx, m.OrderID, TriggerTimeout)
}

// restore mirrors a committed cancellation into the reservation store:
// counter +1, marker and result slot deleted, local flag cleared.
func (s *OrderService) restore(ctx context.Context, o *model.Order, trigger string) {
	ctx, cancel := detached(ctx)
	defer cancel()
	metrics.Cancellations.WithLabelValues(trigger).Inc()
	log := s.log.With(zap.Uint64("order_id", o.ID), zap.Uint64("user_id", o.UserID),
		zap.Uint64("activity_id", o.ActivityID), zap.String("trigger", trigger))
	restored, err := s.store.Release(ctx, o.ActivityID, o.UserID, true)
	if err != nil {
		log.Error("order cancelled but reservation store not restored", zap.Error(err))
	}
	s.soldOut.Clear(o.ActivityID)
	log.Info("order cancelled", zap.Bool("counter_restored", restored))
}
