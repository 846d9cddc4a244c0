package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/seckill/internal/clock"
	"github.com/iliyamo/seckill/internal/metrics"
	"github.com/iliyamo/seckill/internal/seckill"
)

// ActivityTransitions applies the time-driven status changes and reports
// the ids each one changed.
type ActivityTransitions interface {
	EndExpired(ctx context.Context, now time.Time) ([]uint64, error)
	ReactivateOpen(ctx context.Context, now time.Time) ([]uint64, error)
	PublishDue(ctx context.Context, now time.Time) ([]uint64, error)
}

// StaleOrders lists unpaid orders older than a cutoff.
type StaleOrders interface {
	ListStaleUnpaid(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error)
}

// OrderCanceller cancels an order if it is still unpaid.
type OrderCanceller interface {
	TimeoutCancel(ctx context.Context, orderID uint64, trigger string) error
}

// sweepBatch bounds the stale-unpaid sweep of one tick.
const sweepBatch = 100

// Scheduler reconciles activity status with the wall clock and keeps the
// cached counters in step with it.
type Scheduler struct {
	activities    ActivityReader
	transitions   ActivityTransitions
	orders        StaleOrders
	canceller     OrderCanceller
	store         ReservationStore
	goods         *GoodsService
	soldOut       *seckill.SoldOut
	clock         clock.Clock
	period        time.Duration
	paymentWindow time.Duration
	log           *zap.Logger
}

// SchedulerDeps groups the collaborators of a Scheduler.
type SchedulerDeps struct {
	Activities    ActivityReader
	Transitions   ActivityTransitions
	Orders        StaleOrders
	Canceller     OrderCanceller
	Store         ReservationStore
	Goods         *GoodsService
	SoldOut       *seckill.SoldOut
	Clock         clock.Clock
	Period        time.Duration
	PaymentWindow time.Duration
	Log           *zap.Logger
}

// NewScheduler wires a Scheduler.
func NewScheduler(d SchedulerDeps) *Scheduler {
	if d.Clock == nil {
		d.Clock = clock.NewSystem()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.SoldOut == nil {
		d.SoldOut = seckill.NewSoldOut()
	}
	if d.Period <= 0 {
		d.Period = time.Minute
	}
	return &Scheduler{
		activities:    d.Activities,
		transitions:   d.Transitions,
		orders:        d.Orders,
		canceller:     d.Canceller,
		store:         d.Store,
		goods:         d.Goods,
		soldOut:       d.SoldOut,
		clock:         d.Clock,
		period:        d.Period,
		paymentWindow: d.PaymentWindow,
		log:           d.Log,
	}
}

// TickReport lists what one tick changed.
type TickReport struct {
	Ended       []uint64
	Reactivated []uint64
	Published   []uint64
	Warmed      []uint64
	Cancelled   int
}

// Changed reports whether any activity changed status.
func (r TickReport) Changed() bool {
	return len(r.Ended)+len(r.Reactivated)+len(r.Published) > 0
}

// Run warms the counters of active activities and then ticks every period
// until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	if n, err := s.Warmup(ctx); err != nil {
		s.log.Error("startup warm-up failed", zap.Error(err))
	} else {
		s.log.Info("startup warm-up complete", zap.Int("warmed", n))
	}

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r, err := s.Tick(ctx)
			if err != nil {
				s.log.Error("scheduler tick failed", zap.Error(err))
				continue
			}
			if r.Changed() || r.Cancelled > 0 {
				s.log.Info("scheduler tick",
					zap.Uint64s("ended", r.Ended), zap.Uint64s("reactivated", r.Reactivated),
					zap.Uint64s("published", r.Published), zap.Uint64s("warmed", r.Warmed),
					zap.Int("cancelled", r.Cancelled))
			}
		}
	}
}

// Warmup sets the counter of every active activity that has none.  It
// returns how many counters were written.
func (s *Scheduler) Warmup(ctx context.Context) (int, error) {
	acts, err := s.activities.ListActive(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, a := range acts {
		ok, err := s.store.WarmStock(ctx, a.ID, a.StockCount)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Tick runs one reconciliation pass.  Status transitions are applied
// first, then the cache follows them, then stale unpaid orders are swept.
func (s *Scheduler) Tick(ctx context.Context) (TickReport, error) {
	now := s.clock.Now()
	var r TickReport
	var err error

	if r.Ended, err = s.transitions.EndExpired(ctx, now); err != nil {
		return r, err
	}
	if r.Reactivated, err = s.transitions.ReactivateOpen(ctx, now); err != nil {
		return r, err
	}
	if r.Published, err = s.transitions.PublishDue(ctx, now); err != nil {
		return r, err
	}
	metrics.SchedulerTransitions.WithLabelValues("ended").Add(float64(len(r.Ended)))
	metrics.SchedulerTransitions.WithLabelValues("reactivated").Add(float64(len(r.Reactivated)))
	metrics.SchedulerTransitions.WithLabelValues("published").Add(float64(len(r.Published)))

	activated := append(append([]uint64{}, r.Reactivated...), r.Published...)
	for _, id := range activated {
		a, err := s.activities.GetByID(ctx, id)
		if err != nil {
			s.log.Warn("warm-up: activity not loaded", zap.Uint64("activity_id", id), zap.Error(err))
			continue
		}
		ok, err := s.store.WarmStock(ctx, id, a.StockCount)
		if err != nil {
			s.log.Warn("warm-up: counter not written", zap.Uint64("activity_id", id), zap.Error(err))
			continue
		}
		if ok {
			r.Warmed = append(r.Warmed, id)
		}
	}

	for _, id := range r.Ended {
		if err := s.store.DeleteStock(ctx, id); err != nil {
			s.log.Warn("ended activity counter not deleted", zap.Uint64("activity_id", id), zap.Error(err))
		}
		s.soldOut.Clear(id)
	}

	if r.Changed() && s.goods != nil {
		s.goods.Invalidate(ctx, append(activated, r.Ended...)...)
	}

	r.Cancelled = s.sweep(ctx, now)
	return r, nil
}

// sweep cancels unpaid orders older than the payment window whose delayed
// timeout message never arrived.
func (s *Scheduler) sweep(ctx context.Context, now time.Time) int {
	if s.orders == nil || s.canceller == nil || s.paymentWindow <= 0 {
		return 0
	}
	ids, err := s.orders.ListStaleUnpaid(ctx, now.Add(-s.paymentWindow), sweepBatch)
	if err != nil {
		s.log.Warn("stale order sweep failed", zap.Error(err))
		return 0
	}
	n := 0
	for _, id := range ids {
		if err := s.canceller.TimeoutCancel(ctx, id, TriggerSweep); err != nil {
			s.log.Warn("stale order not cancelled", zap.Uint64("order_id", id), zap.Error(err))
			continue
		}
		n++
	}
	return n
}
