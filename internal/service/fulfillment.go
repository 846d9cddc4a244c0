package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/seckill/internal/clock"
	"github.com/iliyamo/seckill/internal/metrics"
	"github.com/iliyamo/seckill/internal/queue"
	"github.com/iliyamo/seckill/internal/repository"
	"github.com/iliyamo/seckill/internal/seckill"
)

// Fulfillment turns accepted reservations into orders.  It is the handler
// of the reservation queue.
type Fulfillment struct {
	activities ActivityReader
	purchases  Purchases
	store      ReservationStore
	timeouts   TimeoutScheduler
	soldOut    *seckill.SoldOut
	clock      clock.Clock
	resultTTL  time.Duration
	log        *zap.Logger
}

// FulfillmentDeps groups the collaborators of a Fulfillment.
type FulfillmentDeps struct {
	Activities ActivityReader
	Purchases  Purchases
	Store      ReservationStore
	Timeouts   TimeoutScheduler
	SoldOut    *seckill.SoldOut
	Clock      clock.Clock
	ResultTTL  time.Duration
	Log        *zap.Logger
}

// NewFulfillment wires a Fulfillment.
func NewFulfillment(d FulfillmentDeps) *Fulfillment {
	if d.Clock == nil {
		d.Clock = clock.NewSystem()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.SoldOut == nil {
		d.SoldOut = seckill.NewSoldOut()
	}
	return &Fulfillment{
		activities: d.Activities,
		purchases:  d.Purchases,
		store:      d.Store,
		timeouts:   d.Timeouts,
		soldOut:    d.SoldOut,
		clock:      d.Clock,
		resultTTL:  d.ResultTTL,
		log:        d.Log,
	}
}

// Handle decodes a reservation message and processes it.  It satisfies
// queue.Handler.
func (f *Fulfillment) Handle(ctx context.Context, body []byte) error {
	m, err := queue.DecodeReservation(body)
	if err != nil {
		metrics.Fulfillment.WithLabelValues("malformed").Inc()
		return err
	}
	return f.Process(ctx, m)
}

// Process persists the order of one reservation.  Validation failures and
// lost races are compensated and reported to the client through the
// result slot; they return nil so the message is acknowledged.  An
// infrastructure failure or a panic is compensated too and returned so the
// message is rejected.
func (f *Fulfillment) Process(ctx context.Context, m queue.ReservationMessage) (err error) {
	log := f.log.With(zap.Uint64("user_id", m.UserID), zap.Uint64("activity_id", m.ActivityID))
	defer func() {
		if p := recover(); p != nil {
			f.fail(ctx, log, m, "panic")
			err = fmt.Errorf("fulfillment panic: %v", p)
		}
	}()

	act, err := f.activities.GetByID(ctx, m.ActivityID)
	if errors.Is(err, repository.ErrActivityNotFound) {
		f.fail(ctx, log, m, "activity_missing")
		return nil
	}
	if err != nil {
		f.fail(ctx, log, m, "load_error")
		return err
	}
	if !act.Purchasable(f.clock.Now()) || act.StockCount <= 0 {
		f.fail(ctx, log, m, "stale_activity")
		return nil
	}

	orderID, err := f.purchases.Place(ctx, act, m.UserID)
	switch {
	case errors.Is(err, repository.ErrDuplicateOrder):
		f.duplicate(ctx, log, m, orderID)
		return nil
	case errors.Is(err, repository.ErrStockExhausted):
		f.fail(ctx, log, m, "db_stock_exhausted")
		return nil
	case err != nil:
		f.fail(ctx, log, m, "persist_error")
		return err
	}

	if err := f.store.SetResult(ctx, m.UserID, m.ActivityID, int64(orderID), f.resultTTL); err != nil {
		log.Error("order created but result slot not written", zap.Uint64("order_id", orderID), zap.Error(err))
	}
	if err := f.timeouts.PublishOrderTimeout(ctx, orderID); err != nil {
		// the scheduler's stale-unpaid sweep still cancels it
		log.Warn("order timeout not scheduled", zap.Uint64("order_id", orderID), zap.Error(err))
	}
	metrics.Fulfillment.WithLabelValues("created").Inc()
	log.Info("order created", zap.Uint64("order_id", orderID))
	return nil
}

// duplicate handles a reservation for a pair that already owns an order:
// the unit this message took from the counter goes back, the marker stays
// and the result slot points at the existing order.
func (f *Fulfillment) duplicate(ctx context.Context, log *zap.Logger, m queue.ReservationMessage, existing uint64) {
	ctx, cancel := detached(ctx)
	defer cancel()
	metrics.Fulfillment.WithLabelValues("duplicate").Inc()
	metrics.Compensations.WithLabelValues("duplicate_delivery").Inc()
	if _, err := f.store.ReturnUnit(ctx, m.ActivityID); err != nil {
		log.Error("duplicate delivery: stock unit not returned", zap.Error(err))
	}
	f.soldOut.Clear(m.ActivityID)
	if existing > 0 {
		if err := f.store.SetResult(ctx, m.UserID, m.ActivityID, int64(existing), f.resultTTL); err != nil {
			log.Warn("duplicate delivery: result slot not written", zap.Error(err))
		}
	}
	log.Info("duplicate delivery ignored", zap.Uint64("order_id", existing))
}

// fail records the negative outcome and restores the reservation exactly:
// counter +1, marker deleted, local sold-out flag cleared.
func (f *Fulfillment) fail(ctx context.Context, log *zap.Logger, m queue.ReservationMessage, reason string) {
	ctx, cancel := detached(ctx)
	defer cancel()
	metrics.Fulfillment.WithLabelValues("failed").Inc()
	metrics.Compensations.WithLabelValues(reason).Inc()
	if err := f.store.SetResult(ctx, m.UserID, m.ActivityID, failedResult, f.resultTTL); err != nil {
		log.Error("compensation: result slot not written", zap.Error(err))
	}
	if _, err := f.store.Release(ctx, m.ActivityID, m.UserID, false); err != nil {
		log.Error("compensation: reservation not released", zap.Error(err))
	}
	f.soldOut.Clear(m.ActivityID)
	log.Warn("reservation failed and compensated", zap.String("reason", reason))
}

// detached returns a context that survives cancellation of ctx for the
// duration of a compensation.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}
