package seckill

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/seckill/internal/cache"
	"github.com/iliyamo/seckill/internal/clock"
	"github.com/iliyamo/seckill/internal/metrics"
	"github.com/iliyamo/seckill/internal/model"
)

// ReservationStore is the subset of the reservation store the engine uses.
type ReservationStore interface {
	Reserve(ctx context.Context, activityID, userID uint64, markerTTL time.Duration) (cache.ReserveResult, error)
	Release(ctx context.Context, activityID, userID uint64, clearResult bool) (bool, error)
	Result(ctx context.Context, userID, activityID uint64) (int64, bool, error)
}

// ActivitySource resolves an activity on the hot path, normally from the
// catalog cache.  A missing activity is reported as ErrActivityNotFound.
type ActivitySource interface {
	Activity(ctx context.Context, activityID uint64) (*model.Activity, error)
}

// Enqueuer hands an accepted reservation to the fulfillment pipeline.
type Enqueuer interface {
	EnqueueReservation(ctx context.Context, userID, activityID uint64) error
}

// compensateTimeout bounds synchronous compensation after the caller's
// context may already be gone.
const compensateTimeout = 3 * time.Second

// Engine runs the purchase step of the admission pipeline: path token,
// local sold-out flag, time window, atomic reservation and enqueue.
type Engine struct {
	paths      *PathService
	store      ReservationStore
	activities ActivitySource
	queue      Enqueuer
	soldOut    *SoldOut
	clock      clock.Clock
	markerTTL  time.Duration
	log        *zap.Logger
}

// EngineDeps groups the collaborators of an Engine.
type EngineDeps struct {
	Paths      *PathService
	Store      ReservationStore
	Activities ActivitySource
	Queue      Enqueuer
	SoldOut    *SoldOut
	Clock      clock.Clock
	MarkerTTL  time.Duration
	Log        *zap.Logger
}

// NewEngine wires an Engine.
func NewEngine(d EngineDeps) *Engine {
	if d.Clock == nil {
		d.Clock = clock.NewSystem()
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.SoldOut == nil {
		d.SoldOut = NewSoldOut()
	}
	return &Engine{
		paths:      d.Paths,
		store:      d.Store,
		activities: d.Activities,
		queue:      d.Queue,
		soldOut:    d.SoldOut,
		clock:      d.Clock,
		markerTTL:  d.MarkerTTL,
		log:        d.Log,
	}
}

// SoldOut exposes the engine's local flag set.
func (e *Engine) SoldOut() *SoldOut { return e.soldOut }

// Execute consumes the path token and attempts to reserve one unit of the
// activity for userID.  On success the reservation has been enqueued and
// the client must poll Result.  Every rejection is an *Error.
func (e *Engine) Execute(ctx context.Context, userID, activityID uint64, pathToken string) error {
	if err := e.paths.Consume(ctx, userID, activityID, pathToken); err != nil {
		return err
	}
	if e.soldOut.IsSet(activityID) {
		metrics.Reservations.WithLabelValues("sold_out_local").Inc()
		return ErrSoldOut
	}

	act, err := e.activities.Activity(ctx, activityID)
	if err != nil {
		if errors.Is(err, ErrActivityNotFound) {
			return ErrActivityNotFound
		}
		return Busy(err)
	}
	if err := checkWindow(act, e.clock.Now()); err != nil {
		return err
	}

	res, err := e.store.Reserve(ctx, activityID, userID, e.markerTTL)
	if err != nil {
		metrics.Reservations.WithLabelValues("error").Inc()
		return Busy(err)
	}
	switch res {
	case cache.ReserveDuplicate:
		metrics.Reservations.WithLabelValues("duplicate").Inc()
		return ErrRepeat
	case cache.ReserveEmpty:
		metrics.Reservations.WithLabelValues("stock_empty").Inc()
		e.soldOut.Mark(activityID)
		return ErrSoldOut
	}
	metrics.Reservations.WithLabelValues("success").Inc()

	if err := e.queue.EnqueueReservation(ctx, userID, activityID); err != nil {
		e.compensate(ctx, userID, activityID, err)
		return Busy(err)
	}
	e.log.Debug("reservation enqueued", zap.Uint64("user_id", userID), zap.Uint64("activity_id", activityID))
	return nil
}

// compensate reverts a reservation whose message never reached the queue.
func (e *Engine) compensate(ctx context.Context, userID, activityID uint64, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()
	metrics.Compensations.WithLabelValues("enqueue_failed").Inc()
	if _, err := e.store.Release(ctx, activityID, userID, false); err != nil {
		e.log.Error("compensation after enqueue failure did not apply",
			zap.Uint64("user_id", userID), zap.Uint64("activity_id", activityID),
			zap.NamedError("cause", cause), zap.Error(err))
	} else {
		e.log.Warn("enqueue failed, reservation compensated",
			zap.Uint64("user_id", userID), zap.Uint64("activity_id", activityID), zap.Error(cause))
	}
	e.soldOut.Clear(activityID)
}

// checkWindow rejects activities that cannot be purchased at now.
func checkWindow(a *model.Activity, now time.Time) error {
	if !a.GoodsOnSale {
		return ErrActivityNotFound
	}
	if now.Before(a.StartAt) {
		return ErrNotStarted
	}
	if now.After(a.EndAt) || a.Status == model.ActivityEnded {
		return ErrEnded
	}
	if a.Status != model.ActivityActive {
		return ErrActivityNotFound
	}
	return nil
}

// ResultStatus is the state of an async reservation as seen by a client.
type ResultStatus string

const (
	ResultQueued  ResultStatus = "queued"
	ResultSuccess ResultStatus = "success"
	ResultFailed  ResultStatus = "failed"
)

// Outcome is the polled result of a reservation.
type Outcome struct {
	Status  ResultStatus `json:"status"`
	OrderID uint64       `json:"order_id,omitempty"`
}

// Result reads the result slot of (user, activity).
func (e *Engine) Result(ctx context.Context, userID, activityID uint64) (Outcome, error) {
	v, ok, err := e.store.Result(ctx, userID, activityID)
	if err != nil {
		return Outcome{}, Busy(err)
	}
	switch {
	case !ok || v == 0:
		return Outcome{Status: ResultQueued}, nil
	case v < 0:
		return Outcome{Status: ResultFailed}, nil
	}
	return Outcome{Status: ResultSuccess, OrderID: uint64(v)}, nil
}
