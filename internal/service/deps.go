// Package service implements the flash-sale use cases that sit behind the
// HTTP handlers and queue consumers: the catalog read path, order
// fulfillment, order payment and cancellation, the availability scheduler
// and administrative hooks.  Collaborators are small interfaces so that
// tests can run against in-memory fakes and a real miniredis store.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/seckill/internal/model"
)

// ActivityReader reads activities from the system of record.
type ActivityReader interface {
	GetByID(ctx context.Context, id uint64) (*model.Activity, error)
	ListOnSale(ctx context.Context) ([]model.Activity, error)
	ListActive(ctx context.Context) ([]model.Activity, error)
}

// CatalogCache stores serialized catalog entries.
type CatalogCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Evict(ctx context.Context, keys ...string) error
}

// ReservationStore is the part of the reservation store that fulfillment,
// cancellation, the scheduler and the admin hooks mutate.
type ReservationStore interface {
	Release(ctx context.Context, activityID, userID uint64, clearResult bool) (bool, error)
	ReturnUnit(ctx context.Context, activityID uint64) (bool, error)
	SetResult(ctx context.Context, userID, activityID uint64, value int64, ttl time.Duration) error
	WarmStock(ctx context.Context, activityID uint64, stock int64) (bool, error)
	SetStock(ctx context.Context, activityID uint64, stock int64) error
	DeleteStock(ctx context.Context, activityID uint64) error
	Stocks(ctx context.Context, activityIDs []uint64) (map[uint64]int64, error)
}

// Purchases runs the transactional units of work of a purchase.
type Purchases interface {
	Place(ctx context.Context, act *model.Activity, userID uint64) (uint64, error)
	CancelUnpaid(ctx context.Context, orderID, userID uint64) (*model.Order, bool, error)
}

// TimeoutScheduler schedules timeout reconciliation of a new order.
type TimeoutScheduler interface {
	PublishOrderTimeout(ctx context.Context, orderID uint64) error
}

// failedResult is the result-slot sentinel of a definitively failed
// reservation.
const failedResult int64 = -1
