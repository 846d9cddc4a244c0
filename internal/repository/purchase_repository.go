package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/seckill/internal/model"
)

// PurchaseRepo runs the multi-table units of work of a purchase: placing
// an order against persistent stock and cancelling an unpaid one.  Each
// method is a single transaction.
type PurchaseRepo struct {
	db         *sql.DB
	activities *ActivityRepo
	orders     *OrderRepo
	guards     *GuardRepo
}

// NewPurchaseRepo returns a PurchaseRepo bound to db.
func NewPurchaseRepo(db *sql.DB, activities *ActivityRepo, orders *OrderRepo, guards *GuardRepo) *PurchaseRepo {
	return &PurchaseRepo{db: db, activities: activities, orders: orders, guards: guards}
}

// Place persists one order of act for userID.  Inside one transaction it
// checks the duplicate guard, decrements persistent stock, inserts the
// order and the guard row.
//
// When a guard row already exists the existing order id is returned with
// ErrDuplicateOrder.  A lost stock race returns ErrStockExhausted.  Any
// error rolls the transaction back.
func (r *PurchaseRepo) Place(ctx context.Context, act *model.Activity, userID uint64) (uint64, error) {
	var orderID uint64
	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		existing, found, err := r.guards.FindTx(ctx, tx, userID, act.ID)
		if err != nil {
			return err
		}
		if found {
			orderID = existing
			return ErrDuplicateOrder
		}
		ok, err := r.activities.DecrStockTx(ctx, tx, act.ID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrStockExhausted
		}
		id, err := r.orders.CreateTx(ctx, tx, &model.Order{
			UserID:     userID,
			GoodsID:    act.GoodsID,
			ActivityID: act.ID,
			GoodsName:  act.GoodsName,
			Quantity:   1,
			PriceCents: act.SalePrice,
		})
		if err != nil {
			return err
		}
		if err := r.guards.CreateTx(ctx, tx, userID, act.ID, id); err != nil {
			return err
		}
		orderID = id
		return nil
	})
	return orderID, err
}

// CancelUnpaid cancels an unpaid order, restores one unit of persistent
// stock and removes the duplicate guard so the user may buy again.  A
// non-zero userID restricts the cancellation to that owner.
//
// The returned bool reports whether this call performed the cancellation;
// an order that is already paid or cancelled yields false and no stock
// change.
func (r *PurchaseRepo) CancelUnpaid(ctx context.Context, orderID, userID uint64) (*model.Order, bool, error) {
	var order *model.Order
	var cancelled bool
	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		o, err := r.orders.lockTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if userID != 0 && o.UserID != userID {
			return ErrOrderNotFound
		}
		order = o
		if o.Status != model.OrderUnpaid {
			return nil
		}
		ok, err := r.orders.cancelTx(ctx, tx, orderID)
		if err != nil || !ok {
			return err
		}
		if err := r.activities.RestoreStockTx(ctx, tx, o.ActivityID); err != nil {
			return err
		}
		if err := r.guards.DeleteByOrderTx(ctx, tx, orderID); err != nil {
			return err
		}
		cancelled = true
		order.Status = model.OrderCancelled
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return order, cancelled, nil
}
