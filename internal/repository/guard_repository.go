package repository

import (
	"context"
	"database/sql"
	"errors"
)

// GuardRepo manages seckill_orders, the durable (user, activity)
// uniqueness record backing the cache-level purchase marker.
type GuardRepo struct{}

// NewGuardRepo returns a GuardRepo.  It only operates inside transactions
// supplied by the caller.
func NewGuardRepo() *GuardRepo { return &GuardRepo{} }

// FindTx returns the order id recorded for (userID, activityID) and
// whether a row exists.
func (r *GuardRepo) FindTx(ctx context.Context, tx *sql.Tx, userID, activityID uint64) (uint64, bool, error) {
	var orderID uint64
	err := tx.QueryRowContext(ctx,
		`SELECT order_id FROM seckill_orders WHERE user_id = ? AND activity_id = ? FOR UPDATE`,
		userID, activityID).Scan(&orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return orderID, true, nil
}

// CreateTx inserts the guard row.  A unique-key violation is reported as
// ErrDuplicateOrder.
func (r *GuardRepo) CreateTx(ctx context.Context, tx *sql.Tx, userID, activityID, orderID uint64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO seckill_orders (user_id, activity_id, order_id) VALUES (?, ?, ?)`,
		userID, activityID, orderID)
	if isDuplicateKey(err) {
		return ErrDuplicateOrder
	}
	return err
}

// DeleteByOrderTx removes the guard row of a retired order.
func (r *GuardRepo) DeleteByOrderTx(ctx context.Context, tx *sql.Tx, orderID uint64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM seckill_orders WHERE order_id = ?`, orderID)
	return err
}
