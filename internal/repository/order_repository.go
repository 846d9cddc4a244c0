package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/iliyamo/seckill/internal/model"
)

// OrderRepo provides access to the orders table.  Orders are never
// deleted; every mutation is a conditional status change so that repeated
// calls are harmless.
type OrderRepo struct {
    db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the given database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

const orderSelect = `SELECT id, user_id, goods_id, activity_id, goods_name, quantity, price_cents, status, paid_at, created_at, updated_at FROM orders`

func scanOrder(s rowScanner) (model.Order, error) {
    var o model.Order
    var paidAt sql.NullTime
    err := s.Scan(&o.ID, &o.UserID, &o.GoodsID, &o.ActivityID, &o.GoodsName, &o.Quantity,
        &o.PriceCents, &o.Status, &paidAt, &o.CreatedAt, &o.UpdatedAt)
    if paidAt.Valid {
        t := paidAt.Time
        o.PaidAt = &t
    }
    return o, err
}

// CreateTx inserts an unpaid order inside tx and returns its id.
func (r *OrderRepo) CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) (uint64, error) {
    res, err := tx.ExecContext(ctx,
        `INSERT INTO orders (user_id, goods_id, activity_id, goods_name, quantity, price_cents, status) VALUES (?, ?, ?, ?, ?, ?, ?)`,
        o.UserID, o.GoodsID, o.ActivityID, o.GoodsName, o.Quantity, o.PriceCents, model.OrderUnpaid)
    if err != nil {
        return 0, err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return 0, err
    }
    return uint64(id), nil
}

// GetByID returns an order regardless of owner.
func (r *OrderRepo) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
    o, err := scanOrder(r.db.QueryRowContext(ctx, orderSelect+` WHERE id = ?`, id))
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrOrderNotFound
    }
    if err != nil {
        return nil, err
    }
    return &o, nil
}

// GetForUser returns an order owned by userID.  Orders of other users are
// reported as ErrOrderNotFound.
func (r *OrderRepo) GetForUser(ctx context.Context, userID, id uint64) (*model.Order, error) {
    o, err := scanOrder(r.db.QueryRowContext(ctx, orderSelect+` WHERE id = ? AND user_id = ?`, id, userID))
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrOrderNotFound
    }
    if err != nil {
        return nil, err
    }
    return &o, nil
}

// lockTx reads an order with a row lock inside tx.
func (r *OrderRepo) lockTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Order, error) {
    o, err := scanOrder(tx.QueryRowContext(ctx, orderSelect+` WHERE id = ? FOR UPDATE`, id))
    if errors.Is(err, sql.ErrNoRows) {
        return nil, ErrOrderNotFound
    }
    if err != nil {
        return nil, err
    }
    return &o, nil
}

// ListByUser returns the user's orders, newest first.  A nil status lists
// every order.
func (r *OrderRepo) ListByUser(ctx context.Context, userID uint64, status *model.OrderStatus) ([]model.Order, error) {
    q := orderSelect + ` WHERE user_id = ?`
    args := []any{userID}
    if status != nil {
        q += ` AND status = ?`
        args = append(args, *status)
    }
    return r.list(ctx, q+` ORDER BY created_at DESC, id DESC`, args...)
}

// adminListLimit caps the cross-user order listing.
const adminListLimit = 500

// ListAll returns the newest orders of every user, optionally filtered by
// status, capped at adminListLimit rows.
func (r *OrderRepo) ListAll(ctx context.Context, status *model.OrderStatus) ([]model.Order, error) {
    q := orderSelect
    var args []any
    if status != nil {
        q += ` WHERE status = ?`
        args = append(args, *status)
    }
    q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
    args = append(args, adminListLimit)
    return r.list(ctx, q, args...)
}

func (r *OrderRepo) list(ctx context.Context, q string, args ...any) ([]model.Order, error) {
    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := []model.Order{}
    for rows.Next() {
        o, err := scanOrder(rows)
        if err != nil {
            return nil, err
        }
        out = append(out, o)
    }
    return out, rows.Err()
}

// StatsByUser counts the user's orders by status.
func (r *OrderRepo) StatsByUser(ctx context.Context, userID uint64) (model.OrderStats, error) {
    var s model.OrderStats
    err := r.db.QueryRowContext(ctx,
        `SELECT COUNT(*), COALESCE(SUM(status = 0), 0), COALESCE(SUM(status = 1), 0), COALESCE(SUM(status = 4), 0)
           FROM orders WHERE user_id = ?`, userID).Scan(&s.Total, &s.Unpaid, &s.Paid, &s.Cancelled)
    return s, err
}

// MarkPaid flips an unpaid order owned by userID to paid.  It reports
// whether a row changed.
func (r *OrderRepo) MarkPaid(ctx context.Context, userID, id uint64, at time.Time) (bool, error) {
    res, err := r.db.ExecContext(ctx,
        `UPDATE orders SET status = ?, paid_at = ? WHERE id = ? AND user_id = ? AND status = ?`,
        model.OrderPaid, at, id, userID, model.OrderUnpaid)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}

// cancelTx flips an unpaid order to cancelled inside tx and reports
// whether this call made the change.
func (r *OrderRepo) cancelTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
    res, err := tx.ExecContext(ctx,
        `UPDATE orders SET status = ? WHERE id = ? AND status = ?`,
        model.OrderCancelled, id, model.OrderUnpaid)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n == 1, nil
}

// ListStaleUnpaid returns ids of unpaid orders created before cutoff,
// oldest first, at most limit of them.
func (r *OrderRepo) ListStaleUnpaid(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
    rows, err := r.db.QueryContext(ctx,
        `SELECT id FROM orders WHERE status = ? AND created_at < ? ORDER BY created_at ASC LIMIT ?`,
        model.OrderUnpaid, cutoff, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    ids := []uint64{}
    for rows.Next() {
        var id uint64
        if err := rows.Scan(&id); err != nil {
            return nil, err
        }
        ids = append(ids, id)
    }
    return ids, rows.Err()
}

// CountByStatus returns the number of orders per status across all users.
func (r *OrderRepo) CountByStatus(ctx context.Context) (map[model.OrderStatus]int64, error) {
    rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    out := map[model.OrderStatus]int64{}
    for rows.Next() {
        var st model.OrderStatus
        var n int64
        if err := rows.Scan(&st, &n); err != nil {
            return nil, err
        }
        out[st] = n
    }
    return out, rows.Err()
}
