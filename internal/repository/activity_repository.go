package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/seckill/internal/model"
)

// ActivityRepo reads and updates seckill_activities joined with goods.
// Soft-deleted rows on either side are invisible to every query.
type ActivityRepo struct {
	db *sql.DB
}

// NewActivityRepo returns a new ActivityRepo bound to the given database.
func NewActivityRepo(db *sql.DB) *ActivityRepo { return &ActivityRepo{db: db} }

const activitySelect = `SELECT a.id, a.goods_id, g.name, g.title, g.img, COALESCE(g.detail, ''), g.price_cents, g.status,
       a.sale_price_cents, a.stock_count, a.start_at, a.end_at, a.status
  FROM seckill_activities a
  JOIN goods g ON g.id = a.goods_id
 WHERE a.deleted = 0 AND g.deleted = 0`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanActivity(s rowScanner) (model.Activity, error) {
	var a model.Activity
	var onSale int
	err := s.Scan(&a.ID, &a.GoodsID, &a.GoodsName, &a.GoodsTitle, &a.GoodsImg, &a.GoodsDetail,
		&a.GoodsPrice, &onSale, &a.SalePrice, &a.StockCount, &a.StartAt, &a.EndAt, &a.Status)
	a.GoodsOnSale = onSale == 1
	return a, err
}

// GetByID returns the activity with the given id or ErrActivityNotFound.
func (r *ActivityRepo) GetByID(ctx context.Context, id uint64) (*model.Activity, error) {
	a, err := scanActivity(r.db.QueryRowContext(ctx, activitySelect+` AND a.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrActivityNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// ListOnSale returns every activity whose good is on sale, earliest start
// first.  Unpublished activities are included so shoppers can see upcoming
// sales.
func (r *ActivityRepo) ListOnSale(ctx context.Context) ([]model.Activity, error) {
	return r.list(ctx, activitySelect+` AND g.status = 1 ORDER BY a.start_at ASC, a.id ASC`)
}

// ListActive returns activities whose stored status is active.
func (r *ActivityRepo) ListActive(ctx context.Context) ([]model.Activity, error) {
	return r.list(ctx, activitySelect+` AND a.status = 1 ORDER BY a.id ASC`)
}

// ListAll returns every visible activity regardless of status.
func (r *ActivityRepo) ListAll(ctx context.Context) ([]model.Activity, error) {
	return r.list(ctx, activitySelect+` ORDER BY a.id ASC`)
}

func (r *ActivityRepo) list(ctx context.Context, q string, args ...any) ([]model.Activity, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Activity{}
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DecrStockTx decrements persistent stock by one when it is positive.  It
// reports whether a row was updated.
func (r *ActivityRepo) DecrStockTx(ctx context.Context, tx *sql.Tx, id uint64) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE seckill_activities SET stock_count = stock_count - 1 WHERE id = ? AND stock_count > 0`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RestoreStockTx gives one unit back to persistent stock.
func (r *ActivityRepo) RestoreStockTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE seckill_activities SET stock_count = stock_count + 1 WHERE id = ?`, id)
	return err
}

// ResetStock overwrites the persisted stock of an activity.
func (r *ActivityRepo) ResetStock(ctx context.Context, id uint64, stock int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE seckill_activities SET stock_count = ? WHERE id = ? AND deleted = 0`, stock, id)
	return err
}

// SoftDelete hides an activity.  It returns ErrActivityNotFound when no
// visible row matched.
func (r *ActivityRepo) SoftDelete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE seckill_activities SET deleted = 1 WHERE id = ? AND deleted = 0`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrActivityNotFound
	}
	return nil
}

// Status transitions driven by the availability scheduler.  Each one
// selects the matching ids and flips them with the same predicate inside
// one transaction, so the returned ids are exactly the rows changed.
const (
	endExpiredWhere = `status = 1 AND end_at < ? AND deleted = 0`
	reactivateWhere = `status = 2 AND start_at <= ? AND end_at >= ? AND deleted = 0`
	publishDueWhere = `status = 0 AND start_at <= ? AND end_at >= ? AND deleted = 0`
)

// EndExpired flips active activities past their end instant to ended.
func (r *ActivityRepo) EndExpired(ctx context.Context, now time.Time) ([]uint64, error) {
	return r.transition(ctx, model.ActivityEnded, endExpiredWhere, now)
}

// ReactivateOpen flips ended activities whose window is still open back to
// active.
func (r *ActivityRepo) ReactivateOpen(ctx context.Context, now time.Time) ([]uint64, error) {
	return r.transition(ctx, model.ActivityActive, reactivateWhere, now, now)
}

// PublishDue flips unpublished activities whose window has opened to active.
func (r *ActivityRepo) PublishDue(ctx context.Context, now time.Time) ([]uint64, error) {
	return r.transition(ctx, model.ActivityActive, publishDueWhere, now, now)
}

func (r *ActivityRepo) transition(ctx context.Context, to model.ActivityStatus, where string, args ...any) ([]uint64, error) {
	ids := []uint64{}
	err := WithTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM seckill_activities WHERE `+where+` FOR UPDATE`, args...)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id uint64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		if err := rows.Close(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE seckill_activities SET status = ? WHERE `+where, append([]any{to}, args...)...)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ActivitySummary aggregates activity counts for the admin dashboard.
type ActivitySummary struct {
	Total      int64 `json:"total"`
	Active     int64 `json:"active"`
	TotalStock int64 `json:"total_stock"`
}

// Summary counts visible activities, active ones and their summed stock.
func (r *ActivityRepo) Summary(ctx context.Context) (ActivitySummary, error) {
	var s ActivitySummary
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(status = 1), 0), COALESCE(SUM(stock_count), 0)
		   FROM seckill_activities WHERE deleted = 0`).Scan(&s.Total, &s.Active, &s.TotalStock)
	return s, err
}
