package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seckill/internal/model"
)

func TestMarkPaidOnlyFromUnpaid(t *testing.T) {
	db, mock := newMock(t)
	at := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE orders SET status = \?, paid_at = \? WHERE id = \? AND user_id = \? AND status = \?`).
		WithArgs(model.OrderPaid, at, 42, 11, model.OrderUnpaid).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := NewOrderRepo(db).MarkPaid(context.Background(), 11, 42, at)
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListByUserFiltersStatus(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM orders WHERE user_id = \? AND status = \? ORDER BY created_at DESC`).
		WithArgs(11, model.OrderUnpaid).
		WillReturnRows(sqlmock.NewRows(orderCols).
			AddRow(2, 11, 2, 5, "phone", 1, 100, 0, nil, now, now).
			AddRow(1, 11, 3, 6, "watch", 1, 200, 0, nil, now, now))

	st := model.OrderUnpaid
	orders, err := NewOrderRepo(db).ListByUser(context.Background(), 11, &st)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.Equal(t, "watch", orders[1].GoodsName)
	require.Nil(t, orders[0].PaidAt)
}

func TestListAllAcrossUsers(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	t.Run("filtered", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`FROM orders WHERE status = \? ORDER BY created_at DESC, id DESC LIMIT \?`).
			WithArgs(model.OrderPaid, adminListLimit).
			WillReturnRows(sqlmock.NewRows(orderCols).
				AddRow(9, 12, 2, 5, "phone", 1, 100, 1, now, now, now).
				AddRow(4, 11, 2, 5, "phone", 1, 100, 1, now, now, now))

		st := model.OrderPaid
		orders, err := NewOrderRepo(db).ListAll(context.Background(), &st)
		require.NoError(t, err)
		require.Len(t, orders, 2)
		require.Equal(t, uint64(12), orders[0].UserID)
		require.NotNil(t, orders[0].PaidAt)
		require.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("unfiltered", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectQuery(`FROM orders ORDER BY created_at DESC, id DESC LIMIT \?`).
			WithArgs(adminListLimit).
			WillReturnRows(sqlmock.NewRows(orderCols))

		orders, err := NewOrderRepo(db).ListAll(context.Background(), nil)
		require.NoError(t, err)
		require.Empty(t, orders)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetForUserNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`WHERE id = \? AND user_id = \?`).WithArgs(42, 11).
		WillReturnRows(sqlmock.NewRows(orderCols))

	_, err := NewOrderRepo(db).GetForUser(context.Background(), 11, 42)
	require.ErrorIs(t, err, ErrOrderNotFound)
}

func TestStatsByUser(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(`FROM orders WHERE user_id = \?`).WithArgs(11).
		WillReturnRows(sqlmock.NewRows([]string{"total", "unpaid", "paid", "cancelled"}).AddRow(5, 1, 3, 1))

	s, err := NewOrderRepo(db).StatsByUser(context.Background(), 11)
	require.NoError(t, err)
	require.Equal(t, model.OrderStats{Total: 5, Unpaid: 1, Paid: 3, Cancelled: 1}, s)
}

func TestListStaleUnpaid(t *testing.T) {
	db, mock := newMock(t)
	cutoff := time.Date(2026, 1, 1, 11, 30, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id FROM orders WHERE status = \? AND created_at < \?`).
		WithArgs(model.OrderUnpaid, cutoff, 100).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3).AddRow(8))

	ids, err := NewOrderRepo(db).ListStaleUnpaid(context.Background(), cutoff, 100)
	require.NoError(t, err)
	require.Equal(t, []uint64{3, 8}, ids)
}
