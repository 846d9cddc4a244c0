package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/seckill/internal/clock"
	"github.com/iliyamo/seckill/internal/config"
	"github.com/iliyamo/seckill/internal/model"
	"github.com/iliyamo/seckill/internal/seckill"
)

var cacheOn = config.CacheConfig{Enabled: true, ListTTL: time.Minute, DetailTTL: time.Minute}

func TestGoodsList_CachedWithLivePhase(t *testing.T) {
	db := newMemDB()
	store, _ := newStore(t)
	running := activeActivity(1, 5)
	upcoming := activeActivity(2, 5)
	upcoming.StartAt = testNow.Add(90 * time.Second)
	upcoming.EndAt = testNow.Add(time.Hour)
	offSale := activeActivity(3, 5)
	offSale.GoodsOnSale = false
	for _, a := range []*model.Activity{running, upcoming, offSale} {
		db.put(a)
	}
	svc := NewGoodsService(db, store, cacheOn, clock.NewFixed(testNow), nil)
	ctx := context.Background()

	first, err := svc.List(ctx)
	require.NoError(t, err)
	second, err := svc.List(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, db.listCalls)
	require.Len(t, second, 2)
	assert.Equal(t, first, second)
	assert.Equal(t, model.PhaseOngoing, second[0].Phase)
	assert.Equal(t, model.PhaseNotStarted, second[1].Phase)
	assert.Equal(t, int64(90), second[1].RemainSeconds)
}

func TestGoodsDetail(t *testing.T) {
	db := newMemDB()
	store, _ := newStore(t)
	ended := activeActivity(1, 5)
	ended.EndAt = testNow.Add(-time.Second)
	db.put(ended)
	svc := NewGoodsService(db, store, cacheOn, clock.NewFixed(testNow), nil)
	ctx := context.Background()

	v, err := svc.Detail(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseEnded, v.Phase)
	assert.Equal(t, int64(-1), v.RemainSeconds)

	_, err = svc.Detail(ctx, 2)
	assert.ErrorIs(t, err, seckill.ErrActivityNotFound)
}

func TestGoodsActivity_CacheAndInvalidate(t *testing.T) {
	db := newMemDB()
	store, _ := newStore(t)
	db.put(activeActivity(1, 5))
	svc := NewGoodsService(db, store, cacheOn, clock.NewFixed(testNow), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		a, err := svc.Activity(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, "phone", a.GoodsName)
	}
	assert.Equal(t, 1, db.getCalls)

	svc.Invalidate(ctx, 1)
	_, err := svc.Activity(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, db.getCalls)
}

func TestGoods_CacheDisabled(t *testing.T) {
	db := newMemDB()
	db.put(activeActivity(1, 5))
	svc := NewGoodsService(db, nil, cacheOn, clock.NewFixed(testNow), nil)
	ctx := context.Background()

	_, err := svc.Activity(ctx, 1)
	require.NoError(t, err)
	_, err = svc.Activity(ctx, 1)
	require.NoError(t, err)
	_, err = svc.List(ctx)
	require.NoError(t, err)
	_, err = svc.List(ctx)
	require.NoError(t, err)
	svc.Invalidate(ctx, 1)

	assert.Equal(t, 2, db.getCalls)
	assert.Equal(t, 2, db.listCalls)
}
