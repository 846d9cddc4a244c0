package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/seckill/internal/cache"
	"github.com/iliyamo/seckill/internal/clock"
	"github.com/iliyamo/seckill/internal/config"
	"github.com/iliyamo/seckill/internal/model"
	"github.com/iliyamo/seckill/internal/repository"
	"github.com/iliyamo/seckill/internal/seckill"
)

// GoodsService serves the catalog.  Activity rows are cached as stored;
// the shopper-facing phase and countdown are computed on every read so a
// cached entry never reports a stale phase.
type GoodsService struct {
	activities ActivityReader
	cache      CatalogCache
	cfg        config.CacheConfig
	clock      clock.Clock
	log        *zap.Logger
}

// NewGoodsService returns a GoodsService.  A nil cache disables caching.
func NewGoodsService(activities ActivityReader, c CatalogCache, cfg config.CacheConfig, clk clock.Clock, log *zap.Logger) *GoodsService {
	if c == nil {
		cfg.Enabled = false
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &GoodsService{activities: activities, cache: c, cfg: cfg, clock: clk, log: log}
}

// List returns every on-sale activity with its current phase.
func (s *GoodsService) List(ctx context.Context) ([]model.ActivityView, error) {
	var acts []model.Activity
	if !s.cachedGet(ctx, cache.ListKey, &acts) {
		var err error
		acts, err = s.activities.ListOnSale(ctx)
		if err != nil {
			return nil, err
		}
		s.cachedSet(ctx, cache.ListKey, acts, s.cfg.ListTTL)
	}
	now := s.clock.Now()
	out := make([]model.ActivityView, 0, len(acts))
	for _, a := range acts {
		out = append(out, model.NewActivityView(a, now))
	}
	return out, nil
}

// Detail returns one activity with its current phase.
func (s *GoodsService) Detail(ctx context.Context, id uint64) (*model.ActivityView, error) {
	a, err := s.Activity(ctx, id)
	if err != nil {
		return nil, err
	}
	v := model.NewActivityView(*a, s.clock.Now())
	return &v, nil
}

// Activity resolves an activity through the detail cache.  It implements
// seckill.ActivitySource.
func (s *GoodsService) Activity(ctx context.Context, id uint64) (*model.Activity, error) {
	key := cache.DetailKey(id)
	var a model.Activity
	if s.cachedGet(ctx, key, &a) {
		return &a, nil
	}
	found, err := s.activities.GetByID(ctx, id)
	if errors.Is(err, repository.ErrActivityNotFound) {
		return nil, seckill.ErrActivityNotFound
	}
	if err != nil {
		return nil, err
	}
	s.cachedSet(ctx, key, found, s.cfg.DetailTTL)
	return found, nil
}

// Invalidate drops the listing and the given detail entries.
func (s *GoodsService) Invalidate(ctx context.Context, ids ...uint64) {
	if s.cache == nil {
		return
	}
	keys := []string{cache.ListKey}
	for _, id := range ids {
		keys = append(keys, cache.DetailKey(id))
	}
	if err := s.cache.Evict(ctx, keys...); err != nil {
		s.log.Warn("catalog cache eviction failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (s *GoodsService) cachedGet(ctx context.Context, key string, dst any) bool {
	if !s.cfg.Enabled {
		return false
	}
	ok, err := s.cache.GetJSON(ctx, key, dst)
	if err != nil {
		s.log.Warn("catalog cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	return ok
}

func (s *GoodsService) cachedSet(ctx context.Context, key string, v any, ttl time.Duration) {
	if !s.cfg.Enabled {
		return
	}
	if err := s.cache.SetJSON(ctx, key, v, ttl); err != nil {
		s.log.Warn("catalog cache write failed", zap.String("key", key), zap.Error(err))
	}
}
