package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/seckill/internal/cache"
	"github.com/iliyamo/seckill/internal/clock"
	"github.com/iliyamo/seckill/internal/config"
	"github.com/iliyamo/seckill/internal/database"
	"github.com/iliyamo/seckill/internal/logging"
	"github.com/iliyamo/seckill/internal/queue"
	"github.com/iliyamo/seckill/internal/repository"
	"github.com/iliyamo/seckill/internal/seckill"
	"github.com/iliyamo/seckill/internal/service"
)

// app holds the process-wide dependencies shared by the serve and worker
// commands.
type app struct {
	cfg     config.Config
	rate    config.RateLimitConfig
	catalog config.CacheConfig
	sk      config.SeckillConfig
	log     *zap.Logger
	clock   clock.Clock

	db        *sql.DB
	rdb       *redis.Client
	store     *cache.Store
	publisher *queue.Publisher
	soldOut   *seckill.SoldOut

	activities *repository.ActivityRepo
	orderRepo  *repository.OrderRepo
	purchases  *repository.PurchaseRepo

	goods       *service.GoodsService
	orders      *service.OrderService
	fulfillment *service.Fulfillment
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()
	log, err := logging.New(cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	a := &app{
		cfg:     cfg,
		rate:    config.LoadRateLimitConfig(),
		catalog: config.LoadCacheConfig(),
		sk:      config.LoadSeckillConfig(),
		log:     log,
		clock:   clock.NewSystem(),
		soldOut: seckill.NewSoldOut(),
	}

	a.db, err = database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := database.EnsureSchema(ctx, a.db); err != nil {
		a.close()
		return nil, err
	}
	a.rdb, err = config.NewRedisClient()
	if err != nil {
		a.close()
		return nil, err
	}
	a.store = cache.New(a.rdb)
	a.publisher = queue.NewPublisher(queue.DialConnector(cfg.RabbitMQURL, a.sk.PaymentWindow),
		logging.Component(log, "publisher"))

	a.activities = repository.NewActivityRepo(a.db)
	a.orderRepo = repository.NewOrderRepo(a.db)
	a.purchases = repository.NewPurchaseRepo(a.db, a.activities, a.orderRepo, repository.NewGuardRepo())

	a.goods = service.NewGoodsService(a.activities, a.store, a.catalog, a.clock, logging.Component(log, "goods"))
	a.orders = service.NewOrderService(a.orderRepo, a.purchases, a.store, a.soldOut, a.clock,
		logging.Component(log, "orders"))
	a.fulfillment = service.NewFulfillment(service.FulfillmentDeps{
		Activities: a.activities,
		Purchases:  a.purchases,
		Store:      a.store,
		Timeouts:   a.publisher,
		SoldOut:    a.soldOut,
		Clock:      a.clock,
		ResultTTL:  a.sk.ResultTTL,
		Log:        logging.Component(log, "fulfillment"),
	})
	return a, nil
}

// consumers returns the fulfillment and order-timeout consumers.
func (a *app) consumers() []*queue.Consumer {
	base := queue.ConsumerConfig{
		URL:           a.cfg.RabbitMQURL,
		Workers:       a.sk.Workers,
		Prefetch:      a.sk.Prefetch,
		PaymentWindow: a.sk.PaymentWindow,
	}
	fulfil := base
	fulfil.Queue = queue.SeckillQueue
	timeouts := base
	timeouts.Queue = queue.OrderDeadQueue
	timeouts.Workers = 1
	return []*queue.Consumer{
		queue.NewConsumer(fulfil, a.fulfillment.Handle, logging.Component(a.log, "consumer")),
		queue.NewConsumer(timeouts, a.orders.HandleTimeout, logging.Component(a.log, "consumer")),
	}
}

func (a *app) close() {
	if a.publisher != nil {
		_ = a.publisher.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
	_ = a.log.Sync()
}
