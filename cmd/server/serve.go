package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/iliyamo/seckill/internal/handler"
	"github.com/iliyamo/seckill/internal/logging"
	appmw "github.com/iliyamo/seckill/internal/middleware"
	"github.com/iliyamo/seckill/internal/router"
	"github.com/iliyamo/seckill/internal/seckill"
	"github.com/iliyamo/seckill/internal/service"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	var noScheduler, noWorkers bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the availability scheduler and the queue consumers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, !noScheduler, !noWorkers)
		},
	}
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not run the availability scheduler in this process")
	cmd.Flags().BoolVar(&noWorkers, "no-workers", false, "do not consume the fulfillment and timeout queues in this process")
	return cmd
}

func serve(ctx context.Context, withScheduler, withWorkers bool) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	ctx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var wg sync.WaitGroup
	if withScheduler {
		sched := service.NewScheduler(service.SchedulerDeps{
			Activities:    a.activities,
			Transitions:   a.activities,
			Orders:        a.orderRepo,
			Canceller:     a.orders,
			Store:         a.store,
			Goods:         a.goods,
			SoldOut:       a.soldOut,
			Clock:         a.clock,
			Period:        a.sk.SchedulerPeriod,
			PaymentWindow: a.sk.PaymentWindow,
			Log:           logging.Component(a.log, "scheduler"),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.Run(ctx)
		}()
	}
	if withWorkers {
		for _, c := range a.consumers() {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = c.Run(ctx)
			}()
		}
	}

	e := newEcho(a)
	addr := ":" + a.cfg.Port
	srvErr := make(chan error, 1)
	go func() {
		a.log.Info("listening", zap.String("addr", addr), zap.String("env", a.cfg.Env))
		srvErr <- e.Start(addr)
	}()

	select {
	case err = <-srvErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if serr := e.Shutdown(shutdownCtx); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
		a.log.Warn("http shutdown", zap.Error(serr))
	}
	cancelRun()
	wg.Wait()
	a.log.Info("stopped")
	return err
}

func newEcho(a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = appmw.IPExtractor(a.rate.TrustedProxies)
	e.Use(echomw.Recover())
	httpLog := logging.Component(a.log, "http")
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			httpLog.Debug("request",
				zap.String("method", v.Method), zap.String("uri", v.URI),
				zap.Int("status", v.Status), zap.Duration("latency", v.Latency))
			return nil
		},
	}))

	captchas := seckill.NewCaptchaService(a.store, a.sk.CaptchaTTL)
	paths := seckill.NewPathService(a.store, captchas, a.cfg.PathSecret, a.sk.PathTTL)
	engine := seckill.NewEngine(seckill.EngineDeps{
		Paths:      paths,
		Store:      a.store,
		Activities: a.goods,
		Queue:      a.publisher,
		SoldOut:    a.soldOut,
		Clock:      a.clock,
		MarkerTTL:  a.sk.MarkerTTL,
		Log:        logging.Component(a.log, "engine"),
	})
	admin := service.NewAdminService(a.activities, a.orderRepo, a.store, a.goods, a.soldOut,
		logging.Component(a.log, "admin"))

	router.Register(e, router.Handlers{
		Seckill: handler.NewSeckillHandler(captchas, paths, engine, a.goods, httpLog),
		Goods:   handler.NewGoodsHandler(a.goods, httpLog),
		Orders:  handler.NewOrderHandler(a.orders, httpLog),
		Admin:   handler.NewAdminHandler(admin, httpLog),
		Ready: handler.Ready(map[string]handler.Pinger{
			"mysql": a.db.PingContext,
			"redis": func(ctx context.Context) error { return a.rdb.Ping(ctx).Err() },
		}),
	}, router.Options{
		JWTSecret: a.cfg.JWTSecret,
		RateLimit: a.rate,
		Limiter:   a.store,
		Log:       logging.Component(a.log, "ratelimit"),
	})
	return e
}
