package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/iliyamo/seckill/internal/config"
	"github.com/iliyamo/seckill/internal/handler"
	"github.com/iliyamo/seckill/internal/middleware"
)

// Handlers bundles everything the API serves.
type Handlers struct {
	Seckill *handler.SeckillHandler
	Goods   *handler.GoodsHandler
	Orders  *handler.OrderHandler
	Admin   *handler.AdminHandler
	Ready   echo.HandlerFunc
}

// Options carries what the middleware chain needs.
type Options struct {
	JWTSecret string
	RateLimit config.RateLimitConfig
	Limiter   middleware.Hitter
	Log       *zap.Logger
}

// RegisterRoutes registers routes that do not require authentication:
// probes and Prometheus metrics.
func RegisterRoutes(e *echo.Echo, ready echo.HandlerFunc) {
	e.GET("/healthz", handler.Health)
	if ready != nil {
		e.GET("/readyz", ready)
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterPublic registers the unauthenticated catalog.
func RegisterPublic(e *echo.Echo, h *handler.GoodsHandler) {
	e.GET("/v1/goods", h.List)
	e.GET("/v1/goods/:id", h.Detail)
}

// RegisterSeckill registers the admission pipeline.  Each step has its own
// fixed-window limiter; the purchase step additionally sheds load in
// process before touching Redis.
func RegisterSeckill(e *echo.Echo, h *handler.SeckillHandler, o Options) {
	g := e.Group("/v1/seckill", middleware.JWTAuth(o.JWTSecret))
	rl := o.RateLimit

	g.GET("/captcha/:id", h.Captcha,
		middleware.RateLimit(rl, "captcha", rl.Captcha, o.Limiter, o.Log))
	g.GET("/path/:id", h.Path,
		middleware.RateLimit(rl, "path", rl.Path, o.Limiter, o.Log))
	g.POST("/:path/do/:id", h.Do,
		middleware.LocalLimiter("do", rl.LocalRPS, rl.LocalBurst),
		middleware.RateLimit(rl, "do", rl.Execute, o.Limiter, o.Log))
	g.GET("/result/:id", h.Result)
}

// RegisterOrders registers the caller's order endpoints.
func RegisterOrders(e *echo.Echo, h *handler.OrderHandler, jwtSecret string) {
	g := e.Group("/v1/orders", middleware.JWTAuth(jwtSecret))
	g.GET("", h.List)
	g.GET("/stats", h.Stats)
	g.GET("/:id", h.Get)
	g.POST("/:id/pay", h.Pay)
	g.POST("/:id/cancel", h.Cancel)
}

// RegisterAdmin registers ADMIN-scoped endpoints.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole("ADMIN"),
	)
	g.GET("/dashboard", h.Dashboard)
	g.GET("/orders", h.Orders)
	g.PUT("/activities/:id/stock", h.ResetStock)
	g.DELETE("/activities/:id", h.Delete)
}

// Register mounts the whole API.
func Register(e *echo.Echo, h Handlers, o Options) {
	RegisterRoutes(e, h.Ready)
	RegisterPublic(e, h.Goods)
	RegisterSeckill(e, h.Seckill, o)
	RegisterOrders(e, h.Orders, o.JWTSecret)
	RegisterAdmin(e, h.Admin, o.JWTSecret)
}
