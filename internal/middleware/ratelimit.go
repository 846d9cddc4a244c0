package middleware

import (
    "context"
    "net/http"
    "strconv"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"
    "golang.org/x/time/rate"

    "github.com/iliyamo/seckill/internal/cache"
    "github.com/iliyamo/seckill/internal/config"
    "github.com/iliyamo/seckill/internal/metrics"
    "github.com/iliyamo/seckill/internal/seckill"
)

// Hitter counts one call against a fixed window.  cache.Store implements it.
type Hitter interface {
    Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimit returns a fixed-window limiter for one route: at most
// limit.Max calls per limit.Window per identity.  Counters live in the
// reservation store under ratelimit:{route}:{identity}; the window starts
// at the first call and its expiry is never pushed back by later calls.
// When the store is unreachable the request is let through.
func RateLimit(cfg config.RateLimitConfig, route string, limit config.RouteLimit, store Hitter, log *zap.Logger) echo.MiddlewareFunc {
    if !cfg.Enabled || store == nil {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    if log == nil {
        log = zap.NewNop()
    }
    retryAfter := strconv.Itoa(int((limit.Window + time.Second - 1) / time.Second))

    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            key := cache.RateKey(cfg.Prefix, route, identity(c))
            n, err := store.Hit(c.Request().Context(), key, limit.Window)
            if err != nil {
                log.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
                return next(c)
            }

            remaining := int64(limit.Max) - n
            if remaining < 0 {
                remaining = 0
            }
            h := c.Response().Header()
            h.Set("X-RateLimit-Limit", strconv.Itoa(limit.Max))
            h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
            if cfg.Debug {
                h.Set("X-RateLimit-Key", key)
            }

            if n > int64(limit.Max) {
                metrics.RateLimited.WithLabelValues(route).Inc()
                if cfg.Debug {
                    log.Debug("rate limited", zap.String("key", key), zap.Int64("count", n))
                }
                h.Set("Retry-After", retryAfter)
                return rejectRateLimited(c)
            }
            return next(c)
        }
    }
}

// LocalLimiter sheds load inside the process before it reaches Redis: a
// token bucket of rps tokens per second with the given burst, shared by
// every caller of the route.  rps <= 0 disables it.
func LocalLimiter(route string, rps float64, burst int) echo.MiddlewareFunc {
    if rps <= 0 {
        return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
    }
    lim := rate.NewLimiter(rate.Limit(rps), burst)
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if !lim.Allow() {
                metrics.RateLimited.WithLabelValues(route + "_local").Inc()
                return rejectRateLimited(c)
            }
            return next(c)
        }
    }
}

func rejectRateLimited(c echo.Context) error {
    code := seckill.CodeRateLimited
    return c.JSON(http.StatusTooManyRequests, echo.Map{"code": int(code), "error": code.Message()})
}
