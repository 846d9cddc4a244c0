package config

import "time"

// SeckillConfig gathers the lifetimes and worker settings of the flash-sale
// pipeline.  The defaults match the payment window and admission step
// lifetimes the storefront advertises to customers.
type SeckillConfig struct {
    CaptchaTTL      time.Duration // lifetime of an issued captcha answer
    PathTTL         time.Duration // lifetime of a one-time purchase path
    MarkerTTL       time.Duration // purchase marker safety-net expiry
    ResultTTL       time.Duration // lifetime of a result slot
    PaymentWindow   time.Duration // unpaid orders are cancelled after this
    SchedulerPeriod time.Duration // availability scheduler tick
    Workers         int           // fulfillment goroutines per process
    Prefetch        int           // AMQP prefetch per consumer channel
}

func LoadSeckillConfig() SeckillConfig {
    cfg := SeckillConfig{
        CaptchaTTL:      envDur("SECKILL_CAPTCHA_TTL", 2*time.Minute),
        PathTTL:         envDur("SECKILL_PATH_TTL", 60*time.Second),
        MarkerTTL:       envDur("SECKILL_MARKER_TTL", 24*time.Hour),
        ResultTTL:       envDur("SECKILL_RESULT_TTL", 24*time.Hour),
        PaymentWindow:   envDur("SECKILL_PAYMENT_WINDOW", 30*time.Minute),
        SchedulerPeriod: envDur("SECKILL_SCHEDULER_PERIOD", 60*time.Second),
        Workers:         envInt("SECKILL_WORKERS", 4),
        Prefetch:        envInt("SECKILL_PREFETCH", 50),
    }
    if cfg.Workers < 1 { cfg.Workers = 1 }
    if cfg.Prefetch < cfg.Workers { cfg.Prefetch = cfg.Workers }
    if cfg.SchedulerPeriod <= 0 { cfg.SchedulerPeriod = time.Minute }
    return cfg
}
