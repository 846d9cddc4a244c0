package queue

import (
    "context"
    "errors"
    "fmt"
    "sync"
    "time"

    amqp "github.com/rabbitmq/amqp091-go"
    "go.uber.org/zap"
)

// Handler processes one message body.  A nil error acknowledges the
// message; any error rejects it without requeue so a poisoned message
// cannot loop forever.
type Handler func(ctx context.Context, body []byte) error

// Consumer drains one queue with a fixed number of workers.  It keeps
// reconnecting with exponential backoff until its context is cancelled.
type Consumer struct {
    url           string
    queue         string
    workers       int
    prefetch      int
    paymentWindow time.Duration
    handle        Handler
    log           *zap.Logger
}

// ConsumerConfig configures a Consumer.
type ConsumerConfig struct {
    URL           string
    Queue         string
    Workers       int
    Prefetch      int
    PaymentWindow time.Duration // used to declare the topology
}

// NewConsumer returns a consumer of cfg.Queue dispatching to h.
func NewConsumer(cfg ConsumerConfig, h Handler, log *zap.Logger) *Consumer {
    if cfg.Workers <= 0 {
        cfg.Workers = 1
    }
    if cfg.Prefetch < cfg.Workers {
        cfg.Prefetch = cfg.Workers
    }
    if log == nil {
        log = zap.NewNop()
    }
    return &Consumer{
        url:           cfg.URL,
        queue:         cfg.Queue,
        workers:       cfg.Workers,
        prefetch:      cfg.Prefetch,
        paymentWindow: cfg.PaymentWindow,
        handle:        h,
        log:           log.With(zap.String("queue", cfg.Queue)),
    }
}

// Run connects to the broker and consumes until ctx is done.  Connection
// failures are retried with backoff capped at 30s.  It returns ctx.Err()
// on shutdown.
func (c *Consumer) Run(ctx context.Context) error {
    backoff := time.Second
    for {
        conn, err := amqp.Dial(c.url)
        if err != nil {
            c.log.Warn("consumer: failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
            if !sleep(ctx, backoff) {
                return ctx.Err()
            }
            if backoff < 30*time.Second {
                backoff *= 2
            }
            continue
        }
        backoff = time.Second // reset after successful connect

        err = c.consumeLoop(ctx, conn)
        _ = conn.Close()
        if ctx.Err() != nil {
            return ctx.Err()
        }
        c.log.Warn("consumer: consume loop ended, reconnecting", zap.Error(err))
        if !sleep(ctx, 2*time.Second) {
            return ctx.Err()
        }
    }
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
    ch, err := conn.Channel()
    if err != nil {
        return fmt.Errorf("channel open: %w", err)
    }
    defer func() { _ = ch.Close() }()

    if err := ch.Qos(c.prefetch, 0, false); err != nil {
        c.log.Warn("consumer: set QoS failed", zap.Error(err))
    }
    if err := Declare(ch, c.paymentWindow); err != nil {
        return err
    }

    msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
    if err != nil {
        return fmt.Errorf("queue consume: %w", err)
    }
    c.log.Info("consumer: started", zap.Int("workers", c.workers), zap.Int("prefetch", c.prefetch))
    return c.Serve(ctx, msgs)
}

// Serve dispatches deliveries to the workers until msgs is closed or ctx
// is done.  In-flight messages finish before Serve returns.
func (c *Consumer) Serve(ctx context.Context, msgs <-chan amqp.Delivery) error {
    var wg sync.WaitGroup
    closed := make(chan struct{})
    var once sync.Once
    for i := 0; i < c.workers; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            for {
                select {
                case <-ctx.Done():
                    return
                case d, ok := <-msgs:
                    if !ok {
                        once.Do(func() { close(closed) })
                        return
                    }
                    c.process(ctx, d)
                }
            }
        }()
    }
    wg.Wait()
    select {
    case <-closed:
        return errors.New("deliveries channel closed")
    default:
        return ctx.Err()
    }
}

// process runs the handler on one delivery and settles it.  A panic in the
// handler is treated as a failure.
func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
    err := c.safeHandle(ctx, d.Body)
    if err != nil {
        c.log.Error("consumer: handle message failed", zap.Error(err), zap.ByteString("body", d.Body))
        _ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
        return
    }
    _ = d.Ack(false)
}

func (c *Consumer) safeHandle(ctx context.Context, body []byte) (err error) {
    defer func() {
        if p := recover(); p != nil {
            err = fmt.Errorf("handler panic: %v", p)
        }
    }()
    return c.handle(ctx, body)
}

func sleep(ctx context.Context, d time.Duration) bool {
    t := time.NewTimer(d)
    defer t.Stop()
    select {
    case <-ctx.Done():
        return false
    case <-t.C:
        return true
    }
}
