package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// PublishChannel is the subset of *amqp.Channel the publisher needs.
type PublishChannel interface {
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	Close() error
}

// Connector opens a channel ready for publishing and returns the closer of
// the underlying connection.
type Connector func() (PublishChannel, io.Closer, error)

// DialConnector dials url, declares the topology and enables publisher
// confirms on a fresh channel.
func DialConnector(url string, paymentWindow time.Duration) Connector {
	return func() (PublishChannel, io.Closer, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, nil, fmt.Errorf("dial broker: %w", err)
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("channel open: %w", err)
		}
		if err := Declare(ch, paymentWindow); err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		if err := ch.Confirm(false); err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("enable confirms: %w", err)
		}
		return ch, conn, nil
	}
}

// confirmTimeout bounds one publish and its confirmation.
const confirmTimeout = 5 * time.Second

// ErrNotConfirmed is returned when the broker nacked a publishing.
var ErrNotConfirmed = errors.New("publish not confirmed by broker")

// Publisher publishes persistent JSON messages over a long-lived channel
// and waits for the broker's confirmation of each one.  A failed publish
// drops the connection; the next call reconnects.  Publisher is safe for
// concurrent use.
//
// A publish outlives the caller's cancellation; confirmTimeout bounds it.
type Publisher struct {
	connect Connector
	log     *zap.Logger

	mu   sync.Mutex
	ch   PublishChannel
	conn io.Closer
}

// NewPublisher returns a publisher that connects lazily through connect.
func NewPublisher(connect Connector, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{connect: connect, log: log}
}

// EnqueueReservation publishes an accepted reservation for fulfillment.
func (p *Publisher) EnqueueReservation(ctx context.Context, userID, activityID uint64) error {
	return p.publish(ctx, SeckillExchange, SeckillRoutingKey, ReservationMessage{UserID: userID, ActivityID: activityID})
}

// PublishOrderTimeout schedules timeout reconciliation of orderID after
// the payment window.
func (p *Publisher) PublishOrderTimeout(ctx context.Context, orderID uint64) error {
	return p.publish(ctx, OrderDelayExchange, OrderDelayRoutingKey, OrderTimeoutMessage{OrderID: orderID})
}

func (p *Publisher) channel() (PublishChannel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		return p.ch, nil
	}
	ch, conn, err := p.connect()
	if err != nil {
		return nil, err
	}
	p.ch, p.conn = ch, conn
	return ch, nil
}

// reset discards ch if it is still the current channel.
func (p *Publisher) reset(ch PublishChannel) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != ch {
		return
	}
	_ = p.ch.Close()
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.ch, p.conn = nil, nil
}

func (p *Publisher) publish(ctx context.Context, exchange, key string, v any) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), confirmTimeout)
	defer cancel()
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	ch, err := p.channel()
	if err != nil {
		p.log.Warn("publish: broker unavailable", zap.String("exchange", exchange), zap.Error(err))
		return err
	}
	conf, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		p.reset(ch)
		p.log.Warn("publish failed", zap.String("exchange", exchange), zap.Error(err))
		return fmt.Errorf("publish to %s: %w", exchange, err)
	}
	// nil when the channel is not in confirm mode
	if conf == nil {
		return nil
	}
	acked, err := conf.WaitContext(ctx)
	if err != nil {
		p.reset(ch)
		return fmt.Errorf("await confirm from %s: %w", exchange, err)
	}
	if !acked {
		return fmt.Errorf("%s: %w", exchange, ErrNotConfirmed)
	}
	return nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var err error
	if p.ch != nil {
		err = p.ch.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	p.ch, p.conn = nil, nil
	return err
}
