package queue

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange, queue and routing-key names.
const (
	SeckillExchange   = "seckill.exchange"
	SeckillQueue      = "seckill.queue"
	SeckillRoutingKey = "seckill.create"

	OrderDelayExchange   = "order.delay.exchange"
	OrderDelayQueue      = "order.delay.queue"
	OrderDelayRoutingKey = "order.delay"

	OrderDeadExchange   = "order.dead.exchange"
	OrderDeadQueue      = "order.dead.queue"
	OrderDeadRoutingKey = "order.dead"
)

// Declarer is the subset of *amqp.Channel used to declare the topology.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

type binding struct {
	exchange, queue, key string
	args                 amqp.Table
}

// Declare idempotently creates the durable direct exchanges and queues:
// the reservation path, and the order timeout path where messages wait
// paymentWindow in the delay queue before being dead-lettered to the
// queue consumed by timeout reconciliation.
//
// The delay queue's TTL is fixed at declaration; changing paymentWindow
// requires deleting the queue on the broker first.
func Declare(ch Declarer, paymentWindow time.Duration) error {
	bindings := []binding{
		{exchange: SeckillExchange, queue: SeckillQueue, key: SeckillRoutingKey},
		{exchange: OrderDeadExchange, queue: OrderDeadQueue, key: OrderDeadRoutingKey},
		{exchange: OrderDelayExchange, queue: OrderDelayQueue, key: OrderDelayRoutingKey, args: amqp.Table{
			"x-message-ttl":             paymentWindow.Milliseconds(),
			"x-dead-letter-exchange":    OrderDeadExchange,
			"x-dead-letter-routing-key": OrderDeadRoutingKey,
		}},
	}
	for _, b := range bindings {
		if err := ch.ExchangeDeclare(b.exchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", b.exchange, err)
		}
		if _, err := ch.QueueDeclare(b.queue, true, false, false, false, b.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind queue %s: %w", b.queue, err)
		}
	}
	return nil
}
