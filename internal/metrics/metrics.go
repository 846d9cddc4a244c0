// Package metrics exposes the Prometheus counters of the flash-sale pipeline.
// Counters are registered on the default registry and served from /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Reservations counts atomic reservation outcomes
	// (success, stock_empty, duplicate, sold_out_local, error).
	Reservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seckill",
		Name:      "reservations_total",
		Help:      "Reservation attempts by outcome.",
	}, []string{"result"})

	// Fulfillment counts consumed reservation messages by outcome.
	Fulfillment = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seckill",
		Name:      "fulfillment_total",
		Help:      "Fulfillment messages by outcome.",
	}, []string{"outcome"})

	// Compensations counts reservations that were rolled back.
	Compensations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seckill",
		Name:      "compensations_total",
		Help:      "Reservation compensations by reason.",
	}, []string{"reason"})

	// Cancellations counts orders moved from unpaid to cancelled.
	Cancellations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seckill",
		Name:      "order_cancellations_total",
		Help:      "Order cancellations by trigger.",
	}, []string{"trigger"})

	// SchedulerTransitions counts activity status transitions applied by the scheduler.
	SchedulerTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seckill",
		Name:      "scheduler_transitions_total",
		Help:      "Activity status transitions by kind.",
	}, []string{"kind"})

	// RateLimited counts requests rejected by the admission limiters.
	RateLimited = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "seckill",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by rate limiting, by route.",
	}, []string{"route"})
)
