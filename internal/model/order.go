package model

import "time"

// OrderStatus mirrors orders.status.
type OrderStatus uint8

const (
    OrderUnpaid    OrderStatus = 0
    OrderPaid      OrderStatus = 1
    OrderShipped   OrderStatus = 2
    OrderReceived  OrderStatus = 3
    OrderCancelled OrderStatus = 4
    OrderRefunded  OrderStatus = 5
)

func (s OrderStatus) String() string {
    switch s {
    case OrderUnpaid:
        return "UNPAID"
    case OrderPaid:
        return "PAID"
    case OrderShipped:
        return "SHIPPED"
    case OrderReceived:
        return "RECEIVED"
    case OrderCancelled:
        return "CANCELLED"
    case OrderRefunded:
        return "REFUNDED"
    }
    return "UNKNOWN"
}

// Order is the durable record of a successful purchase (`orders` table).
// Orders are never deleted; cancellation and refunds are status changes.
type Order struct {
    ID         uint64      `json:"id"`
    UserID     uint64      `json:"user_id"`
    GoodsID    uint64      `json:"goods_id"`
    ActivityID uint64      `json:"activity_id"`
    GoodsName  string      `json:"goods_name"`
    Quantity   int         `json:"quantity"`
    PriceCents int64       `json:"price_cents"`
    Status     OrderStatus `json:"status"`
    PaidAt     *time.Time  `json:"paid_at,omitempty"`
    CreatedAt  time.Time   `json:"created_at"`
    UpdatedAt  time.Time   `json:"updated_at"`
}

// OrderStats summarises a user's orders by status.
type OrderStats struct {
    Total     int64 `json:"total"`
    Unpaid    int64 `json:"unpaid"`
    Paid      int64 `json:"paid"`
    Cancelled int64 `json:"cancelled"`
}
