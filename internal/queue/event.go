// Package queue defines the broker topology of the fulfillment pipeline,
// its message payloads, a confirming publisher and a reconnecting consumer.
package queue

import (
    "encoding/json"
    "fmt"
)

// ReservationMessage is published when the reservation engine accepted a
// purchase.  It carries only identifiers; the consumer re-reads
// everything else from the system of record.
type ReservationMessage struct {
    UserID     uint64 `json:"user_id"`
    ActivityID uint64 `json:"activity_id"`
}

// OrderTimeoutMessage is published to the delay queue after an order is
// created and reaches the dead-letter queue once the payment window
// elapsed.
type OrderTimeoutMessage struct {
    OrderID uint64 `json:"order_id"`
}

// DecodeReservation parses and validates a reservation message body.
func DecodeReservation(body []byte) (ReservationMessage, error) {
    var m ReservationMessage
    if err := json.Unmarshal(body, &m); err != nil {
        return m, fmt.Errorf("unmarshal reservation: %w", err)
    }
    if m.UserID == 0 || m.ActivityID == 0 {
        return m, fmt.Errorf("reservation message missing ids: %s", body)
    }
    return m, nil
}

// DecodeOrderTimeout parses and validates an order timeout message body.
func DecodeOrderTimeout(body []byte) (OrderTimeoutMessage, error) {
    var m OrderTimeoutMessage
    if err := json.Unmarshal(body, &m); err != nil {
        return m, fmt.Errorf("unmarshal order timeout: %w", err)
    }
    if m.OrderID == 0 {
        return m, fmt.Errorf("order timeout message missing id: %s", body)
    }
    return m, nil
}
