// Package queue defines the domain events exchanged over RabbitMQ and the
// publisher and consumer that carry them.
package queue

import "time"

// EventsQueue is the durable queue all domain events are routed to. The
// event kind travels in the AMQP Type property.
const EventsQueue = "storefront.events"

// Event kinds.
const (
    TypeOrderSucceeded = "order.succeeded"
    TypeOrderCanceled  = "order.canceled"
    TypeUserDeleted    = "user.deleted"
)

// Event is implemented by every payload that can be published.
type Event interface {
    EventType() string
}

// OrderEvent is published once, when a pending order reaches a terminal
// state. It carries enough to notify the buyer without reading the
// database.
type OrderEvent struct {
    Type       string `json:"type"`
    OrderID    uint64 `json:"order_id"`
    UserID     uint64 `json:"user_id"`
    PaymentID  string `json:"payment_id"`
    TotalPrice string `json:"total_price"`
    OccurredAt string `json:"occurred_at"`
}

func (e OrderEvent) EventType() string { return e.Type }

// NewOrderEvent builds the event for a transition to status, which must be
// "succeeded" or "canceled".
func NewOrderEvent(status string, orderID, userID uint64, paymentID, total string, at time.Time) OrderEvent {
    return OrderEvent{
        Type:       "order." + status,
        OrderID:    orderID,
        UserID:     userID,
        PaymentID:  paymentID,
        TotalPrice: total,
        OccurredAt: at.UTC().Format(time.RFC3339),
    }
}

// UserDeletedEvent is published after an account is removed. Images are
// the public URLs of the deleted user's avatar and product images, still to
// be removed from storage.
type UserDeletedEvent struct {
    UserID    uint64   `json:"user_id"`
    Images    []string `json:"images,omitempty"`
    DeletedAt string   `json:"deleted_at"`
}

func (UserDeletedEvent) EventType() string { return TypeUserDeleted }
