package model

import (
    "time"

    "github.com/shopspring/decimal"
)

// OrderStatus is the payment state of an order.
type OrderStatus string

const (
    OrderPending   OrderStatus = "pending"
    OrderSucceeded OrderStatus = "succeeded"
    OrderCanceled  OrderStatus = "canceled"
)

// Terminal reports whether no further transition is allowed from s.
func (s OrderStatus) Terminal() bool {
    return s == OrderSucceeded || s == OrderCanceled
}

// Order records one checkout attempt (`orders` row plus its `order_items`).
//
// Fields:
//  ID         – primary key; embedded in the gateway return URL.
//  UserID     – buyer.
//  Items      – snapshot of the cart at creation time (quantities only).
//  TotalPrice – Σ price × quantity computed from live product prices at creation.
//  Status     – pending until a webhook or the sweeper moves it to a terminal state.
//  PaymentID  – gateway payment id; a "pending-" placeholder until backfilled.
type Order struct {
    ID         uint64          `json:"id"`
    UserID     uint64          `json:"userId"`
    Items      []OrderItem     `json:"products"`
    TotalPrice decimal.Decimal `json:"totalPrice"`
    Status     OrderStatus     `json:"status"`
    PaymentID  string          `json:"paymentId"`
    CreatedAt  time.Time       `json:"createdAt"`
    UpdatedAt  time.Time       `json:"updatedAt"`
}

// OrderItem is one line of an order. Product is populated only by listing
// queries and is nil when the product has since been deleted.
type OrderItem struct {
    ProductID uint64      `json:"productId"`
    Quantity  int         `json:"quantity"`
    Product   *ProductRef `json:"product,omitempty"`
}
