package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderCreated       = "order.created"
	EventTypeOrderStatusChanged = "order.status_changed"
	EventTypeOrderPayment       = "order.payment"
	EventTypePaymentSuccess     = "payment.succeeded"
	EventTypePaymentFailed      = "payment.failed"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// RealtimeEnvelope carries a bus event between service instances
type RealtimeEnvelope struct {
	BaseEvent
	Origin   string          `json:"origin"`
	Channels []string        `json:"channels"`
	Payload  json.RawMessage `json:"payload"`
}

// OrderCreatedEvent published when an order is persisted
type OrderCreatedEvent struct {
	BaseEvent
	OrderID         string          `json:"order_id"`
	BusinessID      string          `json:"business_id"`
	Status          Status          `json:"status"`
	FulfillmentMode FulfillmentMode `json:"fulfillment_mode"`
	CustomerID      string          `json:"customer_id,omitempty"`
	Total           decimal.Decimal `json:"total"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentRef      string          `json:"payment_ref,omitempty"`
	TrackingToken   string          `json:"tracking_token"`
	DineInToken     string          `json:"dine_in_token,omitempty"`
	TabID           string          `json:"tab_id,omitempty"`
	ItemCount       int             `json:"item_count"`
}

// OrderStatusChangedEvent published after a committed transition
type OrderStatusChangedEvent struct {
	BaseEvent
	OrderID    string    `json:"order_id"`
	BusinessID string    `json:"business_id"`
	From       Status    `json:"from"`
	To         Status    `json:"to"`
	RiderID    string    `json:"rider_id,omitempty"`
	ActorID    string    `json:"actor_id"`
	Role       string    `json:"role"`
	Note       string    `json:"note,omitempty"`
	ChangedAt  time.Time `json:"changed_at"`
}

// OrderPaymentEvent published when the payment status of an order changes
type OrderPaymentEvent struct {
	BaseEvent
	OrderID       string `json:"order_id"`
	BusinessID    string `json:"business_id"`
	PaymentStatus string `json:"payment_status"`
	PaymentRef    string `json:"payment_ref,omitempty"`
}

// PaymentSuccessEvent published by the payment gateway
type PaymentSuccessEvent struct {
	BaseEvent
	OrderID string          `json:"order_id"`
	Amount  decimal.Decimal `json:"amount"`
	TxID    string          `json:"tx_id"`
}

// PaymentFailedEvent published by the payment gateway
type PaymentFailedEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	TxID    string `json:"tx_id"`
	Reason  string `json:"reason"`
}

// TrackingSnapshot is the live view written for customer tracking pages
type TrackingSnapshot struct {
	OrderID   string    `json:"order_id"`
	Status    Status    `json:"status"`
	RiderID   string    `json:"rider_id,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
