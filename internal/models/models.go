package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FulfillmentMode selects the transition table an order follows
type FulfillmentMode string

const (
	ModeDelivery FulfillmentMode = "delivery"
	ModePickup   FulfillmentMode = "pickup"
	ModeDineIn   FulfillmentMode = "dine_in"
	ModeCarOrder FulfillmentMode = "car_order"
)

// SharedSeating reports whether orders in this mode are grouped under a tab and token
func (m FulfillmentMode) SharedSeating() bool {
	return m == ModeDineIn || m == ModeCarOrder
}

// Valid reports whether m is a known mode
func (m FulfillmentMode) Valid() bool {
	switch m {
	case ModeDelivery, ModePickup, ModeDineIn, ModeCarOrder:
		return true
	}
	return false
}

// Status is an order lifecycle state
type Status string

// Order statuses
const (
	StatusPending              Status = "pending"
	StatusConfirmed            Status = "confirmed"
	StatusPreparing            Status = "preparing"
	StatusPrepared             Status = "prepared"
	StatusReadyForPickup       Status = "ready_for_pickup"
	StatusDispatched           Status = "dispatched"
	StatusReachedRestaurant    Status = "reached_restaurant"
	StatusPickedUp             Status = "picked_up"
	StatusOnTheWay             Status = "on_the_way"
	StatusRiderArrived         Status = "rider_arrived"
	StatusDeliveryAttempted    Status = "delivery_attempted"
	StatusFailedDelivery       Status = "failed_delivery"
	StatusReturnedToRestaurant Status = "returned_to_restaurant"
	StatusDelivered            Status = "delivered"
	StatusReady                Status = "ready"
	StatusRejected             Status = "rejected"
	StatusCancelled            Status = "cancelled"
)

// AllStatuses lists the full status vocabulary
var AllStatuses = []Status{
	StatusPending, StatusConfirmed, StatusPreparing, StatusPrepared, StatusReadyForPickup,
	StatusDispatched, StatusReachedRestaurant, StatusPickedUp, StatusOnTheWay, StatusRiderArrived,
	StatusDeliveryAttempted, StatusFailedDelivery, StatusReturnedToRestaurant, StatusDelivered,
	StatusReady, StatusRejected, StatusCancelled,
}

// Valid reports whether s belongs to the vocabulary
func (s Status) Valid() bool {
	for _, known := range AllStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Payment statuses
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

// Payment methods
const (
	PaymentMethodCash   = "cash"
	PaymentMethodOnline = "online"
)

// Modifier is an add-on priced on top of its item
type Modifier struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// OrderItem is a priced line of an order
type OrderItem struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Modifiers []Modifier      `json:"modifiers,omitempty"`
}

// LineTotal returns (unit price + modifiers) * quantity
func (i OrderItem) LineTotal() decimal.Decimal {
	unit := i.UnitPrice
	for _, m := range i.Modifiers {
		unit = unit.Add(m.Price)
	}
	return unit.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Money is the order's price breakdown
type Money struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	DeliveryCharge decimal.Decimal `json:"delivery_charge"`
	Fees           decimal.Decimal `json:"fees"`
	Discount       decimal.Decimal `json:"discount"`
	Total          decimal.Decimal `json:"total"`
}

// Address is a delivery destination
type Address struct {
	Text string  `json:"text"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// HistoryEntry is one immutable record of the status history
type HistoryEntry struct {
	Status    Status    `db:"status" json:"status"`
	Timestamp time.Time `db:"created_at" json:"timestamp"`
	ActorID   string    `db:"actor_id" json:"actor_id"`
	Role      string    `db:"role" json:"role"`
	Note      string    `db:"note" json:"note,omitempty"`
}

// Order represents a customer order
type Order struct {
	ID              string          `json:"id"`
	BusinessID      string          `json:"business_id"`
	CustomerID      string          `json:"customer_id,omitempty"`
	GuestID         string          `json:"guest_id,omitempty"`
	Items           []OrderItem     `json:"items"`
	Money           Money           `json:"money"`
	Status          Status          `json:"status"`
	PaymentStatus   string          `json:"payment_status"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentRef      string          `json:"payment_ref,omitempty"`
	FulfillmentMode FulfillmentMode `json:"fulfillment_mode"`
	TrackingToken   string          `json:"tracking_token"`
	DineInToken     string          `json:"dine_in_token,omitempty"`
	TabID           string          `json:"tab_id,omitempty"`
	RiderID         string          `json:"rider_id,omitempty"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
	Address         *Address        `json:"address,omitempty"`
	Notes           string          `json:"notes,omitempty"`
	StatusHistory   []HistoryEntry  `json:"status_history"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// IsTerminal reports whether no transition may leave the order's current status
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case StatusDelivered, StatusRejected, StatusCancelled:
		return true
	case StatusPickedUp:
		return o.FulfillmentMode == ModePickup
	}
	return false
}

// MenuItem is a catalog entry as seen by the pricing gate
type MenuItem struct {
	ID        string                     `json:"id"`
	Name      string                     `json:"name"`
	Price     decimal.Decimal            `json:"price"`
	Available bool                       `json:"available"`
	Modifiers map[string]decimal.Decimal `json:"modifiers,omitempty"`
}

// DeliveryConfig drives the fare calculator
type DeliveryConfig struct {
	Enabled           bool            `json:"enabled"`
	MaxRadiusKm       float64         `json:"max_radius_km"`
	BaseRadiusKm      float64         `json:"base_radius_km"`
	BaseFee           decimal.Decimal `json:"base_fee"`
	PerKmFee          decimal.Decimal `json:"per_km_fee"`
	FreeAboveSubtotal decimal.Decimal `json:"free_above_subtotal"`
	MinOrderValue     decimal.Decimal `json:"min_order_value"`
}

// Business is the read-only snapshot returned by the catalog oracle
type Business struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	IsOpen         bool                `json:"is_open"`
	Lat            float64             `json:"lat"`
	Lng            float64             `json:"lng"`
	TaxRatePercent decimal.Decimal     `json:"tax_rate_percent"`
	ServiceFee     decimal.Decimal     `json:"service_fee"`
	Delivery       DeliveryConfig      `json:"delivery"`
	Menu           map[string]MenuItem `json:"menu"`
}

// ProcessedEvent for idempotent event consumption
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
