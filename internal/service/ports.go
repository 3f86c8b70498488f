package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/store"
)

// IdempotencyStore persists idempotency records
type IdempotencyStore interface {
	ReserveIdempotency(ctx context.Context, key string, now time.Time, staleAfter time.Duration) (*store.Reservation, error)
	CompleteIdempotency(ctx context.Context, key string, payload json.RawMessage, orderID string) error
	FailIdempotency(ctx context.Context, key, reason string) error
	GetIdempotency(ctx context.Context, key string) (*models.IdempotencyRecord, error)
	SweepStaleIdempotency(ctx context.Context, cutoff time.Time) (int64, error)
}

// OrderStore is the persistence the engine needs. Implemented by
// store.Store and store.MemoryStore.
type OrderStore interface {
	IdempotencyStore
	store.TabQueries

	CreateOrder(ctx context.Context, order *models.Order, completion *models.IdempotencyCompletion) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ApplyTransition(ctx context.Context, patch *models.StatusPatch) error
	NextSequence(ctx context.Context, businessID, name string) (int64, error)
	ApplyPaymentResult(ctx context.Context, orderID, paymentStatus, paymentRef string, event models.ProcessedEvent) (*models.Order, bool, error)
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
}

// CatalogOracle returns the read-only business snapshot
type CatalogOracle interface {
	Business(ctx context.Context, id string) (*models.Business, error)
}

// PaymentGateway starts an online payment and returns the gateway reference
type PaymentGateway interface {
	Initiate(ctx context.Context, order *models.Order) (string, error)
}

// DomainEventSink receives the durable domain events of the engine
type DomainEventSink interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error
	PublishOrderPayment(ctx context.Context, event *models.OrderPaymentEvent) error
}

// PaymentEventSink receives gateway results
type PaymentEventSink interface {
	PublishPaymentSuccess(ctx context.Context, event *models.PaymentSuccessEvent) error
	PublishPaymentFailed(ctx context.Context, event *models.PaymentFailedEvent) error
}

// Publisher fans events out to realtime channels
type Publisher interface {
	Publish(ctx context.Context, eventType string, channels []string, payload any) int
}

// TrackingStore keeps the live tracking snapshot of an order under its
// tracking token
type TrackingStore interface {
	SetTrackingSnapshot(ctx context.Context, token string, snap models.TrackingSnapshot, ttl time.Duration) error
	GetTrackingSnapshot(ctx context.Context, token string) (*models.TrackingSnapshot, error)
}
