package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/cache"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/identity"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/pricing"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/store"
)

var (
	customer = models.Actor{ActorID: "cust-1", Role: models.RoleCustomer}
	staff    = models.Actor{
		ActorID:     "staff-1",
		BusinessID:  "biz-1",
		Role:        models.RoleStaff,
		Permissions: []string{models.PermUpdateStatus, models.PermAssignRider, models.PermViewOrders},
	}
	nearby  = &models.Address{Text: "2nd Cross", Lat: 12.98, Lng: 77.60}
	faraway = &models.Address{Text: "Out of town", Lat: 13.5, Lng: 77.59}
)

type published struct {
	eventType string
	channels  []string
}

type recordingBus struct {
	mu     sync.Mutex
	events []published
}

func (b *recordingBus) Publish(_ context.Context, eventType string, channels []string, _ any) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, published{eventType: eventType, channels: channels})
	return 1
}

func (b *recordingBus) ofType(eventType string) []published {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []published
	for _, e := range b.events {
		if e.eventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeTracking struct {
	mu    sync.Mutex
	snaps map[string]models.TrackingSnapshot
	fail  bool
}

func (f *fakeTracking) SetTrackingSnapshot(_ context.Context, token string, snap models.TrackingSnapshot, _ time.Duration) error {
	if f.fail {
		return errors.New("redis down")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.snaps == nil {
		f.snaps = make(map[string]models.TrackingSnapshot)
	}
	f.snaps[token] = snap
	return nil
}

func (f *fakeTracking) GetTrackingSnapshot(_ context.Context, token string) (*models.TrackingSnapshot, error) {
	if f.fail {
		return nil, errors.New("redis down")
	}
	snap, ok := f.get(token)
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (f *fakeTracking) get(token string) (models.TrackingSnapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snaps[token]
	return s, ok
}

type recordingSink struct {
	mu       sync.Mutex
	created  []*models.OrderCreatedEvent
	changed  []*models.OrderStatusChangedEvent
	payments []*models.OrderPaymentEvent
	success  []*models.PaymentSuccessEvent
	failed   []*models.PaymentFailedEvent
}

func (s *recordingSink) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, e)
	return nil
}

func (s *recordingSink) PublishOrderStatusChanged(_ context.Context, e *models.OrderStatusChangedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changed = append(s.changed, e)
	return nil
}

func (s *recordingSink) PublishOrderPayment(_ context.Context, e *models.OrderPaymentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments = append(s.payments, e)
	return nil
}

func (s *recordingSink) PublishPaymentSuccess(_ context.Context, e *models.PaymentSuccessEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.success = append(s.success, e)
	return nil
}

func (s *recordingSink) PublishPaymentFailed(_ context.Context, e *models.PaymentFailedEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, e)
	return nil
}

type engine struct {
	svc      *OrderService
	store    *store.MemoryStore
	bus      *recordingBus
	tracking *fakeTracking
	sink     *recordingSink
}

func newEngine(t *testing.T, opts ...func(*Dependencies, *Config)) *engine {
	t.Helper()

	mem := store.NewMemoryStore()
	require.NoError(t, mem.SaveBusiness(context.Background(), testBusiness()))

	local := cache.NewLocal(5 * time.Second)
	e := &engine{
		store:    mem,
		bus:      &recordingBus{},
		tracking: &fakeTracking{},
		sink:     &recordingSink{},
	}

	deps := Dependencies{
		Store:    mem,
		Catalog:  mem,
		Bus:      e.bus,
		Cache:    cache.New(local, nil),
		Versions: cache.NewVersioner(cache.NewMemoryCounter(), local),
		Tracking: e.tracking,
		Payments: NewMockGateway(),
		Events:   e.sink,
	}
	cfg := Config{
		IdempotencyStaleAfter: 30 * time.Second,
		IdempotencyWait:       2 * time.Second,
		Tolerances:            pricing.Tolerances{Subtotal: decimal.NewFromInt(1), Total: decimal.NewFromInt(5)},
	}
	for _, opt := range opts {
		opt(&deps, &cfg)
	}

	e.svc = NewOrderService(deps, cfg)
	return e
}

func testBusiness() *models.Business {
	return &models.Business{
		ID:             "biz-1",
		Name:           "Corner Cafe",
		IsOpen:         true,
		Lat:            12.9716,
		Lng:            77.5946,
		TaxRatePercent: decimal.Zero,
		ServiceFee:     decimal.Zero,
		Delivery: models.DeliveryConfig{
			Enabled:      true,
			MaxRadiusKm:  10,
			BaseRadiusKm: 3,
			BaseFee:      decimal.NewFromInt(20),
			PerKmFee:     decimal.NewFromInt(10),
		},
		Menu: map[string]models.MenuItem{
			"x": {ID: "x", Name: "Masala Dosa", Price: decimal.NewFromInt(100), Available: true},
			"y": {ID: "y", Name: "Filter Coffee", Price: decimal.NewFromInt(50), Available: true,
				Modifiers: map[string]decimal.Decimal{"extra-strong": decimal.NewFromInt(10)}},
			"z": {ID: "z", Name: "Seasonal Special", Price: decimal.NewFromInt(200), Available: false},
		},
	}
}

func deliveryRequest(key string, claimed int64) *CreateOrderRequest {
	return &CreateOrderRequest{
		IdempotencyKey:  key,
		BusinessID:      "biz-1",
		Items:           []pricing.Line{{ItemID: "x", Quantity: 2}},
		FulfillmentMode: models.ModeDelivery,
		Subtotal:        decimal.NewFromInt(claimed),
		Address:         nearby,
		Actor:           customer,
	}
}

func dineInRequest(key, tabID string) *CreateOrderRequest {
	return &CreateOrderRequest{
		IdempotencyKey:  key,
		BusinessID:      "biz-1",
		Items:           []pricing.Line{{ItemID: "y", Quantity: 1, ModifierIDs: []string{"extra-strong"}}},
		FulfillmentMode: models.ModeDineIn,
		Subtotal:        decimal.NewFromInt(60),
		TabID:           tabID,
		Customer:        identity.CustomerRef{Phone: "98450 00000"},
		Actor:           staff,
	}
}

func (e *engine) transition(t *testing.T, actor models.Actor, target models.Status, ids ...string) (*TransitionResult, error) {
	t.Helper()
	return e.svc.TransitionOrderStatus(context.Background(), &TransitionRequest{
		OrderIDs: ids,
		Status:   target,
		Actor:    actor,
	})
}

func (e *engine) order(t *testing.T, id string) *models.Order {
	t.Helper()
	o, err := e.store.GetOrder(context.Background(), id)
	require.NoError(t, err)
	return o
}
