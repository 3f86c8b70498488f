package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/bus"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/cache"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/effects"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/errs"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/identity"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/pricing"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/statemachine"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/store"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/util"
)

const (
	inflightPoll   = 50 * time.Millisecond
	maxNotesLength = 500
	maxBatchSize   = 100
)

// Config tunes the engine. Zero values fall back to the service defaults.
type Config struct {
	IdempotencyStaleAfter time.Duration
	IdempotencyWait       time.Duration
	FingerprintBucket     time.Duration
	Tolerances            pricing.Tolerances
	SharedCacheTTL        time.Duration
	TrackingTTL           time.Duration
	TabScanWindow         time.Duration
	EffectTimeout         time.Duration
}

// Dependencies are the collaborators of OrderService. Store and Catalog are
// required; the rest may be nil.
type Dependencies struct {
	Store     OrderStore
	Catalog   CatalogOracle
	Tabs      store.TabFinder
	Customers identity.CustomerResolver
	Bus       Publisher
	Cache     *cache.Cache
	Versions  *cache.Versioner
	Tracking  TrackingStore
	Payments  PaymentGateway
	Events    DomainEventSink
	Fare      pricing.FareFunc
}

// OrderService is the order lifecycle engine
type OrderService struct {
	store      OrderStore
	catalog    CatalogOracle
	tabs       store.TabFinder
	customers  identity.CustomerResolver
	bus        Publisher
	cache      *cache.Cache
	versions   *cache.Versioner
	tracking   TrackingStore
	payments   PaymentGateway
	events     DomainEventSink
	idem       *IdempotencyCoordinator
	gate       *pricing.Gate
	dispatcher *effects.Dispatcher
	cfg        Config
	now        func() time.Time
	logger     *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(deps Dependencies, cfg Config) *OrderService {
	if cfg.IdempotencyStaleAfter <= 0 {
		cfg.IdempotencyStaleAfter = 30 * time.Second
	}
	if cfg.IdempotencyWait < 0 {
		cfg.IdempotencyWait = 0
	}
	if cfg.SharedCacheTTL <= 0 {
		cfg.SharedCacheTTL = 10 * time.Minute
	}
	if cfg.TrackingTTL <= 0 {
		cfg.TrackingTTL = 24 * time.Hour
	}
	if cfg.TabScanWindow <= 0 {
		cfg.TabScanWindow = 12 * time.Hour
	}
	if cfg.EffectTimeout <= 0 {
		cfg.EffectTimeout = 5 * time.Second
	}
	if cfg.Tolerances.Subtotal.IsZero() && cfg.Tolerances.Total.IsZero() {
		cfg.Tolerances = pricing.Tolerances{Subtotal: decimal.NewFromInt(1), Total: decimal.NewFromInt(5)}
	}

	tabs := deps.Tabs
	if tabs == nil {
		tabs = store.NewTabFinder("fallback", deps.Store, cfg.TabScanWindow)
	}
	customers := deps.Customers
	if customers == nil {
		customers = identity.NewActorCustomerResolver()
	}

	return &OrderService{
		store:      deps.Store,
		catalog:    deps.Catalog,
		tabs:       tabs,
		customers:  customers,
		bus:        deps.Bus,
		cache:      deps.Cache,
		versions:   deps.Versions,
		tracking:   deps.Tracking,
		payments:   deps.Payments,
		events:     deps.Events,
		idem:       NewIdempotencyCoordinator(deps.Store, cfg.IdempotencyStaleAfter),
		gate:       pricing.NewGate(cfg.Tolerances, deps.Fare),
		dispatcher: effects.NewDispatcher(cfg.EffectTimeout),
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     util.GetLogger(),
	}
}

// Idempotency exposes the coordinator, e.g. for completing keys out of band
func (s *OrderService) Idempotency() *IdempotencyCoordinator {
	return s.idem
}

// CreateOrderRequest represents a request to create an order
type CreateOrderRequest struct {
	IdempotencyKey  string                 `json:"idempotency_key,omitempty"`
	BusinessID      string                 `json:"business_id" binding:"required"`
	Customer        identity.CustomerRef   `json:"customer"`
	Items           []pricing.Line         `json:"items" binding:"required,min=1"`
	FulfillmentMode models.FulfillmentMode `json:"fulfillment_mode" binding:"required"`
	PaymentMethod   string                 `json:"payment_method"`
	Subtotal        decimal.Decimal        `json:"subtotal"`
	GrandTotal      *decimal.Decimal       `json:"grand_total,omitempty"`
	Discount        decimal.Decimal        `json:"discount"`
	Address         *models.Address        `json:"address,omitempty"`
	TabID           string                 `json:"tab_id,omitempty"`
	Notes           string                 `json:"notes,omitempty"`

	Actor models.Actor `json:"-"`
}

// CreateOrderResponse is returned for new orders and replayed verbatim, with
// Duplicate set, for repeated requests
type CreateOrderResponse struct {
	OrderID       string          `json:"order_id"`
	BusinessID    string          `json:"business_id"`
	TrackingToken string          `json:"tracking_token"`
	Status        models.Status   `json:"status"`
	DineInToken   string          `json:"dine_in_token,omitempty"`
	TabID         string          `json:"tab_id,omitempty"`
	Total         decimal.Decimal `json:"total"`
	PaymentRef    string          `json:"payment_ref,omitempty"`
	Duplicate     bool            `json:"duplicate"`
}

func (r *CreateOrderRequest) normalize() error {
	r.BusinessID = strings.TrimSpace(r.BusinessID)
	if r.BusinessID == "" {
		return errs.Validation(errs.CodeInvalidInput, "business_id is required")
	}
	if !r.FulfillmentMode.Valid() {
		return errs.Validation(errs.CodeInvalidInput, "unknown fulfillment mode %q", r.FulfillmentMode)
	}
	switch r.PaymentMethod {
	case "":
		r.PaymentMethod = models.PaymentMethodCash
	case models.PaymentMethodCash, models.PaymentMethodOnline:
	default:
		return errs.Validation(errs.CodeInvalidInput, "unknown payment method %q", r.PaymentMethod)
	}
	if len(r.Items) == 0 {
		return errs.Validation(errs.CodeInvalidInput, "order has no items")
	}
	if r.TabID != "" && !r.FulfillmentMode.SharedSeating() {
		return errs.Validation(errs.CodeInvalidInput, "tabs are only available for dine-in and car orders")
	}
	if r.Subtotal.IsNegative() || r.Discount.IsNegative() {
		return errs.Validation(errs.CodeInvalidInput, "amounts must not be negative")
	}
	r.Notes = util.Truncate(strings.TrimSpace(r.Notes), maxNotesLength)
	return nil
}

// CreateOrder validates, prices and persists a new order exactly once per
// idempotency key
func (s *OrderService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.CreateOrder",
		attribute.String("business_id", req.BusinessID),
		attribute.String("fulfillment_mode", string(req.FulfillmentMode)))
	defer span.End()

	start := time.Now()
	defer func() {
		util.OrderCreateLatency.Observe(time.Since(start).Seconds())
	}()

	if err := req.normalize(); err != nil {
		return nil, s.createFailed(err)
	}

	customer, err := s.customers.ResolveCustomer(ctx, req.BusinessID, req.Actor, req.Customer)
	if err != nil {
		return nil, s.createFailed(classify(err))
	}

	biz, err := s.business(ctx, req.BusinessID)
	if err != nil {
		return nil, s.createFailed(err)
	}
	if !biz.IsOpen {
		return nil, s.createFailed(errs.Conflict(errs.CodeBusinessClosed, "business %s is not accepting orders", biz.ID))
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key == "" {
		amount := req.Subtotal
		if req.GrandTotal != nil {
			amount = *req.GrandTotal
		}
		key = Fingerprint(biz.ID, customer.ID(), req.Items, amount, s.now(), s.cfg.FingerprintBucket)
	}

	res, err := s.reserveWaiting(ctx, key)
	if err != nil {
		return nil, s.createFailed(err)
	}
	if res.Duplicate {
		return s.replay(key, res)
	}

	resp, err := s.createReserved(ctx, key, req, biz, customer)
	if err != nil {
		s.idem.Fail(ctx, key, err.Error())
		return nil, s.createFailed(err)
	}
	return resp, nil
}

// reserveWaiting retries an in-flight reservation until the first attempt
// finishes or the wait runs out
func (s *OrderService) reserveWaiting(ctx context.Context, key string) (*Reservation, error) {
	deadline := time.Now().Add(s.cfg.IdempotencyWait)
	for {
		res, err := s.idem.Reserve(ctx, key)
		if err == nil || errs.CodeOf(err) != errs.CodeAlreadyProcessing || errors.Is(err, errRecentlyFailed) || !time.Now().Before(deadline) {
			return res, err
		}

		select {
		case <-ctx.Done():
			return nil, errs.Internal(ctx.Err())
		case <-time.After(inflightPoll):
		}
	}
}

func (s *OrderService) replay(key string, res *Reservation) (*CreateOrderResponse, error) {
	var resp CreateOrderResponse
	if err := json.Unmarshal(res.Payload, &resp); err != nil {
		return nil, errs.Internal(fmt.Errorf("stored response for %s is unreadable: %w", key, err))
	}
	resp.Duplicate = true

	util.OrdersDuplicateTotal.Inc()
	s.logger.Info("Duplicate order request detected",
		zap.String("idempotency_key", key),
		zap.String("order_id", resp.OrderID))
	return &resp, nil
}

func (s *OrderService) createReserved(ctx context.Context, key string, req *CreateOrderRequest, biz *models.Business, customer identity.Customer) (*CreateOrderResponse, error) {
	quote, err := s.gate.Quote(biz, pricing.Input{
		Mode:            req.FulfillmentMode,
		Lines:           req.Items,
		ClaimedSubtotal: req.Subtotal,
		ClaimedTotal:    req.GrandTotal,
		Discount:        req.Discount,
		Address:         req.Address,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	actorID, role := req.Actor.ActorID, req.Actor.Role
	if actorID == "" {
		actorID, role = customer.ID(), models.RoleCustomer
	}

	order := &models.Order{
		ID:              newOrderID(),
		BusinessID:      biz.ID,
		CustomerID:      customer.CustomerID,
		GuestID:         customer.GuestID,
		Items:           quote.Items,
		Money:           quote.Money,
		Status:          models.StatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		PaymentMethod:   req.PaymentMethod,
		FulfillmentMode: req.FulfillmentMode,
		TrackingToken:   newTrackingToken(),
		Notes:           req.Notes,
		StatusHistory: []models.HistoryEntry{{
			Status:    models.StatusPending,
			Timestamp: now,
			ActorID:   actorID,
			Role:      role,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.FulfillmentMode == models.ModeDelivery {
		order.Address = req.Address
	}

	if order.PaymentMethod == models.PaymentMethodOnline {
		if s.payments == nil {
			return nil, errs.Upstream(errors.New("no payment gateway configured"))
		}
		ref, err := s.payments.Initiate(ctx, order)
		if err != nil {
			return nil, errs.Upstream(err)
		}
		order.PaymentRef = ref
	}

	if order.FulfillmentMode.SharedSeating() {
		if err := s.assignSeating(ctx, order, req.TabID); err != nil {
			return nil, err
		}
	}

	resp := &CreateOrderResponse{
		OrderID:       order.ID,
		BusinessID:    order.BusinessID,
		TrackingToken: order.TrackingToken,
		Status:        order.Status,
		DineInToken:   order.DineInToken,
		TabID:         order.TabID,
		Total:         order.Money.Total,
		PaymentRef:    order.PaymentRef,
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, errs.Internal(err)
	}

	completion := &models.IdempotencyCompletion{Key: key, Payload: payload}
	if err := s.store.CreateOrder(ctx, order, completion); err != nil {
		return nil, classify(err)
	}

	util.OrdersCreatedTotal.WithLabelValues(string(order.FulfillmentMode)).Inc()
	s.logger.Info("Order created",
		zap.String("order_id", order.ID),
		zap.String("business_id", order.BusinessID),
		zap.String("fulfillment_mode", string(order.FulfillmentMode)),
		zap.String("total", order.Money.Total.StringFixed(2)))

	s.dispatcher.Run(ctx, s.creationEffects(order))
	return resp, nil
}

// assignSeating joins an active tab or opens a new one with the next token
func (s *OrderService) assignSeating(ctx context.Context, order *models.Order, tabID string) error {
	if tabID != "" {
		orders, err := s.tabs.FindTabOrders(ctx, order.BusinessID, tabID)
		if err != nil {
			return classify(err)
		}
		if tabActive(orders) {
			for i := len(orders) - 1; i >= 0; i-- {
				if orders[i].FulfillmentMode == order.FulfillmentMode && orders[i].DineInToken != "" {
					order.TabID = tabID
					order.DineInToken = orders[i].DineInToken
					return nil
				}
			}
		}
	}

	seq, err := s.store.NextSequence(ctx, order.BusinessID, string(order.FulfillmentMode))
	if err != nil {
		return errs.Internal(err)
	}
	order.TabID = newTabID()
	order.DineInToken = SeatingToken(order.FulfillmentMode, seq)
	return nil
}

func tabActive(orders []models.Order) bool {
	for i := range orders {
		if !orders[i].IsTerminal() {
			return true
		}
	}
	return false
}

func (s *OrderService) createFailed(err error) error {
	util.OrdersFailedTotal.WithLabelValues(errs.CodeOf(err)).Inc()
	return err
}

func (s *OrderService) creationEffects(order *models.Order) []effects.Effect {
	event := &models.OrderCreatedEvent{
		BaseEvent:       newBaseEvent(models.EventTypeOrderCreated),
		OrderID:         order.ID,
		BusinessID:      order.BusinessID,
		Status:          order.Status,
		FulfillmentMode: order.FulfillmentMode,
		CustomerID:      order.CustomerID,
		Total:           order.Money.Total,
		PaymentMethod:   order.PaymentMethod,
		PaymentRef:      order.PaymentRef,
		TrackingToken:   order.TrackingToken,
		DineInToken:     order.DineInToken,
		TabID:           order.TabID,
		ItemCount:       len(order.Items),
	}

	out := []effects.Effect{
		s.trackingEffect(order),
		s.publishEffect(models.EventTypeOrderCreated, order, event),
		s.invalidateEffect(order.BusinessID),
	}
	if s.events != nil {
		out = append(out, effects.Effect{Kind: effects.KindDomainEvent, Run: func(ctx context.Context) error {
			return s.events.PublishOrderCreated(ctx, event)
		}})
	}
	return out
}

// TransitionRequest moves a batch of orders to one status
type TransitionRequest struct {
	OrderIDs []string      `json:"order_ids" binding:"required,min=1"`
	Status   models.Status `json:"status" binding:"required"`
	RiderID  string        `json:"rider_id,omitempty"`
	Note     string        `json:"note,omitempty"`
	Reason   string        `json:"reason,omitempty"`

	Actor models.Actor `json:"-"`
}

// TransitionResult reports what happened to each order of the batch
type TransitionResult struct {
	Status    models.Status `json:"status"`
	Processed int           `json:"processed"`
	Updated   []string      `json:"updated"`
	Unchanged []string      `json:"unchanged"`
}

type plannedTransition struct {
	order *models.Order
	tr    *statemachine.Transition
}

// TransitionOrderStatus validates every order of the batch before writing
// any of them. Orders already at the target count as processed.
func (s *OrderService) TransitionOrderStatus(ctx context.Context, req *TransitionRequest) (*TransitionResult, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.TransitionOrderStatus",
		attribute.String("status", string(req.Status)),
		attribute.Int("orders", len(req.OrderIDs)))
	defer span.End()

	ids := dedupe(req.OrderIDs)
	if len(ids) == 0 {
		return nil, s.transitionRejected(errs.Validation(errs.CodeInvalidInput, "no orders given"))
	}
	if len(ids) > maxBatchSize {
		return nil, s.transitionRejected(errs.Validation(errs.CodeInvalidInput, "at most %d orders per request", maxBatchSize))
	}

	now := s.now()
	plans := make([]plannedTransition, 0, len(ids))
	for _, id := range ids {
		order, err := s.store.GetOrder(ctx, id)
		if err != nil {
			return nil, s.transitionRejected(classify(err))
		}

		sreq := statemachine.Request{
			Target:  req.Status,
			Actor:   req.Actor,
			RiderID: strings.TrimSpace(req.RiderID),
			Note:    req.Note,
			Reason:  req.Reason,
			Now:     now,
		}
		if err := statemachine.Authorize(order, sreq); err != nil {
			return nil, s.transitionRejected(err)
		}
		tr, err := statemachine.Plan(order, sreq)
		if err != nil {
			return nil, s.transitionRejected(err)
		}
		plans = append(plans, plannedTransition{order: order, tr: tr})
	}

	result := &TransitionResult{Status: req.Status, Updated: []string{}, Unchanged: []string{}}
	var pending []effects.Effect
	var applyErr error

	for _, p := range plans {
		if p.tr.NoOp {
			result.Unchanged = append(result.Unchanged, p.order.ID)
			continue
		}

		patch := p.tr.Patch
		if err := s.store.ApplyTransition(ctx, &patch); err != nil {
			applyErr = s.transitionRejected(classify(err))
			break
		}
		patch.ApplyTo(p.order)
		result.Updated = append(result.Updated, p.order.ID)

		util.TransitionsTotal.WithLabelValues(modeLabel(p.order.FulfillmentMode), string(patch.To)).Inc()
		s.logger.Info("Order status changed",
			zap.String("order_id", p.order.ID),
			zap.String("from", string(patch.From)),
			zap.String("to", string(patch.To)),
			zap.String("actor_id", req.Actor.ActorID))

		pending = append(pending, s.transitionEffects(p.order, &patch, p.tr.Effects)...)
	}
	result.Processed = len(result.Updated) + len(result.Unchanged)

	// effects of committed orders run even when a later write lost a race
	s.dispatcher.Run(ctx, pending)

	if applyErr != nil {
		return result, applyErr
	}
	return result, nil
}

func (s *OrderService) transitionRejected(err error) error {
	util.TransitionsRejectedTotal.WithLabelValues(errs.CodeOf(err)).Inc()
	return err
}

func (s *OrderService) transitionEffects(order *models.Order, patch *models.StatusPatch, kinds []effects.Kind) []effects.Effect {
	event := &models.OrderStatusChangedEvent{
		BaseEvent:  newBaseEvent(models.EventTypeOrderStatusChanged),
		OrderID:    order.ID,
		BusinessID: order.BusinessID,
		From:       patch.From,
		To:         patch.To,
		RiderID:    order.RiderID,
		ActorID:    patch.Entry.ActorID,
		Role:       patch.Entry.Role,
		Note:       patch.Entry.Note,
		ChangedAt:  patch.UpdatedAt,
	}

	out := make([]effects.Effect, 0, len(kinds)+1)
	for _, kind := range kinds {
		switch kind {
		case effects.KindTrackingSnapshot:
			out = append(out, s.trackingEffect(order))
		case effects.KindPublish:
			out = append(out, s.publishEffect(models.EventTypeOrderStatusChanged, order, event))
		case effects.KindInvalidateCache:
			out = append(out, s.invalidateEffect(order.BusinessID))
		}
	}
	if s.events != nil {
		out = append(out, effects.Effect{Kind: effects.KindDomainEvent, Run: func(ctx context.Context) error {
			return s.events.PublishOrderStatusChanged(ctx, event)
		}})
	}
	return out
}

func (s *OrderService) trackingEffect(order *models.Order) effects.Effect {
	snap := models.TrackingSnapshot{
		OrderID:   order.ID,
		Status:    order.Status,
		RiderID:   order.RiderID,
		UpdatedAt: order.UpdatedAt,
	}
	token := order.TrackingToken
	return effects.Effect{Kind: effects.KindTrackingSnapshot, Run: func(ctx context.Context) error {
		if s.tracking == nil || token == "" {
			return nil
		}
		return s.tracking.SetTrackingSnapshot(ctx, token, snap, s.cfg.TrackingTTL)
	}}
}

func (s *OrderService) publishEffect(eventType string, order *models.Order, payload any) effects.Effect {
	channels := bus.OrderChannels(order)
	return effects.Effect{Kind: effects.KindPublish, Run: func(ctx context.Context) error {
		if s.bus == nil {
			return nil
		}
		s.bus.Publish(ctx, eventType, channels, payload)
		return nil
	}}
}

func (s *OrderService) invalidateEffect(businessID string) effects.Effect {
	return effects.Effect{Kind: effects.KindInvalidateCache, Run: func(ctx context.Context) error {
		if s.versions == nil {
			return nil
		}
		_, err := s.versions.Bump(ctx, cache.OrdersNamespace(businessID))
		return err
	}}
}

// InvalidateCatalog drops every cached catalog snapshot of the business
func (s *OrderService) InvalidateCatalog(ctx context.Context, businessID string) error {
	ctx, span := util.StartSpan(ctx, "OrderService.InvalidateCatalog", attribute.String("business_id", businessID))
	defer span.End()

	if strings.TrimSpace(businessID) == "" {
		return errs.Validation(errs.CodeInvalidInput, "business_id is required")
	}
	if s.versions == nil {
		return nil
	}
	if _, err := s.versions.Bump(ctx, cache.CatalogNamespace(businessID)); err != nil {
		return errs.Upstream(err)
	}
	s.logger.Info("Catalog cache invalidated", zap.String("business_id", businessID))
	return nil
}

// business loads the catalog snapshot through the cache
func (s *OrderService) business(ctx context.Context, businessID string) (*models.Business, error) {
	biz, err := cachedFetch(ctx, s, cache.CatalogNamespace(businessID), []string{"business"},
		func(ctx context.Context) (*models.Business, error) {
			return s.catalog.Business(ctx, businessID)
		})
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, err
		}
		return nil, errs.Upstream(err)
	}
	return biz, nil
}

// cachedFetch reads through the cache under the current version of ns. When
// the version cannot be read the cache is bypassed.
func cachedFetch[T any](ctx context.Context, s *OrderService, ns string, parts []string, compute func(context.Context) (T, error)) (T, error) {
	if s.cache == nil || s.versions == nil {
		return compute(ctx)
	}
	v, err := s.versions.Version(ctx, ns)
	if err != nil {
		s.logger.Warn("Bypassing cache", zap.String("namespace", ns), zap.Error(err))
		return compute(ctx)
	}
	return cache.Fetch(ctx, s.cache, cache.Key(ns, v, parts...), s.cfg.SharedCacheTTL, compute)
}

func newBaseEvent(eventType string) models.BaseEvent {
	return models.BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// classify keeps classified errors and marks everything else internal
func classify(err error) error {
	var e *errs.Error
	if errors.As(err, &e) {
		return err
	}
	return errs.Internal(err)
}

func modeLabel(mode models.FulfillmentMode) string {
	if mode == "" {
		return "generic"
	}
	return string(mode)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
