package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/errs"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/util"
)

// ErrIndexUnavailable is returned by MemoryStore.OrdersByTab while the tab
// index is switched off
var ErrIndexUnavailable = errors.New("tab index unavailable")

// MemoryStore is a process-local store with the same semantics as Store.
// Every operation runs under one mutex, which gives the same atomicity the
// Postgres transactions give.
type MemoryStore struct {
	mu          sync.Mutex
	orders      map[string]*models.Order
	businesses  map[string]*models.Business
	sequences   map[string]int64
	idempotency map[string]*models.IdempotencyRecord
	processed   map[string]models.ProcessedEvent

	indexOff bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:      make(map[string]*models.Order),
		businesses:  make(map[string]*models.Business),
		sequences:   make(map[string]int64),
		idempotency: make(map[string]*models.IdempotencyRecord),
		processed:   make(map[string]models.ProcessedEvent),
	}
}

// SetTabIndexAvailable toggles the indexed tab query
func (m *MemoryStore) SetTabIndexAvailable(ok bool) {
	m.mu.Lock()
	m.indexOff = !ok
	m.mu.Unlock()
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// SaveBusiness replaces the catalog snapshot of a business
func (m *MemoryStore) SaveBusiness(_ context.Context, biz *models.Business) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.businesses[biz.ID] = cloneBusiness(biz)
	return nil
}

// Business loads the catalog snapshot of a business
func (m *MemoryStore) Business(_ context.Context, id string) (*models.Business, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	biz, ok := m.businesses[id]
	if !ok {
		return nil, errs.NotFound(errs.CodeBusinessNotFound, id)
	}
	return cloneBusiness(biz), nil
}

func (m *MemoryStore) CreateOrder(_ context.Context, order *models.Order, completion *models.IdempotencyCompletion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[order.ID]; ok {
		return errs.Conflict(errs.CodeInvalidInput, "order %s already exists", order.ID)
	}
	for _, o := range m.orders {
		if o.TrackingToken == order.TrackingToken {
			return errs.Conflict(errs.CodeInvalidInput, "tracking token already in use")
		}
	}

	if completion != nil {
		rec, ok := m.idempotency[completion.Key]
		if !ok || rec.State != models.IdempotencyProcessing {
			return errs.Conflict(errs.CodeAlreadyProcessing, "idempotency key %s is no longer reserved", completion.Key)
		}
		rec.State = models.IdempotencyCompleted
		rec.CompletedPayload = append(json.RawMessage(nil), completion.Payload...)
		rec.OrderID = order.ID
		rec.FailureReason = ""
		rec.UpdatedAt = order.CreatedAt
	}

	m.orders[order.ID] = cloneOrder(order)
	return nil
}

func (m *MemoryStore) GetOrder(_ context.Context, id string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, errs.NotFound(errs.CodeOrderNotFound, id)
	}
	return cloneOrder(o), nil
}

func (m *MemoryStore) ApplyTransition(_ context.Context, patch *models.StatusPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[patch.OrderID]
	if !ok {
		return errs.NotFound(errs.CodeOrderNotFound, patch.OrderID)
	}
	if o.Status != patch.From {
		return errs.Conflict(errs.CodeStatusChanged, "order %s is no longer %s", patch.OrderID, patch.From)
	}
	patch.ApplyTo(o)
	return nil
}

func (m *MemoryStore) NextSequence(_ context.Context, businessID, name string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := businessID + "/" + name
	m.sequences[k]++
	return m.sequences[k], nil
}

func (m *MemoryStore) OrdersByTab(_ context.Context, businessID, tabID string) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexOff {
		return nil, ErrIndexUnavailable
	}
	return m.selectLocked(func(o *models.Order) bool {
		return o.BusinessID == businessID && o.TabID == tabID
	}), nil
}

func (m *MemoryStore) RecentOrdersByBusiness(_ context.Context, businessID string, since time.Time) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectLocked(func(o *models.Order) bool {
		return o.BusinessID == businessID && !o.CreatedAt.Before(since)
	}), nil
}

func (m *MemoryStore) ApplyPaymentResult(_ context.Context, orderID, paymentStatus, paymentRef string, event models.ProcessedEvent) (*models.Order, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, done := m.processed[event.EventID]; done {
		return nil, false, nil
	}
	o, ok := m.orders[orderID]
	if !ok {
		return nil, false, errs.NotFound(errs.CodeOrderNotFound, orderID)
	}

	m.processed[event.EventID] = event
	o.PaymentStatus = paymentStatus
	if paymentRef != "" {
		o.PaymentRef = paymentRef
	}
	o.UpdatedAt = event.ProcessedAt
	return cloneOrder(o), true, nil
}

func (m *MemoryStore) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.processed[eventID]
	return ok, nil
}

func (m *MemoryStore) ReserveIdempotency(_ context.Context, key string, now time.Time, staleAfter time.Duration) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.idempotency[key]; ok {
		if rec.State == models.IdempotencyCompleted || rec.BlocksReservation(now, staleAfter) {
			return &Reservation{Record: cloneRecord(rec)}, nil
		}
	}

	m.idempotency[key] = &models.IdempotencyRecord{
		Key:       key,
		State:     models.IdempotencyProcessing,
		StartedAt: now,
		UpdatedAt: now,
	}
	return &Reservation{Reserved: true}, nil
}

func (m *MemoryStore) CompleteIdempotency(_ context.Context, key string, payload json.RawMessage, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.idempotency[key]
	if !ok {
		return nil
	}
	rec.State = models.IdempotencyCompleted
	rec.CompletedPayload = append(json.RawMessage(nil), payload...)
	rec.OrderID = orderID
	rec.FailureReason = ""
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) FailIdempotency(_ context.Context, key, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.idempotency[key]
	if !ok || rec.State != models.IdempotencyProcessing {
		return nil
	}
	rec.State = models.IdempotencyFailed
	rec.FailureReason = util.Truncate(reason, MaxFailureReason)
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) GetIdempotency(_ context.Context, key string) (*models.IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.idempotency[key]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

func (m *MemoryStore) SweepStaleIdempotency(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, rec := range m.idempotency {
		if rec.State == models.IdempotencyProcessing && rec.StartedAt.Before(cutoff) {
			rec.State = models.IdempotencyFailed
			rec.FailureReason = "abandoned"
			rec.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) selectLocked(match func(*models.Order) bool) []models.Order {
	out := make([]models.Order, 0)
	for _, o := range m.orders {
		if match(o) {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = make([]models.OrderItem, len(o.Items))
	for i, it := range o.Items {
		it.Modifiers = append([]models.Modifier(nil), it.Modifiers...)
		c.Items[i] = it
	}
	c.StatusHistory = append([]models.HistoryEntry(nil), o.StatusHistory...)
	if o.Address != nil {
		a := *o.Address
		c.Address = &a
	}
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		c.DeliveredAt = &t
	}
	return &c
}

func cloneBusiness(b *models.Business) *models.Business {
	c := *b
	c.Menu = make(map[string]models.MenuItem, len(b.Menu))
	for id, item := range b.Menu {
		if item.Modifiers != nil {
			mods := make(map[string]decimal.Decimal, len(item.Modifiers))
			for k, v := range item.Modifiers {
				mods[k] = v
			}
			item.Modifiers = mods
		}
		c.Menu[id] = item
	}
	return &c
}

func cloneRecord(r *models.IdempotencyRecord) *models.IdempotencyRecord {
	c := *r
	c.CompletedPayload = append(json.RawMessage(nil), r.CompletedPayload...)
	return &c
}
