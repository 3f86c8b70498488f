package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/errs"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
)

const orderColumns = `id, business_id, customer_id, guest_id, items, subtotal, tax, delivery_charge, fees,
	discount, total, status, payment_status, payment_method, payment_ref, fulfillment_mode, tracking_token,
	dine_in_token, tab_id, rider_id, rejection_reason, delivered_at, address, notes, created_at, updated_at`

type orderRow struct {
	ID              string          `db:"id"`
	BusinessID      string          `db:"business_id"`
	CustomerID      string          `db:"customer_id"`
	GuestID         string          `db:"guest_id"`
	Items           []byte          `db:"items"`
	Subtotal        decimal.Decimal `db:"subtotal"`
	Tax             decimal.Decimal `db:"tax"`
	DeliveryCharge  decimal.Decimal `db:"delivery_charge"`
	Fees            decimal.Decimal `db:"fees"`
	Discount        decimal.Decimal `db:"discount"`
	Total           decimal.Decimal `db:"total"`
	Status          string          `db:"status"`
	PaymentStatus   string          `db:"payment_status"`
	PaymentMethod   string          `db:"payment_method"`
	PaymentRef      string          `db:"payment_ref"`
	FulfillmentMode string          `db:"fulfillment_mode"`
	TrackingToken   string          `db:"tracking_token"`
	DineInToken     string          `db:"dine_in_token"`
	TabID           string          `db:"tab_id"`
	RiderID         string          `db:"rider_id"`
	RejectionReason string          `db:"rejection_reason"`
	DeliveredAt     sql.NullTime    `db:"delivered_at"`
	Address         []byte          `db:"address"`
	Notes           string          `db:"notes"`
	CreatedAt       time.Time       `db:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at"`
}

func (r *orderRow) toModel() (*models.Order, error) {
	o := &models.Order{
		ID:         r.ID,
		BusinessID: r.BusinessID,
		CustomerID: r.CustomerID,
		GuestID:    r.GuestID,
		Money: models.Money{
			Subtotal:       r.Subtotal,
			Tax:            r.Tax,
			DeliveryCharge: r.DeliveryCharge,
			Fees:           r.Fees,
			Discount:       r.Discount,
			Total:          r.Total,
		},
		Status:          models.Status(r.Status),
		PaymentStatus:   r.PaymentStatus,
		PaymentMethod:   r.PaymentMethod,
		PaymentRef:      r.PaymentRef,
		FulfillmentMode: models.FulfillmentMode(r.FulfillmentMode),
		TrackingToken:   r.TrackingToken,
		DineInToken:     r.DineInToken,
		TabID:           r.TabID,
		RiderID:         r.RiderID,
		RejectionReason: r.RejectionReason,
		Notes:           r.Notes,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if err := json.Unmarshal(r.Items, &o.Items); err != nil {
		return nil, fmt.Errorf("failed to decode items of order %s: %w", r.ID, err)
	}
	if r.DeliveredAt.Valid {
		t := r.DeliveredAt.Time
		o.DeliveredAt = &t
	}
	if len(r.Address) > 0 {
		o.Address = &models.Address{}
		if err := json.Unmarshal(r.Address, o.Address); err != nil {
			return nil, fmt.Errorf("failed to decode address of order %s: %w", r.ID, err)
		}
	}
	return o, nil
}

// CreateOrder inserts the order with its initial history. When completion is
// set, the idempotency record is completed in the same transaction.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order, completion *models.IdempotencyCompletion) error {
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to encode items: %w", err)
	}
	var address interface{}
	if order.Address != nil {
		b, err := json.Marshal(order.Address)
		if err != nil {
			return fmt.Errorf("failed to encode address: %w", err)
		}
		address = string(b)
	}
	var deliveredAt interface{}
	if order.DeliveredAt != nil {
		deliveredAt = *order.DeliveredAt
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25, $26)`,
		order.ID, order.BusinessID, order.CustomerID, order.GuestID, string(items),
		order.Money.Subtotal, order.Money.Tax, order.Money.DeliveryCharge, order.Money.Fees,
		order.Money.Discount, order.Money.Total, string(order.Status), order.PaymentStatus,
		order.PaymentMethod, order.PaymentRef, string(order.FulfillmentMode), order.TrackingToken,
		order.DineInToken, order.TabID, order.RiderID, order.RejectionReason, deliveredAt, address,
		order.Notes, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order %s: %w", order.ID, err)
	}

	for _, h := range order.StatusHistory {
		if err := insertHistory(ctx, tx, order.ID, h); err != nil {
			return err
		}
	}

	if completion != nil {
		res, err := tx.ExecContext(ctx, `
			UPDATE idempotency_records
			SET state = 'completed', completed_payload = $2, order_id = $3, failure_reason = '', updated_at = $4
			WHERE key = $1 AND state = 'processing'`,
			completion.Key, string(completion.Payload), order.ID, order.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to complete idempotency record: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errs.Conflict(errs.CodeAlreadyProcessing, "idempotency key %s is no longer reserved", completion.Key)
		}
	}

	return tx.Commit()
}

func insertHistory(ctx context.Context, tx *sqlx.Tx, orderID string, h models.HistoryEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO order_status_history (order_id, status, actor_id, role, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		orderID, string(h.Status), h.ActorID, h.Role, h.Note, h.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append history of order %s: %w", orderID, err)
	}
	return nil
}

// GetOrder retrieves an order by ID with its full history
func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var row orderRow
	err := s.db.GetContext(ctx, &row, "SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound(errs.CodeOrderNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order %s: %w", id, err)
	}

	orders, err := s.withHistory(ctx, []orderRow{row})
	if err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// ApplyTransition commits patch if the order still has status patch.From
func (s *Store) ApplyTransition(ctx context.Context, patch *models.StatusPatch) error {
	var deliveredAt interface{}
	if patch.DeliveredAt != nil {
		deliveredAt = *patch.DeliveredAt
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE orders SET
			status = $1,
			rider_id = COALESCE(NULLIF($2, ''), rider_id),
			rejection_reason = COALESCE(NULLIF($3, ''), rejection_reason),
			delivered_at = COALESCE($4, delivered_at),
			updated_at = $5
		WHERE id = $6 AND status = $7`,
		string(patch.To), patch.RiderID, patch.RejectionReason, deliveredAt, patch.UpdatedAt,
		patch.OrderID, string(patch.From))
	if err != nil {
		return fmt.Errorf("failed to update order %s: %w", patch.OrderID, err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		var exists bool
		if err := tx.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)", patch.OrderID); err != nil {
			return err
		}
		if !exists {
			return errs.NotFound(errs.CodeOrderNotFound, patch.OrderID)
		}
		return errs.Conflict(errs.CodeStatusChanged, "order %s is no longer %s", patch.OrderID, patch.From)
	}

	if err := insertHistory(ctx, tx, patch.OrderID, patch.Entry); err != nil {
		return err
	}
	return tx.Commit()
}

// NextSequence atomically increments and returns a per-business counter
func (s *Store) NextSequence(ctx context.Context, businessID, name string) (int64, error) {
	var value int64
	err := s.db.GetContext(ctx, &value, `
		INSERT INTO business_sequences (business_id, name, value) VALUES ($1, $2, 1)
		ON CONFLICT (business_id, name) DO UPDATE SET value = business_sequences.value + 1
		RETURNING value`, businessID, name)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s/%s: %w", businessID, name, err)
	}
	return value, nil
}

// OrdersByTab returns every order of a tab, oldest first
func (s *Store) OrdersByTab(ctx context.Context, businessID, tabID string) ([]models.Order, error) {
	var rows []orderRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT "+orderColumns+" FROM orders WHERE business_id = $1 AND tab_id = $2 ORDER BY created_at",
		businessID, tabID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tab %s: %w", tabID, err)
	}
	return s.withHistory(ctx, rows)
}

// RecentOrdersByBusiness returns the orders of a business created at or after since, oldest first
func (s *Store) RecentOrdersByBusiness(ctx context.Context, businessID string, since time.Time) ([]models.Order, error) {
	var rows []orderRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT "+orderColumns+" FROM orders WHERE business_id = $1 AND created_at >= $2 ORDER BY created_at",
		businessID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent orders of %s: %w", businessID, err)
	}
	return s.withHistory(ctx, rows)
}

// ApplyPaymentResult records a gateway result exactly once per event. It
// returns applied=false when the event was already processed.
func (s *Store) ApplyPaymentResult(ctx context.Context, orderID, paymentStatus, paymentRef string, event models.ProcessedEvent) (*models.Order, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type, processed_at) VALUES ($1, $2, $3) ON CONFLICT (event_id) DO NOTHING",
		event.EventID, event.EventType, event.ProcessedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to mark event processed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, false, nil
	}

	res, err = tx.ExecContext(ctx, `
		UPDATE orders SET payment_status = $1, payment_ref = COALESCE(NULLIF($2, ''), payment_ref), updated_at = $3
		WHERE id = $4`,
		paymentStatus, paymentRef, event.ProcessedAt, orderID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to update payment of order %s: %w", orderID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, false, errs.NotFound(errs.CodeOrderNotFound, orderID)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, true, err
	}
	return order, true, nil
}

// IsEventProcessed checks whether an event was already consumed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

type historyRow struct {
	OrderID string `db:"order_id"`
	models.HistoryEntry
}

func (s *Store) withHistory(ctx context.Context, rows []orderRow) ([]models.Order, error) {
	orders := make([]models.Order, 0, len(rows))
	if len(rows) == 0 {
		return orders, nil
	}

	ids := make([]string, 0, len(rows))
	for i := range rows {
		ids = append(ids, rows[i].ID)
	}

	query, args, err := sqlx.In(
		`SELECT order_id, status, actor_id, role, note, created_at
		FROM order_status_history WHERE order_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var history []historyRow
	if err := s.db.SelectContext(ctx, &history, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load status history: %w", err)
	}

	byOrder := make(map[string][]models.HistoryEntry, len(rows))
	for _, h := range history {
		byOrder[h.OrderID] = append(byOrder[h.OrderID], h.HistoryEntry)
	}

	for i := range rows {
		o, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		o.StatusHistory = byOrder[o.ID]
		orders = append(orders, *o)
	}
	return orders, nil
}
