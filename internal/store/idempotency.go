package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/util"
)

// MaxFailureReason bounds the stored failure reason
const MaxFailureReason = 200

// Reservation is the outcome of reserving an idempotency key. When Reserved
// is false, Record is the record that prevented it.
type Reservation struct {
	Reserved bool
	Record   *models.IdempotencyRecord
}

type idempotencyRow struct {
	Key              string         `db:"key"`
	State            string         `db:"state"`
	StartedAt        time.Time      `db:"started_at"`
	CompletedPayload []byte         `db:"completed_payload"`
	OrderID          string         `db:"order_id"`
	FailureReason    sql.NullString `db:"failure_reason"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

func (r *idempotencyRow) toModel() *models.IdempotencyRecord {
	rec := &models.IdempotencyRecord{
		Key:           r.Key,
		State:         models.IdempotencyState(r.State),
		StartedAt:     r.StartedAt,
		OrderID:       r.OrderID,
		FailureReason: r.FailureReason.String,
		UpdatedAt:     r.UpdatedAt,
	}
	if len(r.CompletedPayload) > 0 {
		rec.CompletedPayload = json.RawMessage(r.CompletedPayload)
	}
	return rec
}

// ReserveIdempotency claims key for a new attempt unless a completed record
// or a processing record younger than staleAfter already holds it
func (s *Store) ReserveIdempotency(ctx context.Context, key string, now time.Time, staleAfter time.Duration) (*Reservation, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO idempotency_records (key, state, started_at, updated_at)
		VALUES ($1, 'processing', $2, $2)
		ON CONFLICT (key) DO NOTHING`, key, now)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return &Reservation{Reserved: true}, nil
	}

	var row idempotencyRow
	err = tx.GetContext(ctx, &row, `
		SELECT key, state, started_at, completed_payload, order_id, failure_reason, updated_at
		FROM idempotency_records WHERE key = $1 FOR UPDATE`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to lock idempotency record: %w", err)
	}

	rec := row.toModel()
	if rec.State == models.IdempotencyCompleted || rec.BlocksReservation(now, staleAfter) {
		return &Reservation{Record: rec}, nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE idempotency_records
		SET state = 'processing', started_at = $2, completed_payload = NULL, order_id = '', failure_reason = '', updated_at = $2
		WHERE key = $1`, key, now)
	if err != nil {
		return nil, fmt.Errorf("failed to re-reserve idempotency key: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &Reservation{Reserved: true}, nil
}

// CompleteIdempotency marks key completed with the replay payload
func (s *Store) CompleteIdempotency(ctx context.Context, key string, payload json.RawMessage, orderID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_records
		SET state = 'completed', completed_payload = $2, order_id = $3, failure_reason = '', updated_at = NOW()
		WHERE key = $1`, key, string(payload), orderID)
	if err != nil {
		return fmt.Errorf("failed to complete idempotency key: %w", err)
	}
	return nil
}

// FailIdempotency marks a processing key failed. It stays reserved until
// the window from started_at elapses.
func (s *Store) FailIdempotency(ctx context.Context, key, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_records
		SET state = 'failed', failure_reason = $2, updated_at = NOW()
		WHERE key = $1 AND state = 'processing'`, key, util.Truncate(reason, MaxFailureReason))
	if err != nil {
		return fmt.Errorf("failed to fail idempotency key: %w", err)
	}
	return nil
}

// GetIdempotency returns the record under key, or nil
func (s *Store) GetIdempotency(ctx context.Context, key string) (*models.IdempotencyRecord, error) {
	var row idempotencyRow
	err := s.db.GetContext(ctx, &row, `
		SELECT key, state, started_at, completed_payload, order_id, failure_reason, updated_at
		FROM idempotency_records WHERE key = $1`, key)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// SweepStaleIdempotency fails every processing record started before cutoff
func (s *Store) SweepStaleIdempotency(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE idempotency_records
		SET state = 'failed', failure_reason = 'abandoned', updated_at = NOW()
		WHERE state = 'processing' AND started_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep idempotency records: %w", err)
	}
	return res.RowsAffected()
}
