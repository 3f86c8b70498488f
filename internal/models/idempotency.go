package models

import (
	"encoding/json"
	"time"
)

// IdempotencyState is the lifecycle state of an idempotency record
type IdempotencyState string

const (
	IdempotencyProcessing IdempotencyState = "processing"
	IdempotencyCompleted  IdempotencyState = "completed"
	IdempotencyFailed     IdempotencyState = "failed"
)

// IdempotencyRecord guards order creation for one caller-supplied key
type IdempotencyRecord struct {
	Key              string           `db:"key" json:"key"`
	State            IdempotencyState `db:"state" json:"state"`
	StartedAt        time.Time        `db:"started_at" json:"started_at"`
	CompletedPayload json.RawMessage  `db:"completed_payload" json:"completed_payload,omitempty"`
	OrderID          string           `db:"order_id" json:"order_id,omitempty"`
	FailureReason    string           `db:"failure_reason" json:"failure_reason,omitempty"`
	UpdatedAt        time.Time        `db:"updated_at" json:"updated_at"`
}

// BlocksReservation reports whether the record prevents a new reservation at
// now. A failed attempt holds its key until the window measured from its
// start has elapsed, like a processing one.
func (r *IdempotencyRecord) BlocksReservation(now time.Time, staleAfter time.Duration) bool {
	switch r.State {
	case IdempotencyProcessing, IdempotencyFailed:
		return now.Sub(r.StartedAt) < staleAfter
	}
	return false
}

// IdempotencyCompletion is written together with the order it produced
type IdempotencyCompletion struct {
	Key     string
	Payload json.RawMessage
}
