package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/errs"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/pricing"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/util"
)

// errRecentlyFailed marks a conflict on a key whose last attempt failed inside
// the staleness window. Waiting does not help until the window ends.
var errRecentlyFailed = errors.New("previous attempt failed")

// Reservation is the coordinator's answer to a reserve call. A Duplicate
// reservation carries the stored response of the completed attempt.
type Reservation struct {
	Duplicate bool
	Payload   json.RawMessage
	OrderID   string
}

// IdempotencyCoordinator guarantees at most one completed order per key
type IdempotencyCoordinator struct {
	store      IdempotencyStore
	staleAfter time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

func NewIdempotencyCoordinator(store IdempotencyStore, staleAfter time.Duration) *IdempotencyCoordinator {
	return &IdempotencyCoordinator{
		store:      store,
		staleAfter: staleAfter,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     util.GetLogger(),
	}
}

// Reserve claims key. A completed key is replayed. A key another attempt is
// still working on, or one that failed inside the window, is a Conflict.
func (c *IdempotencyCoordinator) Reserve(ctx context.Context, key string) (*Reservation, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errs.Validation(errs.CodeInvalidInput, "idempotency key is empty")
	}

	r, err := c.store.ReserveIdempotency(ctx, key, c.now(), c.staleAfter)
	if err != nil {
		return nil, errs.Internal(fmt.Errorf("failed to reserve idempotency key: %w", err))
	}
	if r.Reserved {
		return &Reservation{}, nil
	}

	if r.Record.State == models.IdempotencyCompleted {
		return &Reservation{Duplicate: true, Payload: r.Record.CompletedPayload, OrderID: r.Record.OrderID}, nil
	}

	util.IdempotencyConflictsTotal.Inc()
	if r.Record.State == models.IdempotencyFailed {
		return nil, &errs.Error{
			Kind:    errs.ErrConflict,
			Code:    errs.CodeAlreadyProcessing,
			Message: fmt.Sprintf("request %s failed recently, retry later", key),
			Cause:   errRecentlyFailed,
		}
	}
	return nil, errs.Conflict(errs.CodeAlreadyProcessing, "request %s is already being processed", key)
}

// Complete marks key completed with the response payload
func (c *IdempotencyCoordinator) Complete(ctx context.Context, key string, payload json.RawMessage, orderID string) error {
	if err := c.store.CompleteIdempotency(ctx, key, payload, orderID); err != nil {
		return errs.Internal(err)
	}
	return nil
}

// Fail records the failed attempt. The key stays blocked until the
// staleness window elapses. Failures to record the failure are logged.
func (c *IdempotencyCoordinator) Fail(ctx context.Context, key, reason string) {
	if err := c.store.FailIdempotency(context.WithoutCancel(ctx), key, reason); err != nil {
		c.logger.Warn("Failed to release idempotency key",
			zap.String("idempotency_key", key),
			zap.Error(err))
	}
}

// Fingerprint derives a key for callers that cannot generate their own. Two
// submissions of the same cart by the same customer inside one bucket share
// the key.
func Fingerprint(businessID, customerID string, lines []pricing.Line, amount decimal.Decimal, now time.Time, bucket time.Duration) string {
	canon := make([]string, 0, len(lines))
	for _, l := range lines {
		mods := append([]string(nil), l.ModifierIDs...)
		sort.Strings(mods)
		canon = append(canon, fmt.Sprintf("%s*%d[%s]", l.ItemID, l.Quantity, strings.Join(mods, ",")))
	}
	sort.Strings(canon)

	if bucket <= 0 {
		bucket = 2 * time.Minute
	}
	slot := now.UTC().UnixNano() / int64(bucket)

	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s|%d", businessID, customerID, strings.Join(canon, ";"), amount.StringFixed(2), slot)
	return "fp_" + hex.EncodeToString(h.Sum(nil))
}
