package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/errs"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/store"
)

func TestIdempotencyCoordinator(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	c := NewIdempotencyCoordinator(mem, 30*time.Second)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.Reserve(ctx, "  ")
	assert.ErrorIs(t, err, errs.ErrValidation)

	r, err := c.Reserve(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, r.Duplicate)

	_, err = c.Reserve(ctx, "k1")
	assert.Equal(t, errs.CodeAlreadyProcessing, errs.CodeOf(err))

	// an abandoned attempt is taken over once stale
	now = now.Add(31 * time.Second)
	_, err = c.Reserve(ctx, "k1")
	require.NoError(t, err)

	require.NoError(t, c.Complete(ctx, "k1", json.RawMessage(`{"order_id":"ord_1"}`), "ord_1"))
	r, err = c.Reserve(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, r.Duplicate)
	assert.Equal(t, "ord_1", r.OrderID)
	assert.JSONEq(t, `{"order_id":"ord_1"}`, string(r.Payload))
}

func TestIdempotencyFailHoldsKeyUntilStale(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	c := NewIdempotencyCoordinator(mem, 30*time.Second)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	_, err := c.Reserve(ctx, "k1")
	require.NoError(t, err)
	c.Fail(ctx, "k1", "subtotal_mismatch")

	rec, err := mem.GetIdempotency(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, models.IdempotencyFailed, rec.State)

	now = now.Add(10 * time.Second)
	_, err = c.Reserve(ctx, "k1")
	assert.ErrorIs(t, err, errs.ErrConflict)
	assert.Equal(t, errs.CodeAlreadyProcessing, errs.CodeOf(err))

	now = now.Add(21 * time.Second)
	r, err := c.Reserve(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, r.Duplicate)

	rec, err = mem.GetIdempotency(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, models.IdempotencyProcessing, rec.State)
	assert.Empty(t, rec.FailureReason)
}
