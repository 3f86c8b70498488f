package broker

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
)

func encode(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestHandleMessageRoutesByType(t *testing.T) {
	eh := NewEventHandler()
	var succeeded, failed, created []string

	eh.OnPaymentSuccess(func(_ context.Context, e *models.PaymentSuccessEvent) error {
		succeeded = append(succeeded, e.OrderID)
		return nil
	})
	eh.OnPaymentFailed(func(_ context.Context, e *models.PaymentFailedEvent) error {
		failed = append(failed, e.Reason)
		return nil
	})
	eh.OnOrderCreated(func(_ context.Context, e *models.OrderCreatedEvent) error {
		created = append(created, e.PaymentMethod)
		return nil
	})

	ctx := context.Background()
	require.NoError(t, eh.HandleMessage(ctx, encode(t, models.PaymentSuccessEvent{
		BaseEvent: models.BaseEvent{EventID: "e1", EventType: models.EventTypePaymentSuccess},
		OrderID:   "o-1",
		Amount:    decimal.NewFromInt(10),
	})))
	require.NoError(t, eh.HandleMessage(ctx, encode(t, models.PaymentFailedEvent{
		BaseEvent: models.BaseEvent{EventID: "e2", EventType: models.EventTypePaymentFailed},
		OrderID:   "o-2",
		Reason:    "declined",
	})))
	require.NoError(t, eh.HandleMessage(ctx, encode(t, models.OrderCreatedEvent{
		BaseEvent:     models.BaseEvent{EventID: "e3", EventType: models.EventTypeOrderCreated},
		OrderID:       "o-3",
		PaymentMethod: models.PaymentMethodOnline,
	})))

	assert.Equal(t, []string{"o-1"}, succeeded)
	assert.Equal(t, []string{"declined"}, failed)
	assert.Equal(t, []string{models.PaymentMethodOnline}, created)
}

func TestHandleMessageIgnoresUnknownTypes(t *testing.T) {
	eh := NewEventHandler()
	assert.NoError(t, eh.HandleMessage(context.Background(), []byte(`{"event_type":"order.status_changed"}`)))
	assert.Error(t, eh.HandleMessage(context.Background(), []byte(`not json`)))
}

func TestEnvelopeHandler(t *testing.T) {
	var got models.RealtimeEnvelope
	h := EnvelopeHandler(func(env models.RealtimeEnvelope) int {
		got = env
		return 1
	})

	env := models.RealtimeEnvelope{
		BaseEvent: models.BaseEvent{EventID: "e1", EventType: models.EventTypeOrderStatusChanged},
		Origin:    "instance-b",
		Channels:  []string{"order:o-1"},
		Payload:   json.RawMessage(`{"order_id":"o-1"}`),
	}
	require.NoError(t, h(context.Background(), encode(t, env)))
	assert.Equal(t, "instance-b", got.Origin)
	assert.Equal(t, []string{"order:o-1"}, got.Channels)
	assert.JSONEq(t, `{"order_id":"o-1"}`, string(got.Payload))
}

func TestRelayKey(t *testing.T) {
	assert.Equal(t, "order:o-1", relayKey(models.RealtimeEnvelope{Channels: []string{"order:o-1", "business:b"}}))
	assert.Equal(t, "e1", relayKey(models.RealtimeEnvelope{BaseEvent: models.BaseEvent{EventID: "e1"}}))
}
