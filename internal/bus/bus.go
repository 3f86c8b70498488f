// Package bus publishes typed events to named channels. Events are
// delivered synchronously to this process's realtime hub and forwarded,
// best-effort, to the other instances through a Relay.
package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/realtime"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/util"
)

// Relay carries envelopes to the other service instances
type Relay interface {
	Forward(ctx context.Context, env models.RealtimeEnvelope) error
}

type Bus struct {
	hub    *realtime.Hub
	relay  Relay
	origin string
	logger *zap.Logger
}

// New creates a bus. relay may be nil for a single-instance deployment.
func New(hub *realtime.Hub, relay Relay, origin string) *Bus {
	return &Bus{
		hub:    hub,
		relay:  relay,
		origin: origin,
		logger: util.GetLogger(),
	}
}

// Origin returns the instance id stamped on forwarded envelopes
func (b *Bus) Origin() string {
	return b.origin
}

// Publish delivers the event to local subscribers of channels and returns how
// many connections received it. Relay failures are logged, never returned.
func (b *Bus) Publish(ctx context.Context, eventType string, channels []string, payload any) int {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("Failed to marshal event payload", zap.String("event_type", eventType), zap.Error(err))
		return 0
	}

	env := models.RealtimeEnvelope{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: eventType,
			Timestamp: time.Now().UTC(),
		},
		Origin:   b.origin,
		Channels: channels,
		Payload:  raw,
	}

	delivered := b.deliver(env)

	if b.relay != nil {
		if err := b.relay.Forward(ctx, env); err != nil {
			util.RelayPublishFailuresTotal.Inc()
			b.logger.Warn("Failed to relay event",
				zap.String("event_type", eventType),
				zap.String("event_id", env.EventID),
				zap.Error(err))
		}
	}
	return delivered
}

// DeliverRemote delivers an envelope received from the relay. Envelopes
// this instance published itself are skipped.
func (b *Bus) DeliverRemote(env models.RealtimeEnvelope) int {
	if env.Origin == b.origin {
		return 0
	}
	return b.deliver(env)
}

func (b *Bus) deliver(env models.RealtimeEnvelope) int {
	if b.hub == nil {
		return 0
	}
	return b.hub.Deliver(realtime.Message{
		Type:      env.EventType,
		Channels:  env.Channels,
		Payload:   env.Payload,
		Timestamp: env.Timestamp,
	})
}
