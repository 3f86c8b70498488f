package bus

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/realtime"
)

type recordingConn struct {
	mu   sync.Mutex
	msgs []realtime.Message
}

func (r *recordingConn) WriteJSON(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, v.(realtime.Message))
	return nil
}

func (r *recordingConn) Close() error { return nil }

type fakeRelay struct {
	envs []models.RealtimeEnvelope
	err  error
}

func (f *fakeRelay) Forward(_ context.Context, env models.RealtimeEnvelope) error {
	f.envs = append(f.envs, env)
	return f.err
}

func TestPublishDeliversAndRelays(t *testing.T) {
	hub := realtime.NewHub()
	conn := &recordingConn{}
	hub.Register(conn, []string{BusinessChannel("biz-1")})
	relay := &fakeRelay{}
	b := New(hub, relay, "instance-a")

	n := b.Publish(context.Background(), models.EventTypeOrderCreated,
		[]string{BusinessChannel("biz-1"), OrderChannel("o-1")},
		models.OrderCreatedEvent{OrderID: "o-1", BusinessID: "biz-1"})

	assert.Equal(t, 1, n)
	require.Len(t, conn.msgs, 1)
	assert.Equal(t, models.EventTypeOrderCreated, conn.msgs[0].Type)
	assert.JSONEq(t, `"o-1"`, string(extract(t, conn.msgs[0].Payload, "order_id")))

	require.Len(t, relay.envs, 1)
	assert.Equal(t, "instance-a", relay.envs[0].Origin)
	assert.NotEmpty(t, relay.envs[0].EventID)
}

func TestPublishSurvivesRelayFailure(t *testing.T) {
	hub := realtime.NewHub()
	hub.Register(&recordingConn{}, []string{OrderChannel("o-1")})
	b := New(hub, &fakeRelay{err: errors.New("broker down")}, "instance-a")

	assert.Equal(t, 1, b.Publish(context.Background(), models.EventTypeOrderStatusChanged, []string{OrderChannel("o-1")}, map[string]string{}))
}

func TestDeliverRemoteSkipsOwnEvents(t *testing.T) {
	hub := realtime.NewHub()
	hub.Register(&recordingConn{}, []string{TabChannel("t-1")})
	b := New(hub, nil, "instance-a")

	env := models.RealtimeEnvelope{Origin: "instance-a", Channels: []string{TabChannel("t-1")}}
	assert.Zero(t, b.DeliverRemote(env))

	env.Origin = "instance-b"
	assert.Equal(t, 1, b.DeliverRemote(env))
}

func TestOrderChannels(t *testing.T) {
	o := &models.Order{ID: "o-1", BusinessID: "biz-1", CustomerID: "c-1", RiderID: "r-1", TabID: "t-1", TrackingToken: "tok"}
	assert.Equal(t, []string{"business:biz-1", "order:o-1", "customer:c-1", "rider:r-1", "tab:t-1", "track:tok"}, OrderChannels(o))

	assert.Equal(t, []string{"business:biz-1", "order:o-2"}, OrderChannels(&models.Order{ID: "o-2", BusinessID: "biz-1"}))
}

func TestParseChannel(t *testing.T) {
	kind, id, ok := ParseChannel("track:abc:def")
	assert.True(t, ok)
	assert.Equal(t, KindTrack, kind)
	assert.Equal(t, "abc:def", id)

	for _, bad := range []string{"", "business", "business:", "kitchen:1"} {
		_, _, ok := ParseChannel(bad)
		assert.False(t, ok, bad)
	}
}

func extract(t *testing.T, raw []byte, field string) []byte {
	t.Helper()
	var m map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &m))
	return m[field]
}
