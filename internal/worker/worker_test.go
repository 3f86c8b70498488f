package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/broker"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/bus"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/realtime"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/store"
)

// replaySource hands a fixed batch of messages to the handler
type replaySource struct {
	messages [][]byte
	errs     []error
	closed   bool
}

func (s *replaySource) StartConsuming(ctx context.Context, handler broker.MessageHandler) error {
	for _, m := range s.messages {
		s.errs = append(s.errs, handler(ctx, m))
	}
	return nil
}

func (s *replaySource) Close() error {
	s.closed = true
	return nil
}

type fakeConn struct {
	sent []any
}

func (c *fakeConn) WriteJSON(v any) error {
	c.sent = append(c.sent, v)
	return nil
}

func (c *fakeConn) Close() error { return nil }

func TestRelayWorkerDeliversRemoteEnvelopes(t *testing.T) {
	hub := realtime.NewHub()
	conn := &fakeConn{}
	hub.Register(conn, []string{bus.BusinessChannel("biz-1")})
	b := bus.New(hub, nil, "instance-a")

	env, err := json.Marshal(models.RealtimeEnvelope{
		BaseEvent: models.BaseEvent{EventID: "evt-1", EventType: models.EventTypeOrderCreated},
		Origin:    "instance-b",
		Channels:  []string{bus.BusinessChannel("biz-1")},
		Payload:   json.RawMessage(`{"order_id":"ord_1"}`),
	})
	require.NoError(t, err)

	src := &replaySource{messages: [][]byte{env, []byte("not json")}}
	w := NewRelayWorker(src, b)
	require.NoError(t, w.Start(context.Background()))

	assert.Len(t, conn.sent, 1)
	require.Len(t, src.errs, 2)
	assert.NoError(t, src.errs[0])
	assert.Error(t, src.errs[1])

	require.NoError(t, w.Stop())
	assert.True(t, src.closed)
}

type fakeLock struct {
	held     bool
	acquired int
	err      error
}

func (l *fakeLock) AcquireLock(context.Context, string, time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.held {
		return false, nil
	}
	l.acquired++
	return true, nil
}

func (l *fakeLock) ReleaseLock(context.Context, string) error { return nil }

func TestSweeperReleasesStaleKeys(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := mem.ReserveIdempotency(ctx, "old", now.Add(-time.Minute), 30*time.Second)
	require.NoError(t, err)
	_, err = mem.ReserveIdempotency(ctx, "fresh", now.Add(-5*time.Second), 30*time.Second)
	require.NoError(t, err)

	lock := &fakeLock{}
	s := NewIdempotencySweeper(mem, lock, 30*time.Second, "")
	s.now = func() time.Time { return now }

	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, lock.acquired)

	old, err := mem.GetIdempotency(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, models.IdempotencyFailed, old.State)

	fresh, err := mem.GetIdempotency(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, models.IdempotencyProcessing, fresh.State)
}

func TestSweeperSkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	_, err := mem.ReserveIdempotency(ctx, "old", time.Now().Add(-time.Hour), 30*time.Second)
	require.NoError(t, err)

	s := NewIdempotencySweeper(mem, &fakeLock{held: true}, 30*time.Second, "")
	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	s = NewIdempotencySweeper(mem, &fakeLock{err: errors.New("redis down")}, 30*time.Second, "")
	_, err = s.Sweep(ctx)
	assert.Error(t, err)
}

func TestSweeperWithoutLock(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	_, err := mem.ReserveIdempotency(ctx, "old", time.Now().Add(-time.Hour), 30*time.Second)
	require.NoError(t, err)

	s := NewIdempotencySweeper(mem, nil, 30*time.Second, "")
	n, err := s.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSweeperRejectsBadSchedule(t *testing.T) {
	s := NewIdempotencySweeper(store.NewMemoryStore(), nil, time.Second, "every now and then")
	assert.Error(t, s.Start())
}
