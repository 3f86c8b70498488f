package realtime

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	mu     sync.Mutex
	sent   []Message
	fail   bool
	closed bool
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.sent = append(f.sent, v.(Message))
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func msg(channels ...string) Message {
	return Message{Type: "order.status_changed", Channels: channels, Payload: json.RawMessage(`{}`)}
}

func TestDeliverScopesByChannel(t *testing.T) {
	hub := NewHub()
	biz := &fakeConn{}
	rider := &fakeConn{}
	other := &fakeConn{}

	hub.Register(biz, []string{"business:biz-1"})
	hub.Register(rider, []string{"rider:r-1"})
	hub.Register(other, []string{"business:biz-2"})

	n := hub.Deliver(msg("business:biz-1", "rider:r-1"))

	assert.Equal(t, 2, n)
	assert.Equal(t, 1, biz.count())
	assert.Equal(t, 1, rider.count())
	assert.Zero(t, other.count())
}

func TestDeliverOncePerConnection(t *testing.T) {
	hub := NewHub()
	conn := &fakeConn{}
	hub.Register(conn, []string{"order:o-1", "business:biz-1"})

	assert.Equal(t, 1, hub.Deliver(msg("order:o-1", "business:biz-1")))
	assert.Equal(t, 1, conn.count())
}

func TestDeliverIsolatesFailingConnection(t *testing.T) {
	hub := NewHub()
	bad := &fakeConn{fail: true}
	good := &fakeConn{}
	hub.Register(bad, []string{"tab:t-1"})
	hub.Register(good, []string{"tab:t-1"})

	assert.Equal(t, 1, hub.Deliver(msg("tab:t-1")))
	assert.Equal(t, 1, good.count())
}

func TestSubscribeAndUnsubscribe(t *testing.T) {
	hub := NewHub()
	conn := &fakeConn{}
	c := hub.Register(conn, nil)

	assert.Equal(t, 2, hub.Subscribe(c, []string{"order:o-1", "track:tok", "order:o-1", ""}))
	assert.Equal(t, 2, hub.Subscribe(c, []string{"order:o-1"}))
	assert.ElementsMatch(t, []string{"order:o-1", "track:tok"}, hub.Channels(c))

	assert.Equal(t, 1, hub.Unsubscribe(c, []string{"order:o-1", "order:o-2"}))
	assert.Zero(t, hub.Deliver(msg("order:o-1")))
	assert.Equal(t, 1, hub.Deliver(msg("track:tok")))
}

func TestSubscriptionCountIsRunningTotal(t *testing.T) {
	hub := NewHub()
	c := hub.Register(&fakeConn{}, []string{"a", "b"})

	assert.Equal(t, 3, hub.Subscribe(c, []string{"c"}))
	assert.Equal(t, 2, hub.Unsubscribe(c, []string{"a"}))
	assert.Equal(t, 2, hub.Unsubscribe(c, []string{"missing"}))
	assert.Equal(t, 0, hub.Unsubscribe(c, []string{"b", "c"}))
}

func TestUnregisterDropsInterest(t *testing.T) {
	hub := NewHub()
	conn := &fakeConn{}
	c := hub.Register(conn, []string{"customer:c-1"})
	require.Equal(t, 1, hub.Count())

	hub.Unregister(c)
	hub.Unregister(c)

	assert.Zero(t, hub.Count())
	assert.True(t, conn.closed)
	assert.Zero(t, hub.Deliver(msg("customer:c-1")))
	assert.Zero(t, hub.Subscribe(c, []string{"customer:c-1"}))
}

func TestConcurrentDeliverAndSubscribe(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c := hub.Register(&fakeConn{}, []string{"business:biz-1"})
			hub.Subscribe(c, []string{"order:o-1"})
			hub.Unregister(c)
		}()
		go func() {
			defer wg.Done()
			hub.Deliver(msg("business:biz-1", "order:o-1"))
		}()
	}
	wg.Wait()
	assert.Zero(t, hub.Count())
}
