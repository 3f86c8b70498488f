package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/bus"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/realtime"
)

const (
	wsReadLimit = 4096
	wsPongWait  = 60 * time.Second
	wsPingEvery = 50 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// browsers connect from the storefront and dashboard origins
	CheckOrigin: func(*http.Request) bool { return true },
}

// wsCommand is a client message changing its subscriptions
type wsCommand struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

// wsReply acknowledges a command
type wsReply struct {
	Type     string   `json:"type"`
	Action   string   `json:"action,omitempty"`
	Channels []string `json:"channels,omitempty"`
	Denied   []string `json:"denied,omitempty"`
	Count    int      `json:"count"`
	Error    string   `json:"error,omitempty"`
}

// serveWS upgrades the request and streams bus events for the channels the
// caller subscribes to, either with ?channels=a,b or with subscribe commands
func (h *Handler) serveWS(c *gin.Context) {
	actor := actorFrom(c)
	initial, denied := filterChannels(actor, splitChannels(c.Query("channels")))

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := h.hub.Register(conn, initial)
	defer h.hub.Unregister(client)

	h.logger.Debug("WebSocket connected",
		zap.String("client_id", client.ID),
		zap.String("actor_id", actor.ActorID))

	if len(denied) > 0 {
		_ = client.Send(wsReply{Type: "ack", Action: "subscribe", Channels: initial, Denied: denied, Count: len(h.hub.Channels(client))})
	}

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go keepAlive(conn, done)

	for {
		var cmd wsCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket closed", zap.String("client_id", client.ID), zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		if err := client.Send(h.applyCommand(client, actor, cmd)); err != nil {
			return
		}
	}
}

// keepAlive pings until done. WriteControl may run alongside other writers.
func keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (h *Handler) applyCommand(client *realtime.Client, actor models.Actor, cmd wsCommand) wsReply {
	switch cmd.Action {
	case "subscribe":
		allowed, denied := filterChannels(actor, cmd.Channels)
		n := h.hub.Subscribe(client, allowed)
		return wsReply{Type: "ack", Action: cmd.Action, Channels: allowed, Denied: denied, Count: n}
	case "unsubscribe":
		n := h.hub.Unsubscribe(client, cmd.Channels)
		return wsReply{Type: "ack", Action: cmd.Action, Channels: cmd.Channels, Count: n}
	}
	return wsReply{Type: "error", Error: "unknown action " + cmd.Action, Count: len(h.hub.Channels(client))}
}

func splitChannels(raw string) []string {
	var out []string
	for _, ch := range strings.Split(raw, ",") {
		if ch = strings.TrimSpace(ch); ch != "" {
			out = append(out, ch)
		}
	}
	return out
}

func filterChannels(actor models.Actor, channels []string) (allowed, denied []string) {
	for _, ch := range channels {
		if allowedChannel(actor, ch) {
			allowed = append(allowed, ch)
		} else {
			denied = append(denied, ch)
		}
	}
	return allowed, denied
}

// allowedChannel decides whether actor may listen on ch. A tracking token
// is its own credential.
func allowedChannel(actor models.Actor, ch string) bool {
	kind, id, ok := bus.ParseChannel(ch)
	if !ok {
		return false
	}
	if kind == bus.KindTrack {
		return true
	}
	if actor.Role == models.RoleAdmin {
		return true
	}

	switch kind {
	case bus.KindBusiness:
		return actor.IsStaff() && actor.BusinessID == id
	case bus.KindRider:
		return actor.Role == models.RoleRider && actor.ActorID == id
	case bus.KindCustomer:
		return actor.Role == models.RoleCustomer && actor.ActorID == id
	case bus.KindOrder, bus.KindTab:
		return actor.IsStaff() && actor.Can(models.PermViewOrders)
	}
	return false
}
