// Package relay is a self-hosted, Pusher-compatible websocket broker. A Hub
// holds the connected sockets of one process; a Bus carries triggers between
// processes so each hub can deliver to its own sockets.
package relay

import (
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"budgetbot/internal/pusher"
)

// Hub maintains active websocket connections and the channels they joined.
type Hub struct {
	key    string
	secret string
	logger *slog.Logger

	// channel name -> set of subscribed connections
	channels map[string]map[*conn]struct{}
	mu       sync.RWMutex

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

// NewHub creates a hub that accepts grants signed with key and secret.
func NewHub(key, secret string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		key:      key,
		secret:   secret,
		logger:   logger,
		channels: make(map[string]map[*conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP upgrades requests to /app/{key} into broker connections.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	appKey := strings.TrimPrefix(r.URL.Path, "/app/")
	if appKey != h.key {
		http.Error(w, "Unknown app key", http.StatusNotFound)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("[HUB] Failed to upgrade connection", "from", r.RemoteAddr, "error", err)
		return
	}

	c := &conn{
		hub:      h,
		ws:       ws,
		send:     make(chan []byte, sendBuffer),
		socketID: fmt.Sprintf("%d.%d", rand.Intn(1_000_000_000), h.nextID.Add(1)),
		channels: make(map[string]struct{}),
	}

	data, _ := pusher.EncodeStringData(pusher.ConnectionEstablished{
		SocketID:        c.socketID,
		ActivityTimeout: int(pongWait.Seconds()),
	})
	c.sendFrame(pusher.Frame{Event: pusher.EventConnectionEstablished, Data: data})

	h.logger.Debug("[HUB] Connection established", "socket", c.socketID, "from", r.RemoteAddr)

	go c.writePump()
	go c.readPump()
}

// Deliver sends event with encoded JSON data to every socket on channel and
// returns how many sockets it was queued for.
func (h *Hub) Deliver(channel, event string, data []byte) int {
	frame, err := encodeFrame(pusher.Frame{
		Event:   event,
		Channel: channel,
		Data:    pusher.StringData(data),
	})
	if err != nil {
		h.logger.Error("[HUB] Failed to encode frame", "channel", channel, "event", event, "error", err)
		return 0
	}

	h.mu.RLock()
	var stale []*conn
	sent := 0
	for c := range h.channels[channel] {
		select {
		case c.send <- frame:
			sent++
		default:
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		h.logger.Warn("[HUB] Client buffer full, disconnecting", "socket", c.socketID, "channel", channel)
		c.close()
	}

	h.logger.Debug("[HUB] Delivered event", "channel", channel, "event", event, "sockets", sent)
	return sent
}

// Subscribers counts the sockets currently joined to channel.
func (h *Hub) Subscribers(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

func (h *Hub) subscribe(c *conn, data pusher.SubscribeData) error {
	if data.Channel == "" {
		return fmt.Errorf("channel is required")
	}
	if strings.HasPrefix(data.Channel, "private-") &&
		!pusher.VerifyChannelAuth(h.key, h.secret, c.socketID, data.Channel, data.Auth) {
		return fmt.Errorf("invalid signature for %s", data.Channel)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if c.isClosed() {
		return fmt.Errorf("connection closed")
	}
	if h.channels[data.Channel] == nil {
		h.channels[data.Channel] = make(map[*conn]struct{})
	}
	h.channels[data.Channel][c] = struct{}{}
	c.channels[data.Channel] = struct{}{}
	return nil
}

func (h *Hub) unsubscribe(c *conn, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c, channel)
}

func (h *Hub) unregister(c *conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for channel := range c.channels {
		h.removeLocked(c, channel)
	}
}

func (h *Hub) removeLocked(c *conn, channel string) {
	delete(c.channels, channel)
	if clients, ok := h.channels[channel]; ok {
		delete(clients, c)
		if len(clients) == 0 {
			delete(h.channels, channel)
		}
	}
}
