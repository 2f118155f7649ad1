package relay

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"budgetbot/internal/pusher"
)

const (
	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read next pong message
	pongWait = 120 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 16 * 1024

	sendBuffer = 64
)

type conn struct {
	hub      *Hub
	ws       *websocket.Conn
	send     chan []byte
	socketID string

	// guarded by hub.mu
	channels map[string]struct{}

	mu     sync.Mutex
	closed bool
}

func encodeFrame(f pusher.Frame) ([]byte, error) {
	return json.Marshal(f)
}

func (c *conn) sendFrame(f pusher.Frame) {
	b, err := encodeFrame(f)
	if err != nil {
		c.hub.logger.Error("[CLIENT] Failed to encode frame", "socket", c.socketID, "event", f.Event, "error", err)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- b:
	default:
		c.hub.logger.Warn("[CLIENT] Send buffer full, dropping frame", "socket", c.socketID, "event", f.Event)
	}
}

func (c *conn) sendError(event, channel, msg string, code int) {
	data, _ := pusher.EncodeStringData(pusher.ErrorData{Message: msg, Code: code})
	c.sendFrame(pusher.Frame{Event: event, Channel: channel, Data: data})
}

// close stops the write pump, which then closes the socket.
func (c *conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.hub.unregister(c)

	c.mu.Lock()
	close(c.send)
	c.mu.Unlock()
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// readPump pumps frames from the socket to the hub.
func (c *conn) readPump() {
	defer func() {
		c.close()
		c.ws.Close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("[CLIENT] Unexpected close", "socket", c.socketID, "error", err)
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		c.handleFrame(message)
	}
}

// writePump pumps queued frames from the hub to the socket.
func (c *conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.hub.logger.Error("[CLIENT] Failed to write", "socket", c.socketID, "error", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *conn) handleFrame(message []byte) {
	var f pusher.Frame
	if err := json.Unmarshal(message, &f); err != nil {
		c.sendError(pusher.EventError, "", "malformed frame", 4200)
		return
	}

	switch f.Event {
	case pusher.EventSubscribe:
		var data pusher.SubscribeData
		raw, err := pusher.UnwrapData(f.Data)
		if err == nil {
			err = json.Unmarshal(raw, &data)
		}
		if err != nil {
			c.sendError(pusher.EventError, "", "malformed subscribe", 4200)
			return
		}
		if err := c.hub.subscribe(c, data); err != nil {
			c.hub.logger.Warn("[CLIENT] Subscription rejected", "socket", c.socketID, "channel", data.Channel, "error", err)
			c.sendError(pusher.EventSubscriptionError, data.Channel, "subscription rejected", 4009)
			return
		}
		c.hub.logger.Info("[CLIENT] Subscribed", "socket", c.socketID, "channel", data.Channel)
		c.sendFrame(pusher.Frame{
			Event:   pusher.EventSubscriptionSucceeded,
			Channel: data.Channel,
			Data:    pusher.StringData([]byte("{}")),
		})

	case pusher.EventUnsubscribe:
		var data pusher.SubscribeData
		raw, err := pusher.UnwrapData(f.Data)
		if err == nil && json.Unmarshal(raw, &data) == nil {
			c.hub.unsubscribe(c, data.Channel)
		}

	case pusher.EventPing:
		c.sendFrame(pusher.Frame{Event: pusher.EventPong, Data: pusher.StringData([]byte("{}"))})

	default:
		c.hub.logger.Debug("[CLIENT] Ignoring event", "socket", c.socketID, "event", f.Event)
	}
}
