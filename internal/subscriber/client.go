package subscriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"budgetbot/internal/models"
	"budgetbot/internal/pusher"
	"budgetbot/internal/realtime"
)

const (
	handshakeTimeout = 10 * time.Second
	writeWait        = 10 * time.Second
)

var (
	ErrAlreadyConnected     = errors.New("subscriber already connected")
	ErrNoUser               = errors.New("subscriber needs a user id")
	ErrSubscriptionRejected = errors.New("broker rejected subscription")
)

// AuthError is a non-200 reply from the channel authorization endpoint.
type AuthError struct {
	Code int
	Body string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("channel authorization returned %d: %s", e.Code, strings.TrimSpace(e.Body))
}

// Config describes where to connect and who is connecting.
type Config struct {
	// URL is the broker websocket endpoint, e.g. ws://host/app/<key>.
	URL string
	// AuthEndpoint signs the private channel grant.
	AuthEndpoint string
	UserID       string
	// Token is sent as a Bearer credential to AuthEndpoint.
	Token string
	// Cookies are attached to the authorization request, for session auth.
	Cookies []*http.Cookie

	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     *slog.Logger
}

// Client holds at most one live connection.
type Client struct {
	cfg        Config
	dispatcher *Dispatcher
	inbox      *Inbox
	logger     *slog.Logger

	mu       sync.Mutex
	ws       *websocket.Conn
	writeMu  sync.Mutex
	socketID string
	channel  string
	done     chan struct{}
	err      error
	closing  atomic.Bool
}

// New builds a client. A nil inbox gets a fresh one.
func New(cfg Config, d *Dispatcher, inbox *Inbox) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: handshakeTimeout}
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if d == nil {
		d = NewDispatcher()
	}
	if inbox == nil {
		inbox = NewInbox()
	}
	return &Client{
		cfg:        cfg,
		dispatcher: d,
		inbox:      inbox,
		logger:     cfg.Logger,
	}
}

func (c *Client) Inbox() *Inbox { return c.inbox }

func (c *Client) Dispatcher() *Dispatcher { return c.dispatcher }

// SocketID is empty until Connect succeeds.
func (c *Client) SocketID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.socketID
}

// Connect dials the broker, authorizes the user's private channel and waits
// until the subscription is confirmed. Events are then dispatched from a
// background goroutine until Close or a dropped connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws != nil {
		return ErrAlreadyConnected
	}
	if c.cfg.UserID == "" {
		return ErrNoUser
	}

	ctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()

	ws, _, err := c.cfg.Dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dialing broker: %w", err)
	}

	channel := realtime.ChannelName(c.cfg.UserID)
	socketID, err := c.handshake(ctx, ws, channel)
	if err != nil {
		ws.Close()
		return err
	}
	ws.SetReadDeadline(time.Time{})

	c.ws = ws
	c.socketID = socketID
	c.channel = channel
	c.done = make(chan struct{})
	c.err = nil
	c.closing.Store(false)

	c.logger.Info("[SUBSCRIBER] Subscribed", "channel", channel, "socket", socketID)
	go c.readLoop(ws, channel, c.done)
	return nil
}

func (c *Client) handshake(ctx context.Context, ws *websocket.Conn, channel string) (string, error) {
	if deadline, ok := ctx.Deadline(); ok {
		ws.SetReadDeadline(deadline)
	}

	f, err := readFrame(ws)
	if err != nil {
		return "", fmt.Errorf("reading connection frame: %w", err)
	}
	if f.Event != pusher.EventConnectionEstablished {
		return "", fmt.Errorf("unexpected first frame %q", f.Event)
	}
	var est pusher.ConnectionEstablished
	if err := decodeData(f.Data, &est); err != nil {
		return "", fmt.Errorf("decoding connection frame: %w", err)
	}

	grant, err := c.authorize(ctx, est.SocketID, channel)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(pusher.SubscribeData{Channel: channel, Auth: grant.Auth})
	if err != nil {
		return "", err
	}
	if err := c.write(ws, pusher.Frame{Event: pusher.EventSubscribe, Data: data}); err != nil {
		return "", fmt.Errorf("sending subscribe: %w", err)
	}

	for {
		f, err := readFrame(ws)
		if err != nil {
			return "", fmt.Errorf("waiting for subscription: %w", err)
		}
		switch {
		case f.Event == pusher.EventSubscriptionSucceeded && f.Channel == channel:
			return est.SocketID, nil
		case f.Event == pusher.EventSubscriptionError:
			return "", ErrSubscriptionRejected
		}
	}
}

func (c *Client) authorize(ctx context.Context, socketID, channel string) (pusher.AuthResponse, error) {
	form := url.Values{}
	form.Set("socket_id", socketID)
	form.Set("channel_name", channel)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return pusher.AuthResponse{}, fmt.Errorf("creating auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-User-ID", c.cfg.UserID)
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}
	for _, ck := range c.cfg.Cookies {
		req.AddCookie(ck)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return pusher.AuthResponse{}, fmt.Errorf("requesting channel auth: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return pusher.AuthResponse{}, &AuthError{Code: resp.StatusCode, Body: string(body)}
	}
	var grant pusher.AuthResponse
	if err := json.Unmarshal(body, &grant); err != nil || grant.Auth == "" {
		return pusher.AuthResponse{}, fmt.Errorf("malformed auth response: %q", body)
	}
	return grant, nil
}

func (c *Client) readLoop(ws *websocket.Conn, channel string, done chan struct{}) {
	defer close(done)
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if !c.closing.Load() {
				c.logger.Warn("[SUBSCRIBER] Connection dropped", "channel", channel, "error", err)
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
			}
			return
		}
		var f pusher.Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			c.logger.Warn("[SUBSCRIBER] Malformed frame", "error", err)
			continue
		}

		switch f.Event {
		case pusher.EventPing:
			c.write(ws, pusher.Frame{Event: pusher.EventPong, Data: []byte("{}")})
		case pusher.EventError:
			c.logger.Warn("[SUBSCRIBER] Broker error", "data", string(f.Data))
		default:
			if f.Channel == channel && isBrokerEvent(f.Event) {
				c.handleEvent(f)
			}
		}
	}
}

func (c *Client) handleEvent(f pusher.Frame) {
	raw, err := pusher.UnwrapData(f.Data)
	if err != nil {
		c.logger.Error("[SUBSCRIBER] Undecodable event data", "event", f.Event, "error", err)
		return
	}
	ev, err := decodeEvent(raw)
	if err != nil {
		c.logger.Error("[SUBSCRIBER] Undecodable event", "event", f.Event, "error", err)
		return
	}

	c.inbox.Add(ev)
	n := c.dispatcher.Dispatch(CustomEvent{Name: models.CustomEventName(f.Event), Detail: ev})
	c.logger.Debug("[SUBSCRIBER] Dispatched event", "event", f.Event, "type", ev.Type, "listeners", n)
}

// decodeEvent accepts a full event or, for raw triggers, any JSON object,
// which is wrapped as a general event.
func decodeEvent(raw []byte) (models.Event, error) {
	var probe struct {
		Type *string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return models.Event{}, err
	}
	if probe.Type == nil {
		return models.Event{
			ID:        uuid.NewString(),
			Type:      models.EventGeneral,
			Timestamp: time.Now().UTC(),
			Data:      models.General{Raw: append([]byte(nil), raw...)},
		}, nil
	}
	var ev models.Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return models.Event{}, err
	}
	return ev, nil
}

func isBrokerEvent(name string) bool {
	for _, e := range models.BrokerEvents {
		if e == name {
			return true
		}
	}
	return false
}

// Close unsubscribes and disconnects, then waits for the read loop to end.
// It is safe to call on a client that never connected.
func (c *Client) Close() error {
	c.mu.Lock()
	ws, channel, done := c.ws, c.channel, c.done
	c.ws = nil
	c.mu.Unlock()
	if ws == nil {
		return nil
	}

	c.closing.Store(true)
	data, _ := json.Marshal(pusher.SubscribeData{Channel: channel})
	c.write(ws, pusher.Frame{Event: pusher.EventUnsubscribe, Data: data})

	c.writeMu.Lock()
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	err := ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	select {
	case <-done:
	case <-time.After(writeWait):
	}
	ws.Close()
	c.logger.Info("[SUBSCRIBER] Disconnected", "channel", channel)
	if errors.Is(err, websocket.ErrCloseSent) {
		return nil
	}
	return err
}

// Done is closed when the read loop exits. It is nil before Connect.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Err reports why the connection dropped, or nil after a clean Close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) write(ws *websocket.Conn, f pusher.Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	return ws.WriteMessage(websocket.TextMessage, b)
}

func readFrame(ws *websocket.Conn) (pusher.Frame, error) {
	var f pusher.Frame
	_, msg, err := ws.ReadMessage()
	if err != nil {
		return f, err
	}
	if err := json.Unmarshal(msg, &f); err != nil {
		return f, fmt.Errorf("decoding frame: %w", err)
	}
	return f, nil
}

func decodeData(data []byte, v any) error {
	raw, err := pusher.UnwrapData(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
