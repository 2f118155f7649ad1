package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetbot/internal/pusher"
)

const (
	testKey    = "relay-key"
	testSecret = "relay-secret"
)

func startHub(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(testKey, testSecret, nil)
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server) (*websocket.Conn, string) {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/app/" + testKey
	ws, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	f := readFrame(t, ws)
	require.Equal(t, pusher.EventConnectionEstablished, f.Event)
	var est pusher.ConnectionEstablished
	decodeData(t, f, &est)
	require.NotEmpty(t, est.SocketID)
	return ws, est.SocketID
}

func readFrame(t *testing.T, ws *websocket.Conn) pusher.Frame {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f pusher.Frame
	require.NoError(t, ws.ReadJSON(&f))
	return f
}

func decodeData(t *testing.T, f pusher.Frame, v any) {
	t.Helper()
	raw, err := pusher.UnwrapData(f.Data)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, v))
}

func subscribe(t *testing.T, ws *websocket.Conn, channel, auth string) pusher.Frame {
	t.Helper()
	data, err := json.Marshal(pusher.SubscribeData{Channel: channel, Auth: auth})
	require.NoError(t, err)
	require.NoError(t, ws.WriteJSON(pusher.Frame{Event: pusher.EventSubscribe, Data: data}))
	return readFrame(t, ws)
}

func TestHub_UnknownAppKey(t *testing.T) {
	_, srv := startHub(t)

	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/app/other"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHub_PrivateSubscribeAndDeliver(t *testing.T) {
	hub, srv := startHub(t)
	ws, socketID := dial(t, srv)

	grant, err := pusher.AuthorizeChannel(testKey, testSecret, socketID, "private-user-u")
	require.NoError(t, err)

	f := subscribe(t, ws, "private-user-u", grant.Auth)
	assert.Equal(t, pusher.EventSubscriptionSucceeded, f.Event)
	assert.Equal(t, "private-user-u", f.Channel)
	assert.Equal(t, 1, hub.Subscribers("private-user-u"))

	sent := hub.Deliver("private-user-u", "expense-updated", []byte(`{"amount":150}`))
	assert.Equal(t, 1, sent)

	f = readFrame(t, ws)
	assert.Equal(t, "expense-updated", f.Event)
	assert.Equal(t, "private-user-u", f.Channel)
	var body map[string]any
	decodeData(t, f, &body)
	assert.Equal(t, float64(150), body["amount"])
}

func TestHub_RejectsGrantForAnotherSocket(t *testing.T) {
	hub, srv := startHub(t)
	ws, _ := dial(t, srv)

	grant, err := pusher.AuthorizeChannel(testKey, testSecret, "1.1", "private-user-u")
	require.NoError(t, err)

	f := subscribe(t, ws, "private-user-u", grant.Auth)
	assert.Equal(t, pusher.EventSubscriptionError, f.Event)
	assert.Equal(t, 0, hub.Subscribers("private-user-u"))
}

func TestHub_RejectsGrantForAnotherChannel(t *testing.T) {
	hub, srv := startHub(t)
	ws, socketID := dial(t, srv)

	grant, err := pusher.AuthorizeChannel(testKey, testSecret, socketID, "private-user-v")
	require.NoError(t, err)

	f := subscribe(t, ws, "private-user-u", grant.Auth)
	assert.Equal(t, pusher.EventSubscriptionError, f.Event)
	assert.Zero(t, hub.Deliver("private-user-u", "notification", []byte(`{}`)))
}

func TestHub_DeliverOnlyToChannelMembers(t *testing.T) {
	hub, srv := startHub(t)
	wsU, socketU := dial(t, srv)
	wsV, socketV := dial(t, srv)

	grantU, err := pusher.AuthorizeChannel(testKey, testSecret, socketU, "private-user-u")
	require.NoError(t, err)
	grantV, err := pusher.AuthorizeChannel(testKey, testSecret, socketV, "private-user-v")
	require.NoError(t, err)
	require.Equal(t, pusher.EventSubscriptionSucceeded, subscribe(t, wsU, "private-user-u", grantU.Auth).Event)
	require.Equal(t, pusher.EventSubscriptionSucceeded, subscribe(t, wsV, "private-user-v", grantV.Auth).Event)

	assert.Equal(t, 1, hub.Deliver("private-user-u", "notification", []byte(`{"n":1}`)))
	assert.Equal(t, "notification", readFrame(t, wsU).Event)

	// V only sees its own pong
	require.NoError(t, wsV.WriteJSON(pusher.Frame{Event: pusher.EventPing}))
	assert.Equal(t, pusher.EventPong, readFrame(t, wsV).Event)
}

func TestHub_UnsubscribeAndDisconnect(t *testing.T) {
	hub, srv := startHub(t)
	ws, _ := dial(t, srv)

	require.Equal(t, pusher.EventSubscriptionSucceeded, subscribe(t, ws, "public-news", "").Event)
	require.Equal(t, 1, hub.Subscribers("public-news"))

	data, _ := json.Marshal(pusher.SubscribeData{Channel: "public-news"})
	require.NoError(t, ws.WriteJSON(pusher.Frame{Event: pusher.EventUnsubscribe, Data: data}))
	assert.Eventually(t, func() bool { return hub.Subscribers("public-news") == 0 }, time.Second, 10*time.Millisecond)

	require.Equal(t, pusher.EventSubscriptionSucceeded, subscribe(t, ws, "public-news", "").Event)
	ws.Close()
	assert.Eventually(t, func() bool { return hub.Subscribers("public-news") == 0 }, time.Second, 10*time.Millisecond)
}

func TestBroker(t *testing.T) {
	hub, _ := startHub(t)

	b := NewBroker(testKey, testSecret, LocalPublisher{Hub: hub})
	assert.True(t, b.Configured())
	assert.NoError(t, b.Trigger(context.Background(), "private-user-u", "notification", []byte(`{}`)))
	assert.ErrorIs(t, b.Trigger(context.Background(), "bad channel!", "notification", []byte(`{}`)), pusher.ErrInvalidChannel)

	grant, err := b.Authorize("1234.1234", "private-user-u")
	require.NoError(t, err)
	assert.True(t, pusher.VerifyChannelAuth(testKey, testSecret, "1234.1234", "private-user-u", grant.Auth))

	empty := NewBroker("", "", nil)
	assert.False(t, empty.Configured())
	assert.ErrorIs(t, empty.Trigger(context.Background(), "private-user-u", "notification", nil), pusher.ErrNotConfigured)
	_, err = empty.Authorize("1234.1234", "private-user-u")
	assert.ErrorIs(t, err, pusher.ErrNotConfigured)
}

type delivery struct {
	channel, event, data string
}

type recorder struct {
	mu  sync.Mutex
	got []delivery
}

func (r *recorder) Deliver(channel, event string, data []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, delivery{channel, event, string(data)})
	return 1
}

func (r *recorder) deliveries() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.got...)
}

func TestRedisBus_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	bus := NewRedisBus(rdb, "", nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx)
	require.NoError(t, err)

	rec := &recorder{}
	done := make(chan struct{})
	go func() {
		sub.Forward(ctx, rec)
		close(done)
	}()

	require.NoError(t, bus.Publish(ctx, "private-user-u", "goal-updated", []byte(`{"percentage":50}`)))

	require.Eventually(t, func() bool { return len(rec.deliveries()) == 1 }, 2*time.Second, 10*time.Millisecond)
	got := rec.deliveries()[0]
	assert.Equal(t, "private-user-u", got.channel)
	assert.Equal(t, "goal-updated", got.event)
	assert.JSONEq(t, `{"percentage":50}`, got.data)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Forward did not stop after cancel")
	}
}

func TestRedisBus_PublishError(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { rdb.Close() })

	bus := NewRedisBus(rdb, "relay:test", nil)
	err := bus.Publish(context.Background(), "private-user-u", "notification", []byte(`{}`))
	assert.Error(t, err)
}
