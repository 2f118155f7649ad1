package pusher

import (
	"fmt"
	"net/url"

	"github.com/goccy/go-json"
)

// Websocket protocol (version 7) event names used by this package's
// consumers.
const (
	EventConnectionEstablished = "pusher:connection_established"
	EventSubscribe             = "pusher:subscribe"
	EventUnsubscribe           = "pusher:unsubscribe"
	EventPing                  = "pusher:ping"
	EventPong                  = "pusher:pong"
	EventError                 = "pusher:error"
	EventSubscriptionError     = "pusher:subscription_error"
	EventSubscriptionSucceeded = "pusher_internal:subscription_succeeded"
)

// Frame is one websocket message in either direction. Server-sent data is a
// JSON string holding encoded JSON; client-sent data is a plain object.
type Frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type ConnectionEstablished struct {
	SocketID        string `json:"socket_id"`
	ActivityTimeout int    `json:"activity_timeout"`
}

type SubscribeData struct {
	Channel string `json:"channel"`
	Auth    string `json:"auth,omitempty"`
}

type ErrorData struct {
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

// StringData wraps encoded JSON as a JSON string, the way the server sends
// event data.
func StringData(encoded []byte) json.RawMessage {
	b, _ := json.Marshal(string(encoded))
	return b
}

// EncodeStringData marshals v and wraps it with StringData.
func EncodeStringData(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return StringData(b), nil
}

// UnwrapData returns the encoded JSON inside data, accepting both the string
// wrapped and the plain object form.
func UnwrapData(data json.RawMessage) (json.RawMessage, error) {
	if len(data) == 0 || data[0] != '"' {
		return data, nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decoding string data: %w", err)
	}
	return json.RawMessage(s), nil
}

// ClientURL is the websocket endpoint for an app on a hosted cluster.
func ClientURL(cluster, key string) string {
	q := url.Values{}
	q.Set("protocol", "7")
	q.Set("client", "budgetbot-go")
	q.Set("version", "1.0")
	return "wss://ws-" + cluster + ".pusher.com/app/" + url.PathEscape(key) + "?" + q.Encode()
}
