package pusher

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// maxDataSize is the broker's limit on a single event's data field.
const maxDataSize = 10 * 1024

var ErrPayloadTooLarge = errors.New("event data exceeds 10KB")

// StatusError is a non-2xx reply from the broker.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("pusher returned status %d: %s", e.Code, strings.TrimSpace(e.Body))
}

// Temporary reports whether repeating the call may succeed.
func (e *StatusError) Temporary() bool {
	return e.Code >= 500
}

// Client is a minimal Pusher Channels REST client.
type Client struct {
	creds      Credentials
	baseURL    string
	httpClient *http.Client
	now        func() time.Time
}

type ClientOption func(*Client)

// WithBaseURL points the client somewhere other than api-<cluster>.pusher.com.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the default client (which has a 3s timeout).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a client for the given app credentials.
func NewClient(creds Credentials, opts ...ClientOption) *Client {
	c := &Client{
		creds:   creds,
		baseURL: "https://api-" + creds.Cluster + ".pusher.com",
		httpClient: &http.Client{
			Timeout: 3 * time.Second,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether the client has a full set of credentials.
func (c *Client) Configured() bool {
	return c.creds.Configured()
}

// Authorize signs a private channel grant with the app key and secret.
func (c *Client) Authorize(socketID, channel string) (AuthResponse, error) {
	if !c.creds.Configured() {
		return AuthResponse{}, ErrNotConfigured
	}
	return AuthorizeChannel(c.creds.Key, c.creds.Secret, socketID, channel)
}

type triggerBody struct {
	Name     string   `json:"name"`
	Channels []string `json:"channels"`
	Data     string   `json:"data"`
}

// Trigger publishes one event with data (already JSON encoded) on channel.
func (c *Client) Trigger(ctx context.Context, channel, event string, data []byte) error {
	if !c.creds.Configured() {
		return ErrNotConfigured
	}
	if len(data) > maxDataSize {
		return ErrPayloadTooLarge
	}

	body, err := json.Marshal(triggerBody{
		Name:     event,
		Channels: []string{channel},
		Data:     string(data),
	})
	if err != nil {
		return fmt.Errorf("marshaling trigger body: %w", err)
	}

	path := "/apps/" + c.creds.AppID + "/events"
	sum := md5.Sum(body)
	params := url.Values{}
	params.Set("auth_key", c.creds.Key)
	params.Set("auth_timestamp", strconv.FormatInt(c.now().Unix(), 10))
	params.Set("auth_version", "1.0")
	params.Set("body_md5", hex.EncodeToString(sum[:]))
	params.Set("auth_signature", SignRequest(c.creds.Secret, http.MethodPost, path, params))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path+"?"+params.Encode(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing trigger %s on %s: %w", event, channel, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}
	return nil
}
