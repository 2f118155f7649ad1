// Package push delivers Web Push notifications to a user's registered
// browsers, alongside the realtime channel.
package push

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/goccy/go-json"

	"budgetbot/internal/store"
)

// Message is the JSON body the service worker receives.
type Message struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
}

type Sender struct {
	publicKey  string
	privateKey string
	subscriber string
	store      store.PushStore
	logger     *slog.Logger
	httpClient webpush.HTTPClient
}

type Option func(*Sender)

func WithLogger(l *slog.Logger) Option {
	return func(s *Sender) { s.logger = l }
}

func WithHTTPClient(c webpush.HTTPClient) Option {
	return func(s *Sender) { s.httpClient = c }
}

// NewSender uses the given VAPID keys, generating a pair when either is
// empty. Generated keys are logged so they can be persisted.
func NewSender(publicKey, privateKey, subscriber string, ps store.PushStore, opts ...Option) (*Sender, error) {
	s := &Sender{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
		store:      ps,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.privateKey == "" || s.publicKey == "" {
		s.logger.Warn("[PUSH] VAPID keys not found in environment. Generating new keys...")
		priv, pub, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			return nil, fmt.Errorf("generating VAPID keys: %w", err)
		}
		s.privateKey, s.publicKey = priv, pub
		s.logger.Info("[PUSH] Generated VAPID keys (add these to your .env file to persist them)",
			"VAPID_PUBLIC_KEY", pub, "VAPID_PRIVATE_KEY", priv)
	}
	return s, nil
}

// PublicKey is handed to browsers for PushManager.subscribe.
func (s *Sender) PublicKey() string {
	return s.publicKey
}

// SendToUser pushes msg to every subscription of userID and returns how many
// accepted it. Subscriptions the push service reports as gone are removed.
func (s *Sender) SendToUser(ctx context.Context, userID string, msg Message) int {
	subs, err := s.store.GetPushSubscriptions(ctx, userID)
	if err != nil {
		s.logger.Error("[PUSH] Failed to get subscriptions", "user", userID, "error", err)
		return 0
	}
	if len(subs) == 0 {
		return 0
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("[PUSH] Failed to encode message", "user", userID, "error", err)
		return 0
	}

	sent := 0
	for _, sub := range subs {
		resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256dh,
				Auth:   sub.Auth,
			},
		}, &webpush.Options{
			HTTPClient:      s.httpClient,
			Subscriber:      s.subscriber,
			VAPIDPublicKey:  s.publicKey,
			VAPIDPrivateKey: s.privateKey,
			TTL:             3600,
		})
		if err != nil {
			s.logger.Warn("[PUSH] Failed to send push", "user", userID, "endpoint", sub.Endpoint, "error", err)
			continue
		}
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			s.logger.Info("[PUSH] Removing expired subscription", "user", userID, "endpoint", sub.Endpoint)
			if err := s.store.DeletePushSubscription(ctx, sub.Endpoint); err != nil {
				s.logger.Error("[PUSH] Failed to remove subscription", "endpoint", sub.Endpoint, "error", err)
			}
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			sent++
		default:
			s.logger.Warn("[PUSH] Push service rejected message", "user", userID, "endpoint", sub.Endpoint, "status", resp.StatusCode)
		}
	}
	return sent
}
