// Package realtime fans BudgetBot events out to each user's private broker
// channel. Delivery is best effort: every call reports success as a bool and
// never fails the caller.
package realtime

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"budgetbot/internal/metrics"
	"budgetbot/internal/models"
	"budgetbot/internal/pusher"
	"budgetbot/internal/retry"
)

const channelPrefix = "private-user-"

// Broker is a hosted or self-hosted pub/sub service the notifier triggers
// events on and asks for channel grants.
type Broker interface {
	Configured() bool
	Trigger(ctx context.Context, channel, event string, data []byte) error
	Authorize(socketID, channel string) (pusher.AuthResponse, error)
}

// ChannelName is the private channel owned by userID.
func ChannelName(userID string) string {
	return channelPrefix + userID
}

// Config controls per-call timeout and the retry policy.
type Config struct {
	Timeout time.Duration
	Policy  retry.Policy
}

// DefaultConfig is 3 attempts, 500ms linear backoff, 3s per broker call.
func DefaultConfig() Config {
	return Config{
		Timeout: 3 * time.Second,
		Policy:  retry.Linear(3, 500*time.Millisecond),
	}
}

type Option func(*Notifier)

func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(n *Notifier) { n.metrics = m }
}

// WithRetryOptions passes options through to retry.Do, e.g. a test timer.
func WithRetryOptions(opts ...retry.Option) Option {
	return func(n *Notifier) { n.retryOpts = append(n.retryOpts, opts...) }
}

// Notifier is constructed once per process and shared by all handlers.
type Notifier struct {
	broker    Broker
	cfg       Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	retryOpts []retry.Option
	warnOnce  sync.Once
}

// New builds a notifier. A nil or unconfigured broker yields a notifier
// whose every call returns false.
func New(b Broker, cfg Config, opts ...Option) *Notifier {
	n := &Notifier{
		broker: b,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if cfg.Timeout <= 0 {
		n.logger.Warn("[NOTIFY] Invalid trigger timeout, using default", "timeout", cfg.Timeout)
		cfg.Timeout = DefaultConfig().Timeout
	}
	if cfg.Policy.MaxAttempts < 1 {
		n.logger.Warn("[NOTIFY] Invalid retry attempts, using default", "attempts", cfg.Policy.MaxAttempts)
		cfg.Policy = DefaultConfig().Policy
	}
	n.cfg = cfg
	return n
}

// Enabled reports whether events can reach a broker at all.
func (n *Notifier) Enabled() bool {
	return n.broker != nil && n.broker.Configured()
}

// Publish delivers ev on userID's private channel.
func (n *Notifier) Publish(ctx context.Context, userID string, ev models.Event) bool {
	if userID == "" {
		n.logger.Warn("[NOTIFY] Dropping event without user", "type", ev.Type)
		return false
	}
	data, err := json.Marshal(ev)
	if err != nil {
		n.logger.Error("[NOTIFY] Failed to encode event", "type", ev.Type, "user", userID, "error", err)
		n.metrics.Notification(ev.BrokerEvent(), "invalid")
		return false
	}
	return n.deliver(ctx, ChannelName(userID), ev.BrokerEvent(), data,
		slog.String("type", string(ev.Type)), slog.String("user", userID), slog.String("event_id", ev.ID))
}

// TriggerRaw sends already-encoded data under an arbitrary event name.
func (n *Notifier) TriggerRaw(ctx context.Context, channel, event string, data json.RawMessage) bool {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	return n.deliver(ctx, channel, event, data, slog.String("channel", channel))
}

// Authorize asks the broker to sign a grant for socketID on channel.
func (n *Notifier) Authorize(socketID, channel string) (pusher.AuthResponse, error) {
	if !n.Enabled() {
		return pusher.AuthResponse{}, pusher.ErrNotConfigured
	}
	return n.broker.Authorize(socketID, channel)
}

func (n *Notifier) deliver(ctx context.Context, channel, event string, data []byte, attrs ...any) (delivered bool) {
	attrs = append(attrs, slog.String("event", event))
	if !n.Enabled() {
		n.warnOnce.Do(func() {
			n.logger.Warn("[NOTIFY] Broker not configured, realtime notifications disabled")
		})
		n.metrics.Notification(event, "unconfigured")
		return false
	}

	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("[NOTIFY] Broker panicked", append(attrs, slog.Any("panic", r))...)
			n.metrics.Notification(event, "failed")
			delivered = false
		}
	}()

	attempts, err := retry.Do(ctx, n.cfg.Policy, func(ctx context.Context, attempt int) error {
		n.metrics.TriggerAttempt(event)
		callCtx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
		defer cancel()

		err := n.broker.Trigger(callCtx, channel, event, data)
		if err != nil && !transient(err) {
			return retry.Permanent(err)
		}
		return err
	}, append(n.retryOpts, retry.OnRetry(func(attempt int, err error, wait time.Duration) {
		n.logger.Warn("[NOTIFY] Trigger failed, retrying", append(attrs,
			slog.Int("attempt", attempt), slog.Duration("wait", wait), slog.Any("error", err))...)
	}))...)

	if err != nil {
		n.logger.Error("[NOTIFY] Event not delivered", append(attrs,
			slog.Int("attempts", attempts), slog.Any("error", err))...)
		n.metrics.Notification(event, "failed")
		return false
	}
	n.logger.Info("[NOTIFY] Event delivered", append(attrs, slog.Int("attempts", attempts))...)
	n.metrics.Notification(event, "delivered")
	return true
}

// transient reports whether another attempt could succeed. Broker 4xx
// replies and local validation errors are final.
func transient(err error) bool {
	var se *pusher.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	switch {
	case errors.Is(err, pusher.ErrNotConfigured),
		errors.Is(err, pusher.ErrPayloadTooLarge),
		errors.Is(err, pusher.ErrInvalidChannel):
		return false
	}
	return true
}
