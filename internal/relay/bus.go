package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

// DefaultTopic is the Redis pub/sub channel triggers travel on.
const DefaultTopic = "relay:events"

// Deliverer is satisfied by *Hub.
type Deliverer interface {
	Deliver(channel, event string, data []byte) int
}

type envelope struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data"`
}

// RedisBus fans triggers out to every process running a hub.
type RedisBus struct {
	rdb    *redis.Client
	topic  string
	logger *slog.Logger
}

func NewRedisBus(rdb *redis.Client, topic string, logger *slog.Logger) *RedisBus {
	if topic == "" {
		topic = DefaultTopic
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisBus{rdb: rdb, topic: topic, logger: logger}
}

// Publish sends one trigger to every subscribed process.
func (b *RedisBus) Publish(ctx context.Context, channel, event string, data []byte) error {
	payload, err := json.Marshal(envelope{Channel: channel, Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.topic, payload).Err(); err != nil {
		b.logger.Error("[REDIS] Failed to publish trigger", "topic", b.topic, "channel", channel, "event", event, "error", err)
		return fmt.Errorf("publishing to %s: %w", b.topic, err)
	}
	return nil
}

// Subscription is a confirmed subscription to the bus topic.
type Subscription struct {
	ps     *redis.PubSub
	topic  string
	logger *slog.Logger
}

// Subscribe joins the topic and waits for Redis to confirm it, so that a
// Publish issued after Subscribe returns is never missed.
func (b *RedisBus) Subscribe(ctx context.Context) (*Subscription, error) {
	ps := b.rdb.Subscribe(ctx, b.topic)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribing to %s: %w", b.topic, err)
	}
	b.logger.Info("[REDIS] Subscribed to relay topic", "topic", b.topic)
	return &Subscription{ps: ps, topic: b.topic, logger: b.logger}, nil
}

// Forward delivers every message into d until ctx is done or the
// subscription is closed.
func (s *Subscription) Forward(ctx context.Context, d Deliverer) {
	defer s.ps.Close()
	ch := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("[REDIS] Relay subscription stopped", "topic", s.topic)
			return
		case msg, ok := <-ch:
			if !ok {
				s.logger.Info("[REDIS] Relay pub/sub channel closed", "topic", s.topic)
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				s.logger.Error("[REDIS] Error unmarshaling trigger", "topic", s.topic, "error", err)
				continue
			}
			d.Deliver(env.Channel, env.Event, env.Data)
		}
	}
}

func (s *Subscription) Close() error {
	return s.ps.Close()
}
