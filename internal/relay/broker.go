package relay

import (
	"context"

	"budgetbot/internal/pusher"
)

// Publisher hands a trigger to whatever delivers it to sockets.
type Publisher interface {
	Publish(ctx context.Context, channel, event string, data []byte) error
}

// LocalPublisher delivers straight into a hub in the same process.
type LocalPublisher struct {
	Hub *Hub
}

func (p LocalPublisher) Publish(ctx context.Context, channel, event string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.Hub.Deliver(channel, event, data)
	return nil
}

// Broker lets the notifier talk to the relay instead of hosted Pusher.
type Broker struct {
	key    string
	secret string
	pub    Publisher
}

func NewBroker(key, secret string, pub Publisher) *Broker {
	return &Broker{key: key, secret: secret, pub: pub}
}

func (b *Broker) Configured() bool {
	return b.key != "" && b.secret != "" && b.pub != nil
}

func (b *Broker) Trigger(ctx context.Context, channel, event string, data []byte) error {
	if !b.Configured() {
		return pusher.ErrNotConfigured
	}
	if !pusher.ValidChannel(channel) {
		return pusher.ErrInvalidChannel
	}
	return b.pub.Publish(ctx, channel, event, data)
}

func (b *Broker) Authorize(socketID, channel string) (pusher.AuthResponse, error) {
	if !b.Configured() {
		return pusher.AuthResponse{}, pusher.ErrNotConfigured
	}
	return pusher.AuthorizeChannel(b.key, b.secret, socketID, channel)
}
