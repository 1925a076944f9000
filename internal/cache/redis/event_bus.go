package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/strikelab/strikebot/internal/domain"
)

// streamMaxLen is the approximate maximum length for event streams, enforced
// via XADD MAXLEN ~.
const streamMaxLen int64 = 10000

// channelPrefix namespaces all bus channels and streams in a shared Redis.
const channelPrefix = "strikebot:"

// EventBus implements domain.EventBus. Every event goes out twice: on a
// Pub/Sub channel for live consumers and onto a capped stream so a consumer
// that connects late can still replay recent history.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// Publish sends a raw payload to the named channel.
func (b *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	name := channelPrefix + channel

	if err := b.rdb.Publish(ctx, name, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}

	args := &redis.XAddArgs{
		Stream: name,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": payload},
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: stream append %s: %w", channel, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.EventBus = (*EventBus)(nil)
