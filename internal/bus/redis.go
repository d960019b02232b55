package bus

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
)

// Redis fans out over pub/sub. Redis keeps the order of messages from
// one publishing connection, which covers one sender per channel.
type Redis struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedis(client *redis.Client, keyPrefix string) *Redis {
	if client == nil {
		panic("redis client cannot be nil for bus")
	}
	if keyPrefix == "" {
		keyPrefix = "og:"
	}
	return &Redis{client: client, keyPrefix: keyPrefix}
}

func (r *Redis) topic(channel string) string {
	return r.keyPrefix + "bus:" + channel
}

func (r *Redis) Publish(ctx context.Context, msg Message) error {
	if err := r.client.Publish(ctx, r.topic(msg.Channel), msg.Payload).Err(); err != nil {
		return fmt.Errorf("redis: failed to publish to %s: %w", msg.Channel, err)
	}
	return nil
}

func (r *Redis) Subscribe(ctx context.Context, handler Handler) error {
	pubsub := r.client.PSubscribe(ctx, r.topic("*"))
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reading.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: failed to subscribe: %w", err)
	}

	prefix := r.topic("")
	messages := pubsub.Channel()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return ErrClosed
			}
			handler(ctx, Message{
				Channel: strings.TrimPrefix(msg.Channel, prefix),
				Payload: []byte(msg.Payload),
			})
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close leaves the client open; its owner closes it.
func (r *Redis) Close() error {
	return nil
}
