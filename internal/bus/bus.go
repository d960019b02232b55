// Package bus fans raw messages out to every process serving a channel.
// Each process subscribes once and routes messages to its local
// connections.
package bus

import (
	"context"
	"errors"
)

var ErrClosed = errors.New("bus closed")

// Message is one payload addressed to a channel name.
type Message struct {
	Channel string
	Payload []byte
}

type Handler func(ctx context.Context, msg Message)

type Bus interface {
	Publish(ctx context.Context, msg Message) error
	// Subscribe calls handler for every message on any channel, one at a
	// time in delivery order, until ctx is done or the bus is closed.
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

var (
	_ Bus = (*Memory)(nil)
	_ Bus = (*Redis)(nil)
	_ Bus = (*RabbitMQ)(nil)
)
