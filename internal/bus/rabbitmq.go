package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const channelHeader = "channel"

// RabbitMQ fans out through one fanout exchange. Every subscriber binds
// its own exclusive auto-delete queue, so each process sees every
// message once. A single queue per subscriber keeps delivery ordered.
type RabbitMQ struct {
	conn     *amqp.Connection
	pub      *amqp.Channel
	exchange string

	mu sync.Mutex // amqp channels are not safe for concurrent publish
}

func DialRabbitMQ(url, exchange string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	if err := pub.ExchangeDeclare(exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = pub.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: declare exchange %s: %w", exchange, err)
	}
	return &RabbitMQ{conn: conn, pub: pub, exchange: exchange}, nil
}

func (r *RabbitMQ) Publish(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := r.pub.PublishWithContext(ctx, r.exchange, "", false, false, amqp.Publishing{
		DeliveryMode: amqp.Transient,
		ContentType:  "application/json",
		Timestamp:    time.Now().UTC(),
		Headers:      amqp.Table{channelHeader: msg.Channel},
		Body:         msg.Payload,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: publish to %s: %w", msg.Channel, err)
	}
	return nil
}

func (r *RabbitMQ) Subscribe(ctx context.Context, handler Handler) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	defer ch.Close()

	queue, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: declare queue: %w", err)
	}
	if err := ch.QueueBind(queue.Name, "", r.exchange, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: bind queue: %w", err)
	}
	deliveries, err := ch.Consume(queue.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume: %w", err)
	}

	for {
		select {
		case d, ok := <-deliveries:
			if !ok {
				return ErrClosed
			}
			channel, _ := d.Headers[channelHeader].(string)
			if channel == "" {
				continue
			}
			handler(ctx, Message{Channel: channel, Payload: d.Body})
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *RabbitMQ) Close() error {
	if r.pub != nil && !r.pub.IsClosed() {
		if err := r.pub.Close(); err != nil {
			return fmt.Errorf("rabbitmq: close channel: %w", err)
		}
	}
	if r.conn != nil && !r.conn.IsClosed() {
		if err := r.conn.Close(); err != nil {
			return fmt.Errorf("rabbitmq: close connection: %w", err)
		}
	}
	return nil
}
