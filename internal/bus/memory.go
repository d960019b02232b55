package bus

import (
	"context"
	"sync"
)

const memoryBuffer = 256

type memorySub struct {
	messages chan Message
	quit     chan struct{}
}

// Memory delivers in process. Each subscriber gets its own ordered
// queue; Publish waits while a live subscriber's queue is full.
type Memory struct {
	mu     sync.Mutex
	subs   map[*memorySub]struct{}
	closed bool
	done   chan struct{}
}

func NewMemory() *Memory {
	return &Memory{
		subs: make(map[*memorySub]struct{}),
		done: make(chan struct{}),
	}
}

func (m *Memory) Publish(ctx context.Context, msg Message) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	subs := make([]*memorySub, 0, len(m.subs))
	for sub := range m.subs {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.messages <- msg:
		case <-sub.quit:
		case <-m.done:
			return ErrClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, handler Handler) error {
	sub := &memorySub{
		messages: make(chan Message, memoryBuffer),
		quit:     make(chan struct{}),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.subs[sub] = struct{}{}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.subs, sub)
		m.mu.Unlock()
		close(sub.quit)
	}()

	for {
		select {
		case msg := <-sub.messages:
			handler(ctx, msg)
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return ErrClosed
		}
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}
