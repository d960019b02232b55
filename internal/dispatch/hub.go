package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/immxrtalbeast/ordergroup/internal/bus"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/presence"
	"github.com/immxrtalbeast/ordergroup/lib/logger/sl"
)

// cleanupTimeout bounds presence cleanup after a connection is gone.
const cleanupTimeout = 5 * time.Second

// Hub holds the connections of this process and feeds them envelopes
// from the bus.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[string]*Client

	bus       bus.Bus
	tracker   presence.Tracker
	announcer *Announcer
	router    *Router
	log       *slog.Logger
}

func NewHub(b bus.Bus, tracker presence.Tracker, announcer *Announcer, router *Router, log *slog.Logger) *Hub {
	return &Hub{
		clients:   make(map[string]map[string]*Client),
		bus:       b,
		tracker:   tracker,
		announcer: announcer,
		router:    router,
		log:       log,
	}
}

// Run delivers bus messages to local connections until ctx is done.
func (h *Hub) Run(ctx context.Context) error {
	h.log.Info("hub started")
	err := h.bus.Subscribe(ctx, h.deliver)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Serve runs one connection until it closes. It owns conn.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, sess Session) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c := newClient(h, conn, sess)
	defer conn.Close()
	// Leave is safe for connections that never finished joining.
	defer h.unregister(ctx, c)

	if err := h.register(ctx, c); err != nil {
		c.log.Error("failed to register connection", sl.Err(err))
		return
	}

	go c.writePump(ctx)
	go c.process(ctx)
	c.readPump(ctx)
}

// Connected is the number of distinct users connected to ch.
func (h *Hub) Connected(ctx context.Context, ch domain.Channel) (int, error) {
	return h.tracker.Count(ctx, ch)
}

func (h *Hub) deliver(_ context.Context, msg bus.Message) {
	var env Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		h.log.Warn("dropping undecodable envelope",
			slog.String("channel", msg.Channel), sl.Err(err))
		return
	}

	h.mu.RLock()
	targets := make([]*Client, 0, len(h.clients[msg.Channel]))
	for _, c := range h.clients[msg.Channel] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(env)
	}
}

func (h *Hub) register(ctx context.Context, c *Client) error {
	key := c.session.Channel.String()

	h.mu.Lock()
	conns, ok := h.clients[key]
	if !ok {
		conns = make(map[string]*Client)
		h.clients[key] = conns
	}
	conns[c.session.ConnID] = c
	h.mu.Unlock()

	changed, err := h.tracker.Join(ctx, c.session.Channel, c.session.ConnID, c.session.UserID)
	if err != nil {
		return err
	}
	c.log.Info("connection joined")
	if changed {
		h.announcer.ConnectedChanged(ctx, c.session.Channel)
	}
	return nil
}

func (h *Hub) unregister(ctx context.Context, c *Client) {
	key := c.session.Channel.String()

	h.mu.Lock()
	if conns, ok := h.clients[key]; ok {
		delete(conns, c.session.ConnID)
		if len(conns) == 0 {
			delete(h.clients, key)
		}
	}
	h.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	changed, err := h.tracker.Leave(ctx, c.session.Channel, c.session.ConnID)
	if err != nil {
		c.log.Error("failed to leave channel", sl.Err(err))
		return
	}
	c.log.Info("connection left")
	if changed {
		h.announcer.ConnectedChanged(ctx, c.session.Channel)
	}
}
