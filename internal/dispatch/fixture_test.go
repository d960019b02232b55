package dispatch_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/immxrtalbeast/ordergroup/internal/bus"
	"github.com/immxrtalbeast/ordergroup/internal/config"
	"github.com/immxrtalbeast/ordergroup/internal/dispatch"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/presence"
	"github.com/immxrtalbeast/ordergroup/internal/repository"
	"github.com/immxrtalbeast/ordergroup/internal/service"
	"github.com/immxrtalbeast/ordergroup/lib/clock"
	"github.com/immxrtalbeast/ordergroup/lib/logger/handlers/slogdiscard"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 3, 2, 11, 30, 0, 0, time.UTC)

type fixture struct {
	users   *repository.InMemoryUserRepository
	groups  *repository.InMemoryGroupRepository
	rooms   *repository.InMemoryRoomRepository
	catalog *repository.InMemoryCatalogRepository

	bus       *bus.Memory
	tracker   *presence.Memory
	announcer *dispatch.Announcer
	router    *dispatch.Router
	cfg       *config.Live
	clock     *clock.Fake
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := slogdiscard.NewDiscardLogger()
	store := repository.NewInMemoryStore()
	f := &fixture{
		users:   repository.NewInMemoryUserRepository(store),
		groups:  repository.NewInMemoryGroupRepository(store),
		rooms:   repository.NewInMemoryRoomRepository(store),
		catalog: repository.NewInMemoryCatalogRepository(store),
		bus:     bus.NewMemory(),
		clock:   clock.NewFake(testStart),
		cfg: config.NewLive("", config.Ordering{
			OrderLimit:             1,
			OrderArchiveDelayHours: 6,
			OrderTimeLimitMinutes:  15,
			LockTimeLimitMinutes:   60,
			JoinRetryLimit:         3,
			Timezone:               "UTC",
		}),
	}
	t.Cleanup(func() { _ = f.bus.Close() })

	orders := repository.NewInMemoryOrderRepository(store)
	retries := repository.NewInMemoryRetryRepository(store)
	f.tracker = presence.NewMemory(f.clock)
	f.announcer = dispatch.NewAnnouncer(f.bus, log)

	opts := []service.Option{service.WithClock(f.clock), service.WithNotifier(f.announcer)}
	f.router = dispatch.NewRouter(dispatch.Services{
		Orders:    service.NewOrderService(f.rooms, orders, f.catalog, f.users, f.cfg, log, opts...),
		Groups:    service.NewGroupService(f.users, f.groups, f.rooms, f.cfg, log, opts...),
		Admission: service.NewAdmissionService(f.groups, retries, f.cfg, log, opts...),
		Catalog:   service.NewCatalogService(f.catalog, log),
	}, f.tracker, f.announcer, nil, log)
	return f
}

func (f *fixture) user(t *testing.T, name string) *domain.User {
	t.Helper()
	user := domain.NewUser(name, name+"@example.com", "hash")
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

// room creates a group owned by owner with one room both entered.
func (f *fixture) room(t *testing.T, owner *domain.User, pin int) (*domain.OrderGroup, *domain.OrderRoom) {
	t.Helper()
	ctx := context.Background()
	group := domain.NewOrderGroup("Lunch "+owner.Username, owner.ID, pin)
	require.NoError(t, f.groups.Create(ctx, group))
	room := domain.NewOrderRoom(group.ID, "Today")
	require.NoError(t, f.rooms.Create(ctx, room))
	_, err := f.rooms.AddMember(ctx, room.ID, owner.ID)
	require.NoError(t, err)
	return group, room
}

func (f *fixture) menuItem(t *testing.T, restaurantName, name, price string) *domain.MenuItem {
	t.Helper()
	ctx := context.Background()
	restaurant, err := f.catalog.GetRestaurantByName(ctx, restaurantName)
	if err != nil {
		restaurant = domain.NewRestaurant(restaurantName)
		require.NoError(t, f.catalog.CreateRestaurant(ctx, restaurant))
	}
	item := domain.NewMenuItem(restaurant.ID, name, decimal.RequireFromString(price))
	require.NoError(t, f.catalog.CreateMenuItem(ctx, item))
	return item
}

func session(user *domain.User, ch domain.Channel) dispatch.Session {
	return dispatch.Session{ConnID: "conn-" + user.Username, UserID: user.ID, Channel: ch}
}

func inbound(t *testing.T, event dispatch.EventType, message any) dispatch.Inbound {
	t.Helper()
	in := dispatch.Inbound{Type: event}
	if message != nil {
		raw, err := json.Marshal(message)
		require.NoError(t, err)
		in.Message = raw
	}
	return in
}

type frame struct {
	Region string          `json:"region"`
	Type   string          `json:"message_type"`
	Data   json.RawMessage `json:"data"`
}

func decodeFrames(t *testing.T, raw [][]byte) []frame {
	t.Helper()
	out := make([]frame, 0, len(raw))
	for _, r := range raw {
		var f frame
		require.NoError(t, json.Unmarshal(r, &f))
		out = append(out, f)
	}
	return out
}

func regionOf(frames []frame, region string) (frame, bool) {
	for _, f := range frames {
		if f.Region == region {
			return f, true
		}
	}
	return frame{}, false
}

type noticeData struct {
	Level   string `json:"level"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type orderData struct {
	ID    string          `json:"id"`
	State string          `json:"state"`
	Total decimal.Decimal `json:"total"`
	Items []struct {
		ID       string `json:"id"`
		Quantity int    `json:"quantity"`
	} `json:"items"`
	Username string `json:"username"`
}

type formData struct {
	Disabled bool       `json:"disabled"`
	Reason   string     `json:"reason"`
	TimeLeft int        `json:"time_left"`
	Order    *orderData `json:"order"`
}

func notice(t *testing.T, frames []frame) noticeData {
	t.Helper()
	f, ok := regionOf(frames, "notice")
	require.True(t, ok, "no notice frame")
	var n noticeData
	require.NoError(t, json.Unmarshal(f.Data, &n))
	return n
}

func form(t *testing.T, frames []frame) formData {
	t.Helper()
	f, ok := regionOf(frames, "form")
	require.True(t, ok, "no form frame")
	var d formData
	require.NoError(t, json.Unmarshal(f.Data, &d))
	return d
}

// envelopes records everything published on the bus.
type envelopes struct {
	mu   sync.Mutex
	list []dispatch.Envelope
}

func (e *envelopes) handle(_ context.Context, msg bus.Message) {
	var env dispatch.Envelope
	if err := json.Unmarshal(msg.Payload, &env); err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, env)
}

func (e *envelopes) find(channel string, event dispatch.EventType) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, env := range e.list {
		if env.Channel == channel && env.Type == event {
			return true
		}
	}
	return false
}

// record subscribes to the bus and waits until the subscription is live.
func (f *fixture) record(t *testing.T) *envelopes {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	rec := &envelopes{}
	go func() { _ = f.bus.Subscribe(ctx, rec.handle) }()
	require.Eventually(t, func() bool {
		_ = f.announcer.Publish(ctx, dispatch.Envelope{Channel: "ready:check", Type: "ping"})
		return rec.find("ready:check", "ping")
	}, time.Second, 10*time.Millisecond)
	return rec
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
