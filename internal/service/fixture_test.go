package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/immxrtalbeast/ordergroup/internal/config"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/repository"
	"github.com/immxrtalbeast/ordergroup/internal/service"
	"github.com/immxrtalbeast/ordergroup/lib/clock"
	"github.com/immxrtalbeast/ordergroup/lib/logger/handlers/slogdiscard"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var testStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func testOrdering() config.Ordering {
	return config.Ordering{
		OrderLimit:             1,
		OrderArchiveDelayHours: 6,
		OrderTimeLimitMinutes:  15,
		LockTimeLimitMinutes:   60,
		JoinRetryLimit:         3,
		Timezone:               "UTC",
	}
}

type recordingNotifier struct {
	mu       sync.Mutex
	channels []domain.Channel
}

func (n *recordingNotifier) MembershipChanged(_ context.Context, channel domain.Channel) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.channels = append(n.channels, channel)
}

func (n *recordingNotifier) Channels() []domain.Channel {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]domain.Channel(nil), n.channels...)
}

type fixture struct {
	store       *repository.InMemoryStore
	users       *repository.InMemoryUserRepository
	groups      *repository.InMemoryGroupRepository
	rooms       *repository.InMemoryRoomRepository
	retries     *repository.InMemoryRetryRepository
	catalog     *repository.InMemoryCatalogRepository
	orders      *repository.InMemoryOrderRepository
	invitations *repository.InMemoryInvitationRepository
	cfg         *config.Live
	clock       *clock.Fake
	notifier    *recordingNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repository.NewInMemoryStore()
	return &fixture{
		store:       store,
		users:       repository.NewInMemoryUserRepository(store),
		groups:      repository.NewInMemoryGroupRepository(store),
		rooms:       repository.NewInMemoryRoomRepository(store),
		retries:     repository.NewInMemoryRetryRepository(store),
		catalog:     repository.NewInMemoryCatalogRepository(store),
		orders:      repository.NewInMemoryOrderRepository(store),
		invitations: repository.NewInMemoryInvitationRepository(store),
		cfg:         config.NewLive("", testOrdering()),
		clock:       clock.NewFake(testStart),
		notifier:    &recordingNotifier{},
	}
}

func (f *fixture) options() []service.Option {
	return []service.Option{service.WithClock(f.clock), service.WithNotifier(f.notifier)}
}

func (f *fixture) admission() *service.AdmissionService {
	return service.NewAdmissionService(f.groups, f.retries, f.cfg, slogdiscard.NewDiscardLogger(), f.options()...)
}

func (f *fixture) orderService() *service.OrderService {
	return service.NewOrderService(f.rooms, f.orders, f.catalog, f.users, f.cfg, slogdiscard.NewDiscardLogger(), f.options()...)
}

func (f *fixture) groupService() *service.GroupService {
	return service.NewGroupService(f.users, f.groups, f.rooms, f.cfg, slogdiscard.NewDiscardLogger(), f.options()...)
}

func (f *fixture) user(t *testing.T, name string) *domain.User {
	t.Helper()
	user := domain.NewUser(name, name+"@example.com", "hash")
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

func (f *fixture) group(t *testing.T, owner *domain.User, pin int) *domain.OrderGroup {
	t.Helper()
	group := domain.NewOrderGroup("Lunch "+owner.Username, owner.ID, pin)
	require.NoError(t, f.groups.Create(context.Background(), group))
	return group
}

func (f *fixture) room(t *testing.T, group *domain.OrderGroup) *domain.OrderRoom {
	t.Helper()
	room := domain.NewOrderRoom(group.ID, "Today")
	require.NoError(t, f.rooms.Create(context.Background(), room))
	return room
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

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
