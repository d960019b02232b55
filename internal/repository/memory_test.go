package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryRetryRepository_ConsumeNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryRetryRepository(repository.NewInMemoryStore())
	user, group := uuid.New(), uuid.New()

	_, err := repo.Ensure(ctx, user, group, 3)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		consumed int
	)
	lockTime := time.Now().UTC()
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := repo.Consume(ctx, user, group, lockTime)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				consumed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	row, err := repo.Ensure(ctx, user, group, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, consumed)
	assert.Equal(t, 0, row.Retry)
	require.NotNil(t, row.LockTime)
	assert.True(t, row.LockTime.Equal(lockTime))
}

func TestInMemoryRetryRepository_ResetRequiresObservedLock(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryRetryRepository(repository.NewInMemoryStore())
	user, group := uuid.New(), uuid.New()

	locked := time.Now().Add(-2 * time.Hour).UTC()
	repo.Put(domain.GroupRetry{UserID: user, GroupID: group, Retry: 0, LockTime: &locked})

	other := locked.Add(time.Minute)
	row, err := repo.Reset(ctx, user, group, 3, &other)
	require.NoError(t, err)
	assert.Equal(t, 0, row.Retry, "stale observation must not reset")

	row, err = repo.Reset(ctx, user, group, 3, &locked)
	require.NoError(t, err)
	assert.Equal(t, 3, row.Retry)
	assert.Nil(t, row.LockTime)
}

func TestInMemoryOrderRepository_SingleOpenOrder(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryOrderRepository(repository.NewInMemoryStore())
	user, room := uuid.New(), uuid.New()
	now := time.Now()

	require.NoError(t, repo.CreateOpen(ctx, domain.NewOrder(user, room, now, time.Hour)))
	err := repo.CreateOpen(ctx, domain.NewOrder(user, room, now, time.Hour))
	assert.ErrorIs(t, err, repository.ErrOpenOrderExists)

	require.NoError(t, repo.CreateOpen(ctx, domain.NewOrder(uuid.New(), room, now, time.Hour)))
}

func TestInMemoryOrderRepository_MarkFinished(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryStore()
	catalog := repository.NewInMemoryCatalogRepository(store)
	orders := repository.NewInMemoryOrderRepository(store)

	restaurant := domain.NewRestaurant("Pizza Corner")
	require.NoError(t, catalog.CreateRestaurant(ctx, restaurant))
	menuItem := domain.NewMenuItem(restaurant.ID, "Margherita", decimal.RequireFromString("9.50"))
	require.NoError(t, catalog.CreateMenuItem(ctx, menuItem))

	order := domain.NewOrder(uuid.New(), uuid.New(), time.Now(), time.Hour)
	require.NoError(t, orders.CreateOpen(ctx, order))

	changed, err := orders.MarkFinished(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, changed, "empty order stays open")

	require.NoError(t, orders.AddItem(ctx, domain.NewOrderItem(order.ID, menuItem, 2)))

	changed, err = orders.MarkFinished(ctx, order.ID)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = orders.MarkFinished(ctx, order.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	stored, err := orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	require.NotNil(t, stored.Items[0].MenuItem.Restaurant)
	assert.Equal(t, "Pizza Corner", stored.Items[0].MenuItem.Restaurant.Name)
	assert.True(t, decimal.RequireFromString("19.00").Equal(stored.Total()))
}

func TestInMemoryOrderRepository_FinishedOrderRejectsItemEdits(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryStore()
	catalog := repository.NewInMemoryCatalogRepository(store)
	orders := repository.NewInMemoryOrderRepository(store)

	restaurant := domain.NewRestaurant("Pizza Corner")
	require.NoError(t, catalog.CreateRestaurant(ctx, restaurant))
	menuItem := domain.NewMenuItem(restaurant.ID, "Margherita", decimal.RequireFromString("9.50"))
	require.NoError(t, catalog.CreateMenuItem(ctx, menuItem))

	order := domain.NewOrder(uuid.New(), uuid.New(), time.Now(), time.Hour)
	require.NoError(t, orders.CreateOpen(ctx, order))
	first := domain.NewOrderItem(order.ID, menuItem, 1)
	require.NoError(t, orders.AddItem(ctx, first))

	changed, err := orders.MarkFinished(ctx, order.ID)
	require.NoError(t, err)
	require.True(t, changed)

	err = orders.AddItem(ctx, domain.NewOrderItem(order.ID, menuItem, 3))
	assert.ErrorIs(t, err, repository.ErrOrderFinished)

	err = orders.DeleteItem(ctx, first.ID)
	assert.ErrorIs(t, err, repository.ErrOrderFinished)

	stored, err := orders.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, first.ID, stored.Items[0].ID)
}

func TestInMemoryOrderRepository_ArchiveExpired(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewInMemoryOrderRepository(repository.NewInMemoryStore())
	now := time.Now().UTC()

	expired := domain.NewOrder(uuid.New(), uuid.New(), now.Add(-7*time.Hour), 6*time.Hour)
	fresh := domain.NewOrder(uuid.New(), uuid.New(), now, 6*time.Hour)
	require.NoError(t, repo.CreateOpen(ctx, expired))
	require.NoError(t, repo.CreateOpen(ctx, fresh))

	n, err := repo.ArchiveExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = repo.ArchiveExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	assert.True(t, repo.IsArchived(expired.ID))
	assert.False(t, repo.IsArchived(fresh.ID))

	_, err = repo.GetByID(ctx, expired.ID)
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)

	listed, err := repo.List(ctx, repository.OrderFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, fresh.ID, listed[0].ID)
}

func TestInMemoryGroupRepository_UniqueNamePerOwner(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryStore()
	users := repository.NewInMemoryUserRepository(store)
	groups := repository.NewInMemoryGroupRepository(store)

	owner := domain.NewUser("owner", "Owner@Example.com", "hash")
	require.NoError(t, users.Create(ctx, owner))

	require.NoError(t, groups.Create(ctx, domain.NewOrderGroup("Lunch", owner.ID, 1234)))
	err := groups.Create(ctx, domain.NewOrderGroup("Lunch", owner.ID, 4321))
	assert.ErrorIs(t, err, repository.ErrGroupExists)

	found, err := users.GetByEmail(ctx, "owner@example.com")
	require.NoError(t, err)
	assert.Equal(t, owner.ID, found.ID)

	err = users.Create(ctx, domain.NewUser("other", "OWNER@example.com", "hash"))
	assert.ErrorIs(t, err, repository.ErrUserEmailExists)
}

func TestInMemoryRoomRepository_EnsureRoomUserKeepsFirstJoin(t *testing.T) {
	ctx := context.Background()
	store := repository.NewInMemoryStore()
	groups := repository.NewInMemoryGroupRepository(store)
	rooms := repository.NewInMemoryRoomRepository(store)

	group := domain.NewOrderGroup("Lunch", uuid.New(), 1)
	require.NoError(t, groups.Create(ctx, group))
	room := domain.NewOrderRoom(group.ID, "Friday")
	require.NoError(t, rooms.Create(ctx, room))

	user := uuid.New()
	first := time.Now().Add(-10 * time.Minute).UTC()
	entry, err := rooms.EnsureRoomUser(ctx, room.ID, user, first)
	require.NoError(t, err)
	assert.True(t, entry.Joined.Equal(first))

	entry, err = rooms.EnsureRoomUser(ctx, room.ID, user, time.Now())
	require.NoError(t, err)
	assert.True(t, entry.Joined.Equal(first))
}
