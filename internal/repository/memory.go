package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
)

type memberKey struct {
	owner uuid.UUID
	user  uuid.UUID
}

type nameKey struct {
	owner uuid.UUID
	name  string
}

// InMemoryStore keeps every entity behind one lock so joins (items with
// their menu items, orders with their items) read a consistent state.
type InMemoryStore struct {
	mu sync.RWMutex

	users  map[uuid.UUID]*domain.User
	emails map[string]uuid.UUID

	groups       map[uuid.UUID]*domain.OrderGroup
	groupNumbers map[string]uuid.UUID
	groupNames   map[nameKey]uuid.UUID

	rooms       map[uuid.UUID]*domain.OrderRoom
	roomNumbers map[string]uuid.UUID
	roomNames   map[nameKey]uuid.UUID
	roomUsers   map[memberKey]*domain.OrderRoomUser

	retries map[memberKey]*domain.GroupRetry

	restaurants     map[uuid.UUID]*domain.Restaurant
	restaurantNames map[string]uuid.UUID
	menuItems       map[uuid.UUID]*domain.MenuItem
	menuItemNames   map[nameKey]uuid.UUID

	orders     map[uuid.UUID]*domain.Order
	items      map[uuid.UUID]*domain.OrderItem
	orderItems map[uuid.UUID][]uuid.UUID

	invitations    map[uuid.UUID]*domain.Invitation
	invitationKeys map[string]uuid.UUID
	waiting        map[uuid.UUID]*domain.WaitingRegistration
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:           make(map[uuid.UUID]*domain.User),
		emails:          make(map[string]uuid.UUID),
		groups:          make(map[uuid.UUID]*domain.OrderGroup),
		groupNumbers:    make(map[string]uuid.UUID),
		groupNames:      make(map[nameKey]uuid.UUID),
		rooms:           make(map[uuid.UUID]*domain.OrderRoom),
		roomNumbers:     make(map[string]uuid.UUID),
		roomNames:       make(map[nameKey]uuid.UUID),
		roomUsers:       make(map[memberKey]*domain.OrderRoomUser),
		retries:         make(map[memberKey]*domain.GroupRetry),
		restaurants:     make(map[uuid.UUID]*domain.Restaurant),
		restaurantNames: make(map[string]uuid.UUID),
		menuItems:       make(map[uuid.UUID]*domain.MenuItem),
		menuItemNames:   make(map[nameKey]uuid.UUID),
		orders:          make(map[uuid.UUID]*domain.Order),
		items:           make(map[uuid.UUID]*domain.OrderItem),
		orderItems:      make(map[uuid.UUID][]uuid.UUID),
		invitations:     make(map[uuid.UUID]*domain.Invitation),
		invitationKeys:  make(map[string]uuid.UUID),
		waiting:         make(map[uuid.UUID]*domain.WaitingRegistration),
	}
}

// ---- users ----

type InMemoryUserRepository struct {
	s *InMemoryStore
}

func NewInMemoryUserRepository(store *InMemoryStore) *InMemoryUserRepository {
	return &InMemoryUserRepository{s: store}
}

func (r *InMemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := domain.NormalizeEmail(user.Email)
	if _, ok := r.s.emails[email]; ok {
		return ErrUserEmailExists
	}

	stored := *user
	stored.Email = email
	r.s.users[user.ID] = &stored
	r.s.emails[email] = user.ID
	return nil
}

func (r *InMemoryUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	user, ok := r.s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *InMemoryUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.emails[domain.NormalizeEmail(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *r.s.users[id]
	return &copied, nil
}

func (r *InMemoryUserRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*domain.User, 0, len(ids))
	for _, id := range ids {
		if user, ok := r.s.users[id]; ok {
			copied := *user
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Username < result[j].Username })
	return result, nil
}

// ---- groups ----

type InMemoryGroupRepository struct {
	s *InMemoryStore
}

func NewInMemoryGroupRepository(store *InMemoryStore) *InMemoryGroupRepository {
	return &InMemoryGroupRepository{s: store}
}

func (r *InMemoryGroupRepository) Create(ctx context.Context, group *domain.OrderGroup) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := nameKey{owner: group.OwnerID, name: group.Name}
	if _, ok := r.s.groupNames[key]; ok {
		return ErrGroupExists
	}
	if _, ok := r.s.groupNumbers[group.GroupNumber]; ok {
		return ErrGroupExists
	}

	r.s.groups[group.ID] = cloneGroup(group)
	r.s.groupNumbers[group.GroupNumber] = group.ID
	r.s.groupNames[key] = group.ID
	return nil
}

func (r *InMemoryGroupRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OrderGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	group, ok := r.s.groups[id]
	if !ok {
		return nil, ErrGroupNotFound
	}
	return cloneGroup(group), nil
}

func (r *InMemoryGroupRepository) GetByNumber(ctx context.Context, number string) (*domain.OrderGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.groupNumbers[number]
	if !ok {
		return nil, ErrGroupNotFound
	}
	return cloneGroup(r.s.groups[id]), nil
}

func (r *InMemoryGroupRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.OrderGroup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*domain.OrderGroup, 0)
	for _, group := range r.s.groups {
		if group.HasMember(userID) {
			result = append(result, cloneGroup(group))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *InMemoryGroupRepository) AddMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	group, ok := r.s.groups[groupID]
	if !ok {
		return false, ErrGroupNotFound
	}
	if _, ok := r.s.users[userID]; !ok {
		return false, ErrUserNotFound
	}
	for _, member := range group.Members {
		if member == userID {
			return false, nil
		}
	}
	group.Members = append(group.Members, userID)
	return true, nil
}

// ---- rooms ----

type InMemoryRoomRepository struct {
	s *InMemoryStore
}

func NewInMemoryRoomRepository(store *InMemoryStore) *InMemoryRoomRepository {
	return &InMemoryRoomRepository{s: store}
}

func (r *InMemoryRoomRepository) Create(ctx context.Context, room *domain.OrderRoom) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.groups[room.GroupID]; !ok {
		return ErrGroupNotFound
	}
	key := nameKey{owner: room.GroupID, name: room.Name}
	if _, ok := r.s.roomNames[key]; ok {
		return ErrRoomExists
	}
	if _, ok := r.s.roomNumbers[room.RoomNumber]; ok {
		return ErrRoomExists
	}

	r.s.rooms[room.ID] = cloneRoom(room)
	r.s.roomNumbers[room.RoomNumber] = room.ID
	r.s.roomNames[key] = room.ID
	return nil
}

func (r *InMemoryRoomRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.OrderRoom, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	room, ok := r.s.rooms[id]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return cloneRoom(room), nil
}

func (r *InMemoryRoomRepository) GetByNumber(ctx context.Context, number string) (*domain.OrderRoom, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.roomNumbers[number]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return cloneRoom(r.s.rooms[id]), nil
}

func (r *InMemoryRoomRepository) ListByGroup(ctx context.Context, groupID uuid.UUID) ([]*domain.OrderRoom, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*domain.OrderRoom, 0)
	for _, room := range r.s.rooms {
		if room.GroupID == groupID {
			result = append(result, cloneRoom(room))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

func (r *InMemoryRoomRepository) AddMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	room, ok := r.s.rooms[roomID]
	if !ok {
		return false, ErrRoomNotFound
	}
	if room.HasMember(userID) {
		return false, nil
	}
	room.Members = append(room.Members, userID)
	return true, nil
}

func (r *InMemoryRoomRepository) EnsureRoomUser(ctx context.Context, roomID, userID uuid.UUID, joined time.Time) (*domain.OrderRoomUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.rooms[roomID]; !ok {
		return nil, ErrRoomNotFound
	}
	key := memberKey{owner: roomID, user: userID}
	if existing, ok := r.s.roomUsers[key]; ok {
		copied := *existing
		return &copied, nil
	}
	entry := &domain.OrderRoomUser{RoomID: roomID, UserID: userID, Joined: joined.UTC()}
	r.s.roomUsers[key] = entry
	copied := *entry
	return &copied, nil
}

func (r *InMemoryRoomRepository) GetRoomUser(ctx context.Context, roomID, userID uuid.UUID) (*domain.OrderRoomUser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	entry, ok := r.s.roomUsers[memberKey{owner: roomID, user: userID}]
	if !ok {
		return nil, ErrRoomUserNotFound
	}
	copied := *entry
	return &copied, nil
}

// PutRoomUser overwrites the entry record; tests use it to backdate joins.
func (r *InMemoryRoomRepository) PutRoomUser(entry domain.OrderRoomUser) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.roomUsers[memberKey{owner: entry.RoomID, user: entry.UserID}] = &entry
}

// ---- retries ----

type InMemoryRetryRepository struct {
	s *InMemoryStore
}

func NewInMemoryRetryRepository(store *InMemoryStore) *InMemoryRetryRepository {
	return &InMemoryRetryRepository{s: store}
}

func (r *InMemoryRetryRepository) Ensure(ctx context.Context, userID, groupID uuid.UUID, budget int) (*domain.GroupRetry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	key := memberKey{owner: groupID, user: userID}
	row, ok := r.s.retries[key]
	if !ok {
		row = &domain.GroupRetry{UserID: userID, GroupID: groupID, Retry: budget}
		r.s.retries[key] = row
	}
	return cloneRetry(row), nil
}

func (r *InMemoryRetryRepository) Consume(ctx context.Context, userID, groupID uuid.UUID, lockTime time.Time) (*domain.GroupRetry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.s.retries[memberKey{owner: groupID, user: userID}]
	if !ok {
		return nil, false, ErrRetryNotFound
	}
	if row.Retry <= 0 {
		return cloneRetry(row), false, nil
	}
	row.Retry--
	if row.Retry == 0 {
		t := lockTime.UTC()
		row.LockTime = &t
	}
	return cloneRetry(row), true, nil
}

func (r *InMemoryRetryRepository) Reset(ctx context.Context, userID, groupID uuid.UUID, budget int, observed *time.Time) (*domain.GroupRetry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	row, ok := r.s.retries[memberKey{owner: groupID, user: userID}]
	if !ok {
		return nil, ErrRetryNotFound
	}
	if row.Retry == 0 && sameTime(row.LockTime, observed) {
		row.Retry = budget
		row.LockTime = nil
	}
	return cloneRetry(row), nil
}

// Put overwrites a retry row; tests use it to backdate lock times.
func (r *InMemoryRetryRepository) Put(row domain.GroupRetry) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.retries[memberKey{owner: row.GroupID, user: row.UserID}] = cloneRetry(&row)
}

// ---- catalog ----

type InMemoryCatalogRepository struct {
	s *InMemoryStore
}

func NewInMemoryCatalogRepository(store *InMemoryStore) *InMemoryCatalogRepository {
	return &InMemoryCatalogRepository{s: store}
}

func (r *InMemoryCatalogRepository) CreateRestaurant(ctx context.Context, restaurant *domain.Restaurant) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.restaurantNames[restaurant.Name]; ok {
		return ErrRestaurantExists
	}
	copied := *restaurant
	r.s.restaurants[restaurant.ID] = &copied
	r.s.restaurantNames[restaurant.Name] = restaurant.ID
	return nil
}

func (r *InMemoryCatalogRepository) GetRestaurant(ctx context.Context, id uuid.UUID) (*domain.Restaurant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	restaurant, ok := r.s.restaurants[id]
	if !ok {
		return nil, ErrRestaurantNotFound
	}
	copied := *restaurant
	return &copied, nil
}

func (r *InMemoryCatalogRepository) GetRestaurantByName(ctx context.Context, name string) (*domain.Restaurant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.restaurantNames[name]
	if !ok {
		return nil, ErrRestaurantNotFound
	}
	copied := *r.s.restaurants[id]
	return &copied, nil
}

func (r *InMemoryCatalogRepository) ListRestaurants(ctx context.Context) ([]*domain.Restaurant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*domain.Restaurant, 0, len(r.s.restaurants))
	for _, restaurant := range r.s.restaurants {
		copied := *restaurant
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool { return strings.ToLower(result[i].Name) < strings.ToLower(result[j].Name) })
	return result, nil
}

func (r *InMemoryCatalogRepository) CreateMenuItem(ctx context.Context, item *domain.MenuItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.restaurants[item.RestaurantID]; !ok {
		return ErrRestaurantNotFound
	}
	key := nameKey{owner: item.RestaurantID, name: item.Name}
	if _, ok := r.s.menuItemNames[key]; ok {
		return ErrMenuItemExists
	}
	copied := *item
	copied.Restaurant = nil
	r.s.menuItems[item.ID] = &copied
	r.s.menuItemNames[key] = item.ID
	return nil
}

func (r *InMemoryCatalogRepository) GetMenuItem(ctx context.Context, id uuid.UUID) (*domain.MenuItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	item := r.s.menuItemLocked(id)
	if item == nil {
		return nil, ErrMenuItemNotFound
	}
	return item, nil
}

func (r *InMemoryCatalogRepository) ListMenuItems(ctx context.Context, restaurantID uuid.UUID) ([]*domain.MenuItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*domain.MenuItem, 0)
	for id, item := range r.s.menuItems {
		if item.RestaurantID == restaurantID {
			result = append(result, r.s.menuItemLocked(id))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return result, nil
}

// menuItemLocked returns a copy with its restaurant attached. Caller holds mu.
func (s *InMemoryStore) menuItemLocked(id uuid.UUID) *domain.MenuItem {
	item, ok := s.menuItems[id]
	if !ok {
		return nil
	}
	copied := *item
	if restaurant, ok := s.restaurants[item.RestaurantID]; ok {
		r := *restaurant
		copied.Restaurant = &r
	}
	return &copied
}

// ---- orders ----

type InMemoryOrderRepository struct {
	s *InMemoryStore
}

func NewInMemoryOrderRepository(store *InMemoryStore) *InMemoryOrderRepository {
	return &InMemoryOrderRepository{s: store}
}

func (r *InMemoryOrderRepository) CreateOpen(ctx context.Context, order *domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if r.openLocked(order.UserID, order.RoomID) != nil {
		return ErrOpenOrderExists
	}
	copied := *order
	copied.Items = nil
	r.s.orders[order.ID] = &copied
	return nil
}

func (r *InMemoryOrderRepository) GetOpen(ctx context.Context, userID, roomID uuid.UUID) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	order := r.openLocked(userID, roomID)
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return r.hydrateLocked(order), nil
}

func (r *InMemoryOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	order, ok := r.s.orders[id]
	if !ok || order.OrderArchived {
		return nil, ErrOrderNotFound
	}
	return r.hydrateLocked(order), nil
}

func (r *InMemoryOrderRepository) CountFinished(ctx context.Context, userID, roomID uuid.UUID, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	count := 0
	for _, order := range r.s.orders {
		if order.OrderArchived || !order.FinishedOrdering {
			continue
		}
		if order.UserID == userID && order.RoomID == roomID && !order.Created.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *InMemoryOrderRepository) List(ctx context.Context, filter OrderFilter) ([]*domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	result := make([]*domain.Order, 0)
	for _, order := range r.s.orders {
		if order.OrderArchived {
			continue
		}
		if filter.RoomID != uuid.Nil && order.RoomID != filter.RoomID {
			continue
		}
		if filter.UserID != uuid.Nil && order.UserID != filter.UserID {
			continue
		}
		if filter.Finished != nil && order.FinishedOrdering != *filter.Finished {
			continue
		}
		if !filter.Since.IsZero() && order.Created.Before(filter.Since) {
			continue
		}
		result = append(result, r.hydrateLocked(order))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Created.Before(result[j].Created) })
	return result, nil
}

func (r *InMemoryOrderRepository) MarkFinished(ctx context.Context, id uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	order, ok := r.s.orders[id]
	if !ok || order.OrderArchived {
		return false, ErrOrderNotFound
	}
	if order.FinishedOrdering || len(r.s.orderItems[id]) == 0 {
		return false, nil
	}
	order.FinishedOrdering = true
	return true, nil
}

func (r *InMemoryOrderRepository) AddItem(ctx context.Context, item *domain.OrderItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	order, ok := r.s.orders[item.OrderID]
	if !ok || order.OrderArchived {
		return ErrOrderNotFound
	}
	if order.FinishedOrdering {
		return ErrOrderFinished
	}
	if _, ok := r.s.menuItems[item.MenuItemID]; !ok {
		return ErrMenuItemNotFound
	}
	copied := *item
	copied.MenuItem = nil
	r.s.items[item.ID] = &copied
	r.s.orderItems[item.OrderID] = append(r.s.orderItems[item.OrderID], item.ID)
	return nil
}

func (r *InMemoryOrderRepository) GetItem(ctx context.Context, id uuid.UUID) (*domain.OrderItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	item, ok := r.s.items[id]
	if !ok {
		return nil, ErrOrderItemNotFound
	}
	copied := *item
	copied.MenuItem = r.s.menuItemLocked(item.MenuItemID)
	return &copied, nil
}

func (r *InMemoryOrderRepository) DeleteItem(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	item, ok := r.s.items[id]
	if !ok {
		return ErrOrderItemNotFound
	}
	if order, ok := r.s.orders[item.OrderID]; ok && order.FinishedOrdering {
		return ErrOrderFinished
	}
	delete(r.s.items, id)
	ids := r.s.orderItems[item.OrderID]
	for i, candidate := range ids {
		if candidate == id {
			r.s.orderItems[item.OrderID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

func (r *InMemoryOrderRepository) ListItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	return r.itemsLocked(orderID), nil
}

func (r *InMemoryOrderRepository) ArchiveExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var archived int64
	for _, order := range r.s.orders {
		if order.OrderArchived || order.DeleteTimer.After(now) {
			continue
		}
		order.OrderArchived = true
		archived++
	}
	return archived, nil
}

// IsArchived exposes the archived flag, which the default scope hides.
func (r *InMemoryOrderRepository) IsArchived(id uuid.UUID) bool {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	order, ok := r.s.orders[id]
	return ok && order.OrderArchived
}

func (r *InMemoryOrderRepository) openLocked(userID, roomID uuid.UUID) *domain.Order {
	var latest *domain.Order
	for _, order := range r.s.orders {
		if order.OrderArchived || order.FinishedOrdering {
			continue
		}
		if order.UserID != userID || order.RoomID != roomID {
			continue
		}
		if latest == nil || order.Created.After(latest.Created) {
			latest = order
		}
	}
	return latest
}

func (r *InMemoryOrderRepository) hydrateLocked(order *domain.Order) *domain.Order {
	copied := *order
	copied.Items = r.itemsLocked(order.ID)
	return &copied
}

func (r *InMemoryOrderRepository) itemsLocked(orderID uuid.UUID) []domain.OrderItem {
	ids := r.s.orderItems[orderID]
	result := make([]domain.OrderItem, 0, len(ids))
	for _, id := range ids {
		item := *r.s.items[id]
		item.MenuItem = r.s.menuItemLocked(item.MenuItemID)
		result = append(result, item)
	}
	return result
}

// ---- invitations ----

type InMemoryInvitationRepository struct {
	s *InMemoryStore
}

func NewInMemoryInvitationRepository(store *InMemoryStore) *InMemoryInvitationRepository {
	return &InMemoryInvitationRepository{s: store}
}

func (r *InMemoryInvitationRepository) Create(ctx context.Context, invitation *domain.Invitation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	copied := *invitation
	r.s.invitations[invitation.ID] = &copied
	r.s.invitationKeys[invitation.Key] = invitation.ID
	return nil
}

func (r *InMemoryInvitationRepository) GetByKey(ctx context.Context, key string) (*domain.Invitation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	id, ok := r.s.invitationKeys[key]
	if !ok {
		return nil, ErrInvitationNotFound
	}
	copied := *r.s.invitations[id]
	return &copied, nil
}

func (r *InMemoryInvitationRepository) MarkSent(ctx context.Context, id uuid.UUID, sent time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	invitation, ok := r.s.invitations[id]
	if !ok {
		return ErrInvitationNotFound
	}
	t := sent.UTC()
	invitation.Sent = &t
	return nil
}

func (r *InMemoryInvitationRepository) MarkAccepted(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	invitation, ok := r.s.invitations[id]
	if !ok {
		return ErrInvitationNotFound
	}
	if invitation.Accepted {
		return ErrInvitationAccepted
	}
	invitation.Accepted = true
	return nil
}

func (r *InMemoryInvitationRepository) CreateWaiting(ctx context.Context, waiting *domain.WaitingRegistration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	copied := *waiting
	copied.Email = domain.NormalizeEmail(waiting.Email)
	r.s.waiting[waiting.ID] = &copied
	return nil
}

func (r *InMemoryInvitationRepository) ListWaiting(ctx context.Context, email string) ([]*domain.WaitingRegistration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	email = domain.NormalizeEmail(email)
	result := make([]*domain.WaitingRegistration, 0)
	for _, waiting := range r.s.waiting {
		if waiting.Email == email && !waiting.Redeemed {
			copied := *waiting
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (r *InMemoryInvitationRepository) Redeem(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	waiting, ok := r.s.waiting[id]
	if !ok {
		return ErrWaitingNotFound
	}
	waiting.Redeemed = true
	return nil
}

func cloneGroup(group *domain.OrderGroup) *domain.OrderGroup {
	copied := *group
	copied.Members = append([]uuid.UUID(nil), group.Members...)
	return &copied
}

func cloneRoom(room *domain.OrderRoom) *domain.OrderRoom {
	copied := *room
	copied.Members = append([]uuid.UUID(nil), room.Members...)
	return &copied
}

func cloneRetry(row *domain.GroupRetry) *domain.GroupRetry {
	copied := *row
	if row.LockTime != nil {
		t := *row.LockTime
		copied.LockTime = &t
	}
	return &copied
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
