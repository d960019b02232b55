package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.User, error)
}

type GroupRepository interface {
	Create(ctx context.Context, group *domain.OrderGroup) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.OrderGroup, error)
	GetByNumber(ctx context.Context, number string) (*domain.OrderGroup, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]*domain.OrderGroup, error)
	// AddMember is idempotent; it reports whether the member set changed.
	AddMember(ctx context.Context, groupID, userID uuid.UUID) (bool, error)
}

type RoomRepository interface {
	Create(ctx context.Context, room *domain.OrderRoom) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.OrderRoom, error)
	GetByNumber(ctx context.Context, number string) (*domain.OrderRoom, error)
	ListByGroup(ctx context.Context, groupID uuid.UUID) ([]*domain.OrderRoom, error)
	AddMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error)
	// EnsureRoomUser creates the entry record once and returns the stored one.
	EnsureRoomUser(ctx context.Context, roomID, userID uuid.UUID, joined time.Time) (*domain.OrderRoomUser, error)
	GetRoomUser(ctx context.Context, roomID, userID uuid.UUID) (*domain.OrderRoomUser, error)
}

// RetryRepository owns GroupRetry rows. Every mutation is a single
// conditional write so concurrent attempts cannot lose a decrement.
type RetryRepository interface {
	Ensure(ctx context.Context, userID, groupID uuid.UUID, budget int) (*domain.GroupRetry, error)
	// Consume decrements retry when it is positive and stamps lockTime
	// when it reaches zero. ok is false when nothing was left to consume.
	Consume(ctx context.Context, userID, groupID uuid.UUID, lockTime time.Time) (retry *domain.GroupRetry, ok bool, err error)
	// Reset restores the budget only if the row is still locked with the
	// observed lock time (nil matches a missing lock time).
	Reset(ctx context.Context, userID, groupID uuid.UUID, budget int, observed *time.Time) (*domain.GroupRetry, error)
}

type CatalogRepository interface {
	CreateRestaurant(ctx context.Context, restaurant *domain.Restaurant) error
	GetRestaurant(ctx context.Context, id uuid.UUID) (*domain.Restaurant, error)
	GetRestaurantByName(ctx context.Context, name string) (*domain.Restaurant, error)
	ListRestaurants(ctx context.Context) ([]*domain.Restaurant, error)
	CreateMenuItem(ctx context.Context, item *domain.MenuItem) error
	GetMenuItem(ctx context.Context, id uuid.UUID) (*domain.MenuItem, error)
	// ListMenuItems returns the restaurant's items, newest first.
	ListMenuItems(ctx context.Context, restaurantID uuid.UUID) ([]*domain.MenuItem, error)
}

// OrderFilter narrows order listings. Archived orders are never returned.
type OrderFilter struct {
	RoomID   uuid.UUID
	UserID   uuid.UUID
	Finished *bool
	Since    time.Time
}

type OrderRepository interface {
	// CreateOpen stores order unless (user, room) already has an open
	// order, in which case it returns ErrOpenOrderExists.
	CreateOpen(ctx context.Context, order *domain.Order) error
	GetOpen(ctx context.Context, userID, roomID uuid.UUID) (*domain.Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	CountFinished(ctx context.Context, userID, roomID uuid.UUID, since time.Time) (int, error)
	List(ctx context.Context, filter OrderFilter) ([]*domain.Order, error)
	// MarkFinished flips finished_ordering on an open order that has
	// items. changed is false when the order was already finished.
	MarkFinished(ctx context.Context, id uuid.UUID) (changed bool, err error)
	// AddItem and DeleteItem fail with ErrOrderFinished once the order is
	// finished. They serialize with MarkFinished on the order row.
	AddItem(ctx context.Context, item *domain.OrderItem) error
	GetItem(ctx context.Context, id uuid.UUID) (*domain.OrderItem, error)
	DeleteItem(ctx context.Context, id uuid.UUID) error
	ListItems(ctx context.Context, orderID uuid.UUID) ([]domain.OrderItem, error)
	// ArchiveExpired archives unarchived orders whose timer has passed and
	// returns how many rows changed.
	ArchiveExpired(ctx context.Context, now time.Time) (int64, error)
}

type InvitationRepository interface {
	Create(ctx context.Context, invitation *domain.Invitation) error
	GetByKey(ctx context.Context, key string) (*domain.Invitation, error)
	MarkSent(ctx context.Context, id uuid.UUID, sent time.Time) error
	// MarkAccepted returns ErrInvitationAccepted if it was accepted before.
	MarkAccepted(ctx context.Context, id uuid.UUID) error
	CreateWaiting(ctx context.Context, waiting *domain.WaitingRegistration) error
	ListWaiting(ctx context.Context, email string) ([]*domain.WaitingRegistration, error)
	Redeem(ctx context.Context, id uuid.UUID) error
}

var (
	_ UserRepository       = (*InMemoryUserRepository)(nil)
	_ GroupRepository      = (*InMemoryGroupRepository)(nil)
	_ RoomRepository       = (*InMemoryRoomRepository)(nil)
	_ RetryRepository      = (*InMemoryRetryRepository)(nil)
	_ CatalogRepository    = (*InMemoryCatalogRepository)(nil)
	_ OrderRepository      = (*InMemoryOrderRepository)(nil)
	_ InvitationRepository = (*InMemoryInvitationRepository)(nil)

	_ UserRepository       = (*GormUserRepository)(nil)
	_ GroupRepository      = (*GormGroupRepository)(nil)
	_ RoomRepository       = (*GormRoomRepository)(nil)
	_ RetryRepository      = (*GormRetryRepository)(nil)
	_ CatalogRepository    = (*GormCatalogRepository)(nil)
	_ OrderRepository      = (*GormOrderRepository)(nil)
	_ InvitationRepository = (*GormInvitationRepository)(nil)
)
