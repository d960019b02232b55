package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/repository"
	"github.com/immxrtalbeast/ordergroup/lib/clock"
	"github.com/shopspring/decimal"
)

var (
	ErrInvalidPIN      = errors.New("pin must be a number between 0 and 9999")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrNotGroupMember  = errors.New("user is not a member of the group")
	ErrNotRoomMember   = errors.New("user has not entered the room")
	ErrInvalidName     = errors.New("name is required")
	ErrInvalidEmail    = errors.New("valid email is required")
)

type AdmissionInteractor interface {
	CanAttempt(ctx context.Context, userID, groupID uuid.UUID) (*domain.GroupRetry, bool, error)
	Attempt(ctx context.Context, userID, groupID uuid.UUID, pin string) (AdmissionResult, error)
}

type OrderInteractor interface {
	GetOrCreateOpenOrder(ctx context.Context, userID, roomID uuid.UUID) (OrderOutcome, error)
	AddItem(ctx context.Context, userID, orderID, menuItemID uuid.UUID, quantity int) (ItemResult, error)
	DeleteItem(ctx context.Context, userID, itemID uuid.UUID) (ItemResult, error)
	Finish(ctx context.Context, userID, orderID uuid.UUID) (FinishResult, error)
	ComputeTotal(ctx context.Context, orderID uuid.UUID) (decimal.Decimal, error)
	MembersOrders(ctx context.Context, roomID uuid.UUID) ([]*domain.Order, error)
	UserOrders(ctx context.Context, userID, roomID uuid.UUID) ([]*domain.Order, error)
	Summarize(ctx context.Context, roomID uuid.UUID, by SummaryBy) (*Summary, error)
	Usernames(ctx context.Context, orders []*domain.Order) (map[uuid.UUID]string, error)
}

type GroupInteractor interface {
	CreateGroup(ctx context.Context, ownerID uuid.UUID, name string, pin *int) (*domain.OrderGroup, error)
	GetGroupByNumber(ctx context.Context, number string) (*domain.OrderGroup, error)
	ListGroups(ctx context.Context, userID uuid.UUID) ([]*domain.OrderGroup, error)
	GroupMembers(ctx context.Context, groupID uuid.UUID) ([]*domain.User, error)
	CreateRoom(ctx context.Context, userID, groupID uuid.UUID, name string) (*domain.OrderRoom, error)
	GetRoomByNumber(ctx context.Context, number string) (*domain.OrderRoom, error)
	ListRooms(ctx context.Context, groupID uuid.UUID) ([]*domain.OrderRoom, error)
	RoomMembers(ctx context.Context, roomID uuid.UUID) ([]*domain.User, error)
	EnterRoom(ctx context.Context, userID, roomID uuid.UUID) (*RoomEntry, error)
}

type UserInteractor interface {
	Signup(ctx context.Context, username, email, password string) (*domain.User, error)
	Login(ctx context.Context, email, password string) (string, *domain.User, error)
	ParseToken(token string) (uuid.UUID, error)
	GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

type InvitationInteractor interface {
	Invite(ctx context.Context, inviterID, groupID uuid.UUID, email string) (*InviteResult, error)
	Accept(ctx context.Context, key string) (*AcceptResult, error)
}

type CatalogInteractor interface {
	ListRestaurants(ctx context.Context) ([]*domain.Restaurant, error)
	ListMenuItems(ctx context.Context, restaurantID uuid.UUID) ([]*domain.MenuItem, error)
	GetMenuItem(ctx context.Context, id uuid.UUID) (*domain.MenuItem, error)
}

// MembershipNotifier is told when the member set behind a channel changes.
type MembershipNotifier interface {
	MembershipChanged(ctx context.Context, channel domain.Channel)
}

type nopNotifier struct{}

func (nopNotifier) MembershipChanged(context.Context, domain.Channel) {}

type Option func(*options)

type options struct {
	clock    clock.Clock
	notifier MembershipNotifier
}

// WithClock replaces the wall clock, which tests use to pin time.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithNotifier routes membership changes to the real-time layer.
func WithNotifier(n MembershipNotifier) Option {
	return func(o *options) {
		o.notifier = n
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: clock.Real(), notifier: nopNotifier{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func loggerOrDefault(log *slog.Logger) *slog.Logger {
	if log == nil {
		return slog.Default()
	}
	return log
}

// IsNotFound reports integrity failures: a referenced entity is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, repository.ErrUserNotFound) ||
		errors.Is(err, repository.ErrGroupNotFound) ||
		errors.Is(err, repository.ErrRoomNotFound) ||
		errors.Is(err, repository.ErrOrderNotFound) ||
		errors.Is(err, repository.ErrOrderItemNotFound) ||
		errors.Is(err, repository.ErrMenuItemNotFound) ||
		errors.Is(err, repository.ErrRestaurantNotFound)
}
