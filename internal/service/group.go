package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/config"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/repository"
	"github.com/immxrtalbeast/ordergroup/lib/clock"
	"github.com/immxrtalbeast/ordergroup/lib/logger/sl"
)

const maxNameLength = 255

// RoomEntry is what a user gets back on entering a room.
type RoomEntry struct {
	Room     *domain.OrderRoom
	Group    *domain.OrderGroup
	Joined   *domain.OrderRoomUser
	TimeLeft int
}

type GroupService struct {
	users    repository.UserRepository
	groups   repository.GroupRepository
	rooms    repository.RoomRepository
	cfg      config.Provider
	notifier MembershipNotifier
	clock    clock.Clock
	log      *slog.Logger
}

func NewGroupService(
	users repository.UserRepository,
	groups repository.GroupRepository,
	rooms repository.RoomRepository,
	cfg config.Provider,
	log *slog.Logger,
	opts ...Option,
) *GroupService {
	o := buildOptions(opts)
	return &GroupService{
		users:    users,
		groups:   groups,
		rooms:    rooms,
		cfg:      cfg,
		notifier: o.notifier,
		clock:    o.clock,
		log:      loggerOrDefault(log),
	}
}

// CreateGroup makes the owner its first member. A nil pin draws a
// random one.
func (s *GroupService) CreateGroup(ctx context.Context, ownerID uuid.UUID, name string, pin *int) (*domain.OrderGroup, error) {
	const op = "service.group.create"
	log := s.log.With(slog.String("op", op), slog.String("owner_id", ownerID.String()))

	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return nil, ErrInvalidName
	}

	value := rand.IntN(domain.MaxPIN + 1)
	if pin != nil {
		if *pin < 0 || *pin > domain.MaxPIN {
			return nil, ErrInvalidPIN
		}
		value = *pin
	}

	if _, err := s.users.GetByID(ctx, ownerID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	group := domain.NewOrderGroup(name, ownerID, value)
	group.CreatedAt = s.clock.Now()
	if err := s.groups.Create(ctx, group); err != nil {
		log.Info("failed to create group", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("group created", slog.String("group_number", group.GroupNumber))
	return group, nil
}

func (s *GroupService) GetGroupByNumber(ctx context.Context, number string) (*domain.OrderGroup, error) {
	return s.groups.GetByNumber(ctx, number)
}

func (s *GroupService) ListGroups(ctx context.Context, userID uuid.UUID) ([]*domain.OrderGroup, error) {
	const op = "service.group.list"

	groups, err := s.groups.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return groups, nil
}

func (s *GroupService) GroupMembers(ctx context.Context, groupID uuid.UUID) ([]*domain.User, error) {
	const op = "service.group.members"

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	users, err := s.users.ListByIDs(ctx, group.Members)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

func (s *GroupService) CreateRoom(ctx context.Context, userID, groupID uuid.UUID, name string) (*domain.OrderRoom, error) {
	const op = "service.group.create_room"
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", userID.String()),
		slog.String("group_id", groupID.String()),
	)

	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return nil, ErrInvalidName
	}

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !group.HasMember(userID) {
		return nil, ErrNotGroupMember
	}

	room := domain.NewOrderRoom(groupID, name)
	room.CreatedAt = s.clock.Now()
	room.Members = []uuid.UUID{userID}
	if err := s.rooms.Create(ctx, room); err != nil {
		log.Info("failed to create room", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.notifier.MembershipChanged(ctx, domain.GroupChannel(group.GroupNumber))
	log.Info("room created", slog.String("room_number", room.RoomNumber))
	return room, nil
}

func (s *GroupService) GetRoomByNumber(ctx context.Context, number string) (*domain.OrderRoom, error) {
	return s.rooms.GetByNumber(ctx, number)
}

func (s *GroupService) ListRooms(ctx context.Context, groupID uuid.UUID) ([]*domain.OrderRoom, error) {
	const op = "service.group.list_rooms"

	rooms, err := s.rooms.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return rooms, nil
}

func (s *GroupService) RoomMembers(ctx context.Context, roomID uuid.UUID) ([]*domain.User, error) {
	const op = "service.group.room_members"

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	users, err := s.users.ListByIDs(ctx, room.Members)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

// EnterRoom adds a group member to the room and starts their ordering
// window on first entry. Later entries keep the original join time.
func (s *GroupService) EnterRoom(ctx context.Context, userID, roomID uuid.UUID) (*RoomEntry, error) {
	const op = "service.group.enter_room"
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", userID.String()),
		slog.String("room_id", roomID.String()),
	)

	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	group, err := s.groups.GetByID(ctx, room.GroupID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !group.HasMember(userID) {
		return nil, ErrNotGroupMember
	}

	changed, err := s.rooms.AddMember(ctx, roomID, userID)
	if err != nil {
		log.Error("failed to add room member", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if changed {
		room.Members = append(room.Members, userID)
		s.notifier.MembershipChanged(ctx, domain.RoomChannel(room.RoomNumber))
	}

	now := s.clock.Now()
	entry, err := s.rooms.EnsureRoomUser(ctx, roomID, userID, now)
	if err != nil {
		log.Error("failed to record room entry", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RoomEntry{
		Room:     room,
		Group:    group,
		Joined:   entry,
		TimeLeft: entry.TimeLeft(now, s.cfg.Get().TimeLimit()),
	}, nil
}
