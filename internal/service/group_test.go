package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/repository"
	"github.com/immxrtalbeast/ordergroup/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateGroup(t *testing.T) {
	f := newFixture(t)
	svc := f.groupService()
	ctx := context.Background()
	owner := f.user(t, "owner")

	pin := 1234
	group, err := svc.CreateGroup(ctx, owner.ID, " Lunch ", &pin)
	require.NoError(t, err)
	assert.Equal(t, "Lunch", group.Name)
	assert.Equal(t, 1234, group.PIN)
	assert.True(t, group.HasMember(owner.ID))
	assert.Len(t, group.GroupNumber, 12)

	random, err := svc.CreateGroup(ctx, owner.ID, "Dinner", nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, random.PIN, 0)
	assert.LessOrEqual(t, random.PIN, domain.MaxPIN)

	_, err = svc.CreateGroup(ctx, owner.ID, "Lunch", &pin)
	assert.ErrorIs(t, err, repository.ErrGroupExists)

	bad := 10000
	_, err = svc.CreateGroup(ctx, owner.ID, "Breakfast", &bad)
	assert.ErrorIs(t, err, service.ErrInvalidPIN)

	_, err = svc.CreateGroup(ctx, owner.ID, "   ", nil)
	assert.ErrorIs(t, err, service.ErrInvalidName)

	_, err = svc.CreateGroup(ctx, uuid.New(), "Orphan", nil)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)

	found, err := svc.GetGroupByNumber(ctx, group.GroupNumber)
	require.NoError(t, err)
	assert.Equal(t, group.ID, found.ID)

	groups, err := svc.ListGroups(ctx, owner.ID)
	require.NoError(t, err)
	assert.Len(t, groups, 2)
}

func TestCreateRoom_RequiresMembership(t *testing.T) {
	f := newFixture(t)
	svc := f.groupService()
	ctx := context.Background()

	owner := f.user(t, "owner")
	stranger := f.user(t, "stranger")
	group := f.group(t, owner, 1)

	_, err := svc.CreateRoom(ctx, stranger.ID, group.ID, "Friday")
	assert.ErrorIs(t, err, service.ErrNotGroupMember)
	assert.Empty(t, f.notifier.Channels())

	room, err := svc.CreateRoom(ctx, owner.ID, group.ID, "Friday")
	require.NoError(t, err)
	assert.True(t, room.HasMember(owner.ID))
	assert.Equal(t, []domain.Channel{domain.GroupChannel(group.GroupNumber)}, f.notifier.Channels())

	rooms, err := svc.ListRooms(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, rooms, 1)
	assert.Equal(t, room.RoomNumber, rooms[0].RoomNumber)
}

func TestEnterRoom_KeepsFirstJoin(t *testing.T) {
	f := newFixture(t)
	svc := f.groupService()
	ctx := context.Background()

	owner := f.user(t, "owner")
	guest := f.user(t, "guest")
	group := f.group(t, owner, 1)
	room := f.room(t, group)

	_, err := svc.EnterRoom(ctx, guest.ID, room.ID)
	assert.ErrorIs(t, err, service.ErrNotGroupMember)

	_, err = f.groups.AddMember(ctx, group.ID, guest.ID)
	require.NoError(t, err)

	entry, err := svc.EnterRoom(ctx, guest.ID, room.ID)
	require.NoError(t, err)
	assert.Equal(t, testStart, entry.Joined.Joined)
	assert.Equal(t, 15*60, entry.TimeLeft)
	assert.True(t, entry.Room.HasMember(guest.ID))
	assert.Equal(t, []domain.Channel{domain.RoomChannel(room.RoomNumber)}, f.notifier.Channels())

	f.clock.Advance(10 * time.Minute)
	entry, err = svc.EnterRoom(ctx, guest.ID, room.ID)
	require.NoError(t, err)
	assert.Equal(t, testStart, entry.Joined.Joined)
	assert.Equal(t, 5*60, entry.TimeLeft)
	assert.Len(t, f.notifier.Channels(), 1, "re-entry does not change membership")

	members, err := svc.RoomMembers(ctx, room.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, guest.ID, members[0].ID)
}

func TestGroupMembers(t *testing.T) {
	f := newFixture(t)
	svc := f.groupService()
	ctx := context.Background()

	owner := f.user(t, "zed")
	guest := f.user(t, "amy")
	group := f.group(t, owner, 1)
	_, err := f.groups.AddMember(ctx, group.ID, guest.ID)
	require.NoError(t, err)

	members, err := svc.GroupMembers(ctx, group.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "amy", members[0].Username)
	assert.Equal(t, "zed", members[1].Username)
}
