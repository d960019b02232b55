package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/repository"
	"github.com/immxrtalbeast/ordergroup/internal/service"
	"github.com/immxrtalbeast/ordergroup/lib/logger/handlers/slogdiscard"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Token expiry is checked against wall time, so these tests keep the
// real clock.
func (f *fixture) userService(t *testing.T, ttl time.Duration) *service.UserService {
	t.Helper()
	svc, err := service.NewUserService(f.users, f.groups, f.invitations, "test-secret", ttl,
		slogdiscard.NewDiscardLogger(), service.WithNotifier(f.notifier))
	require.NoError(t, err)
	return svc
}

func TestNewUserService_RequiresSecret(t *testing.T) {
	f := newFixture(t)
	_, err := service.NewUserService(f.users, f.groups, f.invitations, "", time.Hour, nil)
	assert.Error(t, err)
}

func TestUserService_SignupAndLogin(t *testing.T) {
	f := newFixture(t)
	svc := f.userService(t, time.Hour)
	ctx := context.Background()

	user, err := svc.Signup(ctx, " alice ", "Alice@Example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.NotEqual(t, "correct horse", user.PasswordHash)

	token, logged, err := svc.Login(ctx, "alice@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)

	id, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)

	_, _, err = svc.Login(ctx, "alice@example.com", "wrong password")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, service.ErrInvalidCredentials)
}

func TestUserService_SignupValidation(t *testing.T) {
	f := newFixture(t)
	svc := f.userService(t, time.Hour)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		email    string
		password string
		want     error
	}{
		{name: "empty username", username: "  ", email: "a@example.com", password: "password1", want: service.ErrInvalidName},
		{name: "bad email", username: "a", email: "not-an-email", password: "password1", want: service.ErrInvalidEmail},
		{name: "short password", username: "a", email: "a@example.com", password: "short", want: service.ErrWeakPassword},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Signup(ctx, tt.username, tt.email, tt.password)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := svc.Signup(ctx, "alice", "alice@example.com", "password1")
	require.NoError(t, err)
	_, err = svc.Signup(ctx, "alice2", "ALICE@example.com", "password1")
	assert.ErrorIs(t, err, repository.ErrUserEmailExists)
}

func TestUserService_ParseTokenRejectsGarbage(t *testing.T) {
	f := newFixture(t)
	svc := f.userService(t, time.Hour)

	_, err := svc.ParseToken("not.a.token")
	assert.ErrorIs(t, err, service.ErrInvalidToken)

	other, err := service.NewUserService(f.users, f.groups, f.invitations, "other-secret", time.Hour, nil)
	require.NoError(t, err)
	_, err = other.Signup(context.Background(), "bob", "bob@example.com", "password1")
	require.NoError(t, err)
	token, _, err := other.Login(context.Background(), "bob@example.com", "password1")
	require.NoError(t, err)

	_, err = svc.ParseToken(token)
	assert.ErrorIs(t, err, service.ErrInvalidToken)
}

func TestUserService_SignupRedeemsWaitingInvitations(t *testing.T) {
	f := newFixture(t)
	svc := f.userService(t, time.Hour)
	ctx := context.Background()

	owner := f.user(t, "owner")
	group := f.group(t, owner, 1)
	waiting := &domain.WaitingRegistration{ID: uuid.New(), GroupID: group.ID, Email: "carol@example.com"}
	require.NoError(t, f.invitations.CreateWaiting(ctx, waiting))

	carol, err := svc.Signup(ctx, "carol", "carol@example.com", "password1")
	require.NoError(t, err)

	stored, err := f.groups.GetByID(ctx, group.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasMember(carol.ID))
	assert.Equal(t, []domain.Channel{domain.GroupChannel(group.GroupNumber)}, f.notifier.Channels())

	pending, err := f.invitations.ListWaiting(ctx, "carol@example.com")
	require.NoError(t, err)
	assert.Empty(t, pending)
}
