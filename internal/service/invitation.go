package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/mailer"
	"github.com/immxrtalbeast/ordergroup/internal/repository"
	"github.com/immxrtalbeast/ordergroup/lib/clock"
	"github.com/immxrtalbeast/ordergroup/lib/logger/sl"
)

var ErrInvitationExpired = errors.New("invitation expired")

type InviteResult struct {
	Invitation *domain.Invitation
	Sent       bool
}

type AcceptResult struct {
	Group *domain.OrderGroup
	// Joined is true when the address already belonged to a user, who
	// is now a member. Otherwise membership waits for signup.
	Joined bool
}

type InvitationService struct {
	users       repository.UserRepository
	groups      repository.GroupRepository
	invitations repository.InvitationRepository
	sender      mailer.Sender
	ttl         time.Duration
	notifier    MembershipNotifier
	clock       clock.Clock
	log         *slog.Logger
}

func NewInvitationService(
	users repository.UserRepository,
	groups repository.GroupRepository,
	invitations repository.InvitationRepository,
	sender mailer.Sender,
	ttl time.Duration,
	log *slog.Logger,
	opts ...Option,
) *InvitationService {
	o := buildOptions(opts)
	return &InvitationService{
		users:       users,
		groups:      groups,
		invitations: invitations,
		sender:      sender,
		ttl:         ttl,
		notifier:    o.notifier,
		clock:       o.clock,
		log:         loggerOrDefault(log),
	}
}

func (s *InvitationService) Invite(ctx context.Context, inviterID, groupID uuid.UUID, email string) (*InviteResult, error) {
	const op = "service.invitation.invite"
	log := s.log.With(
		slog.String("op", op),
		slog.String("inviter_id", inviterID.String()),
		slog.String("group_id", groupID.String()),
	)

	email = domain.NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !group.HasMember(inviterID) {
		return nil, ErrNotGroupMember
	}
	inviter, err := s.users.GetByID(ctx, inviterID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	invitation, err := domain.NewInvitation(email, groupID, inviterID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	invitation.Created = s.clock.Now()
	if err := s.invitations.Create(ctx, invitation); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	res, err := s.sender.SendInvitation(ctx, invitation, group, inviter)
	if err != nil {
		log.Error("failed to send invitation", sl.Err(err))
		return &InviteResult{Invitation: invitation}, nil
	}
	if res.Sent {
		sent := s.clock.Now()
		if err := s.invitations.MarkSent(ctx, invitation.ID, sent); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		invitation.Sent = &sent
	}

	log.Info("invitation created", slog.Bool("sent", res.Sent))
	return &InviteResult{Invitation: invitation, Sent: res.Sent}, nil
}

func (s *InvitationService) Accept(ctx context.Context, key string) (*AcceptResult, error) {
	const op = "service.invitation.accept"
	log := s.log.With(slog.String("op", op))

	invitation, err := s.invitations.GetByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if invitation.Accepted {
		return nil, repository.ErrInvitationAccepted
	}
	if invitation.Expired(s.clock.Now(), s.ttl) {
		return nil, ErrInvitationExpired
	}

	group, err := s.groups.GetByID(ctx, invitation.GroupID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.invitations.MarkAccepted(ctx, invitation.ID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	waiting := &domain.WaitingRegistration{ID: uuid.New(), GroupID: group.ID, Email: invitation.Email}
	if err := s.invitations.CreateWaiting(ctx, waiting); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.users.GetByEmail(ctx, invitation.Email)
	if errors.Is(err, repository.ErrUserNotFound) {
		log.Info("invitation waits for signup")
		return &AcceptResult{Group: group}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	changed, err := s.groups.AddMember(ctx, group.ID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.invitations.Redeem(ctx, waiting.ID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if changed {
		s.notifier.MembershipChanged(ctx, domain.GroupChannel(group.GroupNumber))
	}

	log.Info("invitation accepted", slog.String("user_id", user.ID.String()))
	return &AcceptResult{Group: group, Joined: true}, nil
}
