package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/repository"
	"github.com/immxrtalbeast/ordergroup/lib/clock"
	"github.com/immxrtalbeast/ordergroup/lib/logger/sl"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

const minPasswordLength = 8

type UserService struct {
	users       repository.UserRepository
	groups      repository.GroupRepository
	invitations repository.InvitationRepository
	secret      []byte
	tokenTTL    time.Duration
	notifier    MembershipNotifier
	clock       clock.Clock
	log         *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	groups repository.GroupRepository,
	invitations repository.InvitationRepository,
	secret string,
	tokenTTL time.Duration,
	log *slog.Logger,
	opts ...Option,
) (*UserService, error) {
	if secret == "" {
		return nil, errors.New("jwt secret cannot be empty")
	}
	if tokenTTL <= 0 {
		tokenTTL = 24 * time.Hour
	}
	o := buildOptions(opts)
	return &UserService{
		users:       users,
		groups:      groups,
		invitations: invitations,
		secret:      []byte(secret),
		tokenTTL:    tokenTTL,
		notifier:    o.notifier,
		clock:       o.clock,
		log:         loggerOrDefault(log),
	}, nil
}

// Signup registers the account and redeems invitations waiting for its
// email address.
func (s *UserService) Signup(ctx context.Context, username, email, password string) (*domain.User, error) {
	const op = "service.user.signup"
	log := s.log.With(slog.String("op", op))

	username = strings.TrimSpace(username)
	if username == "" || len(username) > 150 {
		return nil, ErrInvalidName
	}
	email = domain.NormalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user := domain.NewUser(username, email, string(hash))
	now := s.clock.Now()
	user.CreatedAt, user.UpdatedAt = now, now
	if err := s.users.Create(ctx, user); err != nil {
		log.Info("signup failed", sl.Err(err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.redeemInvitations(ctx, user); err != nil {
		// The account exists either way; pending invitations stay pending.
		log.Error("failed to redeem invitations", sl.Err(err))
	}

	log.Info("user signed up", slog.String("user_id", user.ID.String()))
	return user, nil
}

func (s *UserService) redeemInvitations(ctx context.Context, user *domain.User) error {
	waiting, err := s.invitations.ListWaiting(ctx, user.Email)
	if err != nil {
		return err
	}
	for _, w := range waiting {
		changed, err := s.groups.AddMember(ctx, w.GroupID, user.ID)
		if err != nil {
			return err
		}
		if err := s.invitations.Redeem(ctx, w.ID); err != nil {
			return err
		}
		if changed {
			if group, err := s.groups.GetByID(ctx, w.GroupID); err == nil {
				s.notifier.MembershipChanged(ctx, domain.GroupChannel(group.GroupNumber))
			}
		}
	}
	return nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	const op = "service.user.login"
	log := s.log.With(slog.String("op", op))

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			log.Info("login for unknown email")
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		log.Info("login with wrong password", slog.String("user_id", user.ID.String()))
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.issueToken(user.ID)
	if err != nil {
		log.Error("failed to sign token", sl.Err(err))
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	return token, user, nil
}

func (s *UserService) issueToken(userID uuid.UUID) (string, error) {
	now := s.clock.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *UserService) ParseToken(token string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return uuid.Nil, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}

func (s *UserService) GetUser(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}
