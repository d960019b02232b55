package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/config"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/repository"
	"github.com/immxrtalbeast/ordergroup/lib/clock"
	"github.com/immxrtalbeast/ordergroup/lib/logger/sl"
)

const maxPINDigits = 4

type AdmissionService struct {
	groups   repository.GroupRepository
	retries  repository.RetryRepository
	cfg      config.Provider
	notifier MembershipNotifier
	clock    clock.Clock
	log      *slog.Logger
}

func NewAdmissionService(
	groups repository.GroupRepository,
	retries repository.RetryRepository,
	cfg config.Provider,
	log *slog.Logger,
	opts ...Option,
) *AdmissionService {
	o := buildOptions(opts)
	return &AdmissionService{
		groups:   groups,
		retries:  retries,
		cfg:      cfg,
		notifier: o.notifier,
		clock:    o.clock,
		log:      loggerOrDefault(log),
	}
}

// CanAttempt reports whether the user may try a PIN now. A lock whose
// window has elapsed is reset here, so recovery needs no explicit unlock.
func (s *AdmissionService) CanAttempt(ctx context.Context, userID, groupID uuid.UUID) (*domain.GroupRetry, bool, error) {
	const op = "service.admission.can_attempt"

	cfg := s.cfg.Get()
	row, err := s.retries.Ensure(ctx, userID, groupID, cfg.JoinRetryLimit)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if row.Retry > 0 {
		return row, true, nil
	}

	if !row.Recoverable(s.clock.Now(), cfg.LockoutDuration()) {
		return row, false, nil
	}

	row, err = s.retries.Reset(ctx, userID, groupID, cfg.JoinRetryLimit, row.LockTime)
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Debug("retry budget restored",
		slog.String("op", op),
		slog.String("user_id", userID.String()),
		slog.String("group_id", groupID.String()),
	)
	return row, row.Retry > 0, nil
}

func (s *AdmissionService) Attempt(ctx context.Context, userID, groupID uuid.UUID, pin string) (AdmissionResult, error) {
	const op = "service.admission.attempt"
	log := s.log.With(
		slog.String("op", op),
		slog.String("user_id", userID.String()),
		slog.String("group_id", groupID.String()),
	)

	value, err := parsePIN(pin)
	if err != nil {
		return AdmissionResult{}, err
	}

	group, err := s.groups.GetByID(ctx, groupID)
	if err != nil {
		return AdmissionResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if group.HasMember(userID) {
		return AdmissionResult{Status: AdmissionSuccess, Group: group}, nil
	}

	cfg := s.cfg.Get()
	row, ok, err := s.CanAttempt(ctx, userID, groupID)
	if err != nil {
		log.Error("failed to check retries", sl.Err(err))
		return AdmissionResult{}, err
	}
	if !ok {
		return s.locked(group, row, cfg), nil
	}

	if value == group.PIN {
		changed, err := s.groups.AddMember(ctx, groupID, userID)
		if err != nil {
			log.Error("failed to add member", sl.Err(err))
			return AdmissionResult{}, fmt.Errorf("%s: %w", op, err)
		}
		if changed {
			s.notifier.MembershipChanged(ctx, domain.GroupChannel(group.GroupNumber))
		}
		log.Info("user joined group by pin")
		return AdmissionResult{Status: AdmissionSuccess, Group: group}, nil
	}

	row, consumed, err := s.retries.Consume(ctx, userID, groupID, s.clock.Now())
	if err != nil {
		log.Error("failed to consume retry", sl.Err(err))
		return AdmissionResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if !consumed || row.Retry == 0 {
		log.Warn("pin attempts exhausted")
		return s.locked(group, row, cfg), nil
	}

	log.Info("wrong pin", slog.Int("retries_left", row.Retry))
	return AdmissionResult{
		Status:           AdmissionWrongPIN,
		Group:            group,
		RemainingRetries: row.Retry,
		Message:          fmt.Sprintf("Wrong PIN, %d retries left", row.Retry),
	}, nil
}

func (s *AdmissionService) locked(group *domain.OrderGroup, row *domain.GroupRetry, cfg config.Ordering) AdmissionResult {
	minutes := ceilMinutes(row.UnlockIn(s.clock.Now(), cfg.LockoutDuration()))
	return AdmissionResult{
		Status:      AdmissionLocked,
		Group:       group,
		MinutesLeft: minutes,
		Message:     fmt.Sprintf("Too many attempts. Try again in %d minutes", minutes),
	}
}

// parsePIN accepts one to four ASCII digits.
func parsePIN(pin string) (int, error) {
	if len(pin) == 0 || len(pin) > maxPINDigits {
		return 0, ErrInvalidPIN
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return 0, ErrInvalidPIN
		}
	}
	value, err := strconv.Atoi(pin)
	if err != nil || value > domain.MaxPIN {
		return 0, ErrInvalidPIN
	}
	return value, nil
}

func ceilMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Minute - 1) / time.Minute)
}
