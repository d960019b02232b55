package mailer

import (
	"context"
	"log/slog"

	"github.com/immxrtalbeast/ordergroup/internal/domain"
)

type Result struct {
	Sent bool
}

// Sender delivers invitation emails. Delivery itself lives outside this
// service; implementations only report whether the message went out.
type Sender interface {
	SendInvitation(ctx context.Context, invitation *domain.Invitation, group *domain.OrderGroup, inviter *domain.User) (Result, error)
}

// LogSender writes invitations to the log instead of sending them.
type LogSender struct {
	log     *slog.Logger
	baseURL string
}

func NewLogSender(log *slog.Logger, baseURL string) *LogSender {
	return &LogSender{log: log, baseURL: baseURL}
}

func (s *LogSender) SendInvitation(ctx context.Context, invitation *domain.Invitation, group *domain.OrderGroup, inviter *domain.User) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	s.log.Info("invitation",
		slog.String("email", invitation.Email),
		slog.String("group", group.Name),
		slog.String("inviter", inviter.Username),
		slog.String("link", s.baseURL+"/api/invitations/"+invitation.Key+"/accept"),
	)
	return Result{Sent: true}, nil
}
