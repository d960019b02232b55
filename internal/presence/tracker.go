// Package presence tracks live connections per channel. It only knows
// who is connected right now; membership lives in the repositories.
package presence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/ordergroup/internal/domain"
)

type Tracker interface {
	// Join registers connID under channel. Joining twice with the same
	// connection id is a no-op. changed reports whether the number of
	// distinct connected users went up.
	Join(ctx context.Context, channel domain.Channel, connID string, userID uuid.UUID) (changed bool, err error)
	// Leave is safe for connections that never joined. changed is true
	// when the user's last connection in the channel went away.
	Leave(ctx context.Context, channel domain.Channel, connID string) (changed bool, err error)
	Count(ctx context.Context, channel domain.Channel) (int, error)
	Users(ctx context.Context, channel domain.Channel) ([]uuid.UUID, error)
	Heartbeat(ctx context.Context, connID string) error
	// Prune drops connections not seen since cutoff and returns the
	// channels whose user count changed.
	Prune(ctx context.Context, cutoff time.Time) ([]domain.Channel, error)
}

var (
	_ Tracker = (*Memory)(nil)
	_ Tracker = (*Redis)(nil)
)
