// Package archiver reconciles time based state out of band: it archives
// orders whose delete timer passed and prunes stale presence records.
package archiver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/immxrtalbeast/ordergroup/internal/domain"
	"github.com/immxrtalbeast/ordergroup/internal/presence"
	"github.com/immxrtalbeast/ordergroup/lib/clock"
)

type OrderArchiver interface {
	ArchiveExpired(ctx context.Context, now time.Time) (int64, error)
}

// ConnectedNotifier is told when pruning changed who is connected.
type ConnectedNotifier interface {
	ConnectedChanged(ctx context.Context, channel domain.Channel)
}

// Sweeper holds both sweeps. Each one is idempotent, so running it from
// several processes at once is safe.
type Sweeper struct {
	orders   OrderArchiver
	tracker  presence.Tracker
	notifier ConnectedNotifier
	grace    time.Duration
	clock    clock.Clock
	log      *slog.Logger
}

func NewSweeper(
	orders OrderArchiver,
	tracker presence.Tracker,
	notifier ConnectedNotifier,
	grace time.Duration,
	c clock.Clock,
	log *slog.Logger,
) *Sweeper {
	if c == nil {
		c = clock.Real()
	}
	return &Sweeper{
		orders:   orders,
		tracker:  tracker,
		notifier: notifier,
		grace:    grace,
		clock:    c,
		log:      log,
	}
}

func (s *Sweeper) ArchiveOrders(ctx context.Context) (int64, error) {
	const op = "archiver.archive_orders"

	n, err := s.orders.ArchiveExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	if n > 0 {
		s.log.Info("orders archived", slog.String("op", op), slog.Int64("count", n))
	}
	return n, nil
}

// PrunePresence drops connections without a heartbeat inside the grace
// period and announces the channels whose count changed.
func (s *Sweeper) PrunePresence(ctx context.Context) ([]domain.Channel, error) {
	const op = "archiver.prune_presence"

	changed, err := s.tracker.Prune(ctx, s.clock.Now().Add(-s.grace))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, ch := range changed {
		s.notifier.ConnectedChanged(ctx, ch)
	}
	if len(changed) > 0 {
		s.log.Info("stale connections pruned", slog.String("op", op), slog.Int("channels", len(changed)))
	}
	return changed, nil
}
