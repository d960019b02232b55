package archiver

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/immxrtalbeast/ordergroup/internal/config"
	"github.com/immxrtalbeast/ordergroup/lib/logger/sl"
)

const initialBackoff = time.Second

// Runner is a started sweep schedule.
type Runner interface {
	Start(ctx context.Context) error
	Stop()
}

var (
	_ Runner = (*Scheduler)(nil)
	_ Runner = (*Distributed)(nil)
)

// Scheduler runs the sweeps in process on their own tickers.
type Scheduler struct {
	sweeper *Sweeper
	cfg     config.ArchiverConfig
	log     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(sweeper *Sweeper, cfg config.ArchiverConfig, log *slog.Logger) *Scheduler {
	if cfg.OrderInterval <= 0 {
		cfg.OrderInterval = time.Minute
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = time.Minute
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	return &Scheduler{sweeper: sweeper, cfg: cfg, log: log}
}

// Start launches the loops and returns immediately. Calling it twice
// is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}
	ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(2)
	go s.loop(ctx, "archive_orders", s.cfg.OrderInterval, func(ctx context.Context) error {
		_, err := s.sweeper.ArchiveOrders(ctx)
		return err
	})
	go s.loop(ctx, "prune_presence", s.cfg.PruneInterval, func(ctx context.Context) error {
		_, err := s.sweeper.PrunePresence(ctx)
		return err
	})
	s.log.Info("archiver started",
		slog.Duration("order_interval", s.cfg.OrderInterval),
		slog.Duration("prune_interval", s.cfg.PruneInterval),
	)
	return nil
}

// Stop cancels the loops and waits for a running sweep to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.log.Info("archiver stopped")
}

func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, job func(context.Context) error) {
	defer s.wg.Done()
	log := s.log.With(slog.String("job", name))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.run(ctx, log, interval, job)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.run(ctx, log, interval, job)
		}
	}
}

// run retries a failing job with capped exponential backoff, giving up
// when the next tick is due.
func (s *Scheduler) run(ctx context.Context, log *slog.Logger, interval time.Duration, job func(context.Context) error) {
	deadline := time.Now().Add(interval)
	backoff := initialBackoff
	for attempt := 1; ; attempt++ {
		err := job(ctx)
		if err == nil || ctx.Err() != nil {
			return
		}
		wait := min(backoff, s.cfg.MaxBackoff)
		if time.Now().Add(wait).After(deadline) {
			log.Error("sweep failed, waiting for next tick", slog.Int("attempt", attempt), sl.Err(err))
			return
		}
		log.Warn("sweep failed, retrying",
			slog.Int("attempt", attempt), slog.Duration("backoff", wait), sl.Err(err))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		backoff *= 2
	}
}
