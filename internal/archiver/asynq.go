package archiver

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
	"github.com/immxrtalbeast/ordergroup/internal/config"
	"github.com/immxrtalbeast/ordergroup/lib/logger/sl"
)

const (
	TypeArchiveOrders = "archive:orders"
	TypePrunePresence = "presence:prune"

	queue    = "archiver"
	maxRetry = 5
)

// Distributed runs the sweeps as asynq periodic tasks, so processes
// sharing one Redis run each tick once between them.
type Distributed struct {
	sweeper   *Sweeper
	cfg       config.ArchiverConfig
	server    *asynq.Server
	scheduler *asynq.Scheduler
	log       *slog.Logger
}

func NewDistributed(redisOpt asynq.RedisClientOpt, sweeper *Sweeper, cfg config.ArchiverConfig, log *slog.Logger) *Distributed {
	log = log.With(slog.String("component", "archiver"))
	logger := asynqLogger{log: log}

	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	maxBackoff := cfg.MaxBackoff

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 2,
		Queues:      map[string]int{queue: 1},
		Logger:      logger,
		LogLevel:    asynq.WarnLevel,
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return retryDelay(n, maxBackoff)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			log.Error("sweep task failed",
				slog.String("task_type", task.Type()),
				slog.Int("retried", retried),
				sl.Err(err),
			)
		}),
	})
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{
		Logger:   logger,
		LogLevel: asynq.WarnLevel,
	})

	return &Distributed{
		sweeper:   sweeper,
		cfg:       cfg,
		server:    server,
		scheduler: scheduler,
		log:       log,
	}
}

// Start registers the periodic tasks and starts the worker. The worker
// stops on Stop, not on ctx.
func (d *Distributed) Start(_ context.Context) error {
	const op = "archiver.distributed.start"

	if err := d.register(TypeArchiveOrders, d.cfg.OrderInterval); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := d.register(TypePrunePresence, d.cfg.PruneInterval); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeArchiveOrders, d.handleArchive)
	mux.HandleFunc(TypePrunePresence, d.handlePrune)

	if err := d.server.Start(mux); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := d.scheduler.Start(); err != nil {
		d.server.Shutdown()
		return fmt.Errorf("%s: %w", op, err)
	}
	d.log.Info("distributed archiver started")
	return nil
}

func (d *Distributed) Stop() {
	d.scheduler.Shutdown()
	d.server.Shutdown()
	d.log.Info("distributed archiver stopped")
}

func (d *Distributed) register(taskType string, interval time.Duration) error {
	if interval < time.Second {
		interval = time.Minute
	}
	_, err := d.scheduler.Register(
		"@every "+interval.String(),
		asynq.NewTask(taskType, nil),
		asynq.Queue(queue),
		asynq.MaxRetry(maxRetry),
		asynq.Timeout(interval),
		asynq.Unique(interval),
	)
	return err
}

func (d *Distributed) handleArchive(ctx context.Context, _ *asynq.Task) error {
	_, err := d.sweeper.ArchiveOrders(ctx)
	return err
}

func (d *Distributed) handlePrune(ctx context.Context, _ *asynq.Task) error {
	_, err := d.sweeper.PrunePresence(ctx)
	return err
}

// retryDelay doubles from one second up to limit.
func retryDelay(retried int, limit time.Duration) time.Duration {
	delay := initialBackoff
	for i := 0; i < retried && delay < limit; i++ {
		delay *= 2
	}
	return min(delay, limit)
}

// asynqLogger adapts slog to the asynq.Logger interface.
type asynqLogger struct {
	log *slog.Logger
}

func (l asynqLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }

func (l asynqLogger) Fatal(args ...interface{}) {
	l.log.Error(fmt.Sprint(args...))
	os.Exit(1)
}
