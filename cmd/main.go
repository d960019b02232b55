package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	httpapi "github.com/immxrtalbeast/ordergroup/internal/api/http"
	"github.com/immxrtalbeast/ordergroup/internal/archiver"
	"github.com/immxrtalbeast/ordergroup/internal/bus"
	"github.com/immxrtalbeast/ordergroup/internal/catalog"
	"github.com/immxrtalbeast/ordergroup/internal/config"
	"github.com/immxrtalbeast/ordergroup/internal/dispatch"
	"github.com/immxrtalbeast/ordergroup/internal/mailer"
	"github.com/immxrtalbeast/ordergroup/internal/presence"
	"github.com/immxrtalbeast/ordergroup/internal/repository"
	"github.com/immxrtalbeast/ordergroup/internal/repository/model"
	"github.com/immxrtalbeast/ordergroup/internal/service"
	"github.com/immxrtalbeast/ordergroup/lib/clock"
	"github.com/immxrtalbeast/ordergroup/lib/logger/sl"
	"github.com/immxrtalbeast/ordergroup/lib/logger/slogpretty"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load(".env")

	configPath := config.FetchPath()
	cfg := config.MustLoadPath(configPath)
	log := setupLogger(cfg.Env)

	if err := run(cfg, configPath, log); err != nil {
		log.Error("application stopped", sl.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, configPath string, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := setupRepositories(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("repositories: %w", err)
	}
	if cfg.Catalog.SeedFile != "" {
		file, err := catalog.Load(cfg.Catalog.SeedFile)
		if err != nil {
			return fmt.Errorf("catalog seed: %w", err)
		}
		if _, err := catalog.Seed(ctx, repos.catalog, file, log); err != nil {
			return fmt.Errorf("catalog seed: %w", err)
		}
	}

	var redisClient *redis.Client
	if needsRedis(cfg) {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}

	tracker, err := setupTracker(cfg.Presence, cfg.Redis, redisClient)
	if err != nil {
		return err
	}
	messageBus, err := setupBus(cfg, redisClient)
	if err != nil {
		return err
	}
	defer messageBus.Close()

	ordering := config.NewLive(configPath, cfg.Ordering)
	announcer := dispatch.NewAnnouncer(messageBus, log)
	notify := service.WithNotifier(announcer)

	userService, err := service.NewUserService(repos.users, repos.groups, repos.invitations, cfg.Auth.Secret, cfg.Auth.TokenTTL, log, notify)
	if err != nil {
		return fmt.Errorf("user service: %w", err)
	}
	invitationService := service.NewInvitationService(
		repos.users, repos.groups, repos.invitations,
		mailer.NewLogSender(log, cfg.Invitation.BaseURL),
		time.Duration(cfg.Invitation.ExpiryDays)*24*time.Hour,
		log, notify,
	)
	groupService := service.NewGroupService(repos.users, repos.groups, repos.rooms, ordering, log, notify)
	orderService := service.NewOrderService(repos.rooms, repos.orders, repos.catalog, repos.users, ordering, log, notify)
	admissionService := service.NewAdmissionService(repos.groups, repos.retries, ordering, log, notify)
	catalogService := service.NewCatalogService(repos.catalog, log)

	router := dispatch.NewRouter(dispatch.Services{
		Orders:    orderService,
		Groups:    groupService,
		Admission: admissionService,
		Catalog:   catalogService,
	}, tracker, announcer, nil, log)
	hub := dispatch.NewHub(messageBus, tracker, announcer, router, log)

	sweeper := archiver.NewSweeper(repos.orders, tracker, announcer, cfg.Presence.GracePeriod, clock.Real(), log)
	var background archiver.Runner
	if cfg.Archiver.Backend == "asynq" {
		background = archiver.NewDistributed(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, sweeper, cfg.Archiver, log)
	} else {
		background = archiver.NewScheduler(sweeper, cfg.Archiver, log)
	}

	engine := httpapi.SetupRouter(cfg.HTTP.AllowedOrigins, userService, httpapi.Controllers{
		Users:   httpapi.NewUserController(userService, log),
		Groups:  httpapi.NewGroupController(groupService, invitationService, hub, log),
		Rooms:   httpapi.NewRoomController(ctx, groupService, hub, cfg.HTTP.AllowedOrigins, log),
		Catalog: httpapi.NewCatalogController(catalogService, log),
	})
	srv := &http.Server{
		Addr:              cfg.HTTP.Address,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		if err := background.Start(gctx); err != nil {
			return fmt.Errorf("archiver: %w", err)
		}
		<-gctx.Done()
		background.Stop()
		return nil
	})
	g.Go(func() error {
		log.Info("starting application", slog.String("addr", cfg.HTTP.Address), slog.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		reloadOnHangup(gctx, ordering, log)
		return nil
	})

	return g.Wait()
}

// reloadOnHangup swaps the ordering section whenever SIGHUP arrives.
func reloadOnHangup(ctx context.Context, ordering *config.Live, log *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			o, err := ordering.Reload()
			if err != nil {
				log.Error("failed to reload config", sl.Err(err))
				continue
			}
			log.Info("ordering config reloaded",
				slog.Int("order_limit", o.OrderLimit),
				slog.Int("order_time_limit_minutes", o.OrderTimeLimitMinutes),
				slog.Int("join_retry_limit", o.JoinRetryLimit),
			)
		}
	}
}

type repositories struct {
	users       repository.UserRepository
	groups      repository.GroupRepository
	rooms       repository.RoomRepository
	retries     repository.RetryRepository
	catalog     repository.CatalogRepository
	orders      repository.OrderRepository
	invitations repository.InvitationRepository
}

func setupRepositories(cfg config.DatabaseConfig, log *slog.Logger) (*repositories, error) {
	if cfg.Driver == "memory" {
		log.Warn("using in-memory storage, data is lost on restart")
		store := repository.NewInMemoryStore()
		return &repositories{
			users:       repository.NewInMemoryUserRepository(store),
			groups:      repository.NewInMemoryGroupRepository(store),
			rooms:       repository.NewInMemoryRoomRepository(store),
			retries:     repository.NewInMemoryRetryRepository(store),
			catalog:     repository.NewInMemoryCatalogRepository(store),
			orders:      repository.NewInMemoryOrderRepository(store),
			invitations: repository.NewInMemoryInvitationRepository(store),
		}, nil
	}

	db, err := connectDatabase(cfg)
	if err != nil {
		return nil, err
	}
	return &repositories{
		users:       repository.NewGormUserRepository(db),
		groups:      repository.NewGormGroupRepository(db),
		rooms:       repository.NewGormRoomRepository(db),
		retries:     repository.NewGormRetryRepository(db),
		catalog:     repository.NewGormCatalogRepository(db),
		orders:      repository.NewGormOrderRepository(db),
		invitations: repository.NewGormInvitationRepository(db),
	}, nil
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Presence.Backend == "redis" || cfg.Bus.Backend == "redis" || cfg.Archiver.Backend == "asynq"
}

func setupTracker(cfg config.PresenceConfig, redisCfg config.RedisConfig, client *redis.Client) (presence.Tracker, error) {
	switch cfg.Backend {
	case "memory", "":
		return presence.NewMemory(clock.Real()), nil
	case "redis":
		return presence.NewRedis(client, redisCfg.KeyPrefix, clock.Real()), nil
	default:
		return nil, fmt.Errorf("unknown presence backend %q", cfg.Backend)
	}
}

func setupBus(cfg *config.Config, client *redis.Client) (bus.Bus, error) {
	switch cfg.Bus.Backend {
	case "memory", "":
		return bus.NewMemory(), nil
	case "redis":
		return bus.NewRedis(client, cfg.Redis.KeyPrefix), nil
	case "rabbitmq":
		b, err := bus.DialRabbitMQ(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return nil, fmt.Errorf("rabbitmq: %w", err)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown bus backend %q", cfg.Bus.Backend)
	}
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}

func connectDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("database dsn is empty")
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(model.All()...); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return db, nil
}
