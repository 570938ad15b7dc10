package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okupriienko/dogschool/internal/config"
	"github.com/okupriienko/dogschool/internal/notify"
	"github.com/okupriienko/dogschool/internal/postgres"
	redisx "github.com/okupriienko/dogschool/internal/redis"
	postgresrepo "github.com/okupriienko/dogschool/internal/repository/postgres"
	redisrepo "github.com/okupriienko/dogschool/internal/repository/redis"
	"github.com/okupriienko/dogschool/internal/service"
	"github.com/okupriienko/dogschool/internal/service/booking"
	httpgin "github.com/okupriienko/dogschool/internal/transport/http/gin"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	httpServer *http.Server
	store      *postgresrepo.Store
	cache      *redisrepo.Cache
	pubsub     *redisx.SchedulesPubSub
}

func New(cfg *config.Config, logger *slog.Logger) (*App, error) {
	// Initialize dependencies
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.Name,
		cfg.Postgres.SSLMode,
	)

	pgxPool, err := postgres.New(context.Background(), postgres.Config{DSN: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize postgres: %w", err)
	}

	rdb, err := redisx.New(context.Background(), redisx.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize redis: %w", err)
	}

	// Initialize repositories
	store := postgresrepo.NewStore(pgxPool)
	cache := redisrepo.New(rdb)
	pubsub := redisx.NewSchedulesPubSub(rdb)
	limiter := redisrepo.NewSlidingWindowLimiter(rdb, "rl", cfg.Booking.RateLimitPerMinute, 1*time.Minute)
	idempotencyStore := redisrepo.NewIdempotencyStore(rdb, 2*time.Hour)
	sender := notify.NewLogSender(logger, 5*time.Second)

	// Initialize services
	services := service.NewServices(store, cache, pubsub, limiter, sender, service.Config{
		Booking: booking.Config{
			DefaultCancelCutoff: time.Duration(cfg.Booking.DefaultCancelCutoffHours) * time.Hour,
		},
	})

	// Initialize Gin router
	router := httpgin.NewRouter(services, idempotencyStore, logger)

	return &App{
		cfg:    cfg,
		logger: logger,
		httpServer: &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		},
		store:  store,
		cache:  cache,
		pubsub: pubsub,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)

	// Start HTTP server
	g.Go(func() error {
		a.logger.Info("HTTP server listening", "host", a.cfg.Server.Host, "port", a.cfg.Server.Port)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
		return nil
	})

	// Cross-instance invalidation: drop the cached availability view when
	// another instance changes a schedule.
	g.Go(func() error {
		err := a.pubsub.Subscribe(gCtx, func(ctx context.Context, scheduleID int64) {
			_ = a.cache.InvalidateSchedule(ctx, scheduleID)
		})
		if err != nil && gCtx.Err() == nil {
			return fmt.Errorf("schedules subscription: %w", err)
		}
		return nil
	})

	// Expiry sweep: flip enrollments whose validity window has passed.
	g.Go(func() error {
		ticker := time.NewTicker(15 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				n, err := a.store.Enrollments().ExpireOutdated(gCtx, nil)
				if err != nil {
					a.logger.Error("enrollment expiry sweep failed", "error", err)
					continue
				}
				if n > 0 {
					a.logger.Info("expired outdated enrollments", "count", n)
				}
			}
		}
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gCtx.Done()
		a.logger.Info("shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpServer.Shutdown(ctx)
	})

	return g.Wait()
}
