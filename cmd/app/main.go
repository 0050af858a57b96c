package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Domenick1991/flightdesk/api"
	"github.com/Domenick1991/flightdesk/config"
	"github.com/Domenick1991/flightdesk/internal/auth"
	"github.com/Domenick1991/flightdesk/internal/bootstrap"
	"github.com/Domenick1991/flightdesk/internal/cache"
	"github.com/Domenick1991/flightdesk/internal/email"
	"github.com/Domenick1991/flightdesk/internal/events"
	"github.com/Domenick1991/flightdesk/internal/kafka"
	"github.com/Domenick1991/flightdesk/internal/logger"
	"github.com/Domenick1991/flightdesk/internal/repository"
	"github.com/Domenick1991/flightdesk/internal/service/booking"
	"github.com/Domenick1991/flightdesk/internal/service/flights"
	"github.com/Domenick1991/flightdesk/internal/service/inventory"
	"github.com/Domenick1991/flightdesk/internal/service/users"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	zl, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		zl.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	gormDB, err := repository.OpenGorm(cfg.Database.DSN())
	if err != nil {
		zl.Fatal("open user store", zap.Error(err))
	}

	flightRepo := repository.NewFlightRepository(pool)
	bookingRepo := repository.NewBookingRepository(pool)
	userRepo := repository.NewUserRepository(gormDB)

	engine := inventory.NewEngine(
		repository.NewInventoryStore(pool, cfg.Booking.LockTimeout()),
		bookingRepo,
		inventory.WithTimeout(cfg.Booking.OperationTimeout()),
		inventory.WithRetry(cfg.Booking.MaxAttempts, cfg.Booking.RetryBackoff()),
		inventory.WithLogger(zl),
	)

	// A nil interface, not a nil *RedisCache, disables caching.
	var flightCache flights.FlightCache
	var bookingCache booking.Cache
	redisCache := cache.NewRedisCache(cfg.Redis, cfg.Booking.CacheTTL())
	if err := redisCache.Ping(ctx); err != nil {
		zl.Warn("redis unavailable, flight cache disabled", zap.Error(err))
	} else {
		defer redisCache.Close()
		flightCache, bookingCache = redisCache, redisCache
	}

	producer := newProducer(ctx, cfg, zl)

	tokens := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL())
	services := api.Services{
		Flights: flights.NewFlightService(flightRepo, flightCache, zl),
		Bookings: booking.NewBookingService(
			engine,
			bookingRepo,
			flightRepo,
			userRepo,
			bookingCache,
			producer,
			cfg.Kafka.BookingEventsTopic,
			booking.WithNotificationsTopic(cfg.Kafka.NotificationsTopic),
			booking.WithLogger(zl),
		),
		Users:  users.NewUserService(userRepo, tokens, cfg.Auth.BcryptCost, zl),
		Tokens: tokens,
	}

	if err := bootstrap.Run(ctx, cfg, services, zl); err != nil {
		zl.Fatal("server error", zap.Error(err))
	}
}

// newProducer returns the Kafka producer when brokers are configured. Without
// brokers events go through an in-process bus and notifications are sent
// from this process.
func newProducer(ctx context.Context, cfg *config.Config, zl *zap.Logger) booking.Producer {
	if cfg.Kafka.Enabled() {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, zl)
		if err := producer.CheckConnection(ctx); err != nil {
			zl.Warn("kafka not reachable yet", zap.Error(err))
		}
		go func() {
			<-ctx.Done()
			producer.Close()
		}()
		return producer
	}

	bus := events.NewBus(zl)
	sender := email.NewSender(cfg.Worker.EmailFrom, zl)
	err := bus.Subscribe(ctx, cfg.Kafka.NotificationsTopic, func(ctx context.Context, data []byte) error {
		event, err := kafka.DecodeBookingEvent(data)
		if err != nil {
			return err
		}
		return sender.Send(ctx, event)
	})
	if err != nil {
		zl.Fatal("subscribe notifications", zap.Error(err))
	}
	go func() {
		<-ctx.Done()
		bus.Close()
	}()
	zl.Info("kafka disabled, using in-process event bus")
	return bus
}
