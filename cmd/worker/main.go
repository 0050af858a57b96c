package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Domenick1991/flightdesk/config"
	"github.com/Domenick1991/flightdesk/internal/email"
	"github.com/Domenick1991/flightdesk/internal/kafka"
	"github.com/Domenick1991/flightdesk/internal/logger"
	"github.com/Domenick1991/flightdesk/internal/repository"
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

	store := repository.NewInventoryStore(pool, cfg.Booking.LockTimeout())

	if cfg.Kafka.Enabled() {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, cfg.Kafka.NotificationsTopic, zl)
		defer consumer.Close()

		sender := email.NewSender(cfg.Worker.EmailFrom, zl)
		go func() {
			if err := consumer.Consume(ctx, sender.Send); err != nil {
				zl.Error("consumer stopped", zap.Error(err))
			}
		}()
	} else {
		zl.Info("kafka disabled, notifications are sent by the app process")
	}

	ticker := time.NewTicker(cfg.Worker.AuditInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			audit(ctx, store, zl)
		case <-ctx.Done():
			zl.Info("shutting down")
			return
		}
	}
}

// audit logs every flight whose counters disagree with its bookings. It only
// reads; fixing drift is left to an operator.
func audit(ctx context.Context, store repository.InventoryStore, zl *zap.Logger) {
	drifts, err := store.Audit(ctx)
	if err != nil {
		zl.Error("inventory audit failed", zap.Error(err))
		return
	}
	for _, d := range drifts {
		zl.Warn("inventory drift",
			zap.Int64("flight_id", d.FlightID),
			zap.Int("total_seats", d.TotalSeats),
			zap.Int("available_seats", d.AvailableSeats),
			zap.Int("held_seats", d.HeldSeats),
			zap.Int("drift", d.Drift))
	}
	if len(drifts) == 0 {
		zl.Debug("inventory audit clean")
	}
}
