package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"admission-scheduler/internal/app"
	"admission-scheduler/internal/config"
	"admission-scheduler/internal/repository"
	"admission-scheduler/internal/scoring"
	"admission-scheduler/internal/service"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("Failed to create connection pool", zap.Error(err))
	}
	defer pool.Close()

	migrator, err := app.NewMigrator(pool, cfg.MigrationsPath)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	if err := migrator.Close(); err != nil {
		logger.Warn("Failed to close migrator", zap.Error(err))
	}

	store := repository.NewStore(pool)
	weights := scoring.Weights{
		SiblingBonus:      cfg.SiblingBonus,
		CompletenessBonus: cfg.CompletenessBonus,
		DistanceWeight:    cfg.DistanceWeight,
		UrgencyWeight:     cfg.UrgencyWeight,
	}
	scheduleService := service.NewScheduleService(store, weights, cfg.DemandThreshold, logger)

	runner := app.NewCycleRunner(scheduleService, cfg.CycleInterval, logger)
	runner.Start(ctx)

	logger.Info("Admission scheduling engine started",
		zap.String("environment", cfg.Environment),
		zap.Duration("cycle_interval", cfg.CycleInterval))

	<-ctx.Done()
	runner.Stop()
	logger.Info("Admission scheduling engine stopped")
}
