package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kineticpt/booking-core/internal/audit"
	"github.com/kineticpt/booking-core/internal/config"
	"github.com/kineticpt/booking-core/internal/db"
	"github.com/kineticpt/booking-core/internal/logging"
	"github.com/kineticpt/booking-core/internal/profile"
	redisclient "github.com/kineticpt/booking-core/internal/redis"
	"github.com/kineticpt/booking-core/internal/slot"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.LogPath, cfg.Debug)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("sweep-worker starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.SweepInterval),
		zap.Duration("pending_timeout", cfg.PendingTimeout),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		logger.Fatal("postgres connection error", zap.Error(err))
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()
	logger.Info("connected to Redis")

	repo := slot.NewPgRepository(pgPool)
	profiles := profile.NewPgRepository(pgPool)
	recorder := audit.NewPgRecorder(pgPool, logger)
	locker := redisclient.NewRedisLocker(rdb, cfg.SweepLockTTL)
	svc := slot.NewService(repo, profiles, recorder, nil, locker, logger)

	// Run once at startup
	runOnce(rootCtx, svc, cfg.PendingTimeout, logger)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping sweep worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, svc, cfg.PendingTimeout, logger)
		}
	}
}

func runOnce(ctx context.Context, svc *slot.Service, timeout time.Duration, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	reclaimed, err := svc.Sweep(runCtx, timeout)
	if err != nil {
		logger.Error("sweep run error", zap.Error(err))
		return
	}
	logger.Info("sweep run complete",
		zap.Int("reclaimed", reclaimed),
		zap.Duration("took", time.Since(start)),
	)
}
