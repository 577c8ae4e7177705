package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/kineticpt/booking-core/internal/api"
	"github.com/kineticpt/booking-core/internal/audit"
	"github.com/kineticpt/booking-core/internal/config"
	"github.com/kineticpt/booking-core/internal/db"
	"github.com/kineticpt/booking-core/internal/logging"
	"github.com/kineticpt/booking-core/internal/observability/metrics"
	"github.com/kineticpt/booking-core/internal/payment"
	"github.com/kineticpt/booking-core/internal/profile"
	redisclient "github.com/kineticpt/booking-core/internal/redis"
	"github.com/kineticpt/booking-core/internal/slot"
)

const version = "0.3.0"

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

	logger.Info("api-server starting up",
		zap.String("env", cfg.Env),
		zap.String("http_port", cfg.HTTPPort),
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

	bookingMetrics := metrics.NewBookingMetrics(nil)
	recorder := audit.NewPgRecorder(pgPool, logger)
	locker := redisclient.NewRedisLocker(rdb, cfg.ConfirmLockTTL)

	slotRepo := slot.NewPgRepository(pgPool)
	profileRepo := profile.NewPgRepository(pgPool)
	paymentRepo := payment.NewPgRepository(pgPool)

	slotSvc := slot.NewService(slotRepo, profileRepo, recorder, bookingMetrics, locker, logger)
	paymentSvc := payment.NewService(paymentRepo, slotRepo, recorder, bookingMetrics, locker, logger)

	router := api.NewRouter(api.RouterConfig{
		Slots:          slotSvc,
		Payments:       paymentSvc,
		PendingTimeout: cfg.PendingTimeout,
		PgPool:         pgPool,
		Redis:          rdb,
		Logger:         logger,
		Env:            cfg.Env,
		Version:        version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}

	logger.Info("api-server stopped")
}
