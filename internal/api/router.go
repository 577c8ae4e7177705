package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kineticpt/booking-core/internal/payment"
	"github.com/kineticpt/booking-core/internal/slot"
)

type RouterConfig struct {
	Slots          *slot.Service
	Payments       *payment.Service
	PendingTimeout time.Duration
	PgPool         *pgxpool.Pool
	Redis          *redis.Client
	Logger         *zap.Logger
	Env            string
	Version        string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health and ops endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/internal/sweep", sweepHandler(cfg.Slots, cfg.PendingTimeout))

	// Staff availability surface
	r.Post("/slots", createSlotHandler(cfg.Slots))
	r.Get("/slots", listSlotsHandler(cfg.Slots))
	r.Patch("/slots/{id}", updateSlotHandler(cfg.Slots))
	r.Delete("/slots/{id}", deleteSlotHandler(cfg.Slots))
	r.Post("/slots/{id}/cancel", cancelSlotHandler(cfg.Slots))
	r.Post("/slots/{id}/no-show", noShowSlotHandler(cfg.Slots))

	// Patient booking surface
	r.Get("/slots/available", listAvailableSlotsHandler(cfg.Slots))
	r.Post("/slots/{id}/reserve", reserveSlotHandler(cfg.Slots))
	r.Post("/payments", createPaymentHandler(cfg.Payments))
	r.Get("/patients/{id}/bookings", patientBookingsHandler(cfg.Slots, cfg.Payments))

	// Processor callbacks
	r.Post("/callbacks/payments/{id}/confirm", confirmCallbackHandler(cfg.Payments))

	// Staff payment review surface
	r.Get("/staff/payments/manual", listManualPaymentsHandler(cfg.Payments))
	r.Post("/staff/payments/{id}/confirm", confirmManualPaymentHandler(cfg.Payments))
	r.Post("/staff/payments/{id}/reject", rejectManualPaymentHandler(cfg.Payments))

	return r
}
