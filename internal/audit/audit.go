// Package audit provides an append-only event log for booking and payment
// actions. Writes are fire-and-forget: a failed insert is logged and
// swallowed so it can never fail the business operation that produced it.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kineticpt/booking-core/internal/db"
)

const (
	EventSlotCreated      = "SLOT_CREATED"
	EventSlotReserved     = "SLOT_RESERVED"
	EventSlotReleased     = "SLOT_RELEASED"
	EventSlotCanceled     = "SLOT_CANCELED"
	EventSlotNoShow       = "SLOT_NO_SHOW"
	EventPaymentCreated   = "PAYMENT_CREATED"
	EventPaymentConfirmed = "PAYMENT_CONFIRMED"
	EventPaymentRejected  = "PAYMENT_REJECTED"
	EventReconcileNeeded  = "PAYMENT_RECONCILE_NEEDED"
)

type Event struct {
	ID        int64
	EventType string
	SubjectID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

// Recorder writes audit events.
type Recorder interface {
	Record(ctx context.Context, eventType string, subjectID uuid.UUID, payload map[string]any)
}

type PgRecorder struct {
	db  db.Querier
	log *zap.Logger
}

func NewPgRecorder(q db.Querier, log *zap.Logger) *PgRecorder {
	return &PgRecorder{db: q, log: log.With(zap.String("component", "audit"))}
}

func (r *PgRecorder) Record(ctx context.Context, eventType string, subjectID uuid.UUID, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Warn("marshal audit payload failed",
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		data = nil
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO audit_events (event_type, subject_id, payload, created_at)
		VALUES ($1, $2, $3, now())
	`, eventType, subjectID, data)
	if err != nil {
		r.log.Warn("insert audit event failed",
			zap.String("event_type", eventType),
			zap.String("subject_id", subjectID.String()),
			zap.Error(err),
		)
	}
}

// Noop discards every event. Used in tests and tooling.
type Noop struct{}

func (Noop) Record(context.Context, string, uuid.UUID, map[string]any) {}
