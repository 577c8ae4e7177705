package slot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrSlotNotFound = errors.New("slot not found")
	// ErrEditConflict means a write was gated on status=available and the
	// slot was not available at write time.
	ErrEditConflict = errors.New("slot is not available for edit")
)

// Repository contains all DB interactions needed by the service. Every
// status mutation is a conditional write: the UPDATE carries the expected
// current status so concurrent writers serialize at the storage layer.
type Repository interface {
	Create(ctx context.Context, s *Slot) error
	GetByID(ctx context.Context, id uuid.UUID) (*Slot, error)

	ListByTherapist(ctx context.Context, therapistID uuid.UUID, date time.Time) ([]Slot, error)
	ListAvailable(ctx context.Context, date time.Time, serviceType ServiceType) ([]Slot, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Slot, error)

	// Overlap check used by create/edit against active slots.
	HasOverlapping(ctx context.Context, therapistID uuid.UUID, date time.Time, start, end string, exclude *uuid.UUID) (bool, error)

	// Gated on status=available; ErrEditConflict otherwise.
	UpdateIfAvailable(ctx context.Context, id uuid.UUID, start, end string, serviceType ServiceType) (*Slot, error)
	DeleteIfAvailable(ctx context.Context, id uuid.UUID) error

	// Reserve is the compare-and-swap available -> pending_payment.
	// Returns nil, nil when the slot exists but was not available.
	Reserve(ctx context.Context, id, patientID uuid.UUID) (*Slot, error)

	// MarkBooked is the compare-and-swap pending_payment -> booked.
	MarkBooked(ctx context.Context, id uuid.UUID) (*Slot, error)

	// Release resets pending_payment -> available, clearing the patient,
	// only while the reservation is still pending and started at or
	// before cutoff. Reports whether a row was reset.
	Release(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error)

	// Transition moves a slot to a terminal staff-driven status when its
	// current status is one of from. Returns nil, nil when no row matched.
	Transition(ctx context.Context, id uuid.UUID, to Status, from []Status) (*Slot, error)

	// Sweep support.
	FindExpiredPending(ctx context.Context, cutoff time.Time) ([]Slot, error)
}
