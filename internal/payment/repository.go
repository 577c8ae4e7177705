package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrPaymentNotFound = errors.New("payment not found")

type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)

	// MarkStatusIfPending is the compare-and-swap pending -> to.
	// Returns nil, nil when the payment exists but is no longer pending.
	MarkStatusIfPending(ctx context.Context, id uuid.UUID, to Status) (*Payment, error)

	// LatestByBooking returns the most recent payment for a booking, or
	// nil, nil when the booking has none.
	LatestByBooking(ctx context.Context, bookingID uuid.UUID) (*Payment, error)

	// ListPendingManual feeds the staff bank-transfer review queue.
	ListPendingManual(ctx context.Context, therapistID uuid.UUID) ([]PendingManualReview, error)
}
