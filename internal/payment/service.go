package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kineticpt/booking-core/internal/audit"
	"github.com/kineticpt/booking-core/internal/observability/metrics"
	redisclient "github.com/kineticpt/booking-core/internal/redis"
	"github.com/kineticpt/booking-core/internal/slot"
)

var (
	ErrInvalidAmount    = errors.New("amount must be a finite positive number not exceeding 10000")
	ErrInvalidRail      = errors.New("unrecognized payment rail")
	ErrInvalidCurrency  = errors.New("currency must be a 3-letter ISO code")
	ErrAlreadyConfirmed = errors.New("payment is already confirmed")
	// ErrPaymentNotPending covers confirm/reject attempts on a payment
	// that already failed.
	ErrPaymentNotPending = errors.New("payment is not pending")
	ErrWrongRail         = errors.New("operation does not apply to this payment rail")
	// ErrBookingNotPayable means the booking is not held by this patient
	// in pending_payment.
	ErrBookingNotPayable = errors.New("booking is not awaiting payment")
	// ErrBookingFinalize is the acknowledged two-step gap: the payment
	// was marked succeeded but the slot could not be moved to booked.
	// The audit trail carries a reconcile event for manual follow-up.
	ErrBookingFinalize   = errors.New("payment succeeded but booking could not be finalized")
	ErrConfirmInProgress = errors.New("payment is being confirmed by another request, retry shortly")
)

type Service struct {
	repo    Repository
	slots   slot.Repository
	audit   audit.Recorder
	metrics *metrics.BookingMetrics
	locker  redisclient.Locker
	log     *zap.Logger
}

func NewService(repo Repository, slots slot.Repository, rec audit.Recorder, m *metrics.BookingMetrics, locker redisclient.Locker, log *zap.Logger) *Service {
	return &Service{
		repo:    repo,
		slots:   slots,
		audit:   rec,
		metrics: m,
		locker:  locker,
		log:     log.With(zap.String("service", "payment")),
	}
}

func validAmount(a float64) bool {
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return false
	}
	return a > 0 && a <= MaxAmount
}

func validCurrency(c string) bool {
	if len(c) != 3 {
		return false
	}
	for i := 0; i < 3; i++ {
		if c[i] < 'A' || c[i] > 'Z' {
			return false
		}
	}
	return true
}

// CreateIntent records a pending payment attempt against a reserved
// booking. All validation happens before any write.
func (s *Service) CreateIntent(ctx context.Context, bookingID, patientID, therapistID uuid.UUID, amount float64, currency string, rail Rail) (*Payment, error) {
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}
	if !ValidRail(rail) {
		return nil, ErrInvalidRail
	}
	if currency == "" {
		currency = "USD"
	}
	if !validCurrency(currency) {
		return nil, ErrInvalidCurrency
	}

	booking, err := s.slots.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != slot.StatusPendingPayment || booking.PatientID == nil || *booking.PatientID != patientID {
		return nil, ErrBookingNotPayable
	}

	p := &Payment{
		ID:          uuid.New(),
		BookingID:   bookingID,
		PatientID:   patientID,
		TherapistID: therapistID,
		Amount:      amount,
		Currency:    currency,
		Rail:        rail,
		Status:      StatusPending,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	s.metrics.ObservePaymentIntent(string(rail))
	s.audit.Record(ctx, audit.EventPaymentCreated, p.ID, map[string]any{
		"booking_id": bookingID.String(),
		"amount":     amount,
		"currency":   currency,
		"rail":       string(rail),
	})

	return p, nil
}

// ConfirmCardOrWallet is the entry point for the card/wallet processor's
// asynchronous success callback.
func (s *Service) ConfirmCardOrWallet(ctx context.Context, paymentID uuid.UUID) (*Payment, error) {
	return s.confirm(ctx, paymentID, RailCard, RailWallet)
}

// ConfirmManualTransfer finalizes a bank-transfer payment after staff
// review; the rail has no automatic success callback.
func (s *Service) ConfirmManualTransfer(ctx context.Context, paymentID uuid.UUID) (*Payment, error) {
	return s.confirm(ctx, paymentID, RailBankTransfer)
}

// confirm flips the payment to succeeded and the slot to booked, treated
// as one logical unit under a per-payment lock so no two actors confirm
// the same payment concurrently. Both writes are still conditional, so
// the lock only narrows the window, it is not load-bearing.
func (s *Service) confirm(ctx context.Context, paymentID uuid.UUID, allowedRails ...Rail) (*Payment, error) {
	var confirmed *Payment

	err := s.locker.WithLock(ctx, "payment:"+paymentID.String(), func(lockCtx context.Context) error {
		p, err := s.repo.GetByID(lockCtx, paymentID)
		if err != nil {
			return err
		}
		if !railAllowed(p.Rail, allowedRails) {
			return ErrWrongRail
		}

		switch p.Status {
		case StatusSucceeded:
			return ErrAlreadyConfirmed
		case StatusFailed:
			return ErrPaymentNotPending
		}

		updated, err := s.repo.MarkStatusIfPending(lockCtx, paymentID, StatusSucceeded)
		if err != nil {
			return fmt.Errorf("mark payment succeeded: %w", err)
		}
		if updated == nil {
			return s.staleStatusError(lockCtx, paymentID)
		}

		if err := s.finalizeBooking(lockCtx, updated); err != nil {
			return err
		}

		confirmed = updated
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrConfirmInProgress
		}
		return nil, err
	}

	s.metrics.ObserveConfirm(string(confirmed.Rail), "succeeded")
	s.audit.Record(ctx, audit.EventPaymentConfirmed, confirmed.ID, map[string]any{
		"booking_id": confirmed.BookingID.String(),
		"rail":       string(confirmed.Rail),
	})

	return confirmed, nil
}

// finalizeBooking moves the slot to booked after its payment succeeded.
// There is no compensating transaction when this fails: the payment stays
// succeeded and a reconcile event is recorded for manual follow-up.
func (s *Service) finalizeBooking(ctx context.Context, p *Payment) error {
	booked, err := s.slots.MarkBooked(ctx, p.BookingID)
	if err == nil && booked != nil {
		return nil
	}

	if err == nil {
		// Zero rows: the slot left pending_payment underneath us. A slot
		// already booked (earlier partial confirm) is fine; anything else
		// needs a human.
		current, getErr := s.slots.GetByID(ctx, p.BookingID)
		if getErr == nil && current.Status == slot.StatusBooked {
			return nil
		}
		err = fmt.Errorf("slot is not pending_payment")
	}

	s.log.Error("booking finalize failed after payment success, manual reconciliation required",
		zap.String("payment_id", p.ID.String()),
		zap.String("booking_id", p.BookingID.String()),
		zap.Error(err),
	)
	s.audit.Record(ctx, audit.EventReconcileNeeded, p.ID, map[string]any{
		"booking_id": p.BookingID.String(),
		"error":      err.Error(),
	})

	return ErrBookingFinalize
}

// RejectManualTransfer marks a pending bank-transfer payment failed and
// releases the slot back to the available pool.
func (s *Service) RejectManualTransfer(ctx context.Context, paymentID uuid.UUID) (*Payment, error) {
	var rejected *Payment

	err := s.locker.WithLock(ctx, "payment:"+paymentID.String(), func(lockCtx context.Context) error {
		p, err := s.repo.GetByID(lockCtx, paymentID)
		if err != nil {
			return err
		}
		if p.Rail != RailBankTransfer {
			return ErrWrongRail
		}

		switch p.Status {
		case StatusSucceeded:
			return ErrAlreadyConfirmed
		case StatusFailed:
			return ErrPaymentNotPending
		}

		updated, err := s.repo.MarkStatusIfPending(lockCtx, paymentID, StatusFailed)
		if err != nil {
			return fmt.Errorf("mark payment failed: %w", err)
		}
		if updated == nil {
			return s.staleStatusError(lockCtx, paymentID)
		}

		released, err := s.slots.Release(lockCtx, updated.BookingID, time.Now())
		if err != nil {
			return fmt.Errorf("release booking: %w", err)
		}
		if !released {
			// The sweep may have reclaimed the slot already.
			s.log.Warn("rejected payment's slot was not pending",
				zap.String("payment_id", paymentID.String()),
				zap.String("booking_id", updated.BookingID.String()),
			)
		}

		rejected = updated
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrConfirmInProgress
		}
		return nil, err
	}

	s.metrics.ObserveConfirm(string(rejected.Rail), "rejected")
	s.audit.Record(ctx, audit.EventPaymentRejected, rejected.ID, map[string]any{
		"booking_id": rejected.BookingID.String(),
	})

	return rejected, nil
}

// ListPendingManualTransfers feeds the staff review queue for the
// bank-transfer rail.
func (s *Service) ListPendingManualTransfers(ctx context.Context, therapistID uuid.UUID) ([]PendingManualReview, error) {
	items, err := s.repo.ListPendingManual(ctx, therapistID)
	if err != nil {
		return nil, fmt.Errorf("list pending manual payments: %w", err)
	}
	return items, nil
}

// LatestForBooking annotates dashboard rows with payment state.
func (s *Service) LatestForBooking(ctx context.Context, bookingID uuid.UUID) (*Payment, error) {
	p, err := s.repo.LatestByBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("latest payment for booking: %w", err)
	}
	return p, nil
}

// staleStatusError re-reads a payment whose conditional write matched
// nothing and maps the current status to the right sentinel.
func (s *Service) staleStatusError(ctx context.Context, paymentID uuid.UUID) error {
	p, err := s.repo.GetByID(ctx, paymentID)
	if err != nil {
		return err
	}
	if p.Status == StatusSucceeded {
		return ErrAlreadyConfirmed
	}
	return ErrPaymentNotPending
}

func railAllowed(r Rail, allowed []Rail) bool {
	for _, a := range allowed {
		if r == a {
			return true
		}
	}
	return false
}
