package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kineticpt/booking-core/internal/audit"
	"github.com/kineticpt/booking-core/internal/observability/metrics"
	"github.com/kineticpt/booking-core/internal/profile"
	redisclient "github.com/kineticpt/booking-core/internal/redis"
)

var (
	ErrInvalidClock       = errors.New("time must be a zero-padded HH:MM clock value")
	ErrInvalidTimeRange   = errors.New("end time must be after start time")
	ErrMissingField       = errors.New("required field is blank")
	ErrUnknownServiceType = errors.New("unrecognized service type")
	ErrSlotOverlap        = errors.New("slot overlaps an existing slot for this therapist")
	// ErrSlotUnavailable is the race-loss case in Reserve: the slot was
	// not available at write time. The caller should re-query available
	// slots, not retry.
	ErrSlotUnavailable   = errors.New("slot is no longer available")
	ErrInvalidTransition = errors.New("invalid slot status transition")
)

type Service struct {
	repo     Repository
	profiles profile.Repository
	audit    audit.Recorder
	metrics  *metrics.BookingMetrics
	locker   redisclient.Locker
	log      *zap.Logger
}

func NewService(repo Repository, profiles profile.Repository, rec audit.Recorder, m *metrics.BookingMetrics, locker redisclient.Locker, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		profiles: profiles,
		audit:    rec,
		metrics:  m,
		locker:   locker,
		log:      log.With(zap.String("service", "slot")),
	}
}

// validateClock rejects anything that is not zero-padded "HH:MM".
// Lexicographic comparisons throughout the package depend on this shape.
func validateClock(s string) error {
	if len(s) != 5 || s[2] != ':' {
		return ErrInvalidClock
	}
	t, err := time.Parse("15:04", s)
	if err != nil || t.Format("15:04") != s {
		return ErrInvalidClock
	}
	return nil
}

func validateWindow(start, end string, serviceType ServiceType) error {
	if start == "" || end == "" || serviceType == "" {
		return ErrMissingField
	}
	if err := validateClock(start); err != nil {
		return err
	}
	if err := validateClock(end); err != nil {
		return err
	}
	if start >= end {
		return ErrInvalidTimeRange
	}
	if !ValidServiceType(serviceType) {
		return ErrUnknownServiceType
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CreateSlot registers a new available slot. Overlapping an active slot
// for the same therapist and date is rejected: the practice decided
// against manual overbooking, so the overlap invariant is enforced, not
// advisory.
func (s *Service) CreateSlot(ctx context.Context, therapistID uuid.UUID, date time.Time, start, end string, serviceType ServiceType) (*Slot, error) {
	if therapistID == uuid.Nil || date.IsZero() {
		return nil, ErrMissingField
	}
	if err := validateWindow(start, end, serviceType); err != nil {
		return nil, err
	}

	date = dateOnly(date)

	overlapping, err := s.repo.HasOverlapping(ctx, therapistID, date, start, end, nil)
	if err != nil {
		return nil, fmt.Errorf("check overlap: %w", err)
	}
	if overlapping {
		return nil, ErrSlotOverlap
	}

	sl := &Slot{
		ID:          uuid.New(),
		TherapistID: therapistID,
		VisitDate:   date,
		StartTime:   start,
		EndTime:     end,
		ServiceType: serviceType,
		Status:      StatusAvailable,
	}
	if err := s.repo.Create(ctx, sl); err != nil {
		return nil, fmt.Errorf("create slot: %w", err)
	}

	s.audit.Record(ctx, audit.EventSlotCreated, sl.ID, map[string]any{
		"therapist_id": therapistID.String(),
		"visit_date":   date.Format("2006-01-02"),
		"start_time":   start,
		"end_time":     end,
		"service_type": string(serviceType),
	})

	return sl, nil
}

func (s *Service) ListByTherapist(ctx context.Context, therapistID uuid.UUID, date time.Time) ([]Slot, error) {
	slots, err := s.repo.ListByTherapist(ctx, therapistID, dateOnly(date))
	if err != nil {
		return nil, fmt.Errorf("list slots by therapist: %w", err)
	}
	return slots, nil
}

func (s *Service) ListAvailable(ctx context.Context, date time.Time, serviceType ServiceType) ([]Slot, error) {
	if !ValidServiceType(serviceType) {
		return nil, ErrUnknownServiceType
	}
	slots, err := s.repo.ListAvailable(ctx, dateOnly(date), serviceType)
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	return slots, nil
}

// ListByPatient returns the patient's pending_payment and booked slots,
// the dashboard's unfinished-payment and upcoming-visit feed.
func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Slot, error) {
	slots, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list slots by patient: %w", err)
	}
	return slots, nil
}

// UpdateSlot edits an available slot. A reserved or booked slot must be
// rejected, never silently overwritten; the status gate lives in the
// conditional UPDATE itself.
func (s *Service) UpdateSlot(ctx context.Context, slotID uuid.UUID, start, end string, serviceType ServiceType) (*Slot, error) {
	if err := validateWindow(start, end, serviceType); err != nil {
		return nil, err
	}

	current, err := s.repo.GetByID(ctx, slotID)
	if err != nil {
		return nil, err
	}

	overlapping, err := s.repo.HasOverlapping(ctx, current.TherapistID, current.VisitDate, start, end, &slotID)
	if err != nil {
		return nil, fmt.Errorf("check overlap: %w", err)
	}
	if overlapping {
		return nil, ErrSlotOverlap
	}

	updated, err := s.repo.UpdateIfAvailable(ctx, slotID, start, end, serviceType)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Service) DeleteSlot(ctx context.Context, slotID uuid.UUID) error {
	return s.repo.DeleteIfAvailable(ctx, slotID)
}

// Reserve atomically claims a slot for a patient. Correctness rests on
// the repository's single conditional write: when several patients race
// on the same slot exactly one UPDATE matches status='available'.
func (s *Service) Reserve(ctx context.Context, slotID, patientID uuid.UUID) (*Slot, error) {
	if _, err := s.profiles.GetByID(ctx, patientID); err != nil {
		if errors.Is(err, profile.ErrProfileNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	reserved, err := s.repo.Reserve(ctx, slotID, patientID)
	if err != nil {
		return nil, err
	}
	if reserved == nil {
		s.metrics.ObserveReservation("lost")
		return nil, ErrSlotUnavailable
	}

	s.metrics.ObserveReservation("won")
	s.audit.Record(ctx, audit.EventSlotReserved, reserved.ID, map[string]any{
		"patient_id": patientID.String(),
	})

	return reserved, nil
}

// Cancel is the staff escape hatch; it is terminal.
func (s *Service) Cancel(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	updated, err := s.repo.Transition(ctx, slotID, StatusCanceled, ActiveStatuses)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrInvalidTransition
	}

	s.audit.Record(ctx, audit.EventSlotCanceled, slotID, nil)
	return updated, nil
}

// MarkNoShow records a patient who did not attend a booked visit.
func (s *Service) MarkNoShow(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	updated, err := s.repo.Transition(ctx, slotID, StatusNoShow, []Status{StatusBooked})
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, ErrInvalidTransition
	}

	s.audit.Record(ctx, audit.EventSlotNoShow, slotID, nil)
	return updated, nil
}

// Sweep reclaims slots stuck in pending_payment past timeout, returning
// them to the available pool. It may be triggered by the worker ticker or
// opportunistically through the API; a best-effort Redis lock
// de-duplicates concurrent triggers, and the per-slot conditional reset
// keeps the sweep correct even without the lock: a slot confirmed or
// released between the scan and the write is left alone.
func (s *Service) Sweep(ctx context.Context, timeout time.Duration) (int, error) {
	reclaimed := 0

	err := s.locker.WithLock(ctx, "sweep", func(lockCtx context.Context) error {
		cutoff := time.Now().Add(-timeout)

		expired, err := s.repo.FindExpiredPending(lockCtx, cutoff)
		if err != nil {
			return fmt.Errorf("find expired pending slots: %w", err)
		}

		for _, sl := range expired {
			ok, err := s.repo.Release(lockCtx, sl.ID, cutoff)
			if err != nil {
				s.log.Error("release expired slot failed",
					zap.String("slot_id", sl.ID.String()),
					zap.Error(err),
				)
				continue
			}
			if !ok {
				// Confirmed or already reclaimed since the scan.
				continue
			}

			reclaimed++
			s.audit.Record(lockCtx, audit.EventSlotReleased, sl.ID, map[string]any{
				"reason": "pending_timeout",
			})
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			s.log.Debug("sweep already running elsewhere, skipping")
			return 0, nil
		}
		return reclaimed, err
	}

	s.metrics.ObserveSweepReclaimed(reclaimed)
	if reclaimed > 0 {
		s.log.Info("sweep reclaimed slots", zap.Int("count", reclaimed))
	}

	return reclaimed, nil
}
