package slot

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kineticpt/booking-core/internal/db"
)

const slotColumns = `id, therapist_id, visit_date, start_time, end_time, service_type, status, patient_id, pending_started_at, created_at, updated_at`

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

func scanSlot(row pgx.Row) (*Slot, error) {
	var s Slot
	var patientID *uuid.UUID
	var pendingStartedAt *time.Time

	err := row.Scan(
		&s.ID,
		&s.TherapistID,
		&s.VisitDate,
		&s.StartTime,
		&s.EndTime,
		&s.ServiceType,
		&s.Status,
		&patientID,
		&pendingStartedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	s.PatientID = patientID
	s.PendingStartedAt = pendingStartedAt
	return &s, nil
}

func scanSlots(rows pgx.Rows) ([]Slot, error) {
	defer rows.Close()

	var result []Slot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) Create(ctx context.Context, s *Slot) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO slots (id, therapist_id, visit_date, start_time, end_time, service_type, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+slotColumns+`
	`, s.ID, s.TherapistID, s.VisitDate, s.StartTime, s.EndTime, s.ServiceType, s.Status)

	created, err := scanSlot(row)
	if err != nil {
		return err
	}

	*s = *created
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListByTherapist(ctx context.Context, therapistID uuid.UUID, date time.Time) ([]Slot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE therapist_id = $1 AND visit_date = $2
		ORDER BY start_time
	`, therapistID, date)
	if err != nil {
		return nil, err
	}
	return scanSlots(rows)
}

func (r *PgRepository) ListAvailable(ctx context.Context, date time.Time, serviceType ServiceType) ([]Slot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE visit_date = $1 AND service_type = $2 AND status = 'available'
		ORDER BY start_time
	`, date, serviceType)
	if err != nil {
		return nil, err
	}
	return scanSlots(rows)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Slot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE patient_id = $1 AND status IN ('pending_payment', 'booked')
		ORDER BY visit_date, start_time
	`, patientID)
	if err != nil {
		return nil, err
	}
	return scanSlots(rows)
}

func (r *PgRepository) HasOverlapping(ctx context.Context, therapistID uuid.UUID, date time.Time, start, end string, exclude *uuid.UUID) (bool, error) {
	row := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM slots
			WHERE therapist_id = $1
			  AND visit_date = $2
			  AND status IN ('available', 'pending_payment', 'booked')
			  AND start_time < $4
			  AND end_time > $3
			  AND ($5::uuid IS NULL OR id <> $5)
		)
	`, therapistID, date, start, end, exclude)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *PgRepository) UpdateIfAvailable(ctx context.Context, id uuid.UUID, start, end string, serviceType ServiceType) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE slots
		SET start_time = $2,
		    end_time = $3,
		    service_type = $4,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'available'
		RETURNING `+slotColumns+`
	`, id, start, end, serviceType)

	updated, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			return nil, r.conflictOrNotFound(ctx, id)
		}
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) DeleteIfAvailable(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		DELETE FROM slots
		WHERE id = $1
		  AND status = 'available'
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.conflictOrNotFound(ctx, id)
	}
	return nil
}

// conflictOrNotFound disambiguates a zero-row conditional write.
func (r *PgRepository) conflictOrNotFound(ctx context.Context, id uuid.UUID) error {
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return ErrEditConflict
}

func (r *PgRepository) Reserve(ctx context.Context, id, patientID uuid.UUID) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE slots
		SET status = 'pending_payment',
		    patient_id = $2,
		    pending_started_at = now(),
		    updated_at = now()
		WHERE id = $1
		  AND status = 'available'
		RETURNING `+slotColumns+`
	`, id, patientID)

	reserved, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			// Slot exists but lost the race, or does not exist at all.
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, nil
		}
		return nil, err
	}
	return reserved, nil
}

func (r *PgRepository) MarkBooked(ctx context.Context, id uuid.UUID) (*Slot, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE slots
		SET status = 'booked',
		    pending_started_at = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending_payment'
		RETURNING `+slotColumns+`
	`, id)

	booked, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, nil
		}
		return nil, err
	}
	return booked, nil
}

func (r *PgRepository) Release(ctx context.Context, id uuid.UUID, cutoff time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE slots
		SET status = 'available',
		    patient_id = NULL,
		    pending_started_at = NULL,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending_payment'
		  AND pending_started_at <= $2
	`, id, cutoff)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PgRepository) Transition(ctx context.Context, id uuid.UUID, to Status, from []Status) (*Slot, error) {
	fromStrs := make([]string, len(from))
	for i, st := range from {
		fromStrs[i] = string(st)
	}

	// Canceled slots drop their patient so the status/patient invariant
	// holds; pending_started_at only survives in pending_payment.
	row := r.db.QueryRow(ctx, `
		UPDATE slots
		SET status = $2,
		    patient_id = CASE WHEN $2 = 'canceled' THEN NULL ELSE patient_id END,
		    pending_started_at = CASE WHEN $2 = 'pending_payment' THEN pending_started_at ELSE NULL END,
		    updated_at = now()
		WHERE id = $1
		  AND status = ANY($3)
		RETURNING `+slotColumns+`
	`, id, to, fromStrs)

	updated, err := scanSlot(row)
	if err != nil {
		if errors.Is(err, ErrSlotNotFound) {
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, nil
		}
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) FindExpiredPending(ctx context.Context, cutoff time.Time) ([]Slot, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+slotColumns+`
		FROM slots
		WHERE status = 'pending_payment'
		  AND pending_started_at IS NOT NULL
		  AND pending_started_at <= $1
	`, cutoff)
	if err != nil {
		return nil, err
	}
	return scanSlots(rows)
}
