package payment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/kineticpt/booking-core/internal/db"
)

const paymentColumns = `id, booking_id, patient_id, therapist_id, amount, currency, rail, status, created_at, updated_at`

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

func scanPayment(row pgx.Row) (*Payment, error) {
	var p Payment

	err := row.Scan(
		&p.ID,
		&p.BookingID,
		&p.PatientID,
		&p.TherapistID,
		&p.Amount,
		&p.Currency,
		&p.Rail,
		&p.Status,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}

	return &p, nil
}

func (r *PgRepository) Create(ctx context.Context, p *Payment) error {
	row := r.db.QueryRow(ctx, `
		INSERT INTO payments (id, booking_id, patient_id, therapist_id, amount, currency, rail, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+paymentColumns+`
	`, p.ID, p.BookingID, p.PatientID, p.TherapistID, p.Amount, p.Currency, p.Rail, p.Status)

	created, err := scanPayment(row)
	if err != nil {
		return err
	}

	*p = *created
	return nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Payment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE id = $1
	`, id)
	return scanPayment(row)
}

func (r *PgRepository) MarkStatusIfPending(ctx context.Context, id uuid.UUID, to Status) (*Payment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE payments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'pending'
		RETURNING `+paymentColumns+`
	`, id, to)

	updated, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			if _, getErr := r.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, nil
		}
		return nil, err
	}
	return updated, nil
}

func (r *PgRepository) LatestByBooking(ctx context.Context, bookingID uuid.UUID) (*Payment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE booking_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, bookingID)

	p, err := scanPayment(row)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return p, nil
}

func (r *PgRepository) ListPendingManual(ctx context.Context, therapistID uuid.UUID) ([]PendingManualReview, error) {
	rows, err := r.db.Query(ctx, `
		SELECT p.id, p.booking_id, p.patient_id, p.therapist_id, p.amount, p.currency, p.rail, p.status, p.created_at, p.updated_at,
		       s.visit_date, s.start_time, s.end_time, s.service_type,
		       pr.full_name, pr.email
		FROM payments p
		JOIN slots s ON s.id = p.booking_id
		JOIN profiles pr ON pr.id = p.patient_id
		WHERE p.therapist_id = $1
		  AND p.rail = 'bank_transfer'
		  AND p.status = 'pending'
		ORDER BY p.created_at
	`, therapistID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []PendingManualReview
	for rows.Next() {
		var item PendingManualReview
		err := rows.Scan(
			&item.ID,
			&item.BookingID,
			&item.PatientID,
			&item.TherapistID,
			&item.Amount,
			&item.Currency,
			&item.Rail,
			&item.Status,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.VisitDate,
			&item.StartTime,
			&item.EndTime,
			&item.ServiceType,
			&item.PatientName,
			&item.PatientEmail,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}
