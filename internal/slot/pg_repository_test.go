package slot

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	pgx "github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var slotCols = []string{
	"id", "therapist_id", "visit_date", "start_time", "end_time",
	"service_type", "status", "patient_id", "pending_started_at",
	"created_at", "updated_at",
}

func slotRow(s Slot) *pgxmock.Rows {
	return pgxmock.NewRows(slotCols).AddRow(
		s.ID, s.TherapistID, s.VisitDate, s.StartTime, s.EndTime,
		s.ServiceType, s.Status, s.PatientID, s.PendingStartedAt,
		s.CreatedAt, s.UpdatedAt,
	)
}

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *PgRepository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewPgRepository(mock)
}

func TestPgReserveWins(t *testing.T) {
	mock, repo := newMockRepo(t)

	patientID := uuid.New()
	now := time.Now()
	want := Slot{
		ID:               uuid.New(),
		TherapistID:      uuid.New(),
		VisitDate:        time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		StartTime:        "09:00",
		EndTime:          "10:00",
		ServiceType:      ServiceDryNeedling,
		Status:           StatusPendingPayment,
		PatientID:        &patientID,
		PendingStartedAt: &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	mock.ExpectQuery("UPDATE slots").
		WithArgs(want.ID, patientID).
		WillReturnRows(slotRow(want))

	got, err := repo.Reserve(context.Background(), want.ID, patientID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, StatusPendingPayment, got.Status)
	assert.Equal(t, patientID, *got.PatientID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgReserveLosesRace(t *testing.T) {
	mock, repo := newMockRepo(t)

	id := uuid.New()
	other := uuid.New()
	now := time.Now()
	taken := Slot{
		ID:               id,
		TherapistID:      uuid.New(),
		VisitDate:        time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		StartTime:        "09:00",
		EndTime:          "10:00",
		ServiceType:      ServiceDryNeedling,
		Status:           StatusPendingPayment,
		PatientID:        &other,
		PendingStartedAt: &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// The conditional UPDATE matches nothing; the follow-up read shows
	// the slot claimed by someone else.
	mock.ExpectQuery("UPDATE slots").
		WithArgs(id, pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM slots").
		WithArgs(id).
		WillReturnRows(slotRow(taken))

	got, err := repo.Reserve(context.Background(), id, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgReserveMissingSlot(t *testing.T) {
	mock, repo := newMockRepo(t)

	id := uuid.New()
	mock.ExpectQuery("UPDATE slots").
		WithArgs(id, pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM slots").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Reserve(context.Background(), id, uuid.New())
	assert.ErrorIs(t, err, ErrSlotNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgReleaseReportsReset(t *testing.T) {
	mock, repo := newMockRepo(t)

	id := uuid.New()
	cutoff := time.Now().Add(-30 * time.Minute)

	mock.ExpectExec("UPDATE slots").
		WithArgs(id, cutoff).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := repo.Release(context.Background(), id, cutoff)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec("UPDATE slots").
		WithArgs(id, cutoff).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err = repo.Release(context.Background(), id, cutoff)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateIfAvailableConflict(t *testing.T) {
	mock, repo := newMockRepo(t)

	id := uuid.New()
	patient := uuid.New()
	now := time.Now()
	pending := Slot{
		ID:               id,
		TherapistID:      uuid.New(),
		VisitDate:        time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		StartTime:        "09:00",
		EndTime:          "10:00",
		ServiceType:      ServiceDryNeedling,
		Status:           StatusPendingPayment,
		PatientID:        &patient,
		PendingStartedAt: &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	mock.ExpectQuery("UPDATE slots").
		WithArgs(id, "11:00", "12:00", ServiceDryNeedling).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT (.+) FROM slots").
		WithArgs(id).
		WillReturnRows(slotRow(pending))

	_, err := repo.UpdateIfAvailable(context.Background(), id, "11:00", "12:00", ServiceDryNeedling)
	assert.ErrorIs(t, err, ErrEditConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgDeleteIfAvailableNotFound(t *testing.T) {
	mock, repo := newMockRepo(t)

	id := uuid.New()
	mock.ExpectExec("DELETE FROM slots").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("SELECT (.+) FROM slots").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	err := repo.DeleteIfAvailable(context.Background(), id)
	assert.ErrorIs(t, err, ErrSlotNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
