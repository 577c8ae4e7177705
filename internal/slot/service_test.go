package slot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kineticpt/booking-core/internal/audit"
	"github.com/kineticpt/booking-core/internal/profile"
)

// fakeRepo is a map-backed Repository with the same conditional-write
// semantics as the Postgres implementation, guarded by a mutex so
// concurrent Reserve calls exercise a real compare-and-swap.
type fakeRepo struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*Slot

	// afterFind runs between FindExpiredPending and the Release calls,
	// to poke at the scan/write window.
	afterFind func()
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{slots: make(map[uuid.UUID]*Slot)}
}

func (r *fakeRepo) put(s Slot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := s
	r.slots[s.ID] = &cp
}

func (r *fakeRepo) get(id uuid.UUID) Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.slots[id]
}

func (r *fakeRepo) Create(_ context.Context, s *Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	s.CreatedAt = now
	s.UpdatedAt = now
	cp := *s
	r.slots[s.ID] = &cp
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) ListByTherapist(_ context.Context, therapistID uuid.UUID, date time.Time) ([]Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Slot
	for _, s := range r.slots {
		if s.TherapistID == therapistID && s.VisitDate.Equal(date) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListAvailable(_ context.Context, date time.Time, serviceType ServiceType) ([]Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Slot
	for _, s := range r.slots {
		if s.Status == StatusAvailable && s.VisitDate.Equal(date) && s.ServiceType == serviceType {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Slot
	for _, s := range r.slots {
		if s.PatientID != nil && *s.PatientID == patientID &&
			(s.Status == StatusPendingPayment || s.Status == StatusBooked) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeRepo) HasOverlapping(_ context.Context, therapistID uuid.UUID, date time.Time, start, end string, exclude *uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.slots {
		if exclude != nil && s.ID == *exclude {
			continue
		}
		if s.TherapistID != therapistID || !s.VisitDate.Equal(date) {
			continue
		}
		active := s.Status == StatusAvailable || s.Status == StatusPendingPayment || s.Status == StatusBooked
		if active && Overlaps(start, end, s.StartTime, s.EndTime) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeRepo) UpdateIfAvailable(_ context.Context, id uuid.UUID, start, end string, serviceType ServiceType) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.Status != StatusAvailable {
		return nil, ErrEditConflict
	}
	s.StartTime = start
	s.EndTime = end
	s.ServiceType = serviceType
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) DeleteIfAvailable(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	if s.Status != StatusAvailable {
		return ErrEditConflict
	}
	delete(r.slots, id)
	return nil
}

func (r *fakeRepo) Reserve(_ context.Context, id, patientID uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.Status != StatusAvailable {
		return nil, nil
	}
	now := time.Now()
	s.Status = StatusPendingPayment
	s.PatientID = &patientID
	s.PendingStartedAt = &now
	s.UpdatedAt = now
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) MarkBooked(_ context.Context, id uuid.UUID) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	if s.Status != StatusPendingPayment {
		return nil, nil
	}
	s.Status = StatusBooked
	s.PendingStartedAt = nil
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) Release(_ context.Context, id uuid.UUID, cutoff time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return false, nil
	}
	if s.Status != StatusPendingPayment || s.PendingStartedAt == nil || s.PendingStartedAt.After(cutoff) {
		return false, nil
	}
	s.Status = StatusAvailable
	s.PatientID = nil
	s.PendingStartedAt = nil
	s.UpdatedAt = time.Now()
	return true, nil
}

func (r *fakeRepo) Transition(_ context.Context, id uuid.UUID, to Status, from []Status) (*Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	matched := false
	for _, f := range from {
		if s.Status == f {
			matched = true
			break
		}
	}
	if !matched {
		return nil, nil
	}
	s.Status = to
	if to == StatusCanceled {
		s.PatientID = nil
	}
	if to != StatusPendingPayment {
		s.PendingStartedAt = nil
	}
	s.UpdatedAt = time.Now()
	cp := *s
	return &cp, nil
}

func (r *fakeRepo) FindExpiredPending(_ context.Context, cutoff time.Time) ([]Slot, error) {
	r.mu.Lock()
	var out []Slot
	for _, s := range r.slots {
		if s.Status == StatusPendingPayment && s.PendingStartedAt != nil && !s.PendingStartedAt.After(cutoff) {
			out = append(out, *s)
		}
	}
	r.mu.Unlock()

	if r.afterFind != nil {
		r.afterFind()
	}
	return out, nil
}

type fakeProfiles struct {
	known map[uuid.UUID]bool
}

func (f *fakeProfiles) GetByID(_ context.Context, id uuid.UUID) (*profile.Profile, error) {
	if !f.known[id] {
		return nil, profile.ErrProfileNotFound
	}
	return &profile.Profile{ID: id, Role: profile.RolePatient}, nil
}

// nopLocker runs the critical section inline.
type nopLocker struct{}

func (nopLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService(repo *fakeRepo, patients ...uuid.UUID) *Service {
	known := make(map[uuid.UUID]bool)
	for _, p := range patients {
		known[p] = true
	}
	return NewService(repo, &fakeProfiles{known: known}, audit.Noop{}, nil, nopLocker{}, zap.NewNop())
}

func availableSlot(therapistID uuid.UUID) Slot {
	return Slot{
		ID:          uuid.New(),
		TherapistID: therapistID,
		VisitDate:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		StartTime:   "09:00",
		EndTime:     "10:00",
		ServiceType: ServiceDryNeedling,
		Status:      StatusAvailable,
	}
}

func TestCreateSlotValidation(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	therapist := uuid.New()
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name       string
		start, end string
		service    ServiceType
		wantErr    error
	}{
		{"end before start", "10:00", "09:00", ServiceDryNeedling, ErrInvalidTimeRange},
		{"start equals end", "09:00", "09:00", ServiceDryNeedling, ErrInvalidTimeRange},
		{"blank start", "", "10:00", ServiceDryNeedling, ErrMissingField},
		{"bad clock", "9:00", "10:00", ServiceDryNeedling, ErrInvalidClock},
		{"unknown service", "09:00", "10:00", "massage", ErrUnknownServiceType},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateSlot(ctx, therapist, date, tc.start, tc.end, tc.service)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	created, err := svc.CreateSlot(ctx, therapist, date, "09:00", "10:00", ServiceDryNeedling)
	require.NoError(t, err)
	assert.Equal(t, StatusAvailable, created.Status)
	assert.Nil(t, created.PatientID)
}

func TestCreateSlotRejectsOverlap(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)
	ctx := context.Background()
	therapist := uuid.New()
	date := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.CreateSlot(ctx, therapist, date, "09:00", "10:00", ServiceDryNeedling)
	require.NoError(t, err)

	_, err = svc.CreateSlot(ctx, therapist, date, "09:30", "10:30", ServiceTelehealthConsult)
	assert.ErrorIs(t, err, ErrSlotOverlap)

	// Adjacent is fine, as is the same window for another therapist.
	_, err = svc.CreateSlot(ctx, therapist, date, "10:00", "11:00", ServiceDryNeedling)
	assert.NoError(t, err)
	_, err = svc.CreateSlot(ctx, uuid.New(), date, "09:00", "10:00", ServiceDryNeedling)
	assert.NoError(t, err)
}

func TestUpdateAndDeleteAreStatusGated(t *testing.T) {
	repo := newFakeRepo()
	patient := uuid.New()
	svc := newTestService(repo, patient)
	ctx := context.Background()

	sl := availableSlot(uuid.New())
	repo.put(sl)

	_, err := svc.Reserve(ctx, sl.ID, patient)
	require.NoError(t, err)

	_, err = svc.UpdateSlot(ctx, sl.ID, "11:00", "12:00", ServiceDryNeedling)
	assert.ErrorIs(t, err, ErrEditConflict)

	err = svc.DeleteSlot(ctx, sl.ID)
	assert.ErrorIs(t, err, ErrEditConflict)

	// The slot is untouched by the rejected edit.
	got := repo.get(sl.ID)
	assert.Equal(t, "09:00", got.StartTime)
	assert.Equal(t, StatusPendingPayment, got.Status)
}

func TestReserveRace(t *testing.T) {
	repo := newFakeRepo()

	patients := make([]uuid.UUID, 16)
	for i := range patients {
		patients[i] = uuid.New()
	}
	svc := newTestService(repo, patients...)

	sl := availableSlot(uuid.New())
	repo.put(sl)

	var wg sync.WaitGroup
	winners := make(chan uuid.UUID, len(patients))
	losses := make(chan error, len(patients))

	for _, p := range patients {
		wg.Add(1)
		go func(patientID uuid.UUID) {
			defer wg.Done()
			_, err := svc.Reserve(context.Background(), sl.ID, patientID)
			if err != nil {
				losses <- err
				return
			}
			winners <- patientID
		}(p)
	}
	wg.Wait()
	close(winners)
	close(losses)

	require.Len(t, winners, 1, "exactly one Reserve must win")
	for err := range losses {
		assert.ErrorIs(t, err, ErrSlotUnavailable)
	}

	winner := <-winners
	got := repo.get(sl.ID)
	require.NotNil(t, got.PatientID)
	assert.Equal(t, winner, *got.PatientID)
	assert.Equal(t, StatusPendingPayment, got.Status)
}

func TestReserveUnknownPatient(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	sl := availableSlot(uuid.New())
	repo.put(sl)

	_, err := svc.Reserve(context.Background(), sl.ID, uuid.New())
	assert.ErrorIs(t, err, profile.ErrProfileNotFound)
	assert.Equal(t, StatusAvailable, repo.get(sl.ID).Status)
}

func TestReserveMissingSlot(t *testing.T) {
	repo := newFakeRepo()
	patient := uuid.New()
	svc := newTestService(repo, patient)

	_, err := svc.Reserve(context.Background(), uuid.New(), patient)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestSweepReclaimsExpiredPending(t *testing.T) {
	repo := newFakeRepo()
	patientA := uuid.New()
	patientB := uuid.New()
	svc := newTestService(repo, patientA, patientB)
	ctx := context.Background()

	sl := availableSlot(uuid.New())
	repo.put(sl)

	_, err := svc.Reserve(ctx, sl.ID, patientA)
	require.NoError(t, err)

	// Backdate the reservation past the timeout.
	started := time.Now().Add(-31 * time.Minute)
	stale := repo.get(sl.ID)
	stale.PendingStartedAt = &started
	repo.put(stale)

	reclaimed, err := svc.Sweep(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, reclaimed)

	got := repo.get(sl.ID)
	assert.Equal(t, StatusAvailable, got.Status)
	assert.Nil(t, got.PatientID)
	assert.Nil(t, got.PendingStartedAt)

	// The slot is reservable again, by anyone.
	_, err = svc.Reserve(ctx, sl.ID, patientB)
	assert.NoError(t, err)
}

func TestSweepLeavesFreshPendingAlone(t *testing.T) {
	repo := newFakeRepo()
	patient := uuid.New()
	svc := newTestService(repo, patient)
	ctx := context.Background()

	sl := availableSlot(uuid.New())
	repo.put(sl)

	_, err := svc.Reserve(ctx, sl.ID, patient)
	require.NoError(t, err)

	reclaimed, err := svc.Sweep(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, reclaimed)
	assert.Equal(t, StatusPendingPayment, repo.get(sl.ID).Status)
}

func TestSweepIdempotent(t *testing.T) {
	repo := newFakeRepo()
	patient := uuid.New()
	svc := newTestService(repo, patient)
	ctx := context.Background()

	sl := availableSlot(uuid.New())
	repo.put(sl)

	_, err := svc.Reserve(ctx, sl.ID, patient)
	require.NoError(t, err)

	started := time.Now().Add(-time.Hour)
	stale := repo.get(sl.ID)
	stale.PendingStartedAt = &started
	repo.put(stale)

	first, err := svc.Sweep(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	second, err := svc.Sweep(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, second, "second sweep must be a no-op")
	assert.Equal(t, StatusAvailable, repo.get(sl.ID).Status)
}

func TestSweepDoesNotResetBookedSlot(t *testing.T) {
	repo := newFakeRepo()
	patient := uuid.New()
	svc := newTestService(repo, patient)
	ctx := context.Background()

	sl := availableSlot(uuid.New())
	repo.put(sl)

	_, err := svc.Reserve(ctx, sl.ID, patient)
	require.NoError(t, err)

	started := time.Now().Add(-time.Hour)
	stale := repo.get(sl.ID)
	stale.PendingStartedAt = &started
	repo.put(stale)

	// The payment confirms between the sweep's scan and its write.
	repo.afterFind = func() {
		_, err := repo.MarkBooked(context.Background(), sl.ID)
		require.NoError(t, err)
	}

	reclaimed, err := svc.Sweep(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 0, reclaimed)
	assert.Equal(t, StatusBooked, repo.get(sl.ID).Status)
}

func TestCancelAndNoShow(t *testing.T) {
	repo := newFakeRepo()
	patient := uuid.New()
	svc := newTestService(repo, patient)
	ctx := context.Background()

	sl := availableSlot(uuid.New())
	repo.put(sl)

	// No-show requires a booked slot.
	_, err := svc.MarkNoShow(ctx, sl.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = svc.Reserve(ctx, sl.ID, patient)
	require.NoError(t, err)
	_, err = repo.MarkBooked(ctx, sl.ID)
	require.NoError(t, err)

	updated, err := svc.MarkNoShow(ctx, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, updated.Status)

	// Terminal: cancel after no-show is rejected.
	_, err = svc.Cancel(ctx, sl.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCancelClearsPatient(t *testing.T) {
	repo := newFakeRepo()
	patient := uuid.New()
	svc := newTestService(repo, patient)
	ctx := context.Background()

	sl := availableSlot(uuid.New())
	repo.put(sl)

	_, err := svc.Reserve(ctx, sl.ID, patient)
	require.NoError(t, err)

	updated, err := svc.Cancel(ctx, sl.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, updated.Status)
	assert.Nil(t, updated.PatientID)
}

func TestListAvailableRejectsUnknownServiceType(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo)

	_, err := svc.ListAvailable(context.Background(), time.Now(), "massage")
	assert.ErrorIs(t, err, ErrUnknownServiceType)
}
