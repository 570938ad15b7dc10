package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okupriienko/dogschool/internal/domain"
	"github.com/okupriienko/dogschool/internal/repository"
	postgresrepo "github.com/okupriienko/dogschool/internal/repository/postgres"
	"github.com/okupriienko/dogschool/internal/uow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// stubRunner replays the unit-of-work contract without a database:
// fn runs with a nil tx and hooks fire only when fn succeeds.
type stubRunner struct{}

func (stubRunner) Do(
	ctx context.Context,
	fn func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error,
) error {
	var hooks []uow.AfterCommit
	if err := fn(ctx, nil, func(h uow.AfterCommit) { hooks = append(hooks, h) }); err != nil {
		return err
	}
	for _, h := range hooks {
		h(ctx)
	}
	return nil
}

type mockEnrollmentStore struct{ mock.Mock }

func (m *mockEnrollmentStore) GetForUpdate(ctx context.Context, db postgresrepo.DB, id uuid.UUID) (*domain.Enrollment, error) {
	args := m.Called(ctx, db, id)
	e, _ := args.Get(0).(*domain.Enrollment)
	return e, args.Error(1)
}

func (m *mockEnrollmentStore) FindEligible(ctx context.Context, db postgresrepo.DB, studentID, classID int64) ([]domain.Enrollment, error) {
	args := m.Called(ctx, db, studentID, classID)
	es, _ := args.Get(0).([]domain.Enrollment)
	return es, args.Error(1)
}

func (m *mockEnrollmentStore) Debit(ctx context.Context, db postgresrepo.DB, id uuid.UUID) error {
	return m.Called(ctx, db, id).Error(0)
}

func (m *mockEnrollmentStore) Credit(ctx context.Context, db postgresrepo.DB, id uuid.UUID) error {
	return m.Called(ctx, db, id).Error(0)
}

type mockScheduleStore struct{ mock.Mock }

func (m *mockScheduleStore) Get(ctx context.Context, db postgresrepo.DB, id int64) (*domain.Schedule, error) {
	args := m.Called(ctx, db, id)
	s, _ := args.Get(0).(*domain.Schedule)
	return s, args.Error(1)
}

func (m *mockScheduleStore) GetForUpdate(ctx context.Context, db postgresrepo.DB, id int64) (*domain.Schedule, error) {
	args := m.Called(ctx, db, id)
	s, _ := args.Get(0).(*domain.Schedule)
	return s, args.Error(1)
}

type mockBookingStore struct{ mock.Mock }

func (m *mockBookingStore) Insert(ctx context.Context, db postgresrepo.DB, b domain.Booking) error {
	return m.Called(ctx, db, b).Error(0)
}

func (m *mockBookingStore) GetForUpdate(ctx context.Context, db postgresrepo.DB, id uuid.UUID) (*domain.Booking, error) {
	args := m.Called(ctx, db, id)
	b, _ := args.Get(0).(*domain.Booking)
	return b, args.Error(1)
}

func (m *mockBookingStore) MarkCancelled(ctx context.Context, db postgresrepo.DB, id uuid.UUID, at time.Time) error {
	return m.Called(ctx, db, id, at).Error(0)
}

func (m *mockBookingStore) HasConfirmed(ctx context.Context, db postgresrepo.DB, studentID, scheduleID int64) (bool, error) {
	args := m.Called(ctx, db, studentID, scheduleID)
	return args.Bool(0), args.Error(1)
}

func (m *mockBookingStore) CountConfirmed(ctx context.Context, db postgresrepo.DB, scheduleID int64) (int64, error) {
	args := m.Called(ctx, db, scheduleID)
	return args.Get(0).(int64), args.Error(1)
}

type mockClassStore struct{ mock.Mock }

func (m *mockClassStore) Get(ctx context.Context, db postgresrepo.DB, id int64) (*domain.Class, error) {
	args := m.Called(ctx, db, id)
	c, _ := args.Get(0).(*domain.Class)
	return c, args.Error(1)
}

type mockNotifier struct{ mock.Mock }

func (m *mockNotifier) Send(ctx context.Context, studentID int64, message string) error {
	return m.Called(ctx, studentID, message).Error(0)
}

type fixture struct {
	enrollments *mockEnrollmentStore
	schedules   *mockScheduleStore
	bookings    *mockBookingStore
	classes     *mockClassStore
	svc         *Service
}

func newFixture() *fixture {
	f := &fixture{
		enrollments: &mockEnrollmentStore{},
		schedules:   &mockScheduleStore{},
		bookings:    &mockBookingStore{},
		classes:     &mockClassStore{},
	}
	f.svc = New(stubRunner{}, f.enrollments, f.schedules, f.bookings, f.classes,
		nil, nil, nil, nil, Config{})
	return f
}

func groupSchedule(id, classID int64, startsIn time.Duration, capacity int32) *domain.Schedule {
	now := time.Now()
	return &domain.Schedule{
		ID:          id,
		ClassID:     classID,
		StartsAt:    now.Add(startsIn),
		EndsAt:      now.Add(startsIn + time.Hour),
		Type:        domain.ScheduleGroup,
		MaxStudents: &capacity,
		Status:      domain.ScheduleScheduled,
	}
}

func activeEnrollment(studentID, classID int64, total, used int) *domain.Enrollment {
	now := time.Now()
	return &domain.Enrollment{
		ID:         uuid.New(),
		StudentID:  &studentID,
		ClassID:    classID,
		TotalCount: total,
		UsedCount:  used,
		ValidFrom:  now.AddDate(0, -1, 0),
		ValidUntil: now.AddDate(0, 1, 0),
		Status:     domain.EnrollmentActive,
	}
}

func TestCreateBooking_Success(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sched := groupSchedule(10, 3, 48*time.Hour, 8)
	enr := activeEnrollment(42, 3, 8, 2)

	f.schedules.On("GetForUpdate", mock.Anything, mock.Anything, int64(10)).Return(sched, nil)
	f.enrollments.On("GetForUpdate", mock.Anything, mock.Anything, enr.ID).Return(enr, nil)
	f.bookings.On("HasConfirmed", mock.Anything, mock.Anything, int64(42), int64(10)).Return(false, nil)
	f.bookings.On("CountConfirmed", mock.Anything, mock.Anything, int64(10)).Return(int64(3), nil)
	f.enrollments.On("Debit", mock.Anything, mock.Anything, enr.ID).Return(nil)
	f.bookings.On("Insert", mock.Anything, mock.Anything, mock.AnythingOfType("domain.Booking")).Return(nil)

	b, err := f.svc.CreateBooking(ctx, 42, 10, enr.ID, "")

	require.NoError(t, err)
	assert.Equal(t, int64(42), b.StudentID)
	assert.Equal(t, int64(10), b.ScheduleID)
	assert.Equal(t, enr.ID, b.EnrollmentID)
	assert.Equal(t, domain.BookingConfirmed, b.Status)
	assert.NotEqual(t, uuid.Nil, b.ID)
	f.enrollments.AssertExpectations(t)
	f.bookings.AssertExpectations(t)
}

func TestCreateBooking_AutoPicksEarliestExpiring(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	sched := groupSchedule(10, 3, 48*time.Hour, 8)
	first := activeEnrollment(42, 3, 8, 0)
	second := activeEnrollment(42, 3, 8, 0)

	f.schedules.On("GetForUpdate", mock.Anything, mock.Anything, int64(10)).Return(sched, nil)
	f.enrollments.On("FindEligible", mock.Anything, mock.Anything, int64(42), int64(3)).
		Return([]domain.Enrollment{*first, *second}, nil)
	f.bookings.On("HasConfirmed", mock.Anything, mock.Anything, int64(42), int64(10)).Return(false, nil)
	f.bookings.On("CountConfirmed", mock.Anything, mock.Anything, int64(10)).Return(int64(0), nil)
	f.enrollments.On("Debit", mock.Anything, mock.Anything, first.ID).Return(nil)
	f.bookings.On("Insert", mock.Anything, mock.Anything, mock.AnythingOfType("domain.Booking")).Return(nil)

	b, err := f.svc.CreateBooking(ctx, 42, 10, uuid.Nil, "")

	require.NoError(t, err)
	assert.Equal(t, first.ID, b.EnrollmentID)
	f.enrollments.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, second.ID)
}

func TestCreateBooking_NoEligibleTicket(t *testing.T) {
	f := newFixture()

	sched := groupSchedule(10, 3, 48*time.Hour, 8)
	f.schedules.On("GetForUpdate", mock.Anything, mock.Anything, int64(10)).Return(sched, nil)
	f.enrollments.On("FindEligible", mock.Anything, mock.Anything, int64(42), int64(3)).
		Return([]domain.Enrollment{}, nil)

	_, err := f.svc.CreateBooking(context.Background(), 42, 10, uuid.Nil, "")

	assert.ErrorIs(t, err, ErrNoValidTicket)
	f.enrollments.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateBooking_TicketExhausted(t *testing.T) {
	f := newFixture()

	sched := groupSchedule(10, 3, 48*time.Hour, 8)
	enr := activeEnrollment(42, 3, 8, 7)

	f.schedules.On("GetForUpdate", mock.Anything, mock.Anything, int64(10)).Return(sched, nil)
	f.enrollments.On("GetForUpdate", mock.Anything, mock.Anything, enr.ID).Return(enr, nil)
	f.bookings.On("HasConfirmed", mock.Anything, mock.Anything, int64(42), int64(10)).Return(false, nil)
	f.bookings.On("CountConfirmed", mock.Anything, mock.Anything, int64(10)).Return(int64(0), nil)
	// a concurrent debit drained the last session between the read and the update
	f.enrollments.On("Debit", mock.Anything, mock.Anything, enr.ID).Return(repository.ErrNoRemaining)

	_, err := f.svc.CreateBooking(context.Background(), 42, 10, enr.ID, "")

	assert.ErrorIs(t, err, ErrTicketExhausted)
	f.bookings.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateBooking_SessionFull(t *testing.T) {
	f := newFixture()

	sched := groupSchedule(10, 3, 48*time.Hour, 8)
	enr := activeEnrollment(42, 3, 8, 0)

	f.schedules.On("GetForUpdate", mock.Anything, mock.Anything, int64(10)).Return(sched, nil)
	f.enrollments.On("GetForUpdate", mock.Anything, mock.Anything, enr.ID).Return(enr, nil)
	f.bookings.On("HasConfirmed", mock.Anything, mock.Anything, int64(42), int64(10)).Return(false, nil)
	f.bookings.On("CountConfirmed", mock.Anything, mock.Anything, int64(10)).Return(int64(8), nil)

	_, err := f.svc.CreateBooking(context.Background(), 42, 10, enr.ID, "")

	assert.ErrorIs(t, err, ErrSessionFull)
	f.enrollments.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateBooking_Duplicate(t *testing.T) {
	f := newFixture()

	sched := groupSchedule(10, 3, 48*time.Hour, 8)
	enr := activeEnrollment(42, 3, 8, 0)

	f.schedules.On("GetForUpdate", mock.Anything, mock.Anything, int64(10)).Return(sched, nil)
	f.enrollments.On("GetForUpdate", mock.Anything, mock.Anything, enr.ID).Return(enr, nil)
	f.bookings.On("HasConfirmed", mock.Anything, mock.Anything, int64(42), int64(10)).Return(true, nil)

	_, err := f.svc.CreateBooking(context.Background(), 42, 10, enr.ID, "")

	assert.ErrorIs(t, err, ErrDuplicateBooking)
}

func TestCreateBooking_DuplicateRace(t *testing.T) {
	f := newFixture()

	sched := groupSchedule(10, 3, 48*time.Hour, 8)
	enr := activeEnrollment(42, 3, 8, 0)

	f.schedules.On("GetForUpdate", mock.Anything, mock.Anything, int64(10)).Return(sched, nil)
	f.enrollments.On("GetForUpdate", mock.Anything, mock.Anything, enr.ID).Return(enr, nil)
	f.bookings.On("HasConfirmed", mock.Anything, mock.Anything, int64(42), int64(10)).Return(false, nil)
	f.bookings.On("CountConfirmed", mock.Anything, mock.Anything, int64(10)).Return(int64(0), nil)
	f.enrollments.On("Debit", mock.Anything, mock.Anything, enr.ID).Return(nil)
	// the partial unique index fires for the loser of the race
	f.bookings.On("Insert", mock.Anything, mock.Anything, mock.AnythingOfType("domain.Booking")).
		Return(repository.ErrConflict)

	_, err := f.svc.CreateBooking(context.Background(), 42, 10, enr.ID, "")

	assert.ErrorIs(t, err, ErrDuplicateBooking)
}

func TestCreateBooking_ElapsedSchedule(t *testing.T) {
	f := newFixture()

	sched := groupSchedule(10, 3, -3*time.Hour, 8)
	f.schedules.On("GetForUpdate", mock.Anything, mock.Anything, int64(10)).Return(sched, nil)

	_, err := f.svc.CreateBooking(context.Background(), 42, 10, uuid.Nil, "")

	assert.ErrorIs(t, err, ErrScheduleUnavailable)
}

func TestCreateBooking_ScheduleNotFound(t *testing.T) {
	f := newFixture()

	f.schedules.On("GetForUpdate", mock.Anything, mock.Anything, int64(99)).
		Return(nil, repository.ErrNotFound)

	_, err := f.svc.CreateBooking(context.Background(), 42, 99, uuid.Nil, "")

	assert.ErrorIs(t, err, ErrScheduleNotFound)
}

func TestCreateBooking_WrongStudentsTicket(t *testing.T) {
	f := newFixture()

	sched := groupSchedule(10, 3, 48*time.Hour, 8)
	enr := activeEnrollment(7, 3, 8, 0) // belongs to someone else

	f.schedules.On("GetForUpdate", mock.Anything, mock.Anything, int64(10)).Return(sched, nil)
	f.enrollments.On("GetForUpdate", mock.Anything, mock.Anything, enr.ID).Return(enr, nil)

	_, err := f.svc.CreateBooking(context.Background(), 42, 10, enr.ID, "")

	assert.ErrorIs(t, err, ErrNoValidTicket)
}

func TestCancelBooking_OnTimeRefunds(t *testing.T) {
	f := newFixture()

	sched := groupSchedule(10, 3, 48*time.Hour, 8)
	enr := activeEnrollment(42, 3, 8, 3)
	b := &domain.Booking{
		ID:           uuid.New(),
		ScheduleID:   10,
		StudentID:    42,
		EnrollmentID: enr.ID,
		Status:       domain.BookingConfirmed,
	}

	f.bookings.On("GetForUpdate", mock.Anything, mock.Anything, b.ID).Return(b, nil)
	f.schedules.On("Get", mock.Anything, mock.Anything, int64(10)).Return(sched, nil)
	f.enrollments.On("GetForUpdate", mock.Anything, mock.Anything, enr.ID).Return(enr, nil)
	f.classes.On("Get", mock.Anything, mock.Anything, int64(3)).Return(&domain.Class{ID: 3}, nil)
	f.bookings.On("MarkCancelled", mock.Anything, mock.Anything, b.ID, mock.AnythingOfType("time.Time")).Return(nil)
	f.enrollments.On("Credit", mock.Anything, mock.Anything, enr.ID).Return(nil)

	refunded, err := f.svc.CancelBooking(context.Background(), b.ID)

	require.NoError(t, err)
	assert.True(t, refunded)
	f.enrollments.AssertNumberOfCalls(t, "Credit", 1)
}

func TestCancelBooking_LateForfeits(t *testing.T) {
	f := newFixture()

	// one hour before start, inside the default 24h window
	sched := groupSchedule(10, 3, time.Hour, 8)
	enr := activeEnrollment(42, 3, 8, 3)
	b := &domain.Booking{
		ID:           uuid.New(),
		ScheduleID:   10,
		StudentID:    42,
		EnrollmentID: enr.ID,
		Status:       domain.BookingConfirmed,
	}

	f.bookings.On("GetForUpdate", mock.Anything, mock.Anything, b.ID).Return(b, nil)
	f.schedules.On("Get", mock.Anything, mock.Anything, int64(10)).Return(sched, nil)
	f.enrollments.On("GetForUpdate", mock.Anything, mock.Anything, enr.ID).Return(enr, nil)
	f.classes.On("Get", mock.Anything, mock.Anything, int64(3)).Return(&domain.Class{ID: 3}, nil)
	f.bookings.On("MarkCancelled", mock.Anything, mock.Anything, b.ID, mock.AnythingOfType("time.Time")).Return(nil)

	refunded, err := f.svc.CancelBooking(context.Background(), b.ID)

	require.NoError(t, err)
	assert.False(t, refunded)
	f.enrollments.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelBooking_EnrollmentCutoffOverride(t *testing.T) {
	f := newFixture()

	// a zero-hour override makes a last-minute cancellation refundable
	zero := 0
	sched := groupSchedule(10, 3, time.Hour, 8)
	enr := activeEnrollment(42, 3, 8, 3)
	enr.CancelCutoffHours = &zero
	b := &domain.Booking{
		ID:           uuid.New(),
		ScheduleID:   10,
		StudentID:    42,
		EnrollmentID: enr.ID,
		Status:       domain.BookingConfirmed,
	}

	f.bookings.On("GetForUpdate", mock.Anything, mock.Anything, b.ID).Return(b, nil)
	f.schedules.On("Get", mock.Anything, mock.Anything, int64(10)).Return(sched, nil)
	f.enrollments.On("GetForUpdate", mock.Anything, mock.Anything, enr.ID).Return(enr, nil)
	f.bookings.On("MarkCancelled", mock.Anything, mock.Anything, b.ID, mock.AnythingOfType("time.Time")).Return(nil)
	f.enrollments.On("Credit", mock.Anything, mock.Anything, enr.ID).Return(nil)

	refunded, err := f.svc.CancelBooking(context.Background(), b.ID)

	require.NoError(t, err)
	assert.True(t, refunded)
	f.classes.AssertNotCalled(t, "Get", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelBooking_AlreadyCancelled(t *testing.T) {
	f := newFixture()

	b := &domain.Booking{ID: uuid.New(), Status: domain.BookingCancelled}
	f.bookings.On("GetForUpdate", mock.Anything, mock.Anything, b.ID).Return(b, nil)

	_, err := f.svc.CancelBooking(context.Background(), b.ID)

	assert.ErrorIs(t, err, ErrAlreadyCancelled)
	f.bookings.AssertNotCalled(t, "MarkCancelled", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.enrollments.AssertNotCalled(t, "Credit", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelBooking_SessionCompleted(t *testing.T) {
	f := newFixture()

	sched := groupSchedule(10, 3, -3*time.Hour, 8)
	b := &domain.Booking{
		ID:         uuid.New(),
		ScheduleID: 10,
		Status:     domain.BookingConfirmed,
	}

	f.bookings.On("GetForUpdate", mock.Anything, mock.Anything, b.ID).Return(b, nil)
	f.schedules.On("Get", mock.Anything, mock.Anything, int64(10)).Return(sched, nil)

	_, err := f.svc.CancelBooking(context.Background(), b.ID)

	assert.ErrorIs(t, err, ErrSessionCompleted)
	f.bookings.AssertNotCalled(t, "MarkCancelled", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelBooking_NotFound(t *testing.T) {
	f := newFixture()

	id := uuid.New()
	f.bookings.On("GetForUpdate", mock.Anything, mock.Anything, id).Return(nil, repository.ErrNotFound)

	_, err := f.svc.CancelBooking(context.Background(), id)

	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestCreateBooking_NotifiesAfterCommit(t *testing.T) {
	f := newFixture()
	notifier := &mockNotifier{}
	f.svc.notifier = notifier

	sched := groupSchedule(10, 3, 48*time.Hour, 8)
	enr := activeEnrollment(42, 3, 8, 0)

	f.schedules.On("GetForUpdate", mock.Anything, mock.Anything, int64(10)).Return(sched, nil)
	f.enrollments.On("GetForUpdate", mock.Anything, mock.Anything, enr.ID).Return(enr, nil)
	f.bookings.On("HasConfirmed", mock.Anything, mock.Anything, int64(42), int64(10)).Return(false, nil)
	f.bookings.On("CountConfirmed", mock.Anything, mock.Anything, int64(10)).Return(int64(0), nil)
	f.enrollments.On("Debit", mock.Anything, mock.Anything, enr.ID).Return(nil)
	f.bookings.On("Insert", mock.Anything, mock.Anything, mock.AnythingOfType("domain.Booking")).Return(nil)
	notifier.On("Send", mock.Anything, int64(42), mock.AnythingOfType("string")).Return(nil)

	_, err := f.svc.CreateBooking(context.Background(), 42, 10, enr.ID, "")

	require.NoError(t, err)
	notifier.AssertNumberOfCalls(t, "Send", 1)
}
