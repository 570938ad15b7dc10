package enrollment

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

func (m *mockEnrollmentStore) Get(ctx context.Context, db postgresrepo.DB, id uuid.UUID) (*domain.Enrollment, error) {
	args := m.Called(ctx, db, id)
	e, _ := args.Get(0).(*domain.Enrollment)
	return e, args.Error(1)
}

func (m *mockEnrollmentStore) GetForUpdate(ctx context.Context, db postgresrepo.DB, id uuid.UUID) (*domain.Enrollment, error) {
	args := m.Called(ctx, db, id)
	e, _ := args.Get(0).(*domain.Enrollment)
	return e, args.Error(1)
}

func (m *mockEnrollmentStore) Insert(ctx context.Context, db postgresrepo.DB, e domain.Enrollment) error {
	return m.Called(ctx, db, e).Error(0)
}

func (m *mockEnrollmentStore) Suspend(ctx context.Context, db postgresrepo.DB, id uuid.UUID) error {
	return m.Called(ctx, db, id).Error(0)
}

func (m *mockEnrollmentStore) Delete(ctx context.Context, db postgresrepo.DB, id uuid.UUID, force bool) error {
	return m.Called(ctx, db, id, force).Error(0)
}

type mockClassStore struct{ mock.Mock }

func (m *mockClassStore) Get(ctx context.Context, db postgresrepo.DB, id int64) (*domain.Class, error) {
	args := m.Called(ctx, db, id)
	c, _ := args.Get(0).(*domain.Class)
	return c, args.Error(1)
}

func validTerms() Terms {
	now := time.Now()
	return Terms{
		TotalCount: 8,
		ValidFrom:  now,
		ValidUntil: now.AddDate(0, 3, 0),
		PriceCents: 32000,
	}
}

func TestCreateTemplate(t *testing.T) {
	enrollments := &mockEnrollmentStore{}
	classes := &mockClassStore{}
	svc := New(stubRunner{}, enrollments, classes)

	classes.On("Get", mock.Anything, mock.Anything, int64(3)).Return(&domain.Class{ID: 3}, nil)

	var inserted domain.Enrollment
	enrollments.On("Insert", mock.Anything, mock.Anything, mock.AnythingOfType("domain.Enrollment")).
		Run(func(args mock.Arguments) {
			inserted = args.Get(2).(domain.Enrollment)
		}).
		Return(nil)

	id, err := svc.CreateTemplate(context.Background(), 3, validTerms())

	require.NoError(t, err)
	assert.Equal(t, inserted.ID, id)
	assert.True(t, inserted.IsTemplate())
	assert.Equal(t, domain.EnrollmentActive, inserted.Status)
	assert.Zero(t, inserted.UsedCount)
}

func TestCreateAssigned(t *testing.T) {
	enrollments := &mockEnrollmentStore{}
	classes := &mockClassStore{}
	svc := New(stubRunner{}, enrollments, classes)

	classes.On("Get", mock.Anything, mock.Anything, int64(3)).Return(&domain.Class{ID: 3}, nil)

	var inserted domain.Enrollment
	enrollments.On("Insert", mock.Anything, mock.Anything, mock.AnythingOfType("domain.Enrollment")).
		Run(func(args mock.Arguments) {
			inserted = args.Get(2).(domain.Enrollment)
		}).
		Return(nil)

	_, err := svc.CreateAssigned(context.Background(), 42, 3, validTerms())

	require.NoError(t, err)
	require.NotNil(t, inserted.StudentID)
	assert.Equal(t, int64(42), *inserted.StudentID)
}

func TestCreate_InvalidTerms(t *testing.T) {
	enrollments := &mockEnrollmentStore{}
	classes := &mockClassStore{}
	svc := New(stubRunner{}, enrollments, classes)

	terms := validTerms()
	terms.TotalCount = 0
	_, err := svc.CreateTemplate(context.Background(), 3, terms)
	assert.ErrorIs(t, err, ErrInvalidTerms)

	terms = validTerms()
	terms.ValidUntil = terms.ValidFrom
	_, err = svc.CreateTemplate(context.Background(), 3, terms)
	assert.ErrorIs(t, err, ErrInvalidTerms)

	enrollments.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreate_ClassNotFound(t *testing.T) {
	enrollments := &mockEnrollmentStore{}
	classes := &mockClassStore{}
	svc := New(stubRunner{}, enrollments, classes)

	classes.On("Get", mock.Anything, mock.Anything, int64(99)).Return(nil, repository.ErrNotFound)

	_, err := svc.CreateTemplate(context.Background(), 99, validTerms())

	assert.ErrorIs(t, err, ErrClassNotFound)
}

func TestAssignTemplate(t *testing.T) {
	enrollments := &mockEnrollmentStore{}
	classes := &mockClassStore{}
	svc := New(stubRunner{}, enrollments, classes)

	tmpl := &domain.Enrollment{
		ID:         uuid.New(),
		ClassID:    3,
		TotalCount: 8,
		UsedCount:  2, // a used template still assigns fresh copies
		ValidFrom:  time.Now(),
		ValidUntil: time.Now().AddDate(0, 3, 0),
		Status:     domain.EnrollmentActive,
	}

	enrollments.On("GetForUpdate", mock.Anything, mock.Anything, tmpl.ID).Return(tmpl, nil)

	var copies []domain.Enrollment
	enrollments.On("Insert", mock.Anything, mock.Anything, mock.AnythingOfType("domain.Enrollment")).
		Run(func(args mock.Arguments) {
			copies = append(copies, args.Get(2).(domain.Enrollment))
		}).
		Return(nil)

	ids, err := svc.AssignTemplate(context.Background(), tmpl.ID, []int64{42, 43})

	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Len(t, copies, 2)

	assert.Equal(t, int64(42), *copies[0].StudentID)
	assert.Equal(t, int64(43), *copies[1].StudentID)
	for _, cp := range copies {
		assert.NotEqual(t, tmpl.ID, cp.ID)
		assert.Zero(t, cp.UsedCount)
		assert.Equal(t, tmpl.TotalCount, cp.TotalCount)
	}
}

func TestAssignTemplate_NotATemplate(t *testing.T) {
	enrollments := &mockEnrollmentStore{}
	classes := &mockClassStore{}
	svc := New(stubRunner{}, enrollments, classes)

	studentID := int64(7)
	assigned := &domain.Enrollment{
		ID:        uuid.New(),
		StudentID: &studentID,
		Status:    domain.EnrollmentActive,
	}

	enrollments.On("GetForUpdate", mock.Anything, mock.Anything, assigned.ID).Return(assigned, nil)

	_, err := svc.AssignTemplate(context.Background(), assigned.ID, []int64{42})

	assert.ErrorIs(t, err, ErrNotTemplate)
	enrollments.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
}

func TestAssignTemplate_SuspendedTemplate(t *testing.T) {
	enrollments := &mockEnrollmentStore{}
	classes := &mockClassStore{}
	svc := New(stubRunner{}, enrollments, classes)

	tmpl := &domain.Enrollment{ID: uuid.New(), Status: domain.EnrollmentSuspended}
	enrollments.On("GetForUpdate", mock.Anything, mock.Anything, tmpl.ID).Return(tmpl, nil)

	_, err := svc.AssignTemplate(context.Background(), tmpl.ID, []int64{42})

	assert.ErrorIs(t, err, ErrNotActive)
}

func TestSuspend(t *testing.T) {
	enrollments := &mockEnrollmentStore{}
	svc := New(stubRunner{}, enrollments, &mockClassStore{})

	id := uuid.New()
	enrollments.On("Suspend", mock.Anything, mock.Anything, id).Return(nil)

	assert.NoError(t, svc.Suspend(context.Background(), id))
}

func TestSuspend_NotActive(t *testing.T) {
	enrollments := &mockEnrollmentStore{}
	svc := New(stubRunner{}, enrollments, &mockClassStore{})

	id := uuid.New()
	enrollments.On("Suspend", mock.Anything, mock.Anything, id).Return(repository.ErrNotActive)

	assert.ErrorIs(t, svc.Suspend(context.Background(), id), ErrNotActive)
}

func TestDelete_UsedTicketNeedsForce(t *testing.T) {
	enrollments := &mockEnrollmentStore{}
	svc := New(stubRunner{}, enrollments, &mockClassStore{})

	id := uuid.New()
	enrollments.On("Delete", mock.Anything, mock.Anything, id, false).Return(repository.ErrConflict)
	enrollments.On("Delete", mock.Anything, mock.Anything, id, true).Return(nil)

	assert.ErrorIs(t, svc.Delete(context.Background(), id, false), ErrInUse)
	assert.NoError(t, svc.Delete(context.Background(), id, true))
}
