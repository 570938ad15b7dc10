package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/okupriienko/dogschool/internal/domain"
	"github.com/okupriienko/dogschool/internal/repository"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBookingRepo(t *testing.T) (*BookingRepo, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return &BookingRepo{pool: mock}, mock
}

func TestBookingRepo_Insert(t *testing.T) {
	repo, mock := newBookingRepo(t)

	b := domain.Booking{
		ID:           uuid.New(),
		ScheduleID:   10,
		StudentID:    42,
		EnrollmentID: uuid.New(),
		Status:       domain.BookingConfirmed,
		BookedAt:     time.Now(),
	}

	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(b.ID, b.ScheduleID, b.StudentID, b.EnrollmentID, b.Status, b.BookedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.Insert(context.Background(), nil, b))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBookingRepo_Insert_UniqueViolation(t *testing.T) {
	repo, mock := newBookingRepo(t)

	b := domain.Booking{
		ID:           uuid.New(),
		ScheduleID:   10,
		StudentID:    42,
		EnrollmentID: uuid.New(),
		Status:       domain.BookingConfirmed,
		BookedAt:     time.Now(),
	}

	mock.ExpectExec("INSERT INTO bookings").
		WithArgs(b.ID, b.ScheduleID, b.StudentID, b.EnrollmentID, b.Status, b.BookedAt).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	assert.ErrorIs(t, repo.Insert(context.Background(), nil, b), repository.ErrConflict)
}

func TestBookingRepo_MarkCancelled_NotConfirmed(t *testing.T) {
	repo, mock := newBookingRepo(t)
	id := uuid.New()
	at := time.Now()

	mock.ExpectExec("UPDATE bookings").
		WithArgs(id, at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	assert.ErrorIs(t, repo.MarkCancelled(context.Background(), nil, id, at), repository.ErrConflict)
}

func TestBookingRepo_HasConfirmed(t *testing.T) {
	repo, mock := newBookingRepo(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(int64(42), int64(10)).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	got, err := repo.HasConfirmed(context.Background(), nil, 42, 10)

	require.NoError(t, err)
	assert.True(t, got)
}

func TestBookingRepo_CountConfirmed(t *testing.T) {
	repo, mock := newBookingRepo(t)

	mock.ExpectQuery("SELECT count").
		WithArgs(int64(10)).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	n, err := repo.CountConfirmed(context.Background(), nil, 10)

	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

func TestBookingRepo_Get_NotFound(t *testing.T) {
	repo, mock := newBookingRepo(t)
	id := uuid.New()

	mock.ExpectQuery("SELECT").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), nil, id)

	assert.ErrorIs(t, err, repository.ErrNotFound)
}
