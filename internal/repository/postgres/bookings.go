package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okupriienko/dogschool/internal/domain"
	"github.com/okupriienko/dogschool/internal/repository"
)

type BookingRepo struct {
	pool Pool
}

func (r *BookingRepo) handle(db DB) DB {
	if db != nil {
		return db
	}
	return r.pool
}

const bookingColumns = `id, schedule_id, student_id, enrollment_id, status, booked_at, cancelled_at`

// Insert stores a confirmed booking. A partial unique index on
// (schedule_id, student_id) for confirmed rows backs the
// one-active-booking-per-student-per-session rule; a violation comes
// back as repository.ErrConflict.
func (r *BookingRepo) Insert(ctx context.Context, db DB, b domain.Booking) error {
	const op = "postgres.BookingRepo.Insert"

	_, err := r.handle(db).Exec(ctx,
		`INSERT INTO bookings (id, schedule_id, student_id, enrollment_id, status, booked_at)
         VALUES ($1, $2, $3, $4, $5, $6)`,
		b.ID, b.ScheduleID, b.StudentID, b.EnrollmentID, b.Status, b.BookedAt,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

func (r *BookingRepo) Get(ctx context.Context, db DB, id uuid.UUID) (*domain.Booking, error) {
	return r.get(ctx, db, id, "")
}

// GetForUpdate locks the booking row for the rest of the transaction.
func (r *BookingRepo) GetForUpdate(ctx context.Context, db DB, id uuid.UUID) (*domain.Booking, error) {
	return r.get(ctx, db, id, " FOR UPDATE")
}

func (r *BookingRepo) get(ctx context.Context, db DB, id uuid.UUID, suffix string) (*domain.Booking, error) {
	const op = "postgres.BookingRepo.Get"

	var b domain.Booking

	err := r.handle(db).QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE id = $1`+suffix,
		id,
	).Scan(&b.ID, &b.ScheduleID, &b.StudentID, &b.EnrollmentID, &b.Status, &b.BookedAt, &b.CancelledAt)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &b, nil
}

// MarkCancelled transitions a confirmed booking to cancelled.
// Returns repository.ErrConflict if the booking is no longer confirmed.
func (r *BookingRepo) MarkCancelled(ctx context.Context, db DB, id uuid.UUID, at time.Time) error {
	const op = "postgres.BookingRepo.MarkCancelled"

	tag, err := r.handle(db).Exec(ctx,
		`UPDATE bookings
            SET status = 'cancelled', cancelled_at = $2
          WHERE id = $1 AND status = 'confirmed'`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	return nil
}

// HasConfirmed reports whether the student already holds a confirmed
// booking on the schedule.
func (r *BookingRepo) HasConfirmed(ctx context.Context, db DB, studentID, scheduleID int64) (bool, error) {
	const op = "postgres.BookingRepo.HasConfirmed"

	var exists bool

	err := r.handle(db).QueryRow(ctx,
		`SELECT EXISTS (
            SELECT 1 FROM bookings
             WHERE student_id = $1 AND schedule_id = $2 AND status = 'confirmed'
         )`,
		studentID, scheduleID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return exists, nil
}

// CountConfirmed is the authoritative load of a session. Booking
// transactions call it after locking the schedule row, so the count
// cannot go stale before the insert commits.
func (r *BookingRepo) CountConfirmed(ctx context.Context, db DB, scheduleID int64) (int64, error) {
	const op = "postgres.BookingRepo.CountConfirmed"

	var n int64

	err := r.handle(db).QueryRow(ctx,
		`SELECT count(*) FROM bookings WHERE schedule_id = $1 AND status = 'confirmed'`,
		scheduleID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return n, nil
}

// ListConfirmedBySchedule returns every confirmed booking on the
// session, row-locked so a schedule-wide cancellation can settle each
// one.
func (r *BookingRepo) ListConfirmedBySchedule(ctx context.Context, db DB, scheduleID int64) ([]domain.Booking, error) {
	const op = "postgres.BookingRepo.ListConfirmedBySchedule"

	rows, err := r.handle(db).Query(ctx,
		`SELECT `+bookingColumns+`
           FROM bookings
          WHERE schedule_id = $1 AND status = 'confirmed'
          ORDER BY booked_at ASC
            FOR UPDATE`,
		scheduleID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Booking
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(&b.ID, &b.ScheduleID, &b.StudentID, &b.EnrollmentID, &b.Status, &b.BookedAt, &b.CancelledAt); err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

// ListByStudent returns the student's bookings joined with their
// sessions, newest session first.
func (r *BookingRepo) ListByStudent(ctx context.Context, db DB, studentID int64, limit, offset int) ([]domain.BookingWithSchedule, error) {
	const op = "postgres.BookingRepo.ListByStudent"

	rows, err := r.handle(db).Query(ctx,
		`SELECT b.id, b.schedule_id, b.student_id, b.enrollment_id, b.status, b.booked_at, b.cancelled_at,
                s.id, s.class_id, s.starts_at, s.ends_at, s.type, s.max_students, s.status
           FROM bookings b
           JOIN schedules s ON s.id = b.schedule_id
          WHERE b.student_id = $1
          ORDER BY s.starts_at DESC
          LIMIT $2 OFFSET $3`,
		studentID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.BookingWithSchedule
	for rows.Next() {
		var bs domain.BookingWithSchedule
		if err := rows.Scan(
			&bs.Booking.ID, &bs.Booking.ScheduleID, &bs.Booking.StudentID, &bs.Booking.EnrollmentID,
			&bs.Booking.Status, &bs.Booking.BookedAt, &bs.Booking.CancelledAt,
			&bs.Schedule.ID, &bs.Schedule.ClassID, &bs.Schedule.StartsAt, &bs.Schedule.EndsAt,
			&bs.Schedule.Type, &bs.Schedule.MaxStudents, &bs.Schedule.Status,
		); err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		out = append(out, bs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}
