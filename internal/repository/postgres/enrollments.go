package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/okupriienko/dogschool/internal/domain"
	"github.com/okupriienko/dogschool/internal/repository"
)

type EnrollmentRepo struct {
	pool Pool
}

func (r *EnrollmentRepo) handle(db DB) DB {
	if db != nil {
		return db
	}
	return r.pool
}

const enrollmentColumns = `id, student_id, class_id, total_count, used_count,
       valid_from, valid_until, status, weekly_limit, monthly_limit,
       price_cents, cancel_cutoff_hours, max_students_per_class, created_at`

// Debit consumes one session from the enrollment. The update is a single
// conditional statement, so two concurrent debits of the last session
// cannot both succeed.
//
// Returns:
//   - repository.ErrNotFound if the enrollment does not exist.
//   - repository.ErrNotAssigned if it is still an unassigned template.
//   - repository.ErrNotActive if status is not active or the date is outside the validity window.
//   - repository.ErrNoRemaining if used_count already equals total_count.
func (r *EnrollmentRepo) Debit(ctx context.Context, db DB, id uuid.UUID) error {
	const op = "postgres.EnrollmentRepo.Debit"

	db = r.handle(db)

	tag, err := db.Exec(ctx,
		`UPDATE enrollments
            SET used_count = used_count + 1
          WHERE id = $1
            AND student_id IS NOT NULL
            AND status = 'active'
            AND used_count < total_count
            AND now() BETWEEN valid_from AND valid_until`,
		id,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 1 {
		return nil
	}

	reason, err := r.debitFailReason(ctx, db, id)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return fmt.Errorf("%s:%w", op, reason)
}

// debitFailReason re-reads the row to explain why the conditional debit
// matched nothing.
func (r *EnrollmentRepo) debitFailReason(ctx context.Context, db DB, id uuid.UUID) (error, error) {
	var (
		assigned   bool
		status     domain.EnrollmentStatus
		inWindow   bool
		usedCount  int
		totalCount int
	)

	err := db.QueryRow(ctx,
		`SELECT student_id IS NOT NULL,
                status,
                now() BETWEEN valid_from AND valid_until,
                used_count,
                total_count
           FROM enrollments
          WHERE id = $1`,
		id,
	).Scan(&assigned, &status, &inWindow, &usedCount, &totalCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.ErrNotFound, nil
		}
		return nil, err
	}

	switch {
	case !assigned:
		return repository.ErrNotAssigned, nil
	case status != domain.EnrollmentActive || !inWindow:
		return repository.ErrNotActive, nil
	case usedCount >= totalCount:
		return repository.ErrNoRemaining, nil
	default:
		// the row changed between the update and this read
		return repository.ErrConflict, nil
	}
}

// Credit restores one session, floored at zero. The caller is
// responsible for calling it at most once per reversed booking.
func (r *EnrollmentRepo) Credit(ctx context.Context, db DB, id uuid.UUID) error {
	const op = "postgres.EnrollmentRepo.Credit"

	tag, err := r.handle(db).Exec(ctx,
		`UPDATE enrollments
            SET used_count = GREATEST(used_count - 1, 0)
          WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// FindEligible returns the student's active enrollments for the class
// with sessions remaining, earliest-expiring first.
func (r *EnrollmentRepo) FindEligible(
	ctx context.Context,
	db DB,
	studentID, classID int64,
) ([]domain.Enrollment, error) {
	const op = "postgres.EnrollmentRepo.FindEligible"

	rows, err := r.handle(db).Query(ctx,
		`SELECT `+enrollmentColumns+`
           FROM enrollments
          WHERE student_id = $1
            AND class_id = $2
            AND status = 'active'
            AND used_count < total_count
            AND now() BETWEEN valid_from AND valid_until
          ORDER BY valid_until ASC`,
		studentID, classID,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Enrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}

func (r *EnrollmentRepo) Get(ctx context.Context, db DB, id uuid.UUID) (*domain.Enrollment, error) {
	return r.get(ctx, db, id, "")
}

// GetForUpdate locks the enrollment row for the rest of the transaction.
func (r *EnrollmentRepo) GetForUpdate(ctx context.Context, db DB, id uuid.UUID) (*domain.Enrollment, error) {
	return r.get(ctx, db, id, " FOR UPDATE")
}

func (r *EnrollmentRepo) get(ctx context.Context, db DB, id uuid.UUID, suffix string) (*domain.Enrollment, error) {
	const op = "postgres.EnrollmentRepo.Get"

	row := r.handle(db).QueryRow(ctx,
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1`+suffix,
		id,
	)

	e, err := scanEnrollment(row)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &e, nil
}

// Insert stores a new enrollment (template or assigned).
func (r *EnrollmentRepo) Insert(ctx context.Context, db DB, e domain.Enrollment) error {
	const op = "postgres.EnrollmentRepo.Insert"

	_, err := r.handle(db).Exec(ctx,
		`INSERT INTO enrollments (
            id, student_id, class_id, total_count, used_count,
            valid_from, valid_until, status, weekly_limit, monthly_limit,
            price_cents, cancel_cutoff_hours, max_students_per_class, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		e.ID, e.StudentID, e.ClassID, e.TotalCount, e.UsedCount,
		e.ValidFrom, e.ValidUntil, e.Status, e.WeeklyLimit, e.MonthlyLimit,
		e.PriceCents, e.CancelCutoffHours, e.MaxStudentsPerClass, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return nil
}

// Suspend moves an active enrollment to suspended.
func (r *EnrollmentRepo) Suspend(ctx context.Context, db DB, id uuid.UUID) error {
	const op = "postgres.EnrollmentRepo.Suspend"

	db = r.handle(db)

	tag, err := db.Exec(ctx,
		`UPDATE enrollments SET status = 'suspended' WHERE id = $1 AND status = 'active'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM enrollments WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		if !exists {
			return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}
		return fmt.Errorf("%s:%w", op, repository.ErrNotActive)
	}

	return nil
}

// Delete removes an enrollment. Unless force is set, a partially used
// ticket is protected and the delete fails with repository.ErrConflict.
func (r *EnrollmentRepo) Delete(ctx context.Context, db DB, id uuid.UUID, force bool) error {
	const op = "postgres.EnrollmentRepo.Delete"

	db = r.handle(db)

	q := `DELETE FROM enrollments WHERE id = $1 AND used_count = 0`
	if force {
		q = `DELETE FROM enrollments WHERE id = $1`
	}

	tag, err := db.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM enrollments WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		if exists {
			return fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// ExpireOutdated flips active enrollments whose validity window has
// passed to expired. Returns the number of rows updated.
func (r *EnrollmentRepo) ExpireOutdated(ctx context.Context, db DB) (int64, error) {
	const op = "postgres.EnrollmentRepo.ExpireOutdated"

	tag, err := r.handle(db).Exec(ctx,
		`UPDATE enrollments
            SET status = 'expired'
          WHERE status = 'active' AND valid_until < now()`,
	)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return tag.RowsAffected(), nil
}

func scanEnrollment(row pgx.Row) (domain.Enrollment, error) {
	var (
		e         domain.Enrollment
		studentID *int64
		createdAt time.Time
	)

	err := row.Scan(
		&e.ID, &studentID, &e.ClassID, &e.TotalCount, &e.UsedCount,
		&e.ValidFrom, &e.ValidUntil, &e.Status, &e.WeeklyLimit, &e.MonthlyLimit,
		&e.PriceCents, &e.CancelCutoffHours, &e.MaxStudentsPerClass, &createdAt,
	)
	if err != nil {
		return domain.Enrollment{}, err
	}

	e.StudentID = studentID
	e.CreatedAt = createdAt

	return e, nil
}
