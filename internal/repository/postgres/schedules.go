package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/okupriienko/dogschool/internal/domain"
	"github.com/okupriienko/dogschool/internal/repository"
)

type ScheduleRepo struct {
	pool Pool
}

func (r *ScheduleRepo) handle(db DB) DB {
	if db != nil {
		return db
	}
	return r.pool
}

const scheduleColumns = `id, class_id, starts_at, ends_at, type, max_students, status`

func (r *ScheduleRepo) Get(ctx context.Context, db DB, id int64) (*domain.Schedule, error) {
	return r.get(ctx, db, id, "")
}

// GetForUpdate locks the schedule row. Booking transactions take this
// lock first so concurrent capacity checks for the same session are
// serialized.
func (r *ScheduleRepo) GetForUpdate(ctx context.Context, db DB, id int64) (*domain.Schedule, error) {
	return r.get(ctx, db, id, " FOR UPDATE")
}

func (r *ScheduleRepo) get(ctx context.Context, db DB, id int64, suffix string) (*domain.Schedule, error) {
	const op = "postgres.ScheduleRepo.Get"

	var s domain.Schedule

	err := r.handle(db).QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = $1`+suffix,
		id,
	).Scan(&s.ID, &s.ClassID, &s.StartsAt, &s.EndsAt, &s.Type, &s.MaxStudents, &s.Status)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &s, nil
}

func (r *ScheduleRepo) Insert(ctx context.Context, db DB, s domain.Schedule) (int64, error) {
	const op = "postgres.ScheduleRepo.Insert"

	var id int64

	err := r.handle(db).QueryRow(ctx,
		`INSERT INTO schedules (class_id, starts_at, ends_at, type, max_students, status)
         VALUES ($1, $2, $3, $4, $5, $6)
         RETURNING id`,
		s.ClassID, s.StartsAt, s.EndsAt, s.Type, s.MaxStudents, s.Status,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return id, nil
}

// MarkCancelled flips a scheduled session to cancelled.
// Returns repository.ErrConflict if the session is already cancelled.
func (r *ScheduleRepo) MarkCancelled(ctx context.Context, db DB, id int64) error {
	const op = "postgres.ScheduleRepo.MarkCancelled"

	db = r.handle(db)

	tag, err := db.Exec(ctx,
		`UPDATE schedules SET status = 'cancelled' WHERE id = $1 AND status = 'scheduled'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if tag.RowsAffected() == 0 {
		var exists bool
		if err := db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM schedules WHERE id = $1)`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		if !exists {
			return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
		}
		return fmt.Errorf("%s:%w", op, repository.ErrConflict)
	}

	return nil
}

// ListByClass returns the class's sessions starting at or after from,
// soonest first.
func (r *ScheduleRepo) ListByClass(
	ctx context.Context,
	db DB,
	classID int64,
	from time.Time,
	limit, offset int,
) ([]domain.Schedule, error) {
	const op = "postgres.ScheduleRepo.ListByClass"

	rows, err := r.handle(db).Query(ctx,
		`SELECT `+scheduleColumns+`
           FROM schedules
          WHERE class_id = $1 AND starts_at >= $2
          ORDER BY starts_at ASC
          LIMIT $3 OFFSET $4`,
		classID, from, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Schedule
	for rows.Next() {
		var s domain.Schedule
		if err := rows.Scan(&s.ID, &s.ClassID, &s.StartsAt, &s.EndsAt, &s.Type, &s.MaxStudents, &s.Status); err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}
