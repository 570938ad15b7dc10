package postgres

import (
	"context"
	"fmt"

	"github.com/okupriienko/dogschool/internal/domain"
)

type ClassRepo struct {
	pool Pool
}

func (r *ClassRepo) handle(db DB) DB {
	if db != nil {
		return db
	}
	return r.pool
}

func (r *ClassRepo) Get(ctx context.Context, db DB, id int64) (*domain.Class, error) {
	const op = "postgres.ClassRepo.Get"

	var c domain.Class

	err := r.handle(db).QueryRow(ctx,
		`SELECT id, name, description, cancel_cutoff_hours FROM classes WHERE id = $1`,
		id,
	).Scan(&c.ID, &c.Name, &c.Description, &c.CancelCutoffHours)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return &c, nil
}

func (r *ClassRepo) Insert(ctx context.Context, db DB, c domain.Class) (int64, error) {
	const op = "postgres.ClassRepo.Insert"

	var id int64

	err := r.handle(db).QueryRow(ctx,
		`INSERT INTO classes (name, description, cancel_cutoff_hours)
         VALUES ($1, $2, $3)
         RETURNING id`,
		c.Name, c.Description, c.CancelCutoffHours,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return id, nil
}

func (r *ClassRepo) List(ctx context.Context, db DB, limit, offset int) ([]domain.Class, error) {
	const op = "postgres.ClassRepo.List"

	rows, err := r.handle(db).Query(ctx,
		`SELECT id, name, description, cancel_cutoff_hours
           FROM classes
          ORDER BY id
          LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Class
	for rows.Next() {
		var c domain.Class
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.CancelCutoffHours); err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}
