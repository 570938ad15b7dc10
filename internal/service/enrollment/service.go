package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okupriienko/dogschool/internal/domain"
	"github.com/okupriienko/dogschool/internal/repository"
	postgresrepo "github.com/okupriienko/dogschool/internal/repository/postgres"
	"github.com/okupriienko/dogschool/internal/uow"
)

type TxRunner interface {
	Do(
		ctx context.Context,
		fn func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error,
	) error
}

type EnrollmentStore interface {
	Get(ctx context.Context, db postgresrepo.DB, id uuid.UUID) (*domain.Enrollment, error)
	GetForUpdate(ctx context.Context, db postgresrepo.DB, id uuid.UUID) (*domain.Enrollment, error)
	Insert(ctx context.Context, db postgresrepo.DB, e domain.Enrollment) error
	Suspend(ctx context.Context, db postgresrepo.DB, id uuid.UUID) error
	Delete(ctx context.Context, db postgresrepo.DB, id uuid.UUID, force bool) error
}

type ClassStore interface {
	Get(ctx context.Context, db postgresrepo.DB, id int64) (*domain.Class, error)
}

// Terms is the purchasable shape of a ticket.
type Terms struct {
	TotalCount          int
	ValidFrom           time.Time
	ValidUntil          time.Time
	PriceCents          int
	WeeklyLimit         *int
	MonthlyLimit        *int
	CancelCutoffHours   *int
	MaxStudentsPerClass *int
}

func (t Terms) validate() error {
	if t.TotalCount < 1 {
		return ErrInvalidTerms
	}
	if !t.ValidUntil.After(t.ValidFrom) {
		return ErrInvalidTerms
	}
	return nil
}

type Service struct {
	runner      TxRunner
	enrollments EnrollmentStore
	classes     ClassStore
}

func New(runner TxRunner, enrollments EnrollmentStore, classes ClassStore) *Service {
	return &Service{
		runner:      runner,
		enrollments: enrollments,
		classes:     classes,
	}
}

// CreateTemplate stores a reusable, unassigned ticket for the class.
func (s *Service) CreateTemplate(ctx context.Context, classID int64, terms Terms) (uuid.UUID, error) {
	const op = "service.enrollment.CreateTemplate"

	return s.create(ctx, op, classID, nil, terms)
}

// CreateAssigned stores a ticket directly bound to one student.
func (s *Service) CreateAssigned(ctx context.Context, studentID, classID int64, terms Terms) (uuid.UUID, error) {
	const op = "service.enrollment.CreateAssigned"

	return s.create(ctx, op, classID, &studentID, terms)
}

func (s *Service) create(ctx context.Context, op string, classID int64, studentID *int64, terms Terms) (uuid.UUID, error) {
	if err := terms.validate(); err != nil {
		return uuid.Nil, fmt.Errorf("%s:%w", op, err)
	}

	if _, err := s.classes.Get(ctx, nil, classID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return uuid.Nil, fmt.Errorf("%s:%w", op, ErrClassNotFound)
		}
		return uuid.Nil, fmt.Errorf("%s:%w", op, err)
	}

	e := domain.Enrollment{
		ID:                  uuid.New(),
		StudentID:           studentID,
		ClassID:             classID,
		TotalCount:          terms.TotalCount,
		UsedCount:           0,
		ValidFrom:           terms.ValidFrom,
		ValidUntil:          terms.ValidUntil,
		Status:              domain.EnrollmentActive,
		WeeklyLimit:         terms.WeeklyLimit,
		MonthlyLimit:        terms.MonthlyLimit,
		PriceCents:          terms.PriceCents,
		CancelCutoffHours:   terms.CancelCutoffHours,
		MaxStudentsPerClass: terms.MaxStudentsPerClass,
		CreatedAt:           time.Now(),
	}

	if err := s.enrollments.Insert(ctx, nil, e); err != nil {
		return uuid.Nil, fmt.Errorf("%s:%w", op, err)
	}

	return e.ID, nil
}

// AssignTemplate copy-constructs one student-bound ticket per student
// from the template, preserving the template itself. All copies land in
// one transaction, so a failure part-way leaves no orphaned tickets.
func (s *Service) AssignTemplate(ctx context.Context, templateID uuid.UUID, studentIDs []int64) ([]uuid.UUID, error) {
	const op = "service.enrollment.AssignTemplate"

	if len(studentIDs) == 0 {
		return nil, fmt.Errorf("%s: no students given", op)
	}

	var created []uuid.UUID

	err := s.runner.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		tmpl, err := s.enrollments.GetForUpdate(ctx, tx, templateID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if !tmpl.IsTemplate() {
			return fmt.Errorf("%s:%w", op, ErrNotTemplate)
		}

		if tmpl.Status != domain.EnrollmentActive {
			return fmt.Errorf("%s:%w", op, ErrNotActive)
		}

		now := time.Now()
		for _, studentID := range studentIDs {
			cp := tmpl.Assign(studentID, now)
			if err := s.enrollments.Insert(ctx, tx, cp); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
			created = append(created, cp.ID)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return created, nil
}

// Suspend blocks further debits against the ticket.
func (s *Service) Suspend(ctx context.Context, id uuid.UUID) error {
	const op = "service.enrollment.Suspend"

	if err := s.enrollments.Suspend(ctx, nil, id); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("%s:%w", op, ErrNotFound)
		case errors.Is(err, repository.ErrNotActive):
			return fmt.Errorf("%s:%w", op, ErrNotActive)
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

// Delete removes a ticket. A ticket with used sessions is refused
// unless force is set (administrative override).
func (s *Service) Delete(ctx context.Context, id uuid.UUID, force bool) error {
	const op = "service.enrollment.Delete"

	if err := s.enrollments.Delete(ctx, nil, id, force); err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("%s:%w", op, ErrNotFound)
		case errors.Is(err, repository.ErrConflict):
			return fmt.Errorf("%s:%w", op, ErrInUse)
		}
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.Enrollment, error) {
	const op = "service.enrollment.Get"

	e, err := s.enrollments.Get(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return e, nil
}
