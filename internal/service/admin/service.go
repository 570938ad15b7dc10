package admin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/okupriienko/dogschool/internal/domain"
	"github.com/okupriienko/dogschool/internal/repository"
	postgresrepo "github.com/okupriienko/dogschool/internal/repository/postgres"
	redisrepo "github.com/okupriienko/dogschool/internal/repository/redis"
	"github.com/okupriienko/dogschool/internal/uow"
)

type TxRunner interface {
	Do(
		ctx context.Context,
		fn func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error,
	) error
}

type ClassStore interface {
	Get(ctx context.Context, db postgresrepo.DB, id int64) (*domain.Class, error)
	Insert(ctx context.Context, db postgresrepo.DB, c domain.Class) (int64, error)
}

type ScheduleStore interface {
	GetForUpdate(ctx context.Context, db postgresrepo.DB, id int64) (*domain.Schedule, error)
	Insert(ctx context.Context, db postgresrepo.DB, s domain.Schedule) (int64, error)
	MarkCancelled(ctx context.Context, db postgresrepo.DB, id int64) error
}

type BookingStore interface {
	ListConfirmedBySchedule(ctx context.Context, db postgresrepo.DB, scheduleID int64) ([]domain.Booking, error)
	MarkCancelled(ctx context.Context, db postgresrepo.DB, id uuid.UUID, at time.Time) error
}

type EnrollmentStore interface {
	Credit(ctx context.Context, db postgresrepo.DB, id uuid.UUID) error
}

type Notifier interface {
	Send(ctx context.Context, studentID int64, message string) error
}

type Publisher interface {
	PublishScheduleChanged(ctx context.Context, scheduleID int64) error
}

type Service struct {
	runner      TxRunner
	classes     ClassStore
	schedules   ScheduleStore
	bookings    BookingStore
	enrollments EnrollmentStore
	cache       *redisrepo.Cache
	pubsub      Publisher
	notifier    Notifier
}

func New(
	runner TxRunner,
	classes ClassStore,
	schedules ScheduleStore,
	bookings BookingStore,
	enrollments EnrollmentStore,
	cache *redisrepo.Cache,
	pubsub Publisher,
	notifier Notifier,
) *Service {
	return &Service{
		runner:      runner,
		classes:     classes,
		schedules:   schedules,
		bookings:    bookings,
		enrollments: enrollments,
		cache:       cache,
		pubsub:      pubsub,
		notifier:    notifier,
	}
}

func (s *Service) CreateClass(ctx context.Context, name, description string, cancelCutoffHours int) (int64, error) {
	const op = "service.admin.CreateClass"

	if cancelCutoffHours < 0 {
		cancelCutoffHours = 0
	}

	id, err := s.classes.Insert(ctx, nil, domain.Class{
		Name:              name,
		Description:       description,
		CancelCutoffHours: cancelCutoffHours,
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	return id, nil
}

// CreateSchedule adds a session to the class calendar. Group sessions
// must carry a capacity of at least one; private sessions carry none.
func (s *Service) CreateSchedule(
	ctx context.Context,
	classID int64,
	startsAt, endsAt time.Time,
	typ domain.ScheduleType,
	maxStudents *int32,
) (int64, error) {
	const op = "service.admin.CreateSchedule"

	if !endsAt.After(startsAt) {
		return 0, fmt.Errorf("%s:%w", op, ErrInvalidTimeRange)
	}

	switch typ {
	case domain.ScheduleGroup:
		if maxStudents == nil || *maxStudents < 1 {
			return 0, fmt.Errorf("%s:%w", op, ErrGroupCapacityRequired)
		}
	case domain.SchedulePrivate:
		if maxStudents != nil {
			return 0, fmt.Errorf("%s:%w", op, ErrPrivateCapacityNotAllowed)
		}
	default:
		return 0, fmt.Errorf("%s: unknown schedule type %q", op, typ)
	}

	if _, err := s.classes.Get(ctx, nil, classID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, fmt.Errorf("%s:%w", op, ErrClassNotFound)
		}
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	id, err := s.schedules.Insert(ctx, nil, domain.Schedule{
		ClassID:     classID,
		StartsAt:    startsAt,
		EndsAt:      endsAt,
		Type:        typ,
		MaxStudents: maxStudents,
		Status:      domain.ScheduleScheduled,
	})
	if err != nil {
		return 0, fmt.Errorf("%s:%w", op, err)
	}

	if s.cache != nil {
		_ = s.cache.InvalidateClassSchedules(ctx, classID)
	}

	return id, nil
}

// CancelSchedule cancels the session and settles every confirmed
// booking on it: each booking is cancelled and its enrollment credited.
// School cancellations always refund, regardless of the cutoff.
// Returns the number of bookings refunded.
func (s *Service) CancelSchedule(ctx context.Context, scheduleID int64) (int, error) {
	const op = "service.admin.CancelSchedule"

	var refunded int

	err := s.runner.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		now := time.Now()

		sched, err := s.schedules.GetForUpdate(ctx, tx, scheduleID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrScheduleNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		switch sched.DisplayStatus(now) {
		case domain.ScheduleCancelled:
			return fmt.Errorf("%s:%w", op, ErrScheduleAlreadyCancelled)
		case domain.ScheduleCompleted:
			return fmt.Errorf("%s:%w", op, ErrScheduleAlreadyCompleted)
		}

		if err := s.schedules.MarkCancelled(ctx, tx, scheduleID); err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		affected, err := s.bookings.ListConfirmedBySchedule(ctx, tx, scheduleID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		for _, b := range affected {
			if err := s.bookings.MarkCancelled(ctx, tx, b.ID, now); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
			if err := s.enrollments.Credit(ctx, tx, b.EnrollmentID); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
			refunded++
		}

		students := make([]int64, 0, len(affected))
		for _, b := range affected {
			students = append(students, b.StudentID)
		}
		classID := sched.ClassID

		after(func(ctx context.Context) {
			if s.cache != nil {
				_ = s.cache.InvalidateSchedule(ctx, scheduleID)
				_ = s.cache.InvalidateClassSchedules(ctx, classID)
			}
			if s.pubsub != nil {
				_ = s.pubsub.PublishScheduleChanged(ctx, scheduleID)
			}
			if s.notifier != nil {
				for _, studentID := range students {
					_ = s.notifier.Send(ctx, studentID,
						fmt.Sprintf("Session %d was cancelled by the school, your ticket was refunded", scheduleID))
				}
			}
		})

		return nil
	})
	if err != nil {
		return 0, err
	}

	return refunded, nil
}
