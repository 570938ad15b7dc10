package booking

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

// TxRunner runs a function inside a serializable transaction.
// *uow.UoW satisfies it.
type TxRunner interface {
	Do(
		ctx context.Context,
		fn func(ctx context.Context, tx postgresrepo.DB, after func(uow.AfterCommit)) error,
	) error
}

// EnrollmentStore is the ledger side of the store. Debit and Credit are
// the only writers of used_count.
type EnrollmentStore interface {
	GetForUpdate(ctx context.Context, db postgresrepo.DB, id uuid.UUID) (*domain.Enrollment, error)
	FindEligible(ctx context.Context, db postgresrepo.DB, studentID, classID int64) ([]domain.Enrollment, error)
	Debit(ctx context.Context, db postgresrepo.DB, id uuid.UUID) error
	Credit(ctx context.Context, db postgresrepo.DB, id uuid.UUID) error
}

type ScheduleStore interface {
	Get(ctx context.Context, db postgresrepo.DB, id int64) (*domain.Schedule, error)
	GetForUpdate(ctx context.Context, db postgresrepo.DB, id int64) (*domain.Schedule, error)
}

type BookingStore interface {
	Insert(ctx context.Context, db postgresrepo.DB, b domain.Booking) error
	GetForUpdate(ctx context.Context, db postgresrepo.DB, id uuid.UUID) (*domain.Booking, error)
	MarkCancelled(ctx context.Context, db postgresrepo.DB, id uuid.UUID, at time.Time) error
	HasConfirmed(ctx context.Context, db postgresrepo.DB, studentID, scheduleID int64) (bool, error)
	CountConfirmed(ctx context.Context, db postgresrepo.DB, scheduleID int64) (int64, error)
}

type ClassStore interface {
	Get(ctx context.Context, db postgresrepo.DB, id int64) (*domain.Class, error)
}

// Notifier is the SMS boundary; nil disables notifications.
type Notifier interface {
	Send(ctx context.Context, studentID int64, message string) error
}

type Config struct {
	DefaultCancelCutoff time.Duration
}

type Service struct {
	runner      TxRunner
	enrollments EnrollmentStore
	schedules   ScheduleStore
	bookings    BookingStore
	classes     ClassStore
	cache       *redisrepo.Cache
	pubsub      Publisher
	limiter     *redisrepo.SlidingWindowLimiter
	notifier    Notifier
	cfg         Config
}

// Publisher broadcasts schedule changes to other instances; nil
// disables publishing.
type Publisher interface {
	PublishScheduleChanged(ctx context.Context, scheduleID int64) error
}

func New(
	runner TxRunner,
	enrollments EnrollmentStore,
	schedules ScheduleStore,
	bookings BookingStore,
	classes ClassStore,
	cache *redisrepo.Cache,
	pubsub Publisher,
	limiter *redisrepo.SlidingWindowLimiter,
	notifier Notifier,
	cfg Config,
) *Service {
	if cfg.DefaultCancelCutoff <= 0 {
		cfg.DefaultCancelCutoff = 24 * time.Hour
	}

	return &Service{
		runner:      runner,
		enrollments: enrollments,
		schedules:   schedules,
		bookings:    bookings,
		classes:     classes,
		cache:       cache,
		pubsub:      pubsub,
		limiter:     limiter,
		notifier:    notifier,
		cfg:         cfg,
	}
}

// CreateBooking claims one spot on the schedule for the student,
// debiting one session from the enrollment. With enrollmentID ==
// uuid.Nil the earliest-expiring eligible ticket is charged.
//
// Returns:
//   - booking.ErrScheduleNotFound / ErrScheduleUnavailable for a missing, cancelled or elapsed session.
//   - booking.ErrNoValidTicket if no usable enrollment covers the class.
//   - booking.ErrTicketExhausted if the chosen ticket has no sessions left.
//   - booking.ErrDuplicateBooking if the student already holds a confirmed booking.
//   - booking.ErrSessionFull if the session is at capacity.
func (s *Service) CreateBooking(
	ctx context.Context,
	studentID, scheduleID int64,
	enrollmentID uuid.UUID,
	rlKey string,
) (*domain.Booking, error) {
	const op = "service.booking.CreateBooking"

	if s.limiter != nil && rlKey != "" {
		ok, _, retry, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return nil, fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			return nil, fmt.Errorf("%s: rate limited, retry in %s", op, retry)
		}
	}

	var created domain.Booking

	err := s.runner.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		now := time.Now()

		// Locking the schedule row first serializes every capacity
		// check for this session.
		sched, err := s.schedules.GetForUpdate(ctx, tx, scheduleID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrScheduleNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if sched.DisplayStatus(now) != domain.ScheduleScheduled {
			return fmt.Errorf("%s:%w", op, ErrScheduleUnavailable)
		}

		enr, err := s.resolveEnrollment(ctx, tx, studentID, sched.ClassID, enrollmentID, now)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		dup, err := s.bookings.HasConfirmed(ctx, tx, studentID, scheduleID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if dup {
			return fmt.Errorf("%s:%w", op, ErrDuplicateBooking)
		}

		load, err := s.bookings.CountConfirmed(ctx, tx, scheduleID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}
		if !hasCapacity(sched, enr, load) {
			return fmt.Errorf("%s:%w", op, ErrSessionFull)
		}

		if err := s.enrollments.Debit(ctx, tx, enr.ID); err != nil {
			switch {
			case errors.Is(err, repository.ErrNoRemaining):
				return fmt.Errorf("%s:%w", op, ErrTicketExhausted)
			case errors.Is(err, repository.ErrNotFound),
				errors.Is(err, repository.ErrNotActive),
				errors.Is(err, repository.ErrNotAssigned):
				return fmt.Errorf("%s:%w", op, ErrNoValidTicket)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		created = domain.Booking{
			ID:           uuid.New(),
			ScheduleID:   scheduleID,
			StudentID:    studentID,
			EnrollmentID: enr.ID,
			Status:       domain.BookingConfirmed,
			BookedAt:     now,
		}

		if err := s.bookings.Insert(ctx, tx, created); err != nil {
			// the partial unique index caught a concurrent booking;
			// the rollback undoes the debit
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%s:%w", op, ErrDuplicateBooking)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		after(func(ctx context.Context) {
			s.fanout(ctx, sched.ClassID, scheduleID)
			if s.notifier != nil {
				_ = s.notifier.Send(ctx, studentID,
					fmt.Sprintf("Booking confirmed for session %d on %s", scheduleID, sched.StartsAt.Format(time.RFC1123)))
			}
		})

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &created, nil
}

// CancelBooking transitions a confirmed booking to cancelled. An
// on-time cancellation restores the debited session; a late one
// forfeits it. The refunded result reports which case applied.
//
// Returns:
//   - booking.ErrBookingNotFound if the booking id is unknown.
//   - booking.ErrAlreadyCancelled if the booking was cancelled before.
//   - booking.ErrSessionCompleted if the session already ended.
func (s *Service) CancelBooking(ctx context.Context, bookingID uuid.UUID) (bool, error) {
	const op = "service.booking.CancelBooking"

	var refunded bool

	err := s.runner.Do(ctx, func(
		ctx context.Context,
		tx postgresrepo.DB,
		after func(uow.AfterCommit),
	) error {
		now := time.Now()

		b, err := s.bookings.GetForUpdate(ctx, tx, bookingID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, ErrBookingNotFound)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if b.Status == domain.BookingCancelled {
			return fmt.Errorf("%s:%w", op, ErrAlreadyCancelled)
		}

		sched, err := s.schedules.Get(ctx, tx, b.ScheduleID)
		if err != nil {
			return fmt.Errorf("%s:%w", op, err)
		}

		if now.After(sched.EndsAt) {
			return fmt.Errorf("%s:%w", op, ErrSessionCompleted)
		}

		enr, err := s.enrollments.GetForUpdate(ctx, tx, b.EnrollmentID)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%s:%w", op, err)
		}

		var cls *domain.Class
		if enr == nil || enr.CancelCutoffHours == nil {
			cls, err = s.classes.Get(ctx, tx, sched.ClassID)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%s:%w", op, err)
			}
		}

		cutoff := ResolveCutoff(enr, cls, s.cfg.DefaultCancelCutoff)
		late := IsLate(now, sched.StartsAt, cutoff)

		if err := s.bookings.MarkCancelled(ctx, tx, b.ID, now); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%s:%w", op, ErrAlreadyCancelled)
			}
			return fmt.Errorf("%s:%w", op, err)
		}

		if !late {
			if err := s.enrollments.Credit(ctx, tx, b.EnrollmentID); err != nil {
				return fmt.Errorf("%s:%w", op, err)
			}
			refunded = true
		}

		studentID := b.StudentID
		scheduleID := b.ScheduleID
		classID := sched.ClassID

		after(func(ctx context.Context) {
			s.fanout(ctx, classID, scheduleID)
			if s.notifier != nil {
				msg := "Booking cancelled, session returned to your ticket"
				if !refunded {
					msg = "Booking cancelled inside the no-refund window, session forfeited"
				}
				_ = s.notifier.Send(ctx, studentID, msg)
			}
		})

		return nil
	})

	return refunded, err
}

// ListEligibleEnrollments returns the student's usable tickets for the
// class, earliest-expiring first.
func (s *Service) ListEligibleEnrollments(ctx context.Context, studentID, classID int64) ([]domain.Enrollment, error) {
	const op = "service.booking.ListEligibleEnrollments"

	out, err := s.enrollments.FindEligible(ctx, nil, studentID, classID)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return out, nil
}

// resolveEnrollment picks the ticket to charge. With an explicit id it
// is validated against the student, the class, and the current moment;
// with uuid.Nil the earliest-expiring eligible ticket wins.
func (s *Service) resolveEnrollment(
	ctx context.Context,
	tx postgresrepo.DB,
	studentID, classID int64,
	enrollmentID uuid.UUID,
	now time.Time,
) (*domain.Enrollment, error) {
	if enrollmentID == uuid.Nil {
		eligible, err := s.enrollments.FindEligible(ctx, tx, studentID, classID)
		if err != nil {
			return nil, err
		}
		if len(eligible) == 0 {
			return nil, ErrNoValidTicket
		}
		return &eligible[0], nil
	}

	enr, err := s.enrollments.GetForUpdate(ctx, tx, enrollmentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoValidTicket
		}
		return nil, err
	}

	if enr.IsTemplate() ||
		*enr.StudentID != studentID ||
		enr.ClassID != classID ||
		enr.Status != domain.EnrollmentActive ||
		!enr.ValidOn(now) {
		return nil, ErrNoValidTicket
	}

	if enr.RemainingCount() == 0 {
		return nil, ErrTicketExhausted
	}

	return enr, nil
}

func (s *Service) fanout(ctx context.Context, classID, scheduleID int64) {
	if s.cache != nil {
		_ = s.cache.InvalidateSchedule(ctx, scheduleID)
		_ = s.cache.InvalidateClassSchedules(ctx, classID)
	}
	if s.pubsub != nil {
		_ = s.pubsub.PublishScheduleChanged(ctx, scheduleID)
	}
}
