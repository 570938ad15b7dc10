package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okupriienko/dogschool/internal/domain"
	redisx "github.com/okupriienko/dogschool/internal/redis"
	"github.com/okupriienko/dogschool/internal/repository"
	postgresrepo "github.com/okupriienko/dogschool/internal/repository/postgres"
	redisrepo "github.com/okupriienko/dogschool/internal/repository/redis"
)

type ScheduleStore interface {
	Get(ctx context.Context, db postgresrepo.DB, id int64) (*domain.Schedule, error)
	ListByClass(ctx context.Context, db postgresrepo.DB, classID int64, from time.Time, limit, offset int) ([]domain.Schedule, error)
}

type BookingStore interface {
	CountConfirmed(ctx context.Context, db postgresrepo.DB, scheduleID int64) (int64, error)
	ListByStudent(ctx context.Context, db postgresrepo.DB, studentID int64, limit, offset int) ([]domain.BookingWithSchedule, error)
}

type ClassStore interface {
	Get(ctx context.Context, db postgresrepo.DB, id int64) (*domain.Class, error)
}

type Config struct {
	ScheduleTTL     time.Duration
	AvailabilityTTL time.Duration
	DefaultPageSize int
}

type Service struct {
	schedules ScheduleStore
	bookings  BookingStore
	classes   ClassStore
	cache     *redisrepo.Cache
	cfg       Config
}

func New(
	schedules ScheduleStore,
	bookings BookingStore,
	classes ClassStore,
	cache *redisrepo.Cache,
	cfg Config,
) *Service {
	if cfg.ScheduleTTL <= 0 {
		cfg.ScheduleTTL = 60 * time.Second
	}
	if cfg.AvailabilityTTL <= 0 {
		cfg.AvailabilityTTL = 15 * time.Second
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 100
	}

	return &Service{
		schedules: schedules,
		bookings:  bookings,
		classes:   classes,
		cache:     cache,
		cfg:       cfg,
	}
}

// ScheduleView is a schedule with its derived display status.
type ScheduleView struct {
	domain.Schedule
	DisplayStatus domain.ScheduleStatus `json:"display_status"`
}

// GetSchedule returns one session with its display status.
func (s *Service) GetSchedule(ctx context.Context, scheduleID int64) (*ScheduleView, error) {
	const op = "service.query.GetSchedule"

	load := func(ctx context.Context) (domain.Schedule, error) {
		sched, err := s.schedules.Get(ctx, nil, scheduleID)
		if err != nil {
			return domain.Schedule{}, err
		}
		return *sched, nil
	}

	var (
		sched domain.Schedule
		err   error
	)

	if s.cache != nil {
		sched, err = redisrepo.GetOrSetJSON(ctx, s.cache, redisx.KeySchedule(scheduleID), s.cfg.ScheduleTTL, load)
	} else {
		sched, err = load(ctx)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrScheduleNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &ScheduleView{
		Schedule:      sched,
		DisplayStatus: sched.DisplayStatus(time.Now()),
	}, nil
}

// Availability returns the current load of a session. The cached view
// is authoritative only for display; the booking path re-counts inside
// its own transaction.
func (s *Service) Availability(ctx context.Context, scheduleID int64) (*domain.ScheduleAvailability, error) {
	const op = "service.query.Availability"

	load := func(ctx context.Context) (domain.ScheduleAvailability, error) {
		sched, err := s.schedules.Get(ctx, nil, scheduleID)
		if err != nil {
			return domain.ScheduleAvailability{}, err
		}

		booked, err := s.bookings.CountConfirmed(ctx, nil, scheduleID)
		if err != nil {
			return domain.ScheduleAvailability{}, err
		}

		av := domain.ScheduleAvailability{
			ScheduleID:    scheduleID,
			Booked:        booked,
			DisplayStatus: sched.DisplayStatus(time.Now()),
		}

		capacity := sched.MaxStudents
		if sched.Type == domain.SchedulePrivate {
			one := int32(1)
			capacity = &one
		}
		if capacity != nil {
			av.Capacity = capacity
			left := *capacity - int32(booked)
			if left < 0 {
				left = 0
			}
			av.SpotsLeft = &left
		}

		return av, nil
	}

	var (
		av  domain.ScheduleAvailability
		err error
	)

	if s.cache != nil {
		av, err = redisrepo.GetOrSetJSON(ctx, s.cache, redisx.KeyScheduleAvailability(scheduleID), s.cfg.AvailabilityTTL, load)
	} else {
		av, err = load(ctx)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrScheduleNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return &av, nil
}

// ListClassSchedules returns upcoming sessions of a class, soonest
// first. The first default-sized page is served through the cache.
func (s *Service) ListClassSchedules(ctx context.Context, classID int64, limit, offset int) ([]ScheduleView, error) {
	const op = "service.query.ListClassSchedules"

	if limit <= 0 || limit > 500 {
		limit = s.cfg.DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	if _, err := s.classes.Get(ctx, nil, classID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s:%w", op, ErrClassNotFound)
		}
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	load := func(ctx context.Context) ([]domain.Schedule, error) {
		return s.schedules.ListByClass(ctx, nil, classID, time.Now(), limit, offset)
	}

	var (
		scheds []domain.Schedule
		err    error
	)

	if s.cache != nil && offset == 0 && limit == s.cfg.DefaultPageSize {
		scheds, err = redisrepo.GetOrSetJSON(ctx, s.cache, redisx.KeyClassSchedules(classID), s.cfg.AvailabilityTTL, load)
	} else {
		scheds, err = load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	now := time.Now()
	out := make([]ScheduleView, 0, len(scheds))
	for _, sched := range scheds {
		out = append(out, ScheduleView{
			Schedule:      sched,
			DisplayStatus: sched.DisplayStatus(now),
		})
	}

	return out, nil
}

// BookingView is a booking with its session and both display statuses.
type BookingView struct {
	Booking       domain.Booking        `json:"booking"`
	Schedule      domain.Schedule       `json:"schedule"`
	DisplayStatus domain.BookingStatus  `json:"display_status"`
	ScheduleState domain.ScheduleStatus `json:"schedule_display_status"`
}

// ListStudentBookings returns the student's bookings, newest session
// first.
func (s *Service) ListStudentBookings(ctx context.Context, studentID int64, limit, offset int) ([]BookingView, error) {
	const op = "service.query.ListStudentBookings"

	if limit <= 0 || limit > 500 {
		limit = s.cfg.DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.bookings.ListByStudent(ctx, nil, studentID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	now := time.Now()
	out := make([]BookingView, 0, len(rows))
	for _, r := range rows {
		out = append(out, BookingView{
			Booking:       r.Booking,
			Schedule:      r.Schedule,
			DisplayStatus: r.Booking.DisplayStatus(now, r.Schedule.EndsAt),
			ScheduleState: r.Schedule.DisplayStatus(now),
		})
	}

	return out, nil
}
