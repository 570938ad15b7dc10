package service

import (
	"github.com/okupriienko/dogschool/internal/notify"
	redisx "github.com/okupriienko/dogschool/internal/redis"
	postgres "github.com/okupriienko/dogschool/internal/repository/postgres"
	redis "github.com/okupriienko/dogschool/internal/repository/redis"
	"github.com/okupriienko/dogschool/internal/service/admin"
	"github.com/okupriienko/dogschool/internal/service/booking"
	"github.com/okupriienko/dogschool/internal/service/enrollment"
	"github.com/okupriienko/dogschool/internal/service/query"
	"github.com/okupriienko/dogschool/internal/uow"
)

type Services struct {
	Booking    *booking.Service
	Enrollment *enrollment.Service
	Query      *query.Service
	Admin      *admin.Service
}

type Config struct {
	Booking booking.Config
	Query   query.Config
}

func NewServices(
	store *postgres.Store,
	cache *redis.Cache,
	pubsub *redisx.SchedulesPubSub,
	limiter *redis.SlidingWindowLimiter,
	notifier notify.Sender,
	cfg Config,
) *Services {
	runner := uow.NewUoW(store)

	enrollments := store.Enrollments()
	schedules := store.Schedules()
	bookings := store.Bookings()
	classes := store.Classes()

	return &Services{
		Booking: booking.New(
			runner, enrollments, schedules, bookings, classes,
			cache, pubsub, limiter, notifier, cfg.Booking,
		),
		Enrollment: enrollment.New(runner, enrollments, classes),
		Query:      query.New(schedules, bookings, classes, cache, cfg.Query),
		Admin: admin.New(
			runner, classes, schedules, bookings, enrollments,
			cache, pubsub, notifier,
		),
	}
}
