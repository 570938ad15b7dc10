package domain

import (
	"time"

	"github.com/google/uuid"
)

type EnrollmentStatus string

const (
	EnrollmentActive    EnrollmentStatus = "active"
	EnrollmentExpired   EnrollmentStatus = "expired"
	EnrollmentSuspended EnrollmentStatus = "suspended"
)

type ScheduleType string

const (
	ScheduleGroup   ScheduleType = "group"
	SchedulePrivate ScheduleType = "private"
)

type ScheduleStatus string

const (
	ScheduleScheduled ScheduleStatus = "scheduled"
	ScheduleCancelled ScheduleStatus = "cancelled"
	ScheduleCompleted ScheduleStatus = "completed"
)

type BookingStatus string

const (
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

type Class struct {
	ID                int64
	Name              string
	Description       string
	CancelCutoffHours int // default no-refund window, hours before start
}

// Enrollment is a purchased allotment of sessions for one class.
// StudentID == nil marks a reusable template; Assign produces the
// student-bound copy.
type Enrollment struct {
	ID                  uuid.UUID
	StudentID           *int64
	ClassID             int64
	TotalCount          int
	UsedCount           int
	ValidFrom           time.Time
	ValidUntil          time.Time
	Status              EnrollmentStatus
	WeeklyLimit         *int
	MonthlyLimit        *int
	PriceCents          int
	CancelCutoffHours   *int // overrides the class default when set
	MaxStudentsPerClass *int // loosens the single-occupant rule for private sessions
	CreatedAt           time.Time
}

func (e Enrollment) IsTemplate() bool {
	return e.StudentID == nil
}

// RemainingCount is derived and never negative.
func (e Enrollment) RemainingCount() int {
	if r := e.TotalCount - e.UsedCount; r > 0 {
		return r
	}
	return 0
}

func (e Enrollment) ValidOn(t time.Time) bool {
	return !t.Before(e.ValidFrom) && !t.After(e.ValidUntil)
}

// Assign copy-constructs a student-bound enrollment from e, preserving
// the original. The copy starts with a fresh ID and zero used sessions.
func (e Enrollment) Assign(studentID int64, now time.Time) Enrollment {
	cp := e
	cp.ID = uuid.New()
	cp.StudentID = &studentID
	cp.UsedCount = 0
	cp.CreatedAt = now
	return cp
}

// Schedule is one concrete session of a class.
type Schedule struct {
	ID          int64
	ClassID     int64
	StartsAt    time.Time
	EndsAt      time.Time
	Type        ScheduleType
	MaxStudents *int32 // required for group sessions, nil for private
	Status      ScheduleStatus
}

// DisplayStatus derives the status shown to callers: a still-"scheduled"
// session whose end time has elapsed reads as completed. Never persisted.
func (s Schedule) DisplayStatus(now time.Time) ScheduleStatus {
	if s.Status == ScheduleScheduled && now.After(s.EndsAt) {
		return ScheduleCompleted
	}
	return s.Status
}

type Booking struct {
	ID           uuid.UUID
	ScheduleID   int64
	StudentID    int64
	EnrollmentID uuid.UUID
	Status       BookingStatus
	BookedAt     time.Time
	CancelledAt  *time.Time
}

// DisplayStatus mirrors Schedule.DisplayStatus for bookings: a confirmed
// booking on an elapsed session reads as completed.
func (b Booking) DisplayStatus(now, sessionEnd time.Time) BookingStatus {
	if b.Status == BookingConfirmed && now.After(sessionEnd) {
		return BookingCompleted
	}
	return b.Status
}

// ScheduleAvailability is the read-model for one session's load.
type ScheduleAvailability struct {
	ScheduleID    int64          `json:"schedule_id"`
	Capacity      *int32         `json:"capacity,omitempty"`
	Booked        int64          `json:"booked"`
	SpotsLeft     *int32         `json:"spots_left,omitempty"`
	DisplayStatus ScheduleStatus `json:"display_status"`
}

// BookingWithSchedule pairs a booking with its session for listings.
type BookingWithSchedule struct {
	Booking  Booking
	Schedule Schedule
}
