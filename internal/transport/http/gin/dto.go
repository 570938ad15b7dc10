package httpgin

import (
	"time"
)

type CreateBookingRequest struct {
	StudentID    int64  `json:"student_id" binding:"required"`
	ScheduleID   int64  `json:"schedule_id" binding:"required"`
	EnrollmentID string `json:"enrollment_id" binding:"omitempty,uuid"`
}

type BookingResponse struct {
	BookingID    string `json:"booking_id"`
	ScheduleID   int64  `json:"schedule_id"`
	StudentID    int64  `json:"student_id"`
	EnrollmentID string `json:"enrollment_id"`
	BookedAt     string `json:"booked_at"`
}

type CancelBookingResponse struct {
	Refunded bool `json:"refunded"`
}

type CreateClassRequest struct {
	Name              string `json:"name" binding:"required"`
	Description       string `json:"description"`
	CancelCutoffHours int    `json:"cancel_cutoff_hours" binding:"gte=0"`
}

type CreateClassResponse struct {
	ClassID int64 `json:"class_id"`
}

type CreateScheduleRequest struct {
	ClassID     int64  `json:"class_id" binding:"required"`
	StartsAt    string `json:"starts_at" binding:"required"`
	EndsAt      string `json:"ends_at" binding:"required"`
	Type        string `json:"type" binding:"required,oneof=group private"`
	MaxStudents *int32 `json:"max_students" binding:"omitempty,gte=1"`
}

type CreateScheduleResponse struct {
	ScheduleID int64 `json:"schedule_id"`
}

type CancelScheduleResponse struct {
	RefundedBookings int `json:"refunded_bookings"`
}

type CreateEnrollmentRequest struct {
	ClassID             int64  `json:"class_id" binding:"required"`
	StudentID           *int64 `json:"student_id"`
	TotalCount          int    `json:"total_count" binding:"required,gte=1"`
	ValidFrom           string `json:"valid_from" binding:"required"`
	ValidUntil          string `json:"valid_until" binding:"required"`
	PriceCents          int    `json:"price_cents" binding:"gte=0"`
	WeeklyLimit         *int   `json:"weekly_limit" binding:"omitempty,gte=1"`
	MonthlyLimit        *int   `json:"monthly_limit" binding:"omitempty,gte=1"`
	CancelCutoffHours   *int   `json:"cancel_cutoff_hours" binding:"omitempty,gte=0"`
	MaxStudentsPerClass *int   `json:"max_students_per_class" binding:"omitempty,gte=1"`
}

type CreateEnrollmentResponse struct {
	EnrollmentID string `json:"enrollment_id"`
}

type AssignEnrollmentRequest struct {
	StudentIDs []int64 `json:"student_ids" binding:"required,min=1,dive,required"`
}

type AssignEnrollmentResponse struct {
	EnrollmentIDs []string `json:"enrollment_ids"`
}

type EnrollmentResponse struct {
	EnrollmentID        string  `json:"enrollment_id"`
	StudentID           *int64  `json:"student_id,omitempty"`
	ClassID             int64   `json:"class_id"`
	TotalCount          int     `json:"total_count"`
	UsedCount           int     `json:"used_count"`
	RemainingCount      int     `json:"remaining_count"`
	ValidFrom           string  `json:"valid_from"`
	ValidUntil          string  `json:"valid_until"`
	Status              string  `json:"status"`
	PriceCents          int     `json:"price_cents"`
	CancelCutoffHours   *int    `json:"cancel_cutoff_hours,omitempty"`
	MaxStudentsPerClass *int    `json:"max_students_per_class,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func parseRFC3339(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
