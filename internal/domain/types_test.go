package domain_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/okupriienko/dogschool/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestEnrollment_RemainingCount(t *testing.T) {
	tests := []struct {
		name  string
		total int
		used  int
		want  int
	}{
		{"fresh", 8, 0, 8},
		{"partially used", 8, 3, 5},
		{"exhausted", 8, 8, 0},
		{"over-used never goes negative", 8, 9, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := domain.Enrollment{TotalCount: tt.total, UsedCount: tt.used}
			assert.Equal(t, tt.want, e.RemainingCount())
		})
	}
}

func TestEnrollment_ValidOn(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	until := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	e := domain.Enrollment{ValidFrom: from, ValidUntil: until}

	assert.False(t, e.ValidOn(from.Add(-time.Second)))
	assert.True(t, e.ValidOn(from))
	assert.True(t, e.ValidOn(from.AddDate(0, 1, 0)))
	assert.True(t, e.ValidOn(until))
	assert.False(t, e.ValidOn(until.Add(time.Second)))
}

func TestEnrollment_Assign(t *testing.T) {
	cutoff := 12
	tmpl := domain.Enrollment{
		ID:                uuid.New(),
		ClassID:           7,
		TotalCount:        10,
		UsedCount:         4,
		ValidFrom:         time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		ValidUntil:        time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		Status:            domain.EnrollmentActive,
		PriceCents:        45000,
		CancelCutoffHours: &cutoff,
	}
	assert.True(t, tmpl.IsTemplate())

	now := time.Now()
	got := tmpl.Assign(42, now)

	assert.False(t, got.IsTemplate())
	assert.Equal(t, int64(42), *got.StudentID)
	assert.NotEqual(t, tmpl.ID, got.ID)
	assert.Zero(t, got.UsedCount)
	assert.Equal(t, now, got.CreatedAt)

	// terms carry over
	assert.Equal(t, tmpl.ClassID, got.ClassID)
	assert.Equal(t, tmpl.TotalCount, got.TotalCount)
	assert.Equal(t, tmpl.ValidUntil, got.ValidUntil)
	assert.Equal(t, tmpl.PriceCents, got.PriceCents)
	assert.Equal(t, tmpl.CancelCutoffHours, got.CancelCutoffHours)

	// the template itself is untouched
	assert.True(t, tmpl.IsTemplate())
	assert.Equal(t, 4, tmpl.UsedCount)
}

func TestSchedule_DisplayStatus(t *testing.T) {
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status domain.ScheduleStatus
		endsAt time.Time
		want   domain.ScheduleStatus
	}{
		{"upcoming stays scheduled", domain.ScheduleScheduled, now.Add(2 * time.Hour), domain.ScheduleScheduled},
		{"elapsed reads completed", domain.ScheduleScheduled, now.Add(-time.Minute), domain.ScheduleCompleted},
		{"ending exactly now stays scheduled", domain.ScheduleScheduled, now, domain.ScheduleScheduled},
		{"cancelled never flips", domain.ScheduleCancelled, now.Add(-time.Hour), domain.ScheduleCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := domain.Schedule{Status: tt.status, EndsAt: tt.endsAt}
			assert.Equal(t, tt.want, s.DisplayStatus(now))
		})
	}
}

func TestBooking_DisplayStatus(t *testing.T) {
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

	b := domain.Booking{Status: domain.BookingConfirmed}
	assert.Equal(t, domain.BookingConfirmed, b.DisplayStatus(now, now.Add(time.Hour)))
	assert.Equal(t, domain.BookingCompleted, b.DisplayStatus(now, now.Add(-time.Hour)))

	cancelled := domain.Booking{Status: domain.BookingCancelled}
	assert.Equal(t, domain.BookingCancelled, cancelled.DisplayStatus(now, now.Add(-time.Hour)))
}
