package booking

import (
	"time"

	"github.com/okupriienko/dogschool/internal/domain"
)

// IsLate reports whether a cancellation at now falls inside the
// no-refund window before the session start. A cancellation exactly at
// the cutoff is still on time.
func IsLate(now, sessionStart time.Time, cutoff time.Duration) bool {
	return sessionStart.Sub(now) < cutoff
}

// ResolveCutoff picks the cancellation cutoff for one booking.
// Precedence: enrollment-level override, then the class default, then
// the configured fallback.
func ResolveCutoff(e *domain.Enrollment, c *domain.Class, fallback time.Duration) time.Duration {
	if e != nil && e.CancelCutoffHours != nil && *e.CancelCutoffHours >= 0 {
		return time.Duration(*e.CancelCutoffHours) * time.Hour
	}

	if c != nil && c.CancelCutoffHours > 0 {
		return time.Duration(c.CancelCutoffHours) * time.Hour
	}

	return fallback
}

// hasCapacity applies the session's occupancy rule to the current load.
// Private sessions take a single student unless the charged enrollment
// raises the limit; group sessions are bounded by max_students.
func hasCapacity(s *domain.Schedule, e *domain.Enrollment, load int64) bool {
	if s.Type == domain.SchedulePrivate {
		limit := int64(1)
		if e != nil && e.MaxStudentsPerClass != nil && *e.MaxStudentsPerClass > 0 {
			limit = int64(*e.MaxStudentsPerClass)
		}
		return load < limit
	}

	if s.MaxStudents == nil {
		return true
	}

	return load < int64(*s.MaxStudents)
}
