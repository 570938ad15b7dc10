package admin

import (
	"errors"
)

var (
	ErrClassNotFound             = errors.New("class not found")
	ErrScheduleNotFound          = errors.New("schedule not found")
	ErrScheduleAlreadyCancelled  = errors.New("schedule is already cancelled")
	ErrScheduleAlreadyCompleted  = errors.New("schedule has already completed")
	ErrGroupCapacityRequired     = errors.New("group schedule requires max_students >= 1")
	ErrPrivateCapacityNotAllowed = errors.New("private schedule does not take max_students")
	ErrInvalidTimeRange          = errors.New("schedule must end after it starts")
)
