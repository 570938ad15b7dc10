package query

import (
	"errors"
)

var (
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrClassNotFound    = errors.New("class not found")
)
