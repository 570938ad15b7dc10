package booking

import (
	"errors"
)

var (
	ErrScheduleNotFound    = errors.New("schedule not found")
	ErrScheduleUnavailable = errors.New("schedule is not open for booking")
	ErrNoValidTicket       = errors.New("no valid enrollment for this class")
	ErrTicketExhausted     = errors.New("enrollment has no sessions left")
	ErrDuplicateBooking    = errors.New("student already booked this session")
	ErrSessionFull         = errors.New("session is full")
	ErrBookingNotFound     = errors.New("booking not found")
	ErrAlreadyCancelled    = errors.New("booking is already cancelled")
	ErrSessionCompleted    = errors.New("session has already completed")
)
