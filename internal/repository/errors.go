package repository

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrNotActive   = errors.New("enrollment not active")
	ErrNoRemaining = errors.New("no remaining sessions on enrollment")
	ErrNotAssigned = errors.New("enrollment not assigned to a student")
)
