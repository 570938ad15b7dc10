package enrollment

import (
	"errors"
)

var (
	ErrNotFound      = errors.New("enrollment not found")
	ErrClassNotFound = errors.New("class not found")
	ErrNotTemplate   = errors.New("enrollment is already assigned to a student")
	ErrNotActive     = errors.New("enrollment is not active")
	ErrInUse         = errors.New("enrollment has used sessions")
	ErrInvalidTerms  = errors.New("invalid enrollment terms")
)
