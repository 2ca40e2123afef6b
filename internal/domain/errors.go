package domain

import "errors"

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrNotFound        = errors.New("not found")
	ErrNotOnRoster     = errors.New("account not on roster")
	ErrNoActiveClass   = errors.New("no active class")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrSessionConflict = errors.New("live session conflict")
	ErrDuplicateRecord = errors.New("record already exists")
)
