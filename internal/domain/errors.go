package domain

import "errors"

var (
	ErrUnauthorized     = errors.New("unauthorized")
	ErrAlreadyRunning   = errors.New("run already in progress")
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrDuplicateLink    = errors.New("duplicate link for owner")
	ErrEmptyDestination = errors.New("resolver returned empty destination")
	ErrInvalidAnalysis  = errors.New("invalid analysis payload")
)
