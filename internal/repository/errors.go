package repository

import "errors"

var (
	// ErrDetectionNotFound indicates no detection record has the requested id
	ErrDetectionNotFound = errors.New("detection record not found")

	// ErrInvalidOutcome indicates a nil or unknown call outcome was recorded
	ErrInvalidOutcome = errors.New("invalid call outcome")

	// ErrRepositoryUnavailable indicates the repository is unavailable
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)
