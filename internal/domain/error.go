package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAlreadyTerminal is returned by the job store when a status
	// transition targets a job that has already reached a terminal state.
	ErrAlreadyTerminal = errors.New("job already in terminal state")

	// Failure taxonomy for classification calls. Handlers wrap every error
	// they return with exactly one of these two so the consumer loop can
	// pick the retry policy with errors.Is.
	ErrInvalidResponse = errors.New("classification response unusable")
	ErrUnavailable     = errors.New("classification service unavailable")

	// ErrUnknownJobKind marks a broker entry whose kind has no registered
	// handler. Always terminal, never retried.
	ErrUnknownJobKind = errors.New("unknown job kind")
)
