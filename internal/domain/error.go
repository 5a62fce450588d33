package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrJobAlreadyActive   = errors.New("document already has an active job")
	ErrJobCancelled       = errors.New("job was cancelled")
	ErrJobTerminal        = errors.New("job is already in a terminal state")
	ErrEmptyDocument      = errors.New("document has no extractable text")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrUnknownJobKind     = errors.New("unknown job kind")
	ErrReadDatabaseRow    = errors.New("failed to read database row")
	ErrInvalidExecContext = errors.New("invalid executor context")
	ErrModelUnavailable   = errors.New("no model provider available")
)
