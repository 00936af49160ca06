package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound         = errors.New("entity not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrUnknownJob       = errors.New("unknown job")
	ErrJobNotReady      = errors.New("job not ready")
	ErrStillParsing     = errors.New("upload is still being parsed")
	ErrNotConfirmable   = errors.New("job kind does not support confirm")
	ErrMalformedRecord  = errors.New("malformed persisted record")
	ErrJobAlreadyActive = errors.New("job already has an active poll loop")
)

// JobNotReadyError is returned when the server rejects a confirm because
// parsing has not finished yet.
type JobNotReadyError struct {
	JobID    string
	Progress int
}

func (e *JobNotReadyError) Error() string {
	return fmt.Sprintf("job %s not ready (progress %d%%)", e.JobID, e.Progress)
}

func (e *JobNotReadyError) Is(target error) bool {
	return target == ErrJobNotReady
}
