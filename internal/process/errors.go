package process

import (
	"errors"
	"fmt"
)

var (
	// ErrSignalUnsupported is returned for SignalNone; callers fall back to
	// forced termination at the stop deadline.
	ErrSignalUnsupported = errors.New("stop signal not supported")
	// ErrProcessExited is returned when acting on a handle whose child is gone.
	ErrProcessExited = errors.New("process already exited")
)

// SpawnError means the child could not be launched.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string { return fmt.Sprintf("spawn %q: %v", e.Command, e.Err) }

func (e *SpawnError) Unwrap() error { return e.Err }

// SignalError wraps a failed signal or kill delivery.
type SignalError struct {
	Op  string
	PID int
	Err error
}

func (e *SignalError) Error() string {
	return fmt.Sprintf("%s pid %d: %v", e.Op, e.PID, e.Err)
}

func (e *SignalError) Unwrap() error { return e.Err }
