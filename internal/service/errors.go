package service

import (
	"errors"
	"fmt"

	"github.com/loykin/svcwrap/internal/status"
)

var (
	// ErrLoopFinished is returned by Submit once Run has returned.
	ErrLoopFinished = errors.New("control loop finished")
	// ErrQueueFull is returned by Submit when a non-stop request cannot be queued.
	ErrQueueFull = errors.New("control request queue full")
)

// RegistrationError means the service could not attach to the SCM. It is fatal.
type RegistrationError struct {
	Name string
	Err  error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register service %q: %v", e.Name, e.Err)
}

func (e *RegistrationError) Unwrap() error { return e.Err }

// StatusReportError is a failed status publication; the SCM link is lost.
type StatusReportError = status.ReportError

// TransitionError reports an attempted edge the state machine does not allow.
type TransitionError struct {
	From, To status.State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal state transition %s -> %s", e.From, e.To)
}

// IsFatal reports whether err ends the service.
func IsFatal(err error) bool {
	var re *RegistrationError
	var se *StatusReportError
	var te *TransitionError
	return errors.As(err, &re) || errors.As(err, &se) || errors.As(err, &te)
}
