// Package status publishes the service's lifecycle state to the SCM.
//
// The Reporter is owned by the control loop goroutine and is not safe for
// concurrent mutation. Snapshot is the only method other goroutines may call.
package status

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// Default wait hints advertised for pending states.
const (
	DefaultStartHint = 10 * time.Second
	DefaultPauseHint = 5 * time.Second
	MaxHeartbeat     = 2 * time.Second
)

// ErrPublisherGone is returned by publishers whose SCM channel is closed.
var ErrPublisherGone = errors.New("status publisher is gone")

// Accepts describes which control requests the service currently accepts.
type Accepts struct {
	Stop          bool
	Shutdown      bool
	PauseContinue bool
}

// Status is one status publication.
type Status struct {
	State      State
	Checkpoint uint32
	WaitHint   time.Duration
	Accepts    Accepts
	ExitCode   uint32 // service-specific exit code, meaningful with Stopped
	PID        int
}

// Publisher delivers status to the SCM (or a console stand-in).
type Publisher interface {
	Publish(Status) error
}

// ReportError wraps a failed publication. It is fatal for the service.
type ReportError struct {
	State State
	Err   error
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("report status %s: %v", e.State, e.Err)
}

func (e *ReportError) Unwrap() error { return e.Err }

// Snapshot is a read-only copy of the last published status.
type Snapshot struct {
	Name       string    `json:"name"`
	State      string    `json:"state"`
	Checkpoint uint32    `json:"checkpoint"`
	WaitHint   string    `json:"wait_hint,omitempty"`
	PID        int       `json:"pid,omitempty"`
	ExitCode   uint32    `json:"exit_code,omitempty"`
	Restarts   int       `json:"restarts"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Reporter keeps the checkpoint counter and the last published status.
type Reporter struct {
	name          string
	pub           Publisher
	pauseContinue bool
	current       Status
	restarts      int
	snap          atomic.Pointer[Snapshot]
}

// NewReporter creates a Reporter. pauseContinue controls whether the service
// advertises that it accepts pause and continue.
func NewReporter(name string, pub Publisher, pauseContinue bool) *Reporter {
	r := &Reporter{name: name, pub: pub, pauseContinue: pauseContinue}
	r.current.State = StartPending
	r.storeSnapshot()
	return r
}

// Current returns the last reported state.
func (r *Reporter) Current() State { return r.current.State }

// WaitHint returns the wait hint of the last report.
func (r *Reporter) WaitHint() time.Duration { return r.current.WaitHint }

// Report publishes state with a fresh checkpoint. A pending state that is
// re-reported keeps counting its checkpoint upward; stable states use 0.
func (r *Reporter) Report(state State, hint time.Duration) error {
	next := Status{State: state, WaitHint: hint, PID: r.current.PID}
	if state.Pending() {
		if r.current.State == state {
			next.Checkpoint = r.current.Checkpoint + 1
		} else {
			next.Checkpoint = 1
		}
	} else {
		next.WaitHint = 0
	}
	next.Accepts = r.accepts(state)
	return r.publish(next)
}

// ReportStopped publishes the terminal status with a service-specific exit code.
func (r *Reporter) ReportStopped(exitCode uint32) error {
	return r.publish(Status{State: Stopped, ExitCode: exitCode})
}

// Heartbeat re-publishes the current pending state with checkpoint+1. Stable
// states are left untouched.
func (r *Reporter) Heartbeat() error {
	if !r.current.State.Pending() {
		return nil
	}
	next := r.current
	next.Checkpoint++
	return r.publish(next)
}

// Republish sends the current status again unchanged (interrogate).
func (r *Reporter) Republish() error {
	return r.publish(r.current)
}

// SetPID records the live child pid shown in snapshots; 0 clears it.
func (r *Reporter) SetPID(pid int) {
	r.current.PID = pid
	r.storeSnapshot()
}

// SetRestarts records the restart counter shown in snapshots.
func (r *Reporter) SetRestarts(n int) {
	r.restarts = n
	r.storeSnapshot()
}

// Snapshot is safe to call from any goroutine.
func (r *Reporter) Snapshot() Snapshot {
	return *r.snap.Load()
}

// HeartbeatInterval is how often a pending state must be re-reported so the
// SCM never sees the wait hint elapse.
func HeartbeatInterval(hint time.Duration) time.Duration {
	iv := hint / 2
	if iv <= 0 || iv > MaxHeartbeat {
		iv = MaxHeartbeat
	}
	return iv
}

func (r *Reporter) accepts(state State) Accepts {
	switch state {
	case Running, Paused:
		return Accepts{Stop: true, Shutdown: true, PauseContinue: r.pauseContinue}
	case StartPending, PausePending, ContinuePending:
		return Accepts{Stop: true, Shutdown: true}
	default:
		return Accepts{}
	}
}

func (r *Reporter) publish(s Status) error {
	if err := r.pub.Publish(s); err != nil {
		return &ReportError{State: s.State, Err: err}
	}
	r.current = s
	r.storeSnapshot()
	return nil
}

func (r *Reporter) storeSnapshot() {
	s := &Snapshot{
		Name:       r.name,
		State:      r.current.State.String(),
		Checkpoint: r.current.Checkpoint,
		PID:        r.current.PID,
		ExitCode:   r.current.ExitCode,
		Restarts:   r.restarts,
		UpdatedAt:  time.Now().UTC(),
	}
	if r.current.WaitHint > 0 {
		s.WaitHint = r.current.WaitHint.String()
	}
	r.snap.Store(s)
}
