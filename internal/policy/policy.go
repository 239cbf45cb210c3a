// Package policy decides whether a service child is restarted after it exits.
//
// Decide is a pure function: every input is passed explicitly and the updated
// attempt counter is returned instead of being stored anywhere.
package policy

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Kind selects the restart behavior.
type Kind int

const (
	Never Kind = iota
	Always
	OnFailure   // restart unless the child exited normally with a success code
	OnExitCodes // restart only if the child exited normally with one of the listed codes
)

func (k Kind) String() string {
	switch k {
	case Never:
		return "never"
	case Always:
		return "always"
	case OnFailure:
		return "on-failure"
	case OnExitCodes:
		return "on-exit-codes"
	default:
		return "unknown"
	}
}

// ParseKind accepts the names produced by Kind.String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "never", "no":
		return Never, nil
	case "always", "yes":
		return Always, nil
	case "on-failure", "onfailure", "on_failure":
		return OnFailure, nil
	case "on-exit-codes", "on_exit_codes", "restart-if":
		return OnExitCodes, nil
	default:
		return Never, fmt.Errorf("invalid restart policy %q, must be one of: never, always, on-failure, on-exit-codes", s)
	}
}

// Backoff configures exponential restart delays. A fixed delay is expressed
// with Initial == Max.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	ResetAfter time.Duration // attempts reset to zero once the window is older than this; 0 disables
}

// Policy is the restart configuration of a service.
type Policy struct {
	Kind Kind
	// Codes is the success set for OnFailure and the restart set for OnExitCodes.
	Codes       []int
	Backoff     *Backoff
	MaxAttempts int // 0 means unlimited
}

// Validate rejects combinations that Decide cannot honor.
func (p Policy) Validate() error {
	if p.Kind == OnExitCodes && len(p.Codes) == 0 {
		return fmt.Errorf("restart policy %s requires at least one exit code", p.Kind)
	}
	if p.MaxAttempts < 0 {
		return fmt.Errorf("max restart attempts cannot be negative")
	}
	if b := p.Backoff; b != nil {
		if b.Initial < 0 || b.Max < 0 || b.ResetAfter < 0 {
			return fmt.Errorf("backoff durations cannot be negative")
		}
		if b.Max > 0 && b.Max < b.Initial {
			return fmt.Errorf("backoff max %s is lower than initial %s", b.Max, b.Initial)
		}
	}
	return nil
}

// OutcomeKind classifies how a child run ended.
type OutcomeKind int

const (
	Exited      OutcomeKind = iota // normal exit with a code
	Killed                         // forcibly terminated or died from a signal
	SpawnFailed                    // the executable could not be launched
)

func (k OutcomeKind) String() string {
	switch k {
	case Exited:
		return "exited"
	case Killed:
		return "killed"
	case SpawnFailed:
		return "spawn_failed"
	default:
		return "unknown"
	}
}

// Outcome describes a single child exit.
type Outcome struct {
	Kind OutcomeKind
	Code int // meaningful only for Exited
}

// ExitCode returns the code reported to the SCM when this outcome stops the service.
func (o Outcome) ExitCode() int {
	if o.Kind == Exited {
		return o.Code
	}
	return 1
}

func (o Outcome) String() string {
	if o.Kind == Exited {
		return fmt.Sprintf("exited(%d)", o.Code)
	}
	return o.Kind.String()
}

// Attempts counts consecutive restarts within a window.
type Attempts struct {
	Count       int
	WindowStart time.Time
}

// Action is what the caller should do next.
type Action int

const (
	Stop Action = iota
	RestartNow
	RestartAfter
)

func (a Action) String() string {
	switch a {
	case Stop:
		return "stop"
	case RestartNow:
		return "restart_now"
	case RestartAfter:
		return "restart_after"
	default:
		return "unknown"
	}
}

// Decision is the result of Decide. Attempts is the counter the caller must
// keep for the next call.
type Decision struct {
	Action   Action
	Delay    time.Duration
	Attempts Attempts
}

// Decide maps a policy, an exit outcome and the attempt history to a restart decision.
func Decide(p Policy, o Outcome, a Attempts, now time.Time) Decision {
	if !wantsRestart(p, o) {
		return Decision{Action: Stop, Attempts: a}
	}

	if a.WindowStart.IsZero() {
		a.WindowStart = now
	}
	if b := p.Backoff; b != nil && b.ResetAfter > 0 && now.Sub(a.WindowStart) > b.ResetAfter {
		a = Attempts{WindowStart: now}
	}
	if p.MaxAttempts > 0 && a.Count >= p.MaxAttempts {
		return Decision{Action: Stop, Attempts: a}
	}

	delay := delayFor(p.Backoff, a.Count)
	a.Count++
	if delay <= 0 {
		return Decision{Action: RestartNow, Attempts: a}
	}
	return Decision{Action: RestartAfter, Delay: delay, Attempts: a}
}

// Success reports whether o is a clean exit under p: a code in the success
// set for OnFailure, code 0 otherwise. Kills and spawn failures never are.
func (p Policy) Success(o Outcome) bool {
	if o.Kind != Exited {
		return false
	}
	if p.Kind == OnFailure {
		return slices.Contains(p.Codes, o.Code)
	}
	return o.Code == 0
}

func wantsRestart(p Policy, o Outcome) bool {
	switch p.Kind {
	case Always:
		return true
	case OnFailure:
		return o.Kind != Exited || !slices.Contains(p.Codes, o.Code)
	case OnExitCodes:
		return o.Kind == Exited && slices.Contains(p.Codes, o.Code)
	default:
		return false
	}
}

// delayFor returns min(initial * 2^attempts, max) without overflowing.
func delayFor(b *Backoff, attempts int) time.Duration {
	if b == nil || b.Initial <= 0 {
		return 0
	}
	limit := b.Max
	if limit <= 0 {
		limit = b.Initial
	}
	d := b.Initial
	for i := 0; i < attempts; i++ {
		if d >= limit/2 {
			return limit
		}
		d *= 2
	}
	if d > limit {
		return limit
	}
	return d
}
