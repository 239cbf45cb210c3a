package service

import (
	"fmt"
	"strings"
)

// Request is a control request from the SCM.
type Request int

const (
	Stop Request = iota
	Pause
	Continue
	Shutdown
	Interrogate
)

func (r Request) String() string {
	switch r {
	case Stop:
		return "stop"
	case Pause:
		return "pause"
	case Continue:
		return "continue"
	case Shutdown:
		return "shutdown"
	case Interrogate:
		return "interrogate"
	default:
		return fmt.Sprintf("request(%d)", int(r))
	}
}

// terminal requests must never be dropped.
func (r Request) terminal() bool { return r == Stop || r == Shutdown }

// PauseMode selects what pause and continue do to the child.
type PauseMode string

const (
	// PauseAck acknowledges pause/continue without touching the child.
	PauseAck PauseMode = "ack"
	// PauseForward suspends and resumes the child.
	PauseForward PauseMode = "forward"
)

// ParsePauseMode accepts ack and forward. Empty means ack.
func ParsePauseMode(s string) (PauseMode, error) {
	switch m := PauseMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", PauseAck:
		return PauseAck, nil
	case PauseForward:
		return m, nil
	default:
		return "", fmt.Errorf("invalid pause mode %q, must be ack or forward", s)
	}
}
