package process

import (
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// SignalKind selects the graceful stop primitive sent to the child.
type SignalKind int

const (
	SignalCtrlC SignalKind = iota
	SignalCtrlBreak
	SignalNone
)

func (k SignalKind) String() string {
	switch k {
	case SignalCtrlC:
		return "ctrl-c"
	case SignalCtrlBreak:
		return "ctrl-break"
	case SignalNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseSignalKind accepts ctrl-c, ctrl-break and none. Empty means ctrl-c.
func ParseSignalKind(s string) (SignalKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ctrl-c", "ctrlc", "ctrl_c":
		return SignalCtrlC, nil
	case "ctrl-break", "ctrlbreak", "ctrl_break":
		return SignalCtrlBreak, nil
	case "none":
		return SignalNone, nil
	default:
		return 0, fmt.Errorf("invalid stop signal %q, must be one of: ctrl-c, ctrl-break, none", s)
	}
}

// Priority is the scheduling class the child is started with.
type Priority string

const (
	PriorityRealtime    Priority = "realtime"
	PriorityHigh        Priority = "high"
	PriorityAboveNormal Priority = "above-normal"
	PriorityNormal      Priority = "normal"
	PriorityBelowNormal Priority = "below-normal"
	PriorityIdle        Priority = "idle"
)

// ParsePriority accepts the Windows priority class names. Empty means normal.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-"))
	switch p {
	case "":
		return PriorityNormal, nil
	case PriorityRealtime, PriorityHigh, PriorityAboveNormal, PriorityNormal, PriorityBelowNormal, PriorityIdle:
		return p, nil
	default:
		return "", fmt.Errorf("invalid priority %q", s)
	}
}

// niceness approximates the class on Unix.
func (p Priority) niceness() int {
	switch p {
	case PriorityRealtime:
		return -20
	case PriorityHigh:
		return -10
	case PriorityAboveNormal:
		return -5
	case PriorityBelowNormal:
		return 5
	case PriorityIdle:
		return 19
	default:
		return 0
	}
}

// Spec describes the child the supervisor runs. Env is the complete
// environment; nil inherits the wrapper's own.
type Spec struct {
	Name               string        `json:"name"`
	Command            string        `json:"command"`
	Args               []string      `json:"args"`
	WorkDir            string        `json:"work_dir"`
	Env                []string      `json:"-"`
	PIDFile            string        `json:"pid_file"`
	Priority           Priority      `json:"priority"`
	StopSignal         SignalKind    `json:"stop_signal"`
	StopCommand        string        `json:"stop_command"`
	StopCommandTimeout time.Duration `json:"stop_command_timeout"`
}

// buildCommand returns the command for one run; extra is appended after Args.
func (s *Spec) buildCommand(extra []string) *exec.Cmd {
	args := make([]string, 0, len(s.Args)+len(extra))
	args = append(args, s.Args...)
	args = append(args, extra...)
	// #nosec G204
	cmd := exec.Command(s.Command, args...)
	if s.WorkDir != "" {
		cmd.Dir = s.WorkDir
	}
	if s.Env != nil {
		cmd.Env = s.Env
	}
	return cmd
}

func (s *Spec) commandLine() string {
	return strings.TrimSpace(s.Command + " " + strings.Join(s.Args, " "))
}
