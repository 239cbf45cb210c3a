//go:build windows

package process

import (
	"os/exec"
	"sync"
	"syscall"

	"golang.org/x/sys/windows"
)

var priorityClasses = map[Priority]uint32{
	PriorityRealtime:    windows.REALTIME_PRIORITY_CLASS,
	PriorityHigh:        windows.HIGH_PRIORITY_CLASS,
	PriorityAboveNormal: windows.ABOVE_NORMAL_PRIORITY_CLASS,
	PriorityNormal:      windows.NORMAL_PRIORITY_CLASS,
	PriorityBelowNormal: windows.BELOW_NORMAL_PRIORITY_CLASS,
	PriorityIdle:        windows.IDLE_PRIORITY_CLASS,
}

var consoleOnce sync.Once

// configureSysProcAttr selects the priority class and, for ctrl-break, a new
// process group so the event can target the child alone. ctrl-c can only be
// broadcast to a shared console, so the child inherits ours.
func configureSysProcAttr(cmd *exec.Cmd, spec Spec) {
	flags := priorityClasses[spec.Priority]
	if spec.StopSignal == SignalCtrlBreak {
		flags |= windows.CREATE_NEW_PROCESS_GROUP
	}
	if spec.StopSignal == SignalCtrlC {
		consoleOnce.Do(ensureConsole)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: flags}
}

// applyPriority is handled by the creation flags.
func applyPriority(int, Priority) error { return nil }
