//go:build windows

package process

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	winjob "github.com/kolesnikovae/go-winjob"
	"golang.org/x/sys/windows"

	"github.com/loykin/svcwrap/internal/policy"
)

var (
	kernel32                  = windows.NewLazySystemDLL("kernel32.dll")
	procAllocConsole          = kernel32.NewProc("AllocConsole")
	procSetConsoleCtrlHandler = kernel32.NewProc("SetConsoleCtrlHandler")

	ntdll                = windows.NewLazySystemDLL("ntdll.dll")
	procNtSuspendProcess = ntdll.NewProc("NtSuspendProcess")
	procNtResumeProcess  = ntdll.NewProc("NtResumeProcess")
)

const processSuspendResume = 0x0800

// tree is the job object holding the child and its descendants.
type tree struct {
	job  *winjob.JobObject
	once sync.Once
}

func (t *tree) close() {
	if t == nil || t.job == nil {
		return
	}
	t.once.Do(func() { _ = t.job.Close() })
}

func startInTree(cmd *exec.Cmd, name string, id uint64) (*tree, error) {
	job, err := winjob.Create(fmt.Sprintf("svcwrap-%s-%d-%d", name, os.Getpid(), id),
		winjob.WithKillOnJobClose(),
		winjob.WithBreakawayOK(),
	)
	if err != nil {
		return nil, fmt.Errorf("create job object: %w", err)
	}
	if err := winjob.StartInJobObject(cmd, job); err != nil {
		_ = job.Close()
		return nil, fmt.Errorf("start in job: %w", err)
	}
	return &tree{job: job}, nil
}

// ownCtrlC counts ctrl-c events the wrapper broadcast to its child that
// have not yet reached the wrapper's own handler.
var ownCtrlC atomic.Int32

// ctrlHandler swallows the wrapper's own ctrl-c broadcasts. Anything else
// falls through to the runtime's handler, so console mode still sees
// os.Interrupt.
var ctrlHandler = windows.NewCallback(handleCtrl)

func handleCtrl(ctrlType uintptr) uintptr {
	if ctrlType != windows.CTRL_C_EVENT {
		return 0
	}
	for {
		n := ownCtrlC.Load()
		if n <= 0 {
			return 0
		}
		if ownCtrlC.CompareAndSwap(n, n-1) {
			return 1
		}
	}
}

// ensureConsole gives a service process a console to share with its child.
// The ignore-ctrl-c attribute is inherited by children, so it is cleared and
// a handler routine, which is not inherited, protects the wrapper instead.
func ensureConsole() {
	_, _, _ = procAllocConsole.Call()
	_, _, _ = procSetConsoleCtrlHandler.Call(0, 0)
	_, _, _ = procSetConsoleCtrlHandler.Call(ctrlHandler, 1)
}

// ctrlCIgnored reports whether this process ignores ctrl-c, the attribute a
// child would inherit.
func ctrlCIgnored() bool {
	params := windows.RtlGetCurrentPeb().ProcessParameters
	return params != nil && params.ConsoleFlags&1 != 0
}

func sendCtrl(h *Handle, kind SignalKind) error {
	switch kind {
	case SignalCtrlC:
		ownCtrlC.Add(1)
		if err := windows.GenerateConsoleCtrlEvent(windows.CTRL_C_EVENT, 0); err != nil {
			ownCtrlC.Add(-1)
			return err
		}
		return nil
	case SignalCtrlBreak:
		return windows.GenerateConsoleCtrlEvent(windows.CTRL_BREAK_EVENT, uint32(h.PID))
	default:
		return ErrSignalUnsupported
	}
}

// killTree closes the kill-on-close job, taking every process in it down.
func killTree(h *Handle) error {
	if h.tree != nil && h.tree.job != nil {
		h.tree.close()
		return nil
	}
	return h.cmd.Process.Kill()
}

func suspend(h *Handle) error { return ntCall(procNtSuspendProcess, h.PID) }

func resume(h *Handle) error { return ntCall(procNtResumeProcess, h.PID) }

func ntCall(p *windows.LazyProc, pid int) error {
	hp, err := windows.OpenProcess(processSuspendResume, false, uint32(pid))
	if err != nil {
		return err
	}
	defer func() { _ = windows.CloseHandle(hp) }()
	if st, _, _ := p.Call(uintptr(hp)); st != 0 {
		return fmt.Errorf("%s: ntstatus 0x%x", p.Name, st)
	}
	return nil
}

func outcomeOf(ps *os.ProcessState, forced bool) policy.Outcome {
	if ps == nil {
		return policy.Outcome{Kind: policy.Killed}
	}
	if forced {
		return policy.Outcome{Kind: policy.Killed, Code: ps.ExitCode()}
	}
	return policy.Outcome{Kind: policy.Exited, Code: ps.ExitCode()}
}
