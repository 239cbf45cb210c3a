//go:build !windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"

	"github.com/loykin/svcwrap/internal/policy"
)

// tree is the process group; nothing to release on Unix.
type tree struct{}

func (*tree) close() {}

func startInTree(cmd *exec.Cmd, _ string, _ uint64) (*tree, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &tree{}, nil
}

var ctrlSignals = map[SignalKind]syscall.Signal{
	SignalCtrlC:     syscall.SIGINT,
	SignalCtrlBreak: syscall.SIGTERM,
}

func sendCtrl(h *Handle, kind SignalKind) error {
	sig, ok := ctrlSignals[kind]
	if !ok {
		return ErrSignalUnsupported
	}
	return groupKill(h.PID, sig)
}

// killTree collects descendants first since SIGKILL on the group orphans
// anything that moved to another group.
func killTree(h *Handle) error {
	var kids []*gopsproc.Process
	if p, err := gopsproc.NewProcess(int32(h.PID)); err == nil {
		kids = descendants(p)
	}
	err := groupKill(h.PID, syscall.SIGKILL)
	for _, k := range kids {
		_ = k.Kill()
	}
	return err
}

func descendants(p *gopsproc.Process) []*gopsproc.Process {
	children, err := p.Children()
	if err != nil {
		return nil
	}
	out := make([]*gopsproc.Process, 0, len(children))
	for _, c := range children {
		out = append(out, c)
		out = append(out, descendants(c)...)
	}
	return out
}

func suspend(h *Handle) error { return groupKill(h.PID, syscall.SIGSTOP) }

func resume(h *Handle) error { return groupKill(h.PID, syscall.SIGCONT) }

// groupKill signals the process group led by pid, falling back to the pid
// alone. A vanished process is not an error.
func groupKill(pid int, sig syscall.Signal) error {
	err := syscall.Kill(-pid, sig)
	if errors.Is(err, syscall.ESRCH) || errors.Is(err, syscall.EPERM) {
		err = syscall.Kill(pid, sig)
	}
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}

func outcomeOf(ps *os.ProcessState, forced bool) policy.Outcome {
	if ps == nil {
		return policy.Outcome{Kind: policy.Killed}
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return policy.Outcome{Kind: policy.Killed, Code: -1}
	}
	if forced {
		return policy.Outcome{Kind: policy.Killed, Code: ps.ExitCode()}
	}
	return policy.Outcome{Kind: policy.Exited, Code: ps.ExitCode()}
}
