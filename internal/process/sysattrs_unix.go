//go:build !windows

package process

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureSysProcAttr places the child in its own process group so that
// signals and kills reach the whole group.
func configureSysProcAttr(cmd *exec.Cmd, _ Spec) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// applyPriority maps the priority class to a nice value. Raising priority
// usually needs privileges; the caller only logs a failure.
func applyPriority(pid int, p Priority) error {
	n := p.niceness()
	if n == 0 {
		return nil
	}
	return unix.Setpriority(unix.PRIO_PROCESS, pid, n)
}
