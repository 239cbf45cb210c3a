// Package process starts the wrapped child, watches it exit and delivers
// stop signals and forced termination to it and its descendants.
package process

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/svcwrap/internal/policy"
	"github.com/loykin/svcwrap/internal/relay"
)

// DefaultStopCommandTimeout bounds the optional stop command.
const DefaultStopCommandTimeout = 30 * time.Second

// Handle identifies one live child. It is invalidated when the exit watcher
// observes the exit.
type Handle struct {
	ID        uint64
	PID       int
	RunID     string
	StartedAt time.Time

	cmd    *exec.Cmd
	tree   *tree
	done   chan struct{}
	exited atomic.Bool
	forced atomic.Bool
	relays *relay.Group
}

// Exited reports whether the exit watcher has reaped the child.
func (h *Handle) Exited() bool { return h.exited.Load() }

// Done is closed once the child has been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// OutputDone waits for both output relays to drain.
func (h *Handle) OutputDone() error {
	if h.relays == nil {
		return nil
	}
	return h.relays.Wait()
}

// WaitOutput waits at most d for the relays to drain. Descendants that
// inherited the pipes can keep them open past the child's exit.
func (h *Handle) WaitOutput(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		_ = h.OutputDone()
		close(done)
	}()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}

// ExitEvent is posted exactly once per spawned handle.
type ExitEvent struct {
	HandleID uint64
	PID      int
	RunID    string
	Outcome  policy.Outcome
	At       time.Time
	Err      error // wait failures other than a non-zero exit
}

// Supervisor runs children described by one Spec. It keeps no per-child
// state; the caller owns the handle.
type Supervisor struct {
	spec Spec
	sink relay.Sink
	log  *slog.Logger
	seq  atomic.Uint64
}

// New creates a supervisor. Output from every child goes to sink.
func New(spec Spec, sink relay.Sink, log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	if sink == nil {
		sink = relay.Multi{}
	}
	return &Supervisor{spec: spec, sink: sink, log: log.With(slog.String("component", "supervisor"))}
}

// Spawn starts a child with extra appended to the configured arguments.
// The exit watcher posts to exits until ctx is cancelled.
func (s *Supervisor) Spawn(ctx context.Context, extra []string, exits chan<- ExitEvent) (*Handle, error) {
	id := s.seq.Add(1)
	cmd := s.spec.buildCommand(extra)

	outR, outW, err := os.Pipe()
	if err != nil {
		return nil, &SpawnError{Command: s.spec.Command, Err: err}
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		_ = outR.Close()
		_ = outW.Close()
		return nil, &SpawnError{Command: s.spec.Command, Err: err}
	}
	cmd.Stdout = outW
	cmd.Stderr = errW
	configureSysProcAttr(cmd, s.spec)

	t, err := startInTree(cmd, s.spec.Name, id)
	// the child holds its own copies of the write ends
	_ = outW.Close()
	_ = errW.Close()
	if err != nil {
		_ = outR.Close()
		_ = errR.Close()
		return nil, &SpawnError{Command: s.spec.Command, Err: err}
	}

	h := &Handle{
		ID:    id,
		PID:   cmd.Process.Pid,
		RunID: uuid.NewString(),
		cmd:   cmd,
		tree:  t,
		done:  make(chan struct{}),
	}
	h.StartedAt = startTime(h.PID)
	log := s.log.With(slog.Int("pid", h.PID), slog.String("run_id", h.RunID))
	h.relays = relay.Start(outR, errR, s.sink, log)

	if err := applyPriority(h.PID, s.spec.Priority); err != nil {
		log.Warn("set priority failed", slog.String("priority", string(s.spec.Priority)), slog.Any("error", err))
	}
	if s.spec.PIDFile != "" {
		info := PIDInfo{RunID: h.RunID, StartedAt: h.StartedAt, Command: s.spec.commandLine()}
		if err := writePIDFile(s.spec.PIDFile, h.PID, info); err != nil {
			log.Warn("write pid file failed", slog.String("path", s.spec.PIDFile), slog.Any("error", err))
		}
	}
	log.Info("child started", slog.Uint64("handle", id), slog.String("command", s.spec.commandLine()))

	go s.watch(ctx, h, exits, log)
	return h, nil
}

func (s *Supervisor) watch(ctx context.Context, h *Handle, exits chan<- ExitEvent, log *slog.Logger) {
	waitErr := h.cmd.Wait()
	at := time.Now()
	h.exited.Store(true)
	close(h.done)
	h.tree.close()
	removePIDFile(s.spec.PIDFile, h.PID)

	ev := ExitEvent{
		HandleID: h.ID,
		PID:      h.PID,
		RunID:    h.RunID,
		Outcome:  outcomeOf(h.cmd.ProcessState, h.forced.Load()),
		At:       at,
	}
	var ee *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &ee) {
		ev.Err = waitErr
	}
	log.Info("child exited", slog.Uint64("handle", h.ID), slog.String("outcome", ev.Outcome.String()))

	select {
	case exits <- ev:
	case <-ctx.Done():
	}
}

// Signal delivers the graceful stop primitive.
func (s *Supervisor) Signal(h *Handle, kind SignalKind) error {
	if h == nil || h.Exited() {
		return ErrProcessExited
	}
	if kind == SignalNone {
		return ErrSignalUnsupported
	}
	if err := sendCtrl(h, kind); err != nil {
		return &SignalError{Op: kind.String(), PID: h.PID, Err: err}
	}
	return nil
}

// Terminate kills the child and all of its descendants.
func (s *Supervisor) Terminate(h *Handle) error {
	if h == nil || h.Exited() {
		return nil
	}
	h.forced.Store(true)
	if err := killTree(h); err != nil {
		return &SignalError{Op: "kill", PID: h.PID, Err: err}
	}
	return nil
}

// Suspend stops the child from being scheduled.
func (s *Supervisor) Suspend(h *Handle) error {
	if h == nil || h.Exited() {
		return ErrProcessExited
	}
	if err := suspend(h); err != nil {
		return &SignalError{Op: "suspend", PID: h.PID, Err: err}
	}
	return nil
}

// Resume undoes Suspend.
func (s *Supervisor) Resume(h *Handle) error {
	if h == nil || h.Exited() {
		return ErrProcessExited
	}
	if err := resume(h); err != nil {
		return &SignalError{Op: "resume", PID: h.PID, Err: err}
	}
	return nil
}

// RunStopCommand runs the configured stop command through the shell with
// args appended. Its output goes to the child output sink.
func (s *Supervisor) RunStopCommand(ctx context.Context, args []string) error {
	if strings.TrimSpace(s.spec.StopCommand) == "" {
		return nil
	}
	timeout := s.spec.StopCommandTimeout
	if timeout <= 0 {
		timeout = DefaultStopCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	script := s.spec.StopCommand
	for _, a := range args {
		script += " " + shellQuote(a)
	}
	cmd := shellCommand(ctx, script)
	cmd.Dir = s.spec.WorkDir
	if s.spec.Env != nil {
		cmd.Env = s.spec.Env
	}
	out, err := cmd.CombinedOutput()
	for _, line := range strings.Split(strings.TrimRight(string(out), "\r\n"), "\n") {
		if line != "" {
			s.sink.Write(relay.Record{Stream: relay.Stdout, Time: time.Now(), Text: strings.TrimRight(line, "\r")})
		}
	}
	if err != nil {
		s.log.Warn("stop command failed", slog.String("command", s.spec.StopCommand), slog.Any("error", err))
		return err
	}
	s.log.Debug("stop command finished", slog.String("command", s.spec.StopCommand))
	return nil
}
