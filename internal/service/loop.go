// Package service implements the control loop that owns the service state,
// the child handle and the restart counter.
//
// Exactly one goroutine runs Loop.Run. Everything else talks to it through
// Submit or through the exit channel handed to the supervisor.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/loykin/svcwrap/internal/history"
	"github.com/loykin/svcwrap/internal/metrics"
	"github.com/loykin/svcwrap/internal/policy"
	"github.com/loykin/svcwrap/internal/process"
	"github.com/loykin/svcwrap/internal/status"
)

const (
	DefaultStopTimeout = 3 * time.Second
	DefaultKillGrace   = 5 * time.Second

	requestQueueSize   = 16
	exitQueueSize      = 4
	outputDrainTimeout = 2 * time.Second
)

// Supervisor is the part of process.Supervisor the loop drives.
type Supervisor interface {
	Spawn(ctx context.Context, extra []string, exits chan<- process.ExitEvent) (*process.Handle, error)
	Signal(h *process.Handle, kind process.SignalKind) error
	Terminate(h *process.Handle) error
	Suspend(h *process.Handle) error
	Resume(h *process.Handle) error
	RunStopCommand(ctx context.Context, args []string) error
}

// Recorder receives lifecycle events. Record must not block.
type Recorder interface {
	Record(history.Event)
}

// Config is the loop's share of the service configuration.
type Config struct {
	Name          string
	StartArgs     []string // arguments the SCM passed at start
	PassStartArgs bool
	PassStopArgs  bool
	Policy        policy.Policy
	StopSignal    process.SignalKind
	StopTimeout   time.Duration
	KillGrace     time.Duration
	PauseMode     PauseMode
}

func (c Config) withDefaults() Config {
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.KillGrace <= 0 {
		c.KillGrace = DefaultKillGrace
	}
	if c.PauseMode == "" {
		c.PauseMode = PauseAck
	}
	return c
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the diagnostics logger.
func WithLogger(l *slog.Logger) Option { return func(lp *Loop) { lp.log = l } }

// WithRecorder sends lifecycle events to r.
func WithRecorder(r Recorder) Option { return func(lp *Loop) { lp.rec = r } }

// Loop is the single-owner service state machine.
type Loop struct {
	cfg Config
	sup Supervisor
	rep *status.Reporter
	log *slog.Logger
	rec Recorder

	requests    chan Request
	exits       chan process.ExitEvent
	stopCmdDone chan error
	drained     chan bool
	done        chan struct{}
	watchCtx    context.Context

	// owned by Run
	handle     *process.Handle
	attempts   policy.Attempts
	restarts   int
	stopping   bool
	policyStop bool
	killed     bool
	suspended  bool
	finished   bool
	exitCode   uint32

	restart    timer
	deadline   timer
	grace      timer
	beat       *time.Ticker
	beatC      <-chan time.Time
	scaleWait  func(time.Duration) time.Duration
	waitOutput func(*process.Handle, time.Duration) bool
}

// New creates a loop. The reporter must not be used by anyone else while
// Run is active.
func New(cfg Config, sup Supervisor, rep *status.Reporter, opts ...Option) *Loop {
	l := &Loop{
		cfg:         cfg.withDefaults(),
		sup:         sup,
		rep:         rep,
		log:         slog.Default(),
		requests:    make(chan Request, requestQueueSize),
		exits:       make(chan process.ExitEvent, exitQueueSize),
		stopCmdDone: make(chan error, 1),
		drained:     make(chan bool, 1),
		done:        make(chan struct{}),
		scaleWait:   func(d time.Duration) time.Duration { return d },
		waitOutput:  (*process.Handle).WaitOutput,
	}
	for _, o := range opts {
		o(l)
	}
	l.log = l.log.With(slog.String("component", "control"))
	return l
}

// Submit hands r to the loop without waiting for it to be processed. Stop
// and Shutdown wait for queue space; other requests fail with ErrQueueFull.
func (l *Loop) Submit(r Request) error {
	select {
	case <-l.done:
		return ErrLoopFinished
	default:
	}
	if r.terminal() {
		select {
		case l.requests <- r:
			return nil
		case <-l.done:
			return ErrLoopFinished
		}
	}
	select {
	case l.requests <- r:
		return nil
	default:
		return ErrQueueFull
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Run drives the service from StartPending to Stopped. Cancelling ctx acts as
// Shutdown. The returned code is the service-specific exit code; err is set
// only for fatal failures.
func (l *Loop) Run(ctx context.Context) (uint32, error) {
	defer close(l.done)
	watchCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.watchCtx = watchCtx
	defer l.stopTimers()

	err := l.transition(status.StartPending, status.DefaultStartHint)
	if err == nil {
		err = l.spawn()
	}
	ctxDone := ctx.Done()
	for err == nil && !l.finished {
		select {
		case <-ctxDone:
			ctxDone = nil
			l.log.Info("context cancelled")
			err = l.beginStop(Shutdown)
		case r := <-l.requests:
			err = l.handleRequest(r)
		case ev := <-l.exits:
			err = l.handleExit(ev)
		case <-l.restart.C:
			l.restart.stop()
			err = l.restartDue()
		case cerr := <-l.stopCmdDone:
			err = l.afterStopCommand(cerr)
		case ok := <-l.drained:
			err = l.afterDrain(ok)
		case <-l.deadline.C:
			l.deadline.stop()
			err = l.forceKill()
		case <-l.grace.C:
			l.grace.stop()
			err = l.abandon()
		case <-l.beatC:
			err = l.rep.Heartbeat()
		}
	}
	if err != nil {
		l.log.Error("control loop failed", slog.Any("error", err))
		if l.handle != nil {
			_ = l.sup.Terminate(l.handle)
		}
		return 1, err
	}
	return l.exitCode, nil
}

func (l *Loop) handleRequest(r Request) error {
	l.log.Debug("control request", slog.String("request", r.String()), slog.String("state", l.rep.Current().String()))
	switch r {
	case Stop, Shutdown:
		return l.beginStop(r)
	case Pause:
		return l.pause()
	case Continue:
		return l.resume()
	case Interrogate:
		return l.rep.Republish()
	default:
		l.log.Warn("unknown control request", slog.Int("request", int(r)))
		return nil
	}
}

func (l *Loop) spawn() error {
	var extra []string
	if l.cfg.PassStartArgs {
		extra = l.cfg.StartArgs
	}
	h, err := l.sup.Spawn(l.watchCtx, extra, l.exits)
	if err != nil {
		metrics.IncSpawn(l.cfg.Name, false)
		l.log.Error("spawn failed", slog.Any("error", err))
		l.record(history.Event{Type: history.EventSpawnFailed, Outcome: policy.SpawnFailed.String(), ExitCode: 1, Message: err.Error()})
		return l.decide(nil, policy.Outcome{Kind: policy.SpawnFailed}, time.Now())
	}
	metrics.IncSpawn(l.cfg.Name, true)
	l.handle = h
	l.rep.SetPID(h.PID)
	l.record(history.Event{Type: history.EventSpawn, RunID: h.RunID, PID: h.PID})
	return l.transition(status.Running, 0)
}

func (l *Loop) handleExit(ev process.ExitEvent) error {
	if l.handle == nil || ev.HandleID != l.handle.ID {
		l.log.Debug("discarding stale exit event", slog.Uint64("handle", ev.HandleID))
		return nil
	}
	h := l.handle
	l.handle = nil
	l.suspended = false
	l.rep.SetPID(0)

	metrics.IncExit(l.cfg.Name, ev.Outcome.Kind.String())
	attrs := []any{slog.Int("pid", ev.PID), slog.String("outcome", ev.Outcome.String()), slog.Duration("uptime", ev.At.Sub(h.StartedAt))}
	if ev.Err != nil {
		attrs = append(attrs, slog.Any("error", ev.Err))
	}
	l.log.Info("child exited", attrs...)
	e := history.Event{Type: history.EventExit, RunID: ev.RunID, PID: ev.PID, Outcome: ev.Outcome.Kind.String(), ExitCode: ev.Outcome.ExitCode()}
	if ev.Err != nil {
		e.Message = ev.Err.Error()
	}
	l.record(e)

	if l.stopping {
		l.deadline.stop()
		l.grace.stop()
		l.drainOutput(h)
		return nil
	}
	return l.decide(h, ev.Outcome, ev.At)
}

// drainOutput gives the relays a moment to flush the child's last lines.
// The wait runs off the loop so heartbeats and requests keep flowing; Stopped
// is reported once the result arrives on l.drained.
func (l *Loop) drainOutput(h *process.Handle) {
	wait := l.waitOutput
	go func() { l.drained <- wait(h, outputDrainTimeout) }()
}

func (l *Loop) afterDrain(ok bool) error {
	if !ok {
		l.log.Warn("child output still open after exit", slog.Duration("waited", outputDrainTimeout))
	}
	return l.finish()
}

// decide applies the restart policy to an exit that nobody asked for.
func (l *Loop) decide(h *process.Handle, o policy.Outcome, at time.Time) error {
	d := policy.Decide(l.cfg.Policy, o, l.attempts, at)
	l.attempts = d.Attempts
	if d.Action == policy.Stop {
		l.log.Info("not restarting", slog.String("policy", l.cfg.Policy.Kind.String()), slog.String("outcome", o.String()))
		l.stopping = true
		l.policyStop = true
		if !l.cfg.Policy.Success(o) {
			l.exitCode = uint32(o.ExitCode())
		}
		if err := l.transition(status.StopPending, l.stopHint()); err != nil {
			return err
		}
		if h == nil {
			return l.finish()
		}
		l.drainOutput(h)
		return nil
	}

	l.restarts++
	l.rep.SetRestarts(l.restarts)
	metrics.ObserveRestart(l.cfg.Name, d.Delay.Seconds())
	l.log.Info("restart scheduled", slog.Duration("delay", d.Delay), slog.Int("attempt", d.Attempts.Count))
	l.record(history.Event{Type: history.EventRestart, Outcome: o.Kind.String(), ExitCode: o.ExitCode(), DelayMS: d.Delay.Milliseconds(), Attempt: d.Attempts.Count})
	if err := l.transition(status.StartPending, d.Delay+status.DefaultStartHint); err != nil {
		return err
	}
	l.restart.arm(l.scaleWait(d.Delay))
	return nil
}

func (l *Loop) restartDue() error {
	if l.stopping || l.handle != nil {
		return nil
	}
	return l.spawn()
}

// beginStop is idempotent. No restart may happen once it has run.
func (l *Loop) beginStop(r Request) error {
	if l.stopping {
		l.log.Debug("stop already in progress", slog.String("request", r.String()))
		return nil
	}
	l.stopping = true
	l.restart.stop()
	l.record(history.Event{Type: history.EventStopRequested, Message: r.String()})
	if err := l.transition(status.StopPending, l.stopHint()); err != nil {
		return err
	}
	if l.handle == nil {
		return l.finish()
	}
	if l.suspended {
		if err := l.sup.Resume(l.handle); err != nil {
			l.log.Warn("resume before stop failed", slog.Any("error", err))
		}
		l.suspended = false
	}
	l.deadline.arm(l.cfg.StopTimeout)

	var args []string
	if l.cfg.PassStopArgs {
		args = l.cfg.StartArgs
	}
	ctx := l.watchCtx
	go func() { l.stopCmdDone <- l.sup.RunStopCommand(ctx, args) }()
	return nil
}

func (l *Loop) afterStopCommand(err error) error {
	if err != nil {
		l.log.Warn("stop command failed", slog.Any("error", err))
	}
	if l.handle == nil || l.killed {
		return nil
	}
	err = l.sup.Signal(l.handle, l.cfg.StopSignal)
	switch {
	case err == nil:
		l.log.Info("stop signal sent", slog.String("signal", l.cfg.StopSignal.String()), slog.Duration("timeout", l.cfg.StopTimeout))
	case errors.Is(err, process.ErrSignalUnsupported):
		l.log.Info("no stop signal configured, waiting for the stop timeout", slog.Duration("timeout", l.cfg.StopTimeout))
	case errors.Is(err, process.ErrProcessExited):
	default:
		l.log.Warn("stop signal failed, child will be killed at the deadline", slog.Any("error", err))
	}
	return nil
}

func (l *Loop) forceKill() error {
	if l.handle == nil || l.killed {
		return nil
	}
	l.killed = true
	metrics.IncForcedKill(l.cfg.Name)
	l.log.Warn("stop timeout elapsed, killing child", slog.Int("pid", l.handle.PID))
	l.record(history.Event{Type: history.EventForcedKill, RunID: l.handle.RunID, PID: l.handle.PID})
	if err := l.sup.Terminate(l.handle); err != nil {
		l.log.Error("forced termination failed", slog.Any("error", err))
	}
	l.grace.arm(l.cfg.KillGrace)
	return nil
}

// abandon gives up on a child that survived forced termination.
func (l *Loop) abandon() error {
	if l.handle == nil {
		return nil
	}
	l.log.Error("child not reaped after kill, reporting stopped", slog.Int("pid", l.handle.PID), slog.Duration("grace", l.cfg.KillGrace))
	l.record(history.Event{Type: history.EventStopIncomplete, RunID: l.handle.RunID, PID: l.handle.PID, ExitCode: 1})
	l.handle = nil
	l.rep.SetPID(0)
	if !l.policyStop {
		l.exitCode = 1
	}
	return l.finish()
}

func (l *Loop) pause() error {
	if l.stopping || l.rep.Current() != status.Running {
		l.log.Debug("pause ignored", slog.String("state", l.rep.Current().String()))
		return l.rep.Republish()
	}
	if err := l.transition(status.PausePending, status.DefaultPauseHint); err != nil {
		return err
	}
	if l.cfg.PauseMode == PauseForward && l.handle != nil {
		if err := l.sup.Suspend(l.handle); err != nil {
			l.log.Warn("suspend failed", slog.Any("error", err))
		} else {
			l.suspended = true
		}
	}
	return l.transition(status.Paused, 0)
}

func (l *Loop) resume() error {
	if l.stopping || l.rep.Current() != status.Paused {
		l.log.Debug("continue ignored", slog.String("state", l.rep.Current().String()))
		return l.rep.Republish()
	}
	if err := l.transition(status.ContinuePending, status.DefaultPauseHint); err != nil {
		return err
	}
	if l.suspended && l.handle != nil {
		if err := l.sup.Resume(l.handle); err != nil {
			l.log.Warn("resume failed", slog.Any("error", err))
		}
	}
	l.suspended = false
	return l.transition(status.Running, 0)
}

func (l *Loop) finish() error {
	l.stopTimers()
	from := l.rep.Current()
	if !status.CanTransition(from, status.Stopped) {
		return &TransitionError{From: from, To: status.Stopped}
	}
	if err := l.rep.ReportStopped(l.exitCode); err != nil {
		return err
	}
	l.observe(from, status.Stopped)
	l.finished = true
	return nil
}

func (l *Loop) transition(to status.State, hint time.Duration) error {
	from := l.rep.Current()
	if !status.CanTransition(from, to) {
		return &TransitionError{From: from, To: to}
	}
	if err := l.rep.Report(to, hint); err != nil {
		return err
	}
	if from != to {
		l.observe(from, to)
	}
	l.resetHeartbeat(to, hint)
	return nil
}

func (l *Loop) observe(from, to status.State) {
	l.log.Info("service state changed", slog.String("from", from.String()), slog.String("to", to.String()))
	metrics.RecordTransition(l.cfg.Name, from.String(), to.String())
	l.record(history.Event{Type: history.EventStateChange, Message: from.String()})
}

func (l *Loop) resetHeartbeat(state status.State, hint time.Duration) {
	if !state.Pending() {
		if l.beat != nil {
			l.beat.Stop()
		}
		l.beatC = nil
		return
	}
	iv := status.HeartbeatInterval(hint)
	if l.beat == nil {
		l.beat = time.NewTicker(iv)
	} else {
		l.beat.Reset(iv)
	}
	l.beatC = l.beat.C
}

func (l *Loop) stopHint() time.Duration { return l.cfg.StopTimeout + l.cfg.KillGrace }

func (l *Loop) stopTimers() {
	l.restart.stop()
	l.deadline.stop()
	l.grace.stop()
	if l.beat != nil {
		l.beat.Stop()
	}
	l.beatC = nil
}

func (l *Loop) record(e history.Event) {
	if l.rec == nil {
		return
	}
	e.Service = l.cfg.Name
	e.State = l.rep.Current().String()
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	l.rec.Record(e)
}

// timer is a stoppable one-shot whose channel is nil while disarmed, so a
// select case on it never fires.
type timer struct {
	t *time.Timer
	C <-chan time.Time
}

func (t *timer) arm(d time.Duration) {
	t.stop()
	t.t = time.NewTimer(d)
	t.C = t.t.C
}

func (t *timer) stop() {
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
	t.C = nil
}
