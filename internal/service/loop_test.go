package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/loykin/svcwrap/internal/history"
	"github.com/loykin/svcwrap/internal/policy"
	"github.com/loykin/svcwrap/internal/process"
	"github.com/loykin/svcwrap/internal/status"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSupervisor simulates children without running processes.
type fakeSupervisor struct {
	mu         sync.Mutex
	nextID     uint64
	current    *process.Handle
	ctx        context.Context
	exits      chan<- process.ExitEvent
	spawnErrs  []error
	spawns     int
	extras     [][]string
	stopArgs   [][]string
	signals    []process.SignalKind
	terminates int
	suspends   int
	resumes    int

	exitOnSignal    bool
	exitOnTerminate bool
	signalErr       error
}

func (f *fakeSupervisor) Spawn(ctx context.Context, extra []string, exits chan<- process.ExitEvent) (*process.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spawns++
	f.extras = append(f.extras, extra)
	if len(f.spawnErrs) > 0 {
		err := f.spawnErrs[0]
		f.spawnErrs = f.spawnErrs[1:]
		if err != nil {
			return nil, &process.SpawnError{Command: "fake", Err: err}
		}
	}
	f.nextID++
	h := &process.Handle{ID: f.nextID, PID: 1000 + int(f.nextID), RunID: "run", StartedAt: time.Now()}
	f.current = h
	f.ctx = ctx
	f.exits = exits
	return h, nil
}

func (f *fakeSupervisor) Signal(h *process.Handle, kind process.SignalKind) error {
	f.mu.Lock()
	f.signals = append(f.signals, kind)
	exit := f.exitOnSignal
	err := f.signalErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if exit {
		f.exitHandle(h, policy.Outcome{Kind: policy.Exited, Code: 0})
	}
	return nil
}

func (f *fakeSupervisor) Terminate(h *process.Handle) error {
	f.mu.Lock()
	f.terminates++
	exit := f.exitOnTerminate
	f.mu.Unlock()
	if exit {
		f.exitHandle(h, policy.Outcome{Kind: policy.Killed, Code: -1})
	}
	return nil
}

func (f *fakeSupervisor) Suspend(*process.Handle) error {
	f.mu.Lock()
	f.suspends++
	f.mu.Unlock()
	return nil
}

func (f *fakeSupervisor) Resume(*process.Handle) error {
	f.mu.Lock()
	f.resumes++
	f.mu.Unlock()
	return nil
}

func (f *fakeSupervisor) RunStopCommand(_ context.Context, args []string) error {
	f.mu.Lock()
	f.stopArgs = append(f.stopArgs, args)
	f.mu.Unlock()
	return nil
}

// exit makes the current child exit with code.
func (f *fakeSupervisor) exit(code int) {
	f.mu.Lock()
	h := f.current
	f.mu.Unlock()
	f.exitHandle(h, policy.Outcome{Kind: policy.Exited, Code: code})
}

func (f *fakeSupervisor) exitHandle(h *process.Handle, o policy.Outcome) {
	f.mu.Lock()
	ctx, exits := f.ctx, f.exits
	f.mu.Unlock()
	go func() {
		select {
		case exits <- process.ExitEvent{HandleID: h.ID, PID: h.PID, RunID: h.RunID, Outcome: o, At: time.Now()}:
		case <-ctx.Done():
		}
	}()
}

func (f *fakeSupervisor) spawnCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.spawns
}

func (f *fakeSupervisor) counts() (signals, terminates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.signals), f.terminates
}

type recordingPublisher struct {
	mu    sync.Mutex
	seen  []status.Status
	times []time.Time
	fail  error
}

func (p *recordingPublisher) Publish(s status.Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.seen = append(p.seen, s)
	p.times = append(p.times, time.Now())
	return nil
}

// publishedAt returns the time each status in all() was published.
func (p *recordingPublisher) publishedAt() []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]time.Time(nil), p.times...)
}

func (p *recordingPublisher) all() []status.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]status.Status(nil), p.seen...)
}

func (p *recordingPublisher) last() status.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.seen) == 0 {
		return status.StartPending
	}
	return p.seen[len(p.seen)-1].State
}

// states returns the published states with consecutive duplicates removed.
func (p *recordingPublisher) states() []status.State {
	var out []status.State
	for _, s := range p.all() {
		if len(out) == 0 || out[len(out)-1] != s.State {
			out = append(out, s.State)
		}
	}
	return out
}

type memRecorder struct {
	mu     sync.Mutex
	events []history.Event
}

func (r *memRecorder) Record(e history.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *memRecorder) ofType(t history.EventType) []history.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []history.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	loop *Loop
	sup  *fakeSupervisor
	pub  *recordingPublisher
	rec  *memRecorder
	rep  *status.Reporter
	res  chan result
}

type result struct {
	code uint32
	err  error
}

func start(t *testing.T, cfg Config, sup *fakeSupervisor, tweak ...func(*Loop)) *harness {
	t.Helper()
	pub := &recordingPublisher{}
	rep := status.NewReporter(cfg.Name, pub, true)
	rec := &memRecorder{}
	l := New(cfg, sup, rep, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))), WithRecorder(rec))
	for _, fn := range tweak {
		fn(l)
	}
	h := &harness{loop: l, sup: sup, pub: pub, rec: rec, rep: rep, res: make(chan result, 1)}
	go func() {
		code, err := l.Run(context.Background())
		h.res <- result{code, err}
	}()
	return h
}

func (h *harness) wait(t *testing.T) result {
	t.Helper()
	select {
	case r := <-h.res:
		return r
	case <-time.After(5 * time.Second):
		t.Fatalf("loop did not finish; states %v", h.pub.states())
		return result{}
	}
}

func (h *harness) waitState(t *testing.T, s status.State) {
	t.Helper()
	require.Eventually(t, func() bool { return h.pub.last() == s }, 3*time.Second, 2*time.Millisecond, "want %s, states %v", s, h.pub.states())
}

// assertInvariants checks that Running is never published without a child
// and that nothing but StopPending/Stopped follows the first StopPending.
func assertInvariants(t *testing.T, pub *recordingPublisher) {
	t.Helper()
	stopped := false
	for _, s := range pub.all() {
		if s.State == status.Running {
			assert.NotZero(t, s.PID, "running without a live child")
		}
		if stopped {
			assert.Contains(t, []status.State{status.StopPending, status.Stopped}, s.State)
		}
		if s.State == status.StopPending {
			stopped = true
		}
	}
}

func quickCfg(p policy.Policy) Config {
	return Config{Name: "svc", Policy: p, StopTimeout: 100 * time.Millisecond, KillGrace: 100 * time.Millisecond}
}

func TestScenarioA_BackoffSequenceCancelledByStop(t *testing.T) {
	sup := &fakeSupervisor{}
	p := policy.Policy{Kind: policy.Always, Backoff: &policy.Backoff{Initial: time.Second, Max: 8 * time.Second, ResetAfter: time.Minute}}
	h := start(t, quickCfg(p), sup, func(l *Loop) {
		// the third wait stays pending so Stop lands inside it
		l.scaleWait = func(d time.Duration) time.Duration {
			if d >= 4*time.Second {
				return time.Hour
			}
			return d / 100
		}
	})

	for i := 1; i <= 3; i++ {
		require.Eventually(t, func() bool { return sup.spawnCount() == i && h.pub.last() == status.Running }, 3*time.Second, time.Millisecond)
		sup.exit(0)
	}
	require.Eventually(t, func() bool { return len(h.rec.ofType(history.EventRestart)) == 3 }, 3*time.Second, time.Millisecond)
	h.waitState(t, status.StartPending)

	require.NoError(t, h.loop.Submit(Stop))
	r := h.wait(t)
	require.NoError(t, r.err)
	assert.Equal(t, uint32(0), r.code)

	var delays []int64
	var attempts []int
	for _, e := range h.rec.ofType(history.EventRestart) {
		delays = append(delays, e.DelayMS)
		attempts = append(attempts, e.Attempt)
	}
	assert.Equal(t, []int64{1000, 2000, 4000}, delays)
	assert.Equal(t, []int{1, 2, 3}, attempts)
	assert.Equal(t, 3, sup.spawnCount(), "no fourth spawn")
	assert.Equal(t, status.Stopped, h.pub.last())
	assertInvariants(t, h.pub)
}

// A normal exit whose code is in the success set stops the service cleanly:
// the SCM sees service-specific exit code 0.
func TestScenarioB_OnFailureStopsOnSuccessCode(t *testing.T) {
	sup := &fakeSupervisor{}
	h := start(t, quickCfg(policy.Policy{Kind: policy.OnFailure, Codes: []int{0, 2}}), sup)
	h.waitState(t, status.Running)
	sup.exit(2)

	r := h.wait(t)
	require.NoError(t, r.err)
	assert.Equal(t, uint32(0), r.code)
	assert.Equal(t, 1, sup.spawnCount())
	assert.Equal(t, []status.State{status.StartPending, status.Running, status.StopPending, status.Stopped}, h.pub.states())
	assert.Empty(t, h.rec.ofType(history.EventRestart))
	final := h.pub.all()[len(h.pub.all())-1]
	assert.Equal(t, uint32(0), final.ExitCode)
}

func TestPolicyStopCarriesFailedExitCode(t *testing.T) {
	sup := &fakeSupervisor{}
	h := start(t, quickCfg(policy.Policy{Kind: policy.Never}), sup)
	h.waitState(t, status.Running)
	sup.exit(5)

	r := h.wait(t)
	require.NoError(t, r.err)
	assert.Equal(t, uint32(5), r.code)
	final := h.pub.all()[len(h.pub.all())-1]
	assert.Equal(t, uint32(5), final.ExitCode)
}

// Waiting for the child's output to close must not stall status reporting.
func TestOutputDrainKeepsHeartbeating(t *testing.T) {
	sup := &fakeSupervisor{}
	drain := 500 * time.Millisecond
	h := start(t, quickCfg(policy.Policy{Kind: policy.Never}), sup, func(l *Loop) {
		l.waitOutput = func(*process.Handle, time.Duration) bool {
			time.Sleep(drain)
			return false
		}
	})
	h.waitState(t, status.Running)
	sup.exit(1)

	h.waitState(t, status.StopPending)
	require.NoError(t, h.loop.Submit(Interrogate), "loop must keep serving requests while draining")
	r := h.wait(t)
	require.NoError(t, r.err)
	assert.Equal(t, uint32(1), r.code)

	at := h.pub.publishedAt()
	var prev time.Time
	var checkpoints int
	for i, s := range h.pub.all() {
		if s.State != status.StopPending {
			continue
		}
		checkpoints++
		if !prev.IsZero() {
			gap := at[i].Sub(prev)
			assert.LessOrEqual(t, gap, s.WaitHint, "no publication for %s while advertising %s", gap, s.WaitHint)
		}
		prev = at[i]
	}
	assert.GreaterOrEqual(t, checkpoints, 3, "heartbeat should publish during the drain")
}

func TestOnFailureRestartsOnCodeOutsideSuccessSet(t *testing.T) {
	sup := &fakeSupervisor{exitOnSignal: true}
	h := start(t, quickCfg(policy.Policy{Kind: policy.OnFailure, Codes: []int{0}}), sup)
	h.waitState(t, status.Running)
	sup.exit(2)
	require.Eventually(t, func() bool { return sup.spawnCount() == 2 && h.pub.last() == status.Running }, 3*time.Second, time.Millisecond)
	require.NoError(t, h.loop.Submit(Stop))
	require.NoError(t, h.wait(t).err)
	assert.Equal(t, []status.State{
		status.StartPending, status.Running, status.StartPending, status.Running, status.StopPending, status.Stopped,
	}, h.pub.states())
}

func TestScenarioC_GracefulStop(t *testing.T) {
	sup := &fakeSupervisor{exitOnSignal: true}
	cfg := quickCfg(policy.Policy{Kind: policy.Always})
	cfg.StopTimeout = 2 * time.Second
	h := start(t, cfg, sup)
	h.waitState(t, status.Running)

	require.NoError(t, h.loop.Submit(Stop))
	r := h.wait(t)
	require.NoError(t, r.err)
	assert.Equal(t, uint32(0), r.code)

	assert.Equal(t, []status.State{status.StartPending, status.Running, status.StopPending, status.Stopped}, h.pub.states())
	signals, terminates := sup.counts()
	assert.Equal(t, 1, signals)
	assert.Equal(t, 0, terminates)
	assert.Equal(t, 1, sup.spawnCount())
}

func TestScenarioD_ForcedTerminationExactlyOnce(t *testing.T) {
	sup := &fakeSupervisor{exitOnTerminate: true}
	h := start(t, quickCfg(policy.Policy{Kind: policy.Always}), sup)
	h.waitState(t, status.Running)

	require.NoError(t, h.loop.Submit(Stop))
	require.NoError(t, h.loop.Submit(Stop))
	r := h.wait(t)
	require.NoError(t, r.err)

	signals, terminates := sup.counts()
	assert.Equal(t, 1, signals)
	assert.Equal(t, 1, terminates)
	assert.Equal(t, status.Stopped, h.pub.last())
	assert.Equal(t, 1, sup.spawnCount())
	assert.Len(t, h.rec.ofType(history.EventForcedKill), 1)
	assertInvariants(t, h.pub)
}

func TestStopGivesUpWhenKillDoesNotReap(t *testing.T) {
	sup := &fakeSupervisor{}
	h := start(t, quickCfg(policy.Policy{Kind: policy.Always}), sup)
	h.waitState(t, status.Running)

	require.NoError(t, h.loop.Submit(Shutdown))
	r := h.wait(t)
	require.NoError(t, r.err)
	assert.Equal(t, uint32(1), r.code)
	_, terminates := sup.counts()
	assert.Equal(t, 1, terminates)
	assert.Len(t, h.rec.ofType(history.EventStopIncomplete), 1)

	var maxCheckpoint uint32
	for _, s := range h.pub.all() {
		if s.State == status.StopPending {
			assert.Equal(t, 200*time.Millisecond, s.WaitHint)
			if s.Checkpoint > maxCheckpoint {
				maxCheckpoint = s.Checkpoint
			}
		}
	}
	assert.GreaterOrEqual(t, maxCheckpoint, uint32(2), "heartbeat should advance the checkpoint")
}

func TestNoRestartAfterStopEvenIfChildExitsLater(t *testing.T) {
	sup := &fakeSupervisor{signalErr: process.ErrSignalUnsupported}
	cfg := quickCfg(policy.Policy{Kind: policy.Always})
	cfg.StopTimeout = time.Second
	h := start(t, cfg, sup)
	h.waitState(t, status.Running)

	require.NoError(t, h.loop.Submit(Stop))
	h.waitState(t, status.StopPending)
	sup.exit(5)

	r := h.wait(t)
	require.NoError(t, r.err)
	assert.Equal(t, uint32(0), r.code)
	assert.Equal(t, 1, sup.spawnCount())
	_, terminates := sup.counts()
	assert.Equal(t, 0, terminates)
	assertInvariants(t, h.pub)
}

func TestStaleExitEventIsDiscarded(t *testing.T) {
	sup := &fakeSupervisor{exitOnSignal: true}
	h := start(t, quickCfg(policy.Policy{Kind: policy.Always}), sup)
	h.waitState(t, status.Running)

	sup.exitHandle(&process.Handle{ID: 999, PID: 1}, policy.Outcome{Kind: policy.Exited, Code: 1})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, status.Running, h.pub.last())
	assert.Equal(t, 1, sup.spawnCount())

	require.NoError(t, h.loop.Submit(Stop))
	require.NoError(t, h.wait(t).err)
}

func TestSpawnFailureNeverPolicy(t *testing.T) {
	sup := &fakeSupervisor{spawnErrs: []error{errors.New("not found")}}
	h := start(t, quickCfg(policy.Policy{Kind: policy.Never}), sup)
	r := h.wait(t)
	require.NoError(t, r.err)
	assert.Equal(t, uint32(1), r.code)
	assert.Equal(t, []status.State{status.StartPending, status.StopPending, status.Stopped}, h.pub.states())
	assert.Len(t, h.rec.ofType(history.EventSpawnFailed), 1)
}

func TestSpawnFailureRetriedUntilMaxAttempts(t *testing.T) {
	boom := errors.New("boom")
	sup := &fakeSupervisor{spawnErrs: []error{boom, boom, boom, boom}}
	p := policy.Policy{Kind: policy.Always, MaxAttempts: 2}
	h := start(t, quickCfg(p), sup)
	r := h.wait(t)
	require.NoError(t, r.err)
	assert.Equal(t, uint32(1), r.code)
	assert.Equal(t, 3, sup.spawnCount())
	for _, s := range h.pub.all() {
		assert.NotEqual(t, status.Running, s.State)
	}
}

func TestSpawnFailureThenRecovery(t *testing.T) {
	sup := &fakeSupervisor{spawnErrs: []error{errors.New("transient"), nil}, exitOnSignal: true}
	h := start(t, quickCfg(policy.Policy{Kind: policy.OnFailure}), sup)
	h.waitState(t, status.Running)
	assert.Equal(t, 2, sup.spawnCount())
	require.NoError(t, h.loop.Submit(Stop))
	require.NoError(t, h.wait(t).err)
}

func TestPassStartAndStopArgs(t *testing.T) {
	sup := &fakeSupervisor{exitOnSignal: true}
	cfg := quickCfg(policy.Policy{Kind: policy.Never})
	cfg.StartArgs = []string{"--scm", "arg"}
	cfg.PassStartArgs = true
	cfg.PassStopArgs = true
	h := start(t, cfg, sup)
	h.waitState(t, status.Running)
	require.NoError(t, h.loop.Submit(Stop))
	require.NoError(t, h.wait(t).err)

	sup.mu.Lock()
	defer sup.mu.Unlock()
	assert.Equal(t, [][]string{{"--scm", "arg"}}, sup.extras)
	assert.Equal(t, [][]string{{"--scm", "arg"}}, sup.stopArgs)
}

func TestStartArgsNotPassedByDefault(t *testing.T) {
	sup := &fakeSupervisor{exitOnSignal: true}
	cfg := quickCfg(policy.Policy{Kind: policy.Never})
	cfg.StartArgs = []string{"x"}
	h := start(t, cfg, sup)
	h.waitState(t, status.Running)
	require.NoError(t, h.loop.Submit(Stop))
	require.NoError(t, h.wait(t).err)

	sup.mu.Lock()
	defer sup.mu.Unlock()
	assert.Equal(t, [][]string{nil}, sup.extras)
	assert.Equal(t, [][]string{nil}, sup.stopArgs)
}

func TestPauseAcknowledgeOnly(t *testing.T) {
	sup := &fakeSupervisor{exitOnSignal: true}
	h := start(t, quickCfg(policy.Policy{Kind: policy.Always}), sup)
	h.waitState(t, status.Running)

	require.NoError(t, h.loop.Submit(Pause))
	h.waitState(t, status.Paused)
	require.NoError(t, h.loop.Submit(Continue))
	h.waitState(t, status.Running)
	require.NoError(t, h.loop.Submit(Stop))
	require.NoError(t, h.wait(t).err)

	assert.Equal(t, []status.State{
		status.StartPending, status.Running, status.PausePending, status.Paused,
		status.ContinuePending, status.Running, status.StopPending, status.Stopped,
	}, h.pub.states())
	sup.mu.Lock()
	defer sup.mu.Unlock()
	assert.Zero(t, sup.suspends)
	assert.Zero(t, sup.resumes)
}

func TestPauseForwardResumesBeforeStop(t *testing.T) {
	sup := &fakeSupervisor{exitOnSignal: true}
	cfg := quickCfg(policy.Policy{Kind: policy.Always})
	cfg.PauseMode = PauseForward
	h := start(t, cfg, sup)
	h.waitState(t, status.Running)

	require.NoError(t, h.loop.Submit(Pause))
	h.waitState(t, status.Paused)
	require.NoError(t, h.loop.Submit(Stop))
	require.NoError(t, h.wait(t).err)

	sup.mu.Lock()
	defer sup.mu.Unlock()
	assert.Equal(t, 1, sup.suspends)
	assert.Equal(t, 1, sup.resumes)
}

func TestChildExitWhilePausedRestarts(t *testing.T) {
	sup := &fakeSupervisor{exitOnSignal: true}
	h := start(t, quickCfg(policy.Policy{Kind: policy.Always}), sup)
	h.waitState(t, status.Running)
	require.NoError(t, h.loop.Submit(Pause))
	h.waitState(t, status.Paused)

	sup.exit(1)
	require.Eventually(t, func() bool { return sup.spawnCount() == 2 && h.pub.last() == status.Running }, 3*time.Second, time.Millisecond)
	require.NoError(t, h.loop.Submit(Stop))
	require.NoError(t, h.wait(t).err)
	assertInvariants(t, h.pub)
}

func TestPauseIgnoredOutsideRunningAndInterrogate(t *testing.T) {
	sup := &fakeSupervisor{exitOnSignal: true}
	h := start(t, quickCfg(policy.Policy{Kind: policy.Always}), sup)
	h.waitState(t, status.Running)

	before := len(h.pub.all())
	require.NoError(t, h.loop.Submit(Continue))
	require.NoError(t, h.loop.Submit(Interrogate))
	require.Eventually(t, func() bool { return len(h.pub.all()) == before+2 }, time.Second, time.Millisecond)
	for _, s := range h.pub.all()[before:] {
		assert.Equal(t, status.Running, s.State)
	}
	require.NoError(t, h.loop.Submit(Stop))
	require.NoError(t, h.wait(t).err)
}

func TestContextCancelActsAsShutdown(t *testing.T) {
	sup := &fakeSupervisor{exitOnSignal: true}
	pub := &recordingPublisher{}
	rep := status.NewReporter("svc", pub, false)
	l := New(quickCfg(policy.Policy{Kind: policy.Always}), sup, rep, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	ctx, cancel := context.WithCancel(context.Background())
	res := make(chan error, 1)
	go func() {
		_, err := l.Run(ctx)
		res <- err
	}()
	require.Eventually(t, func() bool { return pub.last() == status.Running }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-res:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatalf("loop did not stop")
	}
	assert.Equal(t, status.Stopped, pub.last())
	assert.ErrorIs(t, l.Submit(Stop), ErrLoopFinished)
	assert.ErrorIs(t, l.Submit(Interrogate), ErrLoopFinished)
}

func TestPublishFailureIsFatal(t *testing.T) {
	sup := &fakeSupervisor{}
	pub := &recordingPublisher{fail: status.ErrPublisherGone}
	rep := status.NewReporter("svc", pub, false)
	l := New(quickCfg(policy.Policy{Kind: policy.Always}), sup, rep, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	code, err := l.Run(context.Background())
	assert.Equal(t, uint32(1), code)
	var se *StatusReportError
	require.True(t, errors.As(err, &se))
	assert.ErrorIs(t, err, status.ErrPublisherGone)
	assert.True(t, IsFatal(err))
	assert.Zero(t, sup.spawnCount())
}

func TestSubmitQueueFull(t *testing.T) {
	l := New(Config{Name: "svc"}, &fakeSupervisor{}, status.NewReporter("svc", &recordingPublisher{}, false))
	for i := 0; i < requestQueueSize; i++ {
		require.NoError(t, l.Submit(Interrogate))
	}
	assert.ErrorIs(t, l.Submit(Pause), ErrQueueFull)
}

func TestParsePauseMode(t *testing.T) {
	m, err := ParsePauseMode("")
	require.NoError(t, err)
	assert.Equal(t, PauseAck, m)
	m, err = ParsePauseMode("Forward")
	require.NoError(t, err)
	assert.Equal(t, PauseForward, m)
	_, err = ParsePauseMode("freeze")
	assert.Error(t, err)
}
