//go:build !windows

package winsvc

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/svcwrap/internal/policy"
	"github.com/loykin/svcwrap/internal/process"
	"github.com/loykin/svcwrap/internal/relay"
	"github.com/loykin/svcwrap/internal/service"
	"github.com/loykin/svcwrap/internal/status"
)

type lines struct {
	mu  sync.Mutex
	got []string
}

func (l *lines) Write(r relay.Record) {
	l.mu.Lock()
	l.got = append(l.got, r.Text)
	l.mu.Unlock()
}

func (l *lines) has(s string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, g := range l.got {
		if g == s {
			return true
		}
	}
	return false
}

func consoleFactory(sink relay.Sink, script string) LoopFactory {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return func(startArgs []string, pub status.Publisher) *service.Loop {
		sup := process.New(process.Spec{Name: "console", Command: "/bin/sh", Args: []string{"-c", script}}, sink, log)
		rep := status.NewReporter("console", pub, false)
		return service.New(service.Config{
			Name:        "console",
			StartArgs:   startArgs,
			Policy:      policy.Policy{Kind: policy.Never},
			StopTimeout: 2 * time.Second,
			KillGrace:   2 * time.Second,
		}, sup, rep, service.WithLogger(log))
	}
}

const trapScript = "trap 'echo bye; exit 0' INT; echo ready; while :; do sleep 0.05; done"

func TestRunConsole_ContextCancelStops(t *testing.T) {
	sink := &lines{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		code uint32
		err  error
	}
	res := make(chan result, 1)
	go func() {
		code, err := RunConsole(ctx, consoleFactory(sink, trapScript), slog.New(slog.NewTextHandler(io.Discard, nil)))
		res <- result{code, err}
	}()
	require.Eventually(t, func() bool { return sink.has("ready") }, 5*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case r := <-res:
		require.NoError(t, r.err)
		assert.Zero(t, r.code)
	case <-time.After(10 * time.Second):
		t.Fatalf("console runner did not stop")
	}
	assert.Eventually(t, func() bool { return sink.has("bye") }, 2*time.Second, 10*time.Millisecond)
}

func TestRunConsole_TerminateSignalStops(t *testing.T) {
	sink := &lines{}
	res := make(chan error, 1)
	go func() {
		_, err := RunConsole(context.Background(), consoleFactory(sink, trapScript), slog.New(slog.NewTextHandler(io.Discard, nil)))
		res <- err
	}()
	require.Eventually(t, func() bool { return sink.has("ready") }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGHUP))
	require.NoError(t, syscall.Kill(syscall.Getpid(), syscall.SIGTERM))
	select {
	case err := <-res:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatalf("console runner ignored SIGTERM")
	}
}

func TestStubsReportUnsupported(t *testing.T) {
	ok, err := IsService()
	require.NoError(t, err)
	assert.False(t, ok)
	assert.ErrorIs(t, Run("x", nil, nil), ErrUnsupported)
	assert.ErrorIs(t, Install(Definition{Name: "x", BinaryPath: "/bin/true"}), ErrUnsupported)
	assert.ErrorIs(t, Remove("x"), ErrUnsupported)
}
