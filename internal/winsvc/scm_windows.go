//go:build windows

package winsvc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sys/windows/svc"

	"github.com/loykin/svcwrap/internal/service"
	"github.com/loykin/svcwrap/internal/status"
)

const publishTimeout = 10 * time.Second

// IsService reports whether the process was started by the SCM.
func IsService() (bool, error) {
	return svc.IsWindowsService()
}

// Run registers with the SCM and blocks until the service has stopped.
func Run(name string, factory LoopFactory, log *slog.Logger) error {
	h := &handler{name: name, factory: factory, log: log}
	if err := svc.Run(name, h); err != nil {
		return &service.RegistrationError{Name: name, Err: err}
	}
	return h.err
}

type handler struct {
	name    string
	factory LoopFactory
	log     *slog.Logger
	err     error
}

// Execute is called by the svc package on its own goroutine. args[0] is the
// service name; the rest are the start parameters.
func (h *handler) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (bool, uint32) {
	var startArgs []string
	if len(args) > 1 {
		startArgs = args[1:]
	}
	loop := h.factory(startArgs, &changesPublisher{changes: changes})

	type result struct {
		code uint32
		err  error
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	resCh := make(chan result, 1)
	go func() {
		code, err := loop.Run(ctx)
		resCh <- result{code, err}
	}()

	for {
		select {
		case res := <-resCh:
			if res.err != nil {
				h.err = res.err
				h.log.Error("service failed", slog.String("service", h.name), slog.Any("error", res.err))
				return true, 1
			}
			return res.code != 0, res.code
		case c := <-r:
			req, ok := requestFor(c.Cmd)
			if !ok {
				h.log.Debug("unhandled control request", slog.Int("cmd", int(c.Cmd)))
				continue
			}
			if err := loop.Submit(req); err != nil && !errors.Is(err, service.ErrLoopFinished) {
				h.log.Warn("control request dropped", slog.String("request", req.String()), slog.Any("error", err))
			}
		}
	}
}

func requestFor(c svc.Cmd) (service.Request, bool) {
	switch c {
	case svc.Stop:
		return service.Stop, true
	case svc.Shutdown:
		return service.Shutdown, true
	case svc.Pause:
		return service.Pause, true
	case svc.Continue:
		return service.Continue, true
	case svc.Interrogate:
		return service.Interrogate, true
	default:
		return 0, false
	}
}

// changesPublisher forwards status to the svc package. The final Stopped
// status is sent by svc.Run from Execute's return values, so it is skipped.
type changesPublisher struct {
	changes chan<- svc.Status
}

func (p *changesPublisher) Publish(s status.Status) error {
	if s.State == status.Stopped {
		return nil
	}
	t := time.NewTimer(publishTimeout)
	defer t.Stop()
	select {
	case p.changes <- toSvcStatus(s):
		return nil
	case <-t.C:
		return status.ErrPublisherGone
	}
}

var svcStates = map[status.State]svc.State{
	status.StartPending:    svc.StartPending,
	status.Running:         svc.Running,
	status.StopPending:     svc.StopPending,
	status.Stopped:         svc.Stopped,
	status.PausePending:    svc.PausePending,
	status.Paused:          svc.Paused,
	status.ContinuePending: svc.ContinuePending,
}

func toSvcStatus(s status.Status) svc.Status {
	var accepts svc.Accepted
	if s.Accepts.Stop {
		accepts |= svc.AcceptStop
	}
	if s.Accepts.Shutdown {
		accepts |= svc.AcceptShutdown
	}
	if s.Accepts.PauseContinue {
		accepts |= svc.AcceptPauseAndContinue
	}
	return svc.Status{
		State:                   svcStates[s.State],
		Accepts:                 accepts,
		CheckPoint:              s.Checkpoint,
		WaitHint:                uint32(s.WaitHint / time.Millisecond),
		ProcessId:               uint32(s.PID),
		ServiceSpecificExitCode: s.ExitCode,
	}
}
