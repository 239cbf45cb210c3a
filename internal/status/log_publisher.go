package status

import (
	"log/slog"
)

// LogPublisher stands in for the SCM in console mode: every publication is
// written to the diagnostic log.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p LogPublisher) Publish(s Status) error {
	l := p.Logger
	if l == nil {
		l = slog.Default()
	}
	attrs := []any{
		slog.String("state", s.State.String()),
		slog.Uint64("checkpoint", uint64(s.Checkpoint)),
	}
	if s.WaitHint > 0 {
		attrs = append(attrs, slog.Duration("wait_hint", s.WaitHint))
	}
	if s.State == Stopped {
		attrs = append(attrs, slog.Uint64("exit_code", uint64(s.ExitCode)))
	}
	l.Debug("service status", attrs...)
	return nil
}
