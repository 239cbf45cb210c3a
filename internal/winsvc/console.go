package winsvc

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"

	"github.com/loykin/svcwrap/internal/service"
	"github.com/loykin/svcwrap/internal/status"
)

// RunConsole runs the loop in the foreground. Interrupt and terminate become
// Stop; hang-up (where available) becomes Interrogate. Status goes to log.
func RunConsole(ctx context.Context, factory LoopFactory, log *slog.Logger) (uint32, error) {
	loop := factory(nil, status.LogPublisher{Logger: log})

	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, stopSignals...)
	signal.Notify(sigs, interrogateSignals...)
	defer signal.Stop(sigs)

	go func() {
		for {
			select {
			case <-loop.Done():
				return
			case s := <-sigs:
				req := service.Stop
				if isInterrogate(s) {
					req = service.Interrogate
				}
				log.Debug("console signal", slog.String("signal", s.String()), slog.String("request", req.String()))
				if err := loop.Submit(req); err != nil && !errors.Is(err, service.ErrLoopFinished) {
					log.Warn("control request dropped", slog.String("request", req.String()), slog.Any("error", err))
				}
			}
		}
	}()
	return loop.Run(ctx)
}

func isInterrogate(s os.Signal) bool {
	for _, i := range interrogateSignals {
		if s == i {
			return true
		}
	}
	return false
}
