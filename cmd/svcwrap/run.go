package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/loykin/svcwrap/internal/config"
	"github.com/loykin/svcwrap/internal/history"
	"github.com/loykin/svcwrap/internal/history/factory"
	"github.com/loykin/svcwrap/internal/metrics"
	"github.com/loykin/svcwrap/internal/process"
	"github.com/loykin/svcwrap/internal/server"
	"github.com/loykin/svcwrap/internal/service"
	"github.com/loykin/svcwrap/internal/status"
	svctls "github.com/loykin/svcwrap/internal/tls"
	"github.com/loykin/svcwrap/internal/winsvc"
)

const historyDrainTimeout = 5 * time.Second

// app holds what outlives a single control loop: the supervisor, sinks and
// the reporter once the loop factory has created it.
type app struct {
	cfg  *config.Service
	sup  *process.Supervisor
	rec  *history.Dispatcher
	log  *slog.Logger
	rep  atomic.Pointer[status.Reporter]
	reg  prometheus.Registerer
	gath prometheus.Gatherer
}

// Snapshot lets the status server run before the SCM has started the loop.
func (a *app) Snapshot() status.Snapshot {
	if r := a.rep.Load(); r != nil {
		return r.Snapshot()
	}
	return status.Snapshot{Name: a.cfg.Name, State: status.StartPending.String()}
}

func (a *app) pid() int { return a.Snapshot().PID }

func (a *app) newLoop(startArgs []string, pub status.Publisher) *service.Loop {
	rep := status.NewReporter(a.cfg.Name, pub, true)
	a.rep.Store(rep)
	return service.New(a.cfg.LoopConfig(startArgs), a.sup, rep,
		service.WithLogger(a.log),
		service.WithRecorder(a.rec),
	)
}

// runService wires the components for cfg and blocks until the service has
// stopped. The returned code is the service-specific exit code.
func runService(ctx context.Context, cfg *config.Service, console bool) (uint32, error) {
	inService := false
	if !console {
		is, err := winsvc.IsService()
		if err != nil {
			return 1, fmt.Errorf("detect service manager: %w", err)
		}
		inService = is
	}

	logCfg := cfg.Log
	logCfg.Console = !inService
	logCfg.Color = logCfg.Console && isatty.IsTerminal(os.Stderr.Fd())
	logs, err := logCfg.Open(cfg.Name)
	if err != nil {
		return 1, err
	}
	defer func() { _ = logs.Close() }()
	log := logs.Logger

	environ, err := cfg.Environment()
	if err != nil {
		log.Error("resolve environment", slog.Any("error", err))
		return 1, err
	}

	sinks, err := factory.NewSinks(cfg.History)
	if err != nil {
		log.Error("open history sinks", slog.Any("error", err))
		return 1, err
	}
	a := &app{
		cfg:  cfg,
		sup:  process.New(cfg.ProcessSpec(environ), logs.Command, log),
		rec:  history.NewDispatcher(log, sinks...),
		log:  log,
		reg:  prometheus.DefaultRegisterer,
		gath: prometheus.DefaultGatherer,
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), historyDrainTimeout)
		defer cancel()
		if err := a.rec.Close(dctx); err != nil {
			log.Warn("history close", slog.Any("error", err))
		}
	}()

	if err := metrics.Register(a.reg); err != nil {
		return 1, err
	}
	sampler := metrics.NewResourceSampler(cfg.Name, 0, a.pid)
	if err := sampler.Register(a.reg); err != nil {
		return 1, err
	}

	tlsCfg, err := svctls.Setup(cfg.HTTP.TLS)
	if err != nil {
		return 1, fmt.Errorf("status server tls: %w", err)
	}

	auxCtx, stopAux := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(auxCtx)
	g.Go(func() error {
		sampler.Run(gctx)
		return nil
	})
	if cfg.Listen != "" {
		router := server.NewRouter(a, sampler, a.gath, cfg.HTTP.BasePath, cfg.HTTP.Auth.GinAuth())
		srv := server.NewServer(cfg.Listen, router, tlsCfg, log)
		g.Go(func() error {
			if err := srv.Serve(gctx); err != nil {
				log.Warn("status server stopped", slog.Any("error", err))
			}
			return nil
		})
	}
	defer func() {
		stopAux()
		_ = g.Wait()
	}()

	log.Info("service starting",
		slog.String("command", cfg.Command),
		slog.Bool("scm", inService),
		slog.String("restart", cfg.Restart.Policy),
	)
	if inService {
		if err := winsvc.Run(cfg.Name, a.newLoop, log); err != nil {
			log.Error("service run failed", slog.Any("error", err))
			return 1, err
		}
		return 0, nil
	}
	code, err := winsvc.RunConsole(ctx, a.newLoop, log)
	log.Info("service stopped", slog.Uint64("exit_code", uint64(code)))
	return code, err
}
