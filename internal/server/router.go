package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/svcwrap/internal/metrics"
	"github.com/loykin/svcwrap/internal/status"
)

// StatusSource is satisfied by *status.Reporter.
type StatusSource interface {
	Snapshot() status.Snapshot
}

// UsageSource is satisfied by *metrics.ResourceSampler.
type UsageSource interface {
	Last() (metrics.Usage, bool)
}

// Router serves the read-only status surface of one wrapped service.
// Endpoints, relative to basePath:
//
//	GET /status   last published service status plus child resource usage
//	GET /healthz  200 while running or paused, 503 otherwise
//	GET /metrics  Prometheus exposition
type Router struct {
	status     StatusSource
	usage      UsageSource
	gatherer   prometheus.Gatherer
	basePath   string
	middleware []gin.HandlerFunc
}

// NewRouter builds a Router. usage may be nil; a nil gatherer serves the
// default registry. mw runs before every endpoint, e.g. authentication.
func NewRouter(st StatusSource, usage UsageSource, g prometheus.Gatherer, basePath string, mw ...gin.HandlerFunc) *Router {
	return &Router{status: st, usage: usage, gatherer: g, basePath: normalizeBase(basePath), middleware: mw}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath, r.middleware...)
	group.GET("/status", r.handleStatus)
	group.GET("/healthz", r.handleHealth)
	mh := metrics.Handler()
	if r.gatherer != nil {
		mh = metrics.HandlerFor(r.gatherer)
	}
	group.GET("/metrics", gin.WrapH(mh))
	return g
}

type statusResp struct {
	status.Snapshot
	Usage *metrics.Usage `json:"usage,omitempty"`
}

type errorResp struct {
	Error string `json:"error"`
}

func (r *Router) handleStatus(c *gin.Context) {
	resp := statusResp{Snapshot: r.status.Snapshot()}
	if r.usage != nil {
		if u, ok := r.usage.Last(); ok {
			resp.Usage = &u
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleHealth(c *gin.Context) {
	snap := r.status.Snapshot()
	switch snap.State {
	case status.Running.String(), status.Paused.String():
		c.JSON(http.StatusOK, gin.H{"state": snap.State})
	default:
		c.JSON(http.StatusServiceUnavailable, errorResp{Error: "service is " + snap.State})
	}
}

// normalizeBase turns " api/v1/ " into "/api/v1"; empty and "/" mount at the root.
func normalizeBase(bp string) string {
	bp = strings.Trim(strings.TrimSpace(bp), "/")
	if bp == "" {
		return ""
	}
	return path.Clean("/" + bp)
}

// Server is a standalone HTTP server for a Router.
type Server struct {
	srv *http.Server
	log *slog.Logger
}

// NewServer prepares a server on addr; call Serve to run it. A non-nil
// tlsCfg serves HTTPS.
func NewServer(addr string, r *Router, tlsCfg *tls.Config, log *slog.Logger) *Server {
	return &Server{
		srv: &http.Server{
			TLSConfig:         tlsCfg,
			Addr:              addr,
			Handler:           r.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		log: log,
	}
}

// Serve listens until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	if s.srv.TLSConfig != nil {
		ln = tls.NewListener(ln, s.srv.TLSConfig)
	}
	s.log.Info("status server listening", slog.String("addr", ln.Addr().String()), slog.Bool("tls", s.srv.TLSConfig != nil))
	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err := s.srv.Shutdown(shutCtx)
		<-errCh
		return err
	}
}
