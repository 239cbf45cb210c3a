package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/svcwrap/internal/auth"
	"github.com/loykin/svcwrap/internal/metrics"
	"github.com/loykin/svcwrap/internal/status"
	svctls "github.com/loykin/svcwrap/internal/tls"
)

func init() { gin.SetMode(gin.TestMode) }

type fixedStatus status.Snapshot

func (f fixedStatus) Snapshot() status.Snapshot { return status.Snapshot(f) }

type fixedUsage struct {
	u  metrics.Usage
	ok bool
}

func (f fixedUsage) Last() (metrics.Usage, bool) { return f.u, f.ok }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestStatusIncludesUsage(t *testing.T) {
	st := fixedStatus{Name: "demo", State: "running", PID: 42, Restarts: 2}
	r := NewRouter(st, fixedUsage{u: metrics.Usage{PID: 42, RSSBytes: 1024}, ok: true}, prometheus.NewRegistry(), "/api/")
	w := get(t, r.Handler(), "/api/status")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "demo", body["name"])
	assert.Equal(t, "running", body["state"])
	assert.EqualValues(t, 2, body["restarts"])
	usage, ok := body["usage"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1024, usage["rss_bytes"])
}

func TestStatusWithoutSample(t *testing.T) {
	r := NewRouter(fixedStatus{Name: "demo", State: "start_pending"}, fixedUsage{}, prometheus.NewRegistry(), "")
	w := get(t, r.Handler(), "/status")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "usage")

	r = NewRouter(fixedStatus{Name: "demo"}, nil, prometheus.NewRegistry(), "")
	assert.Equal(t, http.StatusOK, get(t, r.Handler(), "/status").Code)
}

func TestHealth(t *testing.T) {
	cases := map[string]int{
		"running":       http.StatusOK,
		"paused":        http.StatusOK,
		"start_pending": http.StatusServiceUnavailable,
		"stop_pending":  http.StatusServiceUnavailable,
	}
	for state, code := range cases {
		r := NewRouter(fixedStatus{State: state}, nil, prometheus.NewRegistry(), "")
		assert.Equal(t, code, get(t, r.Handler(), "/healthz").Code, state)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "router_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	r := NewRouter(fixedStatus{}, nil, reg, "")
	w := get(t, r.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "router_test_total 1")
}

func TestNormalizeBase(t *testing.T) {
	assert.Equal(t, "", normalizeBase(" / "))
	assert.Equal(t, "/x", normalizeBase("x/"))
	assert.Equal(t, "/a/b", normalizeBase("/a//b//"))
}

func TestServerShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	r := NewRouter(fixedStatus{State: "running"}, nil, prometheus.NewRegistry(), "")
	s := NewServer(ln.Addr().String(), r, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.True(t, strings.Contains(string(b), "running"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down")
	}
}

func TestMiddlewareGuardsEveryEndpoint(t *testing.T) {
	hash, err := auth.HashPassword("pw")
	require.NoError(t, err)
	basic := auth.Basic{Username: "ops", PasswordHash: hash}
	h := NewRouter(fixedStatus{State: "running"}, nil, prometheus.NewRegistry(), "", basic.GinAuth()).Handler()

	for _, path := range []string{"/status", "/healthz", "/metrics"} {
		assert.Equal(t, http.StatusUnauthorized, get(t, h, path).Code, path)
	}
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.SetBasicAuth("ops", "pw")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServerServesTLS(t *testing.T) {
	tlsCfg, err := svctls.Setup(svctls.Config{SelfSignedDir: t.TempDir()})
	require.NoError(t, err)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	r := NewRouter(fixedStatus{State: "running"}, nil, prometheus.NewRegistry(), "")
	s := NewServer(ln.Addr().String(), r, tlsCfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed test certificate
	}}
	resp, err := client.Get("https://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, resp.TLS)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not shut down")
	}
}
