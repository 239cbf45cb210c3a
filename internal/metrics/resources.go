package metrics

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// DefaultSampleInterval is used when ResourceSampler.Interval is zero.
const DefaultSampleInterval = 5 * time.Second

// Usage is one resource sample of the child.
type Usage struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	RSSBytes   uint64    `json:"rss_bytes"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"`
	SampledAt  time.Time `json:"sampled_at"`
}

// ResourceSampler periodically samples CPU and memory of the live child.
type ResourceSampler struct {
	Service  string
	Interval time.Duration
	PID      func() int // 0 when no child is running

	mu   sync.RWMutex
	last Usage
	proc *gopsproc.Process

	cpu     *prometheus.GaugeVec
	rss     *prometheus.GaugeVec
	threads *prometheus.GaugeVec
}

// NewResourceSampler creates a sampler reading the pid from pidFn.
func NewResourceSampler(service string, interval time.Duration, pidFn func() int) *ResourceSampler {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &ResourceSampler{
		Service:  service,
		Interval: interval,
		PID:      pidFn,
		cpu: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "child", Name: "cpu_percent",
			Help: "CPU usage percentage of the child.",
		}, []string{"service"}),
		rss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "child", Name: "memory_rss_bytes",
			Help: "Resident memory of the child.",
		}, []string{"service"}),
		threads: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "child", Name: "num_threads",
			Help: "Thread count of the child.",
		}, []string{"service"}),
	}
}

// Register adds the sampler's gauges to r.
func (s *ResourceSampler) Register(r prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{s.cpu, s.rss, s.threads} {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Run samples until ctx is done.
func (s *ResourceSampler) Run(ctx context.Context) {
	t := time.NewTicker(s.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Sample()
		}
	}
}

// Sample takes one sample now. It resets the gauges when no child is running.
func (s *ResourceSampler) Sample() {
	pid := int32(s.PID())
	if pid <= 0 {
		s.reset()
		return
	}
	s.mu.Lock()
	if s.proc == nil || s.proc.Pid != pid {
		p, err := gopsproc.NewProcess(pid)
		if err != nil {
			s.mu.Unlock()
			s.reset()
			return
		}
		s.proc = p
	}
	p := s.proc
	s.mu.Unlock()

	u := Usage{PID: pid, SampledAt: time.Now()}
	if v, err := p.CPUPercent(); err == nil {
		u.CPUPercent = v
	}
	mem, err := p.MemoryInfo()
	if err != nil {
		slog.Debug("child memory sample failed", slog.Int("pid", int(pid)), slog.Any("error", err))
		return
	}
	u.RSSBytes = mem.RSS
	if n, err := p.NumThreads(); err == nil {
		u.NumThreads = n
	}
	if runtime.GOOS != "windows" {
		if n, err := p.NumFDs(); err == nil {
			u.NumFDs = n
		}
	}

	s.cpu.WithLabelValues(s.Service).Set(u.CPUPercent)
	s.rss.WithLabelValues(s.Service).Set(float64(u.RSSBytes))
	s.threads.WithLabelValues(s.Service).Set(float64(u.NumThreads))
	s.mu.Lock()
	s.last = u
	s.mu.Unlock()
}

func (s *ResourceSampler) reset() {
	s.mu.Lock()
	s.proc = nil
	s.last = Usage{}
	s.mu.Unlock()
	s.cpu.WithLabelValues(s.Service).Set(0)
	s.rss.WithLabelValues(s.Service).Set(0)
	s.threads.WithLabelValues(s.Service).Set(0)
}

// Last returns the most recent sample; ok is false when none is current.
func (s *ResourceSampler) Last() (Usage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last, s.last.PID != 0
}
