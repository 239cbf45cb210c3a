package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultQueueSize bounds events waiting for export.
const DefaultQueueSize = 64

// sendTimeout bounds one Send call.
const sendTimeout = 5 * time.Second

// Dispatcher forwards events to sinks from a single goroutine. Record never
// blocks; events are dropped when the queue is full or after Close.
type Dispatcher struct {
	sinks   []Sink
	log     *slog.Logger
	queue   chan Event
	stop    chan struct{}
	done    chan struct{}
	abort   context.Context
	cancel  context.CancelFunc
	closed  atomic.Bool
	once    sync.Once
	dropped atomic.Uint64
}

// NewDispatcher starts the export goroutine. Close must be called to stop it.
func NewDispatcher(log *slog.Logger, sinks ...Sink) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	abort, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		sinks:  sinks,
		log:    log.With(slog.String("component", "history")),
		queue:  make(chan Event, DefaultQueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		abort:  abort,
		cancel: cancel,
	}
	go d.run()
	return d
}

// Record queues e for export.
func (d *Dispatcher) Record(e Event) {
	if d == nil || len(d.sinks) == 0 {
		return
	}
	if d.closed.Load() {
		d.dropped.Add(1)
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	select {
	case d.queue <- e:
	default:
		if d.dropped.Add(1) == 1 {
			d.log.Warn("history queue full, dropping events")
		}
	}
}

// Dropped returns how many events were discarded.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

func (d *Dispatcher) run() {
	defer close(d.done)
	for {
		select {
		case e := <-d.queue:
			d.send(e)
		case <-d.stop:
			for {
				select {
				case e := <-d.queue:
					if d.abort.Err() != nil {
						return
					}
					d.send(e)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) send(e Event) {
	for _, s := range d.sinks {
		if d.abort.Err() != nil {
			return
		}
		ctx, cancel := context.WithTimeout(d.abort, sendTimeout)
		if err := s.Send(ctx, e); err != nil {
			d.log.Warn("history send failed", slog.String("type", string(e.Type)), slog.Any("error", err))
		}
		cancel()
	}
}

// Close drains queued events, waiting at most until ctx is done. On timeout
// the in-flight send is cancelled. Sinks that implement io.Closer are closed
// only after the export goroutine has returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	if d == nil {
		return nil
	}
	var err error
	d.once.Do(func() {
		d.closed.Store(true)
		close(d.stop)
		select {
		case <-d.done:
		case <-ctx.Done():
			err = ctx.Err()
			d.cancel()
			<-d.done
		}
		d.cancel()
		var errs []error
		for _, s := range d.sinks {
			if c, ok := s.(io.Closer); ok {
				if cerr := c.Close(); cerr != nil {
					errs = append(errs, cerr)
				}
			}
		}
		err = errors.Join(append([]error{err}, errs...)...)
	})
	return err
}
