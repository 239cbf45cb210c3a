package logger

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Rotation selects when log files roll over in addition to the size limit.
type Rotation string

const (
	RotateSize   Rotation = "size"
	RotateDaily  Rotation = "daily"
	RotateHourly Rotation = "hourly"
)

// ParseRotation accepts "", size, daily and hourly.
func ParseRotation(s string) (Rotation, error) {
	switch r := Rotation(strings.ToLower(strings.TrimSpace(s))); r {
	case "", RotateSize:
		return RotateSize, nil
	case RotateDaily, RotateHourly:
		return r, nil
	default:
		return "", fmt.Errorf("invalid log rotation %q, must be one of: size, daily, hourly", s)
	}
}

// next returns the first boundary strictly after now.
func (r Rotation) next(now time.Time) time.Time {
	switch r {
	case RotateHourly:
		return now.Truncate(time.Hour).Add(time.Hour)
	case RotateDaily:
		y, m, d := now.Date()
		return time.Date(y, m, d+1, 0, 0, 0, 0, now.Location())
	default:
		return time.Time{}
	}
}

type rotater interface {
	Rotate() error
}

type rotator struct {
	stop chan struct{}
	once sync.Once
	done chan struct{}
}

// startRotator rotates w at every boundary of r until the returned closer is
// closed. Size rotation needs no goroutine.
func startRotator(w rotater, r Rotation) io.Closer {
	rt := &rotator{stop: make(chan struct{}), done: make(chan struct{})}
	if r == RotateSize || r == "" {
		close(rt.done)
		return rt
	}
	go func() {
		defer close(rt.done)
		for {
			t := time.NewTimer(time.Until(r.next(time.Now())))
			select {
			case <-t.C:
				_ = w.Rotate()
			case <-rt.stop:
				t.Stop()
				return
			}
		}
	}()
	return rt
}

func (rt *rotator) Close() error {
	rt.once.Do(func() { close(rt.stop) })
	<-rt.done
	return nil
}
