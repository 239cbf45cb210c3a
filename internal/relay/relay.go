// Package relay drains a child's output streams into a log sink.
package relay

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// chunkSize bounds a single record; longer lines are split.
const chunkSize = 64 * 1024

// Stream identifies where a record came from.
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Record is one line (or chunk) of child output.
type Record struct {
	Stream Stream
	Time   time.Time
	Text   string
}

// Sink receives relayed records. Implementations must be safe for concurrent use.
type Sink interface {
	Write(Record)
}

// IOError reports a read failure other than the pipe closing.
type IOError struct {
	Stream Stream
	Err    error
}

func (e *IOError) Error() string { return fmt.Sprintf("relay %s: %v", e.Stream, e.Err) }

func (e *IOError) Unwrap() error { return e.Err }

// Copy forwards r to sink until r is exhausted. A closed pipe is the normal
// end of a child and returns nil.
func Copy(r io.Reader, stream Stream, sink Sink) error {
	br := bufio.NewReaderSize(r, chunkSize)
	// continued is set after a full chunk; its empty tail is not a line
	continued := false
	for {
		line, isPrefix, err := br.ReadLine()
		if len(line) > 0 || (err == nil && !isPrefix && !continued) {
			sink.Write(Record{Stream: stream, Time: time.Now(), Text: string(trimCR(line))})
		}
		continued = isPrefix
		if err != nil {
			if expectedClose(err) {
				return nil
			}
			return &IOError{Stream: stream, Err: err}
		}
	}
}

func trimCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return b[:n-1]
	}
	return b
}

func expectedClose(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, fs.ErrClosed) || errors.Is(err, io.ErrClosedPipe)
}

// Group runs one relay per stream. Each stream fails independently.
type Group struct {
	g errgroup.Group
}

// Start relays stdout and stderr (either may be nil) and closes each reader
// when its relay ends.
func Start(stdout, stderr io.ReadCloser, sink Sink, log *slog.Logger) *Group {
	if log == nil {
		log = slog.Default()
	}
	grp := &Group{}
	for _, p := range []struct {
		r      io.ReadCloser
		stream Stream
	}{{stdout, Stdout}, {stderr, Stderr}} {
		if p.r == nil {
			continue
		}
		p := p
		grp.g.Go(func() error {
			defer func() { _ = p.r.Close() }()
			err := Copy(p.r, p.stream, sink)
			if err != nil {
				log.Warn("output relay stopped", slog.String("stream", string(p.stream)), slog.Any("error", err))
			}
			return err
		})
	}
	return grp
}

// Wait blocks until both relays end and returns the first relay error.
func (g *Group) Wait() error { return g.g.Wait() }
