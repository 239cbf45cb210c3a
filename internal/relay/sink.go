package relay

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// LoggerSink writes each record as a structured log line. slog handlers
// serialize their own writes.
type LoggerSink struct {
	Logger *slog.Logger
	Level  slog.Level
}

func (s LoggerSink) Write(r Record) {
	s.Logger.Log(context.Background(), s.Level, r.Text, slog.String("stream", string(r.Stream)))
}

// WriterSink writes records to w as "<timestamp> [stream] text" lines.
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	layout string
}

// NewWriterSink creates a WriterSink; an empty layout writes the text only.
func NewWriterSink(w io.Writer, layout string) *WriterSink {
	return &WriterSink{w: w, layout: layout}
}

func (s *WriterSink) Write(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.layout == "" {
		_, _ = fmt.Fprintln(s.w, r.Text)
		return
	}
	_, _ = fmt.Fprintf(s.w, "%s [%s] %s\n", r.Time.Format(s.layout), r.Stream, r.Text)
}

// Multi fans a record out to several sinks.
type Multi []Sink

func (m Multi) Write(r Record) {
	for _, s := range m {
		s.Write(r)
	}
}
