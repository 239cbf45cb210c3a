package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"

	"github.com/loykin/svcwrap/internal/relay"
)

// Default logging configuration constants
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 2  // rotated files kept
	DefaultMaxAgeDays = 0  // no age limit
)

// Config describes where the wrapper's diagnostics and the child's output go.
// Rotation parameters follow lumberjack semantics; Rotate adds time-based
// rotation on top of the size limit.
type Config struct {
	Dir        string   `mapstructure:"dir"`          // defaults to the executable's directory
	As         string   `mapstructure:"as"`           // diagnostics basename, default svcwrap_for_<name>
	CmdAs      string   `mapstructure:"cmd_as"`       // separate basename for child output; empty logs it with diagnostics
	Level      string   `mapstructure:"level"`        // debug, info, warn, error
	Rotate     Rotation `mapstructure:"rotate"`       // size, daily, hourly
	MaxSizeMB  int      `mapstructure:"max_size_mb"`  // megabytes before rotation
	MaxBackups int      `mapstructure:"max_backups"`  // rotated files kept
	MaxAgeDays int      `mapstructure:"max_age_days"` // days to keep
	Compress   bool     `mapstructure:"compress"`     // gzip rotated files
	Disabled   bool     `mapstructure:"disabled"`     // no diagnostics file at all
	NoCmd      bool     `mapstructure:"no_cmd"`       // drop child output
	Console    bool     `mapstructure:"-"`            // duplicate diagnostics to stderr
	Color      bool     `mapstructure:"-"`
}

// Validate checks the enumerations in c.
func (c Config) Validate() error {
	if _, err := parseLevel(c.Level); err != nil {
		return err
	}
	if _, err := ParseRotation(string(c.Rotate)); err != nil {
		return err
	}
	if c.MaxSizeMB < 0 || c.MaxBackups < 0 || c.MaxAgeDays < 0 {
		return errors.New("log rotation limits cannot be negative")
	}
	return nil
}

// DiagnosticsPath returns the diagnostics log file for service name.
func (c Config) DiagnosticsPath(name string) string {
	base := c.As
	if base == "" {
		base = "svcwrap_for_" + name
	}
	return filepath.Join(c.dir(), ensureExt(base))
}

// CommandPath returns the child output file, or "" when child output shares
// the diagnostics log.
func (c Config) CommandPath() string {
	if c.CmdAs == "" {
		return ""
	}
	return filepath.Join(c.dir(), ensureExt(c.CmdAs))
}

func (c Config) dir() string {
	if c.Dir != "" {
		return c.Dir
	}
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

func ensureExt(base string) string {
	if strings.HasSuffix(strings.ToLower(base), ".log") {
		return base
	}
	return base + ".log"
}

func (c Config) fileWriter(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(c.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.MaxBackups, DefaultMaxBackups),
		MaxAge:     c.MaxAgeDays,
		Compress:   c.Compress,
		LocalTime:  true,
	}
}

// Loggers is the opened set of sinks for one service instance.
type Loggers struct {
	Logger  *slog.Logger
	Command relay.Sink
	closers []io.Closer
}

// Open creates the diagnostics logger and the child output sink for name.
func (c Config) Open(name string) (*Loggers, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	level, _ := parseLevel(c.Level)
	rotation, _ := ParseRotation(string(c.Rotate))
	opts := &slog.HandlerOptions{Level: level}
	out := &Loggers{}

	var handlers []slog.Handler
	if !c.Disabled {
		if err := os.MkdirAll(c.dir(), 0o750); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		w := c.fileWriter(c.DiagnosticsPath(name))
		out.closers = append(out.closers, startRotator(w, rotation), w)
		handlers = append(handlers, slog.NewTextHandler(w, opts))
	}
	if c.Console {
		handlers = append(handlers, NewColorTextHandler(os.Stderr, opts, c.Color))
	}
	switch len(handlers) {
	case 0:
		out.Logger = slog.New(slog.NewTextHandler(io.Discard, opts))
	case 1:
		out.Logger = slog.New(handlers[0])
	default:
		out.Logger = slog.New(fanout(handlers))
	}
	out.Logger = out.Logger.With(slog.String("service", name))

	switch {
	case c.NoCmd:
		out.Command = relay.Multi{}
	case c.CmdAs != "":
		w := c.fileWriter(c.CommandPath())
		out.closers = append(out.closers, startRotator(w, rotation), w)
		out.Command = relay.NewWriterSink(w, "")
	default:
		out.Command = relay.LoggerSink{Logger: out.Logger.With(slog.String("source", "child")), Level: slog.LevelInfo}
	}
	return out, nil
}

// Close stops rotators and closes log files.
func (l *Loggers) Close() error {
	var errs []error
	for _, c := range l.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.closers = nil
	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelDebug, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return l, nil
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
