package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/loykin/svcwrap/internal/auth"
	"github.com/loykin/svcwrap/internal/env"
	"github.com/loykin/svcwrap/internal/logger"
	"github.com/loykin/svcwrap/internal/policy"
	"github.com/loykin/svcwrap/internal/process"
	"github.com/loykin/svcwrap/internal/service"
	svctls "github.com/loykin/svcwrap/internal/tls"
	"github.com/loykin/svcwrap/internal/winsvc"
)

// Service is the complete, immutable configuration of one wrapped service.
// It is decoded from an optional TOML file and overridden by CLI flags.
type Service struct {
	Name        string `mapstructure:"name"`
	DisplayName string `mapstructure:"display_name"`
	Description string `mapstructure:"description"`

	Command  string   `mapstructure:"command"`
	Args     []string `mapstructure:"args"`
	WorkDir  string   `mapstructure:"cwd"`
	Env      []string `mapstructure:"env"`
	EnvFiles []string `mapstructure:"env_files"`
	PIDFile  string   `mapstructure:"pid_file"`
	Priority string   `mapstructure:"priority"`

	Restart Restart `mapstructure:"restart"`

	StopSignal         string        `mapstructure:"stop_signal"`
	StopTimeout        time.Duration `mapstructure:"stop_timeout"`
	KillGrace          time.Duration `mapstructure:"kill_grace"`
	StopCommand        string        `mapstructure:"stop_command"`
	StopCommandTimeout time.Duration `mapstructure:"stop_command_timeout"`
	PassStartArgs      bool          `mapstructure:"pass_start_args"`
	PassStopArgs       bool          `mapstructure:"pass_stop_args"`
	PauseMode          string        `mapstructure:"pause_mode"`

	StartType    string   `mapstructure:"start_type"`
	Dependencies []string `mapstructure:"dependencies"`
	Account      string   `mapstructure:"account"`
	Password     string   `mapstructure:"password"`

	Log     logger.Config `mapstructure:"log"`
	Listen  string        `mapstructure:"listen"`
	HTTP    HTTP          `mapstructure:"http"`
	History []string      `mapstructure:"history"`
}

// HTTP mounts and secures the status endpoint.
type HTTP struct {
	BasePath string        `mapstructure:"base_path"`
	TLS      svctls.Config `mapstructure:"tls"`
	Auth     auth.Basic    `mapstructure:"auth"`
}

// Restart is the restart policy section.
type Restart struct {
	Policy      string        `mapstructure:"policy"`
	Codes       []int         `mapstructure:"codes"`
	Delay       time.Duration `mapstructure:"delay"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	ResetAfter  time.Duration `mapstructure:"reset_after"`
	MaxAttempts int           `mapstructure:"max_attempts"`
}

// Defaults applied before the file and flags.
const (
	DefaultRestartPolicy = "on-failure"
	DefaultRestartDelay  = time.Second
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("restart.policy", DefaultRestartPolicy)
	v.SetDefault("restart.codes", []int{0})
	v.SetDefault("restart.delay", DefaultRestartDelay)
	v.SetDefault("stop_signal", "ctrl-c")
	v.SetDefault("stop_timeout", service.DefaultStopTimeout)
	v.SetDefault("kill_grace", service.DefaultKillGrace)
	v.SetDefault("stop_command_timeout", process.DefaultStopCommandTimeout)
	v.SetDefault("pause_mode", string(service.PauseAck))
	v.SetDefault("start_type", string(winsvc.DefaultStartUp))
	v.SetDefault("priority", string(process.PriorityNormal))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.rotate", string(logger.RotateSize))
	v.SetDefault("log.max_size_mb", logger.DefaultMaxSizeMB)
	v.SetDefault("log.max_backups", logger.DefaultMaxBackups)
}

// Load reads path (when not empty) and overlays the flags in fs that were
// explicitly set. Flag names use '-' where keys use '_' and '.'; see FlagKey.
func Load(path string, fs *pflag.FlagSet) (*Service, error) {
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			if key, ok := FlagKey(f.Name); ok && bindErr == nil {
				bindErr = v.BindPFlag(key, f)
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}
	var s Service
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &s, nil
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"name":                 "name",
	"display-name":         "display_name",
	"description":          "description",
	"cwd":                  "cwd",
	"env":                  "env",
	"env-file":             "env_files",
	"pid-file":             "pid_file",
	"priority":             "priority",
	"restart":              "restart.policy",
	"success-codes":        "restart.codes",
	"restart-delay":        "restart.delay",
	"restart-max-delay":    "restart.max_delay",
	"restart-reset-after":  "restart.reset_after",
	"max-restarts":         "restart.max_attempts",
	"stop-signal":          "stop_signal",
	"stop-timeout":         "stop_timeout",
	"kill-grace":           "kill_grace",
	"stop-command":         "stop_command",
	"stop-command-timeout": "stop_command_timeout",
	"pass-start-args":      "pass_start_args",
	"pass-stop-args":       "pass_stop_args",
	"pause-mode":           "pause_mode",
	"start-type":           "start_type",
	"dependencies":         "dependencies",
	"account":              "account",
	"password":             "password",
	"log-dir":              "log.dir",
	"log-as":               "log.as",
	"log-cmd-as":           "log.cmd_as",
	"log-level":            "log.level",
	"log-rotate":           "log.rotate",
	"log-max-size":         "log.max_size_mb",
	"log-max-backups":      "log.max_backups",
	"log-max-age":          "log.max_age_days",
	"log-compress":         "log.compress",
	"no-log":               "log.disabled",
	"no-log-cmd":           "log.no_cmd",
	"listen":               "listen",
	"http-base-path":       "http.base_path",
	"tls-cert":             "http.tls.cert_file",
	"tls-key":              "http.tls.key_file",
	"tls-self-signed-dir":  "http.tls.self_signed_dir",
	"tls-min-version":      "http.tls.min_version",
	"http-user":            "http.auth.user",
	"http-password-hash":   "http.auth.password_hash",
	"history":              "history",
}

// FlagKey returns the config key bound to a CLI flag.
func FlagKey(flag string) (string, bool) {
	k, ok := flagKeys[flag]
	return k, ok
}

// SetCommand records the child command line given after "--".
func (s *Service) SetCommand(argv []string) {
	if len(argv) == 0 {
		return
	}
	s.Command = argv[0]
	s.Args = append([]string(nil), argv[1:]...)
}

// Validate checks every enumeration and the required fields.
func (s *Service) Validate() error {
	var errs []error
	if strings.TrimSpace(s.Name) == "" {
		errs = append(errs, errors.New("service name is required"))
	}
	if strings.TrimSpace(s.Command) == "" {
		errs = append(errs, errors.New("command is required"))
	}
	if _, err := s.Policy(); err != nil {
		errs = append(errs, err)
	}
	if _, err := process.ParseSignalKind(s.StopSignal); err != nil {
		errs = append(errs, err)
	}
	if _, err := process.ParsePriority(s.Priority); err != nil {
		errs = append(errs, err)
	}
	if _, err := service.ParsePauseMode(s.PauseMode); err != nil {
		errs = append(errs, err)
	}
	if _, err := winsvc.ParseStartType(s.StartType); err != nil {
		errs = append(errs, err)
	}
	if s.StopTimeout < 0 || s.KillGrace < 0 || s.StopCommandTimeout < 0 {
		errs = append(errs, errors.New("stop timeouts cannot be negative"))
	}
	if err := env.Validate(s.Env); err != nil {
		errs = append(errs, err)
	}
	if err := s.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := s.HTTP.TLS.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := s.HTTP.Auth.Validate(); err != nil {
		errs = append(errs, err)
	}
	if s.Listen == "" && (s.HTTP.TLS.Enabled() || s.HTTP.Auth.Enabled() || s.HTTP.BasePath != "") {
		errs = append(errs, errors.New("http settings given without listen"))
	}
	return errors.Join(errs...)
}

// Policy builds the restart policy. A delay of zero restarts immediately;
// max_delay defaults to delay, which gives a fixed delay.
func (s *Service) Policy() (policy.Policy, error) {
	kind, err := policy.ParseKind(s.Restart.Policy)
	if err != nil {
		return policy.Policy{}, err
	}
	p := policy.Policy{Kind: kind, Codes: s.Restart.Codes, MaxAttempts: s.Restart.MaxAttempts}
	if s.Restart.Delay > 0 || s.Restart.MaxDelay > 0 || s.Restart.ResetAfter > 0 {
		maxDelay := s.Restart.MaxDelay
		if maxDelay == 0 {
			maxDelay = s.Restart.Delay
		}
		p.Backoff = &policy.Backoff{Initial: s.Restart.Delay, Max: maxDelay, ResetAfter: s.Restart.ResetAfter}
	}
	if err := p.Validate(); err != nil {
		return policy.Policy{}, err
	}
	return p, nil
}

// Environment resolves the child's environment: the wrapper's own, then
// env files in order, then the env list.
func (s *Service) Environment() ([]string, error) {
	e := env.FromOS()
	for _, p := range s.EnvFiles {
		kvs, err := LoadEnvFile(p)
		if err != nil {
			return nil, fmt.Errorf("env file %s: %w", p, err)
		}
		e = e.With(kvs...)
	}
	return e.With(s.Env...).Merge(), nil
}

// ProcessSpec is the supervisor's view of the configuration. Parse errors
// were already reported by Validate.
func (s *Service) ProcessSpec(environ []string) process.Spec {
	sig, _ := process.ParseSignalKind(s.StopSignal)
	prio, _ := process.ParsePriority(s.Priority)
	return process.Spec{
		Name:               s.Name,
		Command:            s.Command,
		Args:               s.Args,
		WorkDir:            s.WorkDir,
		Env:                environ,
		PIDFile:            s.PIDFile,
		Priority:           prio,
		StopSignal:         sig,
		StopCommand:        s.StopCommand,
		StopCommandTimeout: s.StopCommandTimeout,
	}
}

// LoopConfig is the control loop's view of the configuration.
func (s *Service) LoopConfig(startArgs []string) service.Config {
	p, _ := s.Policy()
	sig, _ := process.ParseSignalKind(s.StopSignal)
	mode, _ := service.ParsePauseMode(s.PauseMode)
	return service.Config{
		Name:          s.Name,
		StartArgs:     startArgs,
		PassStartArgs: s.PassStartArgs,
		PassStopArgs:  s.PassStopArgs,
		Policy:        p,
		StopSignal:    sig,
		StopTimeout:   s.StopTimeout,
		KillGrace:     s.KillGrace,
		PauseMode:     mode,
	}
}

// Definition builds the SCM registration. exe is the wrapper binary; the
// service is started as "exe run <RunArgs>".
func (s *Service) Definition(exe string) winsvc.Definition {
	st, _ := winsvc.ParseStartType(s.StartType)
	display := s.DisplayName
	if display == "" {
		display = s.Name
	}
	return winsvc.Definition{
		Name:         s.Name,
		DisplayName:  display,
		Description:  s.Description,
		BinaryPath:   exe,
		Args:         append([]string{"run"}, s.RunArgs()...),
		StartType:    st,
		Dependencies: s.Dependencies,
		Account:      s.Account,
		Password:     s.Password,
	}
}

// RunArgs renders the runtime part of the configuration back to flags, ending
// with "--" and the child command line. Registration-only fields are omitted.
func (s *Service) RunArgs() []string {
	var out []string
	str := func(flag, v string) {
		if v != "" {
			out = append(out, "--"+flag, v)
		}
	}
	dur := func(flag string, v time.Duration) {
		if v > 0 {
			out = append(out, "--"+flag, v.String())
		}
	}
	num := func(flag string, v int) {
		if v > 0 {
			out = append(out, "--"+flag, strconv.Itoa(v))
		}
	}
	boolean := func(flag string, v bool) {
		if v {
			out = append(out, "--"+flag)
		}
	}

	str("name", s.Name)
	str("cwd", absPath(s.WorkDir))
	for _, kv := range s.Env {
		out = append(out, "--env", kv)
	}
	for _, p := range s.EnvFiles {
		out = append(out, "--env-file", absPath(p))
	}
	str("pid-file", absPath(s.PIDFile))
	str("priority", s.Priority)
	str("restart", s.Restart.Policy)
	if len(s.Restart.Codes) > 0 {
		codes := make([]string, len(s.Restart.Codes))
		for i, c := range s.Restart.Codes {
			codes[i] = strconv.Itoa(c)
		}
		out = append(out, "--success-codes", strings.Join(codes, ","))
	}
	out = append(out, "--restart-delay", s.Restart.Delay.String())
	dur("restart-max-delay", s.Restart.MaxDelay)
	dur("restart-reset-after", s.Restart.ResetAfter)
	num("max-restarts", s.Restart.MaxAttempts)
	str("stop-signal", s.StopSignal)
	dur("stop-timeout", s.StopTimeout)
	dur("kill-grace", s.KillGrace)
	str("stop-command", s.StopCommand)
	dur("stop-command-timeout", s.StopCommandTimeout)
	boolean("pass-start-args", s.PassStartArgs)
	boolean("pass-stop-args", s.PassStopArgs)
	str("pause-mode", s.PauseMode)
	str("log-dir", absPath(s.Log.Dir))
	str("log-as", s.Log.As)
	str("log-cmd-as", s.Log.CmdAs)
	str("log-level", s.Log.Level)
	str("log-rotate", string(s.Log.Rotate))
	num("log-max-size", s.Log.MaxSizeMB)
	num("log-max-backups", s.Log.MaxBackups)
	num("log-max-age", s.Log.MaxAgeDays)
	boolean("log-compress", s.Log.Compress)
	boolean("no-log", s.Log.Disabled)
	boolean("no-log-cmd", s.Log.NoCmd)
	str("listen", s.Listen)
	str("http-base-path", s.HTTP.BasePath)
	str("tls-cert", absPath(s.HTTP.TLS.CertFile))
	str("tls-key", absPath(s.HTTP.TLS.KeyFile))
	str("tls-self-signed-dir", absPath(s.HTTP.TLS.SelfSignedDir))
	str("tls-min-version", s.HTTP.TLS.MinVersion)
	str("http-user", s.HTTP.Auth.Username)
	str("http-password-hash", s.HTTP.Auth.PasswordHash)
	for _, h := range s.History {
		out = append(out, "--history", h)
	}

	out = append(out, "--", s.Command)
	return append(out, s.Args...)
}

func absPath(p string) string {
	if p == "" {
		return ""
	}
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// LoadEnvFile parses a .env file of KEY=VALUE lines. Blank lines and lines
// starting with # are skipped; an "export " prefix and matching quotes
// around the value are stripped.
func LoadEnvFile(path string) ([]string, error) {
	b, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	var out []string
	for n, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		i := strings.IndexByte(line, '=')
		if i <= 0 {
			return nil, fmt.Errorf("line %d: expected KEY=VALUE", n+1)
		}
		k := strings.TrimSpace(line[:i])
		v := strings.TrimSpace(line[i+1:])
		if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
			v = v[1 : len(v)-1]
		}
		out = append(out, k+"="+v)
	}
	return out, nil
}
