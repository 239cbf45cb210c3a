package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/svcwrap/internal/logger"
	"github.com/loykin/svcwrap/internal/policy"
	"github.com/loykin/svcwrap/internal/process"
	"github.com/loykin/svcwrap/internal/service"
	"github.com/loykin/svcwrap/internal/winsvc"
)

func writeFile(t *testing.T, name, data string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
	return p
}

func flagSet(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	AddRunFlags(fs)
	AddRegistrationFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	s, err := Load("", flagSet(t, "--name", "demo"))
	require.NoError(t, err)
	assert.Equal(t, "demo", s.Name)
	assert.Equal(t, DefaultRestartPolicy, s.Restart.Policy)
	assert.Equal(t, []int{0}, s.Restart.Codes)
	assert.Equal(t, DefaultRestartDelay, s.Restart.Delay)
	assert.Equal(t, service.DefaultStopTimeout, s.StopTimeout)
	assert.Equal(t, service.DefaultKillGrace, s.KillGrace)
	assert.Equal(t, process.DefaultStopCommandTimeout, s.StopCommandTimeout)
	assert.Equal(t, "ack", s.PauseMode)
	assert.Equal(t, logger.DefaultMaxSizeMB, s.Log.MaxSizeMB)
	assert.Equal(t, logger.RotateSize, s.Log.Rotate)
}

func TestLoad_FileThenFlags(t *testing.T) {
	path := writeFile(t, "svc.toml", `
name = "web"
display_name = "Web Server"
command = "server.exe"
args = ["--port", "8080"]
cwd = "C:/srv"
env = ["A=1", "PATH=${PATH};C:/tools"]
stop_signal = "ctrl-break"
stop_timeout = "10s"
pause_mode = "forward"
history = ["sqlite:///tmp/h.db"]
dependencies = ["Tcpip"]

[restart]
policy = "always"
delay = "500ms"
max_delay = "8s"
reset_after = "1m"
max_attempts = 5

[log]
dir = "/var/log/web"
rotate = "daily"
max_backups = 7
`)
	s, err := Load(path, flagSet(t, "--stop-timeout", "20s", "--success-codes", "0,2", "--log-level", "debug"))
	require.NoError(t, err)

	assert.Equal(t, "web", s.Name)
	assert.Equal(t, "Web Server", s.DisplayName)
	assert.Equal(t, "server.exe", s.Command)
	assert.Equal(t, []string{"--port", "8080"}, s.Args)
	assert.Equal(t, "ctrl-break", s.StopSignal)
	assert.Equal(t, 20*time.Second, s.StopTimeout, "flag overrides file")
	assert.Equal(t, []int{0, 2}, s.Restart.Codes)
	assert.Equal(t, 5, s.Restart.MaxAttempts)
	assert.Equal(t, time.Minute, s.Restart.ResetAfter)
	assert.Equal(t, logger.RotateDaily, s.Log.Rotate)
	assert.Equal(t, 7, s.Log.MaxBackups)
	assert.Equal(t, "debug", s.Log.Level)
	assert.Equal(t, []string{"sqlite:///tmp/h.db"}, s.History)
	assert.Equal(t, []string{"Tcpip"}, s.Dependencies)
	require.NoError(t, s.Validate())

	p, err := s.Policy()
	require.NoError(t, err)
	assert.Equal(t, policy.Always, p.Kind)
	require.NotNil(t, p.Backoff)
	assert.Equal(t, policy.Backoff{Initial: 500 * time.Millisecond, Max: 8 * time.Second, ResetAfter: time.Minute}, *p.Backoff)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"), nil)
	assert.Error(t, err)
}

func TestValidate_CollectsErrors(t *testing.T) {
	s, err := Load("", flagSet(t,
		"--restart", "sometimes",
		"--stop-signal", "sigusr1",
		"--pause-mode", "freeze",
		"--priority", "urgent",
		"--start-type", "boot",
		"--env", "NOEQUALS",
		"--log-rotate", "weekly",
	))
	require.NoError(t, err)
	err = s.Validate()
	require.Error(t, err)
	for _, want := range []string{"service name", "command", "restart policy", "stop signal", "pause mode", "priority", "start type", "NOEQUALS", "log rotation"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestPolicy_FixedDelayAndNoDelay(t *testing.T) {
	s := &Service{Restart: Restart{Policy: "on-failure", Codes: []int{0}, Delay: 2 * time.Second}}
	p, err := s.Policy()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, p.Backoff.Max)

	s.Restart.Delay = 0
	p, err = s.Policy()
	require.NoError(t, err)
	assert.Nil(t, p.Backoff)

	s.Restart = Restart{Policy: "on-exit-codes"}
	_, err = s.Policy()
	assert.Error(t, err)
}

func TestSpecsFromService(t *testing.T) {
	s, err := Load("", flagSet(t, "--name", "demo", "--stop-signal", "none", "--priority", "below_normal", "--pass-stop-args", "--pause-mode", "forward"))
	require.NoError(t, err)
	s.SetCommand([]string{"app", "-v"})
	require.NoError(t, s.Validate())

	ps := s.ProcessSpec([]string{"A=1"})
	assert.Equal(t, "app", ps.Command)
	assert.Equal(t, []string{"-v"}, ps.Args)
	assert.Equal(t, process.SignalNone, ps.StopSignal)
	assert.Equal(t, process.PriorityBelowNormal, ps.Priority)
	assert.Equal(t, []string{"A=1"}, ps.Env)

	lc := s.LoopConfig([]string{"x"})
	assert.Equal(t, "demo", lc.Name)
	assert.Equal(t, []string{"x"}, lc.StartArgs)
	assert.True(t, lc.PassStopArgs)
	assert.Equal(t, service.PauseForward, lc.PauseMode)
	assert.Equal(t, policy.OnFailure, lc.Policy.Kind)
}

func TestDefinitionRoundTripsThroughRunFlags(t *testing.T) {
	s, err := Load("", flagSet(t,
		"--name", "demo",
		"--display-name", "Demo",
		"--start-type", "manual",
		"--password", "secret",
		"--account", `.\svc`,
		"--restart", "always",
		"--restart-delay", "0s",
		"--env", "A=1",
		"--kill-grace", "9s",
		"--no-log-cmd",
		"--history", "postgres://db/x",
		"--listen", "127.0.0.1:9100",
		"--http-base-path", "/svcwrap",
		"--tls-self-signed-dir", "/var/lib/svcwrap/tls",
		"--http-user", "ops",
		"--http-password-hash", "$2a$10$abcdefghijklmnopqrstuuC6Z5yJz3g0xE1iYpT8M1QHqkGvWnYy",
	))
	require.NoError(t, err)
	s.SetCommand([]string{"app", "--flag", "value"})

	def := s.Definition("/opt/svcwrap")
	assert.Equal(t, "Demo", def.DisplayName)
	assert.Equal(t, winsvc.StartManual, def.StartType)
	assert.Equal(t, "run", def.Args[0])
	assert.NotContains(t, def.Args, "secret")

	// the baked-in arguments must reproduce the runtime configuration
	fs := flagSet(t, def.Args[1:]...)
	again, err := Load("", fs)
	require.NoError(t, err)
	again.SetCommand(fs.Args())
	assert.Equal(t, s.Name, again.Name)
	assert.Equal(t, s.Command, again.Command)
	assert.Equal(t, s.Args, again.Args)
	assert.Equal(t, s.Restart, again.Restart)
	assert.Equal(t, s.Env, again.Env)
	assert.Equal(t, s.KillGrace, again.KillGrace)
	assert.Equal(t, s.Log.NoCmd, again.Log.NoCmd)
	assert.Equal(t, s.History, again.History)
	assert.Equal(t, s.Listen, again.Listen)
	assert.Equal(t, "/svcwrap", again.HTTP.BasePath)
	assert.Equal(t, s.HTTP.Auth, again.HTTP.Auth)
	assert.Equal(t, absPath(s.HTTP.TLS.SelfSignedDir), again.HTTP.TLS.SelfSignedDir)
}

func TestLoad_HTTPSection(t *testing.T) {
	path := writeFile(t, "svc.toml", `
name = "web"
command = "server"
listen = ":9100"

[http]
base_path = "/ops"

[http.tls]
cert_file = "/etc/web/tls.crt"
key_file = "/etc/web/tls.key"
min_version = "1.3"

[http.auth]
user = "ops"
`)
	s, err := Load(path, flagSet(t))
	require.NoError(t, err)
	assert.Equal(t, "/etc/web/tls.crt", s.HTTP.TLS.CertFile)
	assert.Equal(t, "1.3", s.HTTP.TLS.MinVersion)
	assert.Equal(t, "ops", s.HTTP.Auth.Username)
	assert.Equal(t, "/ops", s.HTTP.BasePath)

	err = s.Validate()
	require.Error(t, err, "user without a bcrypt hash")
	assert.Contains(t, err.Error(), "bcrypt")

	s.HTTP.Auth.Username = ""
	s.Listen = ""
	s.HTTP.TLS.KeyFile = ""
	err = s.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cert_file and key_file")
	assert.Contains(t, err.Error(), "without listen")
}

func TestLoadEnvFile(t *testing.T) {
	p := writeFile(t, ".env", "# comment\n\nexport A=1\nB = \"two words\"\nC='x'\n")
	kvs, err := LoadEnvFile(p)
	require.NoError(t, err)
	assert.Equal(t, []string{"A=1", "B=two words", "C=x"}, kvs)

	bad := writeFile(t, "bad.env", "JUSTAKEY\n")
	_, err = LoadEnvFile(bad)
	assert.Error(t, err)
}

func TestEnvironment_FilesThenList(t *testing.T) {
	p := writeFile(t, "a.env", "SVCWRAP_T1=file\nSVCWRAP_T2=file\n")
	s := &Service{EnvFiles: []string{p}, Env: []string{"SVCWRAP_T2=flag"}}
	got, err := s.Environment()
	require.NoError(t, err)
	assert.Contains(t, got, "SVCWRAP_T1=file")
	assert.Contains(t, got, "SVCWRAP_T2=flag")
	assert.NotContains(t, got, "SVCWRAP_T2=file")

	s.EnvFiles = []string{filepath.Join(t.TempDir(), "missing.env")}
	_, err = s.Environment()
	assert.Error(t, err)
}
