package config

import (
	"github.com/spf13/pflag"
)

// AddRunFlags registers the flags shared by add and run. Defaults live in
// setDefaults; a flag only wins over the config file when it is set.
func AddRunFlags(fs *pflag.FlagSet) {
	fs.String("name", "", "service name")
	fs.String("cwd", "", "working directory for the command")
	fs.StringArray("env", nil, "additional environment variable KEY=VALUE (repeatable)")
	fs.StringArray("env-file", nil, "file of KEY=VALUE lines loaded before --env (repeatable)")
	fs.String("pid-file", "", "write the child's pid to this file")
	fs.String("priority", "", "process priority: realtime, high, above-normal, normal, below-normal, idle")

	fs.String("restart", "", "restart policy: never, always, on-failure, on-exit-codes (default on-failure)")
	fs.IntSlice("success-codes", nil, "exit codes treated as success by on-failure, or restarted by on-exit-codes (default 0)")
	fs.Duration("restart-delay", 0, "delay before the first restart (default 1s)")
	fs.Duration("restart-max-delay", 0, "upper bound of the doubling restart delay (default restart-delay)")
	fs.Duration("restart-reset-after", 0, "reset the attempt counter once the child ran this long")
	fs.Int("max-restarts", 0, "give up after this many consecutive restarts (0 unlimited)")

	fs.String("stop-signal", "", "graceful stop signal: ctrl-c, ctrl-break, none (default ctrl-c)")
	fs.Duration("stop-timeout", 0, "time the child gets to exit before it is killed (default 3s)")
	fs.Duration("kill-grace", 0, "time to wait for a killed child to be reaped (default 5s)")
	fs.String("stop-command", "", "command run before the stop signal is sent")
	fs.Duration("stop-command-timeout", 0, "timeout for --stop-command (default 30s)")
	fs.Bool("pass-start-args", false, "append the service start arguments to the command")
	fs.Bool("pass-stop-args", false, "append the service start arguments to --stop-command")
	fs.String("pause-mode", "", "pause handling: ack or forward (default ack)")

	fs.String("log-dir", "", "log directory (default the executable's directory)")
	fs.String("log-as", "", "diagnostics log basename (default svcwrap_for_<name>)")
	fs.String("log-cmd-as", "", "separate log basename for the command's output")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	fs.String("log-rotate", "", "rotation: size, daily, hourly")
	fs.Int("log-max-size", 0, "megabytes before a log file rotates (default 10)")
	fs.Int("log-max-backups", 0, "rotated log files kept (default 2)")
	fs.Int("log-max-age", 0, "days rotated log files are kept")
	fs.Bool("log-compress", false, "gzip rotated log files")
	fs.Bool("no-log", false, "disable the diagnostics log file")
	fs.Bool("no-log-cmd", false, "drop the command's output")

	fs.String("listen", "", "address for the status and metrics endpoint, e.g. 127.0.0.1:9100")
	fs.String("http-base-path", "", "path prefix for the status endpoints, e.g. /svcwrap")
	fs.String("tls-cert", "", "certificate file for the status endpoint")
	fs.String("tls-key", "", "private key file for --tls-cert")
	fs.String("tls-self-signed-dir", "", "generate and reuse a self-signed certificate in this directory")
	fs.String("tls-min-version", "", "minimum TLS version: 1.2 or 1.3 (default 1.2)")
	fs.String("http-user", "", "basic auth user for the status endpoint")
	fs.String("http-password-hash", "", "bcrypt hash of the --http-user password, see hash-password")
	fs.StringArray("history", nil, "history sink DSN: sqlite, postgres or clickhouse (repeatable)")
}

// AddRegistrationFlags registers the flags only add uses.
func AddRegistrationFlags(fs *pflag.FlagSet) {
	fs.String("display-name", "", "display name in the service manager")
	fs.String("description", "", "service description")
	fs.String("start-type", "", "start type: auto, delayed-auto, manual, disabled (default auto)")
	fs.StringSlice("dependencies", nil, "services that must start first")
	fs.String("account", "", "account the service runs as")
	fs.String("password", "", "password for --account")
}
