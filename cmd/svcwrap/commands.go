package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/loykin/svcwrap/internal/auth"
	"github.com/loykin/svcwrap/internal/config"
	"github.com/loykin/svcwrap/internal/winsvc"
)

// GlobalFlags holds the persistent flags.
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	global := &GlobalFlags{}
	root := createRootCommand(global)
	root.AddCommand(
		createAddCommand(global),
		createRunCommand(global),
		createRemoveCommand(),
		createHashPasswordCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "svcwrap",
		Short: "Run any program as a Windows service",
		Long: `svcwrap wraps an arbitrary executable so the Service Control Manager can
start, stop, pause and restart it like a native service.

Examples:
  svcwrap add --name web --restart always -- C:\srv\web.exe --port 8080
  svcwrap run --console --name web -- ./web --port 8080
  svcwrap remove --name web`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createAddCommand(global *GlobalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add [flags] -- <command> [args...]",
		Short: "Register a new service",
		Long: `Register a service that runs the given command under svcwrap. The
runtime flags are stored in the service's command line and replayed by "run".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadService(cmd, global.ConfigPath, args)
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("locate executable: %w", err)
			}
			if abs, err := filepath.Abs(exe); err == nil {
				exe = abs
			}
			if err := winsvc.Install(cfg.Definition(exe)); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "service %s added\n", cfg.Name)
			return nil
		},
	}
	config.AddRunFlags(cmd.Flags())
	config.AddRegistrationFlags(cmd.Flags())
	return cmd
}

// RunFlags holds the run-only flags.
type RunFlags struct {
	Console bool
}

func createRunCommand(global *GlobalFlags) *cobra.Command {
	runFlags := &RunFlags{}
	cmd := &cobra.Command{
		Use:   "run [flags] -- <command> [args...]",
		Short: "Run the service (invoked by the service manager)",
		Long: `Run the wrapped command under the control loop. Started by the Service
Control Manager it talks to the SCM; with --console, or on other platforms,
it runs in the foreground and stops on interrupt.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadService(cmd, global.ConfigPath, args)
			if err != nil {
				return err
			}
			code, err := runService(cmd.Context(), cfg, runFlags.Console)
			if err != nil || code != 0 {
				return &exitError{code: exitCodeFor(code, err), err: err}
			}
			return nil
		},
	}
	config.AddRunFlags(cmd.Flags())
	cmd.Flags().BoolVar(&runFlags.Console, "console", false, "run in the foreground even when started by the service manager")
	return cmd
}

func createRemoveCommand() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a registered service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return errors.New("--name is required")
			}
			if err := winsvc.Remove(name); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "service %s removed\n", name)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "service name (required)")
	return cmd
}

func createHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print the bcrypt hash for --http-password-hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	}
}

// loadService merges the config file with the flags and the command line
// after "--". Positional arguments before "--" are rejected.
func loadService(cmd *cobra.Command, path string, args []string) (*config.Service, error) {
	if dash := cmd.ArgsLenAtDash(); dash > 0 || (dash < 0 && len(args) > 0) {
		return nil, fmt.Errorf("unexpected arguments %q: put the command after --", args)
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}
	cfg.SetCommand(args)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func exitCodeFor(code uint32, err error) int {
	if err != nil {
		return 1
	}
	return int(code)
}
