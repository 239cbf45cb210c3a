//go:build !windows

package winsvc

import "log/slog"

// IsService is always false off Windows.
func IsService() (bool, error) { return false, nil }

// Run is unavailable off Windows; use RunConsole.
func Run(string, LoopFactory, *slog.Logger) error { return ErrUnsupported }

// Install is unavailable off Windows.
func Install(Definition) error { return ErrUnsupported }

// Remove is unavailable off Windows.
func Remove(string) error { return ErrUnsupported }
