//go:build windows

package winsvc

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/svc/mgr"
)

// Install registers def with the SCM. An existing service with the same
// name is reported as ErrServiceExists.
func Install(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connect to service manager: %w", err)
	}
	defer func() { _ = m.Disconnect() }()

	if s, err := m.OpenService(def.Name); err == nil {
		_ = s.Close()
		return fmt.Errorf("%w: %s", ErrServiceExists, def.Name)
	}

	cfg := mgr.Config{
		DisplayName:      def.DisplayName,
		Description:      def.Description,
		Dependencies:     def.Dependencies,
		ServiceStartName: def.Account,
		Password:         def.Password,
		ErrorControl:     mgr.ErrorNormal,
	}
	switch def.startType() {
	case StartManual:
		cfg.StartType = mgr.StartManual
	case StartDisabled:
		cfg.StartType = mgr.StartDisabled
	case StartDelayed:
		cfg.StartType = mgr.StartAutomatic
		cfg.DelayedAutoStart = true
	default:
		cfg.StartType = mgr.StartAutomatic
	}

	s, err := m.CreateService(def.Name, def.BinaryPath, cfg, def.Args...)
	if err != nil {
		return fmt.Errorf("create service %s: %w", def.Name, err)
	}
	return s.Close()
}

// Remove marks the named service for deletion.
func Remove(name string) error {
	m, err := mgr.Connect()
	if err != nil {
		return fmt.Errorf("connect to service manager: %w", err)
	}
	defer func() { _ = m.Disconnect() }()

	s, err := m.OpenService(name)
	if err != nil {
		if errors.Is(err, windows.ERROR_SERVICE_DOES_NOT_EXIST) {
			return fmt.Errorf("service %s is not installed", name)
		}
		return fmt.Errorf("open service %s: %w", name, err)
	}
	defer func() { _ = s.Close() }()
	if err := s.Delete(); err != nil {
		return fmt.Errorf("delete service %s: %w", name, err)
	}
	return nil
}
