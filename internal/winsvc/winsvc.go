// Package winsvc connects the control loop to the Windows Service Control
// Manager, or to the terminal when running interactively.
package winsvc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/loykin/svcwrap/internal/service"
	"github.com/loykin/svcwrap/internal/status"
)

// ErrUnsupported is returned by SCM operations on other platforms.
var ErrUnsupported = errors.New("service control manager is only available on windows")

// ErrServiceExists is returned by Install when the name is taken.
var ErrServiceExists = errors.New("service already exists")

// LoopFactory builds the control loop once the start arguments and the
// status publisher are known.
type LoopFactory func(startArgs []string, pub status.Publisher) *service.Loop

// StartType is how the SCM starts the service.
type StartType string

const (
	StartAuto      StartType = "auto"
	StartDelayed   StartType = "delayed-auto"
	StartManual    StartType = "manual"
	StartDisabled  StartType = "disabled"
	DefaultStartUp           = StartAuto
)

// Definition is what `add` registers in the SCM database.
type Definition struct {
	Name         string
	DisplayName  string
	Description  string
	BinaryPath   string
	Args         []string // baked-in arguments, normally "run ..."
	StartType    StartType
	Dependencies []string
	Account      string
	Password     string
}

// ParseStartType accepts auto, delayed-auto, manual and disabled.
func ParseStartType(s string) (StartType, error) {
	switch t := StartType(s); t {
	case "":
		return DefaultStartUp, nil
	case StartAuto, StartDelayed, StartManual, StartDisabled:
		return t, nil
	case "delayed":
		return StartDelayed, nil
	default:
		return "", fmt.Errorf("invalid start type %q", s)
	}
}

// Validate checks the fields the SCM requires.
func (d Definition) Validate() error {
	if d.Name == "" {
		return errors.New("service name is required")
	}
	if strings.ContainsAny(d.Name, `/\`) {
		return fmt.Errorf("service name %q must not contain slashes", d.Name)
	}
	if d.BinaryPath == "" {
		return errors.New("binary path is required")
	}
	if d.Password != "" && d.Account == "" {
		return errors.New("password given without an account")
	}
	_, err := ParseStartType(string(d.StartType))
	return err
}

func (d Definition) startType() StartType {
	t, _ := ParseStartType(string(d.StartType))
	return t
}
