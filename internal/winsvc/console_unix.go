//go:build !windows

package winsvc

import (
	"os"
	"syscall"
)

var (
	stopSignals        = []os.Signal{os.Interrupt, syscall.SIGTERM}
	interrogateSignals = []os.Signal{syscall.SIGHUP}
)
