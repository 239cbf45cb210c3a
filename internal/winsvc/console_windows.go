//go:build windows

package winsvc

import "os"

// The runtime maps ctrl-break and console close to os.Interrupt.
var (
	stopSignals        = []os.Signal{os.Interrupt}
	interrogateSignals []os.Signal
)
