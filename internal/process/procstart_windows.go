//go:build windows

package process

import (
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// startTime returns the creation time of pid, or now when unknown.
func startTime(pid int) time.Time {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return time.Now()
	}
	ms, err := p.CreateTime()
	if err != nil || ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}
