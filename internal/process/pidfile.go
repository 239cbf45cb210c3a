package process

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// PIDInfo is the metadata written after the PID line.
type PIDInfo struct {
	RunID     string    `json:"run_id"`
	StartedAt time.Time `json:"started_at"`
	Command   string    `json:"command"`
}

func writePIDFile(path string, pid int, info PIDInfo) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}
	b, err := json.Marshal(info)
	if err != nil {
		return err
	}
	data := strconv.Itoa(pid) + "\n" + string(b) + "\n"
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(data), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadPIDFile reads a file written for a running child. Files holding only
// a PID return a nil info.
func ReadPIDFile(path string) (int, *PIDInfo, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, err
	}
	pidLine, rest, _ := strings.Cut(string(b), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(pidLine))
	if err != nil {
		return 0, nil, err
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return pid, nil, nil
	}
	var info PIDInfo
	if err := json.Unmarshal([]byte(rest), &info); err != nil {
		return pid, nil, nil
	}
	return pid, &info, nil
}

func removePIDFile(path string, pid int) {
	if path == "" {
		return
	}
	// another run may already own the file
	if cur, _, err := ReadPIDFile(path); err == nil && cur != pid {
		return
	}
	_ = os.Remove(path)
}
