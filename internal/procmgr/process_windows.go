//go:build windows
// +build windows

package procmgr

import (
	"os"
	"os/exec"
)

// configureProcess is a no-op on Windows: process groups in the Unix
// sense do not exist, so shutdown falls back to killing the bare pid.
func configureProcess(cmd *exec.Cmd) {}

func findProcess(pid int) (*os.Process, error) {
	return os.FindProcess(pid)
}

func killProcessGroup(pgid, pid int) error {
	proc, err := findProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}

func processGroupID(pid int) int {
	return pid
}
