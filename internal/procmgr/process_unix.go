//go:build !windows
// +build !windows

package procmgr

import (
	"os/exec"
	"syscall"
)

// configureProcess starts cmd in its own process group so the whole tree
// can be signalled together.
func configureProcess(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killProcessGroup signals pgid first (negative pid addresses the whole
// group), falling back to the bare pid if the group no longer exists.
func killProcessGroup(pgid, pid int) error {
	if pgid > 0 {
		if err := syscall.Kill(-pgid, syscall.SIGTERM); err == nil {
			return nil
		}
	}
	if pid > 0 {
		return syscall.Kill(pid, syscall.SIGTERM)
	}
	return nil
}

func processGroupID(pid int) int {
	pgid, err := syscall.Getpgid(pid)
	if err != nil {
		return pid
	}
	return pgid
}
