//go:build unix

package process

import (
	"errors"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// sysProcAttr returns Unix-specific process attributes that create
// a new process group with the spawned process as the leader.
//
// All descendants inherit the PGID, so a single signal to the group
// reaches the whole tree (ffmpeg wrappers, shell scripts and the like).
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}

// killTree sends SIGKILL to the process group led by pid.
//
// ESRCH means the group is already gone, which is fine.
func killTree(pid int) error {
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return nil
		}
		return fmt.Errorf("failed to signal process group %d: %w", pid, err)
	}
	return nil
}

// isProcessAlive checks if a process is alive using signal 0.
func isProcessAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
