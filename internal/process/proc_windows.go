//go:build windows

package process

import (
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/windows"
)

// stillActive is the exit code Windows reports for a running process.
const stillActive = 259

// sysProcAttr returns Windows-specific process attributes.
// CREATE_NEW_PROCESS_GROUP makes the child the leader of a new process group,
// CREATE_NO_WINDOW keeps console tools like ffmpeg from flashing a window.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.CREATE_NO_WINDOW,
	}
}

// killTree terminates a process and its entire child tree on Windows.
// Uses taskkill /F /T /PID which forcefully kills the process tree.
// Exit code 128 from taskkill means the process is already gone, treated as success.
// If taskkill is unavailable the root process is terminated directly.
func killTree(pid int) error {
	err := exec.Command("taskkill", "/F", "/T", "/PID", strconv.Itoa(pid)).Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 128 {
		return nil
	}

	h, openErr := windows.OpenProcess(windows.PROCESS_TERMINATE, false, uint32(pid))
	if openErr != nil {
		return fmt.Errorf("failed to kill process tree (PID %d): %w", pid, err)
	}
	defer windows.CloseHandle(h)
	if termErr := windows.TerminateProcess(h, 1); termErr != nil {
		return fmt.Errorf("failed to terminate process (PID %d): %w", pid, termErr)
	}
	return nil
}

// isProcessAlive opens the process and checks whether it is still active.
func isProcessAlive(pid int) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer windows.CloseHandle(h)

	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == stillActive
}
