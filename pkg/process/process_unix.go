//go:build !windows

package process

import (
	"os"
	"syscall"

	"github.com/fks-ops/fks-entrypoint/pkg/errors"
)

func sysProcAttr() *syscall.SysProcAttr {
	// Own process group, so group-wide signals do not hit the supervisor
	return &syscall.SysProcAttr{Setpgid: true}
}

func checkExecMode(path string, info os.FileInfo) error {
	if info.Mode()&0111 == 0 {
		return errors.NewValidationError("file is not executable", nil).WithContext("path", path)
	}
	return nil
}

// SendTerminationSignal requests graceful termination of pid. The signal is
// delivered to the process group when one exists, falling back to the single
// process otherwise.
func SendTerminationSignal(pid int) error {
	// Negative pid targets the group created at spawn time
	if err := syscall.Kill(-pid, syscall.SIGTERM); err == nil {
		return nil
	}
	if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
		return errors.NewProcessError("failed to send SIGTERM", err).WithContext("pid", pid)
	}
	return nil
}

// Kill forcefully terminates pid and its process group
func Kill(pid int) error {
	if err := syscall.Kill(-pid, syscall.SIGKILL); err == nil {
		return nil
	}
	if err := syscall.Kill(pid, syscall.SIGKILL); err != nil {
		return errors.NewProcessError("failed to send SIGKILL", err).WithContext("pid", pid)
	}
	return nil
}

// IsAlive reports whether a process with the given pid currently exists
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	// EPERM means the process exists but belongs to another user
	return err == syscall.EPERM
}
