//go:build windows

package process

import (
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fks-ops/fks-entrypoint/pkg/errors"
)

func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

func checkExecMode(path string, info os.FileInfo) error {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".exe", ".bat", ".cmd", ".com":
		return nil
	default:
		return errors.NewValidationError("file is not executable", nil).WithContext("path", path)
	}
}

// SendTerminationSignal requests termination of pid. Windows has no SIGTERM
// delivery for unrelated processes, so this terminates directly.
func SendTerminationSignal(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return errors.NewProcessError("failed to find process", err).WithContext("pid", pid)
	}
	if err := proc.Kill(); err != nil {
		return errors.NewProcessError("failed to terminate process", err).WithContext("pid", pid)
	}
	return nil
}

// Kill forcefully terminates pid
func Kill(pid int) error {
	return SendTerminationSignal(pid)
}

// IsAlive reports whether a process with the given pid currently exists
func IsAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	handle, err := syscall.OpenProcess(syscall.PROCESS_QUERY_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer syscall.CloseHandle(handle)

	var code uint32
	if err := syscall.GetExitCodeProcess(handle, &code); err != nil {
		return false
	}
	const stillActive = 259
	return code == stillActive
}
