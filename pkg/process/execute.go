package process

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/fks-ops/fks-entrypoint/pkg/errors"
	"github.com/fks-ops/fks-entrypoint/pkg/logging"
)

// ExecutionConfig describes how to spawn a process
type ExecutionConfig struct {
	ExecutablePath   string            `yaml:"executable_path"`
	Args             []string          `yaml:"args,omitempty"`
	WorkingDirectory string            `yaml:"working_directory,omitempty"`
	Environment      map[string]string `yaml:"environment,omitempty"`
	WaitDelay        time.Duration     `yaml:"wait_delay,omitempty"`
}

// Execute spawns the configured process with inherited stdio so child output
// stays on the container's own streams. On unix the child gets its own
// process group so termination signals reach its descendants.
func Execute(ctx context.Context, config ExecutionConfig, logger logging.Logger) (*os.Process, error) {
	if ctx == nil {
		return nil, errors.NewValidationError("context cannot be nil", nil)
	}
	if config.ExecutablePath == "" {
		return nil, errors.NewValidationError("executable path is required", nil)
	}

	if err := ensureExecutable(config.ExecutablePath); err != nil {
		return nil, err
	}

	cmd := exec.Command(config.ExecutablePath, config.Args...)
	cmd.Dir = config.WorkingDirectory
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = sysProcAttr()

	env := os.Environ()
	for key, value := range config.Environment {
		env = append(env, key+"="+value)
	}
	cmd.Env = env

	logger.Debugf("Spawning process, executable: %s, args: %v, dir: %s",
		config.ExecutablePath, config.Args, config.WorkingDirectory)

	if err := cmd.Start(); err != nil {
		return nil, errors.NewProcessError("failed to start process", err).
			WithContext("executable", config.ExecutablePath)
	}

	// Check if context was cancelled during startup
	if ctx.Err() != nil {
		logger.Infof("Context cancelled during startup, cleaning up PID %d", cmd.Process.Pid)
		cmd.Process.Kill()
		return nil, errors.NewCancelledError("startup cancelled", ctx.Err())
	}

	logger.Infof("Process started, executable: %s, PID: %d", config.ExecutablePath, cmd.Process.Pid)

	return cmd.Process, nil
}

// ensureExecutable verifies the path exists and is a regular file. Execute
// permission is checked on unix only; Windows relies on the extension.
func ensureExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFoundError("executable not found", err).WithContext("path", path)
		}
		return errors.NewIOError("failed to stat executable", err).WithContext("path", path)
	}
	if info.IsDir() {
		return errors.NewValidationError("executable path is a directory", nil).WithContext("path", path)
	}
	return checkExecMode(path, info)
}
