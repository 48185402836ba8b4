package bootstrap

import (
	"io"
	"os"
	"path/filepath"

	"github.com/fks-ops/fks-entrypoint/pkg/descriptor"
	"github.com/fks-ops/fks-entrypoint/pkg/errors"
	"github.com/fks-ops/fks-entrypoint/pkg/logging"
)

// Environment variables naming the writable paths every service expects
const (
	EnvDataPath    = "APP_DATA_PATH"
	EnvConfigsPath = "APP_CONFIGS_PATH"
	EnvResultsPath = "APP_RESULTS_PATH"
	EnvLogsPath    = "APP_LOGS_PATH"
)

var defaultPaths = map[string]string{
	EnvDataPath:    "/app/data",
	EnvConfigsPath: "/app/config",
	EnvResultsPath: "/app/results",
	EnvLogsPath:    "/app/logs",
}

// Prepare runs the filesystem preconditions before command resolution:
// required directories exist and the service config file is populated from
// the shipped default when absent. Directory creation failure is fatal;
// config copying is best-effort.
func Prepare(desc descriptor.ServiceDescriptor, logger logging.Logger) error {
	if err := ensureDirectories(logger); err != nil {
		return err
	}

	if desc.ConfigPath != "" {
		if err := populateConfig(desc, logger); err != nil {
			logger.Warnf("Failed to populate service config, continuing: %v", err)
		}
	}

	return nil
}

func ensureDirectories(logger logging.Logger) error {
	for env, fallback := range defaultPaths {
		path := os.Getenv(env)
		if path == "" {
			path = fallback
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return errors.NewIOError("failed to create required directory", err).
				WithContext("env", env).
				WithContext("path", path)
		}
		logger.Debugf("Directory ready: %s", path)
	}
	return nil
}

// populateConfig copies the shipped default config to the declared config
// path when nothing is there yet.
func populateConfig(desc descriptor.ServiceDescriptor, logger logging.Logger) error {
	if _, err := os.Stat(desc.ConfigPath); err == nil {
		logger.Debugf("Service config already present: %s", desc.ConfigPath)
		return nil
	}

	configsDir := os.Getenv(EnvConfigsPath)
	if configsDir == "" {
		configsDir = defaultPaths[EnvConfigsPath]
	}

	candidates := []string{
		filepath.Join(configsDir, desc.ServiceKind+".yaml"),
		filepath.Join(configsDir, "default.yaml"),
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		if err := copyFile(candidate, desc.ConfigPath); err != nil {
			return err
		}
		logger.Infof("Populated service config from default, source: %s, target: %s",
			candidate, desc.ConfigPath)
		return nil
	}

	return errors.NewNotFoundError("no default config available to copy", nil).
		WithContext("target", desc.ConfigPath).
		WithContext("configs_dir", configsDir)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.NewIOError("failed to open source config", err).WithContext("path", src)
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.NewIOError("failed to create config directory", err).WithContext("path", dst)
	}

	out, err := os.Create(dst)
	if err != nil {
		return errors.NewIOError("failed to create target config", err).WithContext("path", dst)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return errors.NewIOError("failed to copy config", err).WithContext("target", dst)
	}

	return nil
}
