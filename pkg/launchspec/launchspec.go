package launchspec

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/fks-ops/fks-entrypoint/pkg/errors"
	"github.com/fks-ops/fks-entrypoint/pkg/monitoring"
	"github.com/fks-ops/fks-entrypoint/pkg/process"
)

// LaunchSpec is the optional per-container launch configuration file. A
// container with no launch spec runs with defaults and no dependencies.
type LaunchSpec struct {
	Entrypoint   EntrypointOptions  `yaml:"entrypoint"`
	Dependencies []DependencyConfig `yaml:"dependencies,omitempty"`
}

// EntrypointOptions tunes resolution and shutdown behavior
type EntrypointOptions struct {
	ServiceRoot      string `yaml:"service_root,omitempty"`
	PythonCommand    string `yaml:"python_command,omitempty"`
	DispatcherModule string `yaml:"dispatcher_module,omitempty"`
	FallbackPort     int    `yaml:"fallback_port,omitempty"`

	MainGracePeriod       time.Duration `yaml:"main_grace_period,omitempty"`
	DependencyGracePeriod time.Duration `yaml:"dependency_grace_period,omitempty"`
	SettleInterval        time.Duration `yaml:"settle_interval,omitempty"`

	// StartupTimeout bounds combined dependency startup; zero keeps the
	// historical sequential-wait behavior with no global bound
	StartupTimeout time.Duration `yaml:"startup_timeout,omitempty"`
}

// DependencyConfig declares one auxiliary process started before the main
// workload, in list order.
type DependencyConfig struct {
	ID          string                       `yaml:"id"`
	Enabled     *bool                        `yaml:"enabled,omitempty"` // pointer to distinguish unset from false
	Execution   process.ExecutionConfig      `yaml:"execution"`
	HealthCheck monitoring.HealthCheckConfig `yaml:"health_check,omitempty"`
}

// LoadFromFile loads and defaults a launch spec from a YAML file
func LoadFromFile(filename string) (*LaunchSpec, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read launch spec", err).WithContext("filename", filename)
	}

	var spec LaunchSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, errors.NewValidationError("failed to parse launch spec YAML", err).WithContext("filename", filename)
	}

	setDefaults(&spec)

	return &spec, nil
}

// Default returns the spec used when no launch file is present
func Default() *LaunchSpec {
	spec := &LaunchSpec{}
	setDefaults(spec)
	return spec
}

func setDefaults(spec *LaunchSpec) {
	if spec.Entrypoint.ServiceRoot == "" {
		spec.Entrypoint.ServiceRoot = "/app"
	}
	if spec.Entrypoint.PythonCommand == "" {
		spec.Entrypoint.PythonCommand = "python3"
	}
	if spec.Entrypoint.DispatcherModule == "" {
		spec.Entrypoint.DispatcherModule = "fks.main"
	}
	if spec.Entrypoint.FallbackPort == 0 {
		spec.Entrypoint.FallbackPort = 8000
	}
	if spec.Entrypoint.MainGracePeriod == 0 {
		spec.Entrypoint.MainGracePeriod = 30 * time.Second
	}
	if spec.Entrypoint.DependencyGracePeriod == 0 {
		spec.Entrypoint.DependencyGracePeriod = 10 * time.Second
	}
	if spec.Entrypoint.SettleInterval == 0 {
		spec.Entrypoint.SettleInterval = 2 * time.Second
	}

	for i := range spec.Dependencies {
		dep := &spec.Dependencies[i]
		if dep.Enabled == nil {
			enabled := true
			dep.Enabled = &enabled
		}
		if dep.HealthCheck.RunOptions.Interval == 0 {
			dep.HealthCheck.RunOptions.Interval = 1 * time.Second
		}
		if dep.HealthCheck.RunOptions.Timeout == 0 {
			dep.HealthCheck.RunOptions.Timeout = 5 * time.Second
		}
	}
}

// Validate checks the spec for structural problems
func Validate(spec *LaunchSpec) error {
	if spec == nil {
		return errors.NewValidationError("launch spec cannot be nil", nil)
	}

	seen := make(map[string]bool)
	for i, dep := range spec.Dependencies {
		if dep.ID == "" {
			return errors.NewValidationError(
				fmt.Sprintf("dependency at index %d has no id", i), nil)
		}
		if seen[dep.ID] {
			return errors.NewValidationError(
				fmt.Sprintf("duplicate dependency id '%s'", dep.ID), nil).
				WithContext("index", i)
		}
		seen[dep.ID] = true

		if dep.Execution.ExecutablePath == "" {
			return errors.NewValidationError(
				fmt.Sprintf("dependency '%s' has no executable path", dep.ID), nil).
				WithContext("index", i)
		}
	}

	if spec.Entrypoint.StartupTimeout < 0 {
		return errors.NewValidationError("startup timeout cannot be negative", nil)
	}

	return nil
}

// EnabledDependencies returns the dependencies that are not explicitly
// disabled, preserving declaration order.
func (s *LaunchSpec) EnabledDependencies() []DependencyConfig {
	var out []DependencyConfig
	for _, dep := range s.Dependencies {
		if dep.Enabled != nil && !*dep.Enabled {
			continue
		}
		out = append(out, dep)
	}
	return out
}

// Summary provides a high-level overview for operational logging
type Summary struct {
	ServiceRoot         string   `json:"service_root"`
	TotalDependencies   int      `json:"total_dependencies"`
	EnabledDependencies []string `json:"enabled_dependencies"`
	StartupTimeout      string   `json:"startup_timeout"`
}

// GetSummary returns a human-readable summary of the launch spec
func GetSummary(spec *LaunchSpec) Summary {
	summary := Summary{
		ServiceRoot:       spec.Entrypoint.ServiceRoot,
		TotalDependencies: len(spec.Dependencies),
		StartupTimeout:    "disabled",
	}
	if spec.Entrypoint.StartupTimeout > 0 {
		summary.StartupTimeout = spec.Entrypoint.StartupTimeout.String()
	}
	for _, dep := range spec.EnabledDependencies() {
		summary.EnabledDependencies = append(summary.EnabledDependencies, dep.ID)
	}
	return summary
}
