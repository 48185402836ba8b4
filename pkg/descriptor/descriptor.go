package descriptor

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/fks-ops/fks-entrypoint/pkg/errors"
)

// Runtime is the execution technology of the main workload
type Runtime string

const (
	RuntimePython  Runtime = "python"
	RuntimeRust    Runtime = "rust"
	RuntimeNode    Runtime = "node"
	RuntimeDotNet  Runtime = "dotnet"
	RuntimeHybrid  Runtime = "hybrid"
	RuntimeUnknown Runtime = "unknown"
)

// ParseRuntime maps a runtime name from the environment to a Runtime value.
// Unrecognized names map to RuntimeUnknown rather than failing, so validation
// can report them with full descriptor context.
func ParseRuntime(s string) Runtime {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "python", "py":
		return RuntimePython
	case "rust":
		return RuntimeRust
	case "node", "nodejs":
		return RuntimeNode
	case "dotnet", ".net", "csharp":
		return RuntimeDotNet
	case "hybrid":
		return RuntimeHybrid
	default:
		return RuntimeUnknown
	}
}

// Environment variable names recognized at startup
const (
	EnvServiceName       = "SERVICE_NAME"
	EnvServiceRuntime    = "SERVICE_RUNTIME"
	EnvServicePort       = "SERVICE_PORT"
	EnvServiceConfigPath = "SERVICE_CONFIG_PATH"
	EnvAppLogLevel       = "APP_LOG_LEVEL"
	EnvServiceExtraArgs  = "SERVICE_EXTRA_ARGS"
)

// ServiceDescriptor is the immutable identity of the container's workload,
// built once from the process environment and never mutated afterwards.
type ServiceDescriptor struct {
	ServiceKind string
	Runtime     Runtime
	Port        int
	ConfigPath  string
	LogLevel    string
	ExtraArgs   []string
}

// fallbackRuntimes maps well-known service kinds to their runtime when
// SERVICE_RUNTIME is absent or unrecognized.
var fallbackRuntimes = map[string]Runtime{
	"api":         RuntimePython,
	"worker":      RuntimePython,
	"app":         RuntimePython,
	"data":        RuntimePython,
	"web":         RuntimePython,
	"training":    RuntimePython,
	"transformer": RuntimePython,
	"network":     RuntimeRust,
	"execution":   RuntimeRust,
	"connector":   RuntimeHybrid,
}

// FromEnvironment builds a ServiceDescriptor from the recognized environment
// variables. An unset or unparseable port is left at 0; validation decides
// whether that is acceptable.
func FromEnvironment() ServiceDescriptor {
	desc := ServiceDescriptor{
		ServiceKind: strings.TrimSpace(os.Getenv(EnvServiceName)),
		Runtime:     ParseRuntime(os.Getenv(EnvServiceRuntime)),
		ConfigPath:  os.Getenv(EnvServiceConfigPath),
		LogLevel:    os.Getenv(EnvAppLogLevel),
	}

	if portStr := os.Getenv(EnvServicePort); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			desc.Port = port
		}
	}

	if extra := strings.TrimSpace(os.Getenv(EnvServiceExtraArgs)); extra != "" {
		desc.ExtraArgs = strings.Fields(extra)
	}

	if desc.LogLevel == "" {
		desc.LogLevel = "info"
	}

	if desc.Runtime == RuntimeUnknown {
		if rt, ok := fallbackRuntimes[desc.ServiceKind]; ok {
			desc.Runtime = rt
		}
	}

	return desc
}

// Validate reports whether the descriptor is usable for command resolution
func (d ServiceDescriptor) Validate() error {
	if d.ServiceKind == "" {
		return errors.NewValidationError("service kind is required", nil).
			WithContext("env", EnvServiceName)
	}
	if d.Runtime == RuntimeUnknown {
		return errors.NewValidationError(
			fmt.Sprintf("unknown runtime for service '%s' and no fallback mapping exists", d.ServiceKind),
			nil,
		).WithContext("env", EnvServiceRuntime).WithContext("service_kind", d.ServiceKind)
	}
	if d.Port < 0 || d.Port > 65535 {
		return errors.NewValidationError(
			fmt.Sprintf("invalid port %d", d.Port),
			nil,
		).WithContext("env", EnvServicePort)
	}
	return nil
}

// EnvironmentOverlay returns the environment entries every resolved command
// inherits: the descriptor's declared fields plus per-runtime passthrough.
// Keys in the returned map are unique by construction.
func (d ServiceDescriptor) EnvironmentOverlay() map[string]string {
	overlay := map[string]string{
		EnvServiceName:    d.ServiceKind,
		EnvServiceRuntime: string(d.Runtime),
		EnvServicePort:    strconv.Itoa(d.Port),
		EnvAppLogLevel:    d.LogLevel,
	}
	if d.ConfigPath != "" {
		overlay[EnvServiceConfigPath] = d.ConfigPath
	}

	switch d.Runtime {
	case RuntimePython:
		overlay["PYTHONUNBUFFERED"] = "1"
	case RuntimeRust:
		overlay["RUST_BACKTRACE"] = "1"
		if os.Getenv("RUST_LOG") == "" {
			overlay["RUST_LOG"] = d.LogLevel
		}
	case RuntimeNode:
		if os.Getenv("NODE_ENV") == "" {
			overlay["NODE_ENV"] = "production"
		}
	case RuntimeDotNet:
		overlay["DOTNET_EnableDiagnostics"] = "0"
	case RuntimeHybrid:
		overlay["PYTHONUNBUFFERED"] = "1"
		overlay["RUST_BACKTRACE"] = "1"
	}

	return overlay
}

func (d ServiceDescriptor) String() string {
	return fmt.Sprintf("service: %s, runtime: %s, port: %d", d.ServiceKind, d.Runtime, d.Port)
}
