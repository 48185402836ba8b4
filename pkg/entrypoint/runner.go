package entrypoint

import (
	"context"
	"os"
	"runtime"

	"github.com/fks-ops/fks-entrypoint/pkg/bootstrap"
	"github.com/fks-ops/fks-entrypoint/pkg/descriptor"
	"github.com/fks-ops/fks-entrypoint/pkg/fallback"
	"github.com/fks-ops/fks-entrypoint/pkg/launchspec"
	"github.com/fks-ops/fks-entrypoint/pkg/logging"
	"github.com/fks-ops/fks-entrypoint/pkg/monitoring"
	"github.com/fks-ops/fks-entrypoint/pkg/resolve"
	"github.com/fks-ops/fks-entrypoint/pkg/supervisor"
)

// EnvLaunchSpec points at the optional YAML launch spec
const EnvLaunchSpec = "ENTRYPOINT_LAUNCH_SPEC"

// RunOptions carries the CLI surface into the runner
type RunOptions struct {
	// LaunchSpecPath overrides the ENTRYPOINT_LAUNCH_SPEC environment variable
	LaunchSpecPath string

	// FallbackServer runs the emergency fallback server instead of
	// supervising a workload. Used when the resolver re-execs this binary.
	FallbackServer bool

	// Port overrides the descriptor port (fallback mode only)
	Port int

	// PassthroughArgs, when present, bypass command resolution entirely and
	// are executed verbatim.
	PassthroughArgs []string
}

// Run is the container entrypoint: resolve the main command, launch declared
// dependencies, supervise the workload, and coordinate shutdown. The return
// value is the container's exit code.
func Run(options RunOptions, logger logging.Logger) int {
	logger.Infof("Entrypoint starting...")
	logger.Infof("Platform: OS=%s, Arch=%s, CPUs=%d, Go=%s",
		runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), runtime.Version())

	ctx := context.Background()

	desc := descriptor.FromEnvironment()
	logger.Infof("Service descriptor: %s, log level: %s, extra args: %v",
		desc, desc.LogLevel, desc.ExtraArgs)

	if options.FallbackServer {
		port := options.Port
		if port == 0 {
			port = desc.Port
		}
		server := fallback.NewServer(fallback.Options{
			Port:        port,
			ServiceKind: desc.ServiceKind,
		}, logger)
		if err := server.Run(ctx); err != nil {
			logger.Errorf("Fallback server failed: %v", err)
			return supervisor.InternalFailureExitCode
		}
		return 0
	}

	spec, err := loadSpec(options, logger)
	if err != nil {
		logger.Errorf("Failed to load launch spec: %v", err)
		return supervisor.InternalFailureExitCode
	}
	logger.Infof("Launch spec: %+v", launchspec.GetSummary(spec))

	// Preconditions: required directories and the service config file
	if err := bootstrap.Prepare(desc, logger); err != nil {
		logger.Errorf("Bootstrap failed: %v", err)
		return supervisor.InternalFailureExitCode
	}

	sup := supervisor.New(supervisor.Options{
		MainGracePeriod:       spec.Entrypoint.MainGracePeriod,
		DependencyGracePeriod: spec.Entrypoint.DependencyGracePeriod,
	}, logger)

	// Armed before any process starts
	coordinator := supervisor.NewCoordinator(sup, logger)
	coordinator.Arm()

	mainCmd, err := resolveMain(options, desc, spec, logger)
	if err != nil {
		logger.Errorf("Command resolution failed: %v", err)
		return supervisor.InternalFailureExitCode
	}

	probe := monitoring.NewProbe(logger)
	launcher := supervisor.NewDependencyLauncher(supervisor.LauncherOptions{
		SettleInterval: spec.Entrypoint.SettleInterval,
		StartupTimeout: spec.Entrypoint.StartupTimeout,
	}, sup, probe, logger)

	deps := dependencySpecs(spec, desc)
	if len(deps) > 0 {
		logger.Infof("Launching %d dependencies before main workload", len(deps))
		if _, err := launcher.Launch(ctx, deps); err != nil {
			logger.Errorf("Dependency launch failed, container cannot start: %v", err)
			return supervisor.InternalFailureExitCode
		}
	}

	main, err := sup.Start(ctx, desc.ServiceKind, supervisor.RoleMain, mainCmd)
	if err != nil {
		logger.Errorf("Failed to start main workload: %v", err)
		// Dependencies are already running; tear them down before exiting
		sup.Shutdown(ctx, "main spawn failed")
		return supervisor.InternalFailureExitCode
	}

	logger.Infof("Main workload running, id: %s, PID: %d, source: %s",
		main.ID, main.PID, mainCmd.Source)

	return coordinator.Run(ctx)
}

func loadSpec(options RunOptions, logger logging.Logger) (*launchspec.LaunchSpec, error) {
	path := options.LaunchSpecPath
	if path == "" {
		path = os.Getenv(EnvLaunchSpec)
	}
	if path == "" {
		logger.Debugf("No launch spec configured, using defaults")
		return launchspec.Default(), nil
	}

	spec, err := launchspec.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := launchspec.Validate(spec); err != nil {
		return nil, err
	}

	logger.Infof("Launch spec loaded: %s", path)
	return spec, nil
}

// resolveMain produces the main command: pass-through args verbatim when
// given, the strategy chain otherwise.
func resolveMain(options RunOptions, desc descriptor.ServiceDescriptor, spec *launchspec.LaunchSpec, logger logging.Logger) (*resolve.ResolvedCommand, error) {
	if len(options.PassthroughArgs) > 0 {
		logger.Infof("Pass-through arguments given, bypassing command resolution: %v",
			options.PassthroughArgs)
		return &resolve.ResolvedCommand{
			Executable:         options.PassthroughArgs[0],
			Args:               options.PassthroughArgs[1:],
			WorkingDirectory:   spec.Entrypoint.ServiceRoot,
			EnvironmentOverlay: desc.EnvironmentOverlay(),
			Source:             "pass-through",
		}, nil
	}

	resolver := resolve.NewResolver(resolve.Options{
		ServiceRoot:      spec.Entrypoint.ServiceRoot,
		PythonCommand:    spec.Entrypoint.PythonCommand,
		DispatcherModule: spec.Entrypoint.DispatcherModule,
		FallbackPort:     spec.Entrypoint.FallbackPort,
	}, logger)

	return resolver.Resolve(desc)
}

// dependencySpecs converts launch spec dependency configs into launcher specs
func dependencySpecs(spec *launchspec.LaunchSpec, desc descriptor.ServiceDescriptor) []supervisor.DependencySpec {
	var out []supervisor.DependencySpec
	for _, dep := range spec.EnabledDependencies() {
		out = append(out, supervisor.DependencySpec{
			ID: dep.ID,
			Command: &resolve.ResolvedCommand{
				Executable:         dep.Execution.ExecutablePath,
				Args:               dep.Execution.Args,
				WorkingDirectory:   dep.Execution.WorkingDirectory,
				EnvironmentOverlay: mergeEnv(desc.EnvironmentOverlay(), dep.Execution.Environment),
				Source:             "launch-spec",
			},
			Health: dep.HealthCheck,
		})
	}
	return out
}

func mergeEnv(base, overlay map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
