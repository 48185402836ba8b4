package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/fks-ops/fks-entrypoint/pkg/errors"
	"github.com/fks-ops/fks-entrypoint/pkg/logging"
	"github.com/fks-ops/fks-entrypoint/pkg/monitoring"
	"github.com/fks-ops/fks-entrypoint/pkg/resolve"
)

// DependencySpec declares one auxiliary process that must be running and
// healthy before the main workload starts.
type DependencySpec struct {
	ID      string
	Command *resolve.ResolvedCommand
	Health  monitoring.HealthCheckConfig
}

// DependencyError reports which dependency failed and why. Dependencies are
// required, not optional: any failure is fatal for the container.
type DependencyError struct {
	Index int
	ID    string
	Cause error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %d (%s) failed: %v", e.Index, e.ID, e.Cause)
}

func (e *DependencyError) Unwrap() error {
	return e.Cause
}

// LauncherOptions bound the per-dependency startup verification
type LauncherOptions struct {
	// SettleInterval is the fixed pause between spawn and the first liveness
	// check
	SettleInterval time.Duration

	// ProbeInterval is the polling period for checks that declare no interval
	// of their own
	ProbeInterval time.Duration

	// MaxProbeAttempts caps probing for checks that declare no retry count
	MaxProbeAttempts int

	// StartupTimeout bounds the combined startup of all dependencies.
	// Zero disables it, preserving sequential per-dependency waiting.
	StartupTimeout time.Duration
}

func (o *LauncherOptions) setDefaults() {
	if o.SettleInterval <= 0 {
		o.SettleInterval = 2 * time.Second
	}
	if o.ProbeInterval <= 0 {
		o.ProbeInterval = 1 * time.Second
	}
	if o.MaxProbeAttempts <= 0 || o.MaxProbeAttempts > 10 {
		o.MaxProbeAttempts = 10
	}
}

// DependencyLauncher starts auxiliary processes in order, verifying each
// before proceeding to the next.
type DependencyLauncher struct {
	options    LauncherOptions
	supervisor *Supervisor
	probe      *monitoring.Probe
	logger     logging.Logger
}

func NewDependencyLauncher(options LauncherOptions, sup *Supervisor, probe *monitoring.Probe, logger logging.Logger) *DependencyLauncher {
	options.setDefaults()
	return &DependencyLauncher{
		options:    options,
		supervisor: sup,
		probe:      probe,
		logger:     logger,
	}
}

// Launch starts each dependency in order: spawn, settle, verify liveness.
// On any failure it tears down the dependencies already started, in reverse
// order, and returns a DependencyError. There is no partial-success state.
func (l *DependencyLauncher) Launch(ctx context.Context, deps []DependencySpec) ([]*ManagedProcess, error) {
	if len(deps) == 0 {
		return nil, nil
	}

	var deadline time.Time
	if l.options.StartupTimeout > 0 {
		deadline = time.Now().Add(l.options.StartupTimeout)
	}

	started := make([]*ManagedProcess, 0, len(deps))

	for i, dep := range deps {
		if !deadline.IsZero() && time.Now().After(deadline) {
			err := errors.NewTimeoutError("dependency startup timeout exceeded", nil).
				WithContext("timeout", l.options.StartupTimeout)
			l.abort(ctx, started)
			return nil, &DependencyError{Index: i, ID: dep.ID, Cause: err}
		}

		l.logger.Infof("Launching dependency %d/%d, id: %s", i+1, len(deps), dep.ID)

		mp, err := l.supervisor.Start(ctx, dep.ID, RoleDependency, dep.Command)
		if err != nil {
			l.abort(ctx, started)
			return nil, &DependencyError{Index: i, ID: dep.ID, Cause: err}
		}
		mp.Health = dep.Health
		started = append(started, mp)

		time.Sleep(l.options.SettleInterval)

		if !mp.Alive() {
			l.abort(ctx, started)
			return nil, &DependencyError{
				Index: i,
				ID:    dep.ID,
				Cause: errors.NewProcessError("dependency process died during settle interval", nil).
					WithContext("pid", mp.PID),
			}
		}

		interval, window := l.probeWindow(mp.Health)
		result := l.probe.Wait(ctx, monitoring.Target{Check: mp.Health, PID: mp.PID}, window, interval)

		switch result.Status {
		case monitoring.HealthCheckStatusHealthy:
			l.logger.Infof("Dependency verified, id: %s, %s", dep.ID, result)
		case monitoring.HealthCheckStatusStarting, monitoring.HealthCheckStatusNoCheckDefined:
			// Alive but never reported healthy: healthy-by-default
			l.logger.Warnf("Dependency alive but unverified, proceeding, id: %s, %s", dep.ID, result)
		default:
			l.abort(ctx, started)
			return nil, &DependencyError{
				Index: i,
				ID:    dep.ID,
				Cause: errors.NewDependencyError(
					fmt.Sprintf("dependency health check reported %s", result.Status), nil).
					WithContext("target", result.Target),
			}
		}
	}

	l.logger.Infof("All %d dependencies launched and verified", len(deps))

	return started, nil
}

// probeWindow derives the polling interval and total window for one
// dependency's health check: the check's declared run options win, the
// launcher options fill in whatever the check leaves unset.
func (l *DependencyLauncher) probeWindow(check monitoring.HealthCheckConfig) (time.Duration, time.Duration) {
	interval := check.RunOptions.Interval
	if interval <= 0 {
		interval = l.options.ProbeInterval
	}
	attempts := check.RunOptions.Retries
	if attempts <= 0 {
		attempts = l.options.MaxProbeAttempts
	}
	return interval, time.Duration(attempts) * interval
}

// abort tears down already-started dependencies in reverse start order
func (l *DependencyLauncher) abort(ctx context.Context, started []*ManagedProcess) {
	if len(started) == 0 {
		return
	}

	l.logger.Warnf("Aborting dependency launch, tearing down %d started dependencies", len(started))

	for i := len(started) - 1; i >= 0; i-- {
		l.supervisor.TerminateProcess(ctx, started[i], l.supervisor.options.DependencyGracePeriod)
	}
}
