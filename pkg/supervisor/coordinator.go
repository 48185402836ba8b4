package supervisor

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"github.com/fks-ops/fks-entrypoint/pkg/logging"
)

// Coordinator states. The Armed -> ShuttingDown transition happens exactly
// once per container lifetime.
const (
	coordinatorArmed int32 = iota
	coordinatorShuttingDown
	coordinatorDone
)

// Exit codes assigned by the coordinator when the main process's own code
// cannot be propagated verbatim.
const (
	// InternalFailureExitCode reports supervisor-internal failures that
	// happen before any main process starts (resolution, dependency launch).
	InternalFailureExitCode = 125

	// forceKilledExitCode reports a main process that ignored its grace
	// period and had to be killed. 128+SIGKILL by convention.
	forceKilledExitCode = 137

	// crashedBySignalExitCode reports a main process killed by a signal the
	// coordinator never sent.
	crashedBySignalExitCode = 1
)

// cleanupFunc is a registered pre-shutdown callback
type cleanupFunc struct {
	name string
	fn   func() error
}

// Coordinator turns OS termination signals and unexpected main-process exit
// into exactly one teardown sequence. The signal handler goroutine only
// forwards into a channel; all teardown work happens on the Run loop.
type Coordinator struct {
	supervisor *Supervisor
	logger     logging.Logger

	state    atomic.Int32
	signals  chan os.Signal
	mutex    sync.Mutex
	cleanups []cleanupFunc
}

func NewCoordinator(sup *Supervisor, logger logging.Logger) *Coordinator {
	return &Coordinator{
		supervisor: sup,
		logger:     logger,
		signals:    make(chan os.Signal, 4),
	}
}

// Arm registers the termination signal handlers. Must be called before any
// process starts; signals received before Run are buffered, not lost.
func (c *Coordinator) Arm() {
	signal.Notify(c.signals, terminationSignals()...)
	c.logger.Infof("Shutdown coordinator armed, signals: %v", terminationSignals())
}

// RegisterCleanup adds a best-effort pre-shutdown callback. Callback failure
// is logged, never fatal.
func (c *Coordinator) RegisterCleanup(name string, fn func() error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.cleanups = append(c.cleanups, cleanupFunc{name: name, fn: fn})
}

// ShuttingDown reports whether teardown has begun
func (c *Coordinator) ShuttingDown() bool {
	return c.state.Load() != coordinatorArmed
}

// Run blocks until a termination trigger fires, executes the teardown
// sequence once, and returns the container's exit code. Repeated triggers
// while shutting down are observed and ignored.
func (c *Coordinator) Run(ctx context.Context) int {
	main := c.supervisor.Main()
	if main == nil {
		c.logger.Errorf("Coordinator started without a main process")
		return InternalFailureExitCode
	}

	var reason string
	var mainExited bool

	select {
	case sig := <-c.signals:
		reason = "signal: " + sig.String()
	case <-main.Exited():
		reason = "main process exited"
		mainExited = true
	case <-ctx.Done():
		reason = "context cancelled"
	}

	if !c.state.CompareAndSwap(coordinatorArmed, coordinatorShuttingDown) {
		// Unreachable from the single Run loop; kept as the hard guarantee
		// that only one teardown ever executes
		c.logger.Warnf("Shutdown already in progress, ignoring trigger: %s", reason)
		return c.exitCode(main, mainExited)
	}

	c.logger.Infof("Shutdown triggered, reason: %s", reason)

	// Later signals (repeated Ctrl-C) drain here with no effect
	go c.drainSignals()

	c.runCleanups()
	c.supervisor.Shutdown(ctx, reason)

	// Teardown is done; unregister the handlers and close the channel so the
	// drain goroutine exits after logging any buffered signals
	signal.Stop(c.signals)
	close(c.signals)

	c.state.Store(coordinatorDone)

	code := c.exitCode(main, mainExited)
	c.logger.Infof("Shutdown complete, exit code: %d", code)
	return code
}

func (c *Coordinator) drainSignals() {
	for sig := range c.signals {
		c.logger.Infof("Ignoring signal received during shutdown: %v", sig)
	}
}

func (c *Coordinator) runCleanups() {
	c.mutex.Lock()
	cleanups := make([]cleanupFunc, len(c.cleanups))
	copy(cleanups, c.cleanups)
	c.mutex.Unlock()

	for _, cleanup := range cleanups {
		if err := cleanup.fn(); err != nil {
			c.logger.Warnf("Pre-shutdown cleanup failed, name: %s, error: %v", cleanup.name, err)
		} else {
			c.logger.Debugf("Pre-shutdown cleanup done, name: %s", cleanup.name)
		}
	}
}

// exitCode propagates the main process's own exit code verbatim when it has
// one, and assigns a coordinator code for signal deaths: zero when the
// process complied with a graceful termination request, non-zero when it was
// force-killed or crashed on a foreign signal.
func (c *Coordinator) exitCode(main *ManagedProcess, mainExitedOnItsOwn bool) int {
	select {
	case <-main.Exited():
	default:
		// Teardown gave up on the process; it never exited
		return forceKilledExitCode
	}

	code := main.ExitCode()
	switch {
	case code == 0:
		return 0
	case code > 0:
		return code
	case main.ForceKilled():
		return forceKilledExitCode
	case mainExitedOnItsOwn:
		return crashedBySignalExitCode
	default:
		// Died on the graceful termination signal the supervisor sent
		return 0
	}
}
