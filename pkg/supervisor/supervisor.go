package supervisor

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/fks-ops/fks-entrypoint/pkg/errors"
	"github.com/fks-ops/fks-entrypoint/pkg/logging"
	"github.com/fks-ops/fks-entrypoint/pkg/monitoring"
	osprocess "github.com/fks-ops/fks-entrypoint/pkg/process"
	"github.com/fks-ops/fks-entrypoint/pkg/resolve"
)

// ProcessRole distinguishes the main workload from auxiliary processes
type ProcessRole string

const (
	RoleMain       ProcessRole = "main"
	RoleDependency ProcessRole = "dependency"
)

const (
	// DefaultMainGracePeriod bounds graceful termination of the main workload
	DefaultMainGracePeriod = 30 * time.Second

	// DefaultDependencyGracePeriod is shorter: dependencies are expected to
	// be lighter-weight
	DefaultDependencyGracePeriod = 10 * time.Second

	// postKillWait bounds the wait for the OS to reap a force-killed process
	postKillWait = 5 * time.Second
)

// ManagedProcess is one process owned by the supervisor. The supervisor is
// the only writer of its state.
type ManagedProcess struct {
	ID        string
	Role      ProcessRole
	PID       int
	StartedAt time.Time

	Health monitoring.HealthCheckConfig

	sm      *stateMachine
	process *os.Process

	// exited is closed exactly once, after exit bookkeeping completes
	exited chan struct{}

	mutex       sync.RWMutex
	exitCode    int
	exitErr     error
	forceKilled bool
}

// State returns the process's current lifecycle state
func (mp *ManagedProcess) State() ProcessState {
	return mp.sm.State()
}

// Exited returns a channel closed when the process has exited
func (mp *ManagedProcess) Exited() <-chan struct{} {
	return mp.exited
}

// ExitCode returns the recorded exit code; -1 means signal death or unknown.
// Only meaningful after Exited() is closed.
func (mp *ManagedProcess) ExitCode() int {
	mp.mutex.RLock()
	defer mp.mutex.RUnlock()
	return mp.exitCode
}

// ForceKilled reports whether teardown had to escalate past the grace period
func (mp *ManagedProcess) ForceKilled() bool {
	mp.mutex.RLock()
	defer mp.mutex.RUnlock()
	return mp.forceKilled
}

// Alive reports whether the OS still knows the process
func (mp *ManagedProcess) Alive() bool {
	select {
	case <-mp.exited:
		return false
	default:
		return osprocess.IsAlive(mp.PID)
	}
}

func (mp *ManagedProcess) recordExit(code int, err error) {
	mp.mutex.Lock()
	mp.exitCode = code
	mp.exitErr = err
	mp.mutex.Unlock()
}

func (mp *ManagedProcess) markForceKilled() {
	mp.mutex.Lock()
	mp.forceKilled = true
	mp.mutex.Unlock()
}

// ShutdownPlanEntry is one teardown step: a process and its grace period
type ShutdownPlanEntry struct {
	Process     *ManagedProcess
	GracePeriod time.Duration
}

// ShutdownPlan is the ordered teardown sequence, built exactly once per
// supervisor lifetime and read-only thereafter.
type ShutdownPlan struct {
	Reason  string
	BuiltAt time.Time
	Entries []ShutdownPlanEntry
}

// Options configures a Supervisor
type Options struct {
	MainGracePeriod       time.Duration
	DependencyGracePeriod time.Duration
}

func (o *Options) setDefaults() {
	if o.MainGracePeriod <= 0 {
		o.MainGracePeriod = DefaultMainGracePeriod
	}
	if o.DependencyGracePeriod <= 0 {
		o.DependencyGracePeriod = DefaultDependencyGracePeriod
	}
}

// Supervisor owns the main workload process and all dependency processes.
// All process table mutation goes through it.
type Supervisor struct {
	options Options
	logger  logging.Logger

	mutex     sync.Mutex
	processes []*ManagedProcess // in start order
	main      *ManagedProcess
	plan      *ShutdownPlan
}

func New(options Options, logger logging.Logger) *Supervisor {
	options.setDefaults()
	return &Supervisor{
		options: options,
		logger:  logger,
	}
}

// Start spawns a process from the resolved command and registers it in the
// process table. The command is consumed exactly once; calling Start twice
// with RoleMain is an error.
func (s *Supervisor) Start(ctx context.Context, id string, role ProcessRole, cmd *resolve.ResolvedCommand) (*ManagedProcess, error) {
	if ctx == nil {
		return nil, errors.NewValidationError("context cannot be nil", nil)
	}
	if cmd == nil {
		return nil, errors.NewValidationError("resolved command cannot be nil", nil)
	}

	s.mutex.Lock()
	if role == RoleMain && s.main != nil {
		s.mutex.Unlock()
		return nil, errors.NewValidationError("main process already started", nil).
			WithContext("process_id", id)
	}
	s.mutex.Unlock()

	mp := &ManagedProcess{
		ID:       id,
		Role:     role,
		sm:       newStateMachine(id, s.logger),
		exited:   make(chan struct{}),
		exitCode: -1,
	}

	if err := mp.sm.Transition(ProcessStateStarting, "start", nil); err != nil {
		return nil, err
	}

	proc, err := osprocess.Execute(ctx, osprocess.ExecutionConfig{
		ExecutablePath:   cmd.Executable,
		Args:             cmd.Args,
		WorkingDirectory: cmd.WorkingDirectory,
		Environment:      cmd.EnvironmentOverlay,
	}, s.logger)
	if err != nil {
		mp.sm.Transition(ProcessStateFailed, "start", err)
		return nil, errors.NewProcessError("failed to spawn process", err).
			WithContext("process_id", id).
			WithContext("executable", cmd.Executable)
	}

	mp.process = proc
	mp.PID = proc.Pid
	mp.StartedAt = time.Now()

	// Running means the OS reports the process alive, nothing more
	mp.sm.Transition(ProcessStateRunning, "start", nil)

	s.mutex.Lock()
	s.processes = append(s.processes, mp)
	if role == RoleMain {
		s.main = mp
	}
	s.mutex.Unlock()

	go s.waitForExit(mp)

	s.logger.Infof("Process supervised, id: %s, role: %s, PID: %d", id, role, mp.PID)

	return mp, nil
}

// waitForExit blocks on the OS process and records the outcome. Terminal
// state depends on the exit code; a process never leaves Terminated/Failed.
func (s *Supervisor) waitForExit(mp *ManagedProcess) {
	state, err := mp.process.Wait()

	code := -1
	if state != nil {
		code = state.ExitCode()
	}
	mp.recordExit(code, err)

	switch {
	case err != nil:
		s.logger.Warnf("Process wait failed, id: %s, PID: %d, error: %v", mp.ID, mp.PID, err)
		mp.sm.Transition(ProcessStateFailed, "exit", err)
	case code == 0:
		s.logger.Infof("Process exited cleanly, id: %s, PID: %d", mp.ID, mp.PID)
		mp.sm.Transition(ProcessStateTerminated, "exit", nil)
	case code > 0:
		s.logger.Warnf("Process exited with code %d, id: %s, PID: %d", code, mp.ID, mp.PID)
		mp.sm.Transition(ProcessStateFailed, "exit", errors.NewProcessError("non-zero exit", nil).WithContext("code", code))
	default:
		// Signal death: terminated is correct when it was requested, and the
		// requested transition has already moved the state to Terminating
		s.logger.Infof("Process terminated by signal, id: %s, PID: %d", mp.ID, mp.PID)
		mp.sm.Transition(ProcessStateTerminated, "exit", nil)
	}

	close(mp.exited)
}

// Main returns the main managed process, or nil before it is started
func (s *Supervisor) Main() *ManagedProcess {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.main
}

// Processes returns the process table in start order
func (s *Supervisor) Processes() []*ManagedProcess {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	out := make([]*ManagedProcess, len(s.processes))
	copy(out, s.processes)
	return out
}

// WaitMain blocks until the main process exits and returns its exit code.
// Main-process exit always tears down dependencies, never the reverse; the
// caller is expected to trigger Shutdown when this returns.
func (s *Supervisor) WaitMain(ctx context.Context) (int, error) {
	main := s.Main()
	if main == nil {
		return -1, errors.NewValidationError("no main process started", nil)
	}

	select {
	case <-main.Exited():
		return main.ExitCode(), nil
	case <-ctx.Done():
		return -1, errors.NewCancelledError("wait cancelled", ctx.Err())
	}
}

// Shutdown builds the shutdown plan (once) and executes it: the main process
// first, then dependencies in reverse start order, each with a bounded grace
// period before escalating to a forceful kill. A second call observes the
// existing plan and is a no-op.
func (s *Supervisor) Shutdown(ctx context.Context, reason string) *ShutdownPlan {
	s.mutex.Lock()
	if s.plan != nil {
		plan := s.plan
		s.mutex.Unlock()
		s.logger.Infof("Shutdown already in progress, ignoring trigger, reason: %s", reason)
		return plan
	}
	plan := s.buildPlanLocked(reason)
	s.plan = plan
	s.mutex.Unlock()

	s.logger.Infof("Executing shutdown plan, reason: %s, entries: %d", reason, len(plan.Entries))

	for _, entry := range plan.Entries {
		s.terminate(ctx, entry)
	}

	s.logger.Infof("Shutdown plan executed, reason: %s", reason)

	return plan
}

// buildPlanLocked assembles the teardown order: main first (it holds the
// externally visible connections), then dependencies in reverse start order.
func (s *Supervisor) buildPlanLocked(reason string) *ShutdownPlan {
	plan := &ShutdownPlan{
		Reason:  reason,
		BuiltAt: time.Now(),
	}

	if s.main != nil {
		plan.Entries = append(plan.Entries, ShutdownPlanEntry{
			Process:     s.main,
			GracePeriod: s.options.MainGracePeriod,
		})
	}

	for i := len(s.processes) - 1; i >= 0; i-- {
		mp := s.processes[i]
		if mp.Role == RoleMain {
			continue
		}
		plan.Entries = append(plan.Entries, ShutdownPlanEntry{
			Process:     mp,
			GracePeriod: s.options.DependencyGracePeriod,
		})
	}

	return plan
}

// terminate drives one plan entry: graceful signal, bounded wait, forceful
// escalation with no further grace period.
func (s *Supervisor) terminate(ctx context.Context, entry ShutdownPlanEntry) {
	mp := entry.Process

	if mp.State().IsTerminal() {
		s.logger.Debugf("Process already terminal, id: %s, state: %s", mp.ID, mp.State())
		return
	}

	if err := mp.sm.Transition(ProcessStateTerminating, "shutdown", nil); err != nil {
		// Lost the race against self-exit; nothing left to do
		s.logger.Debugf("Process exited before termination request, id: %s", mp.ID)
		return
	}

	s.logger.Infof("Sending termination signal, id: %s, PID: %d, grace: %v", mp.ID, mp.PID, entry.GracePeriod)
	if err := osprocess.SendTerminationSignal(mp.PID); err != nil {
		s.logger.Warnf("Failed to send termination signal, id: %s, PID: %d, error: %v", mp.ID, mp.PID, err)
	}

	select {
	case <-mp.Exited():
		s.logger.Infof("Process terminated gracefully, id: %s, PID: %d", mp.ID, mp.PID)
		return
	case <-time.After(entry.GracePeriod):
		s.logger.Warnf("Process did not terminate within %v, forcing kill, id: %s, PID: %d",
			entry.GracePeriod, mp.ID, mp.PID)
	case <-ctx.Done():
		s.logger.Warnf("Context cancelled during graceful termination, forcing kill, id: %s, PID: %d",
			mp.ID, mp.PID)
	}

	mp.markForceKilled()
	if err := osprocess.Kill(mp.PID); err != nil {
		s.logger.Errorf("Failed to kill process, id: %s, PID: %d, error: %v", mp.ID, mp.PID, err)
	}

	select {
	case <-mp.Exited():
		s.logger.Infof("Process force terminated, id: %s, PID: %d", mp.ID, mp.PID)
	case <-time.After(postKillWait):
		s.logger.Errorf("Process did not exit even after forced kill, id: %s, PID: %d", mp.ID, mp.PID)
	}
}

// TerminateProcess tears down a single process outside of a shutdown plan,
// used when aborting a partially-launched dependency set.
func (s *Supervisor) TerminateProcess(ctx context.Context, mp *ManagedProcess, gracePeriod time.Duration) {
	s.terminate(ctx, ShutdownPlanEntry{Process: mp, GracePeriod: gracePeriod})
}

// Plan returns the shutdown plan, or nil when shutdown has not begun
func (s *Supervisor) Plan() *ShutdownPlan {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.plan
}
