package supervisor

import (
	"fmt"
	"sync"
	"time"

	"github.com/fks-ops/fks-entrypoint/pkg/errors"
	"github.com/fks-ops/fks-entrypoint/pkg/logging"
)

// ProcessState represents the current state of a managed process
type ProcessState string

const (
	// ProcessStateNotStarted is the initial state before any spawn attempt
	ProcessStateNotStarted ProcessState = "not_started"

	// ProcessStateStarting means a spawn is in progress
	ProcessStateStarting ProcessState = "starting"

	// ProcessStateRunning means the OS reports the process alive. This is
	// existence, not health.
	ProcessStateRunning ProcessState = "running"

	// ProcessStateTerminating means shutdown has been requested
	ProcessStateTerminating ProcessState = "terminating"

	// ProcessStateTerminated means the process exited cleanly
	ProcessStateTerminated ProcessState = "terminated"

	// ProcessStateFailed means the process failed to start or exited non-zero
	ProcessStateFailed ProcessState = "failed"
)

// IsTerminal reports whether the state is a sink: no transition leaves it
func (s ProcessState) IsTerminal() bool {
	return s == ProcessStateTerminated || s == ProcessStateFailed
}

// StateTransition records one transition with metadata
type StateTransition struct {
	From      ProcessState
	To        ProcessState
	Operation string
	Timestamp time.Time
	Error     error
}

// stateMachine validates and records process state transitions. The
// supervisor is its only writer.
type stateMachine struct {
	processID    string
	currentState ProcessState
	transitions  []StateTransition
	mutex        sync.RWMutex
	logger       logging.Logger
}

var validTransitions = map[ProcessState][]ProcessState{
	ProcessStateNotStarted: {
		ProcessStateStarting, // spawn requested
	},
	ProcessStateStarting: {
		ProcessStateRunning, // OS reports process alive
		ProcessStateFailed,  // spawn failure
	},
	ProcessStateRunning: {
		ProcessStateTerminating, // shutdown requested
		ProcessStateTerminated,  // self-exit, code 0
		ProcessStateFailed,      // self-exit, non-zero
	},
	ProcessStateTerminating: {
		ProcessStateTerminated, // exit after termination request
		ProcessStateFailed,     // exit with failure during termination
	},
	// Terminated and Failed are sinks
	ProcessStateTerminated: {},
	ProcessStateFailed:     {},
}

func newStateMachine(processID string, logger logging.Logger) *stateMachine {
	return &stateMachine{
		processID:    processID,
		currentState: ProcessStateNotStarted,
		logger:       logger,
	}
}

// State returns the current state (thread-safe)
func (sm *stateMachine) State() ProcessState {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

// CanTransition checks if a state transition is valid (thread-safe)
func (sm *stateMachine) CanTransition(to ProcessState) bool {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.canTransitionUnsafe(to)
}

// Transition changes the process state with validation (thread-safe)
func (sm *stateMachine) Transition(to ProcessState, operation string, cause error) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if !sm.canTransitionUnsafe(to) {
		return errors.NewValidationError(
			fmt.Sprintf("invalid state transition from '%s' to '%s'", sm.currentState, to),
			nil,
		).WithContext("process_id", sm.processID).
			WithContext("operation", operation)
	}

	from := sm.currentState
	sm.transitions = append(sm.transitions, StateTransition{
		From:      from,
		To:        to,
		Operation: operation,
		Timestamp: time.Now(),
		Error:     cause,
	})
	sm.currentState = to

	if cause != nil {
		sm.logger.Warnf("Process state transition, process: %s, %s->%s, operation: %s, cause: %v",
			sm.processID, from, to, operation, cause)
	} else {
		sm.logger.Infof("Process state transition, process: %s, %s->%s, operation: %s",
			sm.processID, from, to, operation)
	}

	return nil
}

func (sm *stateMachine) canTransitionUnsafe(to ProcessState) bool {
	for _, valid := range validTransitions[sm.currentState] {
		if valid == to {
			return true
		}
	}
	return false
}

// TransitionHistory returns a copy of the recorded transitions
func (sm *stateMachine) TransitionHistory() []StateTransition {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()

	history := make([]StateTransition, len(sm.transitions))
	copy(history, sm.transitions)
	return history
}
