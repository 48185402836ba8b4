package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct{}

func (l *testLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (l *testLogger) Debugf(format string, args ...interface{})               {}
func (l *testLogger) Infof(format string, args ...interface{})                {}
func (l *testLogger) Warnf(format string, args ...interface{})                {}
func (l *testLogger) Errorf(format string, args ...interface{})               {}

func TestStateMachine_HappyPath(t *testing.T) {
	sm := newStateMachine("api", &testLogger{})
	assert.Equal(t, ProcessStateNotStarted, sm.State())

	require.NoError(t, sm.Transition(ProcessStateStarting, "start", nil))
	require.NoError(t, sm.Transition(ProcessStateRunning, "start", nil))
	require.NoError(t, sm.Transition(ProcessStateTerminating, "shutdown", nil))
	require.NoError(t, sm.Transition(ProcessStateTerminated, "exit", nil))

	assert.Equal(t, ProcessStateTerminated, sm.State())
	assert.Len(t, sm.TransitionHistory(), 4)
}

func TestStateMachine_InvalidTransitionRejected(t *testing.T) {
	sm := newStateMachine("api", &testLogger{})

	err := sm.Transition(ProcessStateRunning, "start", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid state transition")

	// State unchanged, nothing recorded
	assert.Equal(t, ProcessStateNotStarted, sm.State())
	assert.Empty(t, sm.TransitionHistory())
}

func TestStateMachine_TerminalStatesAreSinks(t *testing.T) {
	for _, terminal := range []ProcessState{ProcessStateTerminated, ProcessStateFailed} {
		sm := newStateMachine("dep", &testLogger{})
		sm.currentState = terminal

		for _, to := range []ProcessState{
			ProcessStateNotStarted,
			ProcessStateStarting,
			ProcessStateRunning,
			ProcessStateTerminating,
			ProcessStateTerminated,
			ProcessStateFailed,
		} {
			assert.False(t, sm.CanTransition(to), "from %s to %s", terminal, to)
		}
	}
}

func TestStateMachine_SelfExitSkipsTerminating(t *testing.T) {
	sm := newStateMachine("worker", &testLogger{})
	require.NoError(t, sm.Transition(ProcessStateStarting, "start", nil))
	require.NoError(t, sm.Transition(ProcessStateRunning, "start", nil))

	// A running process may exit without any shutdown request
	require.NoError(t, sm.Transition(ProcessStateTerminated, "exit", nil))
}

func TestProcessState_IsTerminal(t *testing.T) {
	assert.True(t, ProcessStateTerminated.IsTerminal())
	assert.True(t, ProcessStateFailed.IsTerminal())
	assert.False(t, ProcessStateNotStarted.IsTerminal())
	assert.False(t, ProcessStateStarting.IsTerminal())
	assert.False(t, ProcessStateRunning.IsTerminal())
	assert.False(t, ProcessStateTerminating.IsTerminal())
}
