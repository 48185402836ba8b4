package monitoring

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct{}

func (l *testLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (l *testLogger) Debugf(format string, args ...interface{})               {}
func (l *testLogger) Infof(format string, args ...interface{})                {}
func (l *testLogger) Warnf(format string, args ...interface{})                {}
func (l *testLogger) Errorf(format string, args ...interface{})               {}

func newTestProbe() *Probe {
	return NewProbe(&testLogger{})
}

func TestCheck_HTTPHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	probe := newTestProbe()
	result := probe.Check(context.Background(), Target{
		Check: HealthCheckConfig{
			Type: HealthCheckTypeHTTP,
			HTTP: HTTPHealthCheckConfig{URL: server.URL},
		},
	})

	assert.Equal(t, HealthCheckStatusHealthy, result.Status)
	assert.Equal(t, server.URL, result.Target)
}

func TestCheck_HTTPUnhealthyOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	probe := newTestProbe()
	result := probe.Check(context.Background(), Target{
		Check: HealthCheckConfig{
			Type: HealthCheckTypeHTTP,
			HTTP: HTTPHealthCheckConfig{URL: server.URL},
		},
	})

	// An explicit unhealthy answer is terminal, unlike a refused connection
	assert.Equal(t, HealthCheckStatusUnhealthy, result.Status)
}

func TestCheck_HTTPConnectionRefusedWhileAlive(t *testing.T) {
	probe := newTestProbe()
	probe.aliveFunc = func(pid int) bool { return true }

	result := probe.Check(context.Background(), Target{
		Check: HealthCheckConfig{
			Type: HealthCheckTypeHTTP,
			HTTP: HTTPHealthCheckConfig{URL: "http://127.0.0.1:1/health"},
			RunOptions: HealthCheckRunOptions{
				Timeout: 500 * time.Millisecond,
			},
		},
		PID: 12345,
	})

	assert.Equal(t, HealthCheckStatusStarting, result.Status)
}

func TestCheck_HTTPConnectionRefusedProcessGone(t *testing.T) {
	probe := newTestProbe()
	probe.aliveFunc = func(pid int) bool { return false }

	result := probe.Check(context.Background(), Target{
		Check: HealthCheckConfig{
			Type: HealthCheckTypeHTTP,
			HTTP: HTTPHealthCheckConfig{URL: "http://127.0.0.1:1/health"},
			RunOptions: HealthCheckRunOptions{
				Timeout: 500 * time.Millisecond,
			},
		},
		PID: 12345,
	})

	assert.Equal(t, HealthCheckStatusNotRunning, result.Status)
}

func TestCheck_TCP(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer listener.Close()

	port := listener.Addr().(*net.TCPAddr).Port

	probe := newTestProbe()
	result := probe.Check(context.Background(), Target{
		Check: HealthCheckConfig{
			Type: HealthCheckTypeTCP,
			TCP:  TCPHealthCheckConfig{Port: port},
		},
	})

	assert.Equal(t, HealthCheckStatusHealthy, result.Status)
}

func TestCheck_ProcessExistence(t *testing.T) {
	probe := newTestProbe()

	// The test process itself is definitely alive
	result := probe.Check(context.Background(), Target{
		Check: HealthCheckConfig{Type: HealthCheckTypeProcess},
		PID:   os.Getpid(),
	})
	assert.Equal(t, HealthCheckStatusHealthy, result.Status)

	// A wildly out-of-range pid is definitely not
	result = probe.Check(context.Background(), Target{
		Check: HealthCheckConfig{Type: HealthCheckTypeProcess},
		PID:   1 << 30,
	})
	assert.Equal(t, HealthCheckStatusNotRunning, result.Status)
}

func TestCheck_NoCheckDefined(t *testing.T) {
	probe := newTestProbe()
	result := probe.Check(context.Background(), Target{})

	assert.Equal(t, HealthCheckStatusNoCheckDefined, result.Status)
}

func TestCheck_AutoPrefersHTTPOverProcess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	probe := newTestProbe()
	result := probe.Check(context.Background(), Target{
		Check: HealthCheckConfig{
			HTTP: HTTPHealthCheckConfig{URL: server.URL},
		},
		PID: os.Getpid(),
	})

	assert.Equal(t, HealthCheckStatusHealthy, result.Status)
	assert.Equal(t, server.URL, result.Target)
}

func TestWait_ReturnsOnHealthy(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	probe := newTestProbe()
	result := probe.Wait(context.Background(), Target{
		Check: HealthCheckConfig{
			Type: HealthCheckTypeHTTP,
			HTTP: HTTPHealthCheckConfig{URL: server.URL},
		},
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, HealthCheckStatusHealthy, result.Status)
}

// A target with no check endpoint that stays alive past the total timeout
// yields Starting: a timeout is not the same as failure.
func TestWait_TimeoutWithAliveProcessYieldsStarting(t *testing.T) {
	probe := newTestProbe()
	probe.aliveFunc = func(pid int) bool { return true }

	result := probe.Wait(context.Background(), Target{
		Check: HealthCheckConfig{Type: HealthCheckTypeNone},
		PID:   12345,
	}, 200*time.Millisecond, 50*time.Millisecond)

	assert.Equal(t, HealthCheckStatusStarting, result.Status)
}

func TestWait_NoCheckAndProcessGoneYieldsNotRunning(t *testing.T) {
	probe := newTestProbe()
	probe.aliveFunc = func(pid int) bool { return false }

	result := probe.Wait(context.Background(), Target{
		Check: HealthCheckConfig{Type: HealthCheckTypeNone},
		PID:   12345,
	}, 200*time.Millisecond, 50*time.Millisecond)

	assert.Equal(t, HealthCheckStatusNotRunning, result.Status)
}

func TestWait_TerminalNotRunningReturnsEarly(t *testing.T) {
	probe := newTestProbe()
	probe.aliveFunc = func(pid int) bool { return false }

	started := time.Now()
	result := probe.Wait(context.Background(), Target{
		Check: HealthCheckConfig{Type: HealthCheckTypeProcess},
		PID:   12345,
	}, 10*time.Second, 50*time.Millisecond)

	assert.Equal(t, HealthCheckStatusNotRunning, result.Status)
	assert.Less(t, time.Since(started), 2*time.Second)
}
