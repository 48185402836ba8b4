package monitoring

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fks-ops/fks-entrypoint/pkg/logging"
	osprocess "github.com/fks-ops/fks-entrypoint/pkg/process"
)

const (
	defaultProbeTimeout = 5 * time.Second
	defaultPollInterval = 1 * time.Second
)

// Probe performs health checks against HTTP, TCP and process targets
type Probe struct {
	logger logging.Logger
	client *http.Client

	// aliveFunc is swappable for tests; defaults to process.IsAlive
	aliveFunc func(pid int) bool
}

func NewProbe(logger logging.Logger) *Probe {
	return &Probe{
		logger: logger,
		client: &http.Client{
			Timeout: defaultProbeTimeout,
		},
		aliveFunc: osprocess.IsAlive,
	}
}

// Check performs a single probe of the target. Connection-level failures with
// the backing process still alive report Starting, because a workload that
// has not opened its socket yet is distinct from one that answered unhealthy.
func (p *Probe) Check(ctx context.Context, target Target) HealthCheckResult {
	started := time.Now()

	timeout := target.Check.RunOptions.Timeout
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	switch target.effectiveType() {
	case HealthCheckTypeHTTP:
		return p.checkHTTP(ctx, target, timeout, started)
	case HealthCheckTypeTCP:
		return p.checkTCP(target, timeout, started)
	case HealthCheckTypeProcess:
		return p.checkProcess(target, started)
	default:
		return HealthCheckResult{
			Status:  HealthCheckStatusNoCheckDefined,
			Target:  "none",
			Elapsed: time.Since(started),
		}
	}
}

func (p *Probe) checkHTTP(ctx context.Context, target Target, timeout time.Duration, started time.Time) HealthCheckResult {
	url := target.Check.HTTP.httpURL()

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return HealthCheckResult{Status: HealthCheckStatusUnhealthy, Target: url, Elapsed: time.Since(started)}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return p.connectFailure(target, url, started)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return HealthCheckResult{Status: HealthCheckStatusHealthy, Target: url, Elapsed: time.Since(started)}
	}

	p.logger.Debugf("HTTP health check returned status %d, target: %s", resp.StatusCode, url)
	return HealthCheckResult{Status: HealthCheckStatusUnhealthy, Target: url, Elapsed: time.Since(started)}
}

func (p *Probe) checkTCP(target Target, timeout time.Duration, started time.Time) HealthCheckResult {
	address := target.Check.TCP.tcpAddress()

	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return p.connectFailure(target, address, started)
	}
	conn.Close()

	return HealthCheckResult{Status: HealthCheckStatusHealthy, Target: address, Elapsed: time.Since(started)}
}

func (p *Probe) checkProcess(target Target, started time.Time) HealthCheckResult {
	targetName := fmt.Sprintf("pid:%d", target.PID)
	status := HealthCheckStatusNotRunning
	if p.aliveFunc(target.PID) {
		// Existence is the whole check: alive means healthy-by-default
		status = HealthCheckStatusHealthy
	}
	return HealthCheckResult{Status: status, Target: targetName, Elapsed: time.Since(started)}
}

// connectFailure classifies a refused/unreachable probe: the target is still
// starting while its process exists, and not running once it is gone. With no
// PID information the probe assumes the target is still coming up.
func (p *Probe) connectFailure(target Target, targetName string, started time.Time) HealthCheckResult {
	status := HealthCheckStatusStarting
	if target.PID > 0 && !p.aliveFunc(target.PID) {
		status = HealthCheckStatusNotRunning
	}
	return HealthCheckResult{Status: status, Target: targetName, Elapsed: time.Since(started)}
}

// Wait polls Check until a terminal status is observed or totalTimeout
// elapses. A timeout with the process still alive yields Starting, never
// Unhealthy: absence of a positive signal is not evidence of failure.
func (p *Probe) Wait(ctx context.Context, target Target, totalTimeout, pollInterval time.Duration) HealthCheckResult {
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	started := time.Now()
	deadline := started.Add(totalTimeout)

	if delay := target.Check.RunOptions.InitialDelay; delay > 0 {
		time.Sleep(delay)
	}

	var last HealthCheckResult
	for {
		last = p.Check(ctx, target)
		if last.Status.IsTerminal() {
			last.Elapsed = time.Since(started)
			return last
		}

		if ctx.Err() != nil || !time.Now().Add(pollInterval).Before(deadline) {
			break
		}
		time.Sleep(pollInterval)
	}

	// Not terminal within the window; the process may simply expose no check
	if last.Status == HealthCheckStatusNoCheckDefined && target.PID > 0 && !p.aliveFunc(target.PID) {
		last.Status = HealthCheckStatusNotRunning
	} else if last.Status == HealthCheckStatusNoCheckDefined {
		last.Status = HealthCheckStatusStarting
	}
	last.Elapsed = time.Since(started)

	p.logger.Debugf("Health wait finished without terminal status, target: %s, status: %s",
		last.Target, last.Status)

	return last
}
