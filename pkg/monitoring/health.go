package monitoring

import (
	"fmt"
	"time"
)

// HealthCheckType identifies how a target is probed
type HealthCheckType string

const (
	// HealthCheckTypeAuto picks the first applicable kind: HTTP, then TCP,
	// then process existence
	HealthCheckTypeAuto    HealthCheckType = "auto"
	HealthCheckTypeHTTP    HealthCheckType = "http"
	HealthCheckTypeTCP     HealthCheckType = "tcp"
	HealthCheckTypeProcess HealthCheckType = "process"
	HealthCheckTypeNone    HealthCheckType = "none"
)

// HealthCheckStatus is the outcome of a single probe
type HealthCheckStatus string

const (
	HealthCheckStatusHealthy        HealthCheckStatus = "healthy"
	HealthCheckStatusUnhealthy      HealthCheckStatus = "unhealthy"
	HealthCheckStatusStarting       HealthCheckStatus = "starting"
	HealthCheckStatusNoCheckDefined HealthCheckStatus = "no_check_defined"
	HealthCheckStatusNotRunning     HealthCheckStatus = "not_running"
)

// IsTerminal reports whether the status ends a Wait loop early
func (s HealthCheckStatus) IsTerminal() bool {
	return s == HealthCheckStatusHealthy ||
		s == HealthCheckStatusUnhealthy ||
		s == HealthCheckStatusNotRunning
}

// HTTPHealthCheckConfig declares an HTTP GET probe. URL wins when set;
// otherwise the URL is built from host, port and path.
type HTTPHealthCheckConfig struct {
	URL  string `yaml:"url,omitempty"`
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
	Path string `yaml:"path,omitempty"`
}

// TCPHealthCheckConfig declares a bare TCP connect probe
type TCPHealthCheckConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// HealthCheckRunOptions bound the probe loop
type HealthCheckRunOptions struct {
	Interval     time.Duration `yaml:"interval,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	InitialDelay time.Duration `yaml:"initial_delay,omitempty"`
	Retries      int           `yaml:"retries,omitempty"`
}

// HealthCheckConfig declares how a managed process is health checked
type HealthCheckConfig struct {
	Type       HealthCheckType       `yaml:"type,omitempty"`
	HTTP       HTTPHealthCheckConfig `yaml:"http,omitempty"`
	TCP        TCPHealthCheckConfig  `yaml:"tcp,omitempty"`
	RunOptions HealthCheckRunOptions `yaml:"run_options,omitempty"`
}

// Target is a probe target: the declared check plus the PID of the process
// backing it, when known. PID 0 means no process-existence information.
type Target struct {
	Check HealthCheckConfig
	PID   int
}

// HealthCheckResult is the ephemeral outcome of one probe invocation
type HealthCheckResult struct {
	Status  HealthCheckStatus
	Target  string
	Elapsed time.Duration
}

func (r HealthCheckResult) String() string {
	return fmt.Sprintf("%s (target: %s, elapsed: %v)", r.Status, r.Target, r.Elapsed)
}

// httpURL returns the effective URL of an HTTP check, or "" when undeclared
func (c HTTPHealthCheckConfig) httpURL() string {
	if c.URL != "" {
		return c.URL
	}
	if c.Port == 0 {
		return ""
	}
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	path := c.Path
	if path == "" {
		path = "/health"
	}
	return fmt.Sprintf("http://%s:%d%s", host, c.Port, path)
}

// tcpAddress returns the effective address of a TCP check, or "" when undeclared
func (c TCPHealthCheckConfig) tcpAddress() string {
	if c.Port == 0 {
		return ""
	}
	host := c.Host
	if host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("%s:%d", host, c.Port)
}

// effectiveType resolves HealthCheckTypeAuto to a concrete probe kind using
// the fixed preference order HTTP, TCP, process existence.
func (t Target) effectiveType() HealthCheckType {
	switch t.Check.Type {
	case HealthCheckTypeHTTP, HealthCheckTypeTCP, HealthCheckTypeProcess, HealthCheckTypeNone:
		return t.Check.Type
	}

	if t.Check.HTTP.httpURL() != "" {
		return HealthCheckTypeHTTP
	}
	if t.Check.TCP.tcpAddress() != "" {
		return HealthCheckTypeTCP
	}
	if t.PID > 0 {
		return HealthCheckTypeProcess
	}
	return HealthCheckTypeNone
}
