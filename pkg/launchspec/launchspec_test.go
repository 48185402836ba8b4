package launchspec

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fks-ops/fks-entrypoint/pkg/process"
)

func executionConfig(path string) process.ExecutionConfig {
	return process.ExecutionConfig{ExecutablePath: path}
}

func writeSpec(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "launch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeSpec(t, `
entrypoint:
  service_root: /srv/app
  fallback_port: 9000
  main_grace_period: 45s
  startup_timeout: 2m
dependencies:
  - id: redis
    execution:
      executable_path: /usr/bin/redis-server
      args: ["--port", "6379"]
    health_check:
      type: tcp
      tcp:
        port: 6379
  - id: sidecar
    enabled: false
    execution:
      executable_path: /usr/bin/sidecar
`)

	spec, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/srv/app", spec.Entrypoint.ServiceRoot)
	assert.Equal(t, 9000, spec.Entrypoint.FallbackPort)
	assert.Equal(t, 45*time.Second, spec.Entrypoint.MainGracePeriod)
	assert.Equal(t, 2*time.Minute, spec.Entrypoint.StartupTimeout)

	require.Len(t, spec.Dependencies, 2)
	assert.Equal(t, "redis", spec.Dependencies[0].ID)
	assert.Equal(t, "/usr/bin/redis-server", spec.Dependencies[0].Execution.ExecutablePath)
	assert.Equal(t, []string{"--port", "6379"}, spec.Dependencies[0].Execution.Args)
}

func TestLoadFromFile_Defaults(t *testing.T) {
	path := writeSpec(t, `
dependencies:
  - id: redis
    execution:
      executable_path: /usr/bin/redis-server
`)

	spec, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/app", spec.Entrypoint.ServiceRoot)
	assert.Equal(t, "python3", spec.Entrypoint.PythonCommand)
	assert.Equal(t, "fks.main", spec.Entrypoint.DispatcherModule)
	assert.Equal(t, 8000, spec.Entrypoint.FallbackPort)
	assert.Equal(t, 30*time.Second, spec.Entrypoint.MainGracePeriod)
	assert.Equal(t, 10*time.Second, spec.Entrypoint.DependencyGracePeriod)
	assert.Equal(t, 2*time.Second, spec.Entrypoint.SettleInterval)
	assert.Zero(t, spec.Entrypoint.StartupTimeout)

	dep := spec.Dependencies[0]
	require.NotNil(t, dep.Enabled)
	assert.True(t, *dep.Enabled)
	assert.Equal(t, 1*time.Second, dep.HealthCheck.RunOptions.Interval)
	assert.Equal(t, 5*time.Second, dep.HealthCheck.RunOptions.Timeout)
}

func TestLoadFromFile_MissingFile(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/launch.yaml")
	assert.Error(t, err)
}

func TestLoadFromFile_MalformedYAML(t *testing.T) {
	path := writeSpec(t, "entrypoint: [not a mapping")

	_, err := LoadFromFile(path)
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	spec := Default()

	assert.Equal(t, "/app", spec.Entrypoint.ServiceRoot)
	assert.Empty(t, spec.Dependencies)
	assert.NoError(t, Validate(spec))
}

func TestValidate(t *testing.T) {
	enabled := true

	t.Run("nil spec", func(t *testing.T) {
		assert.Error(t, Validate(nil))
	})

	t.Run("missing id", func(t *testing.T) {
		spec := Default()
		spec.Dependencies = []DependencyConfig{{Enabled: &enabled}}
		assert.Error(t, Validate(spec))
	})

	t.Run("duplicate id", func(t *testing.T) {
		spec := Default()
		spec.Dependencies = []DependencyConfig{
			{ID: "redis", Execution: executionConfig("/usr/bin/redis-server")},
			{ID: "redis", Execution: executionConfig("/usr/bin/redis-server")},
		}
		err := Validate(spec)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate")
	})

	t.Run("missing executable", func(t *testing.T) {
		spec := Default()
		spec.Dependencies = []DependencyConfig{{ID: "redis"}}
		assert.Error(t, Validate(spec))
	})

	t.Run("negative startup timeout", func(t *testing.T) {
		spec := Default()
		spec.Entrypoint.StartupTimeout = -time.Second
		assert.Error(t, Validate(spec))
	})
}

func TestEnabledDependencies(t *testing.T) {
	path := writeSpec(t, `
dependencies:
  - id: first
    execution:
      executable_path: /bin/first
  - id: second
    enabled: false
    execution:
      executable_path: /bin/second
  - id: third
    enabled: true
    execution:
      executable_path: /bin/third
`)

	spec, err := LoadFromFile(path)
	require.NoError(t, err)

	enabled := spec.EnabledDependencies()
	require.Len(t, enabled, 2)
	assert.Equal(t, "first", enabled[0].ID)
	assert.Equal(t, "third", enabled[1].ID)
}

func TestGetSummary(t *testing.T) {
	spec := Default()
	disabled := false
	spec.Entrypoint.StartupTimeout = 90 * time.Second
	spec.Dependencies = []DependencyConfig{
		{ID: "redis", Execution: executionConfig("/usr/bin/redis-server")},
		{ID: "sidecar", Enabled: &disabled, Execution: executionConfig("/usr/bin/sidecar")},
	}
	setDefaults(spec)

	summary := GetSummary(spec)

	assert.Equal(t, 2, summary.TotalDependencies)
	assert.Equal(t, []string{"redis"}, summary.EnabledDependencies)
	assert.Equal(t, "1m30s", summary.StartupTimeout)
}
