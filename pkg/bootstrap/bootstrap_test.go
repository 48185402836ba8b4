package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fks-ops/fks-entrypoint/pkg/descriptor"
)

type testLogger struct{}

func (l *testLogger) LogLevelf(level int, format string, args ...interface{}) {}
func (l *testLogger) Debugf(format string, args ...interface{})               {}
func (l *testLogger) Infof(format string, args ...interface{})                {}
func (l *testLogger) Warnf(format string, args ...interface{})                {}
func (l *testLogger) Errorf(format string, args ...interface{})               {}

func setPathEnv(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv(EnvDataPath, filepath.Join(root, "data"))
	t.Setenv(EnvConfigsPath, filepath.Join(root, "config"))
	t.Setenv(EnvResultsPath, filepath.Join(root, "results"))
	t.Setenv(EnvLogsPath, filepath.Join(root, "logs"))
	return root
}

func TestPrepare_CreatesDirectories(t *testing.T) {
	root := setPathEnv(t)

	err := Prepare(descriptor.ServiceDescriptor{ServiceKind: "api"}, &testLogger{})
	require.NoError(t, err)

	for _, dir := range []string{"data", "config", "results", "logs"} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err, "dir: %s", dir)
		assert.True(t, info.IsDir())
	}
}

func TestPrepare_PopulatesConfigFromServiceDefault(t *testing.T) {
	root := setPathEnv(t)

	configsDir := filepath.Join(root, "config")
	require.NoError(t, os.MkdirAll(configsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configsDir, "api.yaml"), []byte("service: api\n"), 0o644))

	target := filepath.Join(root, "config", "live", "api.yaml")
	err := Prepare(descriptor.ServiceDescriptor{ServiceKind: "api", ConfigPath: target}, &testLogger{})
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "service: api\n", string(data))
}

func TestPrepare_FallsBackToDefaultYAML(t *testing.T) {
	root := setPathEnv(t)

	configsDir := filepath.Join(root, "config")
	require.NoError(t, os.MkdirAll(configsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configsDir, "default.yaml"), []byte("service: default\n"), 0o644))

	target := filepath.Join(root, "config", "live", "worker.yaml")
	err := Prepare(descriptor.ServiceDescriptor{ServiceKind: "worker", ConfigPath: target}, &testLogger{})
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "service: default\n", string(data))
}

func TestPrepare_ExistingConfigUntouched(t *testing.T) {
	root := setPathEnv(t)

	configsDir := filepath.Join(root, "config")
	require.NoError(t, os.MkdirAll(configsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(configsDir, "api.yaml"), []byte("shipped\n"), 0o644))

	target := filepath.Join(configsDir, "live.yaml")
	require.NoError(t, os.WriteFile(target, []byte("operator-edited\n"), 0o644))

	err := Prepare(descriptor.ServiceDescriptor{ServiceKind: "api", ConfigPath: target}, &testLogger{})
	require.NoError(t, err)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "operator-edited\n", string(data))
}

// Missing defaults are logged, never fatal: the service may not need the
// config file at all.
func TestPrepare_NoDefaultAvailableIsNotFatal(t *testing.T) {
	root := setPathEnv(t)

	target := filepath.Join(root, "config", "api.yaml")
	err := Prepare(descriptor.ServiceDescriptor{ServiceKind: "api", ConfigPath: target}, &testLogger{})

	require.NoError(t, err)
	_, statErr := os.Stat(target)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPrepare_NoConfigPathSkipsPopulation(t *testing.T) {
	setPathEnv(t)

	err := Prepare(descriptor.ServiceDescriptor{ServiceKind: "api"}, &testLogger{})
	assert.NoError(t, err)
}
