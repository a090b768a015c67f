package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loykin/vigil/internal/worker"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vigil.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o640))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
log_dir = "/var/log/vigil"
lock_dir = "/run/vigil"
env = ["PYTHONUNBUFFERED=1"]
listen = "127.0.0.1:9090"

[defaults]
max_crash_streak = 4
base_delay = "2s"
max_delay = "1m"
clean_exit_grace = "3s"
retention = 7

[log]
level = "debug"

[journal]
dsn = ":memory:"

[reap]
patterns = ["python -m bots."]
grace = "1s"

[[workers]]
name = "alpha"
command = "python -m bots.alpha"
workdir = "/srv/bots"
lock_name = "vigil-alpha"

[[workers]]
name = "beta"
command = "python -m bots.beta"
base_delay = "10s"
disabled = true
`)
	fc, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/log/vigil", fc.LogDir)
	require.Equal(t, "/run/vigil", fc.LockDir)
	require.Equal(t, "127.0.0.1:9090", fc.Listen)
	require.Equal(t, 7, fc.Default.Retention)
	require.Equal(t, 2*time.Second, fc.Default.BaseDelay)
	require.Equal(t, "debug", fc.Log.Level)
	require.Equal(t, ":memory:", fc.Journal.DSN)
	require.Equal(t, []string{"python -m bots."}, fc.Reap.Patterns)
	require.Equal(t, time.Second, fc.Reap.Grace)

	specs := fc.WorkerSpecs()
	require.Len(t, specs, 2)

	alpha := specs[0]
	require.Equal(t, "alpha", alpha.Name)
	require.Equal(t, "vigil-alpha", alpha.LockKey())
	require.Equal(t, "/srv/bots", alpha.WorkDir)
	// alpha inherits all restart defaults
	require.Equal(t, 4, alpha.Restart.MaxCrashStreak)
	require.Equal(t, 2*time.Second, alpha.Restart.BaseDelay)
	require.Equal(t, time.Minute, alpha.Restart.MaxDelay)
	require.Equal(t, 3*time.Second, alpha.Restart.CleanExitGrace)

	// beta overrides base_delay only
	beta := specs[1]
	require.True(t, beta.Disabled)
	require.Equal(t, 10*time.Second, beta.Restart.BaseDelay)
	require.Equal(t, 4, beta.Restart.MaxCrashStreak)
}

func TestLoadAppliesBuiltinDefaults(t *testing.T) {
	path := writeConfig(t, `
[[workers]]
name = "solo"
command = "sleep 1"
`)
	fc, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 14, fc.Default.Retention)

	spec := fc.WorkerSpecs()[0]
	require.Equal(t, worker.DefaultMaxCrashStreak, spec.Restart.MaxCrashStreak)
	require.Equal(t, worker.DefaultBaseDelay, spec.Restart.BaseDelay)
	require.Equal(t, worker.DefaultMaxDelay, spec.Restart.MaxDelay)
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	path := writeConfig(t, `
[[workers]]
name = "dup"
command = "sleep 1"

[[workers]]
name = "dup"
command = "sleep 2"
`)
	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate")
}

func TestLoadRejectsMissingCommand(t *testing.T) {
	path := writeConfig(t, `
[[workers]]
name = "nocmd"
`)
	_, err := Load(path)
	require.Error(t, err)
}
