package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithPathAppliesDefaults(t *testing.T) {
	t.Setenv("OJ_STATE_DIR", t.TempDir())
	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 2000, cfg.Snapshot.IntervalEvents)
	assert.Equal(t, 500*time.Millisecond, cfg.Scheduler.TickInterval)
	assert.True(t, cfg.Adapters.LocalProc)
	assert.False(t, cfg.Adapters.Docker)
	assert.Equal(t, "1.41", cfg.Docker.APIVersion)
}

func TestLoadWithPathReadsConfigFileOverride(t *testing.T) {
	dir := t.TempDir()
	stateDir := t.TempDir()
	t.Setenv("OJ_STATE_DIR", stateDir)

	yaml := []byte("logging:\n  level: debug\nsnapshot:\n  intervalEvents: 500\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644))

	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 500, cfg.Snapshot.IntervalEvents)
}

func TestLoadWithPathEnvVarOverridesDefault(t *testing.T) {
	t.Setenv("OJ_STATE_DIR", t.TempDir())
	t.Setenv("OJ_LOGGING_LEVEL", "warn")

	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestValidateRejectsEmptyStateDir(t *testing.T) {
	cfg := &Config{Logging: LoggingConfig{Level: "info", Format: "text"}, Snapshot: SnapshotConfig{IntervalEvents: 1}, Scheduler: SchedulerConfig{TickInterval: time.Second}}
	err := validate(cfg)
	assert.ErrorContains(t, err, "stateDir")
}

func TestValidateRejectsInvalidLoggingLevel(t *testing.T) {
	cfg := &Config{StateDir: "/tmp/oj", Logging: LoggingConfig{Level: "verbose", Format: "text"}, Snapshot: SnapshotConfig{IntervalEvents: 1}, Scheduler: SchedulerConfig{TickInterval: time.Second}}
	err := validate(cfg)
	assert.ErrorContains(t, err, "logging.level")
}

func TestValidateRejectsNonPositiveSnapshotInterval(t *testing.T) {
	cfg := &Config{StateDir: "/tmp/oj", Logging: LoggingConfig{Level: "info", Format: "text"}, Snapshot: SnapshotConfig{IntervalEvents: 0}, Scheduler: SchedulerConfig{TickInterval: time.Second}}
	err := validate(cfg)
	assert.ErrorContains(t, err, "snapshot.intervalEvents")
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := &Config{StateDir: "/tmp/oj", Logging: LoggingConfig{Level: "info", Format: "text"}, Snapshot: SnapshotConfig{IntervalEvents: 10}, Scheduler: SchedulerConfig{TickInterval: time.Second}}
	assert.NoError(t, validate(cfg))
}
