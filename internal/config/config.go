// Package config loads daemon configuration from environment variables and
// an optional config file, following the teacher's viper-based
// internal/common/config, generalised from Kandev's server/database/auth
// sections to the daemon's state directory, snapshot cadence, and adapter
// toggles.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration sections for the daemon.
type Config struct {
	StateDir  string          `mapstructure:"stateDir"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Adapters  AdaptersConfig  `mapstructure:"adapters"`
	Docker    DockerConfig    `mapstructure:"docker"`
	Debug     DebugConfig     `mapstructure:"debug"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"outputPath"`
}

// SnapshotConfig controls when internal/eventlog rotates a new snapshot.
type SnapshotConfig struct {
	IntervalEvents   int           `mapstructure:"intervalEvents"`
	IntervalDuration time.Duration `mapstructure:"intervalDuration"`
	SegmentMaxBytes  int64         `mapstructure:"segmentMaxBytes"`
}

// SchedulerConfig controls the timer wheel's poll cadence.
type SchedulerConfig struct {
	TickInterval time.Duration `mapstructure:"tickInterval"`
}

// AdaptersConfig toggles which agent adapter variants are available.
type AdaptersConfig struct {
	Docker    bool `mapstructure:"docker"`
	LocalProc bool `mapstructure:"localProc"`
}

// DockerConfig holds Docker client configuration for the docker adapter.
type DockerConfig struct {
	Host           string `mapstructure:"host"`
	APIVersion     string `mapstructure:"apiVersion"`
	DefaultNetwork string `mapstructure:"defaultNetwork"`
}

// DebugConfig holds the loopback debug/inspection HTTP surface settings
// (SPEC_FULL.md §4.1).
type DebugConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// detectDefaultLogFormat mirrors the teacher's detectDefaultLogFormat.
func detectDefaultLogFormat() string {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return "json"
	}
	if env := os.Getenv("OJ_ENV"); env == "production" || env == "prod" {
		return "json"
	}
	return "text"
}

func defaultStateDir() string {
	if dir := os.Getenv("OJ_STATE_DIR"); dir != "" {
		return dir
	}
	base, err := os.UserHomeDir()
	if err != nil {
		base = "."
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "oj")
	}
	xdg := os.Getenv("XDG_STATE_HOME")
	if xdg == "" {
		xdg = filepath.Join(base, ".local", "state")
	}
	return filepath.Join(xdg, "oj")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("stateDir", defaultStateDir())

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", detectDefaultLogFormat())
	v.SetDefault("logging.outputPath", "stdout")

	v.SetDefault("snapshot.intervalEvents", 2000)
	v.SetDefault("snapshot.intervalDuration", 5*time.Minute)
	v.SetDefault("snapshot.segmentMaxBytes", int64(64*1024*1024))

	v.SetDefault("scheduler.tickInterval", 500*time.Millisecond)

	v.SetDefault("adapters.docker", false)
	v.SetDefault("adapters.localProc", true)

	v.SetDefault("docker.host", defaultDockerHost())
	v.SetDefault("docker.apiVersion", "1.41")
	v.SetDefault("docker.defaultNetwork", "oj-network")

	v.SetDefault("debug.enabled", true)
	v.SetDefault("debug.addr", "127.0.0.1:9797")
}

func defaultDockerHost() string {
	if host := os.Getenv("DOCKER_HOST"); host != "" {
		return host
	}
	if runtime.GOOS == "windows" {
		return "npipe:////./pipe/docker_engine"
	}
	return "unix:///var/run/docker.sock"
}

// Load reads configuration from environment variables, config file, and
// defaults.
func Load() (*Config, error) {
	return LoadWithPath("")
}

// LoadWithPath reads configuration from the specified path or default
// locations ($stateDir/config.yaml, ./config.yaml, /etc/oj/).
func LoadWithPath(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("OJ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/oj/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Now that stateDir is known, allow a second pass to also read
	// $stateDir/config.yaml if the caller didn't pass an explicit path.
	if configPath == "" && cfg.StateDir != "" {
		v.AddConfigPath(cfg.StateDir)
		if err := v.ReadInConfig(); err == nil {
			_ = v.Unmarshal(&cfg)
		}
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.StateDir == "" {
		errs = append(errs, "stateDir must not be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, "logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, "logging.format must be one of: json, text, console")
	}

	if cfg.Snapshot.IntervalEvents <= 0 {
		errs = append(errs, "snapshot.intervalEvents must be positive")
	}
	if cfg.Scheduler.TickInterval <= 0 {
		errs = append(errs, "scheduler.tickInterval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
