package cliconfig

import (
	"os"
	"path/filepath"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	StateDir           string `toml:"state_dir"`
	MaxRunningUsers    int    `toml:"max_running_users"`
	CoordinatorTimeout string `toml:"coordinator_timeout"`
	ShutdownTimeout    string `toml:"shutdown_timeout"`
	Headless           *bool  `toml:"headless"`
	LogLevel           string `toml:"log_level"`
	MetricsAddr        string `toml:"metrics_addr"`
	SimLatency         string `toml:"sim_latency"`
	SimDrivers         int    `toml:"sim_drivers"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.usercoord/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".usercoord", "config.toml")
	}
	return ""
}

// DefaultStateDir returns ~/.usercoord, or "" (memory only) when the home
// directory is not accessible.
func DefaultStateDir() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".usercoord")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("state-dir", fc.StateDir, &cfg.StateDir)
	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)

	if err := s.setDuration("coordinator-timeout", fc.CoordinatorTimeout, &cfg.CoordinatorTimeout); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout); err != nil {
		return err
	}
	if err := s.setDuration("sim-latency", fc.SimLatency, &cfg.SimLatency); err != nil {
		return err
	}

	s.setInt("max-running-users", fc.MaxRunningUsers, &cfg.MaxRunningUsers)
	s.setInt("sim-drivers", fc.SimDrivers, &cfg.SimDrivers)

	s.setBool("headless", fc.Headless, &cfg.Headless)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
