package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (USERCOORD_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("state-dir", os.Getenv("USERCOORD_STATE_DIR"), &cfg.StateDir)
	s.setString("log-level", os.Getenv("USERCOORD_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("metrics-addr", os.Getenv("USERCOORD_METRICS_ADDR"), &cfg.MetricsAddr)

	if err := s.setDuration("coordinator-timeout", os.Getenv("USERCOORD_COORDINATOR_TIMEOUT"), &cfg.CoordinatorTimeout); err != nil {
		return err
	}
	if err := s.setDuration("shutdown-timeout", os.Getenv("USERCOORD_SHUTDOWN_TIMEOUT"), &cfg.ShutdownTimeout); err != nil {
		return err
	}
	if err := s.setDuration("sim-latency", os.Getenv("USERCOORD_SIM_LATENCY"), &cfg.SimLatency); err != nil {
		return err
	}

	if err := s.setIntFromString("max-running-users", os.Getenv("USERCOORD_MAX_RUNNING_USERS"), &cfg.MaxRunningUsers); err != nil {
		return err
	}
	if err := s.setIntFromString("sim-drivers", os.Getenv("USERCOORD_SIM_DRIVERS"), &cfg.SimDrivers); err != nil {
		return err
	}

	s.setBoolFromString("headless", os.Getenv("USERCOORD_HEADLESS"), &cfg.Headless)

	return nil
}
