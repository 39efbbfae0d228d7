package cliconfig

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.MaxRunningUsers != 3 {
		t.Errorf("MaxRunningUsers = %v, want 3", cfg.MaxRunningUsers)
	}
	if cfg.CoordinatorTimeout != 5*time.Second {
		t.Errorf("CoordinatorTimeout = %v, want 5s", cfg.CoordinatorTimeout)
	}
	if cfg.ShutdownTimeout != 30*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 30s", cfg.ShutdownTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %v, want info", cfg.LogLevel)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		return Config{
			MaxRunningUsers:    3,
			CoordinatorTimeout: time.Second,
			ShutdownTimeout:    time.Second,
			LogLevel:           "debug",
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid minimal config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "max running users of 2 is accepted",
			mutate:  func(c *Config) { c.MaxRunningUsers = 2 },
			wantErr: false,
		},
		{
			name:    "max running users below 2",
			mutate:  func(c *Config) { c.MaxRunningUsers = 1 },
			wantErr: true,
		},
		{
			name:    "zero coordinator timeout",
			mutate:  func(c *Config) { c.CoordinatorTimeout = 0 },
			wantErr: true,
		},
		{
			name:    "negative shutdown timeout",
			mutate:  func(c *Config) { c.ShutdownTimeout = -time.Second },
			wantErr: true,
		},
		{
			name:    "negative sim latency",
			mutate:  func(c *Config) { c.SimLatency = -time.Millisecond },
			wantErr: true,
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.LogLevel = "loud" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Level(t *testing.T) {
	tests := []struct {
		level string
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"", zerolog.InfoLevel},
		{"bogus", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		cfg := Config{LogLevel: tt.level}
		if got := cfg.Level(); got != tt.want {
			t.Errorf("Level(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
