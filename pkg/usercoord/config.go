package usercoord

import (
	"fmt"
	"time"

	"github.com/bft-labs/usercoord/internal/domain"
	"github.com/bft-labs/usercoord/pkg/lifecycle"
)

// Default values applied by SetDefaults.
const (
	DefaultMaxRunningUsers    = 3
	DefaultCoordinatorTimeout = 5 * time.Second
)

// Config holds the service configuration.
type Config struct {
	// StateDir holds usercoord.json. Empty keeps state in memory only.
	StateDir string

	// MaxRunningUsers bounds the users running at once, the system user
	// included. The restart registry holds at most MaxRunningUsers-1 users.
	MaxRunningUsers int

	// CoordinatorTimeout bounds every coordinator round trip that is not
	// given an explicit timeout.
	CoordinatorTimeout time.Duration

	// Headless is set when the system user runs without a display.
	Headless bool

	// ShutdownTimeout bounds Stop.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills zero fields with default values.
func (c *Config) SetDefaults() {
	if c.MaxRunningUsers == 0 {
		c.MaxRunningUsers = DefaultMaxRunningUsers
	}
	if c.CoordinatorTimeout == 0 {
		c.CoordinatorTimeout = DefaultCoordinatorTimeout
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = lifecycle.ShutdownTimeout
	}
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.MaxRunningUsers < 2 {
		return fmt.Errorf("%w: max running users must be at least 2, got %d", domain.ErrInvalidConfig, c.MaxRunningUsers)
	}
	if c.CoordinatorTimeout <= 0 {
		return fmt.Errorf("%w: coordinator timeout must be positive", domain.ErrInvalidConfig)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: shutdown timeout must be positive", domain.ErrInvalidConfig)
	}
	return nil
}
