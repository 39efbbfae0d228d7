package usercoord

import (
	"context"
	"time"

	"github.com/bft-labs/usercoord/pkg/log"
)

// Plugin extends a Service with optional behavior. Plugins are initialized
// in registration order during Start and shut down in reverse order by Stop.
type Plugin interface {
	// Name returns the plugin identifier used in logs.
	Name() string

	// Initialize is called during Start. ctx is canceled when the service
	// stops. A returned error aborts Start.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown is called during Stop.
	Shutdown(ctx context.Context) error
}

// Tunables are the settings a plugin may change at runtime.
type Tunables interface {
	SetCoordinatorTimeout(d time.Duration)
	SetMaxRunningUsers(n int)
}

// PluginConfig is handed to plugins on Initialize.
type PluginConfig struct {
	StateDir string
	Logger   log.Logger
	Tunables Tunables
}

// BasePlugin provides no-op Initialize and Shutdown for embedding.
type BasePlugin struct {
	PluginName string
}

// Name returns PluginName.
func (b BasePlugin) Name() string { return b.PluginName }

// Initialize does nothing.
func (BasePlugin) Initialize(context.Context, PluginConfig) error { return nil }

// Shutdown does nothing.
func (BasePlugin) Shutdown(context.Context) error { return nil }
