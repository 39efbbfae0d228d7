package usercoord

import (
	"github.com/bft-labs/usercoord/pkg/lifecycle"
	"github.com/bft-labs/usercoord/pkg/log"
	"github.com/bft-labs/usercoord/pkg/state"
)

// Option configures optional behavior of a Service.
type Option func(*options)

type options struct {
	coordinator Coordinator
	sessions    SessionManager
	users       IdentityStore
	ui          SwitchUI
	logger      log.Logger
	stateRepo   state.Repository
	onState     lifecycle.EventEmitter
	plugins     []Plugin
}

// WithCoordinator sets the external coordinator. Without one the service
// behaves as if the coordinator were absent: switches go straight to the OS
// and creations are not ratified.
func WithCoordinator(c Coordinator) Option {
	return func(o *options) { o.coordinator = c }
}

// WithSessionManager sets the OS session manager. Required.
func WithSessionManager(m SessionManager) Option {
	return func(o *options) { o.sessions = m }
}

// WithIdentityStore sets the identity store. Required.
func WithIdentityStore(s IdentityStore) Option {
	return func(o *options) { o.users = s }
}

// WithSwitchUI sets the switch-in-progress UI.
func WithSwitchUI(ui SwitchUI) Option {
	return func(o *options) { o.ui = ui }
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithStateRepository overrides where persistent state is kept. By default
// a file repository in Config.StateDir is used, or memory when it is empty.
func WithStateRepository(repo state.Repository) Option {
	return func(o *options) { o.stateRepo = repo }
}

// WithStateHandler registers fn to be called on every lifecycle state change.
func WithStateHandler(fn func(previous, current State, reason string)) Option {
	return func(o *options) { o.onState = lifecycle.EmitterFunc(fn) }
}

// WithPlugin registers a plugin to be initialized when the service starts.
func WithPlugin(p Plugin) Option {
	return func(o *options) { o.plugins = append(o.plugins, p) }
}
