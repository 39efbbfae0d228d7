package usercoord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/usercoord/internal/association"
	"github.com/bft-labs/usercoord/internal/domain"
	"github.com/bft-labs/usercoord/internal/eventbus"
	"github.com/bft-labs/usercoord/internal/provision"
	"github.com/bft-labs/usercoord/internal/restart"
	"github.com/bft-labs/usercoord/internal/switching"
	"github.com/bft-labs/usercoord/pkg/lifecycle"
	"github.com/bft-labs/usercoord/pkg/log"
	"github.com/bft-labs/usercoord/pkg/state"
)

// Service is the user coordination service. Use New to create an instance,
// then Start to run its workers.
type Service struct {
	config    Config
	logger    log.Logger
	lifecycle *lifecycle.Manager
	plugins   []Plugin

	coord    Coordinator
	sessions SessionManager
	users    IdentityStore
	store    *state.Store

	registry    *restart.Registry
	provisioner *provision.Provisioner
	bridge      *association.Bridge

	// mu serializes Start and Stop.
	mu sync.Mutex

	// rt holds the workers of the current run, nil while not running.
	rt atomic.Pointer[runtime]

	// tunMu guards the runtime tunables and their handoff to a new runtime.
	tunMu      sync.Mutex
	timeout    time.Duration
	maxRunning int
	ui         SwitchUI
}

// runtime is the per-run context object, created by Start and torn down
// by Stop.
type runtime struct {
	bus      *eventbus.Bus
	switcher *switching.Coordinator
}

// New creates a Service with the given configuration. The instance is
// created in StateStopped; call Start to begin processing.
func New(cfg Config, opts ...Option) (*Service, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := validateModuleVersions(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.sessions == nil {
		return nil, fmt.Errorf("%w: a session manager is required", domain.ErrInvalidConfig)
	}
	if o.users == nil {
		return nil, fmt.Errorf("%w: an identity store is required", domain.ErrInvalidConfig)
	}
	if o.logger == nil {
		o.logger = log.NewNoopLogger()
	}
	if o.coordinator == nil {
		o.coordinator = absentCoordinator{}
	}
	if o.stateRepo == nil {
		if cfg.StateDir != "" {
			o.stateRepo = state.NewFileRepository(cfg.StateDir)
		} else {
			o.stateRepo = state.NewMemoryRepository()
		}
	}

	store := state.NewStore(o.stateRepo)
	registry := restart.New(o.sessions, o.users, store, cfg.MaxRunningUsers, o.logger)

	return &Service{
		config:    cfg,
		logger:    o.logger,
		lifecycle: lifecycle.NewManager(o.logger, o.onState),
		plugins:   o.plugins,
		coord:     o.coordinator,
		sessions:  o.sessions,
		users:     o.users,
		store:     store,
		registry:  registry,
		provisioner: provision.New(provision.Config{
			Coordinator:    o.coordinator,
			SessionManager: o.sessions,
			IdentityStore:  o.users,
			Restart:        registry,
			Logger:         o.logger,
			Timeout:        cfg.CoordinatorTimeout,
			Headless:       cfg.Headless,
		}),
		bridge:     association.New(o.coordinator, o.users, cfg.CoordinatorTimeout, o.logger),
		timeout:    cfg.CoordinatorTimeout,
		maxRunning: cfg.MaxRunningUsers,
		ui:         o.ui,
	}, nil
}

// Start restores persisted state, starts the event bus and switch workers
// and initializes plugins. It returns once the service is running.
// The provided context bounds the lifetime of the workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	runCtx, err := s.lifecycle.Begin(ctx, "Start() called")
	if err != nil {
		return err
	}

	st, err := s.store.Load(runCtx)
	if err != nil {
		// Continue with empty state
		s.logger.Error("failed to load state", log.Err(err))
	}
	s.registry.Restore(st)

	rt := s.newRuntime()
	s.lifecycle.Go("eventbus", func() error { return rt.bus.Run(runCtx) })
	s.lifecycle.Go("switching", func() error { return rt.switcher.Run(runCtx) })

	for _, l := range []Listener{rt.switcher, s.registry} {
		if err := rt.bus.Register(l); err != nil {
			s.lifecycle.Abort("listener registration failed")
			return err
		}
	}
	s.publish(rt)

	pluginCfg := PluginConfig{
		StateDir: s.config.StateDir,
		Logger:   s.logger,
		Tunables: s,
	}
	for _, p := range s.plugins {
		if err := p.Initialize(runCtx, pluginCfg); err != nil {
			s.logger.Error("plugin initialization failed",
				log.String("plugin", p.Name()),
				log.Err(err))
			s.rt.Store(nil)
			s.lifecycle.Abort("plugin init failed: " + p.Name())
			return err
		}
		s.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}

	return s.lifecycle.TransitionTo(lifecycle.StateRunning, "workers started")
}

// Stop shuts the workers down, delivering queued lifecycle events first,
// and shuts plugins down in reverse order.
// Returns nil on graceful shutdown, ErrShutdownTimeout if forced.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.lifecycle.CanStop() {
		s.mu.Unlock()
		return domain.ErrNotRunning
	}
	s.rt.Store(nil)
	err := s.lifecycle.Shutdown(s.config.ShutdownTimeout)
	s.mu.Unlock()

	shutdownCtx := context.Background()
	for i := len(s.plugins) - 1; i >= 0; i-- {
		p := s.plugins[i]
		if shutdownErr := p.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error("plugin shutdown failed",
				log.String("plugin", p.Name()),
				log.Err(shutdownErr))
		} else {
			s.logger.Info("plugin shutdown complete", log.String("plugin", p.Name()))
		}
	}

	if errors.Is(err, lifecycle.ErrShutdownTimeout) {
		return domain.ErrShutdownTimeout
	}
	return err
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (s *Service) Status() State {
	return s.lifecycle.State()
}

func (s *Service) newRuntime() *runtime {
	s.tunMu.Lock()
	timeout := s.timeout
	s.tunMu.Unlock()

	return &runtime{
		bus: eventbus.New(s.logger),
		switcher: switching.New(switching.Config{
			Coordinator:    s.coord,
			SessionManager: s.sessions,
			IdentityStore:  s.users,
			Logger:         s.logger,
			Timeout:        timeout,
			Headless:       s.config.Headless,
		}),
	}
}

// publish makes rt visible to operations. Tunables changed since rt was
// built are applied under tunMu so none is lost.
func (s *Service) publish(rt *runtime) {
	s.tunMu.Lock()
	defer s.tunMu.Unlock()
	rt.switcher.SetTimeout(s.timeout)
	rt.switcher.SetSwitchUI(s.ui)
	s.rt.Store(rt)
}

// current returns the current run, or nil while the service is not running.
func (s *Service) current() *runtime {
	return s.rt.Load()
}

// validateModuleVersions checks that all module versions are compatible.
// Returns an error if any module version is below its minimum compatible version.
func validateModuleVersions() error {
	modules := map[string]struct {
		version    string
		minVersion string
	}{
		"state":     {state.Version, state.MinCompatibleVersion},
		"log":       {log.Version, log.MinCompatibleVersion},
		"lifecycle": {lifecycle.Version, lifecycle.MinCompatibleVersion},
	}

	for name, m := range modules {
		if !isVersionCompatible(m.version, m.minVersion) {
			return fmt.Errorf("module %s version %s is below minimum compatible version %s",
				name, m.version, m.minVersion)
		}
	}
	return nil
}

// isVersionCompatible checks if version >= minVersion.
// Assumes versions are in format "major.minor.patch".
func isVersionCompatible(version, minVersion string) bool {
	var vMajor, vMinor, vPatch int
	var mMajor, mMinor, mPatch int

	_, _ = fmt.Sscanf(version, "%d.%d.%d", &vMajor, &vMinor, &vPatch)
	_, _ = fmt.Sscanf(minVersion, "%d.%d.%d", &mMajor, &mMinor, &mPatch)

	if vMajor != mMajor {
		return vMajor > mMajor
	}
	if vMinor != mMinor {
		return vMinor > mMinor
	}
	return vPatch >= mPatch
}
