package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/usercoord/pkg/log"
)

// Common lifecycle errors.
var (
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	ErrShutdownTimeout   = errors.New("shutdown timeout")
)

// ShutdownTimeout is the default maximum time to wait for graceful shutdown.
const ShutdownTimeout = 30 * time.Second

// Manager runs the lifecycle state machine of a service and owns its worker
// goroutines. A worker returning an error other than context.Canceled
// crashes the service.
type Manager struct {
	mu      sync.RWMutex
	state   State
	cancel  context.CancelFunc
	group   *errgroup.Group
	logger  log.Logger
	emitter EventEmitter
}

// NewManager creates a new lifecycle manager in StateStopped.
func NewManager(logger log.Logger, emitter EventEmitter) *Manager {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Manager{
		state:   StateStopped,
		logger:  logger,
		emitter: emitter,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// CanStart returns true if Begin can be called.
func (m *Manager) CanStart() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateStopped || m.state == StateCrashed
}

// CanStop returns true if Shutdown can be called.
func (m *Manager) CanStop() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state == StateRunning || m.state == StateCrashed
}

// TransitionTo attempts to transition to a new state.
// Returns ErrInvalidTransition if the transition is not valid.
func (m *Manager) TransitionTo(newState State, reason string) error {
	m.mu.Lock()
	oldState := m.state
	if !CanTransition(oldState, newState) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, oldState, newState)
	}
	m.state = newState
	m.mu.Unlock()

	// Emit event outside of lock
	if m.emitter != nil {
		m.emitter.OnStateChange(oldState, newState, reason)
	}

	m.logger.Info("state transition",
		log.String("from", oldState.String()),
		log.String("to", newState.String()),
		log.String("reason", reason),
	)
	return nil
}

// Begin moves to StateStarting and returns the context workers run under.
// The context is canceled by Shutdown or when any worker fails.
func (m *Manager) Begin(ctx context.Context, reason string) (context.Context, error) {
	if err := m.TransitionTo(StateStarting, reason); err != nil {
		return nil, err
	}
	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)

	m.mu.Lock()
	m.cancel = cancel
	m.group = group
	m.mu.Unlock()
	return groupCtx, nil
}

// Go runs fn as a named worker. Begin must have been called.
func (m *Manager) Go(name string, fn func() error) {
	m.mu.RLock()
	group := m.group
	m.mu.RUnlock()

	group.Go(func() error {
		err := fn()
		if err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("worker failed", log.String("worker", name), log.Err(err))
			_ = m.TransitionTo(StateCrashed, name+": "+err.Error())
			return err
		}
		return nil
	})
}

// Abort cancels the workers started so far, waits for them, and marks the
// service crashed. Used when startup fails after Begin.
func (m *Manager) Abort(reason string) {
	m.mu.Lock()
	cancel, group := m.cancel, m.group
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if group != nil {
		_ = group.Wait()
	}
	_ = m.TransitionTo(StateCrashed, reason)
}

// Shutdown moves to StateStopping, cancels the workers and waits up to
// timeout for them to return. The final state is StateStopped, or
// StateCrashed with ErrShutdownTimeout if the workers did not finish.
func (m *Manager) Shutdown(timeout time.Duration) error {
	if err := m.TransitionTo(StateStopping, "shutdown requested"); err != nil {
		return err
	}

	m.mu.Lock()
	cancel, group := m.cancel, m.group
	m.cancel, m.group = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		if group != nil {
			_ = group.Wait()
		}
		close(done)
	}()

	select {
	case <-done:
		_ = m.TransitionTo(StateStopped, "graceful shutdown")
		return nil
	case <-time.After(timeout):
		m.logger.Warn("shutdown timeout, forcing exit",
			log.Duration("timeout", timeout),
		)
		_ = m.TransitionTo(StateCrashed, "shutdown timeout")
		return ErrShutdownTimeout
	}
}

var _ Controller = (*Manager)(nil)
