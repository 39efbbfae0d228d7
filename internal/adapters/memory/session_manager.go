package memory

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bft-labs/usercoord/internal/domain"
)

// ErrInjected is the default error returned by failure injection helpers.
var ErrInjected = errors.New("memory: injected failure")

// EventSink receives the lifecycle events a real OS would emit.
type EventSink func(domain.LifecycleEvent)

// SessionManager is an in-memory ports.SessionManager. The system user is
// running and unlocked from the start.
type SessionManager struct {
	mu       sync.Mutex
	current  domain.UserID
	running  map[domain.UserID]bool
	unlocked map[domain.UserID]bool
	sink     EventSink

	switchErr error
	startErr  map[domain.UserID]error
	unlockErr map[domain.UserID]error
	stopErr   map[domain.UserID]error

	switches []domain.UserID
	stops    []domain.UserID
}

// NewSessionManager creates a session manager with current as the
// foreground user.
func NewSessionManager(current domain.UserID) *SessionManager {
	m := &SessionManager{
		current:   current,
		running:   map[domain.UserID]bool{domain.SystemUser: true, current: true},
		unlocked:  map[domain.UserID]bool{domain.SystemUser: true, current: true},
		startErr:  make(map[domain.UserID]error),
		unlockErr: make(map[domain.UserID]error),
		stopErr:   make(map[domain.UserID]error),
	}
	return m
}

// SetEventSink installs the receiver of emitted lifecycle events.
func (m *SessionManager) SetEventSink(sink EventSink) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sink = sink
}

// SetSwitchError makes SwitchUser fail with err. nil clears it.
func (m *SessionManager) SetSwitchError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.switchErr = err
}

// SetStartError makes StartUserInBackground(id) fail with err.
func (m *SessionManager) SetStartError(id domain.UserID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr[id] = err
}

// SetUnlockError makes UnlockUser(id) fail with err.
func (m *SessionManager) SetUnlockError(id domain.UserID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unlockErr[id] = err
}

// SetStopError makes StopUser(id) fail with err.
func (m *SessionManager) SetStopError(id domain.UserID, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopErr[id] = err
}

// SetCurrentUser changes the foreground user without emitting events.
func (m *SessionManager) SetCurrentUser(id domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = id
	m.running[id] = true
}

// SetRunning marks a user running (and optionally unlocked) without events.
func (m *SessionManager) SetRunning(id domain.UserID, unlocked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running[id] = true
	m.unlocked[id] = unlocked
}

// Switches returns the targets of successful SwitchUser calls.
func (m *SessionManager) Switches() []domain.UserID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.UserID(nil), m.switches...)
}

// Stops returns the users stopped so far.
func (m *SessionManager) Stops() []domain.UserID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.UserID(nil), m.stops...)
}

// CurrentUser returns the foreground user.
func (m *SessionManager) CurrentUser() domain.UserID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// SwitchUser brings id to the foreground and emits Switching, then
// Starting/Unlocking/Unlocked for a user that was not yet unlocked.
func (m *SessionManager) SwitchUser(id domain.UserID) error {
	m.mu.Lock()
	if m.switchErr != nil {
		err := m.switchErr
		m.mu.Unlock()
		return err
	}
	from := m.current
	wasRunning := m.running[id]
	wasUnlocked := m.unlocked[id]
	m.current = id
	m.running[id] = true
	m.unlocked[id] = true
	m.switches = append(m.switches, id)
	sink := m.sink
	m.mu.Unlock()

	if sink == nil {
		return nil
	}
	now := time.Now().UnixMilli()
	if !wasRunning {
		sink(domain.NewLifecycleEvent(domain.EventStarting, id, now))
	}
	sink(domain.LifecycleEvent{Type: domain.EventSwitching, From: from, To: id, TimestampMs: now})
	if !wasUnlocked {
		sink(domain.NewLifecycleEvent(domain.EventUnlocking, id, now))
		sink(domain.NewLifecycleEvent(domain.EventUnlocked, id, now))
		sink(domain.NewLifecycleEvent(domain.EventPostUnlocked, id, now))
	}
	return nil
}

// StartUserInBackground starts id without bringing it to the foreground.
func (m *SessionManager) StartUserInBackground(id domain.UserID) error {
	m.mu.Lock()
	if err := m.startErr[id]; err != nil {
		m.mu.Unlock()
		return err
	}
	wasRunning := m.running[id]
	m.running[id] = true
	sink := m.sink
	m.mu.Unlock()

	if sink != nil && !wasRunning {
		sink(domain.NewLifecycleEvent(domain.EventStarting, id, time.Now().UnixMilli()))
	}
	return nil
}

// UnlockUser unlocks a running user.
func (m *SessionManager) UnlockUser(id domain.UserID) error {
	m.mu.Lock()
	if err := m.unlockErr[id]; err != nil {
		m.mu.Unlock()
		return err
	}
	if !m.running[id] {
		m.mu.Unlock()
		return fmt.Errorf("unlock user %d: not running", id)
	}
	wasUnlocked := m.unlocked[id]
	m.unlocked[id] = true
	sink := m.sink
	m.mu.Unlock()

	if sink != nil && !wasUnlocked {
		now := time.Now().UnixMilli()
		sink(domain.NewLifecycleEvent(domain.EventUnlocking, id, now))
		sink(domain.NewLifecycleEvent(domain.EventUnlocked, id, now))
	}
	return nil
}

// StopUser stops a background user.
func (m *SessionManager) StopUser(id domain.UserID) error {
	m.mu.Lock()
	if err := m.stopErr[id]; err != nil {
		m.mu.Unlock()
		return err
	}
	if id == m.current {
		m.mu.Unlock()
		return fmt.Errorf("stop user %d: user is in the foreground", id)
	}
	wasRunning := m.running[id]
	delete(m.running, id)
	delete(m.unlocked, id)
	m.stops = append(m.stops, id)
	sink := m.sink
	m.mu.Unlock()

	if sink != nil && wasRunning {
		now := time.Now().UnixMilli()
		sink(domain.NewLifecycleEvent(domain.EventStopping, id, now))
		sink(domain.NewLifecycleEvent(domain.EventStopped, id, now))
	}
	return nil
}

// IsUserUnlockingOrUnlocked reports whether id is unlocked.
func (m *SessionManager) IsUserUnlockingOrUnlocked(id domain.UserID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.unlocked[id]
}

// IsUserRunning reports whether id is running.
func (m *SessionManager) IsUserRunning(id domain.UserID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running[id]
}
