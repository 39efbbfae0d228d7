package usercoord

import (
	"context"

	"github.com/bft-labs/usercoord/internal/domain"
	"github.com/bft-labs/usercoord/pkg/log"
)

// OnLifecycleEvent is the entry point for lifecycle events raised by the OS.
// It never blocks. Events arriving while the service is not running are
// dropped.
func (s *Service) OnLifecycleEvent(event LifecycleEvent) {
	rt := s.current()
	if rt == nil {
		s.logger.Debug("lifecycle event dropped, service not running", log.Stringer("event", event))
		return
	}
	rt.bus.Dispatch(event)
}

// AddListener registers an in-process listener. Listeners are identified by
// equality; pointer types are recommended.
func (s *Service) AddListener(l Listener) error {
	rt := s.current()
	if rt == nil {
		return domain.ErrNotRunning
	}
	return rt.bus.Register(l)
}

// RemoveListener unregisters an in-process listener.
func (s *Service) RemoveListener(l Listener) error {
	rt := s.current()
	if rt == nil {
		return domain.ErrNotRunning
	}
	return rt.bus.Unregister(l)
}

// RegisterLifecycleListener registers the cross-process listener of caller
// uid, replacing any previous one. The handle is dropped when it dies or a
// delivery to it fails.
func (s *Service) RegisterLifecycleListener(uid UID, handle RemoteListener) error {
	rt := s.current()
	if rt == nil {
		return domain.ErrNotRunning
	}
	return rt.bus.RegisterRemote(uid, handle)
}

// UnregisterLifecycleListener removes the cross-process listener of uid.
func (s *Service) UnregisterLifecycleListener(uid UID) error {
	rt := s.current()
	if rt == nil {
		return domain.ErrNotRunning
	}
	return rt.bus.UnregisterRemote(uid)
}

// FlushEvents blocks until every lifecycle event received before the call
// has been delivered to all listeners.
func (s *Service) FlushEvents(ctx context.Context) error {
	rt := s.current()
	if rt == nil {
		return domain.ErrNotRunning
	}
	return rt.bus.Flush(ctx)
}
