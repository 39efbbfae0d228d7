package ports

import "github.com/bft-labs/usercoord/internal/domain"

// Listener receives lifecycle events in-process. Listeners are identified by
// equality, so implementations should be pointer types.
type Listener interface {
	OnEvent(event domain.LifecycleEvent)
}

// ListenerFunc adapts a function to Listener. Function values are not
// comparable; wrap them with NewListenerFunc to obtain a removable listener.
type ListenerFunc struct {
	fn func(domain.LifecycleEvent)
}

// NewListenerFunc returns a removable Listener calling fn.
func NewListenerFunc(fn func(domain.LifecycleEvent)) *ListenerFunc {
	return &ListenerFunc{fn: fn}
}

// OnEvent calls the wrapped function.
func (l *ListenerFunc) OnEvent(event domain.LifecycleEvent) { l.fn(event) }

// UID identifies a remote caller.
type UID int

// RemoteListener is a cross-process subscriber handle.
type RemoteListener interface {
	// Send delivers an event. An error means the handle is unusable.
	Send(event domain.LifecycleEvent) error

	// Done is closed when the remote end dies.
	Done() <-chan struct{}
}
