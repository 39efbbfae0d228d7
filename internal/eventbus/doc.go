// Package eventbus fans user lifecycle events out to in-process listeners and
// to cross-process listener handles.
//
// A single worker goroutine owns both registries. Dispatch, registration and
// unregistration are posted to an unbounded mailbox and never block the
// caller. Registration changes are applied between individual deliveries, so
// a listener removed while an event is being dispatched receives nothing
// further.
//
// In-process listeners are always notified before remote handles. A
// panicking in-process listener is logged and skipped. A remote handle whose
// Send fails, or whose Done channel is closed, is dropped without retry.
package eventbus
